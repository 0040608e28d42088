package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// metricsHandler, if non-nil, is mounted at GET /metrics outside it.
// uploadDir stages files sent to the generation endpoints.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler, metricsHandler http.Handler, uploadDir string) chi.Router {
	h := NewHandler(svc)
	uh := NewUploadHandler(svc, uploadDir)

	r := chi.NewRouter()

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Route("/{scope}", func(r chi.Router) {
			// Gallery view.
			r.Get("/gallery", h.Gallery)
			r.Put("/gallery/filter", h.SetFilter)
			r.Put("/gallery/page", h.SetPage)
			r.Post("/gallery/next", h.NextPage)
			r.Post("/gallery/prev", h.PrevPage)
			r.Post("/refresh", h.Refresh)
			r.Get("/search", h.Search)

			// Optimistic mutations and export.
			r.Post("/creations/{id}/like", h.ToggleLike)
			r.Delete("/creations/{id}", h.DeleteCreation)
			r.Post("/creations/{id}/export", h.ExportCreation)

			// Lightbox.
			r.Get("/lightbox", h.Lightbox)
			r.Post("/lightbox/open", h.OpenLightbox)
			r.Post("/lightbox/next", h.LightboxStep(stepNext))
			r.Post("/lightbox/prev", h.LightboxStep(stepPrev))
			r.Post("/lightbox/close", h.LightboxStep(stepClose))
			r.Post("/lightbox/key", h.LightboxKey)
			r.Post("/lightbox/loaded", h.LightboxLoaded)
			r.Post("/lightbox/export", h.LightboxExport)
		})

		r.Post("/generate/{kind}", uh.Generate)

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
