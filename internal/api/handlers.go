package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/mutation"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// view resolves the {scope} URL parameter, writing the error response itself.
func (h *Handler) view(w http.ResponseWriter, r *http.Request) (*collection.Controller, bool) {
	v, err := h.svc.View(chi.URLParam(r, "scope"))
	if err != nil {
		writeError(w, "resolve view", err)
		return nil, false
	}
	return v, true
}

func (h *Handler) writeGallery(w http.ResponseWriter, v *collection.Controller) {
	writeJSON(w, http.StatusOK, toGallery(v.View(), v.UserID()))
}

// Gallery handles GET /{scope}/gallery.
//
//	@Summary		Current page of a view
//	@Tags			gallery
//	@Produce		json
//	@Param			scope	path		string	true	"View"	Enums(own, community)
//	@Param			filter	query		string	false	"Switch filter first"
//	@Param			page	query		int		false	"Switch page first"
//	@Success		200		{object}	GalleryResponse
//	@Security		BearerAuth
//	@Router			/{scope}/gallery [get]
func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if raw := q.Get("filter"); raw != "" {
		f, err := models.ParseFilter(raw)
		if err != nil {
			writeError(w, "set filter", err)
			return
		}
		if f != v.View().Filter {
			v.SetFilter(f)
		}
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("page must be a number"))
			return
		}
		if err := v.SetPage(page); err != nil {
			writeError(w, "set page", err)
			return
		}
	}
	h.writeGallery(w, v)
}

// SetFilter handles PUT /{scope}/gallery/filter. The page resets to 1.
//
//	@Summary		Change the kind filter
//	@Tags			gallery
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FilterRequest	true	"Filter"
//	@Success		200		{object}	GalleryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/gallery/filter [put]
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req FilterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := models.ParseFilter(req.Filter)
	if err != nil {
		writeError(w, "set filter", err)
		return
	}
	v.SetFilter(f)
	h.writeGallery(w, v)
}

// SetPage handles PUT /{scope}/gallery/page.
//
//	@Summary		Move to a page
//	@Tags			gallery
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PageRequest	true	"Page"
//	@Success		200		{object}	GalleryResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/gallery/page [put]
func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req PageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := v.SetPage(req.Page); err != nil {
		writeError(w, "set page", err)
		return
	}
	h.writeGallery(w, v)
}

// NextPage handles POST /{scope}/gallery/next.
func (h *Handler) NextPage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	v.NextPage()
	h.writeGallery(w, v)
}

// PrevPage handles POST /{scope}/gallery/prev.
func (h *Handler) PrevPage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	v.PrevPage()
	h.writeGallery(w, v)
}

// Refresh handles POST /{scope}/refresh.
//
//	@Summary		Refetch the collection
//	@Tags			gallery
//	@Produce		json
//	@Success		200	{object}	GalleryResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	if err := v.Refresh(r.Context()); err != nil {
		writeError(w, "refresh", err)
		return
	}
	h.writeGallery(w, v)
}

// ToggleLike handles POST /{scope}/creations/{id}/like.
//
//	@Summary		Toggle the current user's like
//	@Description	The change is applied locally at once and reconciled in the background. Pass wait=true to block until the remote answered.
//	@Tags			creations
//	@Produce		json
//	@Param			id		path		string	true	"Creation id"
//	@Param			wait	query		bool	false	"Wait for reconciliation"
//	@Success		200		{object}	PendingResponse
//	@Success		202		{object}	PendingResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/creations/{id}/like [post]
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	p, err := v.ToggleLike(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "toggle like", err)
		return
	}
	h.writePending(w, r, p)
}

// DeleteCreation handles DELETE /{scope}/creations/{id}.
//
//	@Summary		Delete a creation
//	@Tags			creations
//	@Produce		json
//	@Param			id		path		string	true	"Creation id"
//	@Param			wait	query		bool	false	"Wait for reconciliation"
//	@Success		200		{object}	PendingResponse
//	@Success		202		{object}	PendingResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/creations/{id} [delete]
func (h *Handler) DeleteCreation(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	p, err := v.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete creation", err)
		return
	}
	h.writePending(w, r, p)
}

func (h *Handler) writePending(w http.ResponseWriter, r *http.Request, p *mutation.Pending) {
	resp := PendingResponse{ID: p.ID, Kind: p.Kind}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	err := p.Wait(r.Context())
	if err != nil && r.Context().Err() != nil {
		return
	}
	resp.Settled = true
	if err != nil {
		resp.Error = apperr.UserMessage(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportCreation handles POST /{scope}/creations/{id}/export.
//
//	@Summary		Save a creation through the configured export destination
//	@Tags			creations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Creation id"
//	@Param			body	body		ExportRequest	false	"File name override"
//	@Success		200		{object}	Receipt
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/creations/{id}/export [post]
func (h *Handler) ExportCreation(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req ExportRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	receipt, err := v.ExportAs(r.Context(), chi.URLParam(r, "id"), req.Filename)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Search handles GET /{scope}/search.
//
//	@Summary		Search the cached collection
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string][]SearchResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := v.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
