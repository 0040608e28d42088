package api

import (
	"net/http"

	"github.com/starford/atelier/internal/lightbox"
)

// Lightbox handles GET /{scope}/lightbox.
//
//	@Summary		Current lightbox state
//	@Tags			lightbox
//	@Produce		json
//	@Success		200	{object}	LightboxState
//	@Security		BearerAuth
//	@Router			/{scope}/lightbox [get]
func (h *Handler) Lightbox(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.Lightbox().State())
}

// OpenLightbox handles POST /{scope}/lightbox/open.
//
//	@Summary		Open the lightbox on a creation of the filtered list
//	@Tags			lightbox
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenRequest	true	"Creation"
//	@Success		200		{object}	LightboxState
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/lightbox/open [post]
func (h *Handler) OpenLightbox(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req OpenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := v.OpenItem(req.ID); err != nil {
		writeError(w, "open lightbox", err)
		return
	}
	writeJSON(w, http.StatusOK, v.Lightbox().State())
}

// LightboxStep returns a handler for a parameterless transition such as
// next, prev or close. A transition that does not apply leaves the state
// unchanged and still answers 200.
func (h *Handler) LightboxStep(step func(*lightbox.Navigator) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := h.view(w, r)
		if !ok {
			return
		}
		step(v.Lightbox())
		writeJSON(w, http.StatusOK, v.Lightbox().State())
	}
}

// LightboxKey handles POST /{scope}/lightbox/key.
//
//	@Summary		Route a key press to the lightbox
//	@Tags			lightbox
//	@Accept			json
//	@Produce		json
//	@Param			body	body		KeyRequest	true	"Key name, e.g. ArrowLeft, ArrowRight, Escape"
//	@Success		200		{object}	LightboxState
//	@Security		BearerAuth
//	@Router			/{scope}/lightbox/key [post]
func (h *Handler) LightboxKey(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req KeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v.Lightbox().HandleKey(lightbox.ParseKeyName(req.Key))
	writeJSON(w, http.StatusOK, v.Lightbox().State())
}

// LightboxLoaded handles POST /{scope}/lightbox/loaded. Reports for an
// outdated generation are ignored.
//
//	@Summary		Report that lightbox media finished loading
//	@Tags			lightbox
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoadedRequest	true	"Load generation"
//	@Success		200		{object}	LightboxState
//	@Security		BearerAuth
//	@Router			/{scope}/lightbox/loaded [post]
func (h *Handler) LightboxLoaded(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	var req LoadedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v.Lightbox().MediaLoaded(req.Generation)
	writeJSON(w, http.StatusOK, v.Lightbox().State())
}

// LightboxExport handles POST /{scope}/lightbox/export.
//
//	@Summary		Save the creation shown in the lightbox
//	@Tags			lightbox
//	@Produce		json
//	@Success		200	{object}	Receipt
//	@Failure		400	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/{scope}/lightbox/export [post]
func (h *Handler) LightboxExport(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	receipt, err := v.ExportCurrent(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

var (
	stepNext  = (*lightbox.Navigator).Next
	stepPrev  = (*lightbox.Navigator).Prev
	stepClose = (*lightbox.Navigator).Close
)
