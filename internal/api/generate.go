package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/atelier/internal/generate"
)

const maxUploadBytes = 50 << 20 // 50 MB

// GenerateRequest is the JSON body of text and image generation.
type GenerateRequest struct {
	Topic       string `json:"topic,omitempty" example:"The future of AI"`
	Words       int    `json:"length,omitempty" example:"800"`
	Keyword     string `json:"keyword,omitempty" example:"gardening"`
	Category    string `json:"category,omitempty" example:"Lifestyle"`
	Description string `json:"description,omitempty" example:"a fox in the snow"`
	Style       string `json:"style,omitempty" example:"Ghibli"`
	Publish     bool   `json:"publish,omitempty"`
}

// GenerateResponse carries the produced content.
type GenerateResponse struct {
	Kind    string `json:"type" example:"article" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// UploadHandler turns generation requests into calls on the own view.
// Uploaded files are staged under dir for the duration of the call.
type UploadHandler struct {
	svc *Service
	dir string
}

// NewUploadHandler creates a handler staging uploads under dir, or the
// system temp dir when dir is empty.
func NewUploadHandler(svc *Service, dir string) *UploadHandler {
	return &UploadHandler{svc: svc, dir: dir}
}

// Generate handles POST /generate/{kind}.
//
//	@Summary		Generate a creation
//	@Description	article, blog-title and image take a JSON body. remove-background, remove-object and resume-review take multipart form data with the file in "image" or "resume".
//	@Tags			generate
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			kind	path		string			true	"Generator"	Enums(article, blog-title, image, remove-background, remove-object, resume-review)
//	@Param			body	body		GenerateRequest	false	"Text and image parameters"
//	@Success		201		{object}	GenerateResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/generate/{kind} [post]
func (h *UploadHandler) Generate(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Own()
	if err != nil {
		writeError(w, "generate", err)
		return
	}

	var req generate.Request
	switch kind := chi.URLParam(r, "kind"); kind {
	case "article", "blog-title", "image":
		var body GenerateRequest
		if !decodeJSON(w, r, &body) {
			return
		}
		req = jsonRequest(kind, body)
	case "remove-background", "remove-object", "resume-review":
		field := "image"
		if kind == "resume-review" {
			field = "resume"
		}
		path, cleanup, ok := h.stage(w, r, field)
		if !ok {
			return
		}
		defer cleanup()
		req = uploadRequest(kind, path, r.FormValue("object"))
	default:
		writeJSON(w, http.StatusNotFound, errorBody(fmt.Sprintf("unknown generator %q", kind)))
		return
	}

	out, err := v.Generate(r.Context(), req)
	if err != nil {
		writeError(w, "generate", err)
		return
	}
	writeJSON(w, http.StatusCreated, GenerateResponse{Kind: string(req.Kind()), Content: out})
}

func jsonRequest(kind string, b GenerateRequest) generate.Request {
	switch kind {
	case "article":
		return generate.Article{Topic: b.Topic, Words: b.Words}
	case "blog-title":
		return generate.BlogTitle{Keyword: b.Keyword, Category: b.Category}
	default:
		return generate.Image{Description: b.Description, Style: b.Style, Publish: b.Publish}
	}
}

func uploadRequest(kind, path, object string) generate.Request {
	switch kind {
	case "remove-background":
		return generate.RemoveBackground{ImagePath: path}
	case "remove-object":
		return generate.RemoveObject{ImagePath: path, Object: object}
	default:
		return generate.ResumeReview{ResumePath: path}
	}
}

// stage copies the multipart file in field to a private temp file.
func (h *UploadHandler) stage(w http.ResponseWriter, r *http.Request, field string) (string, func(), bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return "", nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("missing '%s' field in multipart form", field)))
		return "", nil, false
	}
	defer file.Close()

	dir, err := os.MkdirTemp(h.dir, "upload-*")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create upload dir"))
		return "", nil, false
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	dst, err := os.Create(filepath.Join(dir, uploadName(header.Filename)))
	if err != nil {
		cleanup()
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create file"))
		return "", nil, false
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		cleanup()
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return "", nil, false
	}
	if err := dst.Close(); err != nil {
		cleanup()
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return "", nil, false
	}
	return dst.Name(), cleanup, true
}

// uploadName keeps the base name of a client file name. The remote sees it
// as the multipart file name.
func uploadName(name string) string {
	cleaned := filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if cleaned == "." || cleaned == "/" || cleaned == ".." || cleaned == "" {
		return "upload"
	}
	return cleaned
}
