package api

import (
	"time"

	"github.com/starford/atelier/internal/cache"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/content"
	"github.com/starford/atelier/internal/export"
	"github.com/starford/atelier/internal/lightbox"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/mutation"
)

// CreationItem is one artifact as rendered in a gallery card.
type CreationItem struct {
	ID        string      `json:"id" example:"42" validate:"required"`
	Kind      models.Kind `json:"type" example:"article" validate:"required"`
	Label     string      `json:"label" example:"Article"`
	Title     string      `json:"title" example:"The future of AI"`
	Excerpt   string      `json:"excerpt,omitempty"`
	Prompt    string      `json:"prompt"`
	Content   string      `json:"content"`
	Binary    bool        `json:"binary"`
	Likes     int         `json:"likes"`
	Liked     bool        `json:"liked"`
	Published bool        `json:"publish"`
	CreatedAt time.Time   `json:"created_at"`
}

// GalleryResponse is the current page of a mounted view.
type GalleryResponse struct {
	Scope       string         `json:"scope" example:"own" validate:"required"`
	Filter      models.Filter  `json:"filter" example:"all"`
	FilterLabel string         `json:"filter_label" example:"All Creations"`
	Items       []CreationItem `json:"items" validate:"required"`
	Page        int            `json:"page" example:"1"`
	TotalPages  int            `json:"total_pages" example:"3"`
	Filtered    int            `json:"filtered_count" example:"23"`
	Total       int            `json:"total" example:"23"`
	Window      []int          `json:"window"`
	CanPrev     bool           `json:"can_prev"`
	CanNext     bool           `json:"can_next"`
	Stale       bool           `json:"stale"`
	FetchedAt   time.Time      `json:"fetched_at,omitzero"`
}

// PendingResponse acknowledges an optimistic mutation.
type PendingResponse struct {
	ID      string        `json:"id" validate:"required"`
	Kind    mutation.Kind `json:"kind" example:"like"`
	Settled bool          `json:"settled"`
	Error   string        `json:"error,omitempty"`
}

// FilterRequest changes the filter of a view.
type FilterRequest struct {
	Filter string `json:"filter" example:"image" validate:"required"`
}

// PageRequest moves a view to a page.
type PageRequest struct {
	Page int `json:"page" example:"2" validate:"required"`
}

// ExportRequest optionally overrides the saved file name.
type ExportRequest struct {
	Filename string `json:"filename,omitempty" example:"sunset.png"`
}

// OpenRequest opens the lightbox on an artifact.
type OpenRequest struct {
	ID string `json:"id" example:"42" validate:"required"`
}

// KeyRequest routes a key press to the lightbox.
type KeyRequest struct {
	Key string `json:"key" example:"ArrowRight" validate:"required"`
}

// LoadedRequest reports that the media of a load generation finished.
type LoadedRequest struct {
	Generation uint64 `json:"generation" validate:"required"`
}

// LightboxState is the navigator state (aliased from the domain layer).
type LightboxState = lightbox.State

// Receipt is an export result (aliased from the domain layer).
type Receipt = export.Receipt

// SearchResult is a cached search hit (aliased from the domain layer).
type SearchResult = cache.SearchResult

func toItem(a models.Artifact, userID string) CreationItem {
	p := content.Describe(a)
	return CreationItem{
		ID:        a.ID,
		Kind:      a.Kind,
		Label:     a.Kind.Label(),
		Title:     p.Title,
		Excerpt:   p.Excerpt,
		Prompt:    a.Prompt,
		Content:   a.Content,
		Binary:    a.IsBinary(),
		Likes:     a.LikedBy.Len(),
		Liked:     userID != "" && a.LikedBy.Contains(userID),
		Published: a.Published,
		CreatedAt: a.CreatedAt,
	}
}

func toGallery(v collection.View, userID string) GalleryResponse {
	items := make([]CreationItem, 0, len(v.Page.Items))
	for _, a := range v.Page.Items {
		items = append(items, toItem(a, userID))
	}
	return GalleryResponse{
		Scope:       string(v.Scope),
		Filter:      v.Filter,
		FilterLabel: v.Filter.Label(),
		Items:       items,
		Page:        v.Page.Page,
		TotalPages:  v.Page.TotalPages,
		Filtered:    v.Page.FilteredCount,
		Total:       v.Total,
		Window:      v.Window,
		CanPrev:     v.CanPrev,
		CanNext:     v.CanNext,
		Stale:       v.Stale,
		FetchedAt:   v.FetchedAt,
	}
}
