// Package gallery derives the visible page of a collection from the full
// artifact list and the current view parameters.
package gallery

import (
	"fmt"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/models"
)

const (
	DefaultPageSize    = 10
	DefaultWindowWidth = 5
)

// Page is one derived page of a filtered collection.
type Page struct {
	Items         []models.Artifact `json:"items"`
	Page          int               `json:"page"`
	TotalPages    int               `json:"total_pages"`
	FilteredCount int               `json:"filtered_count"`
}

// FilterItems returns the artifacts matching f in their original order.
func FilterItems(items []models.Artifact, f models.Filter) []models.Artifact {
	out := make([]models.Artifact, 0, len(items))
	for _, a := range items {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// TotalPages returns ceil(n/pageSize) with a minimum of 1.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if n <= 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}

// DerivePage filters items and slices out page (1-based). A page outside
// [1, TotalPages] yields no items.
func DerivePage(items []models.Artifact, f models.Filter, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	filtered := FilterItems(items, f)
	p := Page{
		Items:         []models.Artifact{},
		Page:          page,
		TotalPages:    TotalPages(len(filtered), pageSize),
		FilteredCount: len(filtered),
	}
	if page < 1 || page > p.TotalPages {
		return p
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(filtered))
	if start < end {
		p.Items = filtered[start:end]
	}
	return p
}

// PageWindow returns the page numbers to show around current, keeping the
// width stable near either boundary.
func PageWindow(current, total, width int) []int {
	if width <= 0 {
		width = DefaultWindowWidth
	}
	total = max(1, total)
	start := max(1, current-width/2)
	end := min(total, start+width-1)
	start = max(1, end-width+1)

	out := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out
}

// ViewState holds the filter and page of one mounted view.
type ViewState struct {
	Filter   models.Filter `json:"filter"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// NewViewState starts at page 1 of all artifacts.
func NewViewState(pageSize int) ViewState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return ViewState{Filter: models.FilterAll, Page: 1, PageSize: pageSize}
}

// SetFilter changes the filter and always resets to page 1.
func (v *ViewState) SetFilter(f models.Filter) {
	v.Filter = f
	v.Page = 1
}

// SetPage moves to page if it exists for items.
func (v *ViewState) SetPage(items []models.Artifact, page int) error {
	total := TotalPages(len(FilterItems(items, v.Filter)), v.PageSize)
	if page < 1 || page > total {
		return fmt.Errorf("%w: page %d out of range [1, %d]", apperr.ErrInvalidInput, page, total)
	}
	v.Page = page
	return nil
}

// NextPage advances one page unless already on the last. Reports whether it moved.
func (v *ViewState) NextPage(items []models.Artifact) bool {
	total := TotalPages(len(FilterItems(items, v.Filter)), v.PageSize)
	if v.Page >= total {
		return false
	}
	v.Page++
	return true
}

// PrevPage goes back one page unless already on the first.
func (v *ViewState) PrevPage() bool {
	if v.Page <= 1 {
		return false
	}
	v.Page--
	return true
}

// Reconcile resets the page to 1 when it no longer exists for items, e.g.
// after a refetch or delete shrank the collection.
func (v *ViewState) Reconcile(items []models.Artifact) bool {
	total := TotalPages(len(FilterItems(items, v.Filter)), v.PageSize)
	if v.Page >= 1 && v.Page <= total {
		return false
	}
	v.Page = 1
	return true
}

// Derive computes the current page of items.
func (v ViewState) Derive(items []models.Artifact) Page {
	return DerivePage(items, v.Filter, v.Page, v.PageSize)
}
