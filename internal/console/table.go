// Package console renders gallery views for terminal use: a page table and
// an interactive lightbox driven by raw key input.
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/starford/atelier/internal/cache"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/content"
	"github.com/starford/atelier/internal/models"
)

const titleWidth = 48

// RenderPage writes the current page of v as a table. Items liked by userID
// are marked.
func RenderPage(w io.Writer, v collection.View, userID string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(style())
	t.AppendHeader(table.Row{"ID", "Type", "Title", "Likes", "Shared", "Created"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: titleWidth},
		{Name: "Likes", Align: text.AlignRight},
	})

	for _, a := range v.Page.Items {
		t.AppendRow(table.Row{
			a.ID,
			a.Kind.Label(),
			content.Describe(a).Title,
			likes(a, userID),
			yesNo(a.Published),
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	if len(v.Page.Items) == 0 {
		t.AppendRow(table.Row{"", "", "No creations yet", "", "", ""})
	}

	t.AppendFooter(table.Row{"", "", footer(v), "", "", ""})
	t.Render()
}

// RenderSearch writes search hits with their snippets.
func RenderSearch(w io.Writer, results []cache.SearchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(style())
	t.AppendHeader(table.Row{"ID", "Type", "Match"})
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Match", WidthMax: 72}})
	for _, r := range results {
		t.AppendRow(table.Row{r.ID, r.Kind.Label(), r.Snippet})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d results", len(results))})
	t.Render()
}

// style is StyleLight with footers left as written.
func style() table.Style {
	st := table.StyleLight
	st.Format.Footer = text.FormatDefault
	return st
}

func likes(a models.Artifact, userID string) string {
	n := strconv.Itoa(a.LikedBy.Len())
	if a.LikedByUser(userID) {
		return "♥ " + n
	}
	return n
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func footer(v collection.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "page %d/%d", v.Page.Page, v.Page.TotalPages)
	if len(v.Window) > 1 {
		nums := make([]string, len(v.Window))
		for i, n := range v.Window {
			if n == v.Page.Page {
				nums[i] = "[" + strconv.Itoa(n) + "]"
			} else {
				nums[i] = strconv.Itoa(n)
			}
		}
		b.WriteString("  " + strings.Join(nums, " "))
	}
	fmt.Fprintf(&b, "  %d of %d creations (%s)", v.Page.FilteredCount, v.Total, v.Filter.Label())
	if v.Stale {
		fmt.Fprintf(&b, "  offline copy from %s", v.FetchedAt.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}
