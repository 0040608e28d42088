// Package models defines the domain types for atelier.
package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/starford/atelier/internal/apperr"
)

// Kind is the content category of a generated artifact.
type Kind string

const (
	KindArticle      Kind = "article"
	KindBlogTitle    Kind = "blog-title"
	KindImage        Kind = "image"
	KindResumeReview Kind = "resume-review"
)

// Kinds lists every kind in the order the filter selector shows them.
var Kinds = []Kind{KindArticle, KindBlogTitle, KindImage, KindResumeReview}

// Label returns the display label of the kind.
func (k Kind) Label() string {
	switch k {
	case KindBlogTitle:
		return "Blog Title"
	case KindResumeReview:
		return "Resume Review"
	case "":
		return ""
	default:
		s := string(k)
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

// Valid reports whether k belongs to the closed set of kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Filter selects a kind or every artifact.
type Filter string

// FilterAll matches every artifact.
const FilterAll Filter = "all"

// Filters lists every selectable filter, "all" first.
func Filters() []Filter {
	out := []Filter{FilterAll}
	for _, k := range Kinds {
		out = append(out, Filter(k))
	}
	return out
}

// ParseFilter validates s. Empty input means FilterAll.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == string(FilterAll) {
		return FilterAll, nil
	}
	if !Kind(s).Valid() {
		return "", fmt.Errorf("%w: unknown filter %q", apperr.ErrInvalidInput, s)
	}
	return Filter(s), nil
}

// Matches reports whether a passes the filter.
func (f Filter) Matches(a Artifact) bool {
	return f == FilterAll || f == "" || Kind(f) == a.Kind
}

// Label returns the display label of the filter.
func (f Filter) Label() string {
	if f == FilterAll || f == "" {
		return "All Creations"
	}
	return Kind(f).Label()
}

// Artifact is one generated item as returned by the remote API.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Prompt    string    `json:"prompt"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	LikedBy   LikeSet   `json:"likes"`
	Published bool      `json:"publish"`
}

// Clone returns a deep copy of a.
func (a Artifact) Clone() Artifact {
	a.LikedBy = a.LikedBy.clone()
	return a
}

// IsBinary reports whether Content is a reference URL to binary content
// rather than inline markdown.
func (a Artifact) IsBinary() bool {
	if a.Kind == KindImage {
		return true
	}
	u, err := url.Parse(strings.TrimSpace(a.Content))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" && !strings.ContainsAny(a.Content, " \n")
}

// LikedByUser reports whether userID has liked a.
func (a Artifact) LikedByUser(userID string) bool {
	return a.LikedBy.Contains(userID)
}

// LikeSet is an ordered, duplicate-free set of user ids.
type LikeSet []string

// NewLikeSet builds a set from ids, dropping duplicates and empty ids.
func NewLikeSet(ids ...string) LikeSet {
	out := make(LikeSet, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Contains reports whether userID is in the set.
func (s LikeSet) Contains(userID string) bool {
	for _, id := range s {
		if id == userID {
			return true
		}
	}
	return false
}

// Toggle returns a new set with userID removed if present, appended otherwise.
func (s LikeSet) Toggle(userID string) LikeSet {
	if s.Contains(userID) {
		out := make(LikeSet, 0, len(s))
		for _, id := range s {
			if id != userID {
				out = append(out, id)
			}
		}
		return out
	}
	out := make(LikeSet, 0, len(s)+1)
	out = append(out, s...)
	return append(out, userID)
}

// Equal reports whether both sets hold the same ids in the same order.
func (s LikeSet) Equal(other LikeSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Len returns the like count.
func (s LikeSet) Len() int { return len(s) }

func (s LikeSet) clone() LikeSet {
	if s == nil {
		return LikeSet{}
	}
	out := make(LikeSet, len(s))
	copy(out, s)
	return out
}

// UnmarshalJSON de-duplicates ids on decode.
func (s *LikeSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewLikeSet(ids...)
	return nil
}

// MarshalJSON always emits an array, never null.
func (s LikeSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}
