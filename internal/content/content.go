// Package content derives previews from the markdown body of text artifacts.
package content

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/atelier/internal/models"
)

// ExcerptLength is the rune limit of Preview.Excerpt.
const ExcerptLength = 160

var (
	linkRe     = regexp.MustCompile(`\[([^\]]*)\]\((\S+?)\)`)
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*$`)
	emphasisRe = regexp.MustCompile("[*_`~]+")
	markerRe   = regexp.MustCompile(`^(?:[-+*>]|\d+\.)\s+`)
)

// Heading is one markdown heading.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Preview summarizes one artifact for list and detail views.
type Preview struct {
	Title       string         `json:"title"`
	Excerpt     string         `json:"excerpt,omitempty"`
	Headings    []Heading      `json:"headings,omitempty"`
	Links       []string       `json:"links,omitempty"`
	Words       int            `json:"words"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"-"`
}

// Describe builds a preview for a. Binary artifacts get a title derived from
// the prompt and no body analysis.
func Describe(a models.Artifact) Preview {
	if a.IsBinary() {
		return Preview{Title: fallbackTitle(a)}
	}
	p := Parse([]byte(a.Content))
	if p.Title == "" {
		p.Title = fallbackTitle(a)
	}
	return p
}

// Parse extracts frontmatter, headings, links and an excerpt from markdown.
func Parse(data []byte) Preview {
	fm, body := splitFrontmatter(data)
	headings := extractHeadings(body)
	return Preview{
		Title:       deriveTitle(fm, headings),
		Excerpt:     excerpt(body, ExcerptLength),
		Headings:    headings,
		Links:       extractLinks(body),
		Words:       len(strings.Fields(body)),
		Frontmatter: fm,
		Body:        body,
	}
}

// splitFrontmatter separates a leading YAML block between --- lines. Without
// a valid block the whole input is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, string(data)
	}
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return fm, body
}

func extractHeadings(body string) []Heading {
	var out []Heading
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(trimmed)
		if m == nil || m[2] == "" {
			continue
		}
		out = append(out, Heading{Level: len(m[1]), Text: plain(m[2])})
	}
	return out
}

// extractLinks returns deduplicated http(s) link targets in order of appearance.
func extractLinks(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range linkRe.FindAllStringSubmatch(body, -1) {
		target := m[2]
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// deriveTitle prefers a frontmatter title, then the first H1, then the first
// heading of any level.
func deriveTitle(fm map[string]any, headings []Heading) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	for _, h := range headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	if len(headings) > 0 {
		return headings[0].Text
	}
	return ""
}

// excerpt returns the first paragraph that is not a heading, flattened to
// plain text and cut at limit runes.
func excerpt(body string, limit int) string {
	var para []string
	flush := func() string { return plain(strings.Join(para, " ")) }
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		switch {
		case inFence, headingRe.MatchString(trimmed):
			continue
		case trimmed == "":
			if len(para) > 0 {
				return truncate(flush(), limit)
			}
		default:
			para = append(para, markerRe.ReplaceAllString(trimmed, ""))
		}
	}
	return truncate(flush(), limit)
}

func plain(s string) string {
	s = linkRe.ReplaceAllString(s, "$1")
	s = emphasisRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	cut := strings.TrimRight(string(r[:limit-1]), " ")
	return cut + "…"
}

func fallbackTitle(a models.Artifact) string {
	t := strings.Join(strings.Fields(a.Prompt), " ")
	if t == "" {
		return a.Kind.Label()
	}
	return truncate(t, 60)
}
