package content

import (
	"slices"
	"strings"
	"testing"

	"github.com/starford/atelier/internal/models"
)

func TestParse_FrontmatterTitleWins(t *testing.T) {
	p := Parse([]byte("---\ntitle: From FM\n---\n# Heading\n\nBody text here.\n"))
	if p.Title != "From FM" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Body != "# Heading\n\nBody text here.\n" {
		t.Errorf("body = %q", p.Body)
	}
}

func TestParse_FirstH1(t *testing.T) {
	p := Parse([]byte("## Intro\n\n# The **Real** Title\n\nText"))
	if p.Title != "The Real Title" {
		t.Errorf("title = %q", p.Title)
	}
	if len(p.Headings) != 2 || p.Headings[0].Level != 2 {
		t.Errorf("headings = %+v", p.Headings)
	}
}

func TestParse_InvalidFrontmatterIsBody(t *testing.T) {
	in := "---\n: bad: {{{\n---\nBody\n"
	p := Parse([]byte(in))
	if p.Frontmatter != nil || p.Body != in {
		t.Errorf("fm = %v body = %q", p.Frontmatter, p.Body)
	}
}

func TestParse_HeadingsInsideFenceIgnored(t *testing.T) {
	p := Parse([]byte("```\n# not a heading\n```\n\n# Real\n"))
	if len(p.Headings) != 1 || p.Title != "Real" {
		t.Errorf("headings = %+v", p.Headings)
	}
}

func TestExcerpt(t *testing.T) {
	body := "# Title\n\nFirst *paragraph* with a [link](https://x.io).\nSecond line.\n\nNext paragraph."
	got := excerpt(body, 160)
	if got != "First paragraph with a link. Second line." {
		t.Errorf("excerpt = %q", got)
	}
	long := excerpt(strings.Repeat("word ", 100), 20)
	if !strings.HasSuffix(long, "…") || len([]rune(long)) > 20 {
		t.Errorf("truncated = %q", long)
	}
}

func TestExtractLinks(t *testing.T) {
	got := extractLinks("[a](https://a.io) [b](/rel) [c](https://a.io) [d](http://d.io)")
	if !slices.Equal(got, []string{"https://a.io", "http://d.io"}) {
		t.Errorf("links = %v", got)
	}
}

func TestDescribe(t *testing.T) {
	img := models.Artifact{Kind: models.KindImage, Prompt: "  a  red\nfox ", Content: "https://cdn/x.png"}
	if p := Describe(img); p.Title != "a red fox" || p.Words != 0 {
		t.Errorf("image preview = %+v", p)
	}
	art := models.Artifact{Kind: models.KindArticle, Content: "no headings here"}
	if p := Describe(art); p.Title != "Article" || p.Words != 3 {
		t.Errorf("article preview = %+v", p)
	}
}
