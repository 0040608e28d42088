package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/atelier/internal/generate"
	"github.com/starford/atelier/internal/models"
)

const guideURI = "atelier://generation-guide"

// GenerationGuide describes the accepted generation parameters and the
// collection model for LLM consumers.
func GenerationGuide() string {
	var b strings.Builder
	b.WriteString("# Atelier Generation Guide\n\n")
	b.WriteString("Creations are stored remotely. Each has an id, a type, the prompt it was made from, ")
	b.WriteString("its content (markdown, or a URL for images) and the set of users who liked it.\n\n")

	b.WriteString("## Types\n\n")
	for _, k := range models.Kinds {
		fmt.Fprintf(&b, "- `%s` (%s)\n", k, k.Label())
	}

	b.WriteString("\n## Article lengths\n\n")
	for _, l := range generate.Lengths {
		fmt.Fprintf(&b, "- `%d`: %s\n", l.Words, l.Label)
	}

	b.WriteString("\n## Blog title categories\n\n")
	b.WriteString(list(generate.Categories))

	b.WriteString("\n## Image styles\n\n")
	b.WriteString(list(generate.Styles))

	b.WriteString("\n## Image edits\n\n")
	b.WriteString("- `remove-background` takes an image.\n")
	b.WriteString("- `remove-object` takes an image and a single-word object name, e.g. `car`.\n")
	b.WriteString("- Images are passed as an http(s) URL or a base64 `data:` URI (png, jpg, gif, webp).\n")
	return b.String()
}

func list(items []string) string {
	var b strings.Builder
	for _, s := range items {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}
