package export

import (
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/atelier/internal/models"
)

var (
	mimeToExt = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
		"text/markdown":   ".md",
		"text/plain":      ".txt",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// DefaultFilename is the suggested save name for an artifact.
func DefaultFilename(a models.Artifact) string {
	if a.Kind == models.KindImage {
		return "image.png"
	}
	if a.IsBinary() {
		return string(a.Kind) + "-" + SanitizeFilename(a.ID)
	}
	return string(a.Kind) + "-" + SanitizeFilename(a.ID) + ".md"
}

// SanitizeFilename strips path separators and unsafe characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." || name == "_" {
		name = uuid.New().String()
	}
	return name
}

// ExtensionFor maps a content type to a file extension, sniffing data when
// the type is unknown. Returns ".bin" as a last resort.
func ExtensionFor(contentType string, data []byte) string {
	mime := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if ext := mimeToExt[mime]; ext != "" {
		return ext
	}
	if len(data) > 0 {
		sniffed := strings.Split(http.DetectContentType(data), ";")[0]
		if ext := mimeToExt[sniffed]; ext != "" {
			return ext
		}
	}
	return ".bin"
}

// WithExtension returns a sanitized filename, appending an extension derived
// from the content type when name has none.
func WithExtension(name, contentType string, data []byte) string {
	if name == "" {
		name = uuid.New().String()
	}
	name = SanitizeFilename(name)
	if filepath.Ext(name) == "" {
		name += ExtensionFor(contentType, data)
	}
	return name
}
