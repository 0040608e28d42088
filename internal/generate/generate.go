// Package generate validates creation requests and turns them into calls
// against the remote generation endpoints.
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/remote"
)

// Request is one generation action.
type Request interface {
	// Kind is the artifact kind the remote stores the result as.
	Kind() models.Kind
	// Validate rejects bad input before any remote call.
	Validate() error
	// Call builds the remote call. Validate must have succeeded.
	Call() remote.GenerateCall
	// Filename is the suggested export name for the result.
	Filename() string
}

// Lengths lists the accepted article lengths with their labels.
var Lengths = []struct {
	Words int
	Label string
}{
	{800, "Short (500-800 words)"},
	{1200, "Medium (800-1200 words)"},
	{1600, "Long (1200+ words)"},
}

// Categories lists the accepted blog title categories.
var Categories = []string{
	"General", "Technology", "Business", "Health", "Lifestyle", "Education",
	"Travel", "Food", "Entertainment", "Science", "Sports",
}

// Styles lists the accepted image styles.
var Styles = []string{
	"Realistic", "Ghibli", "Anime", "Cartoon", "Fantasy", "3D", "Portrait",
	"Pixel Art", "Cyberpunk", "Sci-Fi", "Minimalist", "Abstract",
}

// Article asks for a markdown article.
type Article struct {
	Topic string
	Words int
}

func (Article) Kind() models.Kind { return models.KindArticle }
func (Article) Filename() string  { return "article.md" }

func (r Article) Validate() error {
	r.Topic = strings.TrimSpace(r.Topic)
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Topic, validation.Required),
		validation.Field(&r.Words, validation.Required, validation.In(lengthValues()...)),
	))
}

func (r Article) Call() remote.GenerateCall {
	return remote.GenerateCall{
		Path: "/api/ai/generate-article",
		Fields: map[string]any{
			"prompt": fmt.Sprintf("Write an article on the topic: \"%s\" with a length of %d words.", strings.TrimSpace(r.Topic), r.Words),
			"length": r.Words,
		},
	}
}

// BlogTitle asks for title suggestions in a category.
type BlogTitle struct {
	Keyword  string
	Category string
}

func (BlogTitle) Kind() models.Kind { return models.KindBlogTitle }
func (BlogTitle) Filename() string  { return "blog-titles.md" }

func (r BlogTitle) Validate() error {
	r.Keyword = strings.TrimSpace(r.Keyword)
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Keyword, validation.Required),
		validation.Field(&r.Category, validation.Required, validation.In(toAny(Categories)...)),
	))
}

func (r BlogTitle) Call() remote.GenerateCall {
	return remote.GenerateCall{
		Path: "/api/ai/generate-blog-title",
		Fields: map[string]any{
			"prompt": fmt.Sprintf("Generate some catchy blog titles for the topic: \"%s\" in the category of \"%s\".", strings.TrimSpace(r.Keyword), r.Category),
		},
	}
}

// Image asks for a generated image, optionally published to the community.
type Image struct {
	Description string
	Style       string
	Publish     bool
}

func (Image) Kind() models.Kind { return models.KindImage }
func (Image) Filename() string  { return "generated-image.png" }

func (r Image) Validate() error {
	r.Description = strings.TrimSpace(r.Description)
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.Description, validation.Required),
		validation.Field(&r.Style, validation.Required, validation.In(toAny(Styles)...)),
	))
}

func (r Image) Call() remote.GenerateCall {
	return remote.GenerateCall{
		Path: "/api/ai/generate-image",
		Fields: map[string]any{
			"prompt":  fmt.Sprintf("Generate an image based on the description: \"%s\" in the style of \"%s\".", strings.TrimSpace(r.Description), r.Style),
			"publish": r.Publish,
		},
	}
}

// RemoveBackground uploads an image and asks for its background removed.
type RemoveBackground struct {
	ImagePath string
}

func (RemoveBackground) Kind() models.Kind { return models.KindImage }
func (RemoveBackground) Filename() string  { return "image.png" }

func (r RemoveBackground) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.ImagePath, validation.Required, validation.By(readableFile)),
	))
}

func (r RemoveBackground) Call() remote.GenerateCall {
	return remote.GenerateCall{
		Path:  "/api/ai/remove-image-background",
		Files: map[string]string{"image": r.ImagePath},
	}
}

// RemoveObject uploads an image and names a single object to erase from it.
type RemoveObject struct {
	ImagePath string
	Object    string
}

func (RemoveObject) Kind() models.Kind { return models.KindImage }
func (RemoveObject) Filename() string  { return "processed-image.png" }

// ErrSingleObject is the message shown when more than one word is given.
var ErrSingleObject = errors.New("Please enter a single object name to remove.") //nolint:staticcheck // shown verbatim to the user

func (r RemoveObject) Validate() error {
	r.Object = strings.TrimSpace(r.Object)
	if err := invalid(validation.ValidateStruct(&r,
		validation.Field(&r.ImagePath, validation.Required, validation.By(readableFile)),
		validation.Field(&r.Object, validation.Required),
	)); err != nil {
		return err
	}
	if len(strings.Fields(r.Object)) != 1 {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, ErrSingleObject)
	}
	return nil
}

func (r RemoveObject) Call() remote.GenerateCall {
	return remote.GenerateCall{
		Path:   "/api/ai/remove-image-object",
		Fields: map[string]any{"object": strings.TrimSpace(r.Object)},
		Files:  map[string]string{"image": r.ImagePath},
	}
}

// ResumeReview uploads a resume for review.
type ResumeReview struct {
	ResumePath string
}

func (ResumeReview) Kind() models.Kind { return models.KindResumeReview }
func (ResumeReview) Filename() string  { return "resume-review.md" }

func (r ResumeReview) Validate() error {
	return invalid(validation.ValidateStruct(&r,
		validation.Field(&r.ResumePath, validation.Required, validation.By(readableFile)),
	))
}

func (r ResumeReview) Call() remote.GenerateCall {
	return remote.GenerateCall{
		Path:  "/api/ai/resume-review",
		Files: map[string]string{"resume": r.ResumePath},
	}
}

// Generator performs a generation call.
type Generator interface {
	Generate(ctx context.Context, call remote.GenerateCall) (string, error)
}

// Run validates req and sends it, returning the produced content.
func Run(ctx context.Context, g Generator, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return g.Generate(ctx, req.Call())
}

func readableFile(value any) error {
	p, _ := value.(string)
	if p == "" {
		return nil
	}
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("cannot read %s", filepath.Base(p))
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filepath.Base(p))
	}
	return nil
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
}

func lengthValues() []any {
	out := make([]any, len(Lengths))
	for i, l := range Lengths {
		out[i] = l.Words
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
