// Package export saves an artifact's content to a destination: acquire the
// payload, stage it, fire a disposable save trigger, and release both on
// every exit path.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/checksum"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/telemetry"
)

// Source is either a reference URL or an in-memory blob.
type Source struct {
	URL         string
	Data        []byte
	ContentType string
}

// FromURL references remote binary content.
func FromURL(u string) Source { return Source{URL: u} }

// FromBlob wraps content already in memory.
func FromBlob(data []byte, contentType string) Source {
	return Source{Data: data, ContentType: contentType}
}

// SourceFor picks the source of an artifact: binary artifacts are fetched,
// text artifacts are exported as markdown.
func SourceFor(a models.Artifact) Source {
	if a.IsBinary() {
		return FromURL(strings.TrimSpace(a.Content))
	}
	return FromBlob([]byte(a.Content), "text/markdown; charset=utf-8")
}

// Fetcher retrieves remote binary content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Payload is acquired content ready to be staged.
type Payload struct {
	Data        []byte
	ContentType string
}

// Receipt describes a completed export.
type Receipt struct {
	Filename    string `json:"filename"`
	Destination string `json:"destination"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
}

// Exporter runs the export routine.
type Exporter struct {
	fetcher Fetcher
	stager  Stager
	saver   Saver
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithStager replaces the default temp-file stager.
func WithStager(s Stager) Option { return func(e *Exporter) { e.stager = s } }

// WithMetrics records export outcomes.
func WithMetrics(m *telemetry.Metrics) Option { return func(e *Exporter) { e.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Exporter) { e.logger = l } }

// New creates an exporter that fetches with f and saves with s.
func New(f Fetcher, s Saver, opts ...Option) *Exporter {
	e := &Exporter{
		fetcher: f,
		stager:  TempStager{},
		saver:   s,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Export saves src under filename. Errors match apperr.ErrFetchFailed when
// the payload could not be acquired and apperr.ErrWriteFailed when the save
// could not be carried out.
func (e *Exporter) Export(ctx context.Context, src Source, filename string) (*Receipt, error) {
	r, err := e.export(ctx, src, filename)
	var size int64
	if r != nil {
		size = r.Size
	}
	e.metrics.Export(err, size)
	if err != nil {
		e.logger.Warn("export: failed", slog.String("filename", filename), slog.String("error", err.Error()))
		return nil, err
	}
	e.logger.Info("export: saved", slog.String("destination", r.Destination), slog.Int64("size", r.Size))
	return r, nil
}

func (e *Exporter) export(ctx context.Context, src Source, filename string) (*Receipt, error) {
	payload, err := e.acquire(ctx, src)
	if err != nil {
		return nil, err
	}
	filename = WithExtension(filename, payload.ContentType, payload.Data)

	staged, err := e.stager.Stage(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: stage: %w", apperr.ErrWriteFailed, err)
	}
	defer func() {
		if relErr := staged.Release(); relErr != nil {
			e.logger.Warn("export: release staged object", slog.String("error", relErr.Error()))
		}
	}()

	trigger, err := e.saver.Trigger(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: trigger: %w", apperr.ErrWriteFailed, err)
	}
	defer func() {
		if rmErr := trigger.Remove(); rmErr != nil {
			e.logger.Warn("export: remove trigger", slog.String("error", rmErr.Error()))
		}
	}()

	dest, err := trigger.Fire(ctx, staged)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrWriteFailed, err)
	}

	return &Receipt{
		Filename:    filename,
		Destination: dest,
		ContentType: payload.ContentType,
		Size:        int64(len(payload.Data)),
		Checksum:    checksum.Sum(payload.Data),
	}, nil
}

func (e *Exporter) acquire(ctx context.Context, src Source) (Payload, error) {
	switch {
	case src.URL != "":
		if e.fetcher == nil {
			return Payload{}, fmt.Errorf("%w: no fetcher configured", apperr.ErrFetchFailed)
		}
		data, ctype, err := e.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %w", apperr.ErrFetchFailed, err)
		}
		if ctype == "" {
			ctype = http.DetectContentType(data)
		}
		return Payload{Data: data, ContentType: ctype}, nil
	case src.Data != nil:
		ctype := src.ContentType
		if ctype == "" {
			ctype = http.DetectContentType(src.Data)
		}
		return Payload{Data: src.Data, ContentType: ctype}, nil
	default:
		return Payload{}, apperr.Invalid("export source has neither url nor data")
	}
}
