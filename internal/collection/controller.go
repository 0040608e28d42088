// Package collection binds the store, the view engine, the mutation
// coordinator, the lightbox and the export routine for one mounted view.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/cache"
	"github.com/starford/atelier/internal/export"
	"github.com/starford/atelier/internal/gallery"
	"github.com/starford/atelier/internal/generate"
	"github.com/starford/atelier/internal/lightbox"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/mutation"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/remote"
	"github.com/starford/atelier/internal/store"
	"github.com/starford/atelier/internal/telemetry"
)

// Remote is the part of the remote API a mounted view talks to.
type Remote interface {
	mutation.Remote
	export.Fetcher
	generate.Generator
	ListCreations(ctx context.Context, scope remote.Scope) ([]models.Artifact, error)
}

// Cache persists the last good fetch of each scope.
type Cache interface {
	Save(scope string, items []models.Artifact, fetchedAt time.Time) (bool, error)
	Load(scope string) (*cache.Snapshot, error)
	Search(scope, query string, limit int) ([]cache.SearchResult, error)
}

// Options configures a Controller.
type Options struct {
	Scope    remote.Scope
	UserID   string
	PageSize int
	// Cache is optional. Without it a failed fetch leaves the store as is.
	Cache Cache
	// Saver receives exports. Without it Export fails with ErrWriteFailed.
	Saver       export.Saver
	Loader      lightbox.Loader
	CallTimeout time.Duration
	Notices     notice.Sink
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

// View is what a surface renders for the current page.
type View struct {
	Scope     remote.Scope   `json:"scope"`
	Filter    models.Filter  `json:"filter"`
	Page      gallery.Page   `json:"page"`
	Window    []int          `json:"window"`
	CanPrev   bool           `json:"can_prev"`
	CanNext   bool           `json:"can_next"`
	Total     int            `json:"total"`
	Stale     bool           `json:"stale"`
	FetchedAt time.Time      `json:"fetched_at,omitzero"`
	Lightbox  lightbox.State `json:"lightbox"`
}

// Controller is one mounted gallery view. It is safe for concurrent use.
type Controller struct {
	scope   remote.Scope
	userID  string
	remote  Remote
	cache   Cache
	sink    notice.Sink
	metrics *telemetry.Metrics
	logger  *slog.Logger

	store    *store.Store
	coord    *mutation.Coordinator
	nav      *lightbox.Navigator
	exporter *export.Exporter

	mu        sync.Mutex
	view      gallery.ViewState
	stale     bool
	fetchedAt time.Time
	mounted   bool
	loaded    bool
	detached  bool
	unsub     func()

	// feedMu orders lightbox feeds so a slow feed never overwrites a newer one.
	feedMu sync.Mutex
}

// New creates an unmounted controller.
func New(r Remote, opts Options) *Controller {
	if opts.Scope == "" {
		opts.Scope = remote.ScopeOwn
	}
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With(slog.String("scope", string(opts.Scope)))

	s := store.New()
	saver := opts.Saver
	if saver == nil {
		saver = noSaver{}
	}
	return &Controller{
		scope:   opts.Scope,
		userID:  opts.UserID,
		remote:  r,
		cache:   opts.Cache,
		sink:    opts.Notices,
		metrics: opts.Metrics,
		logger:  logger,
		store:   s,
		coord: mutation.New(s, r, mutation.Options{
			CallTimeout: opts.CallTimeout,
			Notices:     opts.Notices,
			Metrics:     opts.Metrics,
			Logger:      logger,
		}),
		nav: lightbox.New(lightbox.Options{
			Loader:  opts.Loader,
			Notices: opts.Notices,
			Metrics: opts.Metrics,
			Logger:  logger,
		}),
		exporter: export.New(r, saver,
			export.WithMetrics(opts.Metrics),
			export.WithLogger(logger),
		),
		view: gallery.NewViewState(opts.PageSize),
	}
}

// Scope returns the collection this controller shows.
func (c *Controller) Scope() remote.Scope { return c.scope }

// UserID is the acting user, empty for anonymous views.
func (c *Controller) UserID() string { return c.userID }

// Store exposes the artifact store for subscribers.
func (c *Controller) Store() *store.Store { return c.store }

// Lightbox exposes the navigator. Its list is the filtered collection.
func (c *Controller) Lightbox() *lightbox.Navigator { return c.nav }

// Mount subscribes to store changes and performs the initial fetch.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return apperr.ErrDetached
	}
	if !c.mounted {
		c.mounted = true
		c.unsub = c.store.Subscribe(func(uint64) { c.onStoreChange() })
	}
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Refresh refetches the collection. When the fetch fails and a cached
// snapshot exists, the snapshot is served and the view is marked stale; the
// call then succeeds. Otherwise the fetch error is returned.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.isDetached() {
		return apperr.ErrDetached
	}
	items, err := c.remote.ListCreations(ctx, c.scope)
	if c.isDetached() {
		return apperr.ErrDetached
	}
	if err != nil {
		notice.Error(c.sink, err)
		c.logger.Warn("collection: fetch failed", slog.String("error", err.Error()))
		if c.serveCached() {
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	c.mu.Lock()
	c.stale = false
	c.loaded = true
	c.fetchedAt = now
	c.mu.Unlock()
	c.coord.ApplyFetch(items)
	c.metrics.SetStoreSize(string(c.scope), c.store.Len())

	if c.cache != nil {
		if _, err := c.cache.Save(string(c.scope), c.store.Snapshot(), now); err != nil {
			c.logger.Warn("collection: cache save failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *Controller) serveCached() bool {
	if c.cache == nil {
		return false
	}
	snap, err := c.cache.Load(string(c.scope))
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			c.logger.Warn("collection: cache load failed", slog.String("error", err.Error()))
		}
		return false
	}
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return false
	}
	c.stale = true
	c.loaded = true
	c.fetchedAt = snap.FetchedAt
	c.mu.Unlock()

	c.coord.ApplyFetch(snap.Items)
	c.metrics.CacheFallback()
	c.metrics.SetStoreSize(string(c.scope), c.store.Len())
	notice.Info(c.sink, fmt.Sprintf("Showing saved creations from %s", snap.FetchedAt.Local().Format("Jan 2 15:04")))
	return true
}

// onStoreChange keeps the page valid and the lightbox list current.
func (c *Controller) onStoreChange() {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	items := c.store.Snapshot()
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.view.Reconcile(items)
	filtered := gallery.FilterItems(items, c.view.Filter)
	c.mu.Unlock()

	c.nav.SetItems(filtered)
}

// refeed pushes the filtered list to the lightbox after a filter change.
func (c *Controller) refeed() {
	c.onStoreChange()
}

// View derives the current page.
func (c *Controller) View() View {
	items := c.store.Snapshot()
	c.mu.Lock()
	vs := c.view
	stale, fetchedAt := c.stale, c.fetchedAt
	c.mu.Unlock()

	p := vs.Derive(items)
	return View{
		Scope:     c.scope,
		Filter:    vs.Filter,
		Page:      p,
		Window:    gallery.PageWindow(p.Page, p.TotalPages, gallery.DefaultWindowWidth),
		CanPrev:   p.Page > 1,
		CanNext:   p.Page < p.TotalPages,
		Total:     len(items),
		Stale:     stale,
		FetchedAt: fetchedAt,
		Lightbox:  c.nav.State(),
	}
}

// Page returns the current page of the filtered collection.
func (c *Controller) Page() gallery.Page { return c.View().Page }

// Window returns the page numbers to offer around the current page.
func (c *Controller) Window() []int { return c.View().Window }

// SetFilter changes the filter and resets to page 1.
func (c *Controller) SetFilter(f models.Filter) {
	c.mu.Lock()
	c.view.SetFilter(f)
	c.mu.Unlock()
	c.refeed()
}

// SetPage moves to page, or fails with ErrInvalidInput when it does not exist.
func (c *Controller) SetPage(page int) error {
	items := c.store.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.SetPage(items, page)
}

// NextPage advances one page. Reports whether the page changed.
func (c *Controller) NextPage() bool {
	items := c.store.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.NextPage(items)
}

// PrevPage goes back one page. Reports whether the page changed.
func (c *Controller) PrevPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.PrevPage()
}

// ToggleLike flips the current user's like on id.
func (c *Controller) ToggleLike(ctx context.Context, id string) (*mutation.Pending, error) {
	if c.userID == "" {
		return nil, apperr.Invalid("sign in to like creations")
	}
	return c.coord.ToggleLike(ctx, id, c.userID)
}

// Delete removes id optimistically.
func (c *Controller) Delete(ctx context.Context, id string) (*mutation.Pending, error) {
	return c.coord.Delete(ctx, id)
}

// OpenItem opens the lightbox on id within the filtered list.
func (c *Controller) OpenItem(id string) error {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	items := c.filtered()
	c.nav.SetItems(items)
	for i, a := range items {
		if a.ID == id && c.nav.OpenAt(i) {
			return nil
		}
	}
	return fmt.Errorf("creation %s is not in the current view: %w", id, apperr.ErrNotFound)
}

func (c *Controller) filtered() []models.Artifact {
	items := c.store.Snapshot()
	c.mu.Lock()
	f := c.view.Filter
	c.mu.Unlock()
	return gallery.FilterItems(items, f)
}

// Export saves the artifact id through the configured saver.
func (c *Controller) Export(ctx context.Context, id string) (*export.Receipt, error) {
	a, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	return c.exportArtifact(ctx, a, export.DefaultFilename(a))
}

// ExportAs is Export with an explicit file name.
func (c *Controller) ExportAs(ctx context.Context, id, filename string) (*export.Receipt, error) {
	a, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	if filename == "" {
		filename = export.DefaultFilename(a)
	}
	return c.exportArtifact(ctx, a, filename)
}

// ExportCurrent saves the item shown in the lightbox.
func (c *Controller) ExportCurrent(ctx context.Context) (*export.Receipt, error) {
	st := c.nav.State()
	if !st.Open || st.Item == nil {
		return nil, apperr.Invalid("lightbox is closed")
	}
	return c.exportArtifact(ctx, *st.Item, export.DefaultFilename(*st.Item))
}

func (c *Controller) exportArtifact(ctx context.Context, a models.Artifact, filename string) (*export.Receipt, error) {
	r, err := c.exporter.Export(ctx, export.SourceFor(a), filename)
	if err != nil {
		notice.Error(c.sink, err)
		return nil, err
	}
	notice.Success(c.sink, "Saved "+r.Filename)
	return r, nil
}

// Generate validates req, runs it remotely and refreshes the collection.
func (c *Controller) Generate(ctx context.Context, req generate.Request) (string, error) {
	if c.isDetached() {
		return "", apperr.ErrDetached
	}
	out, err := generate.Run(ctx, c.remote, req)
	if err != nil {
		notice.Error(c.sink, err)
		return "", err
	}
	notice.Success(c.sink, req.Kind().Label()+" generated")
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, apperr.ErrDetached) {
		c.logger.Warn("collection: refresh after generate", slog.String("error", err.Error()))
	}
	return out, nil
}

// Search looks up cached artifacts of this scope by text.
func (c *Controller) Search(query string, limit int) ([]cache.SearchResult, error) {
	if c.cache == nil {
		return nil, apperr.Invalid("search needs the local cache")
	}
	return c.cache.Search(string(c.scope), query, limit)
}

// Drain waits for queued mutations to settle.
func (c *Controller) Drain(ctx context.Context) error { return c.coord.Drain(ctx) }

// Unmount detaches the view. Outcomes still in flight are discarded without
// store writes or notices. Calling Unmount more than once is safe.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.coord.Detach()
	c.nav.Shutdown()
	c.logger.Debug("collection: unmounted")
}

// Mounted reports whether the view is mounted and not yet detached.
func (c *Controller) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted && !c.detached
}

// Loaded reports whether the view holds a collection, fetched or restored
// from the cache. A mounted view whose first fetch failed is not loaded.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded && !c.detached
}

func (c *Controller) isDetached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

type noSaver struct{}

func (noSaver) Trigger(string) (export.Trigger, error) {
	return nil, fmt.Errorf("no export destination configured: %w", apperr.ErrWriteFailed)
}
