// Package lightbox implements the modal single-item viewer as a state
// machine over the gallery's filtered list.
package lightbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/telemetry"
)

// Event is a state machine input.
type Event string

const (
	EventOpen        Event = "open"
	EventNext        Event = "next"
	EventPrev        Event = "prev"
	EventClose       Event = "close"
	EventMediaLoaded Event = "media_loaded"
	EventItems       Event = "items"
)

// State is a snapshot of the navigator. Closed when Open is false.
type State struct {
	Open       bool             `json:"open"`
	Index      int              `json:"index"`
	MediaReady bool             `json:"media_ready"`
	Generation uint64           `json:"generation"`
	Count      int              `json:"count"`
	CanPrev    bool             `json:"can_prev"`
	CanNext    bool             `json:"can_next"`
	Item       *models.Artifact `json:"item,omitempty"`
}

type input struct {
	index int
	gen   uint64
	items []models.Artifact
}

// Loader loads the binary content behind url into the viewport.
type Loader interface {
	Load(ctx context.Context, url string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, url string) error

func (f LoaderFunc) Load(ctx context.Context, url string) error { return f(ctx, url) }

// Options configures a Navigator.
type Options struct {
	// Loader is started after every transition into an open state. When nil,
	// binary items stay not-ready until MediaLoaded is called by the
	// rendering surface.
	Loader  Loader
	Notices notice.Sink
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Navigator is safe for concurrent use. Every input goes through apply.
type Navigator struct {
	loader  Loader
	sink    notice.Sink
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	items   []models.Artifact
	open    bool
	index   int
	ready   bool
	gen     uint64
	cancel  context.CancelFunc
	binding *Binding

	lmu       sync.Mutex
	listeners map[int]func(State)
	nextL     int
}

// New creates a closed navigator over an empty list.
func New(opts Options) *Navigator {
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Navigator{
		loader:    opts.Loader,
		sink:      opts.Notices,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		listeners: make(map[int]func(State)),
	}
}

// OpenAt opens the item at i with media not ready.
func (n *Navigator) OpenAt(i int) bool { return n.apply(EventOpen, input{index: i}) }

// Next moves to the following item when there is one.
func (n *Navigator) Next() bool { return n.apply(EventNext, input{}) }

// Prev moves to the preceding item when there is one.
func (n *Navigator) Prev() bool { return n.apply(EventPrev, input{}) }

// Close closes the lightbox from any index.
func (n *Navigator) Close() bool { return n.apply(EventClose, input{}) }

// MediaLoaded marks media ready if gen is the current load generation.
func (n *Navigator) MediaLoaded(gen uint64) bool { return n.apply(EventMediaLoaded, input{gen: gen}) }

// HandleKey routes a key through the same transitions as the pointer controls.
func (n *Navigator) HandleKey(k Key) bool {
	switch k {
	case KeyLeft:
		return n.Prev()
	case KeyRight:
		return n.Next()
	case KeyEscape:
		return n.Close()
	default:
		return false
	}
}

// State returns the current snapshot.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stateLocked()
}

// SetItems replaces the underlying list. An open lightbox whose index is no
// longer valid closes; one whose current item changed reloads its media.
func (n *Navigator) SetItems(items []models.Artifact) {
	n.apply(EventItems, input{items: items})
}

// OnChange registers fn for every state change. The returned cancel is idempotent.
func (n *Navigator) OnChange(fn func(State)) (cancel func()) {
	n.lmu.Lock()
	id := n.nextL
	n.nextL++
	n.listeners[id] = fn
	n.lmu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			n.lmu.Lock()
			delete(n.listeners, id)
			n.lmu.Unlock()
		})
	}
}

// Shutdown closes the navigator, cancels any media load and releases the
// active key binding.
func (n *Navigator) Shutdown() {
	n.mu.Lock()
	b := n.binding
	n.mu.Unlock()
	n.Close()
	if b != nil {
		b.Release()
	}
}

func (n *Navigator) apply(ev Event, in input) bool {
	n.mu.Lock()
	wasOpen := n.open
	ok, reload := n.transition(ev, in)
	if !ok {
		n.mu.Unlock()
		return false
	}

	var load func()
	if reload {
		load = n.startLoadLocked()
	}
	var release *Binding
	if wasOpen && !n.open && n.binding != nil {
		release, n.binding = n.binding, nil
	}
	st := n.stateLocked()
	n.mu.Unlock()

	n.metrics.LightboxTransition(string(ev))
	if release != nil {
		release.stop()
	}
	n.emit(st)
	if load != nil {
		load()
	}
	return true
}

// transition is the state machine. It must be called with mu held and
// reports whether the state changed and whether media must be (re)loaded.
func (n *Navigator) transition(ev Event, in input) (changed, reload bool) {
	switch ev {
	case EventOpen:
		if in.index < 0 || in.index >= len(n.items) {
			return false, false
		}
		n.open, n.index, n.ready = true, in.index, false
		return true, true
	case EventNext:
		if !n.open || n.index+1 >= len(n.items) {
			return false, false
		}
		n.index++
		n.ready = false
		return true, true
	case EventPrev:
		if !n.open || n.index-1 < 0 {
			return false, false
		}
		n.index--
		n.ready = false
		return true, true
	case EventClose:
		if !n.open {
			return false, false
		}
		n.closeLocked()
		return true, false
	case EventMediaLoaded:
		if !n.open || n.ready || in.gen != n.gen {
			return false, false
		}
		n.ready = true
		return true, false
	case EventItems:
		var prevID string
		if n.open {
			prevID = n.items[n.index].ID
		}
		n.items = in.items
		switch {
		case !n.open:
			return true, false
		case n.index >= len(n.items):
			n.closeLocked()
			return true, false
		case n.items[n.index].ID != prevID:
			n.ready = false
			return true, true
		}
		return true, false
	}
	return false, false
}

func (n *Navigator) closeLocked() {
	n.open, n.index, n.ready = false, 0, false
	n.gen++
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
}

// startLoadLocked bumps the generation and returns the load to start once
// the lock is released.
func (n *Navigator) startLoadLocked() func() {
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.gen++
	gen := n.gen
	item := n.items[n.index]

	if !item.IsBinary() {
		return func() { n.MediaLoaded(gen) }
	}
	if n.loader == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	return func() {
		go func() {
			err := n.loader.Load(ctx, item.Content)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				n.logger.Warn("lightbox: media load failed", slog.String("id", item.ID), slog.String("error", err.Error()))
				notice.Error(n.sink, fmt.Errorf("load media: %w", err))
				return
			}
			n.MediaLoaded(gen)
		}()
	}
}

func (n *Navigator) stateLocked() State {
	st := State{Count: len(n.items), Generation: n.gen}
	if !n.open {
		return st
	}
	item := n.items[n.index].Clone()
	st.Open = true
	st.Index = n.index
	st.MediaReady = n.ready
	st.CanPrev = n.index > 0
	st.CanNext = n.index+1 < len(n.items)
	st.Item = &item
	return st
}

func (n *Navigator) emit(st State) {
	n.lmu.Lock()
	fns := make([]func(State), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.lmu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
