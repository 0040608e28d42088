// Package sse implements a Server-Sent Events broker that streams notices,
// collection changes and lightbox state to connected surfaces.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/atelier/internal/lightbox"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/store"
)

// Event types emitted by the broker.
const (
	TypeNotice         = "notice"
	TypeStoreChanged   = "store.changed"
	TypeGalleryUpdated = "gallery.updated"
	TypeLightbox       = "lightbox.state"
)

const clientBuffer = 64

// Event is one message for connected surfaces. An empty Scope reaches every
// client; otherwise only clients subscribed to that scope or to all scopes.
type Event struct {
	Type  string
	Scope string
	Data  any
}

type client struct {
	ch    chan []byte
	scope string
}

type storeChange struct {
	scope   string
	version uint64
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets how often idle streams get a comment line so proxies
// keep them open. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// Broker fans events out to SSE clients.
//
// Concurrency model: a single internal event loop (goroutine) owns the client
// set, the event sequence and the per-scope gallery throttle. Public methods
// talk to the loop over channels, so no mutexes are required.
type Broker struct {
	galleryMin time.Duration
	heartbeat  time.Duration

	subscribeCh   chan client
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	storeCh       chan storeChange
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. At most one gallery.updated event per
// scope is sent per galleryThrottle; store.changed is never throttled.
func NewBroker(galleryThrottle time.Duration, opts ...Option) *Broker {
	if galleryThrottle <= 0 {
		galleryThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		galleryMin:    galleryThrottle,
		heartbeat:     15 * time.Second,
		subscribeCh:   make(chan client),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		storeCh:       make(chan storeChange, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastGallery := make(map[string]time.Time)
	var seq uint64

	broadcast := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		raw := fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload)

		for ch, scope := range clients {
			if ev.Scope != "" && scope != "" && scope != ev.Scope {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case c := <-b.subscribeCh:
			clients[c.ch] = c.scope

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			broadcast(ev)

		case sc := <-b.storeCh:
			broadcast(Event{
				Type:  TypeStoreChanged,
				Scope: sc.scope,
				Data:  map[string]any{"scope": sc.scope, "version": sc.version},
			})
			if now := time.Now(); now.Sub(lastGallery[sc.scope]) >= b.galleryMin {
				lastGallery[sc.scope] = now
				broadcast(Event{Type: TypeGalleryUpdated, Scope: sc.scope, Data: map[string]string{"scope": sc.scope}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. Later calls on the
// broker are no-ops.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client for scope ("" for every scope) and returns its
// channel of encoded messages.
func (b *Broker) Subscribe(scope string) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- client{ch: ch, scope: scope}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues an event for the connected clients.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishStoreChange publishes a store version bump and a throttled
// gallery.updated event for scope.
func (b *Broker) PublishStoreChange(scope string, version uint64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.storeCh <- storeChange{scope: scope, version: version}:
	case <-b.stopped:
	}
}

// Notify makes the broker a notice.Sink. Notices reach every client.
func (b *Broker) Notify(n notice.Notice) {
	b.Publish(Event{Type: TypeNotice, Data: n})
}

// Attach streams the changes of one mounted view. The returned detach is
// idempotent.
func (b *Broker) Attach(scope string, s *store.Store, nav *lightbox.Navigator) (detach func()) {
	cancelStore := s.Subscribe(func(v uint64) { b.PublishStoreChange(scope, v) })
	cancelNav := func() {}
	if nav != nil {
		cancelNav = nav.OnChange(func(st lightbox.State) {
			b.Publish(Event{Type: TypeLightbox, Scope: scope, Data: map[string]any{"scope": scope, "state": st}})
		})
	}
	return func() {
		cancelStore()
		cancelNav()
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?scope=own]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("scope"))
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
