// Package mutation applies like and delete actions to the store before the
// remote call settles, then reconciles with the outcome.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/store"
	"github.com/starford/atelier/internal/telemetry"
)

// Kind names a mutation.
type Kind string

const (
	KindLike   Kind = "like"
	KindDelete Kind = "delete"
)

// Remote is the subset of the remote API the coordinator reconciles against.
type Remote interface {
	ToggleLike(ctx context.Context, id string) (string, error)
	DeleteCreation(ctx context.Context, id string) (string, error)
}

// Options tunes a Coordinator.
type Options struct {
	// CallTimeout bounds each remote call. Zero means 30s.
	CallTimeout time.Duration
	Notices     notice.Sink
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

type laneKey struct {
	id   string
	kind Kind
}

type lane struct {
	queue []*task
}

type task struct {
	ctx    context.Context
	call   func(ctx context.Context) (string, error)
	settle func(msg string, err error) error
	p      *Pending
}

type likeKey struct {
	id, user string
}

// likeIntent tracks the toggles of one user on one artifact that the server
// has not answered yet. confirmed is the membership the server is known to
// hold, so the local value is confirmed flipped once per pending toggle.
type likeIntent struct {
	confirmed bool
	pending   int
}

func (li *likeIntent) local() bool { return li.confirmed != (li.pending%2 == 1) }

// Coordinator serializes remote calls per (artifact id, mutation kind) in
// the order they were issued. Different lanes run concurrently.
//
// It owns every optimistic write still awaiting the server, so fetched
// collections are rebased onto them through ApplyFetch.
type Coordinator struct {
	store   *store.Store
	remote  Remote
	timeout time.Duration
	sink    notice.Sink
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	lanes map[laneKey]*lane
	idle  chan struct{}

	// imu guards the intents and is held across the store writes they
	// describe.
	imu     sync.Mutex
	likes   map[likeKey]*likeIntent
	deletes map[string]int

	detached atomic.Bool
}

// New creates a coordinator writing to s and reconciling against r.
func New(s *store.Store, r Remote, opts Options) *Coordinator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Notices == nil {
		opts.Notices = notice.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		store:   s,
		remote:  r,
		timeout: opts.CallTimeout,
		sink:    opts.Notices,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		lanes:   make(map[laneKey]*lane),
		likes:   make(map[likeKey]*likeIntent),
		deletes: make(map[string]int),
	}
}

// ToggleLike flips userID in the like set of id locally and schedules the
// remote toggle. On failure the local change is reverted.
func (c *Coordinator) ToggleLike(ctx context.Context, id, userID string) (*Pending, error) {
	if id == "" || userID == "" {
		return nil, apperr.Invalid("toggle like needs an artifact id and a user id")
	}
	if c.detached.Load() {
		return nil, apperr.ErrDetached
	}

	key := likeKey{id, userID}
	c.imu.Lock()
	err := c.store.Update(id, func(a *models.Artifact) {
		li := c.likes[key]
		if li == nil {
			li = &likeIntent{confirmed: a.LikedBy.Contains(userID)}
			c.likes[key] = li
		}
		li.pending++
		a.LikedBy = withMember(a.LikedBy, userID, li.local())
	})
	c.imu.Unlock()
	if err != nil {
		return nil, err
	}

	p := newPending(id, KindLike)
	c.enqueue(ctx, laneKey{id, KindLike}, &task{
		p: p,
		call: func(ctx context.Context) (string, error) {
			return c.remote.ToggleLike(ctx, id)
		},
		settle: func(msg string, err error) error {
			c.settleLike(key, err == nil)
			if err == nil {
				if msg != "" {
					notice.Success(c.sink, msg)
				}
				c.metrics.MutationSettled(string(KindLike), telemetry.OutcomeSuccess, false)
				return nil
			}
			notice.Error(c.sink, err)
			c.metrics.MutationSettled(string(KindLike), telemetry.OutcomeFailure, true)
			return err
		},
	})
	return p, nil
}

// settleLike folds one answered toggle into the intent and writes the
// resulting membership. A rejected toggle leaves the confirmed value alone,
// so the store ends at what the server holds plus the toggles still pending,
// whatever fetches landed in between.
func (c *Coordinator) settleLike(key likeKey, accepted bool) {
	c.imu.Lock()
	defer c.imu.Unlock()

	li := c.likes[key]
	if li == nil {
		return
	}
	li.pending--
	if accepted {
		li.confirmed = !li.confirmed
	}
	want := li.local()
	if li.pending == 0 {
		delete(c.likes, key)
	}

	a, err := c.store.Get(key.id)
	if err != nil {
		c.logger.Debug("mutation: like reconcile skipped", slog.String("id", key.id), slog.String("error", err.Error()))
		return
	}
	if a.LikedBy.Contains(key.user) == want {
		return
	}
	_ = c.store.Update(key.id, func(a *models.Artifact) {
		a.LikedBy = withMember(a.LikedBy, key.user, want)
	})
}

func withMember(set models.LikeSet, user string, member bool) models.LikeSet {
	if set.Contains(user) == member {
		return set
	}
	return set.Toggle(user)
}

// Delete removes id locally and schedules the remote delete. On failure the
// artifact is reinserted at its former position.
func (c *Coordinator) Delete(ctx context.Context, id string) (*Pending, error) {
	if id == "" {
		return nil, apperr.Invalid("delete needs an artifact id")
	}
	if c.detached.Load() {
		return nil, apperr.ErrDetached
	}

	c.imu.Lock()
	removed, pos, err := c.store.Remove(id)
	if err == nil {
		c.deletes[id]++
	}
	c.imu.Unlock()
	if err != nil {
		return nil, err
	}

	p := newPending(id, KindDelete)
	c.enqueue(ctx, laneKey{id, KindDelete}, &task{
		p: p,
		call: func(ctx context.Context) (string, error) {
			return c.remote.DeleteCreation(ctx, id)
		},
		settle: func(msg string, err error) error {
			c.imu.Lock()
			defer c.imu.Unlock()
			if c.deletes[id]--; c.deletes[id] <= 0 {
				delete(c.deletes, id)
			}
			if err == nil {
				if msg == "" {
					msg = "Creation deleted"
				}
				notice.Success(c.sink, msg)
				c.metrics.MutationSettled(string(KindDelete), telemetry.OutcomeSuccess, false)
				return nil
			}
			if _, insErr := c.store.InsertAt(pos, removed); insErr != nil {
				c.logger.Debug("mutation: delete rollback skipped", slog.String("id", id), slog.String("error", insErr.Error()))
			}
			notice.Error(c.sink, err)
			c.metrics.MutationSettled(string(KindDelete), telemetry.OutcomeFailure, true)
			return err
		},
	})
	return p, nil
}

// ApplyFetch replaces the store with fetched items rebased onto the writes
// still awaiting the server: artifacts with a pending delete stay out and
// pending like toggles are reapplied.
func (c *Coordinator) ApplyFetch(items []models.Artifact) {
	c.imu.Lock()
	defer c.imu.Unlock()

	rebased := make([]models.Artifact, 0, len(items))
	for _, a := range items {
		if c.deletes[a.ID] > 0 {
			continue
		}
		a = a.Clone()
		for key, li := range c.likes {
			if key.id == a.ID {
				a.LikedBy = withMember(a.LikedBy, key.user, li.local())
			}
		}
		rebased = append(rebased, a)
	}
	c.store.Replace(rebased)
}

func (c *Coordinator) enqueue(ctx context.Context, key laneKey, t *task) {
	c.metrics.MutationStarted()

	// remote calls outlive the request that issued them
	t.ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	l, running := c.lanes[key]
	if !running {
		l = &lane{}
		c.lanes[key] = l
	}
	l.queue = append(l.queue, t)
	c.mu.Unlock()

	if !running {
		go c.drain(key, l)
	}
}

func (c *Coordinator) drain(key laneKey, l *lane) {
	for {
		c.mu.Lock()
		if len(l.queue) == 0 {
			delete(c.lanes, key)
			if len(c.lanes) == 0 && c.idle != nil {
				close(c.idle)
				c.idle = nil
			}
			c.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue = l.queue[1:]
		c.mu.Unlock()

		c.run(key, t)
	}
}

func (c *Coordinator) run(key laneKey, t *task) {
	callCtx, cancel := context.WithTimeout(t.ctx, c.timeout)
	msg, err := t.call(callCtx)
	cancel()

	if c.detached.Load() {
		c.logger.Debug("mutation: outcome discarded after detach",
			slog.String("id", key.id), slog.String("kind", string(key.kind)))
		c.metrics.MutationSettled(string(key.kind), telemetry.OutcomeDiscarded, false)
		t.p.resolve(fmt.Errorf("%s %s: %w", key.kind, key.id, apperr.ErrDetached))
		return
	}
	t.p.resolve(t.settle(msg, err))
}

// Detach marks the owning view as gone. Outcomes that arrive later are
// discarded without touching the store or emitting notices.
func (c *Coordinator) Detach() {
	if c.detached.CompareAndSwap(false, true) {
		c.logger.Debug("mutation: coordinator detached")
	}
}

// Detached reports whether Detach was called.
func (c *Coordinator) Detached() bool { return c.detached.Load() }

// InFlight returns the number of lanes with queued or running calls.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lanes)
}

// Drain blocks until no lane has queued or running calls, or ctx ends.
// Calls scheduled while draining are waited for as well.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.mu.Lock()
	if len(c.lanes) == 0 {
		c.mu.Unlock()
		return nil
	}
	if c.idle == nil {
		c.idle = make(chan struct{})
	}
	done := c.idle
	c.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the outcome of a scheduled remote call.
type Pending struct {
	ID   string
	Kind Kind

	done chan struct{}
	err  error
}

func newPending(id string, kind Kind) *Pending {
	return &Pending{ID: id, Kind: kind, done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}

// Done is closed once the call has been reconciled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait returns the reconciliation outcome: nil, the remote error after a
// rollback, or ErrDetached.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDiscarded reports whether err means the outcome was dropped after detach.
func IsDiscarded(err error) bool {
	return errors.Is(err, apperr.ErrDetached)
}
