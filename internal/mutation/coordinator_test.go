package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/store"
	"github.com/starford/atelier/internal/telemetry"
)

// fakeRemote keeps server-side like state for a single user and lets tests
// hold calls per artifact id.
type fakeRemote struct {
	mu    sync.Mutex
	liked map[string]bool
	fail  map[string][]error
	gates map[string]chan struct{}
	calls []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		liked: make(map[string]bool),
		fail:  make(map[string][]error),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeRemote) failNext(op, id string, err error) {
	f.mu.Lock()
	f.fail[op+":"+id] = append(f.fail[op+":"+id], err)
	f.mu.Unlock()
}

func (f *fakeRemote) gate(id string) chan struct{} {
	g := make(chan struct{})
	f.mu.Lock()
	f.gates[id] = g
	f.mu.Unlock()
	return g
}

func (f *fakeRemote) enter(ctx context.Context, op, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+id)
	g := f.gates[id]
	f.mu.Unlock()
	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if q := f.fail[op+":"+id]; len(q) > 0 {
		f.fail[op+":"+id] = q[1:]
		return q[0]
	}
	return nil
}

func (f *fakeRemote) ToggleLike(ctx context.Context, id string) (string, error) {
	if err := f.enter(ctx, "like", id); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liked[id] = !f.liked[id]
	if f.liked[id] {
		return "Creation liked", nil
	}
	return "Creation unliked", nil
}

func (f *fakeRemote) DeleteCreation(ctx context.Context, id string) (string, error) {
	if err := f.enter(ctx, "delete", id); err != nil {
		return "", err
	}
	return "Creation deleted", nil
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type env struct {
	store   *store.Store
	remote  *fakeRemote
	notices *notice.Recorder
	metrics *telemetry.Metrics
	coord   *Coordinator
}

func newEnv(t *testing.T, ids ...string) *env {
	t.Helper()
	s := store.New()
	items := make([]models.Artifact, len(ids))
	for i, id := range ids {
		items[i] = models.Artifact{ID: id, Kind: models.KindImage, LikedBy: models.LikeSet{}}
	}
	s.Replace(items)

	e := &env{store: s, remote: newFakeRemote(), notices: &notice.Recorder{}, metrics: telemetry.New()}
	e.coord = New(s, e.remote, Options{CallTimeout: 5 * time.Second, Notices: e.notices, Metrics: e.metrics})
	return e
}

func (e *env) likes(t *testing.T, id string) models.LikeSet {
	t.Helper()
	a, err := e.store.Get(id)
	require.NoError(t, err)
	return a.LikedBy
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestToggleLikeSuccess(t *testing.T) {
	e := newEnv(t, "a")
	p, err := e.coord.ToggleLike(context.Background(), "a", "u1")
	require.NoError(t, err)

	assert.True(t, e.likes(t, "a").Equal(models.LikeSet{"u1"}), "optimistic write is synchronous")
	require.NoError(t, p.Wait(waitCtx(t)))
	assert.True(t, e.likes(t, "a").Equal(models.LikeSet{"u1"}))
	assert.Equal(t, []string{"Creation liked"}, e.notices.Messages(notice.LevelSuccess))
}

func TestToggleLikeFailureRollsBack(t *testing.T) {
	e := newEnv(t, "a")
	e.remote.failNext("like", "a", &apperr.RemoteError{Op: "toggle like", Message: "Not authorized"})

	p, err := e.coord.ToggleLike(context.Background(), "a", "u1")
	require.NoError(t, err)
	err = p.Wait(waitCtx(t))
	assert.ErrorIs(t, err, apperr.ErrRemoteCallFailed)

	assert.Equal(t, 0, e.likes(t, "a").Len(), "likedBy must return to []")
	assert.Equal(t, []string{"Not authorized"}, e.notices.Messages(notice.LevelError))
}

func TestDoubleToggleRestoresOriginal(t *testing.T) {
	e := newEnv(t, "a")
	ctx := context.Background()
	p1, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)
	p2, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)

	require.NoError(t, p1.Wait(waitCtx(t)))
	require.NoError(t, p2.Wait(waitCtx(t)))
	assert.Equal(t, 0, e.likes(t, "a").Len())
}

func TestSameIDCallsRunInIssueOrder(t *testing.T) {
	e := newEnv(t, "a")
	g := e.remote.gate("a")
	ctx := context.Background()

	e.remote.failNext("like", "a", errors.New("boom"))
	p1, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)
	p2, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)

	// p2 must not reach the remote while p1 is held.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"like:a"}, e.remote.callLog())

	g <- struct{}{}
	require.Error(t, p1.Wait(waitCtx(t)))
	g <- struct{}{}
	require.NoError(t, p2.Wait(waitCtx(t)))

	assert.Equal(t, []string{"like:a", "like:a"}, e.remote.callLog())
	// server accepted only the second toggle, so u1 likes a
	assert.True(t, e.remote.liked["a"])
	assert.True(t, e.likes(t, "a").Equal(models.LikeSet{"u1"}))
}

func TestDifferentIDsAreIndependent(t *testing.T) {
	e := newEnv(t, "a", "b")
	g := e.remote.gate("a")
	ctx := context.Background()

	pa, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)
	pb, err := e.coord.ToggleLike(ctx, "b", "u1")
	require.NoError(t, err)

	require.NoError(t, pb.Wait(waitCtx(t)))
	select {
	case <-pa.Done():
		t.Fatal("held call settled early")
	default:
	}
	close(g)
	require.NoError(t, pa.Wait(waitCtx(t)))
	assert.Eventually(t, func() bool { return e.coord.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDeleteSuccess(t *testing.T) {
	e := newEnv(t, "a", "b", "c")
	p, err := e.coord.Delete(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, -1, e.store.IndexOf("b"))

	require.NoError(t, p.Wait(waitCtx(t)))
	assert.Equal(t, 2, e.store.Len())
	assert.Equal(t, []string{"Creation deleted"}, e.notices.Messages(notice.LevelSuccess))
}

func TestDeleteFailureReinsertsAtPosition(t *testing.T) {
	e := newEnv(t, "a", "b", "c")
	e.remote.failNext("delete", "b", &apperr.RemoteError{Op: "delete creation", Message: "Creation not found"})

	p, err := e.coord.Delete(context.Background(), "b")
	require.NoError(t, err)
	require.Error(t, p.Wait(waitCtx(t)))

	assert.Equal(t, 1, e.store.IndexOf("b"))
	assert.Equal(t, []string{"Creation not found"}, e.notices.Messages(notice.LevelError))
}

func TestDeleteMissingHasNoRemoteCall(t *testing.T) {
	e := newEnv(t, "a")
	_, err := e.coord.Delete(context.Background(), "zzz")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, e.remote.callLog())
}

func TestInvalidInputLeavesStoreUntouched(t *testing.T) {
	e := newEnv(t, "a")
	v := e.store.Version()

	_, err := e.coord.ToggleLike(context.Background(), "a", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = e.coord.Delete(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	assert.Equal(t, v, e.store.Version())
	assert.Empty(t, e.remote.callLog())
}

func TestDetachDiscardsLateOutcome(t *testing.T) {
	e := newEnv(t, "a")
	g := e.remote.gate("a")
	e.remote.failNext("like", "a", errors.New("boom"))

	p, err := e.coord.ToggleLike(context.Background(), "a", "u1")
	require.NoError(t, err)
	v := e.store.Version()

	e.coord.Detach()
	e.coord.Detach()
	close(g)

	err = p.Wait(waitCtx(t))
	assert.True(t, IsDiscarded(err))
	assert.Equal(t, v, e.store.Version(), "no store write after detach")
	assert.Empty(t, e.notices.All())

	_, err = e.coord.ToggleLike(context.Background(), "a", "u1")
	assert.ErrorIs(t, err, apperr.ErrDetached)
}

func TestDrain(t *testing.T) {
	e := newEnv(t, "a", "b")
	ctx := context.Background()
	_, _ = e.coord.ToggleLike(ctx, "a", "u1")
	_, _ = e.coord.Delete(ctx, "b")
	require.NoError(t, e.coord.Drain(waitCtx(t)))
	assert.Eventually(t, func() bool { return e.coord.InFlight() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, e.store.Len())
}

func serverCopy(ids ...string) []models.Artifact {
	items := make([]models.Artifact, len(ids))
	for i, id := range ids {
		items[i] = models.Artifact{ID: id, Kind: models.KindImage, LikedBy: models.LikeSet{}}
	}
	return items
}

func TestStoreReplacedDuringFailedLike(t *testing.T) {
	e := newEnv(t, "a")
	g := e.remote.gate("a")
	e.remote.failNext("like", "a", errors.New("boom"))

	p, err := e.coord.ToggleLike(context.Background(), "a", "u1")
	require.NoError(t, err)
	e.store.Replace(serverCopy("a"))
	close(g)

	require.Error(t, p.Wait(waitCtx(t)))
	assert.False(t, e.remote.liked["a"])
	assert.Equal(t, 0, e.likes(t, "a").Len(), "rejected like must not come back")
}

func TestApplyFetchKeepsPendingLike(t *testing.T) {
	e := newEnv(t, "a", "b")
	g := e.remote.gate("a")
	e.remote.failNext("like", "a", errors.New("boom"))

	p, err := e.coord.ToggleLike(context.Background(), "a", "u1")
	require.NoError(t, err)

	e.coord.ApplyFetch(serverCopy("a", "b"))
	assert.True(t, e.likes(t, "a").Equal(models.LikeSet{"u1"}), "pending toggle survives the fetch")
	assert.Equal(t, 0, e.likes(t, "b").Len())

	close(g)
	require.Error(t, p.Wait(waitCtx(t)))
	assert.Equal(t, 0, e.likes(t, "a").Len())

	e.coord.ApplyFetch(serverCopy("a", "b"))
	assert.Equal(t, 0, e.likes(t, "a").Len(), "settled intents are forgotten")
}

func TestApplyFetchDuringAcceptedLikes(t *testing.T) {
	e := newEnv(t, "a")
	g := e.remote.gate("a")
	ctx := context.Background()

	e.remote.failNext("like", "a", errors.New("boom"))
	p1, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)
	p2, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)
	p3, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)
	assert.True(t, e.likes(t, "a").Equal(models.LikeSet{"u1"}))

	g <- struct{}{}
	require.Error(t, p1.Wait(waitCtx(t)))
	e.coord.ApplyFetch(serverCopy("a"))
	g <- struct{}{}
	require.NoError(t, p2.Wait(waitCtx(t)))
	g <- struct{}{}
	require.NoError(t, p3.Wait(waitCtx(t)))

	// the server applied two toggles, so u1 ends unliked on both sides
	assert.False(t, e.remote.liked["a"])
	assert.Equal(t, 0, e.likes(t, "a").Len())
}

func TestApplyFetchKeepsPendingDeleteOut(t *testing.T) {
	e := newEnv(t, "a", "b")
	g := e.remote.gate("a")

	p, err := e.coord.Delete(context.Background(), "a")
	require.NoError(t, err)
	e.coord.ApplyFetch(serverCopy("a", "b"))
	assert.Equal(t, -1, e.store.IndexOf("a"))

	close(g)
	require.NoError(t, p.Wait(waitCtx(t)))
	assert.Equal(t, 1, e.store.Len())
	assert.Equal(t, -1, e.store.IndexOf("a"))
}

func TestFailedDeleteAfterFetchReinserts(t *testing.T) {
	e := newEnv(t, "a", "b")
	g := e.remote.gate("a")
	e.remote.failNext("delete", "a", errors.New("boom"))

	p, err := e.coord.Delete(context.Background(), "a")
	require.NoError(t, err)
	e.coord.ApplyFetch(serverCopy("a", "b"))
	close(g)

	require.Error(t, p.Wait(waitCtx(t)))
	assert.Equal(t, 0, e.store.IndexOf("a"))
	assert.Equal(t, 2, e.store.Len())
}

func TestDrainCoversCallsScheduledWhileDraining(t *testing.T) {
	e := newEnv(t, "a", "b")
	g := e.remote.gate("a")
	ctx := context.Background()

	_, err := e.coord.ToggleLike(ctx, "a", "u1")
	require.NoError(t, err)

	drained := make(chan error, 1)
	go func() { drained <- e.coord.Drain(waitCtx(t)) }()

	pb, err := e.coord.ToggleLike(ctx, "b", "u1")
	require.NoError(t, err)
	require.NoError(t, pb.Wait(waitCtx(t)))
	select {
	case <-drained:
		t.Fatal("drain returned while a call was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(g)
	require.NoError(t, <-drained)
	assert.Equal(t, 0, e.coord.InFlight())
}
