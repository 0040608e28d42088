package collection_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/export"
	"github.com/starford/atelier/internal/generate"
	"github.com/starford/atelier/internal/identity"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/mutation"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/remote"
	"github.com/starford/atelier/internal/testutil"
)

type fixture struct {
	fake    *testutil.FakeRemote
	ctrl    *collection.Controller
	notices *notice.Recorder
	dir     string
}

func articles(n int) []models.Artifact {
	out := make([]models.Artifact, n)
	for i := range out {
		out[i] = models.Artifact{
			ID:      fmt.Sprint(i + 1),
			Kind:    models.KindArticle,
			Prompt:  fmt.Sprintf("topic %d", i+1),
			Content: fmt.Sprintf("# Article %d\n\nbody", i+1),
			LikedBy: models.LikeSet{},
		}
	}
	return out
}

func setup(t *testing.T, withCache bool, items ...models.Artifact) *fixture {
	t.Helper()
	return setupWith(t, testutil.NewFakeRemote(t, "u1", items...), withCache)
}

func setupWith(t *testing.T, fake *testutil.FakeRemote, withCache bool) *fixture {
	t.Helper()
	client, err := remote.New(remote.Config{BaseURL: fake.URL, RateLimit: 1000}, identity.StaticToken("tok"))
	require.NoError(t, err)

	dir := t.TempDir()
	saver, err := export.NewDirSaver(dir)
	require.NoError(t, err)

	rec := &notice.Recorder{}
	opts := collection.Options{
		Scope:       remote.ScopeOwn,
		UserID:      "u1",
		Saver:       saver,
		CallTimeout: 5 * time.Second,
		Notices:     rec,
	}
	if withCache {
		opts.Cache = testutil.TestCache(t)
	}
	ctrl := collection.New(client, opts)
	t.Cleanup(ctrl.Unmount)
	return &fixture{fake: fake, ctrl: ctrl, notices: rec, dir: dir}
}

func wait(t *testing.T, p *mutation.Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Wait(ctx)
}

func TestMountDerivesPages(t *testing.T) {
	f := setup(t, false, articles(23)...)
	require.NoError(t, f.ctrl.Mount(context.Background()))

	v := f.ctrl.View()
	assert.Equal(t, 3, v.Page.TotalPages)
	assert.Len(t, v.Page.Items, 10)
	assert.False(t, v.CanPrev)
	assert.True(t, v.CanNext)
	assert.Equal(t, []int{1, 2, 3}, v.Window)

	require.NoError(t, f.ctrl.SetPage(3))
	assert.Len(t, f.ctrl.Page().Items, 3)
	assert.ErrorIs(t, f.ctrl.SetPage(4), apperr.ErrInvalidInput)
	assert.False(t, f.ctrl.NextPage())
	assert.True(t, f.ctrl.PrevPage())
	assert.Equal(t, 2, f.ctrl.Page().Page)
}

func TestFilterResetsPage(t *testing.T) {
	items := articles(15)
	items[3].Kind = models.KindImage
	items[3].Content = "https://cdn/x.png"
	f := setup(t, false, items...)
	require.NoError(t, f.ctrl.Mount(context.Background()))

	require.NoError(t, f.ctrl.SetPage(2))
	f.ctrl.SetFilter(models.Filter(models.KindImage))
	p := f.ctrl.Page()
	assert.Equal(t, 1, p.Page)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "4", p.Items[0].ID)
}

func TestFetchFailureServesCachedSnapshot(t *testing.T) {
	f := setup(t, true, articles(3)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))
	assert.False(t, f.ctrl.View().Stale)

	f.fake.Fail(testutil.OpList, "Server is busy")
	require.NoError(t, f.ctrl.Refresh(ctx))

	v := f.ctrl.View()
	assert.True(t, v.Stale)
	assert.Equal(t, 3, v.Total)
	assert.Contains(t, f.notices.Messages(notice.LevelError), "Server is busy")
	assert.NotEmpty(t, f.notices.Messages(notice.LevelInfo))

	require.NoError(t, f.ctrl.Refresh(ctx))
	assert.False(t, f.ctrl.View().Stale)
}

func TestFetchFailureWithoutCache(t *testing.T) {
	f := setup(t, false, articles(3)...)
	f.fake.Fail(testutil.OpList, "Unauthorized")

	err := f.ctrl.Mount(context.Background())
	require.ErrorIs(t, err, apperr.ErrRemoteCallFailed)
	assert.Equal(t, 0, f.ctrl.View().Total)
	assert.Equal(t, []string{"Unauthorized"}, f.notices.Messages(notice.LevelError))
	assert.True(t, f.ctrl.Mounted())
	assert.False(t, f.ctrl.Loaded(), "a failed first fetch leaves nothing to show")

	require.NoError(t, f.ctrl.Refresh(context.Background()))
	assert.True(t, f.ctrl.Loaded())
}

func TestCachedSnapshotCountsAsLoaded(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1", articles(2)...)
	client, err := remote.New(remote.Config{BaseURL: fake.URL, RateLimit: 1000}, identity.StaticToken("tok"))
	require.NoError(t, err)
	db := testutil.TestCache(t)
	_, err = db.Save(string(remote.ScopeOwn), articles(2), time.Now().UTC())
	require.NoError(t, err)

	ctrl := collection.New(client, collection.Options{Scope: remote.ScopeOwn, UserID: "u1", Cache: db})
	t.Cleanup(ctrl.Unmount)
	fake.Fail(testutil.OpList, "Server is busy")

	require.NoError(t, ctrl.Mount(context.Background()))
	assert.True(t, ctrl.View().Stale)
	assert.True(t, ctrl.Loaded())
}

func TestRefreshDuringPendingMutations(t *testing.T) {
	f := setup(t, false, articles(3)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	releaseDelete := f.fake.Gate(testutil.OpDelete)
	releaseLike := f.fake.Gate(testutil.OpLike)
	f.fake.Fail(testutil.OpLike, "Like failed")

	pd, err := f.ctrl.Delete(ctx, "1")
	require.NoError(t, err)
	pl, err := f.ctrl.ToggleLike(ctx, "2")
	require.NoError(t, err)

	require.NoError(t, f.ctrl.Refresh(ctx))
	assert.Equal(t, -1, f.ctrl.Store().IndexOf("1"), "pending delete stays out of a refetch")
	a, err := f.ctrl.Store().Get("2")
	require.NoError(t, err)
	assert.True(t, a.LikedByUser("u1"), "pending like survives a refetch")

	releaseDelete()
	releaseLike()
	require.NoError(t, wait(t, pd))
	require.ErrorIs(t, wait(t, pl), apperr.ErrRemoteCallFailed)

	assert.Equal(t, -1, f.ctrl.Store().IndexOf("1"))
	a, err = f.ctrl.Store().Get("2")
	require.NoError(t, err)
	assert.Equal(t, 0, a.LikedBy.Len(), "rejected like is rolled back after the refetch")
	assert.Equal(t, 2, f.ctrl.View().Total)
}

func TestToggleLikeOptimistic(t *testing.T) {
	f := setup(t, false, articles(2)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	release := f.fake.Gate(testutil.OpLike)
	p, err := f.ctrl.ToggleLike(ctx, "1")
	require.NoError(t, err)

	a, err := f.ctrl.Store().Get("1")
	require.NoError(t, err)
	assert.True(t, a.LikedByUser("u1"), "like must show before the remote answers")

	release()
	require.NoError(t, wait(t, p))
	assert.Equal(t, []string{"Creation liked"}, f.notices.Messages(notice.LevelSuccess))
	assert.True(t, f.fake.Items()[0].LikedBy.Contains("u1"))
}

func TestToggleLikeFailureRollsBack(t *testing.T) {
	f := setup(t, false, articles(2)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	f.fake.Fail(testutil.OpLike, "Like failed")
	p, err := f.ctrl.ToggleLike(ctx, "2")
	require.NoError(t, err)
	require.ErrorIs(t, wait(t, p), apperr.ErrRemoteCallFailed)

	a, _ := f.ctrl.Store().Get("2")
	assert.Equal(t, 0, a.LikedBy.Len())
	assert.Equal(t, []string{"Like failed"}, f.notices.Messages(notice.LevelError))
}

func TestDeleteFailureRestoresPosition(t *testing.T) {
	f := setup(t, false, articles(5)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	f.fake.Fail(testutil.OpDelete, "Not allowed")
	release := f.fake.Gate(testutil.OpDelete)
	p, err := f.ctrl.Delete(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, -1, f.ctrl.Store().IndexOf("3"))

	release()
	require.ErrorIs(t, wait(t, p), apperr.ErrRemoteCallFailed)
	assert.Equal(t, 2, f.ctrl.Store().IndexOf("3"))
	assert.Equal(t, []string{"Not allowed"}, f.notices.Messages(notice.LevelError))
}

func TestDeleteLastItemOnPageResetsPage(t *testing.T) {
	f := setup(t, false, articles(21)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))
	require.NoError(t, f.ctrl.SetPage(3))

	p, err := f.ctrl.Delete(ctx, "21")
	require.NoError(t, err)
	assert.Equal(t, 1, f.ctrl.Page().Page)
	require.NoError(t, wait(t, p))
	assert.Len(t, f.fake.Items(), 20)
}

func TestLightboxFollowsFilteredList(t *testing.T) {
	items := articles(6)
	for _, i := range []int{1, 3, 5} {
		items[i].Kind = models.KindImage
		items[i].Content = "https://cdn/" + items[i].ID + ".png"
	}
	f := setup(t, false, items...)
	require.NoError(t, f.ctrl.Mount(context.Background()))
	f.ctrl.SetFilter(models.Filter(models.KindImage))

	require.NoError(t, f.ctrl.OpenItem("4"))
	nav := f.ctrl.Lightbox()
	st := nav.State()
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, 3, st.Count)
	assert.False(t, st.MediaReady)

	require.True(t, nav.Next())
	assert.Equal(t, "6", nav.State().Item.ID)
	assert.False(t, nav.Next())

	assert.ErrorIs(t, f.ctrl.OpenItem("1"), apperr.ErrNotFound)
}

func TestLightboxClosesWhenItemsShrink(t *testing.T) {
	f := setup(t, false, articles(3)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))
	require.NoError(t, f.ctrl.OpenItem("3"))

	p, err := f.ctrl.Delete(ctx, "3")
	require.NoError(t, err)
	assert.False(t, f.ctrl.Lightbox().State().Open)
	require.NoError(t, wait(t, p))
}

func TestExportBinaryAndText(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1")
	blobURL := fake.SetBlob("cat.png", "image/png", []byte("\x89PNG\r\n\x1a\npixels"))
	fake.Add(
		models.Artifact{ID: "img", Kind: models.KindImage, Content: blobURL, LikedBy: models.LikeSet{}},
		models.Artifact{ID: "txt", Kind: models.KindArticle, Content: "# Hello", LikedBy: models.LikeSet{}},
	)
	f := setupWith(t, fake, false)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	r, err := f.ctrl.Export(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, "image.png", r.Filename)
	data, err := os.ReadFile(filepath.Join(f.dir, "image.png"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pixels")

	r, err = f.ctrl.Export(ctx, "txt")
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(f.dir, r.Filename))
	require.NoError(t, err)
	assert.Equal(t, "# Hello", string(data))

	_, err = f.ctrl.Export(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExportFetchFailure(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1")
	blobURL := fake.SetBlob("cat.png", "image/png", []byte("png"))
	fake.Add(models.Artifact{ID: "img", Kind: models.KindImage, Content: blobURL, LikedBy: models.LikeSet{}})
	f := setupWith(t, fake, false)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	fake.FailStatus(testutil.OpFetch, 500, "boom")
	_, err := f.ctrl.Export(ctx, "img")
	require.ErrorIs(t, err, apperr.ErrFetchFailed)
	assert.Equal(t, []string{"Failed to download image."}, f.notices.Messages(notice.LevelError))

	entries, _ := os.ReadDir(f.dir)
	assert.Empty(t, entries)
}

func TestGenerateRefreshes(t *testing.T) {
	f := setup(t, false, articles(2)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	out, err := f.ctrl.Generate(ctx, generate.Article{Topic: "Go", Words: 800})
	require.NoError(t, err)
	assert.Contains(t, out, "Go")
	assert.Equal(t, 3, f.ctrl.View().Total)
	assert.Equal(t, "1001", f.ctrl.Page().Items[0].ID)

	_, err = f.ctrl.Generate(ctx, generate.Article{Topic: "", Words: 800})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Len(t, f.fake.Calls(testutil.OpGenerate), 1)
}

func TestUnmountDiscardsInFlight(t *testing.T) {
	f := setup(t, false, articles(2)...)
	ctx := context.Background()
	require.NoError(t, f.ctrl.Mount(ctx))

	f.fake.Fail(testutil.OpLike, "late failure")
	release := f.fake.Gate(testutil.OpLike)
	p, err := f.ctrl.ToggleLike(ctx, "1")
	require.NoError(t, err)

	f.ctrl.Unmount()
	f.ctrl.Unmount()
	release()

	assert.True(t, mutation.IsDiscarded(wait(t, p)))
	assert.Empty(t, f.notices.Messages(notice.LevelError))
	a, _ := f.ctrl.Store().Get("1")
	assert.True(t, a.LikedByUser("u1"), "no rollback after unmount")

	_, err = f.ctrl.ToggleLike(ctx, "1")
	assert.ErrorIs(t, err, apperr.ErrDetached)
	assert.ErrorIs(t, f.ctrl.Refresh(ctx), apperr.ErrDetached)
	assert.False(t, f.ctrl.Mounted())
}
