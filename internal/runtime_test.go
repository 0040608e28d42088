package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/remote"
	"github.com/starford/atelier/internal/testutil"
)

func testConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Remote.BaseURL = baseURL
	cfg.Remote.RateLimit = 1000
	cfg.Identity.Token = "tok"
	cfg.Identity.UserID = "u1"
	cfg.Cache.Path = filepath.Join(dir, "cache.db")
	cfg.Export.Dir = filepath.Join(dir, "exports")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestOpenMountsViews(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1",
		models.Artifact{ID: "1", Kind: models.KindArticle, Content: "# One", LikedBy: models.LikeSet{}, Published: true},
		models.Artifact{ID: "2", Kind: models.KindArticle, Content: "# Two", LikedBy: models.LikeSet{}},
	)
	rec := &notice.Recorder{}
	rt, err := Open(context.Background(),
		WithConfig(testConfig(t, fake.URL)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNotices(rec),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	if err := rt.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := rt.View(remote.ScopeOwn).Store().Len(); n != 2 {
		t.Errorf("own = %d, want 2", n)
	}
	if n := rt.View(remote.ScopeCommunity).Store().Len(); n != 1 {
		t.Errorf("community = %d, want 1", n)
	}
	if rt.Cache == nil {
		t.Error("cache not opened")
	}

	p, err := rt.View(remote.ScopeOwn).Delete(context.Background(), "2")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if msgs := rec.Messages(notice.LevelSuccess); len(msgs) == 0 {
		t.Error("extra notice sink not wired")
	}
}

func TestOpenSingleScopeAndNoCache(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1")
	cfg := testConfig(t, fake.URL)
	cfg.Cache.Path = ""

	rt, err := Open(context.Background(),
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithScopes(remote.ScopeCommunity),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	if len(rt.Views()) != 1 || rt.View(remote.ScopeOwn) != nil {
		t.Errorf("views = %d", len(rt.Views()))
	}
	if rt.Cache != nil {
		t.Error("cache opened with empty path")
	}
}

func TestOpenRequiresConfig(t *testing.T) {
	if _, err := Open(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}

func TestMountReportsUnreachableRemote(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Cache.Path = ""
	rt, err := Open(context.Background(),
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()
	if err := rt.Mount(context.Background()); err == nil {
		t.Error("expected mount error")
	}
}

func TestReadyNeedsLoadedViews(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1",
		models.Artifact{ID: "1", Kind: models.KindArticle, Content: "# One", LikedBy: models.LikeSet{}},
	)
	cfg := testConfig(t, fake.URL)
	cfg.Cache.Path = ""
	rt, err := Open(context.Background(),
		WithConfig(cfg),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithScopes(remote.ScopeOwn),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	ready := func() int {
		w := httptest.NewRecorder()
		readyHandler(rt)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		return w.Code
	}

	fake.FailStatus(testutil.OpList, http.StatusInternalServerError, "db down")
	if err := rt.Mount(context.Background()); err == nil {
		t.Fatal("expected mount error")
	}
	if !rt.View(remote.ScopeOwn).Mounted() {
		t.Error("view should stay mounted after a failed fetch")
	}
	if code := ready(); code != http.StatusServiceUnavailable {
		t.Errorf("ready after failed fetch = %d, want 503", code)
	}

	rt.RefreshAll(context.Background())
	if code := ready(); code != http.StatusOK {
		t.Errorf("ready after refresh = %d, want 200", code)
	}
}
