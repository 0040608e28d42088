package remote_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/identity"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/remote"
	"github.com/starford/atelier/internal/telemetry"
	"github.com/starford/atelier/internal/testutil"
)

func newClient(t *testing.T, fake *testutil.FakeRemote) *remote.Client {
	t.Helper()
	c, err := remote.New(remote.Config{BaseURL: fake.URL, RateLimit: 1000}, identity.StaticToken("tok"), remote.WithMetrics(telemetry.New()))
	require.NoError(t, err)
	return c
}

func sample() []models.Artifact {
	return []models.Artifact{
		{ID: "1", Kind: models.KindArticle, Prompt: "a", Content: "# A", LikedBy: models.LikeSet{}, Published: true},
		{ID: "2", Kind: models.KindImage, Prompt: "b", Content: "https://cdn/b.png", LikedBy: models.LikeSet{"u9"}},
	}
}

func TestListCreations(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1", sample()...)
	c := newClient(t, fake)
	ctx := context.Background()

	own, err := c.ListCreations(ctx, remote.ScopeOwn)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	community, err := c.ListCreations(ctx, remote.ScopeCommunity)
	require.NoError(t, err)
	require.Len(t, community, 1)
	assert.Equal(t, "1", community[0].ID)

	calls := fake.Calls(testutil.OpList)
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer tok", calls[0].Auth)
}

func TestEnvelopeFailureIsRemoteError(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1", sample()...)
	c := newClient(t, fake)

	fake.Fail(testutil.OpLike, "Not authorized")
	_, err := c.ToggleLike(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrRemoteCallFailed))
	assert.Equal(t, "Not authorized", apperr.UserMessage(err))

	fake.FailStatus(testutil.OpDelete, http.StatusInternalServerError, "db down")
	_, err = c.DeleteCreation(context.Background(), "1")
	var re *apperr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.Equal(t, "db down", re.Message)
}

func TestToggleAndDelete(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1", sample()...)
	c := newClient(t, fake)
	ctx := context.Background()

	msg, err := c.ToggleLike(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Creation liked", msg)
	assert.True(t, fake.Items()[0].LikedBy.Contains("u1"))

	msg, err = c.DeleteCreation(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "Creation deleted", msg)
	assert.Len(t, fake.Items(), 1)
}

func TestTransportFailure(t *testing.T) {
	c, err := remote.New(remote.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, identity.StaticToken("tok"))
	require.NoError(t, err)
	_, err = c.ListCreations(context.Background(), remote.ScopeOwn)
	assert.ErrorIs(t, err, apperr.ErrRemoteCallFailed)
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1")
	c, err := remote.New(remote.Config{BaseURL: fake.URL}, identity.StaticToken(""))
	require.NoError(t, err)
	_, err = c.ListCreations(context.Background(), remote.ScopeOwn)
	assert.ErrorIs(t, err, identity.ErrNoToken)
	assert.Empty(t, fake.Calls(""))
}

func TestFetch(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1")
	c := newClient(t, fake)
	url := fake.SetBlob("a.png", "image/png", []byte("png-bytes"))

	data, ctype, err := c.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", ctype)
	assert.Empty(t, fake.Calls(testutil.OpFetch)[0].Auth)

	_, _, err = c.Fetch(context.Background(), "/blobs/missing.png")
	var re *apperr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
}

func TestGenerateJSONAndMultipart(t *testing.T) {
	fake := testutil.NewFakeRemote(t, "u1")
	c := newClient(t, fake)
	ctx := context.Background()

	content, err := c.Generate(ctx, remote.GenerateCall{
		Path:   "/api/ai/generate-article",
		Fields: map[string]any{"prompt": "Write about Go", "length": 800},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "# Generated"))

	img := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(img, []byte("img"), 0o600))
	content, err = c.Generate(ctx, remote.GenerateCall{
		Path:   "/api/ai/remove-image-object",
		Fields: map[string]any{"object": "watch"},
		Files:  map[string]string{"image": img},
	})
	require.NoError(t, err)
	assert.Contains(t, content, "/blobs/remove-image-object.png")

	calls := fake.Calls(testutil.OpGenerate)
	require.Len(t, calls, 2)
	assert.Equal(t, "800", calls[0].Fields["length"])
	assert.Equal(t, "file:cat.png", calls[1].Fields["image"])
	assert.Equal(t, "watch", calls[1].Fields["object"])
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := remote.New(remote.Config{BaseURL: "not a url"}, identity.StaticToken("x"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestParseScope(t *testing.T) {
	s, err := remote.ParseScope("community")
	require.NoError(t, err)
	assert.Equal(t, remote.ScopeCommunity, s)
	_, err = remote.ParseScope("everyone")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
