package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/atelier/internal/models"
)

// Operation names understood by FakeRemote.Fail, Gate and Calls.
const (
	OpList      = "list"
	OpCommunity = "community"
	OpLike      = "like"
	OpDelete    = "delete"
	OpGenerate  = "generate"
	OpFetch     = "fetch"
)

// Call is one request observed by the fake.
type Call struct {
	Op     string
	ID     string
	Auth   string
	Fields map[string]string
}

type failure struct {
	status  int
	message string
}

type gate struct {
	ch   chan struct{}
	once sync.Once
}

func (g *gate) open() { g.once.Do(func() { close(g.ch) }) }

type blob struct {
	contentType string
	data        []byte
}

// FakeRemote serves the remote collection API from memory.
type FakeRemote struct {
	*httptest.Server
	UserID string

	mu       sync.Mutex
	items    []models.Artifact
	failures map[string][]failure
	gates    map[string]*gate
	calls    []Call
	blobs    map[string]blob
	nextID   int
}

// NewFakeRemote starts a fake whose acting user is userID.
func NewFakeRemote(t *testing.T, userID string, items ...models.Artifact) *FakeRemote {
	t.Helper()
	f := &FakeRemote{
		UserID:   userID,
		failures: make(map[string][]failure),
		gates:    make(map[string]*gate),
		blobs:    make(map[string]blob),
		nextID:   1000,
	}
	for _, a := range items {
		f.items = append(f.items, a.Clone())
	}

	r := chi.NewRouter()
	r.Get("/api/user/get-user-creations", f.handleList(OpList))
	r.Get("/api/user/get-published-creations", f.handleList(OpCommunity))
	r.Post("/api/user/toggle-like-creation", f.handleLike)
	r.Delete("/api/user/delete-creation/{id}", f.handleDelete)
	r.Post("/api/ai/{endpoint}", f.handleGenerate)
	r.Get("/blobs/*", f.handleBlob)

	f.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		f.mu.Lock()
		for op, g := range f.gates {
			g.open()
			delete(f.gates, op)
		}
		f.mu.Unlock()
		f.Close()
	})
	return f
}

// Fail makes the next call of op answer with success=false and message.
func (f *FakeRemote) Fail(op, message string) {
	f.FailStatus(op, http.StatusOK, message)
}

// FailStatus makes the next call of op answer with the given HTTP status.
func (f *FakeRemote) FailStatus(op string, status int, message string) {
	f.mu.Lock()
	f.failures[op] = append(f.failures[op], failure{status: status, message: message})
	f.mu.Unlock()
}

// Gate holds every call of op until the returned release is called.
func (f *FakeRemote) Gate(op string) (release func()) {
	g := &gate{ch: make(chan struct{})}
	f.mu.Lock()
	f.gates[op] = g
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		if f.gates[op] == g {
			delete(f.gates, op)
		}
		f.mu.Unlock()
		g.open()
	}
}

// SetBlob serves data at /blobs/<name>.
func (f *FakeRemote) SetBlob(name, contentType string, data []byte) string {
	f.mu.Lock()
	f.blobs[name] = blob{contentType: contentType, data: data}
	f.mu.Unlock()
	return f.URL + "/blobs/" + name
}

// Add appends items to the server-side collection.
func (f *FakeRemote) Add(items ...models.Artifact) {
	f.mu.Lock()
	for _, a := range items {
		f.items = append(f.items, a.Clone())
	}
	f.mu.Unlock()
}

// Calls returns the observed calls of op, or every call when op is empty.
func (f *FakeRemote) Calls(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Items returns the server-side collection.
func (f *FakeRemote) Items() []models.Artifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Artifact, len(f.items))
	for i, a := range f.items {
		out[i] = a.Clone()
	}
	return out
}

// enter records the call, waits on any gate and pops a pending failure.
func (f *FakeRemote) enter(r *http.Request, c Call) *failure {
	c.Auth = r.Header.Get("Authorization")
	f.mu.Lock()
	f.calls = append(f.calls, c)
	g := f.gates[c.Op]
	f.mu.Unlock()

	if g != nil {
		select {
		case <-g.ch:
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if q := f.failures[c.Op]; len(q) > 0 {
		f.failures[c.Op] = q[1:]
		return &q[0]
	}
	return nil
}

func (f *FakeRemote) handleList(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fail := f.enter(r, Call{Op: op}); fail != nil {
			writeEnvelope(w, fail.status, map[string]any{"success": false, "message": fail.message})
			return
		}
		f.mu.Lock()
		out := make([]models.Artifact, 0, len(f.items))
		for _, a := range f.items {
			if op == OpCommunity && !a.Published {
				continue
			}
			out = append(out, a.Clone())
		}
		f.mu.Unlock()
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "creations": out})
	}
}

func (f *FakeRemote) handleLike(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if fail := f.enter(r, Call{Op: OpLike, ID: body.ID}); fail != nil {
		writeEnvelope(w, fail.status, map[string]any{"success": false, "message": fail.message})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID != body.ID {
			continue
		}
		liked := f.items[i].LikedBy.Contains(f.UserID)
		f.items[i].LikedBy = f.items[i].LikedBy.Toggle(f.UserID)
		msg := "Creation liked"
		if liked {
			msg = "Creation unliked"
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "message": msg})
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"success": false, "message": "Creation not found"})
}

func (f *FakeRemote) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if fail := f.enter(r, Call{Op: OpDelete, ID: id}); fail != nil {
		writeEnvelope(w, fail.status, map[string]any{"success": false, "message": fail.message})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "message": "Creation deleted"})
			return
		}
	}
	writeEnvelope(w, http.StatusOK, map[string]any{"success": false, "message": "Creation not found"})
}

func (f *FakeRemote) handleGenerate(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	fields := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(8 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			for k, fh := range r.MultipartForm.File {
				fields[k] = "file:" + fh[0].Filename
			}
		}
	} else {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		for k, v := range body {
			fields[k] = fmt.Sprint(v)
		}
	}
	if fail := f.enter(r, Call{Op: OpGenerate, ID: endpoint, Fields: fields}); fail != nil {
		writeEnvelope(w, fail.status, map[string]any{"success": false, "message": fail.message})
		return
	}

	kind, content := models.KindArticle, "# Generated\n\n"+fields["prompt"]
	switch endpoint {
	case "generate-blog-title":
		kind = models.KindBlogTitle
	case "generate-image", "remove-image-background", "remove-image-object":
		kind = models.KindImage
		content = f.SetBlob(endpoint+".png", "image/png", []byte("\x89PNG\r\n\x1a\nfake"))
	case "resume-review":
		kind = models.KindResumeReview
	}

	f.mu.Lock()
	f.nextID++
	f.items = append([]models.Artifact{{
		ID:        fmt.Sprint(f.nextID),
		Kind:      kind,
		Prompt:    fields["prompt"],
		Content:   content,
		CreatedAt: time.Now().UTC(),
		LikedBy:   models.LikeSet{},
		Published: fields["publish"] == "true",
	}}, f.items...)
	f.mu.Unlock()

	writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "content": content})
}

func (f *FakeRemote) handleBlob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if fail := f.enter(r, Call{Op: OpFetch, ID: name}); fail != nil {
		http.Error(w, fail.message, fail.status)
		return
	}
	f.mu.Lock()
	b, ok := f.blobs[name]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", b.contentType)
	_, _ = w.Write(b.data)
}

func writeEnvelope(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
