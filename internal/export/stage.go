package export

import (
	"fmt"
	"os"
	"sync"
)

// Staged is a transient reference to a payload. Release must be called
// exactly once; further calls are no-ops.
type Staged interface {
	Path() string
	Size() int64
	ContentType() string
	Release() error
}

// Stager allocates staged objects.
type Stager interface {
	Stage(p Payload) (Staged, error)
}

// TempStager stages payloads as temp files in Dir (os.TempDir when empty).
type TempStager struct {
	Dir string
}

func (s TempStager) Stage(p Payload) (Staged, error) {
	f, err := os.CreateTemp(s.Dir, ".atelier-stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staged object: %w", err)
	}
	name := f.Name()

	success := false
	defer func() {
		if !success {
			_ = f.Close()
			_ = os.Remove(name)
		}
	}()

	if _, err := f.Write(p.Data); err != nil {
		return nil, fmt.Errorf("write staged object: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close staged object: %w", err)
	}
	success = true
	return &tempFile{path: name, size: int64(len(p.Data)), ctype: p.ContentType}, nil
}

type tempFile struct {
	path  string
	size  int64
	ctype string
	once  sync.Once
	err   error
}

func (t *tempFile) Path() string        { return t.path }
func (t *tempFile) Size() int64         { return t.size }
func (t *tempFile) ContentType() string { return t.ctype }

func (t *tempFile) Release() error {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
			t.err = err
		}
	})
	return t.err
}
