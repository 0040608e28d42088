package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Saver allocates disposable save triggers.
type Saver interface {
	Trigger(filename string) (Trigger, error)
}

// Trigger performs one save. Remove must run on every exit path and is
// idempotent.
type Trigger interface {
	Fire(ctx context.Context, staged Staged) (string, error)
	Remove() error
}

// DirSaver writes exports into a local directory.
type DirSaver struct {
	root string // absolute path to export directory
}

// NewDirSaver creates a saver rooted at dir, creating it when missing.
func NewDirSaver(dir string) (*DirSaver, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("export: resolve dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("export: mkdir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("export: stat dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("export: not a directory: %s", abs)
	}
	return &DirSaver{root: abs}, nil
}

// Root returns the export directory.
func (d *DirSaver) Root() string { return d.root }

// safePath resolves name against the root and rejects anything that escapes it.
func (d *DirSaver) safePath(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if cleaned == "." || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("export: invalid filename: %s", name)
	}
	abs, err := filepath.Abs(filepath.Join(d.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("export: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("export: path escapes export dir: %s", name)
	}
	return abs, nil
}

func (d *DirSaver) Trigger(filename string) (Trigger, error) {
	abs, err := d.safePath(filename)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(d.root, ".atelier-tmp-*")
	if err != nil {
		return nil, fmt.Errorf("export: create temp: %w", err)
	}
	return &dirTrigger{target: abs, tmp: tmp}, nil
}

type dirTrigger struct {
	target string
	tmp    *os.File

	once sync.Once
	done bool
}

// Fire copies the staged object into the temp file, fsyncs and renames it
// to a free name next to the target.
func (t *dirTrigger) Fire(ctx context.Context, staged Staged) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(staged.Path())
	if err != nil {
		return "", fmt.Errorf("export: open staged: %w", err)
	}
	defer src.Close()

	if _, err := io.Copy(t.tmp, src); err != nil {
		return "", fmt.Errorf("export: write temp: %w", err)
	}
	if err := t.tmp.Sync(); err != nil {
		return "", fmt.Errorf("export: fsync: %w", err)
	}
	if err := t.tmp.Close(); err != nil {
		return "", fmt.Errorf("export: close temp: %w", err)
	}
	dest, err := freeName(t.target)
	if err != nil {
		return "", err
	}
	if err := os.Rename(t.tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("export: rename: %w", err)
	}
	t.done = true
	return dest, nil
}

// Remove deletes the temp file unless Fire moved it into place.
func (t *dirTrigger) Remove() error {
	var err error
	t.once.Do(func() {
		_ = t.tmp.Close()
		if t.done {
			return
		}
		if rmErr := os.Remove(t.tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
	})
	return err
}

// freeName returns path, or path with a " (n)" suffix before the extension
// when path already exists.
func freeName(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; i < 1000; i++ {
		candidate := base + " (" + strconv.Itoa(i) + ")" + ext
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("export: no free name for %s", filepath.Base(path))
}
