package identity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileToken reads the bearer token from a file and reloads it when the file
// changes on disk.
type FileToken struct {
	path string

	mu    sync.RWMutex
	token string
}

// NewFileToken loads the token at path.
func NewFileToken(path string) (*FileToken, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	ft := &FileToken{path: abs}
	if err := ft.reload(); err != nil {
		return nil, err
	}
	return ft, nil
}

func (f *FileToken) Token(context.Context) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.token == "" {
		return "", ErrNoToken
	}
	return f.token, nil
}

func (f *FileToken) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	f.mu.Lock()
	f.token = strings.TrimSpace(string(data))
	f.mu.Unlock()
	return nil
}

// Watch reloads the token whenever the file is written or replaced, until
// ctx is cancelled. onReload (if non-nil) runs after each successful reload.
//
// The parent directory is watched so that editors which save by renaming a
// temp file over the original are picked up.
func (f *FileToken) Watch(ctx context.Context, logger *slog.Logger, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return err
	}
	logger.Info("token watcher: started", slog.String("path", f.path))

	// debounce bursts of write events
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("token watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			if err := f.reload(); err != nil {
				logger.Warn("token watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Debug("token watcher: reloaded")
			if onReload != nil {
				onReload()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(100 * time.Millisecond)
			} else {
				timer.Reset(100 * time.Millisecond)
			}
			fire = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("token watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
