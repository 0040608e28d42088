// Package notice carries transient user-visible messages from the core to
// whatever surface renders them.
package notice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/atelier/internal/apperr"
)

// Level is the severity of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notice is one transient message.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives notices. Implementations must not block for long.
type Sink interface {
	Notify(Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

func (f SinkFunc) Notify(n Notice) { f(n) }

// New builds a notice with a fresh id.
func New(level Level, msg string) Notice {
	return Notice{ID: uuid.NewString(), Level: level, Message: msg, At: time.Now().UTC()}
}

// Success emits a success notice.
func Success(s Sink, msg string) { emit(s, New(LevelSuccess, msg)) }

// Info emits an informational notice.
func Info(s Sink, msg string) { emit(s, New(LevelInfo, msg)) }

// Error emits an error notice with the user-facing text of err.
func Error(s Sink, err error) {
	if err == nil {
		return
	}
	emit(s, New(LevelError, apperr.UserMessage(err)))
}

func emit(s Sink, n Notice) {
	if s != nil {
		s.Notify(n)
	}
}

// Discard drops every notice.
var Discard Sink = SinkFunc(func(Notice) {})

// Fanout delivers each notice to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(n Notice) {
	for _, s := range f {
		if s != nil {
			s.Notify(n)
		}
	}
}

// LogSink writes notices to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Notify(n Notice) {
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelWarn
	}
	l.Logger.Log(context.Background(), level, "notice",
		slog.String("id", n.ID),
		slog.String("severity", string(n.Level)),
		slog.String("message", n.Message),
	)
}

// WriterSink prints one line per notice, e.g. to a terminal.
type WriterSink struct {
	mu sync.Mutex
	W  io.Writer
}

func (w *WriterSink) Notify(n Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := "✓"
	switch n.Level {
	case LevelError:
		prefix = "✗"
	case LevelInfo:
		prefix = "•"
	}
	_, _ = fmt.Fprintf(w.W, "%s %s\n", prefix, n.Message)
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notices.
func (r *Recorder) All() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Messages returns the recorded messages of the given level.
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, n := range r.All() {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}
