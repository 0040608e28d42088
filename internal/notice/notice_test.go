package notice

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/starford/atelier/internal/apperr"
)

func TestFanoutAndRecorder(t *testing.T) {
	var a, b Recorder
	s := Fanout{&a, nil, &b}

	Success(s, "Creation deleted")
	Error(s, &apperr.RemoteError{Op: "delete", Message: "Creation not found"})
	Error(s, nil)

	for _, r := range []*Recorder{&a, &b} {
		all := r.All()
		if len(all) != 2 {
			t.Fatalf("recorded %d notices, want 2", len(all))
		}
		if all[0].ID == "" || all[0].ID == all[1].ID {
			t.Errorf("ids not unique: %q %q", all[0].ID, all[1].ID)
		}
	}
	if got := a.Messages(LevelError); len(got) != 1 || got[0] != "Creation not found" {
		t.Errorf("error messages = %v", got)
	}
}

func TestErrorUsesExportMessage(t *testing.T) {
	var r Recorder
	Error(&r, fmt.Errorf("%w: status 500", apperr.ErrFetchFailed))
	if got := r.Messages(LevelError); len(got) != 1 || got[0] != "Failed to download image." {
		t.Errorf("messages = %v", got)
	}
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	w := &WriterSink{W: &buf}
	Info(w, "Loading")
	Error(w, errors.New("boom"))
	out := buf.String()
	if !strings.Contains(out, "• Loading") || !strings.Contains(out, "✗ boom") {
		t.Errorf("output = %q", out)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	Error(s, errors.New("boom"))
	if !strings.Contains(buf.String(), `"level":"WARN"`) || !strings.Contains(buf.String(), `"message":"boom"`) {
		t.Errorf("log = %s", buf.String())
	}
}
