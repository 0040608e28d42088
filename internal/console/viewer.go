package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/content"
	"github.com/starford/atelier/internal/lightbox"
)

const clearScreen = "\x1b[H\x1b[2J"

// Viewer shows one view's lightbox in a terminal. Arrow keys (or h/l) move,
// Esc (or q) closes, e exports the current item.
type Viewer struct {
	ctl *collection.Controller
	in  io.Reader
	out io.Writer

	mu  sync.Mutex
	raw bool
}

// NewViewer creates a viewer reading keys from in and drawing to out.
func NewViewer(ctl *collection.Controller, in io.Reader, out io.Writer) *Viewer {
	return &Viewer{ctl: ctl, in: in, out: out}
}

// Run opens id and blocks until the lightbox closes or ctx ends. When in is
// a terminal it is switched to raw mode for the duration.
func (v *Viewer) Run(ctx context.Context, id string) error {
	if f, ok := v.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer func() { _ = term.Restore(int(f.Fd()), state) }()
		v.raw = true
	}

	nav := v.ctl.Lightbox()
	unsub := nav.OnChange(v.draw)
	defer unsub()

	if err := v.ctl.OpenItem(id); err != nil {
		return err
	}

	keys := make(chan lightbox.Key)
	stop := make(chan struct{})
	defer close(stop)
	go v.readKeys(ctx, keys, stop)

	b := nav.Bind(keys)
	select {
	case <-b.Done():
	case <-ctx.Done():
		nav.Close()
		b.Release()
		return ctx.Err()
	}
	v.printf("\n")
	return nil
}

func (v *Viewer) readKeys(ctx context.Context, keys chan<- lightbox.Key, stop <-chan struct{}) {
	buf := make([]byte, 16)
	for {
		n, err := v.in.Read(buf)
		if err != nil {
			return
		}
		chunk := buf[:n]
		if n == 1 && (chunk[0] == 'e' || chunk[0] == 'E') {
			v.exportCurrent(ctx)
			continue
		}
		k := lightbox.ParseKey(chunk)
		if k == lightbox.KeyUnknown {
			continue
		}
		select {
		case keys <- k:
		case <-stop:
			return
		}
	}
}

func (v *Viewer) exportCurrent(ctx context.Context) {
	r, err := v.ctl.ExportCurrent(ctx)
	if err != nil {
		v.printf("\nexport failed: %s\n", apperr.UserMessage(err))
		return
	}
	v.printf("\nsaved %s (%d bytes)\n", r.Destination, r.Size)
}

func (v *Viewer) draw(st lightbox.State) {
	if !st.Open {
		return
	}
	v.printf("%s%s", clearScreen, frame(st))

	// The terminal cannot show the image itself; printing its URL counts as loaded.
	if st.Item.IsBinary() && !st.MediaReady {
		v.ctl.Lightbox().MediaLoaded(st.Generation)
	}
}

// loadingMark overlays the image line while media is not ready. Once ready it
// is replaced by blanks of the same width so nothing below moves.
const loadingMark = "[loading...]"

// frame renders an open lightbox state.
func frame(st lightbox.State) string {
	a := *st.Item
	p := content.Describe(a)

	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] %s  %d likes  %s\n\n", st.Index+1, st.Count, a.Kind.Label(), a.LikedBy.Len(), a.CreatedAt.Local().Format("2006-01-02"))
	fmt.Fprintf(&b, "%s\n%s\n\n", p.Title, strings.Repeat("-", min(len([]rune(p.Title)), titleWidth)))
	if a.IsBinary() {
		mark := loadingMark
		if st.MediaReady {
			mark = strings.Repeat(" ", len(loadingMark))
		}
		fmt.Fprintf(&b, "image: %s  %s\n", a.Content, mark)
	} else {
		b.WriteString(a.Content)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if st.CanPrev {
		b.WriteString("← prev  ")
	}
	if st.CanNext {
		b.WriteString("→ next  ")
	}
	b.WriteString("e export  esc close\n")
	return b.String()
}

func (v *Viewer) printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.raw {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	_, _ = io.WriteString(v.out, s)
}
