package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/atelier/internal/lightbox"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/store"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeNotice, Data: map[string]string{"message": "Creation liked"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.HasPrefix(s, "id: 1\nevent: notice\n") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"message":"Creation liked"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func count(msgs []string, typ string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "\nevent: "+typ+"\n") {
			n++
		}
	}
	return n
}

func TestPublishStoreChange_GalleryThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// First change triggers gallery.updated, the second is throttled.
	b.PublishStoreChange("own", 1)
	b.PublishStoreChange("own", 2)
	// Scopes are throttled independently.
	b.PublishStoreChange("community", 1)

	msgs := drain(ch)
	if n := count(msgs, TypeStoreChanged); n != 3 {
		t.Errorf("store events = %d, want 3", n)
	}
	if n := count(msgs, TypeGalleryUpdated); n != 2 {
		t.Errorf("gallery events = %d, want 2 (throttled per scope)", n)
	}
}

func TestNotifyIsSink(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	var sink notice.Sink = b
	notice.Error(sink, context.DeadlineExceeded)

	msgs := drain(ch)
	if count(msgs, TypeNotice) != 1 || !strings.Contains(msgs[0], `"level":"error"`) {
		t.Errorf("msgs = %q", msgs)
	}
}

func TestAttachStreamsStoreAndLightbox(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	s := store.New()
	nav := lightbox.New(lightbox.Options{})
	detach := b.Attach("own", s, nav)

	items := []models.Artifact{{ID: "1", Kind: models.KindImage, Content: "https://cdn/1.png"}}
	s.Replace(items)
	nav.SetItems(items)
	nav.OpenAt(0)

	msgs := drain(ch)
	if count(msgs, TypeStoreChanged) != 1 {
		t.Errorf("store events in %q", msgs)
	}
	if count(msgs, TypeLightbox) < 2 {
		t.Errorf("lightbox events in %q", msgs)
	}

	detach()
	detach()
	s.Replace(nil)
	nav.Close()
	if msgs := drain(ch); len(msgs) != 0 {
		t.Errorf("events after detach: %q", msgs)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeGalleryUpdated, Data: map[string]string{"scope": "own"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: gallery.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeNotice, Data: map[string]string{"message": "x"}})
	b.PublishStoreChange("own", 9)
	b.Notify(notice.New(notice.LevelInfo, "x"))
}

func TestScopedSubscribers(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	own := b.Subscribe("own")
	defer b.Unsubscribe(own)
	all := b.Subscribe("")
	defer b.Unsubscribe(all)

	b.PublishStoreChange("community", 1)
	b.Notify(notice.New(notice.LevelSuccess, "Saved image.png"))

	ownMsgs := drain(own)
	if count(ownMsgs, TypeStoreChanged) != 0 {
		t.Errorf("own subscriber got community change: %q", ownMsgs)
	}
	if count(ownMsgs, TypeNotice) != 1 {
		t.Errorf("own subscriber missed notice: %q", ownMsgs)
	}
	if n := count(drain(all), TypeStoreChanged); n != 1 {
		t.Errorf("all subscriber store events = %d, want 1", n)
	}
}

func TestEventIDsIncrease(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("")
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeNotice, Data: "a"})
	b.Publish(Event{Type: TypeNotice, Data: "b"})
	msgs := drain(ch)
	if len(msgs) != 2 || !strings.HasPrefix(msgs[0], "id: 1\n") || !strings.HasPrefix(msgs[1], "id: 2\n") {
		t.Errorf("msgs = %q", msgs)
	}
}

func TestSSEHandlerHeartbeatAndScope(t *testing.T) {
	b := NewBroker(time.Millisecond, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events?scope=own", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	b.PublishStoreChange("community", 3)
	b.PublishStoreChange("own", 4)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, ": ping\n\n") {
		t.Errorf("no heartbeat in %q", body)
	}
	if strings.Contains(body, `"scope":"community"`) {
		t.Errorf("scoped stream got community event: %q", body)
	}
	if !strings.Contains(body, `"version":4`) {
		t.Errorf("scoped stream missed own event: %q", body)
	}
}
