package lightbox

import "sync"

// Binding routes keys from a source into a navigator while the lightbox is
// open. It ends when the lightbox closes, the source closes or Release is
// called, whichever comes first.
type Binding struct {
	n        *Navigator
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Bind attaches src. While a binding is active, Bind returns it instead of
// installing a second handler. Binding a closed navigator returns an already
// finished binding.
func (n *Navigator) Bind(src <-chan Key) *Binding {
	n.mu.Lock()
	if n.binding != nil {
		b := n.binding
		n.mu.Unlock()
		return b
	}
	b := &Binding{n: n, stopCh: make(chan struct{}), done: make(chan struct{})}
	if !n.open {
		n.mu.Unlock()
		b.stop()
		close(b.done)
		return b
	}
	n.binding = b
	n.mu.Unlock()

	go b.dispatch(src)
	return b
}

// Active reports whether a key binding is installed.
func (n *Navigator) Active() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.binding != nil
}

func (b *Binding) dispatch(src <-chan Key) {
	defer close(b.done)
	defer b.detach()
	for {
		select {
		case <-b.stopCh:
			return
		case k, ok := <-src:
			if !ok {
				return
			}
			b.n.HandleKey(k)
		}
	}
}

func (b *Binding) stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *Binding) detach() {
	b.n.mu.Lock()
	if b.n.binding == b {
		b.n.binding = nil
	}
	b.n.mu.Unlock()
}

// Release tears the binding down and waits for the dispatch goroutine to
// exit. Safe to call more than once and from any goroutine except the one
// running a key handler.
func (b *Binding) Release() {
	b.stop()
	<-b.done
}

// Done is closed when the binding has ended.
func (b *Binding) Done() <-chan struct{} { return b.done }
