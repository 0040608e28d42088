// Package store holds the ordered in-memory artifact collection that every
// view derives from.
package store

import (
	"fmt"
	"sync"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/models"
)

// Listener is called after every write with the new version.
type Listener func(version uint64)

// Store is the single source of truth for the artifacts of one view.
// Reads return copies; callers never hold references into the store.
type Store struct {
	mu      sync.RWMutex
	items   []models.Artifact
	version uint64

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store.
func New() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Replace swaps the whole collection. Duplicate ids keep their first occurrence.
func (s *Store) Replace(items []models.Artifact) {
	seen := make(map[string]struct{}, len(items))
	next := make([]models.Artifact, 0, len(items))
	for _, a := range items {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		next = append(next, a.Clone())
	}

	s.mu.Lock()
	s.items = next
	v := s.bump()
	s.mu.Unlock()
	s.notify(v)
}

// Snapshot returns a deep copy of the collection in order.
func (s *Store) Snapshot() []models.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Artifact, len(s.items))
	for i, a := range s.items {
		out[i] = a.Clone()
	}
	return out
}

// Get returns a copy of the artifact with the given id.
func (s *Store) Get(id string) (models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.Artifact{}, fmt.Errorf("artifact %q: %w", id, apperr.ErrNotFound)
	}
	return s.items[i].Clone(), nil
}

// IndexOf returns the position of id, or -1.
func (s *Store) IndexOf(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id)
}

// Len returns the number of artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Version returns the write counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetLikedBy replaces the like set of id and returns the previous one.
func (s *Store) SetLikedBy(id string, likes models.LikeSet) (models.LikeSet, error) {
	var prev models.LikeSet
	err := s.Update(id, func(a *models.Artifact) {
		prev = a.LikedBy
		a.LikedBy = models.NewLikeSet(likes...)
	})
	return prev, err
}

// Update applies fn to the stored artifact. fn must not change the id.
func (s *Store) Update(id string, fn func(*models.Artifact)) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("artifact %q: %w", id, apperr.ErrNotFound)
	}
	a := s.items[i].Clone()
	fn(&a)
	a.ID = id
	s.items[i] = a
	v := s.bump()
	s.mu.Unlock()
	s.notify(v)
	return nil
}

// Remove deletes id and returns the removed artifact with its former position.
func (s *Store) Remove(id string) (models.Artifact, int, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Artifact{}, -1, fmt.Errorf("artifact %q: %w", id, apperr.ErrNotFound)
	}
	removed := s.items[i]
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	v := s.bump()
	s.mu.Unlock()
	s.notify(v)
	return removed, i, nil
}

// InsertAt inserts a at pos, clamped to [0, Len]. Returns the final position.
func (s *Store) InsertAt(pos int, a models.Artifact) (int, error) {
	s.mu.Lock()
	if s.indexOf(a.ID) >= 0 {
		s.mu.Unlock()
		return -1, fmt.Errorf("artifact %q: %w", a.ID, apperr.ErrAlreadyExists)
	}
	pos = max(0, min(pos, len(s.items)))
	next := make([]models.Artifact, 0, len(s.items)+1)
	next = append(next, s.items[:pos]...)
	next = append(next, a.Clone())
	next = append(next, s.items[pos:]...)
	s.items = next
	v := s.bump()
	s.mu.Unlock()
	s.notify(v)
	return pos, nil
}

// Subscribe registers fn for change notifications. The returned cancel is idempotent.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// bump must be called with mu held.
func (s *Store) bump() uint64 {
	s.version++
	return s.version
}

func (s *Store) notify(v uint64) {
	s.lmu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
