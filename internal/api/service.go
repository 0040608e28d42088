package api

import (
	"fmt"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/collection"
	"github.com/starford/atelier/internal/remote"
)

// Service resolves the mounted views the API operates on.
type Service struct {
	views map[remote.Scope]*collection.Controller
}

// NewService creates a service over the given mounted views.
func NewService(views ...*collection.Controller) *Service {
	s := &Service{views: make(map[remote.Scope]*collection.Controller, len(views))}
	for _, v := range views {
		s.views[v.Scope()] = v
	}
	return s
}

// View returns the mounted view of scope.
func (s *Service) View(scope string) (*collection.Controller, error) {
	sc, err := remote.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	v, ok := s.views[sc]
	if !ok {
		return nil, fmt.Errorf("view %q: %w", scope, apperr.ErrNotFound)
	}
	return v, nil
}

// Own returns the user's own view, which is where new creations land.
func (s *Service) Own() (*collection.Controller, error) {
	return s.View(string(remote.ScopeOwn))
}
