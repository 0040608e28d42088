package internal

import (
	"log/slog"

	"github.com/starford/atelier/internal/notice"
	"github.com/starford/atelier/internal/remote"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	logger  *slog.Logger
	notices []notice.Sink
	scopes  []remote.Scope
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the default JSON logger on stdout.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithNotices adds a sink that receives every user-facing notice.
func WithNotices(s notice.Sink) Option {
	return func(a *application) {
		a.notices = append(a.notices, s)
	}
}

// WithScopes limits which views are mounted. The default is own and community.
func WithScopes(scopes ...remote.Scope) Option {
	return func(a *application) {
		a.scopes = scopes
	}
}
