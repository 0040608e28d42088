// Package remote is the HTTP client for the generation and collection API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/starford/atelier/internal/apperr"
	"github.com/starford/atelier/internal/identity"
	"github.com/starford/atelier/internal/models"
	"github.com/starford/atelier/internal/telemetry"
)

// Scope selects which collection a view lists.
type Scope string

const (
	// ScopeOwn is the acting user's own creations.
	ScopeOwn Scope = "own"
	// ScopeCommunity is the published creations of every user.
	ScopeCommunity Scope = "community"
)

// ParseScope validates s.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeOwn, "":
		return ScopeOwn, nil
	case ScopeCommunity:
		return ScopeCommunity, nil
	}
	return "", apperr.Invalid("unknown scope %q", s)
}

const (
	pathUserCreations      = "/api/user/get-user-creations"
	pathPublishedCreations = "/api/user/get-published-creations"
	pathToggleLike         = "/api/user/toggle-like-creation"
	pathDeleteCreation     = "/api/user/delete-creation/"

	maxBodySize = 64 << 20
)

// Envelope is the response body shape shared by every endpoint.
type Envelope struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	Creations []models.Artifact `json:"creations,omitempty"`
	Content   string            `json:"content,omitempty"`
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	UserAgent string
}

// Client calls the remote API with the session's bearer token.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  identity.TokenSource
	limiter *rate.Limiter
	agent   string
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Option configures optional client dependencies.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records call counts and latency.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for cfg.BaseURL.
func New(cfg Config, tokens identity.TokenSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperr.Invalid("remote base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RateLimit)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "atelier"
	}

	c := &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, cfg.Burst)),
		agent:   cfg.UserAgent,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ListCreations fetches the collection for scope.
func (c *Client) ListCreations(ctx context.Context, scope Scope) ([]models.Artifact, error) {
	path := pathUserCreations
	if scope == ScopeCommunity {
		path = pathPublishedCreations
	}
	env, err := c.do(ctx, "list creations", http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if env.Creations == nil {
		return []models.Artifact{}, nil
	}
	return env.Creations, nil
}

// ToggleLike flips the acting user's like on id and returns the server message.
func (c *Client) ToggleLike(ctx context.Context, id string) (string, error) {
	body, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return "", err
	}
	env, err := c.do(ctx, "toggle like", http.MethodPost, pathToggleLike, bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// DeleteCreation deletes id and returns the server message.
func (c *Client) DeleteCreation(ctx context.Context, id string) (string, error) {
	env, err := c.do(ctx, "delete creation", http.MethodDelete, pathDeleteCreation+url.PathEscape(id), nil, "")
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Fetch downloads the binary content behind a reference URL. Relative URLs
// resolve against the base URL. No bearer token is sent.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	const op = "fetch"
	u, err := c.base.Parse(ref)
	if err != nil {
		return nil, "", &apperr.RemoteError{Op: op, Err: err}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", &apperr.RemoteError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", &apperr.RemoteError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.agent)

	start := time.Now()
	data, ctype, err := c.fetch(req)
	c.metrics.RemoteCall(op, err, time.Since(start))
	return data, ctype, err
}

func (c *Client) fetch(req *http.Request) ([]byte, string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &apperr.RemoteError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &apperr.RemoteError{Op: "fetch", Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, "", &apperr.RemoteError{Op: "fetch", Err: err}
	}
	if len(data) > maxBodySize {
		return nil, "", &apperr.RemoteError{Op: "fetch", Err: errors.New("payload too large")}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*Envelope, error) {
	start := time.Now()
	env, err := c.roundTrip(ctx, op, method, path, body, contentType)
	c.metrics.RemoteCall(strings.ReplaceAll(op, " ", "_"), err, time.Since(start))
	if err != nil {
		c.logger.Debug("remote: call failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	return env, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*Envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &apperr.RemoteError{Op: op, Err: err}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &apperr.RemoteError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, &apperr.RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperr.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var env Envelope
	decErr := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&env)
	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &apperr.RemoteError{Op: op, Status: resp.StatusCode, Message: env.Message}
	case decErr != nil:
		return nil, &apperr.RemoteError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decErr)}
	case !env.Success:
		return nil, &apperr.RemoteError{Op: op, Status: resp.StatusCode, Message: env.Message}
	}
	return &env, nil
}
