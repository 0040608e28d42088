// Package identity supplies the acting user id and bearer tokens to the core.
// Token issuance and verification belong to the external identity provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/atelier/internal/apperr"
)

// ErrNoToken is returned when no bearer token is available.
var ErrNoToken = errors.New("identity: no token available")

// TokenSource returns the current bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, e.g. from configuration or the environment.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Session is the identity of the acting user.
type Session struct {
	UserID string
	Tokens TokenSource
}

// NewSession builds a session. When userID is empty it is read from the
// token's subject claim.
func NewSession(ctx context.Context, tokens TokenSource, userID string) (*Session, error) {
	if tokens == nil {
		return nil, ErrNoToken
	}
	if userID == "" {
		tok, err := tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve user id: %w", err)
		}
		if userID, err = UserIDFromToken(tok); err != nil {
			return nil, err
		}
	}
	return &Session{UserID: userID, Tokens: tokens}, nil
}

// UserIDFromToken returns the sub claim of a JWT without verifying its
// signature.
func UserIDFromToken(raw string) (string, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", fmt.Errorf("%w: parse token: %v", apperr.ErrInvalidInput, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", apperr.ErrInvalidInput)
	}
	return sub, nil
}
