// Package identity resolves an inbound request to a stable user
// identifier.
package identity

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a request carries no valid
// identity. Handlers must convert this into a non-streamed 401 before
// any response bytes are written.
var ErrUnauthenticated = errors.New("no authenticated identity")

// Resolver maps a request to a user identifier.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// TokenResolver authenticates bearer tokens against a static
// token-to-user map from configuration.
type TokenResolver struct {
	tokens map[string]string
}

// NewTokenResolver creates a resolver over a token -> user id map.
func NewTokenResolver(tokens map[string]string) *TokenResolver {
	return &TokenResolver{tokens: tokens}
}

// Resolve implements Resolver.
func (t *TokenResolver) Resolve(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthenticated
	}

	userID, ok := t.tokens[token]
	if !ok {
		return "", ErrUnauthenticated
	}
	return userID, nil
}
