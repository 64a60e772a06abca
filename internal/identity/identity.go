// Package identity turns a bearer credential into the caller's identity.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingCredential = errors.New("missing bearer credential")
	ErrInvalidCredential = errors.New("invalid bearer credential")
)

// Identity is the authenticated caller. Email is empty unless the identity
// provider vouches for it.
type Identity struct {
	UserID        string
	Email         string
	EmailVerified bool
}

// Resolver answers "who is the caller" for a raw bearer token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", ErrMissingCredential
	}
	scheme, token, _ := strings.Cut(h, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}
