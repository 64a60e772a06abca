package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/hafedapp/entitlement/internal/api/response"
	"github.com/hafedapp/entitlement/internal/identity"
)

const identityKey contextKey = "identity"

// Authenticate is middleware that resolves the bearer credential to an
// Identity. When required, a missing or invalid credential returns 401.
// Otherwise the request continues anonymously.
func Authenticate(resolver identity.Resolver, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			token, err := identity.BearerToken(r)
			if err == nil {
				var id *identity.Identity
				id, err = resolver.Resolve(r.Context(), token)
				if err == nil {
					ctx := context.WithValue(r.Context(), identityKey, id)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			switch {
			case !required:
				next.ServeHTTP(w, r)
			case errors.Is(err, identity.ErrMissingCredential):
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization", requestID)
			case errors.Is(err, identity.ErrInvalidCredential):
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", requestID)
			default:
				Logger(r.Context()).Error("resolving identity", "error", err)
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authentication failed", requestID)
			}
		})
	}
}

// GetIdentity retrieves the authenticated Identity from the request context.
func GetIdentity(ctx context.Context) *identity.Identity {
	if id, ok := ctx.Value(identityKey).(*identity.Identity); ok {
		return id
	}
	return nil
}

// WithIdentity stores id in ctx, as Authenticate does.
func WithIdentity(ctx context.Context, id *identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
