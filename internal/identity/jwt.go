package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims mirrors the access tokens issued by Supabase-style auth servers.
type claims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		EmailVerified *bool `json:"email_verified"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 access tokens signed with a shared secret.
type JWTResolver struct {
	secret          []byte
	parser          *jwt.Parser
	requireVerified bool
}

// JWTOption configures a JWTResolver.
type JWTOption func(*jwtConfig)

type jwtConfig struct {
	audience        string
	requireVerified bool
	leeway          time.Duration
	now             func() time.Time
}

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) JWTOption {
	return func(c *jwtConfig) { c.audience = aud }
}

// WithRequireVerifiedEmail drops the email of callers whose provider has not
// marked it verified, so it can never be used to claim a profile.
func WithRequireVerifiedEmail(v bool) JWTOption {
	return func(c *jwtConfig) { c.requireVerified = v }
}

// WithLeeway tolerates clock skew on exp and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(c *jwtConfig) { c.leeway = d }
}

// WithTimeFunc sets the clock used for exp and nbf checks.
func WithTimeFunc(now func() time.Time) JWTOption {
	return func(c *jwtConfig) { c.now = now }
}

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret string, opts ...JWTOption) *JWTResolver {
	cfg := jwtConfig{leeway: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.leeway),
	}
	if cfg.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.audience))
	}
	if cfg.now != nil {
		parserOpts = append(parserOpts, jwt.WithTimeFunc(cfg.now))
	}

	return &JWTResolver{
		secret:          []byte(secret),
		parser:          jwt.NewParser(parserOpts...),
		requireVerified: cfg.requireVerified,
	}
}

// Resolve validates token and returns the identity it asserts.
func (r *JWTResolver) Resolve(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	var c claims
	_, err := r.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidCredential)
	}

	id := &Identity{
		UserID:        c.Subject,
		Email:         strings.ToLower(strings.TrimSpace(c.Email)),
		EmailVerified: c.UserMetadata.EmailVerified == nil || *c.UserMetadata.EmailVerified,
	}
	if r.requireVerified && !id.EmailVerified {
		id.Email = ""
	}
	return id, nil
}
