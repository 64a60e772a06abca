// Package activation applies a license key entered by a signed-in user to
// that user's own profile.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hafedapp/entitlement/internal/entitlement"
	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/license"
	"github.com/hafedapp/entitlement/internal/profile"
)

var (
	ErrMissingKey     = errors.New("license key is required")
	ErrInvalidLicense = errors.New("license key is not valid")
	ErrLicenseRevoked = errors.New("license was refunded or disputed")
	// ErrNoProfile means the caller has no profile and none could be created.
	ErrNoProfile = errors.New("caller has no profile")
)

// ProfileResolver finds or creates the caller's profile.
type ProfileResolver interface {
	Resolve(ctx context.Context, id *identity.Identity) (*profile.Profile, error)
}

// Result is a successful activation.
type Result struct {
	PremiumExpiresAt time.Time
	Profile          *profile.Profile
}

// Service verifies keys and grants premium.
type Service struct {
	verifier  license.Verifier
	resolver  ProfileResolver
	repo      profile.Repository
	productID string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used to compute expiries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an activation Service for productID.
func NewService(verifier license.Verifier, resolver ProfileResolver, repo profile.Repository, productID string, opts ...Option) *Service {
	s := &Service{
		verifier:  verifier,
		resolver:  resolver,
		repo:      repo,
		productID: productID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Activate verifies key with the license authority and, only when it is
// valid, grants premium on the profile owned by id. An unreachable authority
// yields an error wrapping license.ErrAuthorityUnavailable.
func (s *Service) Activate(ctx context.Context, id *identity.Identity, key string) (*Result, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingKey
	}

	res, err := s.verifier.Verify(ctx, s.productID, key)
	if err != nil {
		return nil, fmt.Errorf("verifying license: %w", err)
	}
	switch res.Verdict {
	case license.VerdictValid:
	case license.VerdictRevoked:
		slog.Info("revoked license rejected", "authUserId", id.UserID)
		return nil, ErrLicenseRevoked
	default:
		return nil, ErrInvalidLicense
	}

	if _, err := s.resolver.Resolve(ctx, id); err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrNoProfile
		}
		return nil, fmt.Errorf("resolving caller profile: %w", err)
	}

	g := profile.Grant{LicenseKey: &key, ExpiresAt: entitlement.GrantExpiry(s.now())}
	p, err := s.repo.GrantByAuthUserID(ctx, id.UserID, g)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, ErrNoProfile
		}
		return nil, fmt.Errorf("granting premium: %w", err)
	}

	slog.Info("license activated", "profileId", p.ID, "authUserId", id.UserID, "expiresAt", g.ExpiresAt)
	return &Result{PremiumExpiresAt: g.ExpiresAt, Profile: p}, nil
}
