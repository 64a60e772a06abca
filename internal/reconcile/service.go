// Package reconcile links shadow profiles created by purchases to the
// authenticated accounts of their buyers.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/profile"
)

// ErrNoEmail is returned when a claim is attempted for a caller whose
// credential carries no verified email.
var ErrNoEmail = errors.New("caller has no verified email")

// ClaimRecorder observes claim attempts.
type ClaimRecorder interface {
	ClaimAttempt(claimed bool)
}

// Service resolves the profile of an authenticated caller.
type Service struct {
	repo         profile.Repository
	autoRegister bool
	recorder     ClaimRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithAutoRegister makes Resolve create a linked profile for callers that
// own none and have nothing to claim.
func WithAutoRegister(v bool) Option {
	return func(s *Service) { s.autoRegister = v }
}

// WithRecorder reports claim outcomes to rec.
func WithRecorder(rec ClaimRecorder) Option {
	return func(s *Service) { s.recorder = rec }
}

// NewService creates a reconciliation Service.
func NewService(repo profile.Repository, opts ...Option) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveProfile reads the profile linked to the caller. It returns
// profile.ErrNotFound when the caller owns none yet.
func (s *Service) ResolveProfile(ctx context.Context, id *identity.Identity) (*profile.Profile, error) {
	return s.repo.GetByAuthUserID(ctx, id.UserID)
}

// ClaimShadow links the unclaimed profile registered under the caller's
// verified email to the caller. A missing or already claimed shadow is not an
// error; it reports false.
func (s *Service) ClaimShadow(ctx context.Context, id *identity.Identity) (bool, error) {
	if id.Email == "" {
		return false, ErrNoEmail
	}

	p, err := s.repo.ClaimShadow(ctx, id.Email, id.UserID)
	switch {
	case err == nil:
		slog.Info("shadow profile claimed", "profileId", p.ID, "authUserId", id.UserID)
		s.record(true)
		return true, nil
	case errors.Is(err, profile.ErrNotFound), errors.Is(err, profile.ErrDuplicate):
		s.record(false)
		return false, nil
	default:
		return false, fmt.Errorf("claiming shadow profile: %w", err)
	}
}

// Resolve returns the caller's profile, claiming a shadow profile or
// registering a new one when the caller has none. With auto-registration
// disabled and nothing to claim it returns profile.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, id *identity.Identity) (*profile.Profile, error) {
	p, err := s.ResolveProfile(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if id.Email == "" {
		return nil, profile.ErrNotFound
	}

	claimed, err := s.ClaimShadow(ctx, id)
	if err != nil {
		return nil, err
	}
	if claimed {
		return s.reread(ctx, id)
	}
	if !s.autoRegister {
		return nil, profile.ErrNotFound
	}

	np := profile.NewLinked(id.UserID, id.Email, "")
	err = s.repo.Create(ctx, np)
	if err == nil {
		slog.Info("profile registered", "profileId", np.ID, "authUserId", id.UserID)
		return np, nil
	}
	if !errors.Is(err, profile.ErrDuplicate) {
		return nil, fmt.Errorf("registering profile: %w", err)
	}

	// Lost a race: either a concurrent request of this caller registered
	// first, or a purchase created a shadow for the email in between.
	if p, err := s.ResolveProfile(ctx, id); err == nil {
		return p, nil
	}
	claimed, err = s.ClaimShadow(ctx, id)
	if err != nil {
		return nil, err
	}
	if claimed {
		return s.reread(ctx, id)
	}
	// The email belongs to another account.
	return nil, profile.ErrNotFound
}

func (s *Service) reread(ctx context.Context, id *identity.Identity) (*profile.Profile, error) {
	p, err := s.ResolveProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading claimed profile: %w", err)
	}
	return p, nil
}

func (s *Service) record(claimed bool) {
	if s.recorder != nil {
		s.recorder.ClaimAttempt(claimed)
	}
}
