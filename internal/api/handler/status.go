package handler

import (
	"context"
	"errors"
	"time"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/entitlement"
	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/profile"
	"github.com/hafedapp/entitlement/internal/reconcile"
)

const defaultResolveTimeout = 5 * time.Second

// StatusResolver computes the caller's current entitlement. It is consulted
// on every read and never cached.
type StatusResolver struct {
	reconciler *reconcile.Service
	evaluator  *entitlement.Evaluator
	timeout    time.Duration
}

// NewStatusResolver creates a StatusResolver. timeout bounds the profile
// lookup; zero means five seconds.
func NewStatusResolver(reconciler *reconcile.Service, evaluator *entitlement.Evaluator, timeout time.Duration) *StatusResolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &StatusResolver{reconciler: reconciler, evaluator: evaluator, timeout: timeout}
}

// callerStatus is the outcome of a status lookup.
type callerStatus struct {
	entitlement.Status
	Profile  *profile.Profile
	Degraded bool // the store did not answer in time; treated as not premium
}

// Resolve looks up id's profile, claiming or registering it when needed.
// A nil id is anonymous. Store failures and deadlines degrade to the
// answer for a caller without a profile.
func (s *StatusResolver) Resolve(ctx context.Context, id *identity.Identity) callerStatus {
	if id == nil {
		return callerStatus{Status: s.evaluator.Evaluate("", nil)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.reconciler.Resolve(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, profile.ErrNotFound):
		p = nil
	default:
		middleware.Logger(ctx).Warn("resolving entitlement degraded", "authUserId", id.UserID, "error", err)
		return callerStatus{Status: s.evaluator.Evaluate(id.Email, nil), Degraded: true}
	}

	return callerStatus{Status: s.evaluator.Evaluate(id.Email, p), Profile: p}
}
