package entitlement

import (
	"time"

	"github.com/hafedapp/entitlement/internal/profile"
)

// Reason explains how a Status was reached.
type Reason string

const (
	ReasonAdmin     Reason = "admin"
	ReasonAllowlist Reason = "allowlist"
	ReasonPremium   Reason = "premium"
	ReasonExpired   Reason = "expired"
	ReasonFree      Reason = "free"
)

// Status is the derived entitlement of one caller at one instant.
type Status struct {
	Entitled  bool
	Reason    Reason
	ExpiresAt *time.Time
}

// Evaluator applies IsEntitled plus the operator allowlist. The allowlist is
// fixed at construction.
type Evaluator struct {
	admins map[string]struct{}
	now    func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an Evaluator granting full access to the given emails.
func NewEvaluator(adminEmails []string, opts ...Option) *Evaluator {
	e := &Evaluator{
		admins: make(map[string]struct{}, len(adminEmails)),
		now:    time.Now,
	}
	for _, email := range adminEmails {
		if n := profile.NormalizeEmail(email); n != "" {
			e.admins[n] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsAllowlisted reports whether email is on the operator allowlist.
func (e *Evaluator) IsAllowlisted(email string) bool {
	_, ok := e.admins[profile.NormalizeEmail(email)]
	return ok
}

// Evaluate computes the status for a caller. p may be nil when the caller has
// no profile yet; email is the caller's verified email and may be empty.
func (e *Evaluator) Evaluate(email string, p *profile.Profile) Status {
	if e.IsAllowlisted(email) || (p != nil && e.IsAllowlisted(p.Email)) {
		return Status{Entitled: true, Reason: ReasonAllowlist}
	}
	if p == nil {
		return Status{Reason: ReasonFree}
	}
	if p.IsAdmin {
		return Status{Entitled: true, Reason: ReasonAdmin}
	}
	if IsEntitled(p, e.now()) {
		return Status{Entitled: true, Reason: ReasonPremium, ExpiresAt: p.PremiumExpiresAt}
	}
	if p.IsPremium {
		return Status{Reason: ReasonExpired, ExpiresAt: p.PremiumExpiresAt}
	}
	return Status{Reason: ReasonFree}
}
