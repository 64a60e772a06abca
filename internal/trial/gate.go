package trial

import (
	"context"
	"errors"
	"fmt"
)

// Gate decides whether a subject may start another session of an action.
// Callers that are entitled to premium never reach the gate.
type Gate struct {
	store    Store
	policies map[Action]Policy
}

// NewGate creates a Gate. Actions missing from policies are unknown.
func NewGate(store Store, policies map[Action]Policy) *Gate {
	p := make(map[Action]Policy, len(policies))
	for a, pol := range policies {
		p[a] = pol
	}
	return &Gate{store: store, policies: p}
}

func (g *Gate) policy(action Action) (Policy, error) {
	p, ok := g.policies[action]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return p, nil
}

// CanPlay reports whether subject has quota left for action.
func (g *Gate) CanPlay(ctx context.Context, subject string, action Action) (bool, error) {
	left, err := g.Remaining(ctx, subject, action)
	if err != nil {
		return false, err
	}
	return left != 0, nil
}

// Record counts one use of action by subject.
func (g *Gate) Record(ctx context.Context, subject string, action Action) error {
	p, err := g.policy(action)
	if err != nil {
		return err
	}
	if p.Limit == Unlimited {
		return nil
	}
	if _, err := g.store.Incr(ctx, action, subject, p.Window); err != nil {
		return fmt.Errorf("recording %s use: %w", action, err)
	}
	return nil
}

// Start checks the quota and records the use. A denial is a *DeniedError.
// The check and the increment are not atomic; two simultaneous starts may
// both pass on the last remaining use.
func (g *Gate) Start(ctx context.Context, subject string, action Action) error {
	p, err := g.policy(action)
	if err != nil {
		return err
	}
	ok, err := g.CanPlay(ctx, subject, action)
	if err != nil {
		return err
	}
	if !ok {
		return &DeniedError{Reason: action, Limit: p.Limit}
	}
	return g.Record(ctx, subject, action)
}

// Remaining returns the uses left, or Unlimited.
func (g *Gate) Remaining(ctx context.Context, subject string, action Action) (int, error) {
	p, err := g.policy(action)
	if err != nil {
		return 0, err
	}
	if p.Limit == Unlimited {
		return Unlimited, nil
	}
	used, err := g.store.Count(ctx, action, subject)
	if err != nil {
		return 0, fmt.Errorf("reading %s usage: %w", action, err)
	}
	return max(p.Limit-used, 0), nil
}

// Actions lists the gated actions in a stable order.
func (g *Gate) Actions() []Action {
	out := make([]Action, 0, len(g.policies))
	for _, a := range []Action{ActionGame, ActionAnalysis} {
		if _, ok := g.policies[a]; ok {
			out = append(out, a)
		}
	}
	return out
}

// IsDenied reports whether err is a quota denial and returns it.
func IsDenied(err error) (*DeniedError, bool) {
	var d *DeniedError
	ok := errors.As(err, &d)
	return d, ok
}
