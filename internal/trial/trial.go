// Package trial meters how many gated sessions a non-premium user may start.
package trial

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Action is a gated activity with its own quota.
type Action string

const (
	ActionGame     Action = "game"
	ActionAnalysis Action = "analysis"
)

// Unlimited disables the quota for an action.
const Unlimited = -1

// ErrUnknownAction is returned for an action with no policy.
var ErrUnknownAction = errors.New("unknown trial action")

// ParseAction validates a client-supplied action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionGame, ActionAnalysis:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Policy bounds one action. A zero Window makes Limit a lifetime quota.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DeniedError reports that the quota for Reason is used up.
type DeniedError struct {
	Reason Action
	Limit  int
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("trial limit reached for %s (%d)", e.Reason, e.Limit)
}

// Store keeps usage counters keyed by action and subject.
type Store interface {
	Count(ctx context.Context, action Action, subject string) (int, error)
	// Incr adds one use and returns the new count. window > 0 expires the
	// counter that long after its first use.
	Incr(ctx context.Context, action Action, subject string, window time.Duration) (int, error)
}
