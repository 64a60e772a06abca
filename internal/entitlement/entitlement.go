// Package entitlement decides whether a profile currently has premium access.
// Everything here is pure: callers pass the clock in and get a fresh answer on
// every read.
package entitlement

import (
	"time"

	"github.com/hafedapp/entitlement/internal/profile"
)

// GrantDays is the flat premium window re-armed by every purchase webhook and
// every successful license activation. It is a business-policy constant and is
// not derived from the purchase's own terms.
const GrantDays = 30

// GrantExpiry returns the expiry for a grant issued at now.
func GrantExpiry(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, GrantDays)
}

// IsEntitled reports whether p has premium access at now. A stored premium flag
// with a past expiry does not count; a nil expiry never lapses.
func IsEntitled(p *profile.Profile, now time.Time) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin {
		return true
	}
	return p.IsPremium && (p.PremiumExpiresAt == nil || p.PremiumExpiresAt.After(now))
}
