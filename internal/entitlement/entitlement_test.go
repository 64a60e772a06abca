package entitlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hafedapp/entitlement/internal/entitlement"
	"github.com/hafedapp/entitlement/internal/profile"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestIsEntitled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		profile *profile.Profile
		want    bool
	}{
		{name: "nil profile", profile: nil, want: false},
		{name: "free", profile: &profile.Profile{}, want: false},
		{name: "premium without expiry", profile: &profile.Profile{IsPremium: true}, want: true},
		{name: "premium in window", profile: &profile.Profile{IsPremium: true, PremiumExpiresAt: at(time.Hour)}, want: true},
		{name: "premium expired", profile: &profile.Profile{IsPremium: true, PremiumExpiresAt: at(-time.Second)}, want: false},
		{name: "premium expiring exactly now", profile: &profile.Profile{IsPremium: true, PremiumExpiresAt: at(0)}, want: false},
		{name: "expiry without premium flag", profile: &profile.Profile{PremiumExpiresAt: at(time.Hour)}, want: false},
		{name: "admin overrides expiry", profile: &profile.Profile{IsAdmin: true, IsPremium: true, PremiumExpiresAt: at(-48 * time.Hour)}, want: true},
		{name: "admin without premium", profile: &profile.Profile{IsAdmin: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, entitlement.IsEntitled(tt.profile, now))
		})
	}
}

func TestIsEntitled_ExpiredNeverEntitledUnlessAdmin(t *testing.T) {
	t.Parallel()

	for _, past := range []time.Duration{-time.Nanosecond, -time.Hour, -24 * time.Hour, -365 * 24 * time.Hour} {
		p := &profile.Profile{IsPremium: true, PremiumExpiresAt: at(past)}
		assert.False(t, entitlement.IsEntitled(p, now), "expired by %s", -past)

		p.IsAdmin = true
		assert.True(t, entitlement.IsEntitled(p, now), "admin expired by %s", -past)
	}
}

func TestGrantExpiry_ThirtyCalendarDays(t *testing.T) {
	t.Parallel()

	got := entitlement.GrantExpiry(now)
	assert.Equal(t, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC), got)
}

func TestEvaluator_Evaluate(t *testing.T) {
	t.Parallel()

	ev := entitlement.NewEvaluator([]string{" Owner@Example.com "}, entitlement.WithClock(func() time.Time { return now }))

	t.Run("allowlisted caller without profile", func(t *testing.T) {
		st := ev.Evaluate("owner@example.com", nil)
		assert.True(t, st.Entitled)
		assert.Equal(t, entitlement.ReasonAllowlist, st.Reason)
	})

	t.Run("allowlisted profile email", func(t *testing.T) {
		st := ev.Evaluate("", &profile.Profile{Email: "owner@example.com"})
		assert.True(t, st.Entitled)
		assert.Equal(t, entitlement.ReasonAllowlist, st.Reason)
	})

	t.Run("anonymous", func(t *testing.T) {
		st := ev.Evaluate("", nil)
		assert.False(t, st.Entitled)
		assert.Equal(t, entitlement.ReasonFree, st.Reason)
	})

	t.Run("store admin", func(t *testing.T) {
		st := ev.Evaluate("a@example.com", &profile.Profile{Email: "a@example.com", IsAdmin: true})
		assert.True(t, st.Entitled)
		assert.Equal(t, entitlement.ReasonAdmin, st.Reason)
	})

	t.Run("premium reports expiry", func(t *testing.T) {
		exp := at(72 * time.Hour)
		st := ev.Evaluate("p@example.com", &profile.Profile{Email: "p@example.com", IsPremium: true, PremiumExpiresAt: exp})
		assert.True(t, st.Entitled)
		assert.Equal(t, entitlement.ReasonPremium, st.Reason)
		assert.Equal(t, exp, st.ExpiresAt)
	})

	t.Run("expired premium", func(t *testing.T) {
		st := ev.Evaluate("p@example.com", &profile.Profile{Email: "p@example.com", IsPremium: true, PremiumExpiresAt: at(-time.Minute)})
		assert.False(t, st.Entitled)
		assert.Equal(t, entitlement.ReasonExpired, st.Reason)
	})
}
