package purchase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafedapp/entitlement/internal/profile"
	"github.com/hafedapp/entitlement/internal/profile/profiletest"
	"github.com/hafedapp/entitlement/internal/purchase"
)

const productID = "hafed-premium"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(store profile.Repository) (*purchase.Service, *clock) {
	clk := &clock{now: time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)}
	return purchase.NewService(store, productID, purchase.WithClock(clk.Now)), clk
}

func TestHandle_UnknownBuyerCreatesShadow(t *testing.T) {
	t.Parallel()

	// Arrange
	store := profiletest.NewStore()
	svc, clk := newService(store)

	// Act
	out, err := svc.Handle(context.Background(), purchase.Ping{
		Email: "  Buyer@Example.COM ", ProductID: productID, LicenseKey: " KEY-1 ",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, purchase.OutcomeShadowCreated, out)

	rows := store.ByEmail("buyer@example.com")
	require.Len(t, rows, 1)
	p := rows[0]
	assert.True(t, p.IsShadow())
	assert.True(t, p.IsPremium)
	require.NotNil(t, p.LicenseKey)
	assert.Equal(t, "KEY-1", *p.LicenseKey)
	require.NotNil(t, p.PremiumExpiresAt)
	assert.Equal(t, clk.Now().AddDate(0, 0, 30), *p.PremiumExpiresAt)
	assert.Equal(t, 1, p.Level)
	assert.Zero(t, p.XP)
	assert.Zero(t, p.Streak)
}

func TestHandle_RedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	store := profiletest.NewStore()
	svc, clk := newService(store)
	ping := purchase.Ping{Email: "buyer@example.com", ProductID: productID, LicenseKey: "KEY-1"}

	out, err := svc.Handle(context.Background(), ping)
	require.NoError(t, err)
	assert.Equal(t, purchase.OutcomeShadowCreated, out)

	clk.Advance(6 * time.Hour)
	second := clk.Now()

	out, err = svc.Handle(context.Background(), ping)
	require.NoError(t, err)
	assert.Equal(t, purchase.OutcomeUpgraded, out)

	rows := store.ByEmail("buyer@example.com")
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsPremium)
	assert.Equal(t, second.AddDate(0, 0, 30), *rows[0].PremiumExpiresAt, "expiry is refreshed, not accumulated")
}

func TestHandle_UpgradesClaimedProfile(t *testing.T) {
	t.Parallel()

	store := profiletest.NewStore()
	store.Put(profile.NewLinked("user-1", "member@example.com", "Member"))
	svc, _ := newService(store)

	out, err := svc.Handle(context.Background(), purchase.Ping{Email: "MEMBER@example.com", ProductID: productID})
	require.NoError(t, err)
	assert.Equal(t, purchase.OutcomeUpgraded, out)

	rows := store.ByEmail("member@example.com")
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsShadow())
	assert.True(t, rows[0].IsPremium)
	assert.Nil(t, rows[0].LicenseKey, "absent key is stored as null")
}

func TestHandle_IgnoresOtherProducts(t *testing.T) {
	t.Parallel()

	store := profiletest.NewStore()
	svc, _ := newService(store)

	out, err := svc.Handle(context.Background(), purchase.Ping{Email: "a@example.com", ProductID: "something-else"})
	require.NoError(t, err)
	assert.Equal(t, purchase.OutcomeIgnoredProduct, out)
	assert.Empty(t, store.Profiles())
}

func TestHandle_IgnoresRefunds(t *testing.T) {
	t.Parallel()

	store := profiletest.NewStore()
	svc, _ := newService(store)

	out, err := svc.Handle(context.Background(), purchase.Ping{Email: "a@example.com", ProductID: productID, Refunded: true})
	require.NoError(t, err)
	assert.Equal(t, purchase.OutcomeIgnoredRefund, out)
	assert.Empty(t, store.Profiles())
}

func TestHandle_MissingEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newService(profiletest.NewStore())

	_, err := svc.Handle(context.Background(), purchase.Ping{Email: "   ", ProductID: productID})
	assert.ErrorIs(t, err, purchase.ErrMissingEmail)
}

func TestHandle_StoreFailure(t *testing.T) {
	t.Parallel()

	store := profiletest.NewStore()
	store.Err = errors.New("db down")
	svc, _ := newService(store)

	_, err := svc.Handle(context.Background(), purchase.Ping{Email: "a@example.com", ProductID: productID})
	assert.ErrorContains(t, err, "db down")
}

func TestHandle_ConcurrentDeliveries(t *testing.T) {
	t.Parallel()

	store := profiletest.NewStore()
	svc, _ := newService(store)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Handle(context.Background(), purchase.Ping{Email: "rush@example.com", ProductID: productID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.ByEmail("rush@example.com"), 1)
}

// --- TokenChecker Tests ---

func TestTokenChecker(t *testing.T) {
	t.Parallel()

	hash, err := purchase.HashToken("s3cret")
	require.NoError(t, err)

	c := purchase.NewTokenChecker(hash)
	assert.True(t, c.Enabled())
	assert.True(t, c.Check("s3cret"))
	assert.False(t, c.Check("wrong"))
	assert.False(t, c.Check(""))

	disabled := purchase.NewTokenChecker("")
	assert.False(t, disabled.Enabled())
	assert.True(t, disabled.Check(""))
}
