// Package purchase applies purchase notifications from the payment platform
// to the profile store.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hafedapp/entitlement/internal/entitlement"
	"github.com/hafedapp/entitlement/internal/profile"
)

// ErrMissingEmail is returned for a ping that does not name the buyer.
var ErrMissingEmail = errors.New("purchase ping has no email")

// Outcome describes what a ping did.
type Outcome string

const (
	OutcomeIgnoredProduct Outcome = "ignored_product"
	OutcomeIgnoredRefund  Outcome = "ignored_refund"
	OutcomeUpgraded       Outcome = "upgraded"
	OutcomeShadowCreated  Outcome = "shadow_created"
)

// Ping is a single sale notification.
type Ping struct {
	Email      string
	ProductID  string
	LicenseKey string
	SaleID     string
	Refunded   bool
}

// Service upserts premium grants for buyers.
type Service struct {
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

// NewService creates a Service that only honours pings for productID.
func NewService(repo profile.Repository, productID string, opts ...Option) *Service {
	s := &Service{repo: repo, productID: productID, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle applies a ping. Delivering the same ping again leaves one profile
// with its expiry refreshed from the later delivery.
func (s *Service) Handle(ctx context.Context, ping Ping) (Outcome, error) {
	if ping.ProductID != s.productID {
		return OutcomeIgnoredProduct, nil
	}

	email := profile.NormalizeEmail(ping.Email)
	if email == "" {
		return "", ErrMissingEmail
	}

	if ping.Refunded {
		slog.Info("refund ping ignored", "email", email, "saleId", ping.SaleID)
		return OutcomeIgnoredRefund, nil
	}

	g := profile.Grant{ExpiresAt: entitlement.GrantExpiry(s.now())}
	if key := strings.TrimSpace(ping.LicenseKey); key != "" {
		g.LicenseKey = &key
	}

	upgraded, err := s.upgrade(ctx, email, g)
	if err != nil {
		return "", err
	}
	if upgraded {
		return OutcomeUpgraded, nil
	}

	err = s.repo.Create(ctx, profile.NewShadow(email, g))
	if err == nil {
		slog.Info("shadow profile created", "email", email, "saleId", ping.SaleID)
		return OutcomeShadowCreated, nil
	}
	if !errors.Is(err, profile.ErrDuplicate) {
		return "", fmt.Errorf("creating shadow profile: %w", err)
	}

	// A concurrent delivery or sign-up inserted the row first.
	upgraded, err = s.upgrade(ctx, email, g)
	if err != nil {
		return "", err
	}
	if !upgraded {
		return "", fmt.Errorf("profile for %s vanished after duplicate insert", email)
	}
	return OutcomeUpgraded, nil
}

func (s *Service) upgrade(ctx context.Context, email string, g profile.Grant) (bool, error) {
	n, err := s.repo.GrantByEmail(ctx, email, g)
	if err != nil {
		return false, fmt.Errorf("granting premium: %w", err)
	}
	if n > 0 {
		slog.Info("premium granted from purchase", "email", email, "profiles", n, "expiresAt", g.ExpiresAt)
	}
	return n > 0, nil
}
