package profile

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile represents a row in the profiles table.
type Profile struct {
	ID               uuid.UUID
	AuthUserID       *string // nil for a shadow profile created from a purchase
	Email            string
	FullName         string
	IsPremium        bool
	LicenseKey       *string
	PremiumExpiresAt *time.Time // nil means the grant never expires
	IsAdmin          bool
	Level            int
	XP               int
	Streak           int
	Badges           []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsShadow reports whether the profile has not been claimed by any authenticated user.
func (p *Profile) IsShadow() bool {
	return p.AuthUserID == nil
}

// Grant holds the premium fields written by a purchase or a license activation.
type Grant struct {
	LicenseKey *string
	ExpiresAt  time.Time
}

// Counts is a point-in-time breakdown of the profiles table.
type Counts struct {
	Total   int64
	Shadow  int64
	Premium int64 // premium and not yet expired
	Expired int64 // premium flag set but past expiry
}

// NormalizeEmail lower-cases and trims an email so it can be used as a join key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewShadow builds an unclaimed premium profile with default progression.
func NewShadow(email string, g Grant) *Profile {
	return &Profile{
		Email:            NormalizeEmail(email),
		IsPremium:        true,
		LicenseKey:       g.LicenseKey,
		PremiumExpiresAt: &g.ExpiresAt,
		Level:            1,
		Badges:           []string{},
	}
}

// NewLinked builds a fresh non-premium profile owned by an authenticated user.
func NewLinked(authUserID, email, fullName string) *Profile {
	return &Profile{
		AuthUserID: &authUserID,
		Email:      NormalizeEmail(email),
		FullName:   fullName,
		Level:      1,
		Badges:     []string{},
	}
}
