package profile

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no profile matches the lookup key.
var ErrNotFound = errors.New("profile not found")

// ErrDuplicate is returned when an insert or claim collides with an existing
// profile for the same email or the same authenticated user.
var ErrDuplicate = errors.New("profile already exists")

// Repository provides key-based access to the profiles table. It carries no
// business rules; conditional writes are the only synchronization point.
type Repository interface {
	// GetByAuthUserID returns the profile linked to an authenticated user.
	GetByAuthUserID(ctx context.Context, authUserID string) (*Profile, error)
	// Create inserts a profile and fills in ID and timestamps.
	Create(ctx context.Context, p *Profile) error
	// GrantByEmail refreshes premium on every profile with the given email,
	// claimed or not, and reports how many rows were updated.
	GrantByEmail(ctx context.Context, email string, g Grant) (int64, error)
	// GrantByAuthUserID refreshes premium on the caller's own profile.
	GrantByAuthUserID(ctx context.Context, authUserID string, g Grant) (*Profile, error)
	// ClaimShadow links the shadow profile for email to authUserID, only if it
	// is still unclaimed at write time. Returns ErrNotFound when no row was
	// updated.
	ClaimShadow(ctx context.Context, email, authUserID string) (*Profile, error)
	// Counts aggregates the table as of now.
	Counts(ctx context.Context, now time.Time) (Counts, error)
}
