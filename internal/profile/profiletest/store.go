// Package profiletest provides an in-memory profile.Repository that enforces
// the same uniqueness and compare-and-swap rules as the Postgres schema.
package profiletest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hafedapp/entitlement/internal/profile"
)

// Store is a concurrency-safe in-memory profile.Repository.
type Store struct {
	mu   sync.Mutex
	rows []*profile.Profile

	// Err, when set, is returned by every operation.
	Err error
}

var _ profile.Repository = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Put seeds a profile directly, bypassing uniqueness checks.
func (s *Store) Put(p *profile.Profile) *profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := clone(p)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Email = profile.NormalizeEmail(c.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
		c.UpdatedAt = c.CreatedAt
	}
	s.rows = append(s.rows, c)
	return clone(c)
}

// Profiles returns a copy of every stored profile.
func (s *Store) Profiles() []profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]profile.Profile, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, *clone(p))
	}
	return out
}

// ByEmail returns copies of every profile stored under email.
func (s *Store) ByEmail(email string) []profile.Profile {
	email = profile.NormalizeEmail(email)
	var out []profile.Profile
	for _, p := range s.Profiles() {
		if p.Email == email {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) GetByAuthUserID(_ context.Context, authUserID string) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if p := s.findByAuthUserID(authUserID); p != nil {
		return clone(p), nil
	}
	return nil, profile.ErrNotFound
}

func (s *Store) Create(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	email := profile.NormalizeEmail(p.Email)
	for _, row := range s.rows {
		if row.Email == email {
			return profile.ErrDuplicate
		}
		if p.AuthUserID != nil && row.AuthUserID != nil && *row.AuthUserID == *p.AuthUserID {
			return profile.ErrDuplicate
		}
	}

	now := time.Now().UTC()
	p.ID = uuid.New()
	p.Email = email
	p.CreatedAt = now
	p.UpdatedAt = now
	s.rows = append(s.rows, clone(p))
	return nil
}

func (s *Store) GrantByEmail(_ context.Context, email string, g profile.Grant) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}
	email = profile.NormalizeEmail(email)
	var n int64
	for _, row := range s.rows {
		if row.Email == email {
			applyGrant(row, g)
			n++
		}
	}
	return n, nil
}

func (s *Store) GrantByAuthUserID(_ context.Context, authUserID string, g profile.Grant) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	p := s.findByAuthUserID(authUserID)
	if p == nil {
		return nil, profile.ErrNotFound
	}
	applyGrant(p, g)
	return clone(p), nil
}

func (s *Store) ClaimShadow(_ context.Context, email, authUserID string) (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	email = profile.NormalizeEmail(email)
	for _, row := range s.rows {
		if row.Email != email || row.AuthUserID != nil {
			continue
		}
		if s.findByAuthUserID(authUserID) != nil {
			return nil, profile.ErrDuplicate
		}
		id := authUserID
		row.AuthUserID = &id
		row.UpdatedAt = time.Now().UTC()
		return clone(row), nil
	}
	return nil, profile.ErrNotFound
}

func (s *Store) Counts(_ context.Context, now time.Time) (profile.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return profile.Counts{}, s.Err
	}
	var c profile.Counts
	for _, row := range s.rows {
		c.Total++
		if row.AuthUserID == nil {
			c.Shadow++
		}
		if !row.IsPremium {
			continue
		}
		if row.PremiumExpiresAt == nil || row.PremiumExpiresAt.After(now) {
			c.Premium++
		} else {
			c.Expired++
		}
	}
	return c, nil
}

func (s *Store) findByAuthUserID(authUserID string) *profile.Profile {
	for _, row := range s.rows {
		if row.AuthUserID != nil && *row.AuthUserID == authUserID {
			return row
		}
	}
	return nil
}

func applyGrant(p *profile.Profile, g profile.Grant) {
	exp := g.ExpiresAt
	p.IsPremium = true
	p.LicenseKey = g.LicenseKey
	p.PremiumExpiresAt = &exp
	p.UpdatedAt = time.Now().UTC()
}

func clone(p *profile.Profile) *profile.Profile {
	c := *p
	if p.AuthUserID != nil {
		v := *p.AuthUserID
		c.AuthUserID = &v
	}
	if p.LicenseKey != nil {
		v := *p.LicenseKey
		c.LicenseKey = &v
	}
	if p.PremiumExpiresAt != nil {
		v := *p.PremiumExpiresAt
		c.PremiumExpiresAt = &v
	}
	c.Badges = slices.Clone(p.Badges)
	return &c
}
