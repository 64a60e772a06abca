package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const profileColumns = `id, auth_user_id, email, full_name, is_premium, license_key,
		       premium_expires_at, is_admin, level, xp, streak, badges,
		       created_at, updated_at`

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// GetByAuthUserID retrieves the profile linked to an authenticated user.
func (r *PostgresRepository) GetByAuthUserID(ctx context.Context, authUserID string) (*Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE auth_user_id = $1`

	return r.scanOne(ctx, query, authUserID)
}

// Create inserts a new profile. The unique email index turns a concurrent
// insert for the same buyer into ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (auth_user_id, email, full_name, is_premium, license_key,
		                      premium_expires_at, is_admin, level, xp, streak, badges)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}

	err := r.pool.QueryRow(ctx, query,
		p.AuthUserID,
		NormalizeEmail(p.Email),
		p.FullName,
		p.IsPremium,
		p.LicenseKey,
		p.PremiumExpiresAt,
		p.IsAdmin,
		p.Level,
		p.XP,
		p.Streak,
		badges,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting profile: %w", err)
	}

	return nil
}

// GrantByEmail sets premium on every profile with the given email.
func (r *PostgresRepository) GrantByEmail(ctx context.Context, email string, g Grant) (int64, error) {
	query := `
		UPDATE profiles
		SET is_premium = TRUE, license_key = $2, premium_expires_at = $3, updated_at = NOW()
		WHERE email = $1`

	result, err := r.pool.Exec(ctx, query, NormalizeEmail(email), g.LicenseKey, g.ExpiresAt)
	if err != nil {
		return 0, fmt.Errorf("granting premium by email: %w", err)
	}

	return result.RowsAffected(), nil
}

// GrantByAuthUserID sets premium on the profile owned by authUserID.
func (r *PostgresRepository) GrantByAuthUserID(ctx context.Context, authUserID string, g Grant) (*Profile, error) {
	query := `
		UPDATE profiles
		SET is_premium = TRUE, license_key = $2, premium_expires_at = $3, updated_at = NOW()
		WHERE auth_user_id = $1
		RETURNING ` + profileColumns

	return r.scanOne(ctx, query, authUserID, g.LicenseKey, g.ExpiresAt)
}

// ClaimShadow is a compare-and-swap on auth_user_id IS NULL. Of two concurrent
// claims for the same shadow row only one sees a returned row.
func (r *PostgresRepository) ClaimShadow(ctx context.Context, email, authUserID string) (*Profile, error) {
	query := `
		UPDATE profiles
		SET auth_user_id = $2, updated_at = NOW()
		WHERE email = $1 AND auth_user_id IS NULL
		RETURNING ` + profileColumns

	p, err := r.scanOne(ctx, query, NormalizeEmail(email), authUserID)
	if err != nil {
		if isUniqueViolation(err) {
			// authUserID already owns another profile.
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return p, nil
}

// Counts aggregates shadow and premium totals in a single scan.
func (r *PostgresRepository) Counts(ctx context.Context, now time.Time) (Counts, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE auth_user_id IS NULL),
		       COUNT(*) FILTER (WHERE is_premium AND (premium_expires_at IS NULL OR premium_expires_at > $1)),
		       COUNT(*) FILTER (WHERE is_premium AND premium_expires_at <= $1)
		FROM profiles`

	var c Counts
	if err := r.pool.QueryRow(ctx, query, now).Scan(&c.Total, &c.Shadow, &c.Premium, &c.Expired); err != nil {
		return Counts{}, fmt.Errorf("counting profiles: %w", err)
	}
	return c, nil
}

// scanOne scans a single Profile row from a query. Returns ErrNotFound if no rows.
func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.AuthUserID, &p.Email, &p.FullName, &p.IsPremium, &p.LicenseKey,
		&p.PremiumExpiresAt, &p.IsAdmin, &p.Level, &p.XP, &p.Streak, &p.Badges,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning profile row: %w", err)
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
