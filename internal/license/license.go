// Package license verifies license keys against the external license authority.
package license

import (
	"context"
	"errors"
)

// ErrAuthorityUnavailable is returned when the authority could not give an
// answer: transport failure, timeout, open breaker, 5xx or a malformed body.
// It never means the key is bad.
var ErrAuthorityUnavailable = errors.New("license authority unavailable")

// Verdict is the normalized outcome of a verification.
type Verdict string

const (
	VerdictValid   Verdict = "valid"
	VerdictInvalid Verdict = "invalid"
	VerdictRevoked Verdict = "revoked" // refunded, disputed or charged back
)

// Sale is the purchase metadata returned for a known key.
type Sale struct {
	SaleID       string
	ProductID    string
	Email        string
	Refunded     bool
	Disputed     bool
	Chargebacked bool
	Uses         int
}

// Result is the answer for one key.
type Result struct {
	Verdict Verdict
	Sale    *Sale // nil unless the authority recognised the key
}

// Verifier checks a license key for a product. Verification must be safely
// repeatable: it never consumes an activation.
type Verifier interface {
	Verify(ctx context.Context, productID, licenseKey string) (*Result, error)
}
