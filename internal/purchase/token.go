package purchase

import "golang.org/x/crypto/bcrypt"

// TokenChecker validates the shared secret appended to the webhook URL. The
// secret itself is never configured, only its bcrypt hash.
type TokenChecker struct {
	hash []byte
}

// NewTokenChecker returns a checker for hash. An empty hash disables the
// check.
func NewTokenChecker(hash string) *TokenChecker {
	return &TokenChecker{hash: []byte(hash)}
}

// Enabled reports whether a token is required.
func (c *TokenChecker) Enabled() bool {
	return c != nil && len(c.hash) > 0
}

// Check reports whether token matches. It always succeeds when disabled.
func (c *TokenChecker) Check(token string) bool {
	if !c.Enabled() {
		return true
	}
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.hash, []byte(token)) == nil
}

// HashToken produces a hash suitable for WEBHOOK_TOKEN_HASH.
func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
