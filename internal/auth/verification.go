package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Lifetimes for the two single-use token flows.
const (
	EmailVerificationTTL = 24 * time.Hour
	PasswordResetTTL     = time.Hour
)

// VerificationToken is a freshly minted single-use token. The Plaintext goes
// into the emailed link; only the Hash and Expiry are persisted. Consuming
// the token means hashing the presented plaintext, finding a non-expired
// match, applying the state transition, and clearing the stored pair.
type VerificationToken struct {
	Plaintext string
	Hash      string
	ExpiresAt time.Time
}

// NewVerificationToken mints a 32-byte random token with the given lifetime.
func NewVerificationToken(ttl time.Duration) (VerificationToken, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return VerificationToken{}, fmt.Errorf("auth: generating verification token: %w", err)
	}
	plaintext := hex.EncodeToString(b)
	return VerificationToken{
		Plaintext: plaintext,
		Hash:      HashVerificationToken(plaintext),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// HashVerificationToken maps a plaintext token to its stored form. SHA-256 is
// enough here — the input is 256 bits of randomness, not a human password, so
// a slow adaptive hash buys nothing.
func HashVerificationToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
