package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerificationToken(t *testing.T) {
	before := time.Now()
	tok, err := NewVerificationToken(EmailVerificationTTL)
	require.NoError(t, err)

	assert.Len(t, tok.Plaintext, 64, "32 random bytes hex-encoded")
	assert.Equal(t, HashVerificationToken(tok.Plaintext), tok.Hash)
	assert.NotEqual(t, tok.Plaintext, tok.Hash, "stored form must not be the plaintext")

	expected := before.Add(EmailVerificationTTL)
	assert.WithinDuration(t, expected, tok.ExpiresAt, 5*time.Second)
}

func TestNewVerificationToken_Unique(t *testing.T) {
	a, err := NewVerificationToken(PasswordResetTTL)
	require.NoError(t, err)
	b, err := NewVerificationToken(PasswordResetTTL)
	require.NoError(t, err)

	assert.NotEqual(t, a.Plaintext, b.Plaintext)
}

func TestHashVerificationToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashVerificationToken("abc"), HashVerificationToken("abc"))
	assert.NotEqual(t, HashVerificationToken("abc"), HashVerificationToken("abd"))
}
