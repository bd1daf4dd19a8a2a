// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Role controls what a user may do. Admins manage the catalog and other users.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	return s == string(RoleUser) || s == string(RoleAdmin)
}

// Provider tracks which identity paths can authenticate an account.
// A local account that later signs in with Google is promoted to "both".
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderBoth   Provider = "both"
)

// Image is a stored profile or catalog picture: an opaque id at the image
// host plus the public URL. "default" marks the placeholder avatar.
type Image struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// DefaultAvatar is used when registration has no image or the upload fails.
var DefaultAvatar = Image{PublicID: "default", URL: "/static/img/default_avatar.png"}

// IsDefault reports whether the image is still the placeholder.
func (im Image) IsDefault() bool {
	return im.PublicID == "" || im.PublicID == "default"
}

// User is the persisted account record.
//
// SecretHash is the bcrypt hash of the password. It is never populated by the
// default retrieval paths — only FindByEmailWithSecret returns it, and only
// for authentication. Google-only accounts carry a random, unusable hash.
//
// SecretChangedAt is backdated by one second whenever the password changes so
// that an access token minted in the same instant is still treated as stale.
type User struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`

	SecretHash string `json:"-"`
	Role       Role   `json:"role"`

	Image Image  `json:"image"`
	Bio   string `json:"bio,omitempty"`

	IsActive        bool     `json:"isActive"`
	IsEmailVerified bool     `json:"isEmailVerified"`
	Provider        Provider `json:"provider"`
	FederatedID     string   `json:"-"` // Google subject id, sparse-unique

	// Single-use, time-boxed token pairs. Only the SHA-256 hash of the
	// token is stored; the plaintext goes out in the emailed link.
	EmailVerificationToken     string    `json:"-"`
	EmailVerificationExpiresAt time.Time `json:"-"`
	PasswordResetToken         string    `json:"-"`
	PasswordResetExpiresAt     time.Time `json:"-"`

	SecretChangedAt time.Time `json:"-"`
	LoginAttempts   int       `json:"-"`
	LockUntil       time.Time `json:"-"`

	// TokenVersion invalidates all outstanding refresh tokens when rotated.
	TokenVersion string `json:"-"`

	LastLogin time.Time `json:"lastLogin,omitzero"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeEmail canonicalizes an email for storage and lookup. Uniqueness is
// case-insensitive, so every path through the store must normalize first.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CanAuthenticate reports whether the account is in an authenticatable state.
// Lock state is checked separately — a locked account fails authentication
// even when this returns true.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && u.IsEmailVerified
}

// IsLocked reports whether a login lockout is in force at time now.
// An expired lock still present on the record is treated as cleared; it is
// reset lazily on the next failed attempt.
func (u *User) IsLocked(now time.Time) bool {
	return !u.LockUntil.IsZero() && u.LockUntil.After(now)
}

// SecretChangedAfter reports whether the password was changed after the given
// token issue time. Stale admin tokens are rejected on this basis.
func (u *User) SecretChangedAfter(issuedAt time.Time) bool {
	if u.SecretChangedAt.IsZero() {
		return false
	}
	// Compare at second resolution — JWT iat has no sub-second precision.
	return issuedAt.Unix() < u.SecretChangedAt.Unix()
}
