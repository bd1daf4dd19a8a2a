// Package auth provides the credential primitives for the admin API: JWT
// issuance and verification, password hashing, email-verification tokens,
// Google identity verification, and the per-request session middleware.
//
// TWO-TOKEN SESSION MODEL:
// Every login mints a pair of stateless HS256 JWTs:
//
//   - Access token (15 min): claims {sub=userID, role}. Authorizes every
//     protected request. No server-side store — revocation is achieved by the
//     short expiry plus the per-request isActive check.
//   - Refresh token (7 days): claims {sub, role, version}. Used only to mint
//     a fresh pair when the access token expires. The version is a random
//     nonce persisted on the account; rotating the account's tokenVersion
//     invalidates every outstanding refresh token at once.
//
// The two kinds are signed with different secrets so an access token can
// never be replayed as a refresh token or vice versa.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/volfir1/gadget-galaxy-api/internal/model"
)

const tokenIssuer = "gadget-galaxy-api"

// Verification failure modes. The middleware branches on ErrTokenExpired to
// attempt a silent refresh; every other failure is terminal.
var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Claims is the JWT payload for both token kinds. Role travels in the token
// so the middleware can short-circuit obvious authorization failures; the
// account record remains the source of truth and is re-checked per request.
// Version is set only on refresh tokens.
type Claims struct {
	Role    model.Role `json:"role"`
	Version string     `json:"version,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair bundles the two tokens minted by Issue so the handler can set
// both cookies in one step.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// RefreshVersion is the random nonce embedded in the refresh token.
	// Callers persist it as the account's tokenVersion.
	RefreshVersion string
}

// TokenService signs and verifies the access/refresh token pair.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService creates a TokenService. Both secrets must be at least 16
// characters and must differ — a shared secret would collapse the two signing
// contexts into one.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(accessSecret) < 16 || len(refreshSecret) < 16 {
		return nil, errors.New("auth: JWT secrets must be at least 16 characters")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// Issue mints a fresh access/refresh pair for the user. The refresh token's
// version is a new random value on every call; the caller writes it back to
// the account so earlier refresh tokens stop matching.
func (s *TokenService) Issue(user *model.User) (TokenPair, error) {
	access, err := s.sign(s.accessSecret, Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID,
		},
	}, s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: signing access token: %w", err)
	}

	version := newTokenVersion()
	refresh, err := s.sign(s.refreshSecret, Claims{
		Role:    user.Role,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID,
		},
	}, s.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: signing refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:    access,
		RefreshToken:   refresh,
		RefreshVersion: version,
	}, nil
}

// VerifyAccess parses and verifies an access token.
// Returns ErrTokenExpired or ErrTokenInvalid on failure.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	return s.verify(s.accessSecret, token)
}

// VerifyRefresh parses and verifies a refresh token.
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return s.verify(s.refreshSecret, token)
}

// AccessTTL is the access-token lifetime, exposed for cookie max-age.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is the refresh-token lifetime, exposed for cookie max-age.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) sign(secret []byte, c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.Issuer = tokenIssuer
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(secret)
}

// verify checks signature, expiry, issuer, and algorithm.
//
// Passing jwt.WithValidMethods pins the algorithm to HS256 — without it an
// attacker could attempt an algorithm-confusion attack (e.g. "none").
func (s *TokenService) verify(secret []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return c, nil
}

// newTokenVersion returns a random 8-byte hex nonce. It is an opaque value —
// only equality with the account's persisted tokenVersion matters.
func newTokenVersion() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process has no usable entropy
		// source; nothing sensible can continue.
		panic(fmt.Sprintf("auth: reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// NewTokenVersion mints a fresh tokenVersion for account creation and
// session-wide invalidation ("log out everywhere").
func NewTokenVersion() string {
	return newTokenVersion()
}
