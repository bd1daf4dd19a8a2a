package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GOOGLE SIGN-IN — TWO ENTRY PATHS, ONE IDENTITY:
//
//  1. The admin console's Google popup posts the resulting ID token (the
//     "credential") to POST /auth/google. GoogleVerifier validates it locally
//     against Google's published JWKS — no round trip to Google per login
//     beyond the cached key fetch.
//  2. The server-side redirect flow (GET /auth/google/login → Google →
//     /auth/google/callback) uses the standard authorization-code exchange
//     via golang.org/x/oauth2 and reads the same claims from the userinfo
//     endpoint.
//
// Both paths produce a GoogleIdentity, which the auth service exchanges for a
// local account (create-or-link).

const (
	googleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Federated-path failure modes.
var (
	ErrInvalidAssertion = errors.New("auth: invalid Google credential")
	ErrEmailNotVerified = errors.New("auth: Google email not verified")
)

// GoogleIdentity is the verified identity claim extracted from Google.
type GoogleIdentity struct {
	SubjectID     string // Google's stable "sub" — stored as the account's federated id
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
}

// GoogleVerifier validates Google ID tokens ("credentials") offline.
//
// Keys are fetched from Google's JWKS endpoint and cached for an hour; a
// token signed by an unknown kid forces a refresh before failing, so key
// rotation on Google's side doesn't break logins mid-cache.
type GoogleVerifier struct {
	clientID string
	http     *http.Client

	mu     sync.RWMutex
	keys   map[string]*rsa.PublicKey // by kid
	keysAt time.Time
}

// NewGoogleVerifier creates a verifier for tokens minted for the given OAuth
// client id (the token's required audience).
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// googleClaims is the subset of ID-token claims we read.
type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// Verify validates the credential's signature, issuer, audience, and expiry,
// and requires the upstream email_verified claim.
//
// Returns ErrInvalidAssertion on any validation failure and
// ErrEmailNotVerified when Google reports the email unverified.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*GoogleIdentity, error) {
	token, err := jwt.ParseWithClaims(
		credential,
		&googleClaims{},
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, fmt.Errorf("missing kid header")
			}
			return v.keyForKid(ctx, kid)
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	c, ok := token.Claims.(*googleClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAssertion
	}

	// Google issues under both forms depending on the client library.
	if c.Issuer != "https://accounts.google.com" && c.Issuer != "accounts.google.com" {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidAssertion, c.Issuer)
	}
	if c.Subject == "" || c.Email == "" {
		return nil, fmt.Errorf("%w: missing subject or email", ErrInvalidAssertion)
	}
	if !c.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return &GoogleIdentity{
		SubjectID:     c.Subject,
		Email:         c.Email,
		EmailVerified: true,
		Name:          c.Name,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		Picture:       c.Picture,
	}, nil
}

// keyForKid returns the RSA public key for the given kid, refreshing the
// cached JWKS when the kid is unknown or the cache is older than an hour.
func (v *GoogleVerifier) keyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key := v.keys[kid]
	fresh := time.Since(v.keysAt) < time.Hour
	v.mu.RUnlock()
	if key != nil && fresh {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	key = v.keys[kid]
	v.mu.RUnlock()
	if key == nil {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

func (v *GoogleVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleJWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching Google JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching Google JWKS: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decoding Google JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		nb, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		eb, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		e := 0
		for _, b := range eb {
			e = e<<8 | int(b)
		}
		if e == 0 {
			e = 65537
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}
	}
	if len(keys) == 0 {
		return errors.New("Google JWKS contained no RSA keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.keysAt = time.Now()
	v.mu.Unlock()
	return nil
}

// GoogleProvider wraps golang.org/x/oauth2 for the server-side Google
// authorization-code flow (browser redirect, not the popup credential).
type GoogleProvider struct {
	config *oauth2.Config
	http   *http.Client
}

// NewGoogleProvider creates a GoogleProvider with the given credentials.
// callbackURL must match the redirect URI registered in the Google console.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthURL returns the Google authorization URL for the given CSRF state.
// The caller stores the state in a short-lived cookie and checks it on
// callback.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for a verified Google identity via
// the OpenID Connect userinfo endpoint.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchanging code: %v", ErrInvalidAssertion, err)
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: userinfo missing subject or email", ErrInvalidAssertion)
	}
	if !info.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	return &GoogleIdentity{
		SubjectID:     info.Sub,
		Email:         info.Email,
		EmailVerified: true,
		Name:          info.Name,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		Picture:       info.Picture,
	}, nil
}
