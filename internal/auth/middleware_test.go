package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
)

// fakeAccounts is a two-method AccountSource backed by a map.
type fakeAccounts struct {
	users       map[string]*model.User
	setVersions []string // versions persisted via SetTokenVersion, in order
}

func (f *fakeAccounts) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeAccounts) SetTokenVersion(_ context.Context, id, version string) error {
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.TokenVersion = version
	f.setVersions = append(f.setVersions, version)
	return nil
}

type sessionFixture struct {
	sessions *Sessions
	tokens   *TokenService
	accounts *fakeAccounts
}

// okHandler records that the request got through and echoes the context user.
func okHandler(t *testing.T, hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		user, ok := UserFromContext(r.Context())
		require.True(t, ok, "user must be attached to the context")
		require.NotNil(t, user)
		w.WriteHeader(http.StatusOK)
	})
}

func newSessionFixture(t *testing.T, accessTTL time.Duration) *sessionFixture {
	t.Helper()
	tokens, err := NewTokenService(
		"test-access-secret-0123456789", "test-refresh-secret-0123456789",
		accessTTL, 7*24*time.Hour)
	require.NoError(t, err)

	accounts := &fakeAccounts{users: map[string]*model.User{
		"user-1": {
			ID: "user-1", Role: model.RoleUser,
			IsActive: true, IsEmailVerified: true,
		},
	}}

	sessions := NewSessions(tokens, accounts, CookieWriter{}, slog.New(slog.DiscardHandler))
	return &sessionFixture{sessions: sessions, tokens: tokens, accounts: accounts}
}

func (fx *sessionFixture) issueFor(t *testing.T, id string) TokenPair {
	t.Helper()
	pair, err := fx.tokens.Issue(fx.accounts.users[id])
	require.NoError(t, err)
	fx.accounts.users[id].TokenVersion = pair.RefreshVersion
	return pair
}

func TestRequire_BearerHeader(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	pair := fx.issueFor(t, "user-1")

	var hit bool
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hit)
}

func TestRequire_CookieFallback(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	pair := fx.issueFor(t, "user-1")

	var hit bool
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: pair.AccessToken})
	rec := httptest.NewRecorder()
	fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hit)
}

func TestRequire_MissingAndGarbageTokens(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)

	var hit bool
	for _, header := range []string{"", "Bearer garbage", "NotBearer abc"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
	assert.False(t, hit)
}

// expiredAccessToken signs an access token that is already expired, without
// waiting for a real TTL to lapse.
func expiredAccessToken(t *testing.T, secret string, user *model.User) string {
	t.Helper()
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    "gadget-galaxy-api",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-30 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRequire_SilentRefresh(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	pair := fx.issueFor(t, "user-1")
	expired := expiredAccessToken(t, "test-access-secret-0123456789", fx.accounts.users["user-1"])

	var hit bool
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: expired})
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: pair.RefreshToken})
	rec := httptest.NewRecorder()
	fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "expired access + valid refresh must pass")
	assert.True(t, hit)

	// Fresh cookies were set for both tokens.
	var gotAccess, gotRefresh string
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case AccessCookie:
			gotAccess = c.Value
		case RefreshCookie:
			gotRefresh = c.Value
		}
	}
	assert.NotEmpty(t, gotAccess)
	assert.NotEmpty(t, gotRefresh)
	assert.NotEqual(t, pair.RefreshToken, gotRefresh, "refresh token must rotate")

	// The new version was persisted, superseding the presented token.
	require.NotEmpty(t, fx.accounts.setVersions)
	assert.Equal(t, fx.accounts.setVersions[len(fx.accounts.setVersions)-1],
		fx.accounts.users["user-1"].TokenVersion)
	assert.NotEqual(t, pair.RefreshVersion, fx.accounts.users["user-1"].TokenVersion)
}

func TestRequire_RefreshVersionMismatch(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	pair := fx.issueFor(t, "user-1")
	expired := expiredAccessToken(t, "test-access-secret-0123456789", fx.accounts.users["user-1"])

	// Simulate logout-everywhere: the account's version rotated after this
	// refresh token was minted.
	fx.accounts.users["user-1"].TokenVersion = NewTokenVersion()

	var hit bool
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: expired})
	req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: pair.RefreshToken})
	rec := httptest.NewRecorder()
	fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestRequire_ExpiredAccessWithoutRefreshCookie(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	expired := expiredAccessToken(t, "test-access-secret-0123456789", fx.accounts.users["user-1"])

	var hit bool
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: expired})
	rec := httptest.NewRecorder()
	fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestRequire_InactiveAndUnverified(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	pair := fx.issueFor(t, "user-1")

	fx.accounts.users["user-1"].IsActive = false
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	var hit bool
	fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	fx.accounts.users["user-1"].IsActive = true
	fx.accounts.users["user-1"].IsEmailVerified = false
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	fx.sessions.Require(okHandler(t, &hit)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"requiresVerification":true`)
	assert.False(t, hit)
}

func TestRequireRole(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	fx.accounts.users["admin-1"] = &model.User{
		ID: "admin-1", Role: model.RoleAdmin,
		IsActive: true, IsEmailVerified: true,
	}

	adminOnly := fx.sessions.Require(
		fx.sessions.RequireRole(model.RoleAdmin)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	userPair := fx.issueFor(t, "user-1")
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userPair.AccessToken)
	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminPair := fx.issueFor(t, "admin-1")
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminPair.AccessToken)
	rec = httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_StaleAdminToken(t *testing.T) {
	fx := newSessionFixture(t, 15*time.Minute)
	fx.accounts.users["admin-1"] = &model.User{
		ID: "admin-1", Role: model.RoleAdmin,
		IsActive: true, IsEmailVerified: true,
	}
	pair := fx.issueFor(t, "admin-1")

	// Password changed after the token was issued.
	fx.accounts.users["admin-1"].SecretChangedAt = time.Now().Add(5 * time.Second)

	adminOnly := fx.sessions.Require(
		fx.sessions.RequireRole(model.RoleAdmin)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Recent password change detected")
}
