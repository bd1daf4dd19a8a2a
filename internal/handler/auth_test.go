package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volfir1/gadget-galaxy-api/internal/auth"
	"github.com/volfir1/gadget-galaxy-api/internal/email"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository/sqlite"
	"github.com/volfir1/gadget-galaxy-api/internal/service"
	"github.com/volfir1/gadget-galaxy-api/internal/upload"
)

// capturingMailer records outbound mail so tests can pull emailed tokens.
type capturingMailer struct {
	sent []string // text bodies
	to   []string
}

func (m *capturingMailer) Send(to, subject, htmlBody, textBody string) error {
	m.to = append(m.to, to)
	m.sent = append(m.sent, textBody)
	return nil
}

// apiFixture wires the real stack — chi router, services, in-memory SQLite —
// with only the mail relay and image host faked out.
type apiFixture struct {
	router chi.Router
	db     *sqlite.DB
	mailer *capturingMailer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService(
		"test-access-secret-0123456789", "test-refresh-secret-0123456789",
		15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	passwords := auth.NewPasswordServiceForTest(4)
	cookies := auth.CookieWriter{}
	sessions := auth.NewSessions(tokens, db, cookies, logger)

	mailer := &capturingMailer{}
	emails := email.NewService(mailer, "http://localhost:5173")

	images, err := upload.NewDiskStore(t.TempDir(), "")
	require.NoError(t, err)

	authService := service.NewAuthService(db, tokens, passwords, emails, images, logger)
	userService := service.NewUserService(db, passwords, logger)

	authHandler := NewAuthHandler(
		authService,
		auth.NewGoogleVerifier("test-client-id"),
		auth.NewGoogleProvider("test-client-id", "test-client-secret", "http://localhost/api/auth/google/callback"),
		tokens, sessions, cookies, "http://localhost:5173", logger)
	userHandler := NewUserHandler(userService, logger)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", authHandler.Routes)
		r.Route("/users", func(r chi.Router) {
			r.Use(sessions.Require)
			r.Use(sessions.RequireRole(model.RoleAdmin))
			userHandler.Routes(r)
		})
	})

	return &apiFixture{router: router, db: db, mailer: mailer}
}

func (fx *apiFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *apiFixture) postJSON(t *testing.T, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return fx.do(t, req)
}

// registerForm posts a multipart registration without an image file.
func (fx *apiFixture) registerForm(t *testing.T, name, emailAddr, password string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("name", name))
	require.NoError(t, w.WriteField("email", emailAddr))
	require.NoError(t, w.WriteField("password", password))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return fx.do(t, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// emailedToken extracts the token from the most recent captured email.
func (fx *apiFixture) emailedToken(t *testing.T, path string) string {
	t.Helper()
	require.NotEmpty(t, fx.mailer.sent)
	body := fx.mailer.sent[len(fx.mailer.sent)-1]
	marker := path + "?token="
	i := strings.Index(body, marker)
	require.GreaterOrEqual(t, i, 0)
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \n\r\t"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// TestRegisterVerifyLogin walks the happy path a new account takes: register,
// get refused at login while unverified, verify via the emailed token, log
// in, and hit a protected route with the session cookies.
func TestRegisterVerifyLogin(t *testing.T) {
	fx := newAPIFixture(t)

	// Register.
	rec := fx.registerForm(t, "Alice Smith", "alice@example.com", "secret1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"], "access token returned in the body for non-cookie clients")
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, false, user["isEmailVerified"])
	assert.NotContains(t, user, "lastLogin", "never-logged-in account has no lastLogin")

	// Login is refused until the email is verified.
	rec = fx.postJSON(t, "/api/auth/login",
		map[string]string{"email": "alice@example.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["requiresVerification"])

	// Verify with the emailed token.
	token := fx.emailedToken(t, "verify-email")
	rec = fx.postJSON(t, "/api/auth/verify-email", map[string]string{"token": token}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["token"])

	// Replaying the token fails.
	rec = fx.postJSON(t, "/api/auth/verify-email", map[string]string{"token": token}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Login now succeeds and sets both session cookies.
	rec = fx.postJSON(t, "/api/auth/login",
		map[string]string{"email": "alice@example.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bearer := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, bearer)

	cookies := rec.Result().Cookies()
	var names []string
	for _, c := range cookies {
		names = append(names, c.Name)
		assert.True(t, c.HttpOnly, "session cookies must be HttpOnly")
	}
	assert.Contains(t, names, auth.AccessCookie)
	assert.Contains(t, names, auth.RefreshCookie)

	// The cookies authenticate a protected request.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = fx.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["isAuthenticated"])

	// So does the body token alone, for clients that don't keep cookies.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec = fx.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// TestVerifyEmailLink covers the GET form the emailed link uses directly.
func TestVerifyEmailLink(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.registerForm(t, "Dana Smith", "dana@example.com", "secret1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	token := fx.emailedToken(t, "verify-email")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify-email?token="+token, nil)
	rec = fx.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, true, body["user"].(map[string]any)["isEmailVerified"])

	// The link is single-use like the POST form.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/verify-email?token="+token, nil)
	rec = fx.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_ValidationErrorsAggregate(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.registerForm(t, "A", "not-an-email", "short")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Validation Error", body["message"])
	errs := body["errors"].([]any)
	assert.Len(t, errs, 3, "every invalid field reported in one response")
}

func TestLogin_LockoutFlow(t *testing.T) {
	fx := newAPIFixture(t)
	fx.seedVerifiedUser(t, "bob@example.com", "secret1", model.RoleUser)

	for i := 0; i < 5; i++ {
		rec := fx.postJSON(t, "/api/auth/login",
			map[string]string{"email": "bob@example.com", "password": "wrong11"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Correct password after the fifth failure: still 401, same message as
	// bad credentials.
	rec := fx.postJSON(t, "/api/auth/login",
		map[string]string{"email": "bob@example.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decodeBody(t, rec)["message"])
}

func TestAdminRoutes_RoleGate(t *testing.T) {
	fx := newAPIFixture(t)
	fx.seedVerifiedUser(t, "user@example.com", "secret1", model.RoleUser)
	fx.seedVerifiedUser(t, "admin@example.com", "secret1", model.RoleAdmin)

	// No session at all.
	req := httptest.NewRequest(http.MethodGet, "/api/users/", nil)
	rec := fx.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Regular user.
	userCookies := fx.login(t, "user@example.com", "secret1")
	req = httptest.NewRequest(http.MethodGet, "/api/users/", nil)
	for _, c := range userCookies {
		req.AddCookie(c)
	}
	rec = fx.do(t, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin.
	adminCookies := fx.login(t, "admin@example.com", "secret1")
	req = httptest.NewRequest(http.MethodGet, "/api/users/", nil)
	for _, c := range adminCookies {
		req.AddCookie(c)
	}
	rec = fx.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["total"])
}

func TestForgotAndResetPassword(t *testing.T) {
	fx := newAPIFixture(t)
	fx.seedVerifiedUser(t, "carol@example.com", "secret1", model.RoleUser)

	// Unknown email gets the same 200 as a known one.
	rec := fx.postJSON(t, "/api/auth/forgot-password",
		map[string]string{"email": "ghost@example.com"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.postJSON(t, "/api/auth/forgot-password",
		map[string]string{"email": "carol@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	token := fx.emailedToken(t, "reset-password")
	rec = fx.postJSON(t, "/api/auth/reset-password",
		map[string]string{"token": token, "password": "newpass1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Old password dead, new one works.
	rec = fx.postJSON(t, "/api/auth/login",
		map[string]string{"email": "carol@example.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = fx.postJSON(t, "/api/auth/login",
		map[string]string{"email": "carol@example.com", "password": "newpass1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout_ClearsCookies(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.postJSON(t, "/api/auth/logout", map[string]string{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge, "cookie %s must be expired", c.Name)
	}
}

// seedVerifiedUser creates a verified, active account directly through the
// repository, bypassing the email round trip.
func (fx *apiFixture) seedVerifiedUser(t *testing.T, emailAddr, password string, role model.Role) *model.User {
	t.Helper()

	hash, err := auth.NewPasswordServiceForTest(4).Hash(password)
	require.NoError(t, err)

	u := &model.User{
		Name:            "Seeded User",
		Email:           emailAddr,
		SecretHash:      hash,
		Role:            role,
		Image:           model.DefaultAvatar,
		IsActive:        true,
		IsEmailVerified: true,
		Provider:        model.ProviderLocal,
		TokenVersion:    auth.NewTokenVersion(),
	}
	require.NoError(t, fx.db.Create(context.Background(), u))
	return u
}

// login returns the session cookies for the given credentials.
func (fx *apiFixture) login(t *testing.T, emailAddr, password string) []*http.Cookie {
	t.Helper()
	rec := fx.postJSON(t, "/api/auth/login",
		map[string]string{"email": emailAddr, "password": password}, nil)
	require.Equal(t, http.StatusOK, rec.Code,
		fmt.Sprintf("login for %s failed: %s", emailAddr, rec.Body.String()))
	return rec.Result().Cookies()
}
