package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/volfir1/gadget-galaxy-api/internal/model"
)

// contextKey is unexported so only this package can read or write session
// values in a request context.
type contextKey string

const (
	userKey   contextKey = "user"
	claimsKey contextKey = "claims"
)

// AccountSource is the slice of the credential store the middleware needs:
// load an account by the token subject (secret excluded) and persist a
// rotated refresh version. repository.UserRepository satisfies it.
type AccountSource interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	SetTokenVersion(ctx context.Context, id, version string) error
}

// Sessions is the per-request authentication gate.
//
// REQUEST FLOW:
//  1. Extract the bearer token (Authorization header, else accessToken
//     cookie). Missing → 401.
//  2. Verify it. Valid → load the account, run the status checks, attach
//     user + claims to the context.
//  3. Expired (specifically — not invalid) → attempt a silent refresh from
//     the refreshToken cookie: verify, load the account, require the
//     account's persisted tokenVersion to match the token's version claim,
//     mint a fresh pair, persist the new version, set both cookies, and
//     continue as authenticated. Any failure on this path → 401.
//
// Because the new version is written back on every refresh, rotating an
// account's tokenVersion (logout-everywhere, admin disable) invalidates all
// outstanding refresh tokens at once.
type Sessions struct {
	tokens   *TokenService
	accounts AccountSource
	cookies  CookieWriter
	logger   *slog.Logger
}

func NewSessions(tokens *TokenService, accounts AccountSource, cookies CookieWriter, logger *slog.Logger) *Sessions {
	return &Sessions{tokens: tokens, accounts: accounts, cookies: cookies, logger: logger}
}

// Require enforces authentication on protected routes.
func (s *Sessions) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			s.deny(w, http.StatusUnauthorized, "Access token not found", false)
			return
		}

		claims, err := s.tokens.VerifyAccess(token)
		switch {
		case err == nil:
			// fall through to the account checks below
		case errors.Is(err, ErrTokenExpired):
			s.refresh(w, r, next)
			return
		default:
			s.deny(w, http.StatusUnauthorized, "Invalid token", false)
			return
		}

		user, ok := s.loadAndCheck(w, r, claims)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), user, claims)))
	})
}

// refresh is the silent-refresh path taken when the access token has
// expired. It never distinguishes its failures to the client: everything is
// a plain 401.
func (s *Sessions) refresh(w http.ResponseWriter, r *http.Request, next http.Handler) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		s.deny(w, http.StatusUnauthorized, "Refresh token not found", false)
		return
	}

	claims, err := s.tokens.VerifyRefresh(cookie.Value)
	if err != nil {
		s.deny(w, http.StatusUnauthorized, "Invalid refresh token", false)
		return
	}

	user, err := s.accounts.FindByID(r.Context(), claims.Subject)
	if err != nil {
		s.deny(w, http.StatusUnauthorized, "Invalid refresh token", false)
		return
	}
	if user.TokenVersion == "" || user.TokenVersion != claims.Version {
		// Token predates the last version rotation — a stolen or
		// superseded refresh token.
		s.deny(w, http.StatusUnauthorized, "Invalid refresh token", false)
		return
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("silent refresh: issuing tokens", slog.String("userID", user.ID), slog.String("error", err.Error()))
		s.deny(w, http.StatusUnauthorized, "Invalid refresh token", false)
		return
	}
	if err := s.accounts.SetTokenVersion(r.Context(), user.ID, pair.RefreshVersion); err != nil {
		s.logger.Error("silent refresh: persisting token version", slog.String("userID", user.ID), slog.String("error", err.Error()))
		s.deny(w, http.StatusUnauthorized, "Invalid refresh token", false)
		return
	}

	s.cookies.SetPair(w, pair, s.tokens.AccessTTL(), s.tokens.RefreshTTL(), http.SameSiteStrictMode)

	accessClaims, err := s.tokens.VerifyAccess(pair.AccessToken)
	if err != nil {
		s.deny(w, http.StatusUnauthorized, "Invalid token", false)
		return
	}

	if !s.statusChecks(w, user) {
		return
	}
	s.logger.Debug("access token silently refreshed", slog.String("userID", user.ID))
	next.ServeHTTP(w, r.WithContext(withSession(r.Context(), user, accessClaims)))
}

func (s *Sessions) loadAndCheck(w http.ResponseWriter, r *http.Request, claims *Claims) (*model.User, bool) {
	user, err := s.accounts.FindByID(r.Context(), claims.Subject)
	if err != nil {
		s.deny(w, http.StatusUnauthorized, "User not found", false)
		return nil, false
	}
	if !s.statusChecks(w, user) {
		return nil, false
	}
	return user, true
}

// statusChecks enforces the authenticatable-state invariant on every
// request. Stateless access tokens cannot be revoked individually, so
// deactivating the account is the revocation mechanism — checked here.
func (s *Sessions) statusChecks(w http.ResponseWriter, user *model.User) bool {
	if !user.IsActive {
		s.deny(w, http.StatusForbidden, "Account is inactive", false)
		return false
	}
	if !user.IsEmailVerified {
		// requiresVerification lets the client prompt re-verification.
		s.deny(w, http.StatusForbidden, "Email not verified", true)
		return false
	}
	return true
}

// RequireRole authorizes by role, after Require has authenticated.
//
// For the admin role the token's issue time must postdate the account's last
// password change — an admin token minted before a password change is
// treated as stale and forces a fresh login.
func (s *Sessions) RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	allowed := make(map[model.Role]bool, len(roles))
	adminSensitive := false
	for _, r := range roles {
		allowed[r] = true
		if r == model.RoleAdmin {
			adminSensitive = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || !allowed[user.Role] {
				s.deny(w, http.StatusForbidden, "Insufficient permissions", false)
				return
			}

			if adminSensitive && user.Role == model.RoleAdmin {
				if claims, ok := ClaimsFromContext(r.Context()); ok && claims.IssuedAt != nil {
					if user.SecretChangedAfter(claims.IssuedAt.Time) {
						s.deny(w, http.StatusUnauthorized,
							"Recent password change detected. Please login again.", false)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func withSession(ctx context.Context, user *model.User, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, claimsKey, claims)
}

// UserFromContext retrieves the authenticated account attached by Require.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// ClaimsFromContext retrieves the verified access-token claims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// extractToken reads the bearer token from the Authorization header, falling
// back to the accessToken cookie.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if cookie, err := r.Cookie(AccessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// deny writes the standard error envelope. The middleware cannot use the
// handler package's helpers without an import cycle, so it carries its own.
func (s *Sessions) deny(w http.ResponseWriter, status int, message string, requiresVerification bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]any{
		"success": false,
		"message": message,
	}
	if requiresVerification {
		body["requiresVerification"] = true
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode auth error response", slog.String("error", err.Error()))
	}
}
