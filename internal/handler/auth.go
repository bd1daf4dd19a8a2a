package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/auth"
	"github.com/volfir1/gadget-galaxy-api/internal/service"
	"github.com/volfir1/gadget-galaxy-api/internal/upload"
)

// oauthStateCookie carries the CSRF state across the Google redirect;
// oauthIntentCookie remembers whether the user started from the register or
// the login button, since the callback must apply the same intent matrix as
// the popup path.
const (
	oauthStateCookie  = "oauth_state"
	oauthIntentCookie = "oauth_intent"
)

// AuthHandler owns the /api/auth routes.
type AuthHandler struct {
	auth     *service.AuthService
	verifier *auth.GoogleVerifier
	provider *auth.GoogleProvider
	tokens   *auth.TokenService
	sessions *auth.Sessions
	cookies  auth.CookieWriter

	frontendURL string
	logger      *slog.Logger
}

func NewAuthHandler(
	authSvc *service.AuthService,
	verifier *auth.GoogleVerifier,
	provider *auth.GoogleProvider,
	tokens *auth.TokenService,
	sessions *auth.Sessions,
	cookies auth.CookieWriter,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:        authSvc,
		verifier:    verifier,
		provider:    provider,
		tokens:      tokens,
		sessions:    sessions,
		cookies:     cookies,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Routes mounts the auth endpoints.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/verify-email", h.verifyEmail)
	r.Get("/verify-email", h.verifyEmailLink)
	r.Post("/resend-verification", h.resendVerification)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password", h.resetPassword)

	r.Post("/google", h.googleCredential)
	r.Get("/google/login", h.googleLogin)
	r.Get("/google/callback", h.googleCallback)

	r.Group(func(r chi.Router) {
		r.Use(h.sessions.Require)
		r.Get("/check", h.check)
		r.Get("/profile", h.profile)
		r.Put("/profile", h.updateProfile)
		r.Put("/change-password", h.changePassword)
		r.Post("/logout-all", h.logoutAll)
	})
}

// register handles multipart registration with an optional profile image.
func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(upload.MaxImageSize + 1<<20); err != nil {
		fail(w, h.logger, http.StatusBadRequest, "Invalid multipart form", nil)
		return
	}

	name := r.FormValue("name")
	email := r.FormValue("email")
	password := r.FormValue("password")
	phone := r.FormValue("phone")

	var v validator
	v.name("name", name)
	v.email("email", email)
	v.password("password", password)
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	imageData, imageExt, err := upload.ReadImage(r, "image")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.auth.Register(r.Context(), service.RegisterParams{
		Name:      name,
		Email:     email,
		Password:  password,
		Phone:     phone,
		ImageData: imageData,
		ImageExt:  imageExt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookies.SetPair(w, result.Tokens, h.tokens.AccessTTL(), h.tokens.RefreshTTL(), http.SameSiteStrictMode)
	ok(w, h.logger, http.StatusCreated,
		"Registration successful. Please check your email to verify your account.",
		envelope{"token": result.Tokens.AccessToken, "user": result.User})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	v.email("email", req.Email)
	v.required("password", req.Password, "Password is required")
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// The unverified case carries a hint so the console can offer the
		// resend flow.
		if errors.Is(err, service.ErrEmailNotVerified) {
			writeJSON(w, h.logger, http.StatusForbidden, envelope{
				"success":              false,
				"message":              "Email not verified",
				"requiresVerification": true,
			})
			return
		}
		writeError(w, h.logger, err)
		return
	}

	h.cookies.SetPair(w, result.Tokens, h.tokens.AccessTTL(), h.tokens.RefreshTTL(), http.SameSiteStrictMode)
	ok(w, h.logger, http.StatusOK, "Login successful",
		envelope{"token": result.Tokens.AccessToken, "user": result.User})
}

// logout clears the session cookies. Stateless tokens cannot be revoked here;
// logout-all exists for that.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	ok(w, h.logger, http.StatusOK, "Logged out successfully", nil)
}

// logoutAll rotates the account's token version, killing every session's
// refresh token, then clears this session's cookies too.
func (h *AuthHandler) logoutAll(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	if err := h.auth.LogoutAll(r.Context(), user.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.cookies.Clear(w)
	ok(w, h.logger, http.StatusOK, "Logged out of all sessions", nil)
}

// verifyEmail is the console path: the token arrives in a JSON body.
func (h *AuthHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.finishVerification(w, r, req.Token)
}

// verifyEmailLink handles the emailed link directly: ?token=...
func (h *AuthHandler) verifyEmailLink(w http.ResponseWriter, r *http.Request) {
	h.finishVerification(w, r, r.URL.Query().Get("token"))
}

func (h *AuthHandler) finishVerification(w http.ResponseWriter, r *http.Request, token string) {
	result, err := h.auth.VerifyEmail(r.Context(), token)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookies.SetPair(w, result.Tokens, h.tokens.AccessTTL(), h.tokens.RefreshTTL(), http.SameSiteStrictMode)
	ok(w, h.logger, http.StatusOK, "Email verified successfully",
		envelope{"token": result.Tokens.AccessToken, "user": result.User})
}

func (h *AuthHandler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	v.email("email", req.Email)
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	if err := h.auth.ResendVerification(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Verification email sent", nil)
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	v.email("email", req.Email)
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	// Same message whether or not the account exists.
	ok(w, h.logger, http.StatusOK,
		"If an account exists for that email, a reset link has been sent", nil)
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	v.password("password", req.Password)
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Password reset successfully. Please login.", nil)
}

// googleCredential is the popup path: the console posts Google's ID token.
func (h *AuthHandler) googleCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential     string `json:"credential"`
		IsRegistration bool   `json:"isRegistration"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Credential == "" {
		fail(w, h.logger, http.StatusBadRequest, "Google credential is required",
			[]fieldError{{Field: "credential", Message: "Google credential is required"}})
		return
	}

	identity, err := h.verifier.Verify(r.Context(), req.Credential)
	if err != nil {
		h.logger.Warn("google credential rejected", slog.String("error", err.Error()))
		fail(w, h.logger, http.StatusUnauthorized, "Invalid Google credential", nil)
		return
	}

	result, err := h.auth.GoogleAuth(r.Context(), identity, req.IsRegistration)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.cookies.SetPair(w, result.Tokens, h.tokens.AccessTTL(), h.tokens.RefreshTTL(), http.SameSiteStrictMode)
	ok(w, h.logger, http.StatusOK, "Google authentication successful",
		envelope{"token": result.Tokens.AccessToken, "user": result.User})
}

// googleLogin starts the server-side redirect flow. ?intent=register carries
// the register-vs-login intent across the round trip.
func (h *AuthHandler) googleLogin(w http.ResponseWriter, r *http.Request) {
	state := randomState()
	intent := "login"
	if r.URL.Query().Get("intent") == "register" {
		intent = "register"
	}

	for name, value := range map[string]string{
		oauthStateCookie:  state,
		oauthIntentCookie: intent,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/api/auth/google",
			MaxAge:   600,
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// googleCallback finishes the redirect flow: verify state, exchange the code,
// apply the intent matrix, set cookies, and bounce back to the console.
//
// Errors redirect to the console's login page rather than rendering JSON,
// since the browser is mid-navigation here.
func (h *AuthHandler) googleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		h.redirectWithError(w, r, "invalid_state")
		return
	}
	isRegistration := false
	if intent, err := r.Cookie(oauthIntentCookie); err == nil && intent.Value == "register" {
		isRegistration = true
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "missing_code")
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("google code exchange failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, "google_auth_failed")
		return
	}

	result, err := h.auth.GoogleAuth(r.Context(), identity, isRegistration)
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrConflict):
			h.redirectWithError(w, r, "account_exists")
		case errors.Is(err, apperror.ErrNotFound):
			h.redirectWithError(w, r, "account_not_found")
		default:
			h.redirectWithError(w, r, "google_auth_failed")
		}
		return
	}

	// Lax, not Strict: the browser arrives on a cross-site redirect.
	h.cookies.SetPair(w, result.Tokens, h.tokens.AccessTTL(), h.tokens.RefreshTTL(), http.SameSiteLaxMode)
	http.Redirect(w, r, h.frontendURL+"/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.frontendURL+"/login?error="+url.QueryEscape(code), http.StatusSeeOther)
}

// check reports the session state for the console's boot sequence. Reaching
// here means Require already validated (or silently refreshed) the session.
func (h *AuthHandler) check(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	ok(w, h.logger, http.StatusOK, "", envelope{"isAuthenticated": true, "user": user})
}

func (h *AuthHandler) profile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	profile, err := h.auth.Profile(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "", envelope{"user": profile})
}

func (h *AuthHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := r.ParseMultipartForm(upload.MaxImageSize + 1<<20); err != nil {
		fail(w, h.logger, http.StatusBadRequest, "Invalid multipart form", nil)
		return
	}

	name := r.FormValue("name")
	email := r.FormValue("email")

	var v validator
	if name != "" {
		v.name("name", name)
	}
	if email != "" {
		v.email("email", email)
	}
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	imageData, imageExt, err := upload.ReadImage(r, "image")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.auth.UpdateProfile(r.Context(), user.ID, service.UpdateProfileParams{
		Name:      name,
		Email:     email,
		Phone:     r.FormValue("phone"),
		Bio:       r.FormValue("bio"),
		ImageData: imageData,
		ImageExt:  imageExt,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok(w, h.logger, http.StatusOK, "Profile updated successfully", envelope{"user": updated})
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var v validator
	v.required("currentPassword", req.CurrentPassword, "Current password is required")
	v.password("newPassword", req.NewPassword)
	if !v.ok() {
		fail(w, h.logger, http.StatusBadRequest, "Validation Error", v.fields)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Other sessions are now invalid; this one keeps its cookies until the
	// access token expires, at which point the refresh fails and the console
	// sends the user back to login.
	ok(w, h.logger, http.StatusOK, "Password changed successfully", nil)
}

func randomState() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
