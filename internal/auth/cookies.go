package auth

import (
	"net/http"
	"time"
)

// Cookie names shared by the middleware and the auth handlers.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// CookieWriter centralizes the session-cookie attributes: HttpOnly always,
// Secure in production, SameSite=Strict by default (Lax on the Google
// redirect path, where the browser arrives from another site).
type CookieWriter struct {
	Secure bool
}

// SetPair writes both session cookies with max-ages matching the token
// lifetimes.
func (c CookieWriter) SetPair(w http.ResponseWriter, pair TokenPair, accessTTL, refreshTTL time.Duration, sameSite http.SameSite) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(accessTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	})
}

// Clear expires both session cookies. Used by logout.
func (c CookieWriter) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
