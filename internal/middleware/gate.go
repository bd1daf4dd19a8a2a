package middleware

import (
	"encoding/json"
	"net/http"
)

// Gate decides whether a request may proceed. It is the seam where a rate
// limiter plugs in; the default PermitAll lets everything through.
type Gate interface {
	// Allow reports whether the request may proceed.
	Allow(r *http.Request) bool
}

// PermitAll is the no-op Gate.
type PermitAll struct{}

func (PermitAll) Allow(*http.Request) bool { return true }

// Limit rejects requests the gate refuses with 429.
func Limit(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.Allow(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": "Too many requests, please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
