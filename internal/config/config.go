// Package config loads process configuration from the environment.
//
// A .env file in the working directory is loaded first (if present) via
// godotenv, then real environment variables take precedence. Secrets have no
// defaults — the process refuses to start without them so a misconfigured
// deployment fails loudly instead of running with a guessable signing key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	Env         string // "development" | "production"
	FrontendURL string // base URL embedded in emailed links

	DBPath string

	JWTSecret        string // access-token signing secret
	JWTRefreshSecret string // refresh-token signing secret, must differ
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	UploadDir string // local image store root (dev default for the image host)
}

// IsProduction reports whether the process runs with production hardening
// (secure cookies, no error detail in responses).
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from .env and the environment.
func Load() (Config, error) {
	// Missing .env is fine — containers inject real env vars instead.
	_ = godotenv.Load()

	cfg := Config{
		Port:            envInt("PORT", 8080),
		Env:             envStr("APP_ENV", "development"),
		FrontendURL:     envStr("FRONTEND_URL", "http://localhost:5173"),
		DBPath:          envStr("DB_PATH", "data/gadget-galaxy.db"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,

		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),

		SMTPHost: envStr("SMTP_HOST", "sandbox.smtp.mailtrap.io"),
		SMTPPort: envInt("SMTP_PORT", 2525),
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		MailFrom: envStr("MAIL_FROM", `"Gadget Galaxy" <no-reply@gadget-galaxy.example>`),

		UploadDir: envStr("UPLOAD_DIR", "data/uploads"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET must be set")
	}
	if cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_REFRESH_SECRET must be set")
	}
	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		// Separate signing contexts keep an access token from being
		// replayed as a refresh token or vice versa.
		return Config{}, fmt.Errorf("config: JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/google/callback", cfg.Port)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
