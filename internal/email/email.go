// Package email sends templated transactional mail. Delivery is an external
// collaborator: the service layer depends on the Mailer interface and the
// SMTP implementation is constructed once at startup and injected.
package email

import (
	"fmt"
	"time"
)

// Mailer delivers a rendered message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(to, subject, htmlBody, textBody string) error
}

// Service renders the application's transactional emails and hands them to
// the Mailer.
type Service struct {
	mailer      Mailer
	frontendURL string
}

func NewService(mailer Mailer, frontendURL string) *Service {
	return &Service{mailer: mailer, frontendURL: frontendURL}
}

// SendVerification emails the account-verification link. token is the
// plaintext verification token; only its hash is stored server-side.
func (s *Service) SendVerification(to, name, token string) error {
	url := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, token)
	html := renderVerification(name, url, time.Now().Year())
	text := fmt.Sprintf(
		"Hi %s,\n\nThanks for joining Gadget Galaxy! Verify your email by opening:\n\n%s\n\nThis link expires in 24 hours.\n",
		name, url)
	return s.mailer.Send(to, "Welcome to Gadget Galaxy - Verify Your Email", html, text)
}

// SendPasswordReset emails the password-reset link.
func (s *Service) SendPasswordReset(to, name, token string) error {
	url := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	html := renderPasswordReset(name, url, time.Now().Year())
	text := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account. Open this link to choose a new password:\n\n%s\n\nThis link expires in 1 hour. If you didn't request this, you can ignore this email.\n",
		name, url)
	return s.mailer.Send(to, "Gadget Galaxy - Reset Your Password", html, text)
}
