// Package service holds the business rules, between the HTTP handlers and
// the repositories. Handlers never touch the database; services never touch
// HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/auth"
	"github.com/volfir1/gadget-galaxy-api/internal/email"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
	"github.com/volfir1/gadget-galaxy-api/internal/upload"
)

// Typed auth failures handlers branch on. All are part of the apperror
// taxonomy; these exist so callers can tell the cases apart without string
// matching.
var (
	ErrInvalidCredentials = apperror.Unauthenticated("Invalid credentials")
	ErrAccountInactive    = apperror.Forbidden("Account is inactive")
	ErrEmailNotVerified   = apperror.Forbidden("Email not verified")
	// ErrAccountLocked is deliberately worded like bad credentials: the
	// caller must not be able to probe lock state.
	ErrAccountLocked = apperror.Locked("Invalid credentials")
)

// AuthService orchestrates the credential store, token service, verification
// tokens, lockout policy, and federated bridge behind the /auth endpoints.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	emails    *email.Service
	images    upload.Store
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	emails *email.Service,
	images upload.Store,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		emails:    emails,
		images:    images,
		logger:    logger,
	}
}

// AuthResult bundles the account and its freshly issued token pair so the
// handler can set cookies and respond in one step.
type AuthResult struct {
	User   *model.User
	Tokens auth.TokenPair
}

// RegisterParams is the validated registration input. ImageData is nil when
// no image was uploaded.
type RegisterParams struct {
	Name      string
	Email     string
	Password  string
	Phone     string
	ImageData []byte
	ImageExt  string
}

// Register creates a local account, emails the verification link, and issues
// a session.
//
// The account starts unverified: it can hold a session (so the console can
// show the "check your inbox" state) but cannot pass the middleware's
// verified check until the emailed token is consumed.
//
// Image-upload and email failures both degrade gracefully — registration
// itself only fails on validation, duplicate email, or storage errors.
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (*AuthResult, error) {
	hash, err := s.passwords.Hash(p.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}

	image := model.DefaultAvatar
	if len(p.ImageData) > 0 {
		stored, err := s.images.Put(ctx, p.ImageData, "user", p.ImageExt)
		if err != nil {
			// Keep the default avatar rather than failing the whole
			// registration.
			s.logger.Warn("register: image upload failed, using default avatar",
				slog.String("error", err.Error()))
		} else {
			image = stored
		}
	}

	user := &model.User{
		Name:         p.Name,
		Email:        model.NormalizeEmail(p.Email),
		Phone:        p.Phone,
		SecretHash:   hash,
		Role:         model.RoleUser,
		Image:        image,
		IsActive:     true,
		Provider:     model.ProviderLocal,
		TokenVersion: auth.NewTokenVersion(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		// The resend endpoint exists exactly for this case.
		s.logger.Warn("register: sending verification email failed",
			slog.String("userID", user.ID), slog.String("error", err.Error()))
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("userID", user.ID), slog.String("email", user.Email))
	return result, nil
}

// Login authenticates an email/password pair.
//
// CHECK ORDER MATTERS:
//  1. Lock state — refused independent of secret correctness, same 401 as
//     bad credentials.
//  2. Password — a mismatch increments the attempt counter atomically; the
//     fifth consecutive failure sets a one-hour lock.
//  3. Account status — inactive and unverified accounts get 403 even with
//     the right password.
//
// A fully successful login resets the attempt counter and clears any
// expired lock. (The upstream design left counters untouched on success;
// that was judged unintended and not replicated.)
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmailWithSecret(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	now := time.Now()
	if user.IsLocked(now) {
		s.logger.Info("login refused: account locked",
			slog.String("userID", user.ID), slog.Time("lockUntil", user.LockUntil))
		return nil, ErrAccountLocked
	}

	if err := s.passwords.Verify(user.SecretHash, password); err != nil {
		if incErr := s.users.IncrementLoginAttempts(ctx, user.ID); incErr != nil {
			s.logger.Error("login: incrementing attempts",
				slog.String("userID", user.ID), slog.String("error", incErr.Error()))
		}
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}

	if err := s.users.ResetLoginAttempts(ctx, user.ID); err != nil {
		s.logger.Error("login: resetting attempts",
			slog.String("userID", user.ID), slog.String("error", err.Error()))
	}
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		s.logger.Error("login: recording last login",
			slog.String("userID", user.ID), slog.String("error", err.Error()))
	}
	user.LastLogin = now

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return result, nil
}

// LogoutAll rotates the account's token version, invalidating every
// outstanding refresh token. The access tokens themselves age out within 15
// minutes.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.users.SetTokenVersion(ctx, userID, auth.NewTokenVersion()); err != nil {
		return fmt.Errorf("service/auth: rotating token version: %w", err)
	}
	s.logger.Info("all sessions invalidated", slog.String("userID", userID))
	return nil
}

// VerifyEmail consumes an emailed verification token: marks the account
// verified, clears the token so it cannot be replayed, and issues a session
// so the console can log the user straight in.
func (s *AuthService) VerifyEmail(ctx context.Context, plaintext string) (*AuthResult, error) {
	if plaintext == "" {
		return nil, apperror.InvalidToken("Invalid or expired verification token")
	}

	user, err := s.users.FindByVerificationToken(ctx, auth.HashVerificationToken(plaintext))
	if err != nil {
		return nil, err
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("service/auth: marking verified: %w", err)
	}
	user.IsEmailVerified = true

	s.logger.Info("email verified", slog.String("userID", user.ID))
	return s.issueSession(ctx, user)
}

// ResendVerification mints a fresh verification token (invalidating the
// previous one) and re-sends the email.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) error {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return apperror.ValidationFailed("email", "Email is already verified")
	}

	if err := s.sendVerification(ctx, user); err != nil {
		return apperror.Upstream("Error sending verification email")
	}
	return nil
}

// GoogleAuth exchanges a verified Google identity for a local session.
//
// Intent matrix (isRegistration is the caller's intent flag):
//   - registration + account exists → conflict ("login instead")
//   - login + no account → not found ("register first")
//   - no account + registration → create, provider=google, pre-verified,
//     unusable local secret
//   - account exists → refresh profile/federated id, promote local→both
func (s *AuthService) GoogleAuth(ctx context.Context, identity *auth.GoogleIdentity, isRegistration bool) (*AuthResult, error) {
	if identity == nil {
		return nil, apperror.Unauthenticated("Invalid Google credential")
	}

	user, err := s.users.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil && isRegistration:
		return nil, apperror.DuplicateKey("Account already exists. Please login instead.")
	case err != nil && errors.Is(err, apperror.ErrNotFound) && !isRegistration:
		return nil, apperror.NotFound("account", identity.Email)
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	now := time.Now()
	if user == nil {
		hash, err := s.passwords.Hash(auth.NewUnusablePassword())
		if err != nil {
			return nil, fmt.Errorf("service/auth: hashing placeholder secret: %w", err)
		}

		user = &model.User{
			Name:            identity.Name,
			FirstName:       identity.GivenName,
			LastName:        identity.FamilyName,
			Email:           model.NormalizeEmail(identity.Email),
			SecretHash:      hash,
			Role:            model.RoleUser,
			Image:           googleImage(identity.Picture),
			IsActive:        true,
			IsEmailVerified: true, // Google accounts are pre-verified
			Provider:        model.ProviderGoogle,
			FederatedID:     identity.SubjectID,
			TokenVersion:    auth.NewTokenVersion(),
			LastLogin:       now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating google user: %w", err)
		}
		s.logger.Info("user registered via Google", slog.String("userID", user.ID))
	} else {
		user.Name = identity.Name
		user.FirstName = identity.GivenName
		user.LastName = identity.FamilyName
		user.FederatedID = identity.SubjectID
		user.IsEmailVerified = true
		user.LastLogin = now
		if identity.Picture != "" {
			user.Image = googleImage(identity.Picture)
		}
		if user.Provider == model.ProviderLocal {
			user.Provider = model.ProviderBoth
		}
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: linking google identity: %w", err)
		}
		s.logger.Info("user logged in via Google", slog.String("userID", user.ID))
	}

	return s.issueSession(ctx, user)
}

// Profile returns the account for the given id, secret excluded.
func (s *AuthService) Profile(ctx context.Context, id string) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}

// UpdateProfileParams carries the optional profile changes; nil-equivalent
// zero values mean "keep the current value".
type UpdateProfileParams struct {
	Name      string
	Email     string
	Phone     string
	Bio       string
	ImageData []byte
	ImageExt  string
}

// UpdateProfile applies profile edits. An email change goes through the
// store's uniqueness check and resets verification? No — per the admin
// console's contract the email stays verified; changing it to a colliding
// address fails with the duplicate error.
func (s *AuthService) UpdateProfile(ctx context.Context, id string, p UpdateProfileParams) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != "" {
		user.Name = p.Name
	}
	if p.Email != "" {
		user.Email = model.NormalizeEmail(p.Email)
	}
	if p.Phone != "" {
		user.Phone = p.Phone
	}
	if p.Bio != "" {
		user.Bio = p.Bio
	}
	if len(p.ImageData) > 0 {
		stored, err := s.images.Put(ctx, p.ImageData, "user", p.ImageExt)
		if err != nil {
			s.logger.Warn("profile update: image upload failed, keeping current image",
				slog.String("userID", id), slog.String("error", err.Error()))
		} else {
			user.Image = stored
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: updating profile: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password, stores the new hash
// (backdating secretChangedAt), and rotates the token version so every other
// session's refresh token dies.
func (s *AuthService) ChangePassword(ctx context.Context, id, current, next string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	withSecret, err := s.users.FindByEmailWithSecret(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("service/auth: loading secret: %w", err)
	}

	if err := s.passwords.Verify(withSecret.SecretHash, current); err != nil {
		return apperror.Unauthenticated("Current password is incorrect")
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return apperror.ValidationFailed("newPassword", "Password must be 72 bytes or fewer")
	}
	if err := s.users.UpdateSecret(ctx, id, hash); err != nil {
		return fmt.Errorf("service/auth: updating secret: %w", err)
	}
	if err := s.users.SetTokenVersion(ctx, id, auth.NewTokenVersion()); err != nil {
		return fmt.Errorf("service/auth: rotating token version: %w", err)
	}

	s.logger.Info("password changed", slog.String("userID", id))
	return nil
}

// ForgotPassword mints a reset token and emails the link. To avoid account
// enumeration it reports success whether or not the email exists; only the
// mail-relay failure surfaces.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("service/auth: looking up user: %w", err)
	}

	token, err := auth.NewVerificationToken(auth.PasswordResetTTL)
	if err != nil {
		return fmt.Errorf("service/auth: minting reset token: %w", err)
	}
	if err := s.users.SetResetToken(ctx, user.ID, token.Hash, token.ExpiresAt); err != nil {
		return fmt.Errorf("service/auth: storing reset token: %w", err)
	}
	if err := s.emails.SendPasswordReset(user.Email, user.Name, token.Plaintext); err != nil {
		return apperror.Upstream("Error sending password reset email")
	}
	return nil
}

// ResetPassword consumes a reset token and stores the new password. The
// token clears with the secret update (single-use), and the version rotation
// kills all existing sessions.
func (s *AuthService) ResetPassword(ctx context.Context, plaintext, next string) error {
	if plaintext == "" {
		return apperror.InvalidToken("Invalid or expired reset token")
	}

	user, err := s.users.FindByResetToken(ctx, auth.HashVerificationToken(plaintext))
	if err != nil {
		return err
	}

	hash, err := s.passwords.Hash(next)
	if err != nil {
		return apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	if err := s.users.UpdateSecret(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("service/auth: updating secret: %w", err)
	}
	if err := s.users.SetTokenVersion(ctx, user.ID, auth.NewTokenVersion()); err != nil {
		return fmt.Errorf("service/auth: rotating token version: %w", err)
	}

	s.logger.Info("password reset completed", slog.String("userID", user.ID))
	return nil
}

// issueSession mints a token pair and persists its refresh version as the
// account's current tokenVersion.
func (s *AuthService) issueSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens: %w", err)
	}
	if err := s.users.SetTokenVersion(ctx, user.ID, pair.RefreshVersion); err != nil {
		return nil, fmt.Errorf("service/auth: persisting token version: %w", err)
	}
	user.TokenVersion = pair.RefreshVersion
	return &AuthResult{User: user, Tokens: pair}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *model.User) error {
	token, err := auth.NewVerificationToken(auth.EmailVerificationTTL)
	if err != nil {
		return fmt.Errorf("minting verification token: %w", err)
	}
	if err := s.users.SetVerificationToken(ctx, user.ID, token.Hash, token.ExpiresAt); err != nil {
		return fmt.Errorf("storing verification token: %w", err)
	}
	return s.emails.SendVerification(user.Email, user.Name, token.Plaintext)
}

func googleImage(picture string) model.Image {
	if picture == "" {
		return model.DefaultAvatar
	}
	return model.Image{PublicID: "google_profile", URL: picture}
}
