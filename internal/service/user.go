package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/auth"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
)

// UserService is the admin-console side of account management. Unlike
// AuthService it acts on other people's accounts, so it guards against the
// operations an admin must not be able to do to themselves.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{users: users, passwords: passwords, logger: logger}
}

// UserPage is a paginated slice of accounts plus the full count for the
// console's pager.
type UserPage struct {
	Users []model.User `json:"users"`
	Total int          `json:"total"`
}

func (s *UserService) List(ctx context.Context, opts repository.ListOptions) (*UserPage, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	users, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: counting users: %w", err)
	}
	return &UserPage{Users: users, Total: total}, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) Stats(ctx context.Context) (*repository.UserStats, error) {
	return s.users.Stats(ctx)
}

// AdminUpdateParams are the fields an admin may edit on any account.
type AdminUpdateParams struct {
	Name  string
	Email string
	Phone string
}

func (s *UserService) Update(ctx context.Context, id string, p AdminUpdateParams) (*model.User, error) {
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

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: updating user: %w", err)
	}
	s.logger.Info("user updated by admin", slog.String("userID", id))
	return user, nil
}

// SetRole changes an account's role. actorID is the admin performing the
// change; self-demotion is refused so a deployment can't lose its last admin
// by accident.
func (s *UserService) SetRole(ctx context.Context, actorID, id string, role model.Role) (*model.User, error) {
	if actorID == id {
		return nil, apperror.ValidationFailed("role", "You cannot change your own role")
	}

	if err := s.users.SetRole(ctx, id, role); err != nil {
		return nil, err
	}
	s.logger.Info("user role changed",
		slog.String("userID", id), slog.String("role", string(role)), slog.String("by", actorID))
	return s.users.FindByID(ctx, id)
}

// ToggleActive flips the account's active flag. Deactivation also rotates the
// token version so the account's sessions die at the next refresh, and
// refuses to act on the caller's own account.
func (s *UserService) ToggleActive(ctx context.Context, actorID, id string) (*model.User, error) {
	if actorID == id {
		return nil, apperror.ValidationFailed("isActive", "You cannot deactivate your own account")
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := !user.IsActive
	if err := s.users.SetActive(ctx, id, next); err != nil {
		return nil, fmt.Errorf("service/user: toggling active: %w", err)
	}
	if !next {
		if err := s.users.SetTokenVersion(ctx, id, auth.NewTokenVersion()); err != nil {
			s.logger.Error("deactivate: rotating token version",
				slog.String("userID", id), slog.String("error", err.Error()))
		}
	}

	user.IsActive = next
	s.logger.Info("user active flag toggled",
		slog.String("userID", id), slog.Bool("isActive", next), slog.String("by", actorID))
	return user, nil
}

// SetPassword lets an admin set an account's password directly (support
// resets). The current password is not required, but all existing sessions
// are invalidated.
func (s *UserService) SetPassword(ctx context.Context, actorID, id, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	if err := s.users.UpdateSecret(ctx, id, hash); err != nil {
		return err
	}
	if err := s.users.SetTokenVersion(ctx, id, auth.NewTokenVersion()); err != nil {
		return fmt.Errorf("service/user: rotating token version: %w", err)
	}

	s.logger.Info("password set by admin", slog.String("userID", id), slog.String("by", actorID))
	return nil
}
