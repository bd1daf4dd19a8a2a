// Package repository defines the storage contracts. Implementations live in
// subpackages (sqlite); services depend only on these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/volfir1/gadget-galaxy-api/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserStats is the aggregate view behind the admin dashboard.
type UserStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Inactive   int `json:"inactive"`
	Verified   int `json:"verified"`
	Unverified int `json:"unverified"`
	Admins     int `json:"admins"`
	Google     int `json:"google"`
}

// UserRepository is the credential store.
//
// Invariants enforced here, not in callers:
//   - Email is unique (case-insensitive, normalized) across all providers;
//     a violation surfaces as apperror.ErrConflict.
//   - The default retrieval paths never return the secret hash; only
//     FindByEmailWithSecret does, and only for authentication.
//   - Attempt counters and lock state change through single atomic UPDATE
//     statements so concurrent logins against one account cannot lose
//     updates.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByEmailWithSecret includes the secret hash. Authentication only.
	FindByEmailWithSecret(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error

	// UpdateSecret rehashes are done by the caller; the store persists the
	// hash, backdates secretChangedAt by one second, clears any pending
	// reset token, and rotates nothing else.
	UpdateSecret(ctx context.Context, id, secretHash string) error

	// Single-use token flows. The Find methods match only non-expired
	// hashes; "not found" and "expired" are indistinguishable by design.
	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	FindByVerificationToken(ctx context.Context, tokenHash string) (*model.User, error)
	MarkEmailVerified(ctx context.Context, id string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string) (*model.User, error)

	// Lockout policy state transitions (atomic).
	IncrementLoginAttempts(ctx context.Context, id string) error
	ResetLoginAttempts(ctx context.Context, id string) error

	RecordLogin(ctx context.Context, id string, at time.Time) error
	SetTokenVersion(ctx context.Context, id, version string) error

	// Admin management.
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*UserStats, error)
	SetRole(ctx context.Context, id string, role model.Role) error
	SetActive(ctx context.Context, id string, active bool) error
}

type CategoryRepository interface {
	CreateCategory(ctx context.Context, c *model.Category) error
	GetCategoryByID(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id string) error

	CreateSubcategory(ctx context.Context, s *model.Subcategory) error
	GetSubcategoryByID(ctx context.Context, id string) (*model.Subcategory, error)
	UpdateSubcategory(ctx context.Context, s *model.Subcategory) error
	DeleteSubcategory(ctx context.Context, id string) error
}

type ProductRepository interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProductByID(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, opts ListOptions) ([]model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id string) error
}
