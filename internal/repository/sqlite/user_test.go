package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/auth"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := &model.User{
		Name:       "Test User",
		Email:      email,
		SecretHash: "$2a$04$fakefakefakefakefakefakefakefakefakefakefakefakefakef",
		Role:       model.RoleUser,
		Image:      model.DefaultAvatar,
		IsActive:   true,
		Provider:   model.ProviderLocal,
	}
	require.NoError(t, db.Create(context.Background(), u))
	return u
}

func TestCreate_NormalizesEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := seedUser(t, db, "  Alice@Example.COM ")
	assert.Equal(t, "alice@example.com", u.Email)

	found, err := db.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
}

func TestCreate_DuplicateEmailDiffersOnlyByCase(t *testing.T) {
	db := newTestDB(t)

	seedUser(t, db, "bob@example.com")

	dup := &model.User{
		Name:       "Bob Again",
		Email:      "BOB@EXAMPLE.COM",
		SecretHash: "hash",
		Role:       model.RoleUser,
		Provider:   model.ProviderLocal,
	}
	err := db.Create(context.Background(), dup)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestFindByEmail_ExcludesSecret(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "carol@example.com")

	plain, err := db.FindByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Empty(t, plain.SecretHash, "default projection must not include the secret")

	withSecret, err := db.FindByEmailWithSecret(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, withSecret.SecretHash)
}

func TestFindByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestIncrementLoginAttempts_LocksAtFive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "dave@example.com")

	for i := 1; i <= 4; i++ {
		require.NoError(t, db.IncrementLoginAttempts(ctx, u.ID))
		got, err := db.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, i, got.LoginAttempts)
		assert.False(t, got.IsLocked(time.Now()), "no lock before the fifth failure")
	}

	require.NoError(t, db.IncrementLoginAttempts(ctx, u.ID))
	got, err := db.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.LoginAttempts)
	assert.True(t, got.IsLocked(time.Now()))
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.LockUntil, 10*time.Second)
}

func TestIncrementLoginAttempts_ExpiredLockResetsLazily(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "erin@example.com")

	// Simulate a lock that ran out: counter at the ceiling, lock in the past.
	_, err := db.conn.Exec(
		`UPDATE users SET login_attempts = 5, lock_until = ? WHERE id = ?`,
		time.Now().Add(-time.Minute), u.ID)
	require.NoError(t, err)

	// The next failed attempt starts a fresh count instead of re-locking.
	require.NoError(t, db.IncrementLoginAttempts(ctx, u.ID))
	got, err := db.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LoginAttempts)
	assert.False(t, got.IsLocked(time.Now()))
}

func TestResetLoginAttempts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "frank@example.com")

	for i := 0; i < 5; i++ {
		require.NoError(t, db.IncrementLoginAttempts(ctx, u.ID))
	}
	require.NoError(t, db.ResetLoginAttempts(ctx, u.ID))

	got, err := db.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LoginAttempts)
	assert.False(t, got.IsLocked(time.Now()))
}

func TestVerificationToken_SingleUse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "grace@example.com")

	tok, err := auth.NewVerificationToken(auth.EmailVerificationTTL)
	require.NoError(t, err)
	require.NoError(t, db.SetVerificationToken(ctx, u.ID, tok.Hash, tok.ExpiresAt))

	found, err := db.FindByVerificationToken(ctx, tok.Hash)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	require.NoError(t, db.MarkEmailVerified(ctx, u.ID))

	// Consumed: the same hash no longer matches.
	_, err = db.FindByVerificationToken(ctx, tok.Hash)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)

	got, err := db.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEmailVerified)
}

func TestResetToken_ExpiredIsInvalid(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "heidi@example.com")

	tok, err := auth.NewVerificationToken(auth.PasswordResetTTL)
	require.NoError(t, err)
	require.NoError(t, db.SetResetToken(ctx, u.ID, tok.Hash, time.Now().Add(-time.Minute)))

	_, err = db.FindByResetToken(ctx, tok.Hash)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
}

func TestUpdateSecret_ClearsResetTokenAndBackdates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "ivan@example.com")

	tok, err := auth.NewVerificationToken(auth.PasswordResetTTL)
	require.NoError(t, err)
	require.NoError(t, db.SetResetToken(ctx, u.ID, tok.Hash, tok.ExpiresAt))

	before := time.Now()
	require.NoError(t, db.UpdateSecret(ctx, u.ID, "new-hash"))

	_, err = db.FindByResetToken(ctx, tok.Hash)
	assert.ErrorIs(t, err, apperror.ErrInvalidToken, "reset token must not survive a secret change")

	got, err := db.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.SecretChangedAt.IsZero())
	assert.True(t, got.SecretChangedAt.Before(before),
		"secret_changed_at is backdated so same-instant tokens read as stale")
}

func TestUpdate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "judy@example.com")
	other := seedUser(t, db, "mallory@example.com")

	other.Email = "judy@example.com"
	err := db.Update(ctx, other)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestSetTokenVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "oscar@example.com")

	require.NoError(t, db.SetTokenVersion(ctx, u.ID, "v2"))
	got, err := db.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.TokenVersion)

	err = db.SetTokenVersion(ctx, "missing", "v3")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListAndStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "u1@example.com")
	admin := seedUser(t, db, "u2@example.com")
	require.NoError(t, db.SetRole(ctx, admin.ID, model.RoleAdmin))
	googler := seedUser(t, db, "u3@example.com")
	googler.Provider = model.ProviderGoogle
	googler.IsEmailVerified = true
	require.NoError(t, db.Update(ctx, googler))
	require.NoError(t, db.SetActive(ctx, googler.ID, false))

	users, err := db.List(ctx, repository.ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	total, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Inactive)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, 1, stats.Admins)
	assert.Equal(t, 1, stats.Google)
}
