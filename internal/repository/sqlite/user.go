package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/volfir1/gadget-galaxy-api/internal/apperror"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	"github.com/volfir1/gadget-galaxy-api/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// userColumns is the default projection: everything except secret_hash.
// The secret is fetched only by FindByEmailWithSecret, for authentication.
const userColumns = `id, name, first_name, last_name, email, phone, role,
	image_public_id, image_url, bio, is_active, is_email_verified, provider,
	federated_id, email_verification_token, email_verification_expires,
	password_reset_token, password_reset_expires, secret_changed_at,
	login_attempts, lock_until, token_version, last_login, created_at, updated_at`

// isUniqueViolation detects a UNIQUE index violation from the driver error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Create inserts a new user. The caller supplies SecretHash already hashed;
// plaintext never reaches this layer. A duplicate (normalized) email fails
// with apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.Email = model.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, first_name, last_name, email, phone,
			secret_hash, role, image_public_id, image_url, bio,
			is_active, is_email_verified, provider, federated_id,
			token_version, last_login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.FirstName, user.LastName, user.Email, user.Phone,
		user.SecretHash, string(user.Role), user.Image.PublicID, user.Image.URL, user.Bio,
		user.IsActive, user.IsEmailVerified, string(user.Provider), nullStr(user.FederatedID),
		user.TokenVersion, nullTime(user.LastLogin), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateKey("Email is already registered")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by internal id, secret excluded.
func (db *DB) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// FindByEmail retrieves a user by normalized email, secret excluded.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// FindByEmailWithSecret is the authentication lookup: same row, plus the
// secret hash.
func (db *DB) FindByEmailWithSecret(ctx context.Context, email string) (*model.User, error) {
	u, err := db.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	err = db.conn.QueryRowContext(ctx,
		`SELECT secret_hash FROM users WHERE id = ?`, u.ID,
	).Scan(&u.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting secret for user %s: %w", u.ID, err)
	}
	return u, nil
}

// Update writes the mutable profile and status fields. It never touches the
// secret, the token pairs, or the attempt counters — those change through
// their dedicated atomic operations.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, first_name = ?, last_name = ?, email = ?,
			phone = ?, image_public_id = ?, image_url = ?, bio = ?,
			is_active = ?, is_email_verified = ?, provider = ?,
			federated_id = ?, last_login = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name, user.FirstName, user.LastName, user.Email,
		user.Phone, user.Image.PublicID, user.Image.URL, user.Bio,
		user.IsActive, user.IsEmailVerified, string(user.Provider),
		nullStr(user.FederatedID), nullTime(user.LastLogin), user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateKey("Email is already in use")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return requireRow(res, "user", user.ID)
}

// UpdateSecret stores a new secret hash, backdates secret_changed_at by one
// second (clock-resolution guard: a token issued the same instant as the
// change must read as stale), and clears any pending reset token.
func (db *DB) UpdateSecret(ctx context.Context, id, secretHash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET secret_hash = ?, secret_changed_at = ?,
			password_reset_token = NULL, password_reset_expires = NULL,
			updated_at = ?
		 WHERE id = ?`,
		secretHash, time.Now().Add(-time.Second), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating secret for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

func (db *DB) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET email_verification_token = ?,
			email_verification_expires = ?, updated_at = ?
		 WHERE id = ?`,
		tokenHash, expiresAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting verification token for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

// FindByVerificationToken matches only a non-expired token hash. A miss does
// not reveal whether the token was wrong, consumed, or expired.
func (db *DB) FindByVerificationToken(ctx context.Context, tokenHash string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email_verification_token = ? AND email_verification_expires > ?`,
		tokenHash, time.Now())
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.InvalidToken("Invalid or expired verification token")
		}
		return nil, fmt.Errorf("sqlite: looking up verification token: %w", err)
	}
	return u, nil
}

// MarkEmailVerified flips the flag and clears the token pair so it cannot be
// replayed.
func (db *DB) MarkEmailVerified(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_email_verified = 1,
			email_verification_token = NULL, email_verification_expires = NULL,
			updated_at = ?
		 WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking user %s verified: %w", id, err)
	}
	return requireRow(res, "user", id)
}

func (db *DB) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_reset_token = ?,
			password_reset_expires = ?, updated_at = ?
		 WHERE id = ?`,
		tokenHash, expiresAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting reset token for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

func (db *DB) FindByResetToken(ctx context.Context, tokenHash string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE password_reset_token = ? AND password_reset_expires > ?`,
		tokenHash, time.Now())
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.InvalidToken("Invalid or expired reset token")
		}
		return nil, fmt.Errorf("sqlite: looking up reset token: %w", err)
	}
	return u, nil
}

// IncrementLoginAttempts applies one failed-login transition atomically:
//
//   - expired lock → attempts = 1, lock cleared (lazy expiry — there is no
//     background sweep)
//   - otherwise → attempts + 1; reaching 5 with no lock in place sets
//     lock_until = now + 1h
//
// A single UPDATE reads and writes the old values in one statement, so
// concurrent failed logins against the same account cannot lose updates.
func (db *DB) IncrementLoginAttempts(ctx context.Context, id string) error {
	now := time.Now()
	lockExpiry := now.Add(time.Hour)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until < ? THEN 1
				ELSE login_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until < ? THEN NULL
				WHEN login_attempts + 1 >= 5 AND lock_until IS NULL THEN ?
				ELSE lock_until
			END,
			updated_at = ?
		 WHERE id = ?`,
		now, now, lockExpiry, now, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing login attempts for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

// ResetLoginAttempts clears the counter and any lock. Called on successful
// authentication.
func (db *DB) ResetLoginAttempts(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET login_attempts = 0, lock_until = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resetting login attempts for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

func (db *DB) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		at, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording login for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

// SetTokenVersion rotates the account-wide refresh nonce. Every refresh
// token minted before this call stops matching.
func (db *DB) SetTokenVersion(ctx context.Context, id, version string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET token_version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting token version for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}

func (db *DB) Stats(ctx context.Context) (*repository.UserStats, error) {
	var s repository.UserStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(is_active), 0),
			COALESCE(SUM(is_email_verified), 0),
			COALESCE(SUM(CASE WHEN role = 'admin' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN provider IN ('google', 'both') THEN 1 ELSE 0 END), 0)
		FROM users`,
	).Scan(&s.Total, &s.Active, &s.Verified, &s.Admins, &s.Google)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing user stats: %w", err)
	}
	s.Inactive = s.Total - s.Active
	s.Unverified = s.Total - s.Verified
	return &s, nil
}

func (db *DB) SetRole(ctx context.Context, id string, role model.Role) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting role for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

func (db *DB) SetActive(ctx context.Context, id string, active bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting active for user %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var (
		u           model.User
		role        string
		provider    string
		federatedID sql.NullString
		verifTok    sql.NullString
		verifExp    sql.NullTime
		resetTok    sql.NullString
		resetExp    sql.NullTime
		secretAt    sql.NullTime
		lockUntil   sql.NullTime
		lastLogin   sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.Name, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &role,
		&u.Image.PublicID, &u.Image.URL, &u.Bio, &u.IsActive, &u.IsEmailVerified, &provider,
		&federatedID, &verifTok, &verifExp,
		&resetTok, &resetExp, &secretAt,
		&u.LoginAttempts, &lockUntil, &u.TokenVersion, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.Provider = model.Provider(provider)
	u.FederatedID = federatedID.String
	u.EmailVerificationToken = verifTok.String
	u.EmailVerificationExpiresAt = verifExp.Time
	u.PasswordResetToken = resetTok.String
	u.PasswordResetExpiresAt = resetExp.Time
	u.SecretChangedAt = secretAt.Time
	u.LockUntil = lockUntil.Time
	u.LastLogin = lastLogin.Time
	return &u, nil
}

// requireRow converts a zero-row UPDATE into a NotFound error.
func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
