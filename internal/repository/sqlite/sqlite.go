// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure-Go translation of SQLite — no CGo, so the
// binary cross-compiles cleanly. The database is the single source of truth
// and the only point of coordination between concurrent requests: uniqueness
// (email) and counter updates (login attempts, lock state) are enforced with
// single atomic statements, never read-modify-write in the application.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql at init time.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces. The server owns the lifecycle: New creates it, Close flushes
// the WAL and releases the file lock on shutdown.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath (":memory:" for tests) and runs
// migrations.
//
// WAL mode allows concurrent reads while a write is in flight — necessary
// for a web server where every request may hit the database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path fails here, not on the
	// first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// users: email uniqueness is case-insensitive via NOCASE; the sparse
	// unique index on federated_id ignores NULLs so local-only accounts
	// don't collide.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                        TEXT PRIMARY KEY,
			name                      TEXT NOT NULL,
			first_name                TEXT NOT NULL DEFAULT '',
			last_name                 TEXT NOT NULL DEFAULT '',
			email                     TEXT NOT NULL COLLATE NOCASE,
			phone                     TEXT NOT NULL DEFAULT '',
			secret_hash               TEXT NOT NULL,
			role                      TEXT NOT NULL DEFAULT 'user',
			image_public_id           TEXT NOT NULL DEFAULT 'default',
			image_url                 TEXT NOT NULL DEFAULT '',
			bio                       TEXT NOT NULL DEFAULT '',
			is_active                 INTEGER NOT NULL DEFAULT 1,
			is_email_verified         INTEGER NOT NULL DEFAULT 0,
			provider                  TEXT NOT NULL DEFAULT 'local',
			federated_id              TEXT,
			email_verification_token  TEXT,
			email_verification_expires DATETIME,
			password_reset_token      TEXT,
			password_reset_expires    DATETIME,
			secret_changed_at         DATETIME,
			login_attempts            INTEGER NOT NULL DEFAULT 0,
			lock_until                DATETIME,
			token_version             TEXT NOT NULL DEFAULT '',
			last_login                DATETIME,
			created_at                DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at                DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_federated_id
			ON users(federated_id) WHERE federated_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
		CREATE INDEX IF NOT EXISTS idx_users_is_active ON users(is_active);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS categories (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			image_public_id TEXT NOT NULL DEFAULT 'default',
			image_url       TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name ON categories(name);

		CREATE TABLE IF NOT EXISTS subcategories (
			id              TEXT PRIMARY KEY,
			category_id     TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			name            TEXT NOT NULL,
			image_public_id TEXT NOT NULL DEFAULT 'default',
			image_url       TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_subcategories_category ON subcategories(category_id);
	`)
	if err != nil {
		return fmt.Errorf("creating category tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			price_cents     INTEGER NOT NULL DEFAULT 0,
			stock           INTEGER NOT NULL DEFAULT 0,
			category_id     TEXT NOT NULL REFERENCES categories(id),
			subcategory_id  TEXT REFERENCES subcategories(id),
			image_public_id TEXT NOT NULL DEFAULT 'default',
			image_url       TEXT NOT NULL DEFAULT '',
			is_active       INTEGER NOT NULL DEFAULT 1,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);
		CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating products table: %w", err)
	}

	return nil
}
