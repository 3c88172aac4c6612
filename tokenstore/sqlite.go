// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// Open creates or opens the SQLite token database at path and runs
// migrations.  A new database file is only readable by the current user.
func Open(path string) (*SQLite, error) {
	const op = "tokenstore.Open"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, ErrInvalidParameter)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%s: creating directory: %w", op, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%s: creating database file: %w", op, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%s: opening database: %w", op, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: migrating database: %w", op, err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the record for r.Key.  UpdatedAt is set to the
// current time when zero.
func (s *SQLite) Save(ctx context.Context, r Record) error {
	const op = "SQLite.Save"
	if r.Key == "" {
		return fmt.Errorf("%s: key is empty: %w", op, ErrInvalidParameter)
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	var expiry int64
	if !r.Expiry.IsZero() {
		expiry = r.Expiry.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tokens (key, refresh_token, id_token, expiry_unix, updated_at) VALUES (?, ?, ?, ?, ?)`,
		r.Key, r.RefreshToken, r.IDToken, expiry, r.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Load returns the record for key, or ErrNotFound.
func (s *SQLite) Load(ctx context.Context, key string) (Record, error) {
	const op = "SQLite.Load"
	row := s.db.QueryRowContext(ctx,
		`SELECT key, refresh_token, id_token, expiry_unix, updated_at FROM tokens WHERE key = ?`, key)

	var r Record
	var idToken sql.NullString
	var expiry, updatedAt int64
	err := row.Scan(&r.Key, &r.RefreshToken, &idToken, &expiry, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	r.IDToken = idToken.String
	if expiry != 0 {
		r.Expiry = time.Unix(expiry, 0)
	}
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return r, nil
}

// Delete removes the record for key.  Deleting a missing record isn't an
// error.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	const op = "SQLite.Delete"
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			key TEXT PRIMARY KEY,
			refresh_token TEXT NOT NULL,
			id_token TEXT,
			expiry_unix INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
