package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type User struct {
	ID          string    `db:"id"`
	Provider    string    `db:"provider"`
	Subject     string    `db:"subject"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) q(query string) string { return s.db.Rebind(query) }

// Upsert creates or updates a user record on OIDC login, keyed by
// (provider, subject). Email and display name follow the identity provider.
// A select-then-write inside one transaction keeps the statement set portable
// across sqlite, postgres and mysql.
func (s *UserStore) Upsert(ctx context.Context, provider, subject, email, displayName string) (*User, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var id string
	err = tx.GetContext(ctx, &id, s.q(`SELECT id FROM users WHERE provider = ? AND subject = ?`), provider, subject)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.New().String()
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO users (id, provider, subject, email, display_name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), id, provider, subject, email, displayName, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx, s.q(`
			UPDATE users SET email = ?, display_name = ?, updated_at = ? WHERE id = ?
		`), email, displayName, now, id)
	}
	if err != nil {
		return nil, err
	}

	var u User
	if err := tx.GetContext(ctx, &u, s.q(`SELECT * FROM users WHERE id = ?`), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID returns the user with id, or ErrNotFound.
func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT * FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
