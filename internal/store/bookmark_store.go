package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Bookmark represents a row in the bookmarks table.
type Bookmark struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	URL         string    `db:"url" json:"url"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NewBookmark carries the fields of a bookmark about to be inserted. Title
// resolution and enrichment happen before the store is called.
type NewBookmark struct {
	UserID      string
	URL         string
	Title       string
	Description string
	ImageURL    string
}

// BookmarkStore is the sqlx-backed implementation of BookmarkStoreIface.
type BookmarkStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewBookmarkStore creates a new BookmarkStore.
func NewBookmarkStore(db *sqlx.DB) *BookmarkStore {
	return &BookmarkStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// q rebinds ? placeholders to the driver's native format.
func (s *BookmarkStore) q(query string) string { return s.db.Rebind(query) }

// ListByUser returns the user's bookmarks, most recently created first.
func (s *BookmarkStore) ListByUser(ctx context.Context, userID string) ([]*Bookmark, error) {
	bookmarks := []*Bookmark{}
	err := s.db.SelectContext(ctx, &bookmarks, s.q(`
		SELECT id, user_id, url, title, description, image_url, created_at
		FROM bookmarks
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`), userID)
	if err != nil {
		return nil, err
	}
	return bookmarks, nil
}

// GetByID returns the bookmark with id owned by userID, or ErrNotFound.
func (s *BookmarkStore) GetByID(ctx context.Context, userID, id string) (*Bookmark, error) {
	var b Bookmark
	err := s.db.GetContext(ctx, &b, s.q(`
		SELECT id, user_id, url, title, description, image_url, created_at
		FROM bookmarks
		WHERE id = ? AND user_id = ?
	`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a new bookmark and returns the persisted row with its
// assigned ID.
func (s *BookmarkStore) Create(ctx context.Context, in NewBookmark) (*Bookmark, error) {
	b := &Bookmark{
		ID:          uuid.New().String(),
		UserID:      in.UserID,
		URL:         in.URL,
		Title:       in.Title,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		CreatedAt:   s.now(),
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO bookmarks (id, user_id, url, title, description, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), b.ID, b.UserID, b.URL, b.Title, b.Description, b.ImageURL, b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Delete removes the bookmark with id owned by userID. It returns ErrNotFound
// when no such row exists, including rows that belong to another user.
func (s *BookmarkStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM bookmarks WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
