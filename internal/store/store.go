package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// BookmarkStoreIface exposes all bookmark data operations. Every method is
// scoped by the owning user; there is no unscoped read or delete.
type BookmarkStoreIface interface {
	ListByUser(ctx context.Context, userID string) ([]*Bookmark, error)
	GetByID(ctx context.Context, userID, id string) (*Bookmark, error)
	Create(ctx context.Context, in NewBookmark) (*Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
}

var _ BookmarkStoreIface = (*BookmarkStore)(nil)
