// Package bookmarks is the application-level client of the bookmark store:
// it enriches new bookmarks, persists them and announces every change on the
// realtime feed.
package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joestump/smartmark/internal/logger"
	"github.com/joestump/smartmark/internal/metadata"
	"github.com/joestump/smartmark/internal/metrics"
	"github.com/joestump/smartmark/internal/realtime"
	"github.com/joestump/smartmark/internal/store"
)

// UntitledTitle is stored when neither the caller nor the page supplies a title.
const UntitledTitle = "Untitled"

// ErrURLRequired is returned by Insert when url is empty.
var ErrURLRequired = errors.New("url is required")

// StoreError reports a failed persistence call. Op is "list", "insert" or "delete".
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("bookmark store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// Publisher announces changes. realtime.Broker satisfies it.
type Publisher interface {
	Publish(ctx context.Context, e realtime.Event) error
}

// Service implements list, insert and delete for one user's bookmarks.
type Service struct {
	store    store.BookmarkStoreIface
	enricher metadata.Enricher
	feed     Publisher
	log      logger.Logger
}

// NewService wires a Service. feed may be nil, in which case no change events
// are published.
func NewService(s store.BookmarkStoreIface, e metadata.Enricher, feed Publisher, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: s, enricher: e, feed: feed, log: log}
}

// ListAll returns every bookmark owned by userID, newest first.
func (s *Service) ListAll(ctx context.Context, userID string) ([]*store.Bookmark, error) {
	items, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.storeErr("list", err, logger.String("user_id", userID))
	}
	return items, nil
}

// Insert enriches url, persists the bookmark for userID and publishes it.
// Enrichment and publish failures never fail the call.
func (s *Service) Insert(ctx context.Context, url, title, userID string) (*store.Bookmark, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrURLRequired
	}

	var meta metadata.Metadata
	if s.enricher != nil {
		meta = s.enricher.Fetch(ctx, url)
	}

	b, err := s.store.Create(ctx, store.NewBookmark{
		UserID:      userID,
		URL:         url,
		Title:       ResolveTitle(title, meta.Title),
		Description: meta.Description,
		ImageURL:    meta.Image,
	})
	if err != nil {
		return nil, s.storeErr("insert", err, logger.String("user_id", userID), logger.String("url", url))
	}

	metrics.BookmarksCreatedTotal.Inc()
	s.log.Info("bookmark created",
		logger.String("id", b.ID), logger.String("user_id", userID), logger.Bool("enriched", !meta.IsZero()))
	s.publish(ctx, realtime.InsertedEvent(b))
	return b, nil
}

// Delete removes bookmark id owned by userID. An id that does not exist or
// belongs to someone else yields a StoreError wrapping store.ErrNotFound.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return s.storeErr("delete", err, logger.String("user_id", userID), logger.String("id", id))
	}

	metrics.BookmarksDeletedTotal.Inc()
	s.log.Info("bookmark deleted", logger.String("id", id), logger.String("user_id", userID))
	s.publish(ctx, realtime.DeletedEvent(userID, id))
	return nil
}

// ResolveTitle picks the caller's title, then the fetched one, then UntitledTitle.
func ResolveTitle(given, fetched string) string {
	if t := strings.TrimSpace(given); t != "" {
		return t
	}
	if t := strings.TrimSpace(fetched); t != "" {
		return t
	}
	return UntitledTitle
}

func (s *Service) publish(ctx context.Context, e realtime.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, e); err != nil {
		s.log.Warn("publish change event failed",
			logger.String("kind", string(e.Kind)), logger.String("id", e.ID), logger.Error(err))
	}
}

func (s *Service) storeErr(op string, err error, fields ...logger.Field) error {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	if !errors.Is(err, store.ErrNotFound) {
		s.log.Error("bookmark store "+op+" failed", append(fields, logger.Error(err))...)
	}
	return &StoreError{Op: op, Err: err}
}
