package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"gorm.io/gorm"

	"shoplytics/internal/models"
)

// DefaultMaxQueryRows caps every range read so a hot window cannot pull an
// unbounded result set into memory. Callers must treat results as possibly
// truncated.
const DefaultMaxQueryRows = 50000

// Backend is the write surface the Collector reports into.
type Backend interface {
	InsertSession(ctx context.Context, session *Session) error
	InsertPageView(ctx context.Context, pageView *PageView) error
	UpdatePageViewDuration(ctx context.Context, pageViewID uint, seconds int) error
	InsertEvent(ctx context.Context, event *Event) error
	UpdateSessionUser(ctx context.Context, sessionID, userID string) error
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	// IsConstraintViolation reports whether an insert failed because of a
	// referential constraint, which drives the collector's self-heal retry.
	IsConstraintViolation(err error) bool
}

// Reader is the read surface the aggregation engine queries. All range reads
// are half-open [from, to), capped, and ordered by time ascending.
type Reader interface {
	SessionsInRange(ctx context.Context, from, to time.Time) ([]Session, error)
	SessionsActiveSince(ctx context.Context, since time.Time) ([]Session, error)
	PageViewsInRange(ctx context.Context, from, to time.Time) ([]PageView, error)
	EventsInRange(ctx context.Context, from, to time.Time) ([]Event, error)
}

// Store is the gorm/sqlite implementation of Backend and Reader.
type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	maxRows int
}

// NewStore creates a Store. A non-positive maxRows falls back to
// DefaultMaxQueryRows.
func NewStore(db *gorm.DB, logger *slog.Logger, maxRows int) *Store {
	if maxRows <= 0 {
		maxRows = DefaultMaxQueryRows
	}
	return &Store{db: db, logger: logger, maxRows: maxRows}
}

var (
	_ Backend = (*Store)(nil)
	_ Reader  = (*Store)(nil)
)

// InsertSession creates a session row.
func (s *Store) InsertSession(ctx context.Context, session *Session) error {
	err := models.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// InsertPageView creates a page view row and fills in its id.
func (s *Store) InsertPageView(ctx context.Context, pageView *PageView) error {
	err := models.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(pageView).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert page view: %w", err)
	}
	return nil
}

// UpdatePageViewDuration backfills time_on_page for one page view.
// Applying the same value twice is a no-op, so retries are safe.
func (s *Store) UpdatePageViewDuration(ctx context.Context, pageViewID uint, seconds int) error {
	err := models.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Model(&PageView{}).
			Where("id = ?", pageViewID).
			Update("time_on_page", seconds).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update page view duration: %w", err)
	}
	return nil
}

// InsertEvent creates an event row.
func (s *Store) InsertEvent(ctx context.Context, event *Event) error {
	err := models.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// UpdateSessionUser attaches a user id to a session. Idempotent.
func (s *Store) UpdateSessionUser(ctx context.Context, sessionID, userID string) error {
	err := models.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Model(&Session{}).
			Where("session_id = ?", sessionID).
			Update("user_id", userID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update session user: %w", err)
	}
	return nil
}

// TouchSession bumps last activity and the page view counter. The guard on
// last_activity_at keeps the column monotonically non-decreasing even if
// writes land out of order.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	err := models.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&Session{}).
			Where("session_id = ? AND last_activity_at <= ?", sessionID, at).
			Updates(map[string]interface{}{
				"last_activity_at": at,
				"page_view_count":  gorm.Expr("page_view_count + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Clock skew: still count the view without rewinding activity.
			return tx.Model(&Session{}).
				Where("session_id = ?", sessionID).
				Update("page_view_count", gorm.Expr("page_view_count + 1")).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// IsConstraintViolation classifies referential/constraint failures so the
// collector can distinguish them from transient backend errors.
func (s *Store) IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "foreign key constraint") ||
		strings.Contains(message, "constraint failed")
}

// SessionsInRange returns sessions started within [from, to).
func (s *Store) SessionsInRange(ctx context.Context, from, to time.Time) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Where("started_at >= ? AND started_at < ?", from.UTC(), to.UTC()).
		Order("started_at ASC").
		Limit(s.maxRows).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return sessions, nil
}

// SessionsActiveSince returns sessions whose last activity is at or after
// the given instant; used by the realtime view.
func (s *Store) SessionsActiveSince(ctx context.Context, since time.Time) ([]Session, error) {
	var sessions []Session
	err := s.db.WithContext(ctx).
		Where("last_activity_at >= ?", since.UTC()).
		Order("last_activity_at DESC").
		Limit(s.maxRows).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	return sessions, nil
}

// PageViewsInRange returns page views recorded within [from, to).
func (s *Store) PageViewsInRange(ctx context.Context, from, to time.Time) ([]PageView, error) {
	var pageViews []PageView
	err := s.db.WithContext(ctx).
		Where("viewed_at >= ? AND viewed_at < ?", from.UTC(), to.UTC()).
		Order("viewed_at ASC").
		Limit(s.maxRows).
		Find(&pageViews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query page views: %w", err)
	}
	return pageViews, nil
}

// EventsInRange returns events recorded within [from, to).
func (s *Store) EventsInRange(ctx context.Context, from, to time.Time) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("created_at ASC").
		Limit(s.maxRows).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}
