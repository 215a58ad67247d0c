package tracking_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoplytics/internal/testsupport"
	"shoplytics/internal/tracking"
)

func newStore(t *testing.T) *tracking.Store {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	return tracking.NewStore(db, testsupport.GetLogger(), 0)
}

func TestStoreSessionRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	session := &tracking.Session{
		SessionID:      "s-1",
		DeviceType:     "mobile",
		Browser:        "Safari",
		OS:             "iOS",
		ReferrerDomain: "google.com",
		LandingPage:    "/home",
		StartedAt:      base,
		LastActivityAt: base,
	}
	require.NoError(t, store.InsertSession(ctx, session))

	sessions, err := store.SessionsInRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].SessionID)
	assert.Equal(t, "mobile", sessions[0].DeviceType)
}

func TestStoreRangeIsHalfOpen(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{base.Add(-time.Second), base, base.Add(time.Hour), base.Add(24 * time.Hour)} {
		require.NoError(t, store.InsertSession(ctx, &tracking.Session{
			SessionID:      fmt.Sprintf("s-%d", i),
			StartedAt:      at,
			LastActivityAt: at,
		}))
	}

	sessions, err := store.SessionsInRange(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	// The instant before the window and the exact upper bound are excluded.
	assert.Len(t, sessions, 2)
}

func TestStoreTouchSessionMonotonic(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertSession(ctx, &tracking.Session{
		SessionID:      "s-1",
		StartedAt:      base,
		LastActivityAt: base,
	}))

	require.NoError(t, store.TouchSession(ctx, "s-1", base.Add(time.Minute)))
	// An out-of-order touch must not rewind last activity but still counts.
	require.NoError(t, store.TouchSession(ctx, "s-1", base.Add(30*time.Second)))

	sessions, err := store.SessionsInRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].PageViewCount)
	assert.True(t, sessions[0].LastActivityAt.Equal(base.Add(time.Minute)))
}

func TestStoreUpdatePageViewDuration(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertSession(ctx, &tracking.Session{
		SessionID: "s-1", StartedAt: base, LastActivityAt: base,
	}))
	pageView := &tracking.PageView{SessionID: "s-1", PagePath: "/home", ViewedAt: base}
	require.NoError(t, store.InsertPageView(ctx, pageView))
	require.NotZero(t, pageView.ID)

	require.NoError(t, store.UpdatePageViewDuration(ctx, pageView.ID, 45))

	views, err := store.PageViewsInRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].TimeOnPage)
	assert.Equal(t, 45, *views[0].TimeOnPage)
}

func TestStoreInsertPageViewWithoutSessionIsConstraintViolation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.InsertPageView(ctx, &tracking.PageView{
		SessionID: "missing",
		PagePath:  "/home",
		ViewedAt:  time.Now().UTC(),
	})
	require.Error(t, err)
	assert.True(t, store.IsConstraintViolation(err))
}

func TestStoreIsConstraintViolationIgnoresOtherErrors(t *testing.T) {
	store := newStore(t)

	assert.False(t, store.IsConstraintViolation(nil))
	assert.False(t, store.IsConstraintViolation(context.DeadlineExceeded))
}

func TestStoreUpdateSessionUser(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertSession(ctx, &tracking.Session{
		SessionID: "s-1", StartedAt: base, LastActivityAt: base,
	}))
	require.NoError(t, store.UpdateSessionUser(ctx, "s-1", "user-9"))

	sessions, err := store.SessionsInRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].UserID)
	assert.Equal(t, "user-9", *sessions[0].UserID)
}

func TestStoreSessionsActiveSince(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertSession(ctx, &tracking.Session{
		SessionID: "old", StartedAt: base.Add(-time.Hour), LastActivityAt: base.Add(-10 * time.Minute),
	}))
	require.NoError(t, store.InsertSession(ctx, &tracking.Session{
		SessionID: "fresh", StartedAt: base.Add(-time.Hour), LastActivityAt: base.Add(-time.Minute),
	}))

	active, err := store.SessionsActiveSince(ctx, base.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].SessionID)
}

func TestStoreEventsInRange(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertSession(ctx, &tracking.Session{
		SessionID: "s-1", StartedAt: base, LastActivityAt: base,
	}))
	require.NoError(t, store.InsertEvent(ctx, &tracking.Event{
		SessionID: "s-1",
		EventName: "purchase",
		Category:  "commerce",
		CreatedAt: base.Add(time.Minute),
	}))

	events, err := store.EventsInRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "purchase", events[0].EventName)
}
