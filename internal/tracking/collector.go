package tracking

import (
	"context"
	"net/url"
	"sync"
	"time"

	"log/slog"

	"shoplytics/internal/models"
	"shoplytics/internal/pkg/useragent"
	"shoplytics/internal/pkg/weburls"
	"shoplytics/internal/sessionstore"
)

// maxPlausibleDwellSeconds discards dwell times from clients that were idle
// or backgrounded between navigations; anything at or above one hour is
// left null instead of being stored as a noisy outlier.
const maxPlausibleDwellSeconds = 3600

// VisitContext carries the request context of the visiting client. Device,
// browser, OS, referrer and UTM attribution are derived from it once, when
// the session record is created.
type VisitContext struct {
	UserAgent   string
	ReferrerURL string
	// PageURL is the full URL of the page the visit landed on; its path
	// becomes the session's landing page and its query string carries the
	// UTM parameters.
	PageURL string
	UserID  *string
}

// Collector is the single entry point the host application reports into.
//
// Analytics must never break the host: no method returns an error and no
// backend failure propagates. Everything is logged and dropped.
type Collector struct {
	backend  Backend
	sessions *sessionstore.Store
	logger   *slog.Logger
	now      func() time.Time
	visit    VisitContext

	mu          sync.Mutex
	initPending chan struct{}
	initialized bool
	sessionID   string
	userID      *string
}

// NewCollector creates a collector for one visiting client. A nil clock
// defaults to time.Now.
func NewCollector(backend Backend, sessions *sessionstore.Store, logger *slog.Logger, visit VisitContext, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{
		backend:  backend,
		sessions: sessions,
		logger:   logger,
		now:      now,
		visit:    visit,
		userID:   visit.UserID,
	}
}

// Init resolves the client session and, when it is new, creates the session
// record on the backend. It is idempotent, and concurrent callers share a
// single in-flight attempt: a page firing several tracking calls at load
// time produces exactly one session insert.
func (c *Collector) Init(ctx context.Context) {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return
	}
	if c.initPending != nil {
		pending := c.initPending
		c.mu.Unlock()
		<-pending
		return
	}
	pending := make(chan struct{})
	c.initPending = pending
	c.mu.Unlock()

	c.runInit(ctx)

	c.mu.Lock()
	c.initialized = true
	c.initPending = nil
	c.mu.Unlock()
	close(pending)
}

func (c *Collector) runInit(ctx context.Context) {
	c.ensureSession(ctx)
}

// ensureSession re-resolves the session id on every tracking call. The
// store renews the inactivity window on each hit; once the window has
// lapsed it mints a fresh id, and the collector must then open a new
// session record instead of stretching the stale one forever.
func (c *Collector) ensureSession(ctx context.Context) string {
	sessionID, isNew := c.sessions.GetOrCreateSessionID()

	c.mu.Lock()
	c.sessionID = sessionID
	userID := c.userID
	c.mu.Unlock()

	if !isNew {
		return sessionID
	}

	session := c.buildSession(sessionID, userID)
	if err := c.backend.InsertSession(ctx, session); err != nil {
		c.logger.Warn("Failed to create session record",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
	return sessionID
}

// buildSession derives the immutable session attributes from the visit
// context.
func (c *Collector) buildSession(sessionID string, userID *string) *Session {
	ua := useragent.Parse(c.visit.UserAgent)
	utm := weburls.ExtractUTMParams(c.visit.PageURL)
	now := c.now()

	landingPage := weburls.ExtractPath(c.visit.PageURL)
	if landingPage == "" {
		landingPage = "/"
	}

	return &Session{
		SessionID:      sessionID,
		UserID:         userID,
		DeviceType:     ua.Device,
		Browser:        ua.Browser,
		OS:             ua.OS,
		ReferrerURL:    c.visit.ReferrerURL,
		ReferrerDomain: weburls.ExtractDomain(c.visit.ReferrerURL),
		UTMSource:      utm.Source,
		UTMMedium:      utm.Medium,
		UTMCampaign:    utm.Campaign,
		UTMTerm:        utm.Term,
		UTMContent:     utm.Content,
		LandingPage:    landingPage,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// TrackPageView records one navigation. It renews or replaces the session
// per the inactivity window, backfills the previous page view's dwell time
// when plausible, links the new view to the previous path, self-heals a
// missing session row once, and always updates the local bookkeeping so
// client-side dwell computation survives backend failures.
func (c *Collector) TrackPageView(ctx context.Context, path, title string) {
	c.Init(ctx)
	sessionID := c.ensureSession(ctx)
	now := c.now()

	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	var previousPage *string
	if last, ok := c.sessions.LastPage(); ok {
		prev := last.Path
		previousPage = &prev

		dwell := int(now.Sub(last.ViewedAt).Seconds())
		if dwell > 0 && dwell < maxPlausibleDwellSeconds && last.PageViewID != 0 {
			if err := c.backend.UpdatePageViewDuration(ctx, last.PageViewID, dwell); err != nil {
				c.logger.Warn("Failed to backfill page view dwell time",
					slog.Uint64("page_view_id", uint64(last.PageViewID)),
					slog.Any("error", err))
			}
		}
	}

	pageView := &PageView{
		SessionID:    sessionID,
		UserID:       userID,
		PagePath:     path,
		PageTitle:    title,
		PageURL:      c.pageURL(path),
		PreviousPage: previousPage,
		ViewedAt:     now,
	}

	if err := c.backend.InsertPageView(ctx, pageView); err != nil {
		if c.backend.IsConstraintViolation(err) {
			c.recreateSessionAndRetry(ctx, pageView)
		} else {
			c.logger.Warn("Failed to insert page view",
				slog.String("path", path),
				slog.Any("error", err))
		}
	} else {
		if err := c.backend.TouchSession(ctx, sessionID, now); err != nil {
			c.logger.Warn("Failed to update session activity",
				slog.String("session_id", sessionID),
				slog.Any("error", err))
		}
	}

	// Bookkeeping is updated even when the backend write failed, so the
	// next dwell computation stays anchored to what the client actually saw.
	c.sessions.SetLastPage(sessionstore.LastPage{
		Path:       path,
		ViewedAt:   now,
		PageViewID: pageView.ID,
	})
}

// recreateSessionAndRetry self-heals a page view whose session row is gone
// from the backend (storage TTL, clock skew). The session is recreated and
// the insert retried exactly once; a second failure is logged and dropped.
func (c *Collector) recreateSessionAndRetry(ctx context.Context, pageView *PageView) {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	session := c.buildSession(pageView.SessionID, userID)
	if err := c.backend.InsertSession(ctx, session); err != nil {
		c.logger.Warn("Failed to recreate missing session",
			slog.String("session_id", pageView.SessionID),
			slog.Any("error", err))
		return
	}

	if err := c.backend.InsertPageView(ctx, pageView); err != nil {
		c.logger.Warn("Failed to insert page view after session recreation",
			slog.String("path", pageView.PagePath),
			slog.Any("error", err))
		return
	}

	if err := c.backend.TouchSession(ctx, pageView.SessionID, pageView.ViewedAt); err != nil {
		c.logger.Warn("Failed to update session activity",
			slog.String("session_id", pageView.SessionID),
			slog.Any("error", err))
	}
}

// TrackEvent records one named event with a free-form payload.
func (c *Collector) TrackEvent(ctx context.Context, name string, payload map[string]interface{}, category string) {
	c.Init(ctx)
	sessionID := c.ensureSession(ctx)

	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	pagePath := ""
	if last, ok := c.sessions.LastPage(); ok {
		pagePath = last.Path
	}

	event := &Event{
		SessionID: sessionID,
		UserID:    userID,
		EventName: name,
		Category:  category,
		Payload:   models.JSONFromMap(payload),
		PagePath:  pagePath,
		CreatedAt: c.now(),
	}

	if err := c.backend.InsertEvent(ctx, event); err != nil {
		c.logger.Warn("Failed to insert event",
			slog.String("event_name", name),
			slog.Any("error", err))
	}
}

// SetUserID attaches a user id to the collector and, when a session is
// active, to its backend record. Covers the visit that starts anonymous and
// logs in mid-session.
func (c *Collector) SetUserID(ctx context.Context, userID string) {
	c.mu.Lock()
	c.userID = &userID
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID == "" {
		return
	}

	if err := c.backend.UpdateSessionUser(ctx, sessionID, userID); err != nil {
		c.logger.Warn("Failed to attach user to session",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
}

// pageURL joins the visit's scheme and host with a tracked path, falling
// back to the bare path when the landing URL was unusable.
func (c *Collector) pageURL(path string) string {
	parsed, err := url.Parse(c.visit.PageURL)
	if err != nil || parsed.Host == "" {
		return path
	}
	return parsed.Scheme + "://" + parsed.Host + path
}

// Convenience wrappers. These standardize event names, categories and
// payload keys; they add no logic of their own.

// TrackClick records a click on a named element.
func (c *Collector) TrackClick(ctx context.Context, element string) {
	c.TrackEvent(ctx, "click", map[string]interface{}{"element": element}, "interaction")
}

// TrackFormSubmit records a form submission.
func (c *Collector) TrackFormSubmit(ctx context.Context, formName string) {
	c.TrackEvent(ctx, "form_submit", map[string]interface{}{"form": formName}, "interaction")
}

// TrackPurchase records a completed order.
func (c *Collector) TrackPurchase(ctx context.Context, orderID string, amount float64, itemCount int) {
	c.TrackEvent(ctx, "purchase", map[string]interface{}{
		"order_id":   orderID,
		"amount":     amount,
		"item_count": itemCount,
	}, "commerce")
}

// TrackAddToCart records a product added to the cart.
func (c *Collector) TrackAddToCart(ctx context.Context, productID string, price float64) {
	c.TrackEvent(ctx, "add_to_cart", map[string]interface{}{
		"product_id": productID,
		"price":      price,
	}, "commerce")
}

// TrackSearch records a site search and its result count.
func (c *Collector) TrackSearch(ctx context.Context, query string, resultCount int) {
	c.TrackEvent(ctx, "search", map[string]interface{}{
		"query":        query,
		"result_count": resultCount,
	}, "engagement")
}

// TrackScrollDepth records how far down the page the visitor scrolled.
func (c *Collector) TrackScrollDepth(ctx context.Context, percent int) {
	c.TrackEvent(ctx, "scroll_depth", map[string]interface{}{"percent": percent}, "engagement")
}

// TrackError records a client-side error.
func (c *Collector) TrackError(ctx context.Context, message, source string) {
	c.TrackEvent(ctx, "error", map[string]interface{}{
		"message": message,
		"source":  source,
	}, "diagnostics")
}
