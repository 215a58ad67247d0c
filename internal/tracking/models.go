// Package tracking owns the raw analytics records (sessions, page views,
// events), the storage backend they are persisted through, and the Collector
// the host application reports into.
package tracking

import (
	"time"

	"shoplytics/internal/models"
)

// Session represents one visit lifetime, bounded by inactivity expiry.
//
// Device, browser, OS, referrer, UTM and landing page are fixed at creation.
// LastActivityAt and PageViewCount only ever grow; UserID is attached once
// when an anonymous visit logs in mid-session.
type Session struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID      string    `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	UserID         *string   `gorm:"index" json:"user_id"`
	DeviceType     string    `gorm:"index" json:"device_type"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	ReferrerURL    string    `json:"referrer_url"`
	ReferrerDomain string    `gorm:"index" json:"referrer_domain"`
	UTMSource      string    `json:"utm_source"`
	UTMMedium      string    `json:"utm_medium"`
	UTMCampaign    string    `json:"utm_campaign"`
	UTMTerm        string    `json:"utm_term"`
	UTMContent     string    `json:"utm_content"`
	LandingPage    string    `json:"landing_page"`
	StartedAt      time.Time `gorm:"index;not null" json:"started_at"`
	LastActivityAt time.Time `gorm:"index;not null" json:"last_activity_at"`
	PageViewCount  int       `gorm:"not null;default:0" json:"page_view_count"`
	CreatedAt      time.Time `json:"-"`
}

// PageView represents one navigation within a session.
//
// TimeOnPage stays null until the next page view in the same client session
// backfills it; implausible values are dropped rather than stored.
type PageView struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID    string    `gorm:"index;size:64;not null" json:"session_id"`
	UserID       *string   `json:"user_id"`
	PagePath     string    `gorm:"index;not null" json:"page_path"`
	PageTitle    string    `json:"page_title"`
	PageURL      string    `json:"page_url"`
	PreviousPage *string   `json:"previous_page"`
	TimeOnPage   *int      `json:"time_on_page"`
	ViewedAt     time.Time `gorm:"index;not null" json:"viewed_at"`
	CreatedAt    time.Time `json:"-"`

	Session *Session `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Event represents one named occurrence (click, purchase, search, error).
// The payload is opaque to the aggregation layer.
type Event struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string      `gorm:"index;size:64;not null" json:"session_id"`
	UserID    *string     `json:"user_id"`
	EventName string      `gorm:"index;not null" json:"event_name"`
	Category  string      `gorm:"index" json:"category"`
	Payload   models.JSON `gorm:"type:text" json:"payload"`
	PagePath  string      `json:"page_path"`
	CreatedAt time.Time   `gorm:"index" json:"created_at"`

	Session *Session `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}
