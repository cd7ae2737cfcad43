// ABOUTME: Store interface and data types for gatewarden persistence
// ABOUTME: Defines UserRecord, ActivityEntry and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Status describes the verification state of a (user, chat) pair.
type Status string

const (
	// StatusAbsent means no row exists for the pair yet.
	StatusAbsent Status = "absent"
	// StatusUnverified means the pair exists but has not passed the captcha.
	StatusUnverified Status = "unverified"
	// StatusVerified means the pair has passed the captcha.
	StatusVerified Status = "verified"
)

// Outcome is the result of a captcha resolution.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeExpired   Outcome = "expired"
)

// Action labels for activity log entries.
type Action string

const (
	ActionUserJoined       Action = "user_joined"
	ActionMessageSent      Action = "message_sent"
	ActionCaptchaCompleted Action = "captcha_completed"
	ActionCaptchaExpired   Action = "captcha_expired"
)

// ActionForOutcome maps a captcha outcome to its activity log label.
func ActionForOutcome(o Outcome) Action {
	if o == OutcomeCompleted {
		return ActionCaptchaCompleted
	}
	return ActionCaptchaExpired
}

// UserRecord is the durable verification state for one (user, chat) pair.
type UserRecord struct {
	UserID        string
	ChatID        string
	Username      string
	JoinDate      time.Time
	LastActivity  time.Time
	CaptchaPassed bool
	MessageCount  int
}

// ActivityEntry is one append-only activity log row.
type ActivityEntry struct {
	ID        int64
	UserID    string
	ChatID    string
	Action    Action
	Timestamp time.Time
}

// ActivityFilter specifies filtering options for listing activity entries.
type ActivityFilter struct {
	UserID *string // filter by user
	ChatID *string // filter by chat
	Action *Action // filter by action label
	Limit  int     // max results (default 100, max 1000)
}

// Store defines the interface for verification state persistence.
// All write operations are transactional per call: the row mutation and the
// activity log append commit together or not at all.
type Store interface {
	// StatusOf reports the verification status of a (user, chat) pair.
	StatusOf(ctx context.Context, userID, chatID string) (Status, error)

	// UpsertUser inserts or fully replaces the row for a (user, chat) pair,
	// resetting captcha_passed to false, and appends a user_joined entry.
	// Idempotent.
	UpsertUser(ctx context.Context, userID, username, chatID string) error

	// RecordActivity increments message_count, refreshes last_activity and
	// appends a message_sent entry. A missing user row is tolerated.
	RecordActivity(ctx context.Context, userID, chatID string) error

	// SetCaptchaStatus sets captcha_passed according to the outcome and
	// appends a captcha_<outcome> entry.
	SetCaptchaStatus(ctx context.Context, userID, chatID string, outcome Outcome) error

	// GetUser returns the full row for a (user, chat) pair, or ErrNotFound.
	GetUser(ctx context.Context, userID, chatID string) (*UserRecord, error)

	// ListActivity returns activity entries matching the filter, newest first.
	ListActivity(ctx context.Context, f ActivityFilter) ([]ActivityEntry, error)

	// Close releases the underlying storage.
	Close() error
}
