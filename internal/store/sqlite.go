// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user verification state and activity log persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists (skip for in-memory databases)
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Serialize writes behind a single connection; SQLite does not support
	// concurrent writers and the dispatcher and sweeper both write.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			user_id        TEXT NOT NULL,
			chat_id        TEXT NOT NULL,
			username       TEXT NOT NULL,
			join_date      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_activity  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			captcha_passed INTEGER NOT NULL DEFAULT 0,
			message_count  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, chat_id)
		);

		CREATE TABLE IF NOT EXISTS activity_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id   TEXT NOT NULL,
			chat_id   TEXT NOT NULL,
			action    TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_activity_log_user_chat
			ON activity_log(user_id, chat_id);

		CREATE INDEX IF NOT EXISTS idx_activity_log_timestamp
			ON activity_log(timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StatusOf reports the verification status of a (user, chat) pair.
// A missing row is StatusAbsent, not an error.
func (s *SQLiteStore) StatusOf(ctx context.Context, userID, chatID string) (Status, error) {
	var passed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT captcha_passed FROM users
		WHERE user_id = ? AND chat_id = ?
	`, userID, chatID).Scan(&passed)

	if err == sql.ErrNoRows {
		return StatusAbsent, nil
	}
	if err != nil {
		return "", fmt.Errorf("querying user status: %w", err)
	}

	if passed {
		return StatusVerified, nil
	}
	return StatusUnverified, nil
}

// UpsertUser inserts or fully replaces the row for a (user, chat) pair and
// appends a user_joined activity entry in the same transaction.
func (s *SQLiteStore) UpsertUser(ctx context.Context, userID, username, chatID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO users
				(user_id, chat_id, username, join_date, last_activity, captcha_passed, message_count)
			VALUES (?, ?, ?, ?, ?, 0, 0)
		`, userID, chatID, username, now, now); err != nil {
			return fmt.Errorf("upserting user row: %w", err)
		}

		if err := appendActivity(ctx, tx, userID, chatID, ActionUserJoined, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("user upserted", "user", userID, "chat", chatID, "username", username)
	return nil
}

// RecordActivity bumps message_count and last_activity and appends a
// message_sent entry. The activity entry is appended even when the user row
// does not exist yet; the missing row is logged, not fatal.
func (s *SQLiteStore) RecordActivity(ctx context.Context, userID, chatID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users
			SET last_activity = ?, message_count = message_count + 1
			WHERE user_id = ? AND chat_id = ?
		`, now, userID, chatID)
		if err != nil {
			return fmt.Errorf("updating user activity: %w", err)
		}

		if n, err := res.RowsAffected(); err == nil && n == 0 {
			s.logger.Debug("activity for unknown user", "user", userID, "chat", chatID)
		}

		return appendActivity(ctx, tx, userID, chatID, ActionMessageSent, now)
	})
}

// SetCaptchaStatus records a captcha resolution outcome and appends the
// matching captcha_<outcome> entry in the same transaction.
func (s *SQLiteStore) SetCaptchaStatus(ctx context.Context, userID, chatID string, outcome Outcome) error {
	now := time.Now().UTC().Format(time.RFC3339)
	passed := 0
	if outcome == OutcomeCompleted {
		passed = 1
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET captcha_passed = ?
			WHERE user_id = ? AND chat_id = ?
		`, passed, userID, chatID); err != nil {
			return fmt.Errorf("updating captcha status: %w", err)
		}

		return appendActivity(ctx, tx, userID, chatID, ActionForOutcome(outcome), now)
	})
	if err != nil {
		return err
	}

	s.logger.Info("captcha status updated", "user", userID, "chat", chatID, "outcome", outcome)
	return nil
}

// GetUser returns the full row for a (user, chat) pair.
func (s *SQLiteStore) GetUser(ctx context.Context, userID, chatID string) (*UserRecord, error) {
	var r UserRecord
	var joined, lastActivity string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, chat_id, username, join_date, last_activity, captcha_passed, message_count
		FROM users
		WHERE user_id = ? AND chat_id = ?
	`, userID, chatID).Scan(
		&r.UserID, &r.ChatID, &r.Username,
		&joined, &lastActivity,
		&r.CaptchaPassed, &r.MessageCount,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	r.JoinDate = parseStoredTime(joined)
	r.LastActivity = parseStoredTime(lastActivity)
	return &r, nil
}

// ListActivity returns activity entries matching the filter, newest first.
func (s *SQLiteStore) ListActivity(ctx context.Context, f ActivityFilter) ([]ActivityEntry, error) {
	query := `SELECT id, user_id, chat_id, action, timestamp FROM activity_log`

	var conds []string
	var args []any
	if f.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.ChatID != nil {
		conds = append(conds, "chat_id = ?")
		args = append(args, *f.ChatID)
	}
	if f.Action != nil {
		conds = append(conds, "action = ?")
		args = append(args, string(*f.Action))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, normalizeActivityLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity log: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var action, ts string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ChatID, &action, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.Action = Action(action)
		e.Timestamp = parseStoredTime(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity entries: %w", err)
	}
	return entries, nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// appendActivity inserts one activity_log row inside an open transaction.
func appendActivity(ctx context.Context, tx *sql.Tx, userID, chatID string, action Action, ts string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activity_log (user_id, chat_id, action, timestamp)
		VALUES (?, ?, ?, ?)
	`, userID, chatID, string(action), ts); err != nil {
		return fmt.Errorf("appending %s activity: %w", action, err)
	}
	return nil
}

// normalizeActivityLimit applies default (100) and cap (1000) to the limit.
func normalizeActivityLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// parseStoredTime parses an RFC3339 timestamp written by this store.
// SQLite CURRENT_TIMESTAMP defaults use a space separator, so accept that too.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
