// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	users   map[string]*UserRecord // keyed by "userID:chatID"
	log     []ActivityEntry
	nextID  int64
	failAll bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:  make(map[string]*UserRecord),
		nextID: 1,
	}
}

// FailAll makes every subsequent operation return ErrMockFailure.
// Used to exercise storage-error paths.
func (m *MockStore) FailAll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}

func userKey(userID, chatID string) string {
	return userID + ":" + chatID
}

// ErrMockFailure is returned by a MockStore in forced-failure mode.
var ErrMockFailure = errors.New("mock store failure")

// StatusOf reports the verification status of a (user, chat) pair.
func (m *MockStore) StatusOf(ctx context.Context, userID, chatID string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failAll {
		return "", ErrMockFailure
	}

	r, ok := m.users[userKey(userID, chatID)]
	if !ok {
		return StatusAbsent, nil
	}
	if r.CaptchaPassed {
		return StatusVerified, nil
	}
	return StatusUnverified, nil
}

// UpsertUser inserts or replaces the row and appends a user_joined entry.
func (m *MockStore) UpsertUser(ctx context.Context, userID, username, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return ErrMockFailure
	}

	now := time.Now().UTC()
	m.users[userKey(userID, chatID)] = &UserRecord{
		UserID:       userID,
		ChatID:       chatID,
		Username:     username,
		JoinDate:     now,
		LastActivity: now,
	}
	m.appendLocked(userID, chatID, ActionUserJoined)
	return nil
}

// RecordActivity bumps counters and appends a message_sent entry.
func (m *MockStore) RecordActivity(ctx context.Context, userID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return ErrMockFailure
	}

	if r, ok := m.users[userKey(userID, chatID)]; ok {
		r.MessageCount++
		r.LastActivity = time.Now().UTC()
	}
	m.appendLocked(userID, chatID, ActionMessageSent)
	return nil
}

// SetCaptchaStatus records a captcha outcome and its log entry.
func (m *MockStore) SetCaptchaStatus(ctx context.Context, userID, chatID string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return ErrMockFailure
	}

	if r, ok := m.users[userKey(userID, chatID)]; ok {
		r.CaptchaPassed = outcome == OutcomeCompleted
	}
	m.appendLocked(userID, chatID, ActionForOutcome(outcome))
	return nil
}

// GetUser returns a copy of the row for a (user, chat) pair.
func (m *MockStore) GetUser(ctx context.Context, userID, chatID string) (*UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failAll {
		return nil, ErrMockFailure
	}

	r, ok := m.users[userKey(userID, chatID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListActivity returns matching entries, newest first.
func (m *MockStore) ListActivity(ctx context.Context, f ActivityFilter) ([]ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failAll {
		return nil, ErrMockFailure
	}

	limit := normalizeActivityLimit(f.Limit)
	var out []ActivityEntry
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.log[i]
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if f.ChatID != nil && e.ChatID != *f.ChatID {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error { return nil }

// Entries returns a snapshot of all log entries in append order.
func (m *MockStore) Entries() []ActivityEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ActivityEntry, len(m.log))
	copy(out, m.log)
	return out
}

func (m *MockStore) appendLocked(userID, chatID string, action Action) {
	m.log = append(m.log, ActivityEntry{
		ID:        m.nextID,
		UserID:    userID,
		ChatID:    chatID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	})
	m.nextID++
}
