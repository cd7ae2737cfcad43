// ABOUTME: Thread-safe in-memory registry of outstanding captcha sessions
// ABOUTME: Guarantees at most one session per (user, chat) and at-most-once resolution via Claim

package session

import (
	"sync"
	"time"
)

// Key identifies a session by its (user, chat) pair.
type Key struct {
	UserID string
	ChatID string
}

// Session is the live record of an outstanding challenge for one (user, chat)
// pair. It exists only in memory; durable state lives in the store.
type Session struct {
	ID        string // challenge id, used in logs
	UserID    string
	ChatID    string
	Concept   string // what the user was asked to pick
	Correct   string // the option that resolves the challenge
	MessageID string // id of the challenge message, deleted on resolution
	CreatedAt time.Time
}

// Key returns the registry key for this session.
func (s *Session) Key() Key {
	return Key{UserID: s.UserID, ChatID: s.ChatID}
}

// Age returns how long the session has been outstanding.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Registry is a mutex-guarded table of active sessions. It is shared by the
// dispatcher (resolving responses) and the sweeper (expiring sessions); a
// resolver must win Claim before acting on a session, which makes resolution
// at-most-once per session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[Key]*Session),
	}
}

// Put stores a session, replacing any existing session for the same key.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Key()] = s
}

// Get returns the session for a (user, chat) pair, or nil if none exists.
func (r *Registry) Get(userID, chatID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[Key{UserID: userID, ChatID: chatID}]
}

// Claim atomically takes a session out of the registry. It succeeds only
// while the registry still holds that exact session, so of several resolvers
// racing for one session exactly one gets true; the losers must not act on
// it. A claimant that cannot finish its side effects calls Put to hand the
// session back for a later retry.
func (r *Registry) Claim(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := s.Key()
	cur, ok := r.sessions[key]
	if !ok || cur.ID != s.ID {
		return false
	}
	delete(r.sessions, key)
	return true
}

// Snapshot returns a point-in-time copy of all sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
