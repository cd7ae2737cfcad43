// ABOUTME: Background sweeper evicting captcha sessions past the response limit
// ABOUTME: Removes unresponsive participants via the gateway and records the expiry durably

package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/gatewarden/gatewarden/internal/session"
	"github.com/gatewarden/gatewarden/internal/store"
)

// Sweeper periodically scans the session registry and expires sessions older
// than the configured response limit. A session whose gateway actions fail is
// handed back to the registry so the next cycle retries; gateway removals are
// idempotent, so repeated attempts are harmless.
type Sweeper struct {
	registry *session.Registry
	store    store.Store
	gateway  Gateway
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper that expires sessions older than maxAge,
// scanning every interval.
func NewSweeper(reg *session.Registry, st store.Store, gw Gateway, maxAge, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: reg,
		store:    st,
		gateway:  gw,
		maxAge:   maxAge,
		interval: interval,
		logger:   slog.Default().With("component", "sweeper"),
	}
}

// Run executes sweep cycles until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", "max_age", s.maxAge, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		}
	}
}

// Sweep runs one expiry cycle over a point-in-time snapshot of the registry.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()

	for _, sess := range s.registry.Snapshot() {
		if sess.Age(now) <= s.maxAge {
			continue
		}
		s.expire(ctx, sess)
	}
}

// expire resolves one timed-out session: claim it, delete the challenge
// message, kick the participant and record the expiry. Any failure hands the
// session back to the registry for the next cycle.
func (s *Sweeper) expire(ctx context.Context, sess *session.Session) {
	log := s.logger.With("challenge", sess.ID, "user", sess.UserID, "chat", sess.ChatID)

	if !s.registry.Claim(sess) {
		// Resolved by a response or an override while this cycle was in flight.
		return
	}

	if err := s.gateway.DeleteMessage(ctx, sess.ChatID, sess.MessageID); err != nil {
		s.registry.Put(sess)
		log.Error("deleting challenge message, will retry", "error", err)
		return
	}

	if err := s.gateway.RemoveMember(ctx, sess.ChatID, sess.UserID); err != nil {
		s.registry.Put(sess)
		log.Error("removing member, will retry", "error", err)
		return
	}

	if err := s.store.SetCaptchaStatus(ctx, sess.UserID, sess.ChatID, store.OutcomeExpired); err != nil {
		s.registry.Put(sess)
		log.Error("recording captcha expiry, will retry", "error", err)
		return
	}

	log.Info("captcha session expired")
}
