// ABOUTME: Dispatcher reacting to gateway events with the captcha state machine
// ABOUTME: Issues challenges on join, resolves responses and handles admin override commands

package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/challenge"
	"github.com/gatewarden/gatewarden/internal/session"
	"github.com/gatewarden/gatewarden/internal/store"
)

// Dispatcher drives the per-(user, chat) verification state machine. It owns
// no state itself: current status always comes from the store and the
// registry at the moment of each event.
type Dispatcher struct {
	store     store.Store
	registry  *session.Registry
	generator *challenge.Generator
	gateway   Gateway
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(st store.Store, reg *session.Registry, gen *challenge.Generator, gw Gateway) *Dispatcher {
	return &Dispatcher{
		store:     st,
		registry:  reg,
		generator: gen,
		gateway:   gw,
		logger:    slog.Default().With("component", "dispatcher"),
	}
}

// HandleJoin processes a new participant entering a chat. Unverified and
// unknown users get a challenge; verified users get a greeting.
func (d *Dispatcher) HandleJoin(ctx context.Context, evt JoinEvent) {
	status, err := d.store.StatusOf(ctx, evt.UserID, evt.ChatID)
	if err != nil {
		d.logger.Error("checking user status", "user", evt.UserID, "chat", evt.ChatID, "error", err)
		d.send(ctx, evt.ChatID, fmt.Sprintf("❌ Could not verify %s, please try again.", evt.DisplayName))
		return
	}

	d.logger.Info("member joined", "user", evt.UserID, "chat", evt.ChatID, "status", status)

	if status == store.StatusVerified {
		d.send(ctx, evt.ChatID, fmt.Sprintf("👋 %s, welcome back!", evt.DisplayName))
		return
	}

	if err := d.store.UpsertUser(ctx, evt.UserID, evt.Username, evt.ChatID); err != nil {
		d.logger.Error("upserting user", "user", evt.UserID, "chat", evt.ChatID, "error", err)
		d.send(ctx, evt.ChatID, fmt.Sprintf("❌ Could not verify %s, please try again.", evt.DisplayName))
		return
	}

	ch := d.generator.Generate()
	text := fmt.Sprintf("%s, to join the group pick the %s! You have %d seconds to answer.",
		evt.DisplayName, ch.Concept, int(d.generator.TimeLimit().Seconds()))

	msgID, err := d.gateway.SendMessage(ctx, evt.ChatID, text, ch.Options)
	if err != nil {
		// No session without a challenge message; the next join retries.
		d.logger.Error("sending challenge", "user", evt.UserID, "chat", evt.ChatID, "error", err)
		return
	}

	sess := &session.Session{
		ID:        uuid.New().String(),
		UserID:    evt.UserID,
		ChatID:    evt.ChatID,
		Concept:   ch.Concept,
		Correct:   ch.Correct,
		MessageID: msgID,
		CreatedAt: time.Now(),
	}
	d.registry.Put(sess)

	d.logger.Info("challenge issued",
		"challenge", sess.ID,
		"user", evt.UserID,
		"chat", evt.ChatID,
		"concept", ch.Concept,
	)
}

// HandleMessage tracks activity for an ordinary message. Best-effort: a
// storage failure is logged, never surfaced.
func (d *Dispatcher) HandleMessage(ctx context.Context, evt MessageEvent) {
	if err := d.store.RecordActivity(ctx, evt.UserID, evt.ChatID); err != nil {
		d.logger.Error("recording activity", "user", evt.UserID, "chat", evt.ChatID, "error", err)
	}
}

// HandleResponse resolves a challenge option pick. Responses with no matching
// session (stale buttons, already resolved) are silently ignored. A wrong
// pick leaves the session in place so the user can try again until expiry.
func (d *Dispatcher) HandleResponse(ctx context.Context, evt ResponseEvent) {
	sess := d.registry.Get(evt.UserID, evt.ChatID)
	if sess == nil {
		return
	}

	if evt.Option != sess.Correct {
		d.logger.Debug("wrong option picked",
			"challenge", sess.ID, "user", evt.UserID, "option", evt.Option)
		if err := d.gateway.Notify(ctx, evt.ChatID, evt.UserID, fmt.Sprintf("That is not a %s!", sess.Concept)); err != nil {
			d.logger.Error("sending rejection notice", "user", evt.UserID, "error", err)
		}
		return
	}

	if !d.registry.Claim(sess) {
		// Lost the race to the sweeper or an admin override.
		return
	}

	if err := d.gateway.DeleteMessage(ctx, evt.ChatID, sess.MessageID); err != nil {
		d.logger.Warn("deleting challenge message", "challenge", sess.ID, "error", err)
	}

	if err := d.store.SetCaptchaStatus(ctx, evt.UserID, evt.ChatID, store.OutcomeCompleted); err != nil {
		// Hand the session back so the user can pick again once storage recovers.
		d.registry.Put(sess)
		d.logger.Error("marking captcha completed", "user", evt.UserID, "chat", evt.ChatID, "error", err)
		return
	}

	d.send(ctx, evt.ChatID, fmt.Sprintf("✅ %s passed the check!", evt.DisplayName))

	d.logger.Info("challenge passed", "challenge", sess.ID, "user", evt.UserID, "chat", evt.ChatID)
}

// HandleCommand processes an admin command event.
func (d *Dispatcher) HandleCommand(ctx context.Context, evt CommandEvent) {
	switch evt.Command {
	case "remove_captcha":
		d.handleRemoveCaptcha(ctx, evt)
	case "activity":
		d.handleActivity(ctx, evt)
	default:
		d.logger.Debug("unknown command", "command", evt.Command, "user", evt.UserID)
	}
}

// handleRemoveCaptcha force-passes a user on behalf of an administrator.
// The target comes from a reply reference or an explicit user-id argument.
// It does not require a live session; one present is cleaned up best-effort.
func (d *Dispatcher) handleRemoveCaptcha(ctx context.Context, evt CommandEvent) {
	if !d.requirePrivilege(ctx, evt) {
		return
	}

	target, ok := d.resolveTarget(ctx, evt)
	if !ok {
		return
	}

	sess := d.registry.Get(target, evt.ChatID)
	if sess != nil && !d.registry.Claim(sess) {
		// Resolved concurrently; the override still applies to the store.
		sess = nil
	}

	if err := d.store.SetCaptchaStatus(ctx, target, evt.ChatID, store.OutcomeCompleted); err != nil {
		if sess != nil {
			d.registry.Put(sess)
		}
		d.logger.Error("forcing captcha status", "target", target, "chat", evt.ChatID, "error", err)
		d.notify(ctx, evt, "Could not update the captcha status, please try again.")
		return
	}

	if sess != nil {
		if err := d.gateway.DeleteMessage(ctx, evt.ChatID, sess.MessageID); err != nil {
			d.logger.Warn("deleting challenge message", "challenge", sess.ID, "error", err)
		}
	}

	d.notify(ctx, evt, fmt.Sprintf("Captcha for %s lifted by an administrator.", target))
	d.logger.Info("captcha lifted", "target", target, "chat", evt.ChatID, "admin", evt.UserID)
}

// handleActivity replies with recent activity log lines for the chat, or for
// one user when a target is given.
func (d *Dispatcher) handleActivity(ctx context.Context, evt CommandEvent) {
	if !d.requirePrivilege(ctx, evt) {
		return
	}

	filter := store.ActivityFilter{ChatID: &evt.ChatID, Limit: 10}
	if evt.ReplyToUserID != "" {
		filter.UserID = &evt.ReplyToUserID
	} else if len(evt.Args) > 0 {
		if !validUserID(evt.Args[0]) {
			d.notify(ctx, evt, fmt.Sprintf("%q is not a valid user ID.", evt.Args[0]))
			return
		}
		filter.UserID = &evt.Args[0]
	}

	entries, err := d.store.ListActivity(ctx, filter)
	if err != nil {
		d.logger.Error("listing activity", "chat", evt.ChatID, "error", err)
		d.notify(ctx, evt, "Could not read the activity log, please try again.")
		return
	}
	if len(entries) == 0 {
		d.notify(ctx, evt, "No activity recorded yet.")
		return
	}

	var b strings.Builder
	b.WriteString("Recent activity:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s  %s\n", e.Timestamp.Format(time.RFC3339), e.UserID, e.Action)
	}
	d.notify(ctx, evt, strings.TrimRight(b.String(), "\n"))
}

// requirePrivilege checks the invoker's role, replying with a denial when the
// invoker is not an administrator or owner.
func (d *Dispatcher) requirePrivilege(ctx context.Context, evt CommandEvent) bool {
	role, err := d.gateway.MemberRole(ctx, evt.ChatID, evt.UserID)
	if err != nil {
		d.logger.Error("querying member role", "user", evt.UserID, "chat", evt.ChatID, "error", err)
		d.notify(ctx, evt, "Could not verify your permissions, please try again.")
		return false
	}
	if !role.IsPrivileged() {
		d.notify(ctx, evt, "You do not have permission to use this command.")
		return false
	}
	return true
}

// resolveTarget picks the command target: the replied-to sender, or a single
// user-id argument. A malformed argument gets a validation reply.
func (d *Dispatcher) resolveTarget(ctx context.Context, evt CommandEvent) (string, bool) {
	if evt.ReplyToUserID != "" {
		return evt.ReplyToUserID, true
	}
	if len(evt.Args) == 0 {
		d.notify(ctx, evt, "Reply to the user's message or pass their user ID.")
		return "", false
	}
	if !validUserID(evt.Args[0]) {
		d.notify(ctx, evt, fmt.Sprintf("%q is not a valid user ID.", evt.Args[0]))
		return "", false
	}
	return evt.Args[0], true
}

// validUserID checks the transport user-id syntax (@localpart:domain).
func validUserID(s string) bool {
	if len(s) < 4 || s[0] != '@' {
		return false
	}
	colon := strings.IndexByte(s, ':')
	return colon > 1 && colon < len(s)-1
}

// send posts a plain message, logging delivery failures.
func (d *Dispatcher) send(ctx context.Context, chatID, text string) {
	if _, err := d.gateway.SendMessage(ctx, chatID, text, nil); err != nil {
		d.logger.Error("sending message", "chat", chatID, "error", err)
	}
}

// notify replies to a command's invoker, logging delivery failures.
func (d *Dispatcher) notify(ctx context.Context, evt CommandEvent, text string) {
	if err := d.gateway.Notify(ctx, evt.ChatID, evt.UserID, text); err != nil {
		d.logger.Error("sending notice", "chat", evt.ChatID, "user", evt.UserID, "error", err)
	}
}
