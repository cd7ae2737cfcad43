// ABOUTME: Matrix transport for gatewarden built on mautrix
// ABOUTME: Translates sync events into guard events and implements the Gateway interface

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/dedupe"
	"github.com/gatewarden/gatewarden/internal/guard"
)

// commandPrefix marks admin command messages.
const commandPrefix = "!"

// networkTimeout bounds individual Matrix API calls so gateway actions never
// hang the dispatch path.
const networkTimeout = 30 * time.Second

// dedupeTTL is how long processed event IDs are remembered. Sync can replay
// recent events after a reconnect; anything older is not redelivered.
const dedupeTTL = 10 * time.Minute

// Power level thresholds for admin roles.
const (
	ownerLevel = 100
	adminLevel = 50
)

// Dispatcher is the part of the guard core the bridge drives.
type Dispatcher interface {
	HandleJoin(ctx context.Context, evt guard.JoinEvent)
	HandleMessage(ctx context.Context, evt guard.MessageEvent)
	HandleResponse(ctx context.Context, evt guard.ResponseEvent)
	HandleCommand(ctx context.Context, evt guard.CommandEvent)
}

// Bridge connects a Matrix homeserver to the guard core. It is both the
// event source (sync loop feeding the dispatcher) and the guard.Gateway
// implementation (sends, redactions, kicks, role queries).
type Bridge struct {
	cfg        *config.Config
	client     *mautrix.Client
	dispatcher Dispatcher
	seen       *dedupe.Tracker
	logger     *slog.Logger
	userID     id.UserID

	// ctx is the parent context for event handling
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a bridge for the configured homeserver.
func NewBridge(cfg *config.Config) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		cfg:    cfg,
		client: client,
		seen:   dedupe.NewTracker(dedupeTTL, 4096),
		logger: slog.Default().With("component", "matrix"),
		userID: id.UserID(cfg.Matrix.UserID),
	}, nil
}

// SetDispatcher wires the guard core. Must be called before Run.
func (b *Bridge) SetDispatcher(d Dispatcher) {
	b.dispatcher = d
}

// Run starts the sync loop and blocks until the context is cancelled.
// Transport failures are retried with bounded exponential backoff instead of
// terminating the process.
func (b *Bridge) Run(ctx context.Context) error {
	if b.dispatcher == nil {
		return fmt.Errorf("bridge has no dispatcher")
	}

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	if _, err := b.setupSyncer(); err != nil {
		return err
	}

	b.logger.Info("connecting to matrix homeserver",
		"homeserver", b.cfg.Matrix.Homeserver,
		"user_id", b.cfg.Matrix.UserID,
	)

	defer b.seen.Close()

	backoff := time.Second
	const maxBackoff = time.Minute

	for {
		err := b.client.SyncWithContext(b.ctx)
		if err == nil || ctx.Err() != nil {
			b.logger.Info("matrix sync stopped")
			return nil
		}

		b.logger.Error("matrix sync failed, retrying", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// setupSyncer registers the event handlers on the client's syncer. The
// initial sync backfills the full member state of every room; acting on it
// would challenge members who joined long ago, so responses without a since
// token are dropped before any handler runs.
func (b *Bridge) setupSyncer() (*mautrix.DefaultSyncer, error) {
	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}

	syncer.OnSync(b.client.DontProcessOldEvents)

	syncer.OnEventType(event.StateMember, b.handleMemberEvent)
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.EventReaction, b.handleReactionEvent)
	return syncer, nil
}

// handleMemberEvent turns membership joins into guard join events.
func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	content := evt.Content.AsMember()
	if content == nil || content.Membership != event.MembershipJoin {
		return
	}

	joined := id.UserID(evt.GetStateKey())
	if joined == b.userID || joined == "" {
		return
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		return
	}
	if b.seen.Seen(evt.ID.String()) {
		return
	}

	// A join->join transition is a profile update, not an entry.
	if prev := evt.Unsigned.PrevContent; prev != nil {
		_ = prev.ParseRaw(event.StateMember)
		if pm, ok := prev.Parsed.(*event.MemberEventContent); ok && pm.Membership == event.MembershipJoin {
			return
		}
	}

	display := content.Displayname
	if display == "" {
		display = localpart(joined)
	}

	b.logger.Info("member joined", "room", evt.RoomID.String(), "user", joined.String())

	b.dispatcher.HandleJoin(b.ctx, guard.JoinEvent{
		ChatID:      evt.RoomID.String(),
		UserID:      joined.String(),
		Username:    localpart(joined),
		DisplayName: display,
	})
}

// handleMessageEvent routes text messages to activity tracking or, when
// prefixed, to the admin command handler.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.userID {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		return
	}
	if b.seen.Seen(evt.ID.String()) {
		return
	}

	body := strings.TrimSpace(content.Body)
	if strings.HasPrefix(body, commandPrefix) {
		b.handleCommand(evt, content, strings.TrimPrefix(body, commandPrefix))
		return
	}

	b.dispatcher.HandleMessage(b.ctx, guard.MessageEvent{
		ChatID: evt.RoomID.String(),
		UserID: evt.Sender.String(),
	})
}

// handleCommand parses a prefixed message into a guard command event.
func (b *Bridge) handleCommand(evt *event.Event, content *event.MessageEventContent, body string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}

	cmd := guard.CommandEvent{
		ChatID:  evt.RoomID.String(),
		UserID:  evt.Sender.String(),
		Command: fields[0],
		Args:    fields[1:],
	}

	if content.RelatesTo != nil {
		if replyTo := content.RelatesTo.GetReplyTo(); replyTo != "" {
			cmd.ReplyToUserID = b.senderOf(evt.RoomID, replyTo)
		}
	}

	b.dispatcher.HandleCommand(b.ctx, cmd)
}

// handleReactionEvent turns emoji reactions into challenge responses.
func (b *Bridge) handleReactionEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.userID {
		return
	}
	content := evt.Content.AsReaction()
	if content == nil || content.RelatesTo.Key == "" {
		return
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		return
	}
	if b.seen.Seen(evt.ID.String()) {
		return
	}

	b.dispatcher.HandleResponse(b.ctx, guard.ResponseEvent{
		ChatID:      evt.RoomID.String(),
		UserID:      evt.Sender.String(),
		DisplayName: localpart(evt.Sender),
		Option:      content.RelatesTo.Key,
	})
}

// SendMessage sends text to a room. Options are rendered as an emoji menu the
// user answers by reacting to the message.
func (b *Bridge) SendMessage(ctx context.Context, chatID, text string, options []string) (string, error) {
	body := text
	if len(options) > 0 {
		body = fmt.Sprintf("%s\n\nReact to this message with your answer: %s", text, strings.Join(options, "  "))
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	resp, err := b.client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	})
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return resp.EventID.String(), nil
}

// Notify sends a notice addressed to one user.
func (b *Bridge) Notify(ctx context.Context, chatID, userID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	_, err := b.client.SendMessageEvent(ctx, id.RoomID(chatID), event.EventMessage, &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    fmt.Sprintf("%s: %s", userID, text),
	})
	if err != nil {
		return fmt.Errorf("sending notice: %w", err)
	}
	return nil
}

// DeleteMessage redacts a message. Redacting an already-redacted or unknown
// message is treated as success so retries stay harmless.
func (b *Bridge) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	_, err := b.client.RedactEvent(ctx, id.RoomID(chatID), id.EventID(messageID))
	if err != nil && !errors.Is(err, mautrix.MNotFound) {
		return fmt.Errorf("redacting message: %w", err)
	}
	return nil
}

// RemoveMember kicks a participant. Kicking a user who already left is
// treated as success.
func (b *Bridge) RemoveMember(ctx context.Context, chatID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	_, err := b.client.KickUser(ctx, id.RoomID(chatID), &mautrix.ReqKickUser{
		UserID: id.UserID(userID),
		Reason: "captcha not completed in time",
	})
	if err != nil && !errors.Is(err, mautrix.MNotFound) {
		return fmt.Errorf("kicking user: %w", err)
	}
	return nil
}

// MemberRole maps the room power level of a user to a role.
func (b *Bridge) MemberRole(ctx context.Context, chatID, userID string) (guard.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	var pl event.PowerLevelsEventContent
	err := b.client.StateEvent(ctx, id.RoomID(chatID), event.StatePowerLevels, "", &pl)
	if err != nil {
		return "", fmt.Errorf("querying power levels: %w", err)
	}

	level := pl.GetUserLevel(id.UserID(userID))
	switch {
	case level >= ownerLevel:
		return guard.RoleOwner, nil
	case level >= adminLevel:
		return guard.RoleAdmin, nil
	default:
		return guard.RoleMember, nil
	}
}

// isRoomAllowed checks the room against the configured allow list.
// An empty list allows all rooms.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.cfg.Matrix.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.cfg.Matrix.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// senderOf fetches the sender of an event, for resolving reply targets.
// Returns empty on failure; the command then falls back to argument parsing.
func (b *Bridge) senderOf(roomID id.RoomID, eventID id.EventID) string {
	ctx, cancel := context.WithTimeout(b.ctx, networkTimeout)
	defer cancel()

	evt, err := b.client.GetEvent(ctx, roomID, eventID)
	if err != nil {
		b.logger.Warn("fetching reply target", "event", eventID.String(), "error", err)
		return ""
	}
	return evt.Sender.String()
}

// localpart extracts the local part of a Matrix user ID (@local:server).
func localpart(userID id.UserID) string {
	s := strings.TrimPrefix(userID.String(), "@")
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	}
	return s
}
