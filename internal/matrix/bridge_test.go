// ABOUTME: Tests for Matrix event translation
// ABOUTME: Covers join/reaction/command mapping, room filtering and dedupe of replayed events

package matrix

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/guard"
)

// recordingDispatcher captures the guard events the bridge produces.
type recordingDispatcher struct {
	joins     []guard.JoinEvent
	messages  []guard.MessageEvent
	responses []guard.ResponseEvent
	commands  []guard.CommandEvent
}

func (r *recordingDispatcher) HandleJoin(ctx context.Context, evt guard.JoinEvent) {
	r.joins = append(r.joins, evt)
}

func (r *recordingDispatcher) HandleMessage(ctx context.Context, evt guard.MessageEvent) {
	r.messages = append(r.messages, evt)
}

func (r *recordingDispatcher) HandleResponse(ctx context.Context, evt guard.ResponseEvent) {
	r.responses = append(r.responses, evt)
}

func (r *recordingDispatcher) HandleCommand(ctx context.Context, evt guard.CommandEvent) {
	r.commands = append(r.commands, evt)
}

func newTestBridge(t *testing.T, allowedRooms ...string) (*Bridge, *recordingDispatcher) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Matrix.Homeserver = "https://matrix.example.org"
	cfg.Matrix.UserID = "@warden:example.org"
	cfg.Matrix.AccessToken = "token"
	cfg.Matrix.AllowedRooms = allowedRooms

	b, err := NewBridge(cfg)
	require.NoError(t, err)
	t.Cleanup(b.seen.Close)

	d := &recordingDispatcher{}
	b.SetDispatcher(d)
	b.ctx, b.cancel = context.WithCancel(context.Background())
	t.Cleanup(b.cancel)
	return b, d
}

func memberJoinEvent(user, room string) *event.Event {
	stateKey := user
	return &event.Event{
		ID:       id.EventID("$join-" + user),
		RoomID:   id.RoomID(room),
		Sender:   id.UserID(user),
		StateKey: &stateKey,
		Content: event.Content{
			Parsed: &event.MemberEventContent{
				Membership:  event.MembershipJoin,
				Displayname: "New Member",
			},
		},
	}
}

func TestHandleMemberEvent_Join(t *testing.T) {
	b, d := newTestBridge(t)

	b.handleMemberEvent(context.Background(), memberJoinEvent("@alice:example.org", "!room:example.org"))

	require.Len(t, d.joins, 1)
	assert.Equal(t, "@alice:example.org", d.joins[0].UserID)
	assert.Equal(t, "!room:example.org", d.joins[0].ChatID)
	assert.Equal(t, "alice", d.joins[0].Username)
	assert.Equal(t, "New Member", d.joins[0].DisplayName)
}

func TestHandleMemberEvent_IgnoresOwnJoin(t *testing.T) {
	b, d := newTestBridge(t)

	b.handleMemberEvent(context.Background(), memberJoinEvent("@warden:example.org", "!room:example.org"))
	assert.Empty(t, d.joins)
}

func TestHandleMemberEvent_DedupesReplay(t *testing.T) {
	b, d := newTestBridge(t)
	evt := memberJoinEvent("@alice:example.org", "!room:example.org")

	b.handleMemberEvent(context.Background(), evt)
	b.handleMemberEvent(context.Background(), evt)

	assert.Len(t, d.joins, 1, "replayed event must be dropped")
}

func TestHandleMemberEvent_IgnoresProfileUpdate(t *testing.T) {
	b, d := newTestBridge(t)
	evt := memberJoinEvent("@alice:example.org", "!room:example.org")
	evt.Unsigned.PrevContent = &event.Content{
		Parsed: &event.MemberEventContent{Membership: event.MembershipJoin},
	}

	b.handleMemberEvent(context.Background(), evt)
	assert.Empty(t, d.joins)
}

func TestHandleMemberEvent_RoomFilter(t *testing.T) {
	b, d := newTestBridge(t, "!allowed:example.org")

	b.handleMemberEvent(context.Background(), memberJoinEvent("@alice:example.org", "!other:example.org"))
	assert.Empty(t, d.joins)

	b.handleMemberEvent(context.Background(), memberJoinEvent("@alice:example.org", "!allowed:example.org"))
	assert.Len(t, d.joins, 1)
}

func messageEvent(sender, room, body string) *event.Event {
	return &event.Event{
		ID:     id.EventID("$msg-" + body),
		RoomID: id.RoomID(room),
		Sender: id.UserID(sender),
		Content: event.Content{
			Parsed: &event.MessageEventContent{
				MsgType: event.MsgText,
				Body:    body,
			},
		},
	}
}

func TestHandleMessageEvent_OrdinaryMessage(t *testing.T) {
	b, d := newTestBridge(t)

	b.handleMessageEvent(context.Background(), messageEvent("@alice:example.org", "!room:example.org", "hello"))

	require.Len(t, d.messages, 1)
	assert.Equal(t, "@alice:example.org", d.messages[0].UserID)
	assert.Empty(t, d.commands)
}

func TestHandleMessageEvent_Command(t *testing.T) {
	b, d := newTestBridge(t)

	b.handleMessageEvent(context.Background(),
		messageEvent("@admin:example.org", "!room:example.org", "!remove_captcha @alice:example.org"))

	require.Len(t, d.commands, 1)
	assert.Equal(t, "remove_captcha", d.commands[0].Command)
	assert.Equal(t, []string{"@alice:example.org"}, d.commands[0].Args)
	assert.Empty(t, d.messages, "commands are not ordinary activity")
}

func TestHandleReactionEvent(t *testing.T) {
	b, d := newTestBridge(t)

	b.handleReactionEvent(context.Background(), &event.Event{
		ID:     id.EventID("$react1"),
		RoomID: id.RoomID("!room:example.org"),
		Sender: id.UserID("@alice:example.org"),
		Content: event.Content{
			Parsed: &event.ReactionEventContent{
				RelatesTo: event.RelatesTo{
					EventID: id.EventID("$challenge"),
					Key:     "☕",
				},
			},
		},
	})

	require.Len(t, d.responses, 1)
	assert.Equal(t, "☕", d.responses[0].Option)
	assert.Equal(t, "@alice:example.org", d.responses[0].UserID)
}

// syncWithJoin builds a sync response carrying one member-join state event,
// raw so the syncer parses it the way it does real responses.
func syncWithJoin(user, room string) *mautrix.RespSync {
	stateKey := user
	evt := &event.Event{
		ID:       id.EventID("$sync-join-" + user),
		Type:     event.StateMember,
		Sender:   id.UserID(user),
		StateKey: &stateKey,
		Content: event.Content{
			VeryRaw: json.RawMessage(`{"membership":"join","displayname":"New Member"}`),
		},
	}

	resp := &mautrix.RespSync{}
	resp.Rooms.Join = map[id.RoomID]*mautrix.SyncJoinedRoom{
		id.RoomID(room): {State: mautrix.SyncEventsList{Events: []*event.Event{evt}}},
	}
	return resp
}

func TestSyncer_SkipsInitialSyncBackfill(t *testing.T) {
	b, d := newTestBridge(t)
	ctx := context.Background()

	syncer, err := b.setupSyncer()
	require.NoError(t, err)

	// The initial sync (empty since token) redelivers every room's member
	// state; none of it may reach the dispatcher.
	require.NoError(t, syncer.ProcessResponse(ctx, syncWithJoin("@alice:example.org", "!room:example.org"), ""))
	assert.Empty(t, d.joins, "initial sync backfill must not produce joins")

	// The same kind of event on an incremental sync is processed.
	require.NoError(t, syncer.ProcessResponse(ctx, syncWithJoin("@bob:example.org", "!room:example.org"), "s123"))
	require.Len(t, d.joins, 1)
	assert.Equal(t, "@bob:example.org", d.joins[0].UserID)
	assert.Equal(t, "!room:example.org", d.joins[0].ChatID)
}

func TestLocalpart(t *testing.T) {
	assert.Equal(t, "alice", localpart(id.UserID("@alice:example.org")))
	assert.Equal(t, "bob", localpart(id.UserID("bob")))
}
