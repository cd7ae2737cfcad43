// ABOUTME: Shared test fixtures for the guard package
// ABOUTME: Provides an in-memory fake Gateway with scriptable failures

package guard

import (
	"context"
	"fmt"
	"sync"
)

type sentMessage struct {
	ChatID  string
	Text    string
	Options []string
	ID      string
}

type sentNotice struct {
	ChatID string
	UserID string
	Text   string
}

// fakeGateway records all gateway calls and can be scripted to fail.
type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	notices []sentNotice
	deleted []string        // "chatID/messageID"
	removed []string        // "chatID/userID"
	roles   map[string]Role // "chatID/userID" -> role

	sendErr   error
	deleteErr error
	removeErr error
	roleErr   error

	nextID int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{roles: make(map[string]Role)}
}

func (g *fakeGateway) SendMessage(ctx context.Context, chatID, text string, options []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return "", g.sendErr
	}
	g.nextID++
	id := fmt.Sprintf("$msg%d", g.nextID)
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Text: text, Options: options, ID: id})
	return id, nil
}

func (g *fakeGateway) Notify(ctx context.Context, chatID, userID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, sentNotice{ChatID: chatID, UserID: userID, Text: text})
	return nil
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted = append(g.deleted, chatID+"/"+messageID)
	return nil
}

func (g *fakeGateway) RemoveMember(ctx context.Context, chatID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removeErr != nil {
		return g.removeErr
	}
	g.removed = append(g.removed, chatID+"/"+userID)
	return nil
}

func (g *fakeGateway) MemberRole(ctx context.Context, chatID, userID string) (Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.roleErr != nil {
		return "", g.roleErr
	}
	if role, ok := g.roles[chatID+"/"+userID]; ok {
		return role, nil
	}
	return RoleMember, nil
}

func (g *fakeGateway) setRole(chatID, userID string, role Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles[chatID+"/"+userID] = role
}

func (g *fakeGateway) sentMessages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]sentMessage, len(g.sent))
	copy(out, g.sent)
	return out
}

func (g *fakeGateway) sentNotices() []sentNotice {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]sentNotice, len(g.notices))
	copy(out, g.notices)
	return out
}

func (g *fakeGateway) removedMembers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.removed))
	copy(out, g.removed)
	return out
}

func (g *fakeGateway) deletedMessages() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.deleted))
	copy(out, g.deleted)
	return out
}
