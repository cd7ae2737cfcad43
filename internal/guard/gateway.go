// ABOUTME: Gateway interface and inbound event types for the guard core
// ABOUTME: Abstracts the messaging transport so the dispatcher and sweeper stay transport-agnostic

package guard

import "context"

// Role is a member's privilege level in a chat.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// IsPrivileged reports whether the role may run admin commands.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleOwner
}

// Gateway is the external messaging transport the core drives. Implementations
// handle their own timeouts and retries; the core treats every call as
// fallible and never blocks on one indefinitely. Deleting an already-deleted
// message and removing an already-left member must be harmless no-ops.
type Gateway interface {
	// SendMessage sends text to a chat, optionally with a selectable-option
	// layout, and returns the id of the sent message.
	SendMessage(ctx context.Context, chatID, text string, options []string) (string, error)

	// Notify sends a lightweight notice addressed to one user in a chat.
	Notify(ctx context.Context, chatID, userID, text string) error

	// DeleteMessage removes a previously sent message.
	DeleteMessage(ctx context.Context, chatID, messageID string) error

	// RemoveMember removes a participant from a chat.
	RemoveMember(ctx context.Context, chatID, userID string) error

	// MemberRole reports a participant's privilege level in a chat.
	MemberRole(ctx context.Context, chatID, userID string) (Role, error)
}

// JoinEvent is delivered when a new participant enters a chat.
type JoinEvent struct {
	ChatID      string
	UserID      string
	Username    string
	DisplayName string
}

// MessageEvent is delivered for any ordinary message in a chat.
type MessageEvent struct {
	ChatID string
	UserID string
}

// ResponseEvent is delivered when a participant picks a challenge option.
type ResponseEvent struct {
	ChatID      string
	UserID      string
	DisplayName string
	Option      string // the chosen option token
}

// CommandEvent is delivered for an admin command message.
type CommandEvent struct {
	ChatID        string
	UserID        string
	Command       string   // command name without prefix, e.g. "remove_captcha"
	Args          []string // whitespace-split arguments after the command
	ReplyToUserID string   // sender of the replied-to message, if any
}
