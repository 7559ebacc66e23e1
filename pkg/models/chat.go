package models

import "time"

// ChatSessionMode distinguishes the "setup" sessions snapshot capture
// looks for (§4.9) from later free-form chat.
type ChatSessionMode string

const (
	ChatSessionModeSetup ChatSessionMode = "setup"
	ChatSessionModeChat  ChatSessionMode = "chat"
)

// ChatSession is an ordered thread of role-tagged Messages, owned by a
// Project. Out of core scope per §1 except as a Run summary target and
// snapshot chat-context source.
type ChatSession struct {
	ID        string
	ProjectID string
	Mode      ChatSessionMode
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRole identifies who authored a Message.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// Message is one entry in a ChatSession.
type Message struct {
	ID            string
	ChatSessionID string
	Role          MessageRole
	Content       string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
