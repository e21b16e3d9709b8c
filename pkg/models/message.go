// Package models contains the research-session data model and the
// OpenAI-compatible request/response types exposed by the API.
package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
)

// ContentType identifies the payload kind carried by a message.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeAudio ContentType = "audio"
	ContentTypeVideo ContentType = "video"
	ContentTypeFile  ContentType = "file"
)

// Message is a single conversation entry. Only Role and Content are
// mandatory; the rest is metadata preserved for the session record.
type Message struct {
	Role        Role        `json:"role"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type,omitempty"`
	Timestamp   *time.Time  `json:"timestamp,omitempty"`
	Sender      string      `json:"sender,omitempty"`
	MessageID   string      `json:"message_id,omitempty"`
}

// ValidRole reports whether r is one of the recognised roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleDeveloper, RoleTool, RoleFunction:
		return true
	}
	return false
}

// MessageLog is an ordered conversation history.
type MessageLog []Message

// Add appends a plain text message.
func (l *MessageLog) Add(role Role, content string) {
	*l = append(*l, Message{Role: role, Content: content, ContentType: ContentTypeText})
}

// Pairs returns the canonical {role, content} projection consumed by the
// LLM capability, dropping all metadata fields.
func (l MessageLog) Pairs() []Message {
	out := make([]Message, 0, len(l))
	for _, m := range l {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}
