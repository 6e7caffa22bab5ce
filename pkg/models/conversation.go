package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Chat Roles
// ============================================================================

// ChatRole represents the role of a chat message sender.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ValidChatRoles contains all valid chat role values.
var ValidChatRoles = []ChatRole{
	ChatRoleUser,
	ChatRoleAssistant,
	ChatRoleSystem,
}

// IsValidChatRole checks if the given role is valid.
func IsValidChatRole(r ChatRole) bool {
	for _, v := range ValidChatRoles {
		if v == r {
			return true
		}
	}
	return false
}

// ============================================================================
// Conversation
// ============================================================================

// ConversationTitleLimit is the maximum stored title length. The title of a
// new conversation is the first message truncated to this many characters.
const ConversationTitleLimit = 50

// Conversation groups the messages of one assistant thread.
type Conversation struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Title           string    `json:"title"`
	TotalMessages   int       `json:"total_messages"`
	TotalTokensUsed int       `json:"total_tokens_used"`
	IsArchived      bool      `json:"is_archived"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TitleFromMessage derives a conversation title from its first message.
// The limit counts characters, not bytes, so a multi-byte title is never
// cut mid-rune.
func TitleFromMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= ConversationTitleLimit {
		return message
	}
	return string(runes[:ConversationTitleLimit])
}

// Message is a single turn entry in a conversation.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Role           ChatRole       `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsFromUser returns true if the message is from a user.
func (m *Message) IsFromUser() bool {
	return m.Role == ChatRoleUser
}
