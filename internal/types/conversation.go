package types

import (
	"time"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"

	// RoleHuman is accepted on input and normalized to RoleUser.
	RoleHuman MessageRole = "human"
)

// Message represents a single entry in a conversation. Its position in the
// conversation's message list is its order.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp,omitzero"`
}

// Conversation holds the metadata of a stored conversation.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Model      string    `json:"model,omitempty"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConversationWithMessages includes a conversation and its messages.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// ConversationSummary is one row of a conversation listing.
type ConversationSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	UpdatedAt  time.Time `json:"updated_at"`
	TokenCount int       `json:"token_count"`
}

// SearchHit is one conversation matching a content search, with the content
// of its earliest matching message.
type SearchHit struct {
	ConversationID  string    `json:"conversation_id"`
	Title           string    `json:"title"`
	UpdatedAt       time.Time `json:"updated_at"`
	MatchingContent string    `json:"matching_content"`
}

// BackupInfo describes a backup artifact on disk.
type BackupInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
