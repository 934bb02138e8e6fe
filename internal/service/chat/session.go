package chat

import (
	"github.com/jobtana1/langchain-chat/internal/types"
)

// Session is the caller's working copy of one conversation. It is passed
// explicitly into every Service call; the service keeps no session state.
type Session struct {
	// ConversationID is empty until the session is first saved.
	ConversationID string
	// Title is sent with every save; empty keeps or derives the stored title.
	Title    string
	Messages []types.Message
}

// NewSession starts a session, optionally seeded with a system prompt.
func NewSession(systemPrompt string) *Session {
	s := &Session{}
	if systemPrompt != "" {
		s.Messages = append(s.Messages, types.Message{Role: types.RoleSystem, Content: systemPrompt})
	}
	return s
}

// Append adds a message at the end of the session.
func (s *Session) Append(role types.MessageRole, content string) {
	s.Messages = append(s.Messages, types.Message{Role: role, Content: content})
}

// Reset detaches the session from its stored conversation and keeps only the
// system messages.
func (s *Session) Reset() {
	var kept []types.Message
	for _, msg := range s.Messages {
		if msg.Role == types.RoleSystem {
			kept = append(kept, msg)
		}
	}
	s.Messages = kept
	s.ConversationID = ""
	s.Title = ""
}

// hasExchange reports whether the session holds anything beyond its system
// prompt worth saving.
func (s *Session) hasExchange() bool {
	for _, msg := range s.Messages {
		if msg.Role != types.RoleSystem {
			return true
		}
	}
	return false
}
