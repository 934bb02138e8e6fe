package conversation

import (
	"fmt"

	"github.com/jobtana1/langchain-chat/internal/types"
)

const (
	titleMaxChars   = 50
	summaryMaxChars = 100
	ellipsis        = "..."

	// DefaultTitle is used when no message can provide a title.
	DefaultTitle = "New Conversation"
)

// NormalizeMessages returns a copy of messages with "human" mapped to "user".
// Any other role outside system/user/assistant is an error.
func NormalizeMessages(messages []types.Message) ([]types.Message, error) {
	out := make([]types.Message, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case types.RoleHuman:
			msg.Role = types.RoleUser
		case types.RoleUser, types.RoleAssistant, types.RoleSystem:
		default:
			return nil, fmt.Errorf("%w: %q at index %d", ErrInvalidRole, msg.Role, i)
		}
		out[i] = msg
	}
	return out, nil
}

// DeriveTitle returns the first non-system message's content, cut to 50
// characters plus an ellipsis when longer.
func DeriveTitle(messages []types.Message) string {
	for _, msg := range messages {
		if msg.Role == types.RoleSystem || msg.Content == "" {
			continue
		}
		if head, cut := truncate(msg.Content, titleMaxChars); cut {
			return head + ellipsis
		}
		return msg.Content
	}
	return DefaultTitle
}

// DeriveSummary joins the start of the first user message and the start of
// the last assistant message, e.g. "Hello... → Hi there...".
func DeriveSummary(messages []types.Message) string {
	var first, last string
	var hasUser, hasAssistant bool
	for _, msg := range messages {
		if msg.Role == types.RoleUser && !hasUser {
			first, hasUser = msg.Content, true
		}
		if msg.Role == types.RoleAssistant {
			last, hasAssistant = msg.Content, true
		}
	}
	if !hasUser && !hasAssistant {
		return ""
	}
	first, _ = truncate(first, summaryMaxChars)
	last, _ = truncate(last, summaryMaxChars)
	return first + ellipsis + " → " + last + ellipsis
}

// SameMessages reports whether a and b hold the same roles and contents in
// the same order. Timestamps are ignored.
func SameMessages(a, b []types.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Content != b[i].Content {
			return false
		}
	}
	return true
}

func truncate(s string, n int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= n {
		return s, false
	}
	return string(runes[:n]), true
}
