// Package contextwindow keeps an outgoing message list inside an approximate
// token budget before it is sent to the completion endpoint.
//
// Sizes are a character heuristic (about four characters per token), not a
// tokenizer. Callers and tests depend on the exact rounding below.
package contextwindow

import (
	"unicode/utf8"

	"github.com/jobtana1/langchain-chat/internal/types"
)

const (
	// DefaultMaxTokens is the budget callers use when none is configured.
	DefaultMaxTokens = 150000

	// perMessageOverhead approximates role markers and separators.
	perMessageOverhead = 4
	charsPerToken      = 4
)

// EstimateSize returns the approximate token count of messages: a fixed
// overhead per message plus floor(chars/4) for its role and its content.
func EstimateSize(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += MessageSize(msg)
	}
	return total
}

// MessageSize returns the approximate token count of a single message.
func MessageSize(msg types.Message) int {
	return perMessageOverhead +
		utf8.RuneCountInString(string(msg.Role))/charsPerToken +
		utf8.RuneCountInString(msg.Content)/charsPerToken
}

// Trim drops the oldest messages until the list fits maxTokens or only one
// message is left. A leading system message is kept while more than two
// messages remain. A non-positive maxTokens leaves a single message.
//
// The input slice is not modified. Retained messages keep their order.
func Trim(messages []types.Message, maxTokens int) []types.Message {
	out := make([]types.Message, len(messages))
	copy(out, messages)

	size := EstimateSize(out)
	for size > maxTokens && len(out) > 1 {
		drop := 0
		if out[0].Role == types.RoleSystem && len(out) > 2 {
			drop = 1
		}
		size -= MessageSize(out[drop])
		out = append(out[:drop], out[drop+1:]...)
	}
	return out
}
