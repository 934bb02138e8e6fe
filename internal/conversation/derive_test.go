package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtana1/langchain-chat/internal/types"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name     string
		messages []types.Message
		want     string
	}{
		{
			name:     "short first user message",
			messages: []types.Message{{Role: types.RoleUser, Content: "Hello"}},
			want:     "Hello",
		},
		{
			name: "skips system message",
			messages: []types.Message{
				{Role: types.RoleSystem, Content: "You are Claude"},
				{Role: types.RoleUser, Content: "What is Go?"},
			},
			want: "What is Go?",
		},
		{
			name:     "long message truncated",
			messages: []types.Message{{Role: types.RoleUser, Content: strings.Repeat("x", 60)}},
			want:     strings.Repeat("x", 50) + "...",
		},
		{
			name:     "exactly fifty characters",
			messages: []types.Message{{Role: types.RoleUser, Content: strings.Repeat("y", 50)}},
			want:     strings.Repeat("y", 50),
		},
		{
			name:     "system only",
			messages: []types.Message{{Role: types.RoleSystem, Content: "You are Claude"}},
			want:     DefaultTitle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.messages))
		})
	}
}

func TestDeriveSummary(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleUser, Content: "Hello"},
		{Role: types.RoleAssistant, Content: "Hi there"},
	}
	assert.Equal(t, "Hello... → Hi there...", DeriveSummary(msgs))

	long := []types.Message{
		{Role: types.RoleSystem, Content: "sys"},
		{Role: types.RoleUser, Content: strings.Repeat("u", 150)},
		{Role: types.RoleAssistant, Content: "first"},
		{Role: types.RoleUser, Content: "again"},
		{Role: types.RoleAssistant, Content: strings.Repeat("a", 120)},
	}
	assert.Equal(t, strings.Repeat("u", 100)+"... → "+strings.Repeat("a", 100)+"...", DeriveSummary(long))

	assert.Equal(t, "", DeriveSummary([]types.Message{{Role: types.RoleSystem, Content: "sys"}}))
}

func TestNormalizeMessages(t *testing.T) {
	in := []types.Message{
		{Role: types.RoleHuman, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello"},
	}
	out, err := NormalizeMessages(in)
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, out[0].Role)
	assert.Equal(t, types.RoleHuman, in[0].Role, "input must not be modified")

	_, err = NormalizeMessages([]types.Message{{Role: "tool", Content: "x"}})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestSameMessages(t *testing.T) {
	a := []types.Message{{Role: types.RoleUser, Content: "a"}, {Role: types.RoleAssistant, Content: "b"}}
	b := []types.Message{{Role: types.RoleUser, Content: "a"}, {Role: types.RoleAssistant, Content: "b"}}
	assert.True(t, SameMessages(a, b))

	b[1].Content = "c"
	assert.False(t, SameMessages(a, b), "same length but different content")
	assert.False(t, SameMessages(a, a[:1]))
}
