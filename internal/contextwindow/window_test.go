package contextwindow

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtana1/langchain-chat/internal/types"
)

func msg(role types.MessageRole, content string) types.Message {
	return types.Message{Role: role, Content: content}
}

func TestEstimateSize(t *testing.T) {
	assert.Equal(t, 0, EstimateSize(nil))
	assert.Equal(t, 0, EstimateSize([]types.Message{}))

	// 4 overhead + len("user")/4 + len("Hello")/4
	assert.Equal(t, 4+1+1, EstimateSize([]types.Message{msg(types.RoleUser, "Hello")}))

	// 4 + len("assistant")/4 + 0
	assert.Equal(t, 4+2, EstimateSize([]types.Message{msg(types.RoleAssistant, "")}))

	// multi-byte characters count once each
	assert.Equal(t, 4+1+2, EstimateSize([]types.Message{msg(types.RoleUser, "éééééééé")}))
}

func TestTrimEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Trim(nil, 10))

	huge := []types.Message{msg(types.RoleUser, strings.Repeat("x", 10000))}
	assert.Equal(t, huge, Trim(huge, 10))
}

func TestTrimUnderBudgetIsUnchanged(t *testing.T) {
	in := []types.Message{
		msg(types.RoleSystem, "You are Claude"),
		msg(types.RoleUser, "Hello"),
		msg(types.RoleAssistant, "Hi there"),
	}
	assert.Equal(t, in, Trim(in, DefaultMaxTokens))
}

func TestTrimZeroBudgetLeavesOneMessage(t *testing.T) {
	pair := []types.Message{
		msg(types.RoleUser, "Hello"),
		msg(types.RoleAssistant, "Hi there"),
	}
	require.Equal(t, 14, EstimateSize(pair))
	assert.Equal(t, []types.Message{pair[1]}, Trim(pair, 0))

	withSystem := []types.Message{
		msg(types.RoleSystem, "You are Claude"),
		msg(types.RoleUser, "Hello"),
		msg(types.RoleAssistant, "Hi there"),
	}
	assert.Equal(t, []types.Message{withSystem[2]}, Trim(withSystem, 0))
	assert.Equal(t, []types.Message{withSystem[2]}, Trim(withSystem, -5))
}

func TestTrimKeepsSystemWhileMoreThanTwo(t *testing.T) {
	in := []types.Message{
		msg(types.RoleSystem, "You are Claude"),
		msg(types.RoleUser, strings.Repeat("a", 400)),
		msg(types.RoleAssistant, strings.Repeat("b", 400)),
		msg(types.RoleUser, "c"),
	}
	original := append([]types.Message(nil), in...)

	// system=8, a=105, b=106, c=5
	require.Equal(t, 224, EstimateSize(in))

	out := Trim(in, 120)
	assert.Equal(t, []types.Message{in[0], in[2], in[3]}, out)

	out = Trim(in, 13)
	assert.Equal(t, []types.Message{in[0], in[3]}, out)

	// Both large messages go first; at 13 > 10 only two remain, so the
	// system message is the next to go.
	out = Trim(in, 10)
	assert.Equal(t, []types.Message{in[3]}, out)

	assert.Equal(t, original, in, "input must not be modified")
}

func TestTrimWithoutSystemDropsOldest(t *testing.T) {
	in := []types.Message{
		msg(types.RoleUser, strings.Repeat("a", 40)),
		msg(types.RoleAssistant, strings.Repeat("b", 40)),
		msg(types.RoleUser, "c"),
	}
	out := Trim(in, 21)
	assert.Equal(t, []types.Message{in[1], in[2]}, out)
}

func TestTrimSystemOnlyTwoMessages(t *testing.T) {
	in := []types.Message{
		msg(types.RoleSystem, strings.Repeat("s", 100)),
		msg(types.RoleUser, "hi"),
	}
	assert.Equal(t, []types.Message{in[1]}, Trim(in, 10))
}

func TestTrimProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	roles := []types.MessageRole{types.RoleUser, types.RoleAssistant}

	for i := 0; i < 500; i++ {
		n := rng.Intn(8)
		in := make([]types.Message, n)
		for j := range in {
			in[j] = msg(roles[rng.Intn(2)], strings.Repeat("x", rng.Intn(200)))
			in[j].Content += string(rune('A' + j))
		}
		if n > 0 && rng.Intn(2) == 0 {
			in[0].Role = types.RoleSystem
		}
		budget := rng.Intn(300)

		out := Trim(in, budget)

		require.LessOrEqual(t, len(out), len(in))
		if len(in) <= 1 {
			require.Equal(t, in, out)
			continue
		}
		require.NotEmpty(t, out)
		if len(out) > 1 {
			require.LessOrEqual(t, EstimateSize(out), budget)
		}

		// Retained messages form a suffix of the input, optionally after a
		// kept leading system message.
		if in[0].Role == types.RoleSystem && len(out) > 1 && out[0] == in[0] {
			require.Equal(t, in[len(in)-len(out)+1:], out[1:])
		} else {
			require.Equal(t, in[len(in)-len(out):], out)
		}
	}
}
