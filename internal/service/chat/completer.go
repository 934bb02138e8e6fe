package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/ai/anthropic"
	"github.com/jobtana1/langchain-chat/internal/types"
)

// ErrCompletionUnavailable is returned once overload retries are exhausted.
var ErrCompletionUnavailable = errors.New("completion endpoint unavailable")

// Completer produces the assistant reply for a message list.
type Completer interface {
	Complete(ctx context.Context, messages []types.Message) (string, error)
}

// RetryPolicy bounds retries of overloaded completion calls. Delays start at
// BaseDelay and double per attempt, plus up to Jitter of random delay.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	Jitter     time.Duration
}

// DefaultRetryPolicy is used for a zero RetryPolicy.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 5,
	BaseDelay:  time.Second,
	Jitter:     500 * time.Millisecond,
}

func (p RetryPolicy) backoff() retry.Backoff {
	if p.BaseDelay <= 0 {
		p = DefaultRetryPolicy
	}
	b := retry.NewExponential(p.BaseDelay)
	if p.Jitter > 0 {
		b = retry.WithJitter(p.Jitter, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// messageSender is satisfied by *anthropic.Client.
type messageSender interface {
	SendMessage(ctx context.Context, req *anthropic.Request) (*anthropic.Response, error)
}

// AnthropicCompleter calls the Anthropic messages API, retrying overloads.
type AnthropicCompleter struct {
	client messageSender
	policy RetryPolicy
	logger *logrus.Logger
}

// NewAnthropicCompleter creates an AnthropicCompleter.
func NewAnthropicCompleter(client messageSender, policy RetryPolicy, logger *logrus.Logger) *AnthropicCompleter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AnthropicCompleter{client: client, policy: policy, logger: logger}
}

// Complete sends messages and returns the reply text. Leading system
// messages become the system prompt; assistant messages before the first
// user message are dropped since the API requires a user turn first.
func (c *AnthropicCompleter) Complete(ctx context.Context, messages []types.Message) (string, error) {
	req := buildRequest(messages)
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("no user message to send")
	}

	var reply string
	attempt := 0
	err := retry.Do(ctx, c.policy.backoff(), func(ctx context.Context) error {
		attempt++
		resp, err := c.client.SendMessage(ctx, req)
		if err != nil {
			if anthropic.IsOverloaded(err) {
				c.logger.WithError(err).WithField("attempt", attempt).Warn("completion endpoint overloaded, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		reply = resp.Text()
		return nil
	})
	if err != nil {
		if anthropic.IsOverloaded(err) {
			return "", fmt.Errorf("%w after %d attempts: %v", ErrCompletionUnavailable, attempt, err)
		}
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	if reply == "" {
		return "", fmt.Errorf("empty response from anthropic")
	}
	return reply, nil
}

func buildRequest(messages []types.Message) *anthropic.Request {
	var system []string
	req := &anthropic.Request{}
	for _, msg := range messages {
		switch {
		case msg.Role == types.RoleSystem:
			system = append(system, msg.Content)
		case len(req.Messages) == 0 && msg.Role != types.RoleUser && msg.Role != types.RoleHuman:
			// The API rejects a conversation that opens with an assistant turn.
		default:
			role := msg.Role
			if role == types.RoleHuman {
				role = types.RoleUser
			}
			req.Messages = append(req.Messages, anthropic.Message{Role: string(role), Content: msg.Content})
		}
	}
	req.System = strings.Join(system, "\n\n")
	return req
}
