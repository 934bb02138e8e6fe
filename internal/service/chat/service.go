// Package chat runs one chat turn: fit the history to the token budget, ask
// the completion endpoint for a reply, and persist the full history.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/contextwindow"
	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/types"
)

// ErrEmptyMessage is returned when Send is called without content.
var ErrEmptyMessage = errors.New("message content is empty")

// Service composes the context window, the completion endpoint and the
// conversation store.
type Service struct {
	store     conversation.Store
	completer Completer
	maxTokens int
	logger    *logrus.Logger
}

// NewService creates a Service. A non-positive maxTokens uses
// contextwindow.DefaultMaxTokens.
func NewService(store conversation.Store, completer Completer, maxTokens int, logger *logrus.Logger) *Service {
	if maxTokens <= 0 {
		maxTokens = contextwindow.DefaultMaxTokens
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:     store,
		completer: completer,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// Send appends content as a user message, sends the trimmed history to the
// completion endpoint, appends the reply and saves the whole session.
//
// Only the outgoing request is trimmed; the session keeps its full history.
// If the completion fails the user message is removed again so the caller
// can resend it.
func (s *Service) Send(ctx context.Context, sess *Session, content string) (*types.Message, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}

	sess.Append(types.RoleUser, content)

	outgoing := contextwindow.Trim(sess.Messages, s.maxTokens)
	if dropped := len(sess.Messages) - len(outgoing); dropped > 0 {
		s.logger.WithFields(logrus.Fields{
			"conversation_id": sess.ConversationID,
			"dropped":         dropped,
			"estimated":       contextwindow.EstimateSize(outgoing),
			"max_tokens":      s.maxTokens,
		}).Info("trimmed conversation to fit context window")
	}

	reply, err := s.completer.Complete(ctx, outgoing)
	if err != nil {
		sess.Messages = sess.Messages[:len(sess.Messages)-1]
		return nil, fmt.Errorf("complete: %w", err)
	}

	sess.Append(types.RoleAssistant, reply)

	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}

	msg := sess.Messages[len(sess.Messages)-1]
	return &msg, nil
}

// Save persists the full session and records the assigned conversation id.
func (s *Service) Save(ctx context.Context, sess *Session) error {
	id, err := s.store.Save(ctx, sess.ConversationID, sess.Messages, sess.Title)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	sess.ConversationID = id
	return nil
}

// Resume loads a stored conversation into a new session. An unknown id
// yields an empty session carrying that id.
func (s *Service) Resume(ctx context.Context, id string) (*Session, error) {
	msgs, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &Session{ConversationID: id, Messages: msgs}, nil
}

// StartNew saves the current session if it holds more than its system
// prompt, then resets it to the system messages only.
func (s *Service) StartNew(ctx context.Context, sess *Session) error {
	if sess.hasExchange() {
		if err := s.Save(ctx, sess); err != nil {
			return err
		}
	}
	sess.Reset()
	return nil
}
