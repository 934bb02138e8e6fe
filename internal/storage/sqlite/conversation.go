package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/contextwindow"
	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/types"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Save creates or fully replaces a conversation in one transaction.
func (s *Store) Save(ctx context.Context, id string, messages []types.Message, title string) (string, error) {
	msgs, err := conversation.NormalizeMessages(messages)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", conversation.ErrEmptyConversation
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if id == "" && s.cfg.DedupeByContent {
		dupID, err := findDuplicate(ctx, tx, msgs)
		if err != nil {
			return "", err
		}
		if dupID != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`,
				formatTime(now), dupID); err != nil {
				return "", fmt.Errorf("touch conversation: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return "", fmt.Errorf("commit conversation: %w", err)
			}
			s.logger.WithField("conversation_id", dupID).Debug("save matched existing conversation")
			return dupID, nil
		}
	}

	var storedTitle string
	exists := false
	if id != "" {
		err := tx.QueryRowContext(ctx,
			`SELECT title FROM conversations WHERE conversation_id = ?`, id).Scan(&storedTitle)
		switch {
		case err == nil:
			exists = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return "", fmt.Errorf("get conversation: %w", err)
		}
	}

	summary := conversation.DeriveSummary(msgs)
	tokenCount := contextwindow.EstimateSize(msgs)

	if exists {
		if title == "" {
			title = storedTitle
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations
			SET title = ?, summary = ?, token_count = ?, updated_at = ?
			WHERE conversation_id = ?`,
			title, summary, tokenCount, formatTime(now), id); err != nil {
			return "", fmt.Errorf("update conversation: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return "", fmt.Errorf("delete messages: %w", err)
		}
	} else {
		if id == "" {
			id = uuid.NewString()
		}
		if title == "" {
			title = conversation.DeriveTitle(msgs)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (conversation_id, title, summary, token_count, created_at, updated_at, model)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, title, summary, tokenCount, formatTime(now), formatTime(now), s.cfg.Model); err != nil {
			return "", fmt.Errorf("create conversation: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, timestamp) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = now
		}
		if _, err := stmt.ExecContext(ctx, id, string(msg.Role), msg.Content, formatTime(ts)); err != nil {
			return "", fmt.Errorf("create message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit conversation: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": id,
		"messages":        len(msgs),
		"token_count":     tokenCount,
		"created":         !exists,
	}).Debug("conversation saved")

	return id, nil
}

// findDuplicate returns the id of a stored conversation whose messages equal
// msgs, or "" when there is none.
func findDuplicate(ctx context.Context, q querier, msgs []types.Message) (string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT conversation_id FROM messages
		GROUP BY conversation_id
		HAVING COUNT(*) = ?`, len(msgs))
	if err != nil {
		return "", fmt.Errorf("find duplicate candidates: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return "", fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("find duplicate candidates: %w", err)
	}

	for _, id := range candidates {
		stored, err := loadMessages(ctx, q, id)
		if err != nil {
			return "", err
		}
		if conversation.SameMessages(stored, msgs) {
			return id, nil
		}
	}
	return "", nil
}

// List returns all conversations, most recently updated first.
func (s *Store) List(ctx context.Context) ([]types.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, title, summary, updated_at, token_count
		FROM conversations
		ORDER BY updated_at DESC, created_at DESC, conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var result []types.ConversationSummary
	for rows.Next() {
		var c types.ConversationSummary
		var updatedAt string
		if err := rows.Scan(&c.ID, &c.Title, &c.Summary, &updatedAt, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return result, nil
}

// Load returns the messages of a conversation in order. Unknown ids yield an
// empty list.
func (s *Store) Load(ctx context.Context, id string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, err := loadMessages(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	return msgs, nil
}

// Get returns a conversation with its messages, or nil for an unknown id.
func (s *Store) Get(ctx context.Context, id string) (*types.ConversationWithMessages, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conv types.ConversationWithMessages
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, title, summary, token_count, created_at, updated_at, model
		FROM conversations WHERE conversation_id = ?`, id).Scan(
		&conv.ID, &conv.Title, &conv.Summary, &conv.TokenCount, &createdAt, &updatedAt, &conv.Model,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if conv.Messages, err = loadMessages(ctx, s.db, id); err != nil {
		return nil, err
	}
	if conv.Messages == nil {
		conv.Messages = []types.Message{}
	}
	return &conv, nil
}

func loadMessages(ctx context.Context, q querier, id string) ([]types.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT role, content, timestamp FROM messages
		WHERE conversation_id = ?
		ORDER BY message_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		var msg types.Message
		var role, ts string
		if err := rows.Scan(&role, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = types.MessageRole(role)
		if msg.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return msgs, nil
}

// Search returns one hit per conversation with a message containing query
// (case-sensitive), most recently updated first.
func (s *Store) Search(ctx context.Context, query string) ([]types.SearchHit, error) {
	if query == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.conversation_id, c.title, c.updated_at,
		       (SELECT m.content FROM messages m
		        WHERE m.conversation_id = c.conversation_id AND instr(m.content, ?) > 0
		        ORDER BY m.message_id LIMIT 1)
		FROM conversations c
		WHERE EXISTS (SELECT 1 FROM messages m
		              WHERE m.conversation_id = c.conversation_id AND instr(m.content, ?) > 0)
		ORDER BY c.updated_at DESC, c.conversation_id`, query, query)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	defer rows.Close()

	var hits []types.SearchHit
	for rows.Next() {
		var hit types.SearchHit
		var updatedAt string
		if err := rows.Scan(&hit.ConversationID, &hit.Title, &updatedAt, &hit.MatchingContent); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		if hit.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	return hits, nil
}

// Delete removes a conversation and its messages. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.WithField("conversation_id", id).Info("conversation deleted")
	}
	return nil
}
