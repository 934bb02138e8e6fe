package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/contextwindow"
	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/types"
)

// ConversationRepository handles database operations for conversations and
// their messages. It implements conversation.Store.
type ConversationRepository struct {
	pool   *pgxpool.Pool
	model  string
	dedupe bool
	logger *logrus.Logger
}

// RepositoryOption configures a ConversationRepository.
type RepositoryOption func(*ConversationRepository)

// WithModel records model on newly created conversations.
func WithModel(model string) RepositoryOption {
	return func(r *ConversationRepository) { r.model = model }
}

// WithDedupeByContent makes Save without an id reuse an existing
// conversation holding exactly the same messages.
func WithDedupeByContent(enabled bool) RepositoryOption {
	return func(r *ConversationRepository) { r.dedupe = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) RepositoryOption {
	return func(r *ConversationRepository) { r.logger = logger }
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(pool *pgxpool.Pool, opts ...RepositoryOption) *ConversationRepository {
	r := &ConversationRepository{
		pool:   pool,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save creates or fully replaces a conversation in one transaction.
func (r *ConversationRepository) Save(ctx context.Context, id string, messages []types.Message, title string) (string, error) {
	msgs, err := conversation.NormalizeMessages(messages)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", conversation.ErrEmptyConversation
	}

	now := time.Now()

	summary := conversation.DeriveSummary(msgs)
	tokenCount := contextwindow.EstimateSize(msgs)
	created, deduped := false, false

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if id == "" && r.dedupe {
			// Serializes dedupe saves so two identical ones cannot both miss.
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, dedupeLockKey); err != nil {
				return fmt.Errorf("lock dedupe: %w", err)
			}
			dupID, err := findDuplicate(ctx, tx, msgs)
			if err != nil {
				return err
			}
			if dupID != "" {
				if _, err := tx.Exec(ctx,
					`UPDATE conversations SET updated_at = $1 WHERE conversation_id = $2`,
					timeToPgtimestamptz(now), dupID); err != nil {
					return fmt.Errorf("touch conversation: %w", err)
				}
				id = dupID
				deduped = true
				return nil
			}
		}

		var storedTitle string
		exists := false
		if id != "" {
			err := tx.QueryRow(ctx,
				`SELECT title FROM conversations WHERE conversation_id = $1 FOR UPDATE`, id).Scan(&storedTitle)
			switch {
			case err == nil:
				exists = true
			case errors.Is(err, pgx.ErrNoRows):
			default:
				return fmt.Errorf("get conversation: %w", err)
			}
		}

		if exists {
			if title == "" {
				title = storedTitle
			}
			if _, err := tx.Exec(ctx, `
				UPDATE conversations
				SET title = $1, summary = $2, token_count = $3, updated_at = $4
				WHERE conversation_id = $5`,
				title, summary, tokenCount, timeToPgtimestamptz(now), id); err != nil {
				return fmt.Errorf("update conversation: %w", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
				return fmt.Errorf("delete messages: %w", err)
			}
		} else {
			created = true
			if id == "" {
				id = uuid.NewString()
			}
			if title == "" {
				title = conversation.DeriveTitle(msgs)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO conversations (conversation_id, title, summary, token_count, created_at, updated_at, model)
				VALUES ($1, $2, $3, $4, $5, $5, $6)`,
				id, title, summary, tokenCount, timeToPgtimestamptz(now), r.model); err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}
		}

		batch := &pgx.Batch{}
		for _, msg := range msgs {
			ts := msg.Timestamp
			if ts.IsZero() {
				ts = now
			}
			batch.Queue(
				`INSERT INTO messages (conversation_id, role, content, timestamp) VALUES ($1, $2, $3, $4)`,
				id, string(msg.Role), msg.Content, timeToPgtimestamptz(ts),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("create messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if deduped {
		r.logger.WithField("conversation_id", id).Debug("save matched existing conversation")
		return id, nil
	}

	r.logger.WithFields(logrus.Fields{
		"conversation_id": id,
		"messages":        len(msgs),
		"token_count":     tokenCount,
		"created":         created,
	}).Debug("conversation saved")

	return id, nil
}

// dedupeLockKey is the advisory lock taken by saves that look for an
// identical stored conversation.
const dedupeLockKey int64 = 0x636f6e76

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func findDuplicate(ctx context.Context, q querier, msgs []types.Message) (string, error) {
	rows, err := q.Query(ctx, `
		SELECT conversation_id FROM messages
		GROUP BY conversation_id
		HAVING COUNT(*) = $1`, len(msgs))
	if err != nil {
		return "", fmt.Errorf("find duplicate candidates: %w", err)
	}
	candidates, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
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
func (r *ConversationRepository) List(ctx context.Context) ([]types.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, title, summary, token_count, created_at, updated_at, model
		FROM conversations
		ORDER BY updated_at DESC, created_at DESC, conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[conversationRow])
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	result := make([]types.ConversationSummary, len(convs))
	for i := range convs {
		c := conversationFromDB(&convs[i])
		result[i] = types.ConversationSummary{
			ID:         c.ID,
			Title:      c.Title,
			Summary:    c.Summary,
			UpdatedAt:  c.UpdatedAt,
			TokenCount: c.TokenCount,
		}
	}
	return result, nil
}

// Load returns the messages of a conversation in order. Unknown ids yield an
// empty list.
func (r *ConversationRepository) Load(ctx context.Context, id string) ([]types.Message, error) {
	return loadMessages(ctx, r.pool, id)
}

// Get returns a conversation with its messages, or nil for an unknown id.
func (r *ConversationRepository) Get(ctx context.Context, id string) (*types.ConversationWithMessages, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, title, summary, token_count, created_at, updated_at, model
		FROM conversations WHERE conversation_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[conversationRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	msgs, err := loadMessages(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}

	return &types.ConversationWithMessages{
		Conversation: conversationFromDB(&row),
		Messages:     msgs,
	}, nil
}

func loadMessages(ctx context.Context, q querier, id string) ([]types.Message, error) {
	rows, err := q.Query(ctx, `
		SELECT role, content, timestamp FROM messages
		WHERE conversation_id = $1
		ORDER BY message_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[messageRow])
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return messagesFromDB(msgs), nil
}

// Search returns one hit per conversation with a message containing query
// (case-sensitive), most recently updated first.
func (r *ConversationRepository) Search(ctx context.Context, query string) ([]types.SearchHit, error) {
	if query == "" {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (c.updated_at, c.conversation_id)
		       c.conversation_id, c.title, c.updated_at, m.content
		FROM conversations c
		JOIN messages m ON m.conversation_id = c.conversation_id
		WHERE strpos(m.content, $1) > 0
		ORDER BY c.updated_at DESC, c.conversation_id, m.message_id`, query)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}

	type hitRow struct {
		ConversationID string
		Title          string
		UpdatedAt      time.Time
		Content        string
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByPos[hitRow])
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}

	hits := make([]types.SearchHit, len(found))
	for i, h := range found {
		hits[i] = types.SearchHit{
			ConversationID:  h.ConversationID,
			Title:           h.Title,
			UpdatedAt:       h.UpdatedAt.UTC(),
			MatchingContent: h.Content,
		}
	}
	return hits, nil
}

// Delete removes a conversation and its messages. Unknown ids are a no-op.
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE conversation_id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		if tag.RowsAffected() > 0 {
			r.logger.WithField("conversation_id", id).Info("conversation deleted")
		}
		return nil
	})
}
