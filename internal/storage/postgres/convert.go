package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jobtana1/langchain-chat/internal/types"
)

// Timestamptz conversions

func timeToPgtimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func pgtimestamptzToTime(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// Row types

type conversationRow struct {
	ID         string
	Title      string
	Summary    string
	TokenCount int32
	CreatedAt  pgtype.Timestamptz
	UpdatedAt  pgtype.Timestamptz
	Model      string
}

type messageRow struct {
	Role      string
	Content   string
	Timestamp pgtype.Timestamptz
}

// Model conversions

func conversationFromDB(c *conversationRow) types.Conversation {
	return types.Conversation{
		ID:         c.ID,
		Title:      c.Title,
		Summary:    c.Summary,
		Model:      c.Model,
		TokenCount: int(c.TokenCount),
		CreatedAt:  pgtimestamptzToTime(c.CreatedAt),
		UpdatedAt:  pgtimestamptzToTime(c.UpdatedAt),
	}
}

func messageFromDB(m *messageRow) types.Message {
	return types.Message{
		Role:      types.MessageRole(m.Role),
		Content:   m.Content,
		Timestamp: pgtimestamptzToTime(m.Timestamp),
	}
}

func messagesFromDB(ms []messageRow) []types.Message {
	result := make([]types.Message, len(ms))
	for i := range ms {
		result[i] = messageFromDB(&ms[i])
	}
	return result
}
