package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jobtana1/langchain-chat/internal/conversation"
)

// ParseImport decodes a JSON array of exported conversations. Every record
// must carry at least one message with a known role; otherwise nothing is
// returned.
func ParseImport(data []byte) ([]Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array of conversations", conversation.ErrInvalidImport)
	}

	var docs []Document
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("%w: %v", conversation.ErrInvalidImport, err)
	}

	for i := range docs {
		if len(docs[i].Messages) == 0 {
			return nil, fmt.Errorf("%w: record %d has no messages", conversation.ErrInvalidImport, i)
		}
		msgs, err := conversation.NormalizeMessages(docs[i].Messages)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", conversation.ErrInvalidImport, i, err)
		}
		docs[i].Messages = msgs
	}
	return docs, nil
}

// Import validates the whole payload, then saves each conversation under
// its exported id and title. Returns the saved ids in payload order.
func Import(ctx context.Context, store conversation.Store, data []byte) ([]string, error) {
	docs, err := ParseImport(data)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := store.Save(ctx, doc.Metadata.ID, doc.Messages, doc.Metadata.Title)
		if err != nil {
			return ids, fmt.Errorf("save conversation %q: %w", doc.Metadata.ID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
