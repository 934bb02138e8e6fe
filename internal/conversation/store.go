// Package conversation defines the conversation store contract shared by the
// storage backends, and the metadata derived from a message list on save.
package conversation

import (
	"context"
	"errors"

	"github.com/jobtana1/langchain-chat/internal/types"
)

var (
	// ErrEmptyConversation is returned when saving an empty message list.
	ErrEmptyConversation = errors.New("conversation has no messages")
	// ErrInvalidRole is returned for a message role outside system/user/assistant.
	ErrInvalidRole = errors.New("invalid message role")
	// ErrInvalidBackup is returned when a restore candidate lacks the expected tables.
	ErrInvalidBackup = errors.New("invalid backup")
	// ErrInvalidImport is returned for an import payload that is not a list of conversations.
	ErrInvalidImport = errors.New("invalid import payload")
	// ErrUnsupportedFormat is returned for an unknown export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// Store is durable storage for conversations. Unknown ids are not errors:
// Load returns an empty list, Get returns nil, Delete is a no-op.
type Store interface {
	// Save creates the conversation when id is empty or unknown, otherwise
	// replaces its full message set. An empty title keeps the stored title,
	// or derives one for a new conversation. Returns the conversation id.
	Save(ctx context.Context, id string, messages []types.Message, title string) (string, error)
	List(ctx context.Context) ([]types.ConversationSummary, error)
	Load(ctx context.Context, id string) ([]types.Message, error)
	Get(ctx context.Context, id string) (*types.ConversationWithMessages, error)
	Search(ctx context.Context, query string) ([]types.SearchHit, error)
	Delete(ctx context.Context, id string) error
}

// Archiver is implemented by stores backed by a single file that can be
// copied and swapped.
type Archiver interface {
	Backup(ctx context.Context) (*types.BackupInfo, error)
	ListBackups() ([]types.BackupInfo, error)
	// Restore validates candidate, takes a safety backup of the live store,
	// then replaces the live store with candidate. Returns the safety backup.
	Restore(ctx context.Context, candidate string) (*types.BackupInfo, error)
}
