// Package export writes conversations to standalone JSON or CSV files and
// reads JSON exports back in.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/types"
)

// Format selects the export representation.
type Format string

const (
	// FormatJSON keeps full fidelity: metadata plus the ordered messages.
	FormatJSON Format = "json"
	// FormatCSV writes one row per message with the metadata repeated.
	FormatCSV Format = "csv"
)

const fileStampLayout = "20060102_150405"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

var csvHeader = []string{
	"conversation_id", "title", "created_at", "updated_at", "model",
	"message_index", "role", "content", "timestamp",
}

// Document is the JSON export of one conversation.
type Document struct {
	Metadata types.Conversation `json:"metadata"`
	Messages []types.Message    `json:"messages"`
}

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV:
		return Format(s), nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", conversation.ErrUnsupportedFormat, s)
	}
}

// Exporter writes export files into a directory.
type Exporter struct {
	store  conversation.Store
	dir    string
	logger *logrus.Logger
	now    func() time.Time
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(store conversation.Store, dir string, logger *logrus.Logger) *Exporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Exporter{
		store:  store,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Export writes conversation id in format and returns the file path. It
// returns "" and no error when the conversation does not exist.
func (e *Exporter) Export(ctx context.Context, id string, format Format) (string, error) {
	conv, err := e.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return "", nil
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	name := fmt.Sprintf("conversation_%s_%s.%s",
		unsafeFileChars.ReplaceAllString(conv.ID, "_"), e.now().UTC().Format(fileStampLayout), format)
	path := filepath.Join(e.dir, name)

	switch format {
	case FormatJSON:
		err = writeJSON(path, Document{Metadata: conv.Conversation, Messages: conv.Messages})
	case FormatCSV:
		err = writeCSV(path, conv)
	default:
		return "", fmt.Errorf("%w: %q", conversation.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", err
	}

	e.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"format":          format,
		"path":            path,
	}).Info("conversation exported")

	return path, nil
}

// ExportAll writes every conversation into one JSON array, the format Import
// reads, and returns the file path.
func (e *Exporter) ExportAll(ctx context.Context) (string, error) {
	list, err := e.store.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list conversations: %w", err)
	}

	docs := make([]Document, 0, len(list))
	for _, s := range list {
		conv, err := e.store.Get(ctx, s.ID)
		if err != nil {
			return "", fmt.Errorf("get conversation %s: %w", s.ID, err)
		}
		if conv == nil {
			continue
		}
		docs = append(docs, Document{Metadata: conv.Conversation, Messages: conv.Messages})
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, "conversations_"+e.now().UTC().Format(fileStampLayout)+".json")
	if err := writeJSON(path, docs); err != nil {
		return "", err
	}

	e.logger.WithFields(logrus.Fields{
		"conversations": len(docs),
		"path":          path,
	}).Info("conversations exported")

	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func writeCSV(path string, conv *types.ConversationWithMessages) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	for i, msg := range conv.Messages {
		record := []string{
			conv.ID,
			conv.Title,
			conv.CreatedAt.UTC().Format(time.RFC3339),
			conv.UpdatedAt.UTC().Format(time.RFC3339),
			conv.Model,
			strconv.Itoa(i),
			string(msg.Role),
			msg.Content,
			msg.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return f.Close()
}
