package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobtana1/langchain-chat/internal/conversation"
	"github.com/jobtana1/langchain-chat/internal/types"
)

const (
	backupPrefix = "conversations_backup_"
	backupSuffix = ".db"
	backupLayout = "20060102_150405.000000000"
)

// requiredColumns is the table shape a restore candidate must expose.
var requiredColumns = map[string][]string{
	"conversations": {"conversation_id", "title", "summary", "token_count", "created_at", "updated_at", "model"},
	"messages":      {"message_id", "conversation_id", "role", "content", "timestamp"},
}

// Backup writes a consistent copy of the whole database into the backup
// directory and returns its location.
func (s *Store) Backup(ctx context.Context) (*types.BackupInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backup(ctx)
}

func (s *Store) backup(ctx context.Context) (*types.BackupInfo, error) {
	if err := os.MkdirAll(s.cfg.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	created := s.now().UTC()
	path := filepath.Join(s.cfg.BackupDir, backupPrefix+created.Format(backupLayout)+backupSuffix)

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"path": path,
		"size": fi.Size(),
	}).Info("conversation store backed up")

	return &types.BackupInfo{Path: path, Size: fi.Size(), CreatedAt: created}, nil
}

// ListBackups returns the backups in the backup directory, newest first.
func (s *Store) ListBackups() ([]types.BackupInfo, error) {
	entries, err := os.ReadDir(s.cfg.BackupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var backups []types.BackupInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
		created, err := time.Parse(backupLayout, stamp)
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat backup: %w", err)
		}
		backups = append(backups, types.BackupInfo{
			Path:      filepath.Join(s.cfg.BackupDir, name),
			Size:      fi.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Restore replaces the live database with candidate. The candidate is
// validated first; a rejected candidate leaves the live store untouched.
// Before swapping, a safety backup of the live store is taken and returned.
func (s *Store) Restore(ctx context.Context, candidate string) (*types.BackupInfo, error) {
	if err := ValidateBackup(ctx, candidate); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	safety, err := s.backup(ctx)
	if err != nil {
		return nil, fmt.Errorf("safety backup: %w", err)
	}

	staged := s.cfg.Path + ".restore"
	if err := copyFile(candidate, staged); err != nil {
		os.Remove(staged)
		return nil, fmt.Errorf("stage candidate: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(staged)
		return nil, fmt.Errorf("close live database: %w", err)
	}

	if err := os.Rename(staged, s.cfg.Path); err != nil {
		os.Remove(staged)
		return nil, s.reopen(ctx, fmt.Errorf("swap database file: %w", err))
	}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		os.Remove(s.cfg.Path + suffix)
	}

	if err := s.reopen(ctx, nil); err != nil {
		// Put the live store back the way it was.
		if cerr := copyFile(safety.Path, s.cfg.Path); cerr != nil {
			return nil, fmt.Errorf("%w (rollback failed: %v)", err, cerr)
		}
		return nil, s.reopen(ctx, err)
	}

	s.logger.WithFields(logrus.Fields{
		"candidate": candidate,
		"safety":    safety.Path,
	}).Info("conversation store restored")

	return safety, nil
}

// reopen opens the live path into s.db and returns cause, or the open error
// when cause is nil.
func (s *Store) reopen(ctx context.Context, cause error) error {
	db, err := openDB(ctx, s.cfg.Path)
	if err == nil {
		if err = migrate(db); err != nil {
			db.Close()
		}
	}
	if err != nil {
		if cause != nil {
			return fmt.Errorf("%w (reopen failed: %v)", cause, err)
		}
		return fmt.Errorf("reopen database: %w", err)
	}
	s.db = db
	return cause
}

// ValidateBackup checks that path is a SQLite database holding the
// conversations and messages tables with the expected columns.
func ValidateBackup(ctx context.Context, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", conversation.ErrInvalidBackup, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", conversation.ErrInvalidBackup, path)
	}

	db, err := sql.Open("sqlite", dsn(path, true))
	if err != nil {
		return fmt.Errorf("%w: %v", conversation.ErrInvalidBackup, err)
	}
	defer db.Close()

	for table, want := range requiredColumns {
		rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
		if err != nil {
			return fmt.Errorf("%w: %v", conversation.ErrInvalidBackup, err)
		}
		have := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("%w: %v", conversation.ErrInvalidBackup, err)
			}
			have[name] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("%w: %v", conversation.ErrInvalidBackup, err)
		}

		if len(have) == 0 {
			return fmt.Errorf("%w: missing table %s", conversation.ErrInvalidBackup, table)
		}
		for _, col := range want {
			if !have[col] {
				return fmt.Errorf("%w: table %s missing column %s", conversation.ErrInvalidBackup, table, col)
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
