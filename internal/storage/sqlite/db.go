// Package sqlite implements the conversation store on a single SQLite file,
// including file-level backup and restore.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file. Its parent directory must exist.
	Path string
	// BackupDir receives backup files. Defaults to "backups" next to Path.
	BackupDir string
	// Model is recorded on newly created conversations.
	Model string
	// DedupeByContent makes Save without an id reuse an existing
	// conversation holding exactly the same messages.
	DedupeByContent bool
	Logger          *logrus.Logger
}

// Store is a conversation store backed by a SQLite file. It implements
// conversation.Store and conversation.Archiver.
type Store struct {
	// mu guards db, which Restore swaps.
	mu     sync.RWMutex
	db     *sql.DB
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database file and applies migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(filepath.Dir(cfg.Path), "backups")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	db, err := openDB(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.WithField("path", cfg.Path).Info("conversation store opened")

	return &Store{
		db:     db,
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path, false))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// dsn builds the driver connection string. Read-write connections begin
// transactions IMMEDIATE so a save that reads before writing waits on
// busy_timeout instead of failing a lock upgrade.
func dsn(path string, readOnly bool) string {
	s := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if readOnly {
		return s + "&mode=ro"
	}
	return s + "&_txlock=immediate"
}

func migrate(db *sql.DB) error {
	logrus.Debug("running sqlite migrations")

	goose.SetLogger(logrus.StandardLogger())
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations", goose.WithAllowMissing()); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Path returns the live database file.
func (s *Store) Path() string {
	return s.cfg.Path
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
