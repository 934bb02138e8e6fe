// convctl manages a local conversation database: listing, searching,
// exporting, importing, backing up and restoring conversations without
// running the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/jobtana1/langchain-chat/internal/export"
	"github.com/jobtana1/langchain-chat/internal/storage/sqlite"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	dbPath    string
	backupDir string
	exportDir string
	format    string
	verbose   bool
}

func run(argv []string, stdout io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("convctl", pflag.ContinueOnError)
	flagSet.StringVar(&opts.dbPath, "db", envOr("SQLITE_PATH", "conversations.db"), "path to the conversation database")
	flagSet.StringVar(&opts.backupDir, "backup-dir", envOr("BACKUP_DIR", ""), "backup directory (default: backups next to --db)")
	flagSet.StringVar(&opts.exportDir, "export-dir", envOr("EXPORT_DIR", "exports"), "export directory")
	flagSet.StringVarP(&opts.format, "format", "f", "json", "export format: json or csv")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetInterspersed(true)

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if !createsDatabase[args[0]] {
		if _, err := os.Stat(opts.dbPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("database %s does not exist", opts.dbPath)
			}
			return err
		}
	}

	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.Config{
		Path:      opts.dbPath,
		BackupDir: opts.backupDir,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	cmd := &command{store: store, opts: opts, out: stdout, logger: logger}
	return cmd.dispatch(ctx, args[0], args[1:])
}

// createsDatabase lists the commands allowed to start from a missing
// database file. Every other command fails instead of creating an empty one.
var createsDatabase = map[string]bool{
	"import":  true,
	"restore": true,
}

type command struct {
	store  *sqlite.Store
	opts   options
	out    io.Writer
	logger *logrus.Logger
}

func (c *command) dispatch(ctx context.Context, name string, args []string) error {
	need := func(n int, usage string) error {
		if len(args) != n {
			return fmt.Errorf("usage: convctl %s", usage)
		}
		return nil
	}

	switch name {
	case "list":
		return c.list(ctx)
	case "search":
		if err := need(1, "search <text>"); err != nil {
			return err
		}
		return c.search(ctx, args[0])
	case "show":
		if err := need(1, "show <id>"); err != nil {
			return err
		}
		return c.show(ctx, args[0])
	case "export":
		if err := need(1, "export <id>"); err != nil {
			return err
		}
		return c.export(ctx, args[0])
	case "export-all":
		return c.exportAll(ctx)
	case "import":
		if err := need(1, "import <file>"); err != nil {
			return err
		}
		return c.importFile(ctx, args[0])
	case "delete":
		if err := need(1, "delete <id>"); err != nil {
			return err
		}
		return c.store.Delete(ctx, args[0])
	case "backup":
		info, err := c.store.Backup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, info.Path)
		return nil
	case "backups":
		return c.backups()
	case "restore":
		if err := need(1, "restore <backup-file>"); err != nil {
			return err
		}
		safety, err := c.store.Restore(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "restored %s (previous data saved to %s)\n", args[0], safety.Path)
		return nil
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *command) list(ctx context.Context) error {
	convs, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tTOKENS\tTITLE")
	for _, conv := range convs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", conv.ID, conv.UpdatedAt.Local().Format(time.DateTime), conv.TokenCount, conv.Title)
	}
	return w.Flush()
}

func (c *command) search(ctx context.Context, query string) error {
	hits, err := c.store.Search(ctx, query)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tTITLE\tMATCH")
	for _, hit := range hits {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", hit.ConversationID, hit.UpdatedAt.Local().Format(time.DateTime), hit.Title, snippet(hit.MatchingContent, 60))
	}
	return w.Flush()
}

func (c *command) show(ctx context.Context, id string) error {
	conv, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("conversation %s not found", id)
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(conv)
}

func (c *command) export(ctx context.Context, id string) error {
	format, err := export.ParseFormat(c.opts.format)
	if err != nil {
		return err
	}
	path, err := export.NewExporter(c.store, c.opts.exportDir, c.logger).Export(ctx, id, format)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("conversation %s not found", id)
	}
	fmt.Fprintln(c.out, path)
	return nil
}

func (c *command) exportAll(ctx context.Context) error {
	path, err := export.NewExporter(c.store, c.opts.exportDir, c.logger).ExportAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, path)
	return nil
}

func (c *command) importFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ids, err := export.Import(ctx, c.store, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "imported %d conversations from %s\n", len(ids), filepath.Base(path))
	return nil
}

func (c *command) backups() error {
	backups, err := c.store.ListBackups()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSIZE\tPATH")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%d\t%s\n", b.CreatedAt.Local().Format(time.DateTime), b.Size, b.Path)
	}
	return w.Flush()
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `convctl manages a local conversation database.

Usage:
  convctl [flags] <command> [args]

Commands:
  list                   list conversations, most recent first
  search <text>          find conversations whose messages contain text
  show <id>              print a conversation with its messages as JSON
  export <id>            write a conversation to the export directory
  export-all             write every conversation to one JSON file
  import <file>          save the conversations of a JSON export file
  delete <id>            delete a conversation
  backup                 copy the database into the backup directory
  backups                list backups, newest first
  restore <backup-file>  replace the database with a backup

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
