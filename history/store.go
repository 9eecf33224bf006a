package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/nachoal/kitgpt-go/llm"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// CorruptionHandler is told where a damaged database will be copied before
// it is recreated. Returning an error aborts recovery.
type CorruptionHandler func(backupPath string) error

// Store persists conversations in SQLite
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens the database at path, applying migrations. If the database
// cannot be checked or migrated, onCorrupted is notified with the backup
// path, the file is copied aside and a fresh database is created. A failure
// during recovery is returned and should be treated as fatal.
func Open(ctx context.Context, path string, onCorrupted CorruptionHandler, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "history").Logger()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	err := s.open(ctx)
	if err == nil {
		return s, nil
	}

	s.logger.Warn().Err(err).Str("path", path).Msg("database check failed, recreating")
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}

	backup := BackupPath(path)
	if onCorrupted != nil {
		if err := onCorrupted(backup); err != nil {
			return nil, fmt.Errorf("database recovery aborted: %w", err)
		}
	}
	if err := copyFile(path, backup); err != nil {
		return nil, fmt.Errorf("failed to back up database: %w", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove corrupted database: %w", err)
		}
	}

	if err := s.open(ctx); err != nil {
		if s.db != nil {
			_ = s.db.Close()
		}
		return nil, fmt.Errorf("failed to recreate database: %w", err)
	}
	s.logger.Info().Str("backup", backup).Msg("database recreated")
	return s, nil
}

// BackupPath is where a corrupted database is copied to
func BackupPath(path string) string {
	if strings.HasSuffix(path, ".sqlite3") {
		return strings.TrimSuffix(path, ".sqlite3") + ".corrupted.sqlite3"
	}
	return path + ".corrupted"
}

// open connects, checks the connection, migrates and checks the schema
func (s *Store) open(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to configure database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		return err
	}
	return s.check(ctx)
}

func migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) check(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, messages, started, last_accessed FROM conversations LIMIT 1")
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	return rows.Close()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a new conversation and returns its id
func (s *Store) Insert(ctx context.Context, title string, messages []llm.Message) (int64, error) {
	payload, err := json.Marshal(nonNil(messages))
	if err != nil {
		return 0, fmt.Errorf("failed to encode messages: %w", err)
	}
	now := formatTime(s.now())

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (name, messages, started, last_accessed) VALUES (?, ?, ?, ?)",
		titleOrDefault(title), string(payload), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read conversation id: %w", err)
	}
	s.logger.Debug().Int64("id", id).Int("messages", len(messages)).Msg("conversation inserted")
	return id, nil
}

// Update replaces the title and messages of a conversation
func (s *Store) Update(ctx context.Context, id int64, title string, messages []llm.Message) error {
	payload, err := json.Marshal(nonNil(messages))
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET name = ?, messages = ?, last_accessed = ? WHERE id = ?",
		titleOrDefault(title), string(payload), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update conversation %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update conversation %d: %w", id, ErrNotFound)
	}
	return nil
}

// Get loads a conversation
func (s *Store) Get(ctx context.Context, id int64) (*Conversation, error) {
	var (
		c                 Conversation
		payload           string
		started, accessed string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, messages, started, last_accessed FROM conversations WHERE id = ?", id).
		Scan(&c.ID, &c.Title, &payload, &started, &accessed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %d: %w", id, err)
	}

	if err := json.Unmarshal([]byte(payload), &c.Messages); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %d: %w", id, err)
	}
	c.Started = parseTime(started)
	c.LastAccessed = parseTime(accessed)
	return &c, nil
}

// List returns conversation metadata, newest first. A limit of zero or less
// uses DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, started FROM conversations ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			started string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &started); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		sum.Started = parseTime(started)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a conversation
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete conversation %d: %w", id, ErrNotFound)
	}
	return nil
}

func titleOrDefault(title string) string {
	if strings.TrimSpace(title) == "" {
		return UntitledTitle
	}
	return title
}

func nonNil(messages []llm.Message) []llm.Message {
	if messages == nil {
		return []llm.Message{}
	}
	return messages
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 and SQLite's datetime() format
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
