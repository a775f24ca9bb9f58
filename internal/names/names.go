// Package names persists visitor names submitted through the name form.
//
// Names are kept in a single SQLite table. The store is independent of the
// greeting pipeline; generated audio is never written here.
package names

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nadzzz/islandgreet/internal/config"
	"github.com/nadzzz/islandgreet/internal/greeting"
)

// ErrEmptyName is returned by Save when the name is blank after trimming.
// Its text is shown to the user as is.
var ErrEmptyName = errors.New("Please enter a name.")

// Store wraps a SQLite-backed names table.
type Store struct {
	db    *sql.DB
	path  string
	clock func() time.Time
}

// Open creates the database file if needed and ensures the schema exists.
func Open(ctx context.Context, cfg config.NamesConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, path: cfg.Path, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("names store opened", "path", cfg.Path)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS names (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init names schema: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Save trims name and inserts it.
func (s *Store) Save(ctx context.Context, name string) error {
	trimmed := greeting.TrimName(name)
	if trimmed == "" {
		return ErrEmptyName
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO names(name, created_at) VALUES(?, ?)`,
		trimmed, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("insert name: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}
