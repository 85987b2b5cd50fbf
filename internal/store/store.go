package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade journals created by older versions. Index i moves a
// journal from user_version i to i+1; the base schema is applied first and
// is idempotent.
var migrations = []string{
	// 1: status lookups by action id for `ignis status`.
	`CREATE INDEX IF NOT EXISTS idx_journal_action
		ON journal_entries(module, environment, action_id)`,
}

var currentSchemaVersion = len(migrations)

// pragmas are applied to every connection in order. synchronous=FULL makes
// a commit return only after fsync, which Put relies on.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = FULL",
	"PRAGMA busy_timeout = 5000",
}

// Store is the SQLite deployment journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite journal at path (":memory:" for a
// throwaway journal). Opening an existing journal is safe and upgrades its
// schema in place.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	// Some builds ignore synchronous silently; a journal without fsync on
	// commit cannot honor Put's durability contract.
	if err := s.verifyPragma("synchronous", "2"); err != nil {
		return err
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return s.migrate()
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	for v := version; v < currentSchemaVersion; v++ {
		if _, err := s.db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("record schema v%d: %w", v+1, err)
		}
	}
	return nil
}

// Close closes the journal. A zero Store closes cleanly.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) verifyPragma(name, want string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("pragma %s = %q, want %q", name, got, want)
	}
	return nil
}
