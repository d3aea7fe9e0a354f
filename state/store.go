// Package state persists the convergence fact and the deploy journal in a
// local SQLite database.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"addonsync/manager"

	_ "modernc.org/sqlite"
)

const convergedKey = "converged"

// Store is the SQLite-backed convergence store and deploy journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens the state database, applying the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS convergence_singleton (
	id TEXT PRIMARY KEY,
	version TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize convergence schema: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS deploy_journal (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	display_name TEXT NOT NULL,
	version TEXT NOT NULL,
	upgrade INTEGER NOT NULL,
	ok INTEGER NOT NULL,
	at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize deploy journal schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the persisted convergence version, or "" when none is
// recorded.
func (s *Store) Load() (string, error) {
	var version string
	err := s.db.QueryRow(`SELECT version FROM convergence_singleton WHERE id = ?`, convergedKey).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query convergence state: %w", err)
	}
	return version, nil
}

// Save upserts the convergence version.
func (s *Store) Save(version string) error {
	_, err := s.db.Exec(
		`INSERT INTO convergence_singleton (id, version, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 version = excluded.version,
		 updated_at = excluded.updated_at`,
		convergedKey,
		version,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save convergence state: %w", err)
	}
	return nil
}

// Clear removes the convergence record.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM convergence_singleton WHERE id = ?`, convergedKey); err != nil {
		return fmt.Errorf("clear convergence state: %w", err)
	}
	return nil
}

// Record appends one deploy event to the journal.
func (s *Store) Record(ev manager.DeployEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO deploy_journal (name, display_name, version, upgrade, ok, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Name,
		ev.DisplayName,
		ev.Version,
		boolToInt(ev.Upgrade),
		boolToInt(ev.OK),
		ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record deploy event: %w", err)
	}
	return nil
}

// History returns the most recent deploy events, newest first.
func (s *Store) History(limit int) ([]manager.DeployEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT name, display_name, version, upgrade, ok, at
		 FROM deploy_journal ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deploy journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []manager.DeployEvent
	for rows.Next() {
		var (
			ev          manager.DeployEvent
			upgrade, ok int
			at          string
		)
		if err := rows.Scan(&ev.Name, &ev.DisplayName, &ev.Version, &upgrade, &ok, &at); err != nil {
			return nil, fmt.Errorf("scan deploy event: %w", err)
		}
		ev.Upgrade = upgrade != 0
		ev.OK = ok != 0
		if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			ev.At = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// openDB opens a SQLite database with standard pragmas (WAL mode, busy
// timeout).
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
