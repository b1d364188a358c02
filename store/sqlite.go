package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	url       TEXT NOT NULL UNIQUE,
	source    TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	tab_id    TEXT NOT NULL DEFAULT ''
);`

// SQLite mirrors a Memory store into a SQLite database so captures survive
// restarts. Memory stays authoritative: persistence failures are logged and
// never change the outcome of Record or Clear.
type SQLite struct {
	*Memory
	db *sql.DB

	// wmu orders each memory write with its database write, so a row can
	// never be inserted after the DELETE of a Clear that removed it.
	wmu sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and loads every
// previously captured row into memory.
func OpenSQLite(path string, minLen int) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	s := &SQLite{Memory: NewMemory(minLen), db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("capture store opened", "backend", "sqlite", "path", path, "records", s.Count())
	return s, nil
}

func (s *SQLite) load() error {
	rows, err := s.db.Query(`SELECT url, source, timestamp, tab_id FROM captures ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("store: load captures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.URL, &r.Source, &r.Timestamp, &r.TabID); err != nil {
			return fmt.Errorf("store: scan capture: %w", err)
		}
		s.Memory.insert(r)
	}
	return rows.Err()
}

// Record implements Store.
func (s *SQLite) Record(url, source, tabID string) (Record, bool, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	rec, added, err := s.Memory.Record(url, source, tabID)
	if err != nil || !added {
		return rec, added, err
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO captures (url, source, timestamp, tab_id) VALUES (?, ?, ?, ?)`,
		rec.URL, rec.Source, rec.Timestamp, rec.TabID,
	); err != nil {
		slog.Warn("capture store: persist failed", "url", url, "error", err)
	}
	return rec, true, nil
}

// Clear implements Store.
func (s *SQLite) Clear() int {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	n := s.Memory.Clear()
	if _, err := s.db.Exec(`DELETE FROM captures`); err != nil {
		slog.Warn("capture store: clear failed", "error", err)
	}
	return n
}

// Export implements Store.
func (s *SQLite) Export() Snapshot {
	return s.Memory.Export()
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}
