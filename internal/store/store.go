// Package store persists orchestration state to SQLite. Writes are debounced
// and fire-and-forget: a persistence failure is logged, never allowed to
// block or fail the in-memory operation that triggered it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ckirkland/conductor/pkg/models"
)

// DefaultDebounce coalesces bursts of saves for the same orchestration.
const DefaultDebounce = time.Second

// DefaultPath returns the default database location.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "conductor", "conductor.db")
}

// Store wraps an SQLite database holding one record per orchestration.
type Store struct {
	conn     *sql.DB
	path     string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string][]byte
	timers  map[string]*time.Timer
	closed  bool
}

// Open opens (and migrates) the store at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	return OpenWithDebounce(path, DefaultDebounce)
}

// OpenWithDebounce opens the store with a custom debounce interval.
func OpenWithDebounce(path string, debounce time.Duration) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{
		conn:     conn,
		path:     path,
		debounce: debounce,
		pending:  make(map[string][]byte),
		timers:   make(map[string]*time.Timer),
	}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS orchestrations (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create orchestrations table: %w", err)
	}
	return nil
}

// Save schedules a debounced write of the orchestration. The snapshot is
// serialized immediately so later mutations don't leak into this write.
// Live process handles are not part of the model and are never serialized.
func (s *Store) Save(o *models.Orchestration) {
	data, err := json.Marshal(o)
	if err != nil {
		log.Printf("[store] serialize orchestration %s: %v", o.ID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.pending[o.ID] = data
	if _, ok := s.timers[o.ID]; ok {
		return // a write is already scheduled; it will pick up this snapshot
	}

	id := o.ID
	s.timers[id] = time.AfterFunc(s.debounce, func() {
		s.flushOne(id)
	})
}

// SaveNow writes the orchestration immediately, bypassing the debounce.
func (s *Store) SaveNow(o *models.Orchestration) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("serialize orchestration %s: %w", o.ID, err)
	}
	return s.write(o.ID, data)
}

func (s *Store) flushOne(id string) {
	s.mu.Lock()
	data, ok := s.pending[id]
	delete(s.pending, id)
	delete(s.timers, id)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.write(id, data); err != nil {
		log.Printf("[store] persist orchestration %s: %v", id, err)
	}
}

func (s *Store) write(id string, data []byte) error {
	_, err := s.conn.Exec(`
		INSERT INTO orchestrations (id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET data=excluded.data, updated_at=CURRENT_TIMESTAMP
	`, id, string(data))
	if err != nil {
		return fmt.Errorf("write orchestration: %w", err)
	}
	return nil
}

// Flush writes all pending snapshots immediately.
func (s *Store) Flush() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.flushOne(id)
	}
}

// Load reads one orchestration. Any run persisted as running or retrying is
// flagged orphaned: the process behind it did not survive the restart and
// must never be treated as resumable.
func (s *Store) Load(id string) (*models.Orchestration, error) {
	var data string
	row := s.conn.QueryRow("SELECT data FROM orchestrations WHERE id = ?", id)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("read orchestration: %w", err)
	}
	return decode([]byte(data))
}

// LoadAll reads every persisted orchestration with orphan flagging applied.
func (s *Store) LoadAll() ([]*models.Orchestration, error) {
	rows, err := s.conn.Query("SELECT data FROM orchestrations ORDER BY updated_at")
	if err != nil {
		return nil, fmt.Errorf("list orchestrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Orchestration
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan orchestration: %w", err)
		}
		o, err := decode([]byte(data))
		if err != nil {
			log.Printf("[store] skip unreadable orchestration record: %v", err)
			continue
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func decode(data []byte) (*models.Orchestration, error) {
	var o models.Orchestration
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode orchestration: %w", err)
	}
	markOrphans(&o)
	return &o, nil
}

// markOrphans rewrites non-terminal run statuses from a previous process
// lifetime. A loaded "running" run has no process behind it.
func markOrphans(o *models.Orchestration) {
	for _, run := range o.SubAgents {
		switch run.Status {
		case models.RunStatusRunning, models.RunStatusRetrying, models.RunStatusErrored:
			run.Status = models.RunStatusOrphaned
		}
	}
}

// Delete removes the persisted record for an orchestration.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	delete(s.pending, id)
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if _, err := s.conn.Exec("DELETE FROM orchestrations WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete orchestration: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	s.Flush()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
