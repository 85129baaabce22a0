// Package store persists sessions, conversation history, revision
// counters, and credentials in a local SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"archon/internal/config"
	"archon/internal/conversation"
	"archon/internal/logging"
)

// DefaultHistoryLimit is the number of most-recent entries kept per
// session when no explicit cap is configured.
const DefaultHistoryLimit = 5

// SessionInfo summarizes one stored session for listing.
type SessionInfo struct {
	ID           string
	StartedAt    time.Time
	MessageCount int
}

// LocalStore is the SQLite-backed persistence layer. A single
// connection guarded by a mutex keeps writes serialized; WAL mode keeps
// reads cheap.
type LocalStore struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	historyLimit int
	validator    *config.Validator
}

// NewLocalStore opens (or creates) the database at path. historyLimit
// caps how many recent conversation entries are kept per session; zero
// or negative means DefaultHistoryLimit.
func NewLocalStore(path string, historyLimit int) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Store("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Store("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Store("failed to set synchronous=NORMAL: %v", err)
	}

	s := &LocalStore{
		db:           db,
		dbPath:       path,
		historyLimit: historyLimit,
		validator:    config.NewValidator(nil),
	}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("LocalStore ready at %s (history limit %d)", path, historyLimit)
	return s, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			revision_count INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			kind TEXT NOT NULL,
			marker TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE(session_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			provider TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveHistory replaces the stored conversation for the session with the
// most recent entries of msgs, capped to the history limit. Saving a
// previously loaded history is a no-op change when the stored count is
// already within the cap.
func (s *LocalStore) SaveHistory(sessionID string, msgs []conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msgs) > s.historyLimit {
		msgs = msgs[len(msgs)-s.historyLimit:]
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO sessions (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, sessionID,
	); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO messages (session_id, position, kind, marker, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		if _, err := stmt.Exec(sessionID, i, m.Kind.String(), m.Marker.String(), m.Text, m.Time.UTC()); err != nil {
			return fmt.Errorf("save history entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	logging.Store("saved %d history entries for session %s", len(msgs), sessionID)
	return nil
}

// LoadHistory returns the stored conversation for the session in
// chronological order. A session with no stored history yields an empty
// slice, not an error.
func (s *LocalStore) LoadHistory(sessionID string) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT kind, marker, text, created_at FROM messages
		 WHERE session_id = ? ORDER BY position ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var msgs []conversation.Message
	for rows.Next() {
		var kindStr, markerStr, text string
		var created time.Time
		if err := rows.Scan(&kindStr, &markerStr, &text, &created); err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		kind, ok := conversation.ParseKind(kindStr)
		if !ok {
			logging.StoreError("session %s: unknown kind %q, skipping entry", sessionID, kindStr)
			continue
		}
		msgs = append(msgs, conversation.Message{
			Kind:   kind,
			Marker: conversation.ParseMarker(markerStr),
			Text:   text,
			Time:   created,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	logging.Store("loaded %d history entries for session %s", len(msgs), sessionID)
	return msgs, nil
}

// SaveRevisionCount persists the session's revision counter.
func (s *LocalStore) SaveRevisionCount(sessionID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 1 {
		n = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, revision_count) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET revision_count = excluded.revision_count`,
		sessionID, n,
	)
	if err != nil {
		return fmt.Errorf("save revision count: %w", err)
	}
	return nil
}

// LoadRevisionCount returns the session's revision counter, or 1 when
// the session has no stored counter.
func (s *LocalStore) LoadRevisionCount(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT revision_count FROM sessions WHERE id = ?`, sessionID,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load revision count: %w", err)
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

// SaveCredentials stores provider credentials. Every value is validated
// against its provider's format rule first; one bad value rejects the
// whole batch.
func (s *LocalStore) SaveCredentials(creds map[config.Provider]string) error {
	for p, key := range creds {
		if err := s.validator.Validate(p, key); err != nil {
			return fmt.Errorf("credential for %s: %w", p, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	defer tx.Rollback()

	for p, key := range creds {
		if _, err := tx.Exec(
			`INSERT INTO credentials (provider, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(provider) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			string(p), key,
		); err != nil {
			return fmt.Errorf("save credential for %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	logging.Store("saved %d credentials", len(creds))
	return nil
}

// LoadCredentials returns all stored credentials. A stored value that
// no longer passes its format rule is reported as an error rather than
// silently returned.
func (s *LocalStore) LoadCredentials() (map[config.Provider]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT provider, value FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	creds := make(map[config.Provider]string)
	for rows.Next() {
		var provider, value string
		if err := rows.Scan(&provider, &value); err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		p := config.Provider(provider)
		if err := s.validator.Validate(p, value); err != nil {
			return nil, fmt.Errorf("stored credential for %s: %w", p, err)
		}
		creds[p] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return creds, nil
}

// Sessions lists stored sessions, most recent first.
func (s *LocalStore) Sessions() ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT s.id, s.started_at, COUNT(m.id)
		 FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		 GROUP BY s.id ORDER BY s.started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.StartedAt, &info.MessageCount); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return infos, nil
}
