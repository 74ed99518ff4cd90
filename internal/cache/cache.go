package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"agentdeck/internal/api"
	"agentdeck/internal/transcript"
)

// Store is a local warm-start cache: the last known session list and one
// transcript snapshot per session. It lets a view paint instantly while the
// authoritative history fetch is on the wire. The backend always wins; the
// cache is never consulted after live data lands.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_path TEXT,
			title TEXT,
			last_activity INTEGER,
			preview TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			session_id TEXT PRIMARY KEY,
			payload BLOB,
			saved_at INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init cache schema: %w", err)
		}
	}
	return nil
}

// SaveSessions replaces the cached session list with the backend's answer.
func (s *Store) SaveSessions(sessions []api.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin session cache tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sessions;`); err != nil {
		return fmt.Errorf("clear cached sessions: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sessions(id, project_path, title, last_activity, preview)
		VALUES(?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare session insert: %w", err)
	}
	defer stmt.Close()

	for _, sess := range sessions {
		if _, err := stmt.Exec(sess.ID, sess.ProjectPath, sess.Title, sess.LastActivity.Unix(), sess.Preview); err != nil {
			return fmt.Errorf("cache session %s: %w", sess.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session cache: %w", err)
	}
	return nil
}

// Sessions returns the cached list, most recently active first.
func (s *Store) Sessions() ([]api.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, COALESCE(project_path, ''), COALESCE(title, ''), COALESCE(last_activity, 0), COALESCE(preview, '')
		FROM sessions
		ORDER BY last_activity DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query cached sessions: %w", err)
	}
	defer rows.Close()

	out := make([]api.Session, 0, 32)
	for rows.Next() {
		var sess api.Session
		var ts int64
		if err := rows.Scan(&sess.ID, &sess.ProjectPath, &sess.Title, &ts, &sess.Preview); err != nil {
			return nil, fmt.Errorf("scan cached session: %w", err)
		}
		if ts > 0 {
			sess.LastActivity = time.Unix(ts, 0)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached sessions: %w", err)
	}
	return out, nil
}

// SaveTranscript stores a materialized snapshot for one session.
func (s *Store) SaveTranscript(sessionID string, entries []*transcript.Entry) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode transcript snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO transcripts(session_id, payload, saved_at)
		VALUES(?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			payload=excluded.payload,
			saved_at=excluded.saved_at
	`, sessionID, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache transcript for %s: %w", sessionID, err)
	}
	return nil
}

// Transcript loads the cached snapshot. ok is false when none exists.
func (s *Store) Transcript(sessionID string) ([]*transcript.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM transcripts WHERE session_id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached transcript for %s: %w", sessionID, err)
	}

	var entries []*transcript.Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		// A corrupt snapshot is not fatal; the history fetch replaces it.
		return nil, false, nil
	}
	return entries, true, nil
}

// Forget drops all cached state for a deleted session.
func (s *Store) Forget(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM transcripts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("forget transcript for %s: %w", sessionID, err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("forget session %s: %w", sessionID, err)
	}
	return nil
}
