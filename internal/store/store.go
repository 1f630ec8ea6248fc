// Package store persists the small amount of durable client-side state:
// the auth token, the last fetched user profile, and a local mirror of the
// conversation summary list. The mirror seeds the sidebar instantly on
// startup before the first remote history load replaces it.
//
// Conversation content itself is persisted server-side and is never stored
// here.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nhahub/NHA-065/internal/api"
	"github.com/nhahub/NHA-065/internal/history"
)

// ErrNoProfile is returned when no profile has been cached yet.
var ErrNoProfile = errors.New("no cached profile")

// Store is a sqlite-backed local state store. Safe for use from a single
// process; the database file is opened exclusively for the client's lifetime.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path, creating parent directories as
// needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS auth (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload TEXT NOT NULL,
			fetched_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_summaries (
			conversation_id TEXT PRIMARY KEY,
			preview TEXT,
			last_updated INTEGER,
			message_count INTEGER,
			position INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Token returns the persisted auth token, or "" when none is stored.
// Absence of a token is not an error: the client degrades to anonymous calls.
func (s *Store) Token() string {
	var token string
	err := s.db.QueryRow(`SELECT token FROM auth WHERE id = 1`).Scan(&token)
	if err != nil {
		return ""
	}
	return token
}

// SetToken stores the auth token, replacing any previous one. An empty token
// clears the stored credential.
func (s *Store) SetToken(token string) error {
	if token == "" {
		_, err := s.db.Exec(`DELETE FROM auth WHERE id = 1`)
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO auth (id, token, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		token, time.Now().Unix(),
	)
	return err
}

// CachedProfile returns the last fetched profile and when it was fetched.
// Returns ErrNoProfile when nothing has been cached.
func (s *Store) CachedProfile() (*api.Profile, time.Time, error) {
	var payload string
	var fetchedAt int64
	err := s.db.QueryRow(`SELECT payload, fetched_at FROM profile WHERE id = 1`).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoProfile
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read cached profile: %w", err)
	}

	var p api.Profile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode cached profile: %w", err)
	}
	return &p, time.Unix(fetchedAt, 0), nil
}

// SaveProfile caches the profile locally so the plan line renders before the
// first remote fetch completes.
func (s *Store) SaveProfile(p *api.Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO profile (id, payload, fetched_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		string(payload), time.Now().Unix(),
	)
	return err
}

// CachedSummaries returns the locally mirrored conversation summary list in
// its stored order.
func (s *Store) CachedSummaries() ([]history.Summary, error) {
	rows, err := s.db.Query(
		`SELECT conversation_id, preview, last_updated, message_count
		 FROM conversation_summaries ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("read cached summaries: %w", err)
	}
	defer rows.Close()

	var out []history.Summary
	for rows.Next() {
		var sm history.Summary
		var updated int64
		if err := rows.Scan(&sm.ConversationID, &sm.Preview, &updated, &sm.MessageCount); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sm.LastUpdated = time.Unix(updated, 0)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// SaveSummaries replaces the local mirror with the given list, preserving
// its order.
func (s *Store) SaveSummaries(summaries []history.Summary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin summaries tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM conversation_summaries`); err != nil {
		return fmt.Errorf("clear summaries: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO conversation_summaries
		 (conversation_id, preview, last_updated, message_count, position)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare summary insert: %w", err)
	}
	defer stmt.Close()

	for i, sm := range summaries {
		if _, err := stmt.Exec(sm.ConversationID, sm.Preview, sm.LastUpdated.Unix(), sm.MessageCount, i); err != nil {
			return fmt.Errorf("insert summary %s: %w", sm.ConversationID, err)
		}
	}
	return tx.Commit()
}
