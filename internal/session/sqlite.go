// Package session persists pipeline sessions: the project description,
// screenshots, the raw stage plan, and each stage's ticket set.
package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stageline-io/stageline/pkg/protocol"
)

// ErrNotFound is returned when a session id has no row.
var ErrNotFound = errors.New("session not found")

// Snapshot is the durable state of one session. The ticket map is keyed by
// stage id and holds the latest (and only) ticket set per stage.
type Snapshot struct {
	ID                 string                         `json:"id"`
	ProjectDescription string                         `json:"projectDescription"`
	Images             []protocol.ImageAttachment     `json:"images,omitempty"`
	PlanRaw            string                         `json:"steps,omitempty"`
	TicketsByStage     map[string]*protocol.TicketSet `json:"ticketsByStage,omitempty"`
	SelectedTeamID     string                         `json:"selectedTeamId,omitempty"`
	SelectedProjectID  string                         `json:"selectedProjectId,omitempty"`
	CreatedAt          time.Time                      `json:"createdAt"`
	UpdatedAt          time.Time                      `json:"updatedAt"`
}

// Store is a SQLite-backed session store.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the session database and runs migrations.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session store: open: %w", err)
	}

	// WAL for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("session store: wal: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			images      TEXT NOT NULL DEFAULT '[]',
			plan_raw    TEXT NOT NULL DEFAULT '',
			team_id     TEXT NOT NULL DEFAULT '',
			project_id  TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS session_tickets (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			stage_id   TEXT NOT NULL,
			payload    TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, stage_id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

// NewID returns a fresh session id.
func NewID() string { return uuid.NewString() }

// Save upserts the session row wholesale. Ticket sets are written through
// PutTicketSet, not here.
func (s *Store) Save(snap *Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("session store: save: empty id")
	}
	images, err := json.Marshal(snap.Images)
	if err != nil {
		return fmt.Errorf("session store: marshal images: %w", err)
	}
	now := time.Now().UTC()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, description, images, plan_raw, team_id, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description=excluded.description, images=excluded.images, plan_raw=excluded.plan_raw,
			team_id=excluded.team_id, project_id=excluded.project_id, updated_at=excluded.updated_at
	`, snap.ID, snap.ProjectDescription, string(images), snap.PlanRaw,
		snap.SelectedTeamID, snap.SelectedProjectID,
		snap.CreatedAt.Format(time.RFC3339), snap.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("session store: save: %w", err)
	}
	return nil
}

// Get loads a session and its per-stage ticket sets.
func (s *Store) Get(id string) (*Snapshot, error) {
	row := s.db.QueryRow(`SELECT id, description, images, plan_raw, team_id, project_id, created_at, updated_at FROM sessions WHERE id = ?`, id)

	var snap Snapshot
	var imagesJSON, createdAt, updatedAt string
	err := row.Scan(&snap.ID, &snap.ProjectDescription, &imagesJSON, &snap.PlanRaw,
		&snap.SelectedTeamID, &snap.SelectedProjectID, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}
	json.Unmarshal([]byte(imagesJSON), &snap.Images)
	snap.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	snap.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	sets, err := s.loadTicketSets(id)
	if err != nil {
		return nil, err
	}
	snap.TicketsByStage = sets
	return &snap, nil
}

// PutTicketSet stores the ticket set for one stage of a session, replacing
// any previous set for that stage wholesale. Regeneration never merges.
func (s *Store) PutTicketSet(sessionID, stageID string, set *protocol.TicketSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("session store: marshal ticket set: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.Exec(`
		INSERT INTO session_tickets (session_id, stage_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, stage_id) DO UPDATE SET
			payload=excluded.payload, updated_at=excluded.updated_at
	`, sessionID, stageID, string(payload), now)
	if err != nil {
		return fmt.Errorf("session store: put ticket set: %w", err)
	}
	s.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID)
	return nil
}

// List returns session headers (no images, no ticket payloads), most
// recently updated first.
func (s *Store) List() ([]*Snapshot, error) {
	rows, err := s.db.Query(`SELECT id, description, plan_raw, team_id, project_id, created_at, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("session store: list: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var snap Snapshot
		var createdAt, updatedAt string
		if err := rows.Scan(&snap.ID, &snap.ProjectDescription, &snap.PlanRaw,
			&snap.SelectedTeamID, &snap.SelectedProjectID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("session store: list scan: %w", err)
		}
		snap.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		snap.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// Delete removes a session and its ticket sets.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM session_tickets WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("session store: delete tickets: %w", err)
	}
	result, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("session store: delete: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteIdle removes sessions not updated since the cutoff and returns how
// many were removed.
func (s *Store) DeleteIdle(cutoff time.Time) (int, error) {
	mark := cutoff.UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(`DELETE FROM session_tickets WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, mark); err != nil {
		return 0, fmt.Errorf("session store: delete idle tickets: %w", err)
	}
	result, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, mark)
	if err != nil {
		return 0, fmt.Errorf("session store: delete idle: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) loadTicketSets(sessionID string) (map[string]*protocol.TicketSet, error) {
	rows, err := s.db.Query(`SELECT stage_id, payload FROM session_tickets WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session store: load ticket sets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*protocol.TicketSet)
	for rows.Next() {
		var stageID, payload string
		if err := rows.Scan(&stageID, &payload); err != nil {
			return nil, fmt.Errorf("session store: scan ticket set: %w", err)
		}
		var set protocol.TicketSet
		if err := json.Unmarshal([]byte(payload), &set); err != nil {
			return nil, fmt.Errorf("session store: decode ticket set for stage %s: %w", stageID, err)
		}
		out[stageID] = &set
	}
	return out, rows.Err()
}
