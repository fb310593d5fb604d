// Package store persists one draft aggregate per case id. The aggregate is
// written whole on every save: the durable copy is the only thing editing
// contexts share, and the last local write wins.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DraftStore is the durable state store for draft aggregates.
type DraftStore interface {
	// Load returns the stored aggregate, or nil when the case has none yet.
	Load(ctx context.Context, caseID string) (*DraftState, error)
	// Save overwrites the stored aggregate for the case.
	Save(ctx context.Context, caseID string, state *DraftState) error
	Ping(ctx context.Context) error
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context, caseID string) (*DraftState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM drafts WHERE case_id = ?`, caseID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", caseID, err)
	}

	var state DraftState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", caseID, err)
	}
	return &state, nil
}

func (s *SQLiteStore) Save(ctx context.Context, caseID string, state *DraftState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", caseID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (case_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, caseID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save draft %s: %w", caseID, err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
