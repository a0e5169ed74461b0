// internal/database/store.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/enaribe/startup-ludo/service/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("not found")

// Store persists session specs and final results.
type Store struct {
	db dbtx
}

// NewStore wraps db, usually DB.
func NewStore(db dbtx) *Store {
	return &Store{db: db}
}

// SaveSession records a created session. roomHash is the bcrypt hash of the
// room password, empty for open rooms.
func (s *Store) SaveSession(ctx context.Context, spec models.SessionSpec, roomHash string) error {
	b, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal session spec: %w", err)
	}
	var hash *string
	if roomHash != "" {
		hash = &roomHash
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO sessions (id, spec, room_hash, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET spec = EXCLUDED.spec, room_hash = EXCLUDED.room_hash`,
		spec.ID, b, hash, spec.Created)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", spec.ID, err)
	}
	return nil
}

// LoadSession returns a stored session spec and its room hash.
func (s *Store) LoadSession(ctx context.Context, id uuid.UUID) (models.SessionSpec, string, error) {
	var (
		spec models.SessionSpec
		raw  []byte
		hash *string
	)
	err := s.db.QueryRow(ctx, `SELECT spec, room_hash FROM sessions WHERE id = $1`, id).Scan(&raw, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return spec, "", fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return spec, "", fmt.Errorf("load session %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return spec, "", fmt.Errorf("decode session %s: %w", id, err)
	}
	if hash != nil {
		return spec, *hash, nil
	}
	return spec, "", nil
}

// SaveResult stores the final standings of a session.
func (s *Store) SaveResult(ctx context.Context, res models.GameResult) error {
	placements, err := json.Marshal(res.Placements)
	if err != nil {
		return fmt.Errorf("marshal placements: %w", err)
	}
	var winner *uuid.UUID
	if res.Winner != uuid.Nil {
		winner = &res.Winner
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO game_results (session_id, winner, forfeited, turns, actions, placements, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO NOTHING`,
		res.SessionID, winner, res.Forfeited, res.Turns, res.Actions, placements, res.StartedAt, res.EndedAt)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", res.SessionID, err)
	}
	return nil
}

// LoadResult returns the stored result of a finished session.
func (s *Store) LoadResult(ctx context.Context, id uuid.UUID) (models.GameResult, error) {
	res := models.GameResult{SessionID: id}
	var (
		winner *uuid.UUID
		raw    []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT winner, forfeited, turns, actions, placements, started_at, ended_at
		 FROM game_results WHERE session_id = $1`, id).
		Scan(&winner, &res.Forfeited, &res.Turns, &res.Actions, &raw, &res.StartedAt, &res.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return res, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("load result %s: %w", id, err)
	}
	if winner != nil {
		res.Winner = *winner
	}
	if err := json.Unmarshal(raw, &res.Placements); err != nil {
		return res, fmt.Errorf("decode placements %s: %w", id, err)
	}
	return res, nil
}

// RecentResults lists up to limit results, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]models.GameResult, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, winner, forfeited, turns, actions, placements, started_at, ended_at
		 FROM game_results ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []models.GameResult
	for rows.Next() {
		var (
			res    models.GameResult
			winner *uuid.UUID
			raw    []byte
		)
		if err := rows.Scan(&res.SessionID, &winner, &res.Forfeited, &res.Turns, &res.Actions, &raw, &res.StartedAt, &res.EndedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if winner != nil {
			res.Winner = *winner
		}
		if err := json.Unmarshal(raw, &res.Placements); err != nil {
			return nil, fmt.Errorf("decode placements %s: %w", res.SessionID, err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
