// Package audit keeps a Postgres log of history events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/historyhub/internal/events"
)

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

type Entry struct {
	ID         uuid.UUID       `json:"id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EmittedAt  time.Time       `json:"emitted_at"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Log stores env. Replaying an envelope with a known ID is a no-op.
func (s *Service) Log(ctx context.Context, env events.Envelope) error {
	var payload []byte
	if len(env.Payload) > 0 {
		payload = env.Payload
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO history_audit (id, event, payload, emitted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		env.ID, env.Name, payload, env.EmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

type Query struct {
	Event  string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}

// List returns matching entries, newest first.
func (s *Service) List(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	query := `SELECT id, event, payload, emitted_at, recorded_at FROM history_audit WHERE TRUE`
	var args []any
	argIdx := 1

	if q.Event != "" {
		query += fmt.Sprintf(" AND event = $%d", argIdx)
		args = append(args, q.Event)
		argIdx++
	}
	if q.Since != nil {
		query += fmt.Sprintf(" AND emitted_at >= $%d", argIdx)
		args = append(args, *q.Since)
		argIdx++
	}
	if q.Until != nil {
		query += fmt.Sprintf(" AND emitted_at <= $%d", argIdx)
		args = append(args, *q.Until)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY emitted_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Event, &payload, &e.EmittedAt, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if payload != nil {
			e.Payload = payload
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
