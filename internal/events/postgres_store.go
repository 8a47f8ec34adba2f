package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)

// PostgresStore persists the event log in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event log.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e *Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO core_events (event_type, entity_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, string(e.Type), e.EntityID, e.Actor, payload, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, start, count int) ([]*Event, error) {
	return s.query(ctx, `
		SELECT id, event_type, entity_id, actor, payload, created_at
		FROM core_events
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, start, count)
}

func (s *PostgresStore) ListByType(ctx context.Context, t Type, start, count int) ([]*Event, error) {
	return s.query(ctx, `
		SELECT id, event_type, entity_id, actor, payload, created_at
		FROM core_events
		WHERE event_type = $3
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, start, count, string(t))
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Event
	for rows.Next() {
		var e Event
		var typ string
		var payload []byte
		if err := rows.Scan(&e.ID, &typ, &e.EntityID, &e.Actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = Type(typ)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
