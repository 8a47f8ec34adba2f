package risk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chainfolio/chainfolio/internal/validation"
)

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)

// PostgresStore persists risk ratings in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed rating store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetRating(ctx context.Context, address string) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx, `
		SELECT score FROM risk_ratings WHERE address = $1
	`, validation.NormalizeAddress(address)).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rating: %w", err)
	}
	return score, nil
}

func (s *PostgresStore) SetRating(ctx context.Context, address string, score int) error {
	if score < 0 || score > MaxRating {
		return ErrInvalidRating
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_ratings (address, score, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET score = $2, updated_at = $3
	`, validation.NormalizeAddress(address), score, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRatings(ctx context.Context, limit int) ([]*Rating, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, score, updated_at
		FROM risk_ratings
		ORDER BY score DESC, address
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.Address, &r.Score, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}
