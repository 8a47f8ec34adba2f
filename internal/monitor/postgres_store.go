package monitor

import (
	"context"
	"database/sql"
	"fmt"
)

// Compile-time assertion.
var _ Store = (*PostgresStore)(nil)

// PostgresStore persists monitored transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed monitored-transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, tx *Transaction) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	err = dbtx.QueryRowContext(ctx, `
		INSERT INTO monitored_transactions (sender, receiver, amount, risk_score, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, tx.Sender, tx.Receiver, tx.Amount, tx.RiskScore, tx.Flagged, tx.Timestamp).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if _, err := dbtx.ExecContext(ctx, `
		INSERT INTO monitored_tx_index (address, tx_id) VALUES ($1, $2)
	`, tx.Sender, tx.ID); err != nil {
		return fmt.Errorf("failed to index sender: %w", err)
	}
	if tx.Receiver != tx.Sender {
		if _, err := dbtx.ExecContext(ctx, `
			INSERT INTO monitored_tx_index (address, tx_id) VALUES ($1, $2)
		`, tx.Receiver, tx.ID); err != nil {
			return fmt.Errorf("failed to index receiver: %w", err)
		}
	}

	return dbtx.Commit()
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	var tx Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender, receiver, amount, risk_score, flagged, created_at
		FROM monitored_transactions WHERE id = $1
	`, id).Scan(&tx.ID, &tx.Sender, &tx.Receiver, &tx.Amount, &tx.RiskScore, &tx.Flagged, &tx.Timestamp)
	if err == sql.ErrNoRows {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (s *PostgresStore) IDsForAddress(ctx context.Context, address string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id FROM monitored_tx_index WHERE address = $1 ORDER BY seq
	`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query address index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tx id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, start, count int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, receiver, amount, risk_score, flagged, created_at
		FROM monitored_transactions
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, start, count)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.Sender, &tx.Receiver, &tx.Amount, &tx.RiskScore, &tx.Flagged, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, &tx)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM monitored_transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}
