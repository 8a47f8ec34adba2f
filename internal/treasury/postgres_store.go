package treasury

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed treasury store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, address string) (*Balance, error) {
	bal := &Balance{Address: address}

	err := p.db.QueryRowContext(ctx, `
		SELECT available::TEXT, total_in::TEXT, total_out::TEXT, updated_at
		FROM treasury_balances WHERE address = $1
	`, address).Scan(&bal.Available, &bal.TotalIn, &bal.TotalOut, &bal.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Balance{
			Address:   address,
			Available: "0",
			TotalIn:   "0",
			TotalOut:  "0",
			UpdatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

func (p *PostgresStore) Credit(ctx context.Context, address string, amount *big.Int, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := creditTx(ctx, tx, address, amount, "", reference, KindCredit); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Debit(ctx context.Context, address string, amount *big.Int, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := debitTx(ctx, tx, address, amount, "", reference, KindDebit); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Transfer(ctx context.Context, from, to string, amount *big.Int, reference string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := debitTx(ctx, tx, from, amount, to, reference, KindTransferOut); err != nil {
		return err
	}
	if err := creditTx(ctx, tx, to, amount, from, reference, KindTransferIn); err != nil {
		return err
	}
	return tx.Commit()
}

func creditTx(ctx context.Context, tx *sql.Tx, address string, amount *big.Int, counterparty, reference, kind string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO treasury_balances (address, available, total_in, updated_at)
		VALUES ($1, $2::NUMERIC, $2::NUMERIC, NOW())
		ON CONFLICT (address) DO UPDATE SET
			available  = treasury_balances.available + $2::NUMERIC,
			total_in   = treasury_balances.total_in  + $2::NUMERIC,
			updated_at = NOW()
	`, address, amount.String())
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return appendEntryTx(ctx, tx, address, amount, counterparty, reference, kind)
}

func debitTx(ctx context.Context, tx *sql.Tx, address string, amount *big.Int, counterparty, reference, kind string) error {
	// Row lock holds the balance steady until commit; the CHECK constraint
	// on available >= 0 is the last line against overdraft.
	var available string
	err := tx.QueryRowContext(ctx, `
		SELECT available::TEXT FROM treasury_balances
		WHERE address = $1 FOR UPDATE
	`, address).Scan(&available)
	if err == sql.ErrNoRows {
		return ErrInsufficientBalance
	}
	if err != nil {
		return err
	}

	availBig, ok := new(big.Int).SetString(available, 10)
	if !ok || availBig.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE treasury_balances SET
			available  = available - $2::NUMERIC,
			total_out  = total_out + $2::NUMERIC,
			updated_at = NOW()
		WHERE address = $1
	`, address, amount.String())
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return appendEntryTx(ctx, tx, address, amount, counterparty, reference, kind)
}

func appendEntryTx(ctx context.Context, tx *sql.Tx, address string, amount *big.Int, counterparty, reference, kind string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO treasury_entries (address, kind, amount, counterparty, reference, created_at)
		VALUES ($1, $2, $3::NUMERIC, NULLIF($4, ''), NULLIF($5, ''), NOW())
	`, address, kind, amount.String(), counterparty, reference)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) History(ctx context.Context, address string, start, count int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, address, kind, amount::TEXT, COALESCE(counterparty, ''), COALESCE(reference, ''), created_at
		FROM treasury_entries
		WHERE address = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, address, count, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (p *PostgresStore) Entries(ctx context.Context, address string) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, address, kind, amount::TEXT, COALESCE(counterparty, ''), COALESCE(reference, ''), created_at
		FROM treasury_entries
		WHERE address = $1
		ORDER BY id ASC
	`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Address, &e.Kind, &e.Amount, &e.Counterparty, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
