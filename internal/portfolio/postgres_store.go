package portfolio

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed portfolio store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreatePortfolio(ctx context.Context, pf *Portfolio) error {
	return p.db.QueryRowContext(ctx, `
		INSERT INTO portfolios (owner_address, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, pf.Owner, pf.Name, pf.Description, pf.IsActive, pf.CreatedAt, pf.UpdatedAt).Scan(&pf.ID)
}

func (p *PostgresStore) GetPortfolio(ctx context.Context, id int64) (*Portfolio, error) {
	pf := &Portfolio{}
	var description sql.NullString
	var lastRebalance sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT id, owner_address, name, description, is_active, created_at, updated_at, last_rebalance_at
		FROM portfolios WHERE id = $1
	`, id).Scan(&pf.ID, &pf.Owner, &pf.Name, &description, &pf.IsActive, &pf.CreatedAt, &pf.UpdatedAt, &lastRebalance)

	if err == sql.ErrNoRows {
		return nil, ErrPortfolioNotFound
	}
	if err != nil {
		return nil, err
	}
	pf.Description = description.String
	if lastRebalance.Valid {
		t := lastRebalance.Time
		pf.LastRebalance = &t
	}
	return pf, nil
}

func (p *PostgresStore) UpdatePortfolio(ctx context.Context, pf *Portfolio) error {
	var lastRebalance interface{}
	if pf.LastRebalance != nil {
		lastRebalance = *pf.LastRebalance
	}

	result, err := p.db.ExecContext(ctx, `
		UPDATE portfolios SET
			name = $2, description = $3, is_active = $4, updated_at = $5, last_rebalance_at = $6
		WHERE id = $1
	`, pf.ID, pf.Name, pf.Description, pf.IsActive, pf.UpdatedAt, lastRebalance)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPortfolioNotFound
	}
	return nil
}

func (p *PostgresStore) ListPortfolios(ctx context.Context, start, count int) ([]*Portfolio, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_address, name, description, is_active, created_at, updated_at, last_rebalance_at
		FROM portfolios
		ORDER BY id ASC
		LIMIT $1 OFFSET $2
	`, count, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPortfolios(rows)
}

func (p *PostgresStore) ListPortfoliosByOwner(ctx context.Context, owner string) ([]*Portfolio, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_address, name, description, is_active, created_at, updated_at, last_rebalance_at
		FROM portfolios
		WHERE owner_address = $1
		ORDER BY id ASC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPortfolios(rows)
}

func scanPortfolios(rows *sql.Rows) ([]*Portfolio, error) {
	var result []*Portfolio
	for rows.Next() {
		pf := &Portfolio{}
		var description sql.NullString
		var lastRebalance sql.NullTime
		if err := rows.Scan(&pf.ID, &pf.Owner, &pf.Name, &description, &pf.IsActive, &pf.CreatedAt, &pf.UpdatedAt, &lastRebalance); err != nil {
			return nil, err
		}
		pf.Description = description.String
		if lastRebalance.Valid {
			t := lastRebalance.Time
			pf.LastRebalance = &t
		}
		result = append(result, pf)
	}
	return result, rows.Err()
}

func (p *PostgresStore) SaveAsset(ctx context.Context, a *AssetAllocation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO asset_allocations (portfolio_id, token_id, symbol, target_bps, current_bps, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (portfolio_id, token_id) DO UPDATE SET
			symbol = $3, target_bps = $4, current_bps = $5, is_active = $6, updated_at = $7
	`, a.PortfolioID, a.TokenID, a.Symbol, a.TargetBps, a.CurrentBps, a.IsActive, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetAsset(ctx context.Context, portfolioID int64, tokenID string) (*AssetAllocation, error) {
	a := &AssetAllocation{}
	err := p.db.QueryRowContext(ctx, `
		SELECT portfolio_id, token_id, symbol, target_bps, current_bps, is_active, updated_at
		FROM asset_allocations
		WHERE portfolio_id = $1 AND token_id = $2
	`, portfolioID, tokenID).Scan(&a.PortfolioID, &a.TokenID, &a.Symbol, &a.TargetBps, &a.CurrentBps, &a.IsActive, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresStore) ListAssets(ctx context.Context, portfolioID int64) ([]*AssetAllocation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT portfolio_id, token_id, symbol, target_bps, current_bps, is_active, updated_at
		FROM asset_allocations
		WHERE portfolio_id = $1
		ORDER BY created_at ASC, token_id ASC
	`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*AssetAllocation
	for rows.Next() {
		a := &AssetAllocation{}
		if err := rows.Scan(&a.PortfolioID, &a.TokenID, &a.Symbol, &a.TargetBps, &a.CurrentBps, &a.IsActive, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (p *PostgresStore) AppendTransactions(ctx context.Context, txs []*Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range txs {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO portfolio_transactions (portfolio_id, token_id, symbol, amount, price, side, kind, created_at)
			VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)
			RETURNING id
		`, t.PortfolioID, t.TokenID, t.Symbol, t.Amount, t.Price, t.Side, t.Kind, t.Timestamp).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) ListTransactions(ctx context.Context, portfolioID int64, start, count int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, portfolio_id, token_id, symbol, amount::TEXT, price::TEXT, side, kind, created_at
		FROM portfolio_transactions
		WHERE portfolio_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, portfolioID, count, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		t := &Transaction{}
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.TokenID, &t.Symbol, &t.Amount, &t.Price, &t.Side, &t.Kind, &t.Timestamp); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CountTransactions(ctx context.Context, portfolioID int64) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM portfolio_transactions WHERE portfolio_id = $1
	`, portfolioID).Scan(&count)
	return count, err
}

func (p *PostgresStore) AddManager(ctx context.Context, portfolioID int64, address string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO portfolio_managers (portfolio_id, manager_address, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`, portfolioID, address)
	return err
}

func (p *PostgresStore) RemoveManager(ctx context.Context, portfolioID int64, address string) error {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM portfolio_managers WHERE portfolio_id = $1 AND manager_address = $2
	`, portfolioID, address)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrManagerNotFound
	}
	return nil
}

func (p *PostgresStore) ListManagers(ctx context.Context, portfolioID int64) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT manager_address FROM portfolio_managers
		WHERE portfolio_id = $1
		ORDER BY created_at ASC
	`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		result = append(result, addr)
	}
	return result, rows.Err()
}

func (p *PostgresStore) IsManager(ctx context.Context, portfolioID int64, address string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM portfolio_managers WHERE portfolio_id = $1 AND manager_address = $2
		)
	`, portfolioID, address).Scan(&exists)
	return exists, err
}
