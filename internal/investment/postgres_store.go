package investment

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

// NewPostgresStore creates a new PostgreSQL-backed investment store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateStrategy(ctx context.Context, s *Strategy) error {
	return p.db.QueryRowContext(ctx, `
		INSERT INTO strategies (name, description, protocol, asset_id, expected_apy_bps, risk_level,
			lock_period_secs, min_investment, max_investment, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10, $11, $12)
		RETURNING id
	`, s.Name, s.Description, s.Protocol, s.AssetID, s.ExpectedAPYBps, s.RiskLevel,
		s.LockPeriodSecs, s.MinInvestment, s.MaxInvestment, s.IsActive, s.CreatedAt, s.UpdatedAt).Scan(&s.ID)
}

func (p *PostgresStore) GetStrategy(ctx context.Context, id int64) (*Strategy, error) {
	s := &Strategy{}
	var description sql.NullString

	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, description, protocol, asset_id, expected_apy_bps, risk_level,
			lock_period_secs, min_investment::TEXT, max_investment::TEXT, is_active, created_at, updated_at
		FROM strategies WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &description, &s.Protocol, &s.AssetID, &s.ExpectedAPYBps, &s.RiskLevel,
		&s.LockPeriodSecs, &s.MinInvestment, &s.MaxInvestment, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Description = description.String
	return s, nil
}

func (p *PostgresStore) UpdateStrategy(ctx context.Context, s *Strategy) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE strategies SET
			name = $2, description = $3, protocol = $4, asset_id = $5, expected_apy_bps = $6,
			risk_level = $7, lock_period_secs = $8, min_investment = $9::NUMERIC,
			max_investment = $10::NUMERIC, is_active = $11, updated_at = $12
		WHERE id = $1
	`, s.ID, s.Name, s.Description, s.Protocol, s.AssetID, s.ExpectedAPYBps,
		s.RiskLevel, s.LockPeriodSecs, s.MinInvestment, s.MaxInvestment, s.IsActive, s.UpdatedAt)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStrategyNotFound
	}
	return nil
}

func (p *PostgresStore) ListStrategies(ctx context.Context, activeOnly bool, start, count int) ([]*Strategy, error) {
	query := `
		SELECT id, name, description, protocol, asset_id, expected_apy_bps, risk_level,
			lock_period_secs, min_investment::TEXT, max_investment::TEXT, is_active, created_at, updated_at
		FROM strategies`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id ASC LIMIT $1 OFFSET $2`

	rows, err := p.db.QueryContext(ctx, query, count, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Strategy
	for rows.Next() {
		s := &Strategy{}
		var description sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &description, &s.Protocol, &s.AssetID, &s.ExpectedAPYBps, &s.RiskLevel,
			&s.LockPeriodSecs, &s.MinInvestment, &s.MaxInvestment, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Description = description.String
		result = append(result, s)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CreateInvestment(ctx context.Context, inv *Investment) error {
	return p.db.QueryRowContext(ctx, `
		INSERT INTO investments (investor_address, strategy_id, principal, initial_value, current_value,
			is_active, start_time)
		VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7)
		RETURNING id
	`, inv.Investor, inv.StrategyID, inv.Principal, inv.InitialValue, inv.CurrentValue,
		inv.IsActive, inv.StartTime).Scan(&inv.ID)
}

func (p *PostgresStore) GetInvestment(ctx context.Context, id int64) (*Investment, error) {
	inv := &Investment{}
	var endTime sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT id, investor_address, strategy_id, principal::TEXT, initial_value::TEXT, current_value::TEXT,
			is_active, start_time, end_time
		FROM investments WHERE id = $1
	`, id).Scan(&inv.ID, &inv.Investor, &inv.StrategyID, &inv.Principal, &inv.InitialValue, &inv.CurrentValue,
		&inv.IsActive, &inv.StartTime, &endTime)

	if err == sql.ErrNoRows {
		return nil, ErrInvestmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		inv.EndTime = &t
	}
	return inv, nil
}

func (p *PostgresStore) UpdateInvestment(ctx context.Context, inv *Investment) error {
	var endTime interface{}
	if inv.EndTime != nil {
		endTime = *inv.EndTime
	}

	result, err := p.db.ExecContext(ctx, `
		UPDATE investments SET
			initial_value = $2::NUMERIC, current_value = $3::NUMERIC, is_active = $4, end_time = $5
		WHERE id = $1
	`, inv.ID, inv.InitialValue, inv.CurrentValue, inv.IsActive, endTime)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvestmentNotFound
	}
	return nil
}

func (p *PostgresStore) InvestmentIDsForInvestor(ctx context.Context, investor string) ([]int64, error) {
	return p.scanIDs(ctx, `
		SELECT id FROM investments WHERE investor_address = $1 ORDER BY id ASC
	`, investor)
}

func (p *PostgresStore) AppendYieldClaim(ctx context.Context, claim *YieldClaim) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO yield_claims (investment_id, investor_address, amount, created_at)
		VALUES ($1, $2, $3::NUMERIC, $4)
		RETURNING id
	`, claim.InvestmentID, claim.Investor, claim.Amount, claim.CreatedAt).Scan(&claim.ID)
	if err != nil {
		return fmt.Errorf("failed to append yield claim: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListYieldClaims(ctx context.Context, investmentID int64) ([]*YieldClaim, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, investment_id, investor_address, amount::TEXT, created_at
		FROM yield_claims
		WHERE investment_id = $1
		ORDER BY id ASC
	`, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*YieldClaim
	for rows.Next() {
		c := &YieldClaim{}
		if err := rows.Scan(&c.ID, &c.InvestmentID, &c.Investor, &c.Amount, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (p *PostgresStore) YieldClaimIDsForInvestor(ctx context.Context, investor string) ([]int64, error) {
	return p.scanIDs(ctx, `
		SELECT id FROM yield_claims WHERE investor_address = $1 ORDER BY id ASC
	`, investor)
}

func (p *PostgresStore) scanIDs(ctx context.Context, query, arg string) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
