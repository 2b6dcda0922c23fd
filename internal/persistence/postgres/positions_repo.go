package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fundingarb/core/internal/persistence"
)

// positionsRepo implements persistence.PositionsRepo against
// positions.active and positions.legs, following the teacher's
// premove_repo.go upsert-on-conflict idiom.
type positionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPositionsRepo constructs a PostgreSQL-backed PositionsRepo.
func NewPositionsRepo(db *sqlx.DB, timeout time.Duration) persistence.PositionsRepo {
	return &positionsRepo{db: db, timeout: timeout}
}

func (r *positionsRepo) Upsert(ctx context.Context, row persistence.PositionRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO positions.active
			(id, opportunity_id, symbol, status, health_status, total_capital_deployed,
			 funding_received, funding_paid, unrealized_pnl, realized_pnl_funding,
			 realized_pnl_price, entry_costs, opened_at, closed_at, exit_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			health_status = EXCLUDED.health_status,
			total_capital_deployed = EXCLUDED.total_capital_deployed,
			funding_received = EXCLUDED.funding_received,
			funding_paid = EXCLUDED.funding_paid,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			realized_pnl_funding = EXCLUDED.realized_pnl_funding,
			realized_pnl_price = EXCLUDED.realized_pnl_price,
			closed_at = EXCLUDED.closed_at,
			exit_reason = EXCLUDED.exit_reason`

	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.OpportunityID, row.Symbol, row.Status, row.HealthStatus,
		row.TotalCapitalDeployed, row.FundingReceived, row.FundingPaid,
		row.UnrealizedPnL, row.RealizedPnLFunding, row.RealizedPnLPrice,
		row.EntryCosts, row.OpenedAt, row.ClosedAt, row.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("positions_repo: upsert: %w", err)
	}
	return nil
}

func (r *positionsRepo) UpsertLeg(ctx context.Context, row persistence.LegRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO positions.legs
			(position_id, leg_type, exchange, symbol, side, quantity, entry_price,
			 current_price, notional_value_usd, unrealized_pnl)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (position_id, leg_type) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			notional_value_usd = EXCLUDED.notional_value_usd,
			unrealized_pnl = EXCLUDED.unrealized_pnl`

	_, err := r.db.ExecContext(ctx, query,
		row.PositionID, row.LegType, row.Exchange, row.Symbol, row.Side,
		row.Quantity, row.EntryPrice, row.CurrentPrice, row.NotionalUSD, row.UnrealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("positions_repo: upsert leg: %w", err)
	}
	return nil
}

func (r *positionsRepo) Get(ctx context.Context, positionID string) (*persistence.PositionRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row persistence.PositionRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM positions.active WHERE id = $1`, positionID)
	if err != nil {
		return nil, fmt.Errorf("positions_repo: get %s: %w", positionID, err)
	}
	return &row, nil
}

func (r *positionsRepo) ListActive(ctx context.Context) ([]persistence.PositionRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.PositionRow
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM positions.active WHERE status <> 'CLOSED'`)
	if err != nil {
		return nil, fmt.Errorf("positions_repo: list active: %w", err)
	}
	return rows, nil
}

func (r *positionsRepo) ListActiveSymbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var symbols []string
	err := r.db.SelectContext(ctx, &symbols,
		`SELECT DISTINCT symbol FROM positions.active WHERE status <> 'CLOSED'`)
	if err != nil {
		return nil, fmt.Errorf("positions_repo: list active symbols: %w", err)
	}
	return symbols, nil
}
