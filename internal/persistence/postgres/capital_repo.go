package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fundingarb/core/internal/persistence"
)

// autoUnwindRepo implements persistence.AutoUnwindRepo against
// capital.auto_unwind_events, the audit row spec §4.3 requires for every
// coin-cap enforcement closure.
type autoUnwindRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewAutoUnwindRepo(db *sqlx.DB, timeout time.Duration) persistence.AutoUnwindRepo {
	return &autoUnwindRepo{db: db, timeout: timeout}
}

func (r *autoUnwindRepo) Append(ctx context.Context, row persistence.AutoUnwindEventRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO capital.auto_unwind_events
			(allocation_id, position_id, symbol, reason, weakness_score, coins_before, max_coins)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := r.db.ExecContext(ctx, query,
		row.AllocationID, row.PositionID, row.Symbol, row.Reason,
		row.WeaknessScore, row.CoinsBefore, row.MaxCoins,
	)
	if err != nil {
		return fmt.Errorf("auto_unwind_repo: append: %w", err)
	}
	return nil
}

// executionAuditRepo implements persistence.ExecutionAuditRepo against
// audit.execution_events.
type executionAuditRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewExecutionAuditRepo(db *sqlx.DB, timeout time.Duration) persistence.ExecutionAuditRepo {
	return &executionAuditRepo{db: db, timeout: timeout}
}

func (r *executionAuditRepo) Append(ctx context.Context, row persistence.ExecutionEventRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO audit.execution_events
			(event_type, service, opportunity_id, position_id, allocation_id, exchange,
			 symbol, order_id, side, quantity, price, level, message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := r.db.ExecContext(ctx, query,
		row.EventType, row.Service, row.OpportunityID, row.PositionID, row.AllocationID,
		row.Exchange, row.Symbol, row.OrderID, row.Side, row.Quantity, row.Price,
		row.Level, row.Message, row.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("execution_audit_repo: append: %w", err)
	}
	return nil
}
