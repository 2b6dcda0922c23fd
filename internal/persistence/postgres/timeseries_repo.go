package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fundingarb/core/internal/persistence"
)

// spreadSnapshotsRepo implements persistence.SpreadSnapshotsRepo against
// positions.spread_snapshots, appended once per health-monitor tick
// (spec §4.5, "Persistence").
type spreadSnapshotsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewSpreadSnapshotsRepo(db *sqlx.DB, timeout time.Duration) persistence.SpreadSnapshotsRepo {
	return &spreadSnapshotsRepo{db: db, timeout: timeout}
}

func (r *spreadSnapshotsRepo) Append(ctx context.Context, row persistence.SpreadSnapshotRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions.spread_snapshots (position_id, spread, long_rate, short_rate, price, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		row.PositionID, row.Spread, row.LongRate, row.ShortRate, row.Price, row.Timestamp)
	if err != nil {
		return fmt.Errorf("spread_snapshots_repo: append: %w", err)
	}
	return nil
}

func (r *spreadSnapshotsRepo) ListByPosition(ctx context.Context, positionID string, tr persistence.TimeRange) ([]persistence.SpreadSnapshotRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.SpreadSnapshotRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT position_id, spread, long_rate, short_rate, price, timestamp
		FROM positions.spread_snapshots
		WHERE position_id = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp ASC`, positionID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("spread_snapshots_repo: list: %w", err)
	}
	return rows, nil
}

// fundingPaymentsRepo implements persistence.FundingPaymentsRepo against
// positions.funding_payments, appended once per accrued interval by the
// funding tracker loop (spec §4.5).
type fundingPaymentsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewFundingPaymentsRepo(db *sqlx.DB, timeout time.Duration) persistence.FundingPaymentsRepo {
	return &fundingPaymentsRepo{db: db, timeout: timeout}
}

func (r *fundingPaymentsRepo) Append(ctx context.Context, row persistence.FundingPaymentRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO positions.funding_payments
			(position_id, leg_id, exchange, symbol, funding_rate, payment_amount, position_size, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		row.PositionID, row.LegID, row.Exchange, row.Symbol, row.FundingRate,
		row.PaymentAmount, row.PositionSize, row.Timestamp)
	if err != nil {
		return fmt.Errorf("funding_payments_repo: append: %w", err)
	}
	return nil
}

func (r *fundingPaymentsRepo) ListByPosition(ctx context.Context, positionID string) ([]persistence.FundingPaymentRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.FundingPaymentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT position_id, leg_id, exchange, symbol, funding_rate, payment_amount, position_size, timestamp
		FROM positions.funding_payments
		WHERE position_id = $1
		ORDER BY timestamp ASC`, positionID)
	if err != nil {
		return nil, fmt.Errorf("funding_payments_repo: list: %w", err)
	}
	return rows, nil
}
