package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fundingarb/core/internal/persistence"
)

// interactionsRepo implements persistence.InteractionsRepo against
// positions.interactions, the audit trail spec §4.5 requires for every
// position-lifecycle decision.
type interactionsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewInteractionsRepo(db *sqlx.DB, timeout time.Duration) persistence.InteractionsRepo {
	return &interactionsRepo{db: db, timeout: timeout}
}

func (r *interactionsRepo) Append(ctx context.Context, row persistence.InteractionRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	metricsJSON, err := json.Marshal(row.Metrics)
	if err != nil {
		return fmt.Errorf("interactions_repo: marshal metrics: %w", err)
	}

	query := `
		INSERT INTO positions.interactions
			(position_id, opportunity_id, symbol, timestamp, interaction_type, decision, narrative, metrics)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = r.db.ExecContext(ctx, query,
		row.PositionID, row.OpportunityID, row.Symbol, row.Timestamp,
		row.InteractionType, row.Decision, row.Narrative, metricsJSON,
	)
	if err != nil {
		return fmt.Errorf("interactions_repo: append: %w", err)
	}
	return nil
}

func (r *interactionsRepo) ListByPosition(ctx context.Context, positionID string, limit int) ([]persistence.InteractionRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type scanRow struct {
		persistence.InteractionRow
		MetricsJSON []byte `db:"metrics"`
	}
	var scanned []scanRow
	err := r.db.SelectContext(ctx, &scanned, `
		SELECT position_id, opportunity_id, symbol, timestamp, interaction_type, decision, narrative, metrics
		FROM positions.interactions
		WHERE position_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, positionID, limit)
	if err != nil {
		return nil, fmt.Errorf("interactions_repo: list: %w", err)
	}

	out := make([]persistence.InteractionRow, 0, len(scanned))
	for _, s := range scanned {
		row := s.InteractionRow
		if len(s.MetricsJSON) > 0 {
			_ = json.Unmarshal(s.MetricsJSON, &row.Metrics)
		}
		out = append(out, row)
	}
	return out, nil
}
