package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fundingarb/core/internal/persistence"
)

// systemSettingsRepo implements persistence.SystemSettingsRepo against
// config.system_settings, read on startup and whenever config.updated
// fires (spec §6).
type systemSettingsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewSystemSettingsRepo(db *sqlx.DB, timeout time.Duration) persistence.SystemSettingsRepo {
	return &systemSettingsRepo{db: db, timeout: timeout}
}

func (r *systemSettingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `SELECT key, value FROM config.system_settings`)
	if err != nil {
		return nil, fmt.Errorf("system_settings_repo: get all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("system_settings_repo: scan: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("system_settings_repo: rows: %w", err)
	}
	return out, nil
}

// exchangesRepo implements persistence.ExchangesRepo against
// config.exchanges.
type exchangesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewExchangesRepo(db *sqlx.DB, timeout time.Duration) persistence.ExchangesRepo {
	return &exchangesRepo{db: db, timeout: timeout}
}

func (r *exchangesRepo) List(ctx context.Context) ([]persistence.ExchangeConfigRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.ExchangeConfigRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT slug, enabled, api_type, perp_maker_fee, perp_taker_fee, has_credentials
		FROM config.exchanges
		ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("exchanges_repo: list: %w", err)
	}
	return rows, nil
}
