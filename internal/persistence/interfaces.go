// Package persistence defines the nine relations named in spec §6 as
// repository interfaces, following the teacher's internal/persistence
// repository-per-relation shape (TradesRepo, RegimeRepo, PremoveRepo).
// The persistent store itself is out of the core's scope (spec §1); this
// package only names the contract the core depends on.
package persistence

import (
	"context"
	"time"
)

// TimeRange bounds a time-series query.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// PositionRow mirrors positions.active.
type PositionRow struct {
	ID                   string
	OpportunityID        string
	Symbol               string
	Status               string
	HealthStatus         string
	TotalCapitalDeployed string // decimal, transported as string at the store boundary
	FundingReceived      string
	FundingPaid          string
	UnrealizedPnL        string
	RealizedPnLFunding   string
	RealizedPnLPrice     string
	EntryCosts           string
	OpenedAt             time.Time
	ClosedAt             *time.Time
	ExitReason           string
}

// LegRow mirrors positions.legs.
type LegRow struct {
	PositionID    string
	LegType       string // "long" | "short"
	Exchange      string
	Symbol        string
	Side          string
	Quantity      float64
	EntryPrice    string
	CurrentPrice  string
	NotionalUSD   string
	UnrealizedPnL string
}

// SpreadSnapshotRow mirrors positions.spread_snapshots.
type SpreadSnapshotRow struct {
	PositionID string
	Spread     string
	LongRate   string
	ShortRate  string
	Price      string
	Timestamp  time.Time
}

// FundingPaymentRow mirrors positions.funding_payments.
type FundingPaymentRow struct {
	PositionID    string
	LegID         string
	Exchange      string
	Symbol        string
	FundingRate   string
	PaymentAmount string
	PositionSize  string
	Timestamp     time.Time
}

// InteractionRow mirrors positions.interactions — the audit narrative for
// every health transition, funding payment, rebalance, exit trigger and
// close, per spec §4.5's "Interaction timeline".
type InteractionRow struct {
	PositionID      string
	OpportunityID   string
	Symbol          string
	Timestamp       time.Time
	InteractionType string
	Decision        string
	Narrative       string
	Metrics         map[string]interface{}
}

// AutoUnwindEventRow mirrors capital.auto_unwind_events.
type AutoUnwindEventRow struct {
	AllocationID  string
	PositionID    string
	Symbol        string
	Reason        string
	WeaknessScore float64
	CoinsBefore   int
	MaxCoins      int
}

// ExecutionEventRow mirrors audit.execution_events.
type ExecutionEventRow struct {
	EventType     string
	Service       string
	OpportunityID string
	PositionID    string
	AllocationID  string
	Exchange      string
	Symbol        string
	OrderID       string
	Side          string
	Quantity      float64
	Price         string
	Details       map[string]interface{}
	Level         string
	Message       string
	Timestamp     time.Time
}

// ExchangeConfigRow mirrors config.exchanges.
type ExchangeConfigRow struct {
	Slug           string
	Enabled        bool
	APIType        string
	PerpMakerFee   float64
	PerpTakerFee   float64
	HasCredentials bool
}

// PositionsRepo persists the positions.active and positions.legs
// relations; exclusively written by the Position Manager (except the
// order-linkage fields the Execution Coordinator writes on the legs row,
// per spec §3's ownership rule).
type PositionsRepo interface {
	Upsert(ctx context.Context, row PositionRow) error
	UpsertLeg(ctx context.Context, row LegRow) error
	Get(ctx context.Context, positionID string) (*PositionRow, error)
	ListActive(ctx context.Context) ([]PositionRow, error)
	ListActiveSymbols(ctx context.Context) ([]string, error)
}

// SpreadSnapshotsRepo persists positions.spread_snapshots.
type SpreadSnapshotsRepo interface {
	Append(ctx context.Context, row SpreadSnapshotRow) error
	ListByPosition(ctx context.Context, positionID string, tr TimeRange) ([]SpreadSnapshotRow, error)
}

// FundingPaymentsRepo persists positions.funding_payments.
type FundingPaymentsRepo interface {
	Append(ctx context.Context, row FundingPaymentRow) error
	ListByPosition(ctx context.Context, positionID string) ([]FundingPaymentRow, error)
}

// InteractionsRepo persists positions.interactions.
type InteractionsRepo interface {
	Append(ctx context.Context, row InteractionRow) error
	ListByPosition(ctx context.Context, positionID string, limit int) ([]InteractionRow, error)
}

// AutoUnwindRepo persists capital.auto_unwind_events.
type AutoUnwindRepo interface {
	Append(ctx context.Context, row AutoUnwindEventRow) error
}

// ExecutionAuditRepo persists audit.execution_events.
type ExecutionAuditRepo interface {
	Append(ctx context.Context, row ExecutionEventRow) error
}

// SystemSettingsRepo reads config.system_settings, read on startup and on
// config.updated per spec §6.
type SystemSettingsRepo interface {
	GetAll(ctx context.Context) (map[string]string, error)
}

// ExchangesRepo reads config.exchanges.
type ExchangesRepo interface {
	List(ctx context.Context) ([]ExchangeConfigRow, error)
}
