package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhankosh/backend/internal/models"
)

var (
	// ErrInvestmentNotFound indicates the requested investment does not exist.
	ErrInvestmentNotFound = fmt.Errorf("investment not found")
	// ErrGoalNotFound indicates the requested goal does not exist.
	ErrGoalNotFound = fmt.Errorf("goal not found")
	// ErrSnapshotNotFound indicates no snapshot exists for the owner yet.
	ErrSnapshotNotFound = fmt.Errorf("snapshot not found")
	// ErrNoPrice indicates the price cache has no matching quote. Valuation
	// fallback chains absorb this; it is a valid state, not a failure.
	ErrNoPrice = fmt.Errorf("no cached price")
)

// InvestmentRepository reads and writes holdings and their detail payloads.
type InvestmentRepository interface {
	GetInvestment(ctx context.Context, id string) (*models.Investment, error)
	ListInvestmentsByOwner(ctx context.Context, ownerID string) ([]models.Investment, error)
	SaveInvestment(ctx context.Context, inv models.Investment) error
}

// TransactionRepository is the ledger of truth for market-linked holdings.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx models.Transaction) error
	ListTransactions(ctx context.Context, investmentID string) ([]models.Transaction, error)
	// ListTransactionsThrough returns transactions dated on or before cutoff,
	// ascending by date.
	ListTransactionsThrough(ctx context.Context, investmentID string, cutoff time.Time) ([]models.Transaction, error)
	// ListSellsBetween returns sell transactions across an owner's
	// investments within [from, to], for capital-gains reporting.
	ListSellsBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Transaction, error)
}

// LotRepository stores cost-basis lots. Only UpdateLotRemaining may change a
// lot after creation.
type LotRepository interface {
	CreateLot(ctx context.Context, lot models.Lot) error
	ListLots(ctx context.Context, investmentID string) ([]models.Lot, error)
	UpdateLotRemaining(ctx context.Context, lotID string, remaining decimal.Decimal) error
}

// AllocationRepository stores the immutable sell audit trail.
type AllocationRepository interface {
	CreateAllocations(ctx context.Context, allocs []models.SellAllocation) error
	ListAllocationsBySell(ctx context.Context, sellTxID string) ([]models.SellAllocation, error)
}

// OverrideRepository stores user-asserted valuations.
type OverrideRepository interface {
	SaveOverride(ctx context.Context, o models.Override) error
	// LatestOverride returns the newest override dated on or before asOf,
	// or nil when none is in effect.
	LatestOverride(ctx context.Context, investmentID string, asOf time.Time) (*models.Override, error)
}

// SnapshotRepository stores monthly and net-worth snapshots with
// replace-by-key semantics so recomputation is idempotent.
type SnapshotRepository interface {
	ReplaceMonthlySnapshot(ctx context.Context, snap models.MonthlySnapshot) error
	ListMonthlySnapshotsByMonth(ctx context.Context, month string) ([]models.MonthlySnapshot, error)
	ListMonthlySnapshotsByInvestment(ctx context.Context, investmentID string) ([]models.MonthlySnapshot, error)
	ReplaceNetWorthSnapshot(ctx context.Context, snap models.NetWorthSnapshot) error
	ListNetWorthSnapshots(ctx context.Context, ownerID string) ([]models.NetWorthSnapshot, error)
}

// GoalRepository stores goals and their investment allocations.
type GoalRepository interface {
	GetGoal(ctx context.Context, id string) (*models.Goal, error)
	ListGoalsByOwner(ctx context.Context, ownerID string) ([]models.Goal, error)
	SaveGoal(ctx context.Context, g models.Goal) error
	CreateGoalInvestment(ctx context.Context, gi models.GoalInvestment) error
	ListGoalInvestments(ctx context.Context, goalID string) ([]models.GoalInvestment, error)
	// FindGoalForInvestment returns the goal an investment is already
	// assigned to, or nil. Backs the single-goal-ownership invariant.
	FindGoalForInvestment(ctx context.Context, investmentID string) (*models.Goal, error)
}

// SettingsRepository reads the persisted configuration mapping, including
// per-asset-class default annual rates.
type SettingsRepository interface {
	GetSettings(ctx context.Context) (map[string]string, error)
}

// PriceRepository reads and writes the market price cache. The engine never
// fetches prices itself: fetching is the market-data collaborator's job, the
// cache is what it left behind.
type PriceRepository interface {
	SavePrices(ctx context.Context, quotes []models.PriceQuote) error
	// LatestPrice returns the newest quote for the symbol among the given
	// sources; ties on date are broken by source-set order.
	LatestPrice(ctx context.Context, symbol string, sources []models.PriceSource) (*models.PriceQuote, error)
	// PriceOnOrBefore returns the newest quote dated on or before the cutoff.
	PriceOnOrBefore(ctx context.Context, symbol string, sources []models.PriceSource, cutoff time.Time) (*models.PriceQuote, error)
	// EarliestPrice returns the oldest quote for the symbol from any source.
	EarliestPrice(ctx context.Context, symbol string) (*models.PriceQuote, error)
	HasHistory(ctx context.Context, symbol string) (bool, error)
}

// Store is the full persistence contract the engine consumes.
type Store interface {
	InvestmentRepository
	TransactionRepository
	LotRepository
	AllocationRepository
	OverrideRepository
	SnapshotRepository
	GoalRepository
	SettingsRepository
	PriceRepository
}
