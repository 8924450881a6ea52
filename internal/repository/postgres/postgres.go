package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/repository"
)

// Store implements repository.Store backed by PostgreSQL. Detail payloads,
// class breakdowns and goal progress are stored as JSONB; snapshot replaces
// use ON CONFLICT upserts so recomputation is idempotent.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	const query = `
		SELECT id, owner_id, class, name, active, created_at, detail
		FROM investments
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)
	inv, err := scanInvestment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrInvestmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListInvestmentsByOwner(ctx context.Context, ownerID string) ([]models.Investment, error) {
	const query = `
		SELECT id, owner_id, class, name, active, created_at, detail
		FROM investments
		WHERE owner_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Investment{}
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) SaveInvestment(ctx context.Context, inv models.Investment) error {
	detail, err := json.Marshal(inv.Detail)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO investments (id, owner_id, class, name, active, created_at, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, active = EXCLUDED.active, detail = EXCLUDED.detail
	`
	_, err = s.db.ExecContext(ctx, query, inv.ID, inv.OwnerID, string(inv.Class), inv.Name, inv.Active, inv.CreatedAt, detail)
	return err
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanInvestment(row scannable) (*models.Investment, error) {
	var inv models.Investment
	var class string
	var detail []byte
	if err := row.Scan(&inv.ID, &inv.OwnerID, &class, &inv.Name, &inv.Active, &inv.CreatedAt, &detail); err != nil {
		return nil, err
	}
	inv.Class = models.AssetClass(class)
	if err := json.Unmarshal(detail, &inv.Detail); err != nil {
		return nil, err
	}
	return &inv, nil
}

const txColumns = "id, investment_id, type, date, amount, units, unit_price, fees, notes"

func (s *Store) CreateTransaction(ctx context.Context, tx models.Transaction) error {
	const query = `
		INSERT INTO transactions (` + txColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.InvestmentID, string(tx.Type), tx.Date, tx.Amount, tx.Units, tx.UnitPrice, tx.Fees, tx.Notes)
	return err
}

func (s *Store) ListTransactions(ctx context.Context, investmentID string) ([]models.Transaction, error) {
	const query = `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE investment_id = $1
		ORDER BY date ASC
	`
	rows, err := s.db.QueryContext(ctx, query, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *Store) ListTransactionsThrough(ctx context.Context, investmentID string, cutoff time.Time) ([]models.Transaction, error) {
	const query = `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE investment_id = $1 AND date <= $2
		ORDER BY date ASC
	`
	rows, err := s.db.QueryContext(ctx, query, investmentID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *Store) ListSellsBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Transaction, error) {
	const query = `
		SELECT t.id, t.investment_id, t.type, t.date, t.amount, t.units, t.unit_price, t.fees, t.notes
		FROM transactions t
		JOIN investments i ON i.id = t.investment_id
		WHERE i.owner_id = $1 AND t.type = 'sell' AND t.date >= $2 AND t.date <= $3
		ORDER BY t.date ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	out := []models.Transaction{}
	for rows.Next() {
		var tx models.Transaction
		var typ string
		var notes sql.NullString
		if err := rows.Scan(&tx.ID, &tx.InvestmentID, &typ, &tx.Date, &tx.Amount, &tx.Units, &tx.UnitPrice, &tx.Fees, &notes); err != nil {
			return nil, err
		}
		tx.Type = models.TransactionType(typ)
		tx.Notes = notes.String
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) CreateLot(ctx context.Context, lot models.Lot) error {
	const query = `
		INSERT INTO lots (id, investment_id, transaction_id, units_bought, units_remaining, cost_per_unit, acquired_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	_, err := s.db.ExecContext(ctx, query,
		lot.ID, lot.InvestmentID, lot.TransactionID, lot.UnitsBought, lot.UnitsRemaining, lot.CostPerUnit, lot.AcquiredAt)
	return err
}

func (s *Store) ListLots(ctx context.Context, investmentID string) ([]models.Lot, error) {
	const query = `
		SELECT id, investment_id, transaction_id, units_bought, units_remaining, cost_per_unit, acquired_at
		FROM lots
		WHERE investment_id = $1
		ORDER BY acquired_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Lot{}
	for rows.Next() {
		var lot models.Lot
		if err := rows.Scan(&lot.ID, &lot.InvestmentID, &lot.TransactionID, &lot.UnitsBought, &lot.UnitsRemaining, &lot.CostPerUnit, &lot.AcquiredAt); err != nil {
			return nil, err
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLotRemaining(ctx context.Context, lotID string, remaining decimal.Decimal) error {
	const query = `UPDATE lots SET units_remaining = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, lotID, remaining)
	return err
}

func (s *Store) CreateAllocations(ctx context.Context, allocs []models.SellAllocation) error {
	const query = `
		INSERT INTO sell_allocations (id, sell_tx_id, lot_id, investment_id, units_sold, cost_per_unit, lot_acquired_at, sold_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, a := range allocs {
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.SellTxID, a.LotID, a.InvestmentID, a.UnitsSold, a.CostPerUnit, a.LotAcquiredAt, a.SoldAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListAllocationsBySell(ctx context.Context, sellTxID string) ([]models.SellAllocation, error) {
	const query = `
		SELECT id, sell_tx_id, lot_id, investment_id, units_sold, cost_per_unit, lot_acquired_at, sold_at
		FROM sell_allocations
		WHERE sell_tx_id = $1
		ORDER BY lot_acquired_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sellTxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.SellAllocation{}
	for rows.Next() {
		var a models.SellAllocation
		if err := rows.Scan(&a.ID, &a.SellTxID, &a.LotID, &a.InvestmentID, &a.UnitsSold, &a.CostPerUnit, &a.LotAcquiredAt, &a.SoldAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveOverride(ctx context.Context, o models.Override) error {
	const query = `
		INSERT INTO overrides (id, investment_id, value, as_of, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`
	_, err := s.db.ExecContext(ctx, query, o.ID, o.InvestmentID, o.Value, o.AsOf, o.CreatedAt)
	return err
}

func (s *Store) LatestOverride(ctx context.Context, investmentID string, asOf time.Time) (*models.Override, error) {
	const query = `
		SELECT id, investment_id, value, as_of, created_at
		FROM overrides
		WHERE investment_id = $1 AND as_of <= $2
		ORDER BY as_of DESC, created_at DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, investmentID, asOf)
	var o models.Override
	if err := row.Scan(&o.ID, &o.InvestmentID, &o.Value, &o.AsOf, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (s *Store) ReplaceMonthlySnapshot(ctx context.Context, snap models.MonthlySnapshot) error {
	const query = `
		INSERT INTO monthly_snapshots (id, investment_id, month, invested, value, gain, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (investment_id, month) DO UPDATE
		SET invested = EXCLUDED.invested, value = EXCLUDED.value, gain = EXCLUDED.gain, computed_at = EXCLUDED.computed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		snap.ID, snap.InvestmentID, snap.Month, snap.Invested, snap.Value, snap.Gain, snap.ComputedAt)
	return err
}

func (s *Store) ListMonthlySnapshotsByMonth(ctx context.Context, month string) ([]models.MonthlySnapshot, error) {
	const query = `
		SELECT id, investment_id, month, invested, value, gain, computed_at
		FROM monthly_snapshots
		WHERE month = $1
		ORDER BY investment_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMonthlySnapshots(rows)
}

func (s *Store) ListMonthlySnapshotsByInvestment(ctx context.Context, investmentID string) ([]models.MonthlySnapshot, error) {
	const query = `
		SELECT id, investment_id, month, invested, value, gain, computed_at
		FROM monthly_snapshots
		WHERE investment_id = $1
		ORDER BY month ASC
	`
	rows, err := s.db.QueryContext(ctx, query, investmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMonthlySnapshots(rows)
}

func scanMonthlySnapshots(rows *sql.Rows) ([]models.MonthlySnapshot, error) {
	out := []models.MonthlySnapshot{}
	for rows.Next() {
		var snap models.MonthlySnapshot
		if err := rows.Scan(&snap.ID, &snap.InvestmentID, &snap.Month, &snap.Invested, &snap.Value, &snap.Gain, &snap.ComputedAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceNetWorthSnapshot(ctx context.Context, snap models.NetWorthSnapshot) error {
	breakdown, err := json.Marshal(snap.Breakdown)
	if err != nil {
		return err
	}
	goals, err := json.Marshal(snap.Goals)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO networth_snapshots (id, owner_id, month, total_invested, total_value, total_debt, net_worth, breakdown, goals, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (owner_id, month) DO UPDATE
		SET total_invested = EXCLUDED.total_invested, total_value = EXCLUDED.total_value,
		    total_debt = EXCLUDED.total_debt, net_worth = EXCLUDED.net_worth,
		    breakdown = EXCLUDED.breakdown, goals = EXCLUDED.goals, computed_at = EXCLUDED.computed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		snap.ID, snap.OwnerID, snap.Month, snap.TotalInvested, snap.TotalValue, snap.TotalDebt, snap.NetWorth, breakdown, goals, snap.ComputedAt)
	return err
}

func (s *Store) ListNetWorthSnapshots(ctx context.Context, ownerID string) ([]models.NetWorthSnapshot, error) {
	const query = `
		SELECT id, owner_id, month, total_invested, total_value, total_debt, net_worth, breakdown, goals, computed_at
		FROM networth_snapshots
		WHERE owner_id = $1
		ORDER BY month ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.NetWorthSnapshot{}
	for rows.Next() {
		var snap models.NetWorthSnapshot
		var breakdown, goals []byte
		if err := rows.Scan(&snap.ID, &snap.OwnerID, &snap.Month, &snap.TotalInvested, &snap.TotalValue, &snap.TotalDebt, &snap.NetWorth, &breakdown, &goals, &snap.ComputedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(breakdown, &snap.Breakdown); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(goals, &snap.Goals); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	const query = `
		SELECT id, owner_id, name, target_amount, target_date, priority, created_at
		FROM goals
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)
	var g models.Goal
	if err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.TargetAmount, &g.TargetDate, &g.Priority, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrGoalNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGoalsByOwner(ctx context.Context, ownerID string) ([]models.Goal, error) {
	const query = `
		SELECT id, owner_id, name, target_amount, target_date, priority, created_at
		FROM goals
		WHERE owner_id = $1
		ORDER BY priority ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Goal{}
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.TargetAmount, &g.TargetDate, &g.Priority, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) SaveGoal(ctx context.Context, g models.Goal) error {
	const query = `
		INSERT INTO goals (id, owner_id, name, target_amount, target_date, priority, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, target_amount = EXCLUDED.target_amount,
		    target_date = EXCLUDED.target_date, priority = EXCLUDED.priority
	`
	_, err := s.db.ExecContext(ctx, query, g.ID, g.OwnerID, g.Name, g.TargetAmount, g.TargetDate, g.Priority, g.CreatedAt)
	return err
}

func (s *Store) CreateGoalInvestment(ctx context.Context, gi models.GoalInvestment) error {
	const query = `
		INSERT INTO goal_investments (id, goal_id, investment_id, allocation_pct, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`
	_, err := s.db.ExecContext(ctx, query, gi.ID, gi.GoalID, gi.InvestmentID, gi.AllocationPct, gi.CreatedAt)
	return err
}

func (s *Store) ListGoalInvestments(ctx context.Context, goalID string) ([]models.GoalInvestment, error) {
	const query = `
		SELECT id, goal_id, investment_id, allocation_pct, created_at
		FROM goal_investments
		WHERE goal_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.GoalInvestment{}
	for rows.Next() {
		var gi models.GoalInvestment
		if err := rows.Scan(&gi.ID, &gi.GoalID, &gi.InvestmentID, &gi.AllocationPct, &gi.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, gi)
	}
	return out, rows.Err()
}

func (s *Store) FindGoalForInvestment(ctx context.Context, investmentID string) (*models.Goal, error) {
	const query = `
		SELECT g.id, g.owner_id, g.name, g.target_amount, g.target_date, g.priority, g.created_at
		FROM goals g
		JOIN goal_investments gi ON gi.goal_id = g.id
		WHERE gi.investment_id = $1
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, investmentID)
	var g models.Goal
	if err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.TargetAmount, &g.TargetDate, &g.Priority, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	const query = `SELECT key, value FROM settings`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) SavePrices(ctx context.Context, quotes []models.PriceQuote) error {
	const query = `
		INSERT INTO price_cache (symbol, source, date, price)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (symbol, source, date) DO UPDATE SET price = EXCLUDED.price
	`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range quotes {
		if _, err := tx.ExecContext(ctx, query, q.Symbol, string(q.Source), q.Date, q.Price); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// sourceStrings builds the pq array argument for source filtering.
func sourceStrings(sources []models.PriceSource) pq.StringArray {
	out := make(pq.StringArray, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

func (s *Store) LatestPrice(ctx context.Context, symbol string, sources []models.PriceSource) (*models.PriceQuote, error) {
	const query = `
		SELECT symbol, source, date, price
		FROM price_cache
		WHERE symbol = $1 AND source = ANY($2)
		ORDER BY date DESC, array_position($2, source) ASC
		LIMIT 1
	`
	return s.queryQuote(ctx, query, symbol, sourceStrings(sources))
}

func (s *Store) PriceOnOrBefore(ctx context.Context, symbol string, sources []models.PriceSource, cutoff time.Time) (*models.PriceQuote, error) {
	const query = `
		SELECT symbol, source, date, price
		FROM price_cache
		WHERE symbol = $1 AND source = ANY($2) AND date <= $3
		ORDER BY date DESC, array_position($2, source) ASC
		LIMIT 1
	`
	return s.queryQuote(ctx, query, symbol, sourceStrings(sources), cutoff)
}

func (s *Store) EarliestPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	const query = `
		SELECT symbol, source, date, price
		FROM price_cache
		WHERE symbol = $1
		ORDER BY date ASC
		LIMIT 1
	`
	return s.queryQuote(ctx, query, symbol)
}

func (s *Store) queryQuote(ctx context.Context, query string, args ...interface{}) (*models.PriceQuote, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var q models.PriceQuote
	var source string
	if err := row.Scan(&q.Symbol, &source, &q.Date, &q.Price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNoPrice
		}
		return nil, err
	}
	q.Source = models.PriceSource(source)
	return &q, nil
}

func (s *Store) HasHistory(ctx context.Context, symbol string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM price_cache WHERE symbol = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, symbol).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
