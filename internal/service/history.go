package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dhankosh/backend/internal/formula"
	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/pricing"
	"github.com/dhankosh/backend/internal/repository"
	"github.com/dhankosh/backend/internal/xirr"
)

// ErrJobRunning indicates a historical reconstruction run is already in
// flight. Only one job may run at a time so concurrent runs cannot race on
// the same month's snapshot rows.
var ErrJobRunning = errors.New("historical snapshot job already running")

// SnapshotService rebuilds per-investment and portfolio valuations for past
// months from layered price evidence and persists them as snapshots.
type SnapshotService struct {
	store  repository.Store
	prices pricing.Service
	now    func() time.Time
	logger *logrus.Entry

	mu         sync.Mutex
	status     models.JobStatus
	backfilled map[string]bool
}

func NewSnapshotService(store repository.Store, prices pricing.Service, logger *logrus.Logger) *SnapshotService {
	return &SnapshotService{
		store:      store,
		prices:     prices,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.WithField("component", "snapshots"),
		status:     models.JobStatus{State: models.JobIdle},
		backfilled: map[string]bool{},
	}
}

func (s *SnapshotService) rateConfig(ctx context.Context) models.RateConfig {
	raw, err := s.store.GetSettings(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("settings unavailable, using default rates")
		return models.DefaultRateConfig()
	}
	return models.NewRateConfig(raw)
}

// CalculateMonthlySnapshots rebuilds every eligible investment's snapshot
// row for the given month ("2006-01"). Writes are replace-by-key, so
// recomputing a month is always safe. Per-investment failures are logged and
// skipped so one bad holding cannot abort the month.
func (s *SnapshotService) CalculateMonthlySnapshots(ctx context.Context, ownerID, month string) ([]models.MonthlySnapshot, error) {
	at, err := models.ParseMonth(month)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid month %q", ErrValidation, month)
	}
	investments, err := s.store.ListInvestmentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	rates := s.rateConfig(ctx)

	out := []models.MonthlySnapshot{}
	for _, inv := range investments {
		// An investment must not appear in months before it existed; the
		// record-creation timestamp is irrelevant here.
		if inv.StartDate().After(at) {
			continue
		}
		invested, value, err := s.historicalValuation(ctx, inv, rates, at)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"investment": inv.ID, "month": month,
			}).Warn("skipping investment in monthly snapshot")
			continue
		}
		snap := models.MonthlySnapshot{
			ID:           uuid.NewString(),
			InvestmentID: inv.ID,
			Month:        month,
			Invested:     invested,
			Value:        value,
			Gain:         value.Sub(invested),
			ComputedAt:   s.now(),
		}
		if inv.Class == models.ClassLoan || inv.Class == models.ClassPlannedExpense {
			snap.Gain = decimal.Zero
		}
		if err := s.store.ReplaceMonthlySnapshot(ctx, snap); err != nil {
			return nil, err
		}
		out = append(out, snap)
		// Reconstruction is long-running; give concurrent readers a turn
		// after every investment.
		runtime.Gosched()
	}
	return out, nil
}

// historicalValuation reconstructs (invested, value) for one investment as
// of the first of a past month. Both results are clamped non-negative:
// a single invalid number here would corrupt the whole month's aggregate.
func (s *SnapshotService) historicalValuation(ctx context.Context, inv models.Investment, rates models.RateConfig, at time.Time) (invested, value decimal.Decimal, err error) {
	txs, err := s.store.ListTransactionsThrough(ctx, inv.ID, at)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	invested = netInvested(txs)
	if invested.IsZero() {
		invested = syntheticInvested(inv, at)
	}
	invested = clampMoney(invested)

	// An override in effect at or before the target date wins outright.
	override, err := s.store.LatestOverride(ctx, inv.ID, at)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if override != nil {
		return invested, clampMoney(override.Value), nil
	}

	d := inv.Detail
	switch inv.Class {
	case models.ClassFD:
		if d.Deposit != nil {
			value = formula.DepositValue(d.Deposit.Principal, d.Deposit.AnnualRate, d.Deposit.Compounding, d.Deposit.StartDate, at, d.Deposit.MaturityDate)
		}
	case models.ClassRD:
		if d.Recurring != nil {
			value = formula.RecurringDepositValue(d.Recurring.MonthlyInstallment, d.Recurring.AnnualRate, d.Recurring.Compounding, d.Recurring.StartDate, at, d.Recurring.MaturityDate)
		}
	case models.ClassMutualFund, models.ClassStock:
		value = s.historicalMarketValue(ctx, inv, txs, at)
	case models.ClassGold:
		if d.Gold != nil {
			perGram := s.historicalGoldPrice(ctx, *d.Gold, rates, at)
			value = formula.GoldValue(d.Gold.WeightGrams, perGram, d.Gold.Purity)
		}
	case models.ClassLoan:
		if d.Loan != nil {
			value = formula.LoanOutstanding(d.Loan.Principal, d.Loan.AnnualRate, d.Loan.EMI, d.Loan.StartDate, at)
		}
	case models.ClassPPF, models.ClassNPS:
		if d.Pension != nil {
			value = formula.PensionValue(d.Pension.TotalDeposits, d.Pension.AnnualRate, d.Pension.FirstContribution, at)
		}
	case models.ClassRealEstate:
		if d.Asset != nil {
			value = formula.AssetAppreciation(d.Asset.PurchasePrice, d.Asset.AppreciationRate, d.Asset.PurchaseDate, at)
		}
	case models.ClassInsurance:
		if d.Insurance != nil {
			value = formula.DepositValue(d.Insurance.TotalPremiumsPaid, d.Insurance.AnnualRate, models.CompoundYearly, d.Insurance.StartDate, at, d.Insurance.MaturityDate)
		}
	case models.ClassPlannedExpense:
		if d.Planned != nil {
			value = d.Planned.Amount
		}
	}
	return invested, clampMoney(value), nil
}

// historicalMarketValue prices units held at a past date through the
// three-tier fallback: nearest-earlier cached price, then the earliest known
// price as a floor, then a one-time full-history backfill and retry.
func (s *SnapshotService) historicalMarketValue(ctx context.Context, inv models.Investment, txs []models.Transaction, at time.Time) decimal.Decimal {
	units := unitsHeldAsOf(txs, at)
	if !units.IsPositive() {
		return decimal.Zero
	}
	for _, symbol := range inv.PriceSymbols() {
		if price, ok := s.resolveHistoricalPrice(ctx, symbol, at); ok {
			return clampMoney(units.Mul(price).Round(2))
		}
	}
	s.logger.WithFields(logrus.Fields{"investment": inv.ID, "month": at.Format(models.MonthFormat)}).
		Warn("no price evidence for historical valuation")
	return clampMoney(netInvested(txs))
}

func (s *SnapshotService) resolveHistoricalPrice(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, bool) {
	// Tier 1: exact or nearest-earlier cached price.
	if quote, err := s.prices.PriceOnOrBefore(ctx, symbol, models.DefaultSources, at); err == nil {
		return quote.Price, true
	}
	// Tier 2: any history at all means the earliest known price is the
	// floor; do not re-fetch.
	has, err := s.prices.HasHistory(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Warn("price history check failed")
		return decimal.Zero, false
	}
	if has {
		if quote, err := s.prices.EarliestPrice(ctx, symbol); err == nil {
			return quote.Price, true
		}
		return decimal.Zero, false
	}
	// Tier 3: nothing cached anywhere; backfill the full history once and
	// retry the earlier tiers.
	if s.markBackfilled(symbol) {
		return decimal.Zero, false
	}
	if err := s.prices.BackfillHistory(ctx, symbol); err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Warn("price history backfill failed")
		return decimal.Zero, false
	}
	if quote, err := s.prices.PriceOnOrBefore(ctx, symbol, models.DefaultSources, at); err == nil {
		return quote.Price, true
	}
	if quote, err := s.prices.EarliestPrice(ctx, symbol); err == nil {
		return quote.Price, true
	}
	return decimal.Zero, false
}

// markBackfilled records a backfill attempt and reports whether one already
// happened for this symbol.
func (s *SnapshotService) markBackfilled(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backfilled[symbol] {
		return true
	}
	s.backfilled[symbol] = true
	return false
}

// historicalGoldPrice resolves the 24K per-gram price at a past date:
// cached price, else back-extrapolation from the most recent known price,
// else forward appreciation from the purchase price.
func (s *SnapshotService) historicalGoldPrice(ctx context.Context, gold models.GoldDetail, rates models.RateConfig, at time.Time) decimal.Decimal {
	if quote, err := s.prices.PriceOnOrBefore(ctx, models.GoldSymbol, models.DefaultSources, at); err == nil {
		return quote.Price
	}
	if quote, err := s.prices.LatestPrice(ctx, models.GoldSymbol, models.DefaultSources); err == nil {
		return formula.GoldBackExtrapolate(quote.Price, rates.GoldRate(), quote.Date, at)
	}
	return formula.AssetAppreciation(gold.PricePerGramPaid, rates.GoldRate(), gold.PurchaseDate, at)
}

// CalculateNetWorthSnapshot aggregates one month's per-investment snapshot
// rows into a portfolio-level snapshot with per-class breakdowns, pooled
// class XIRR and goal progress. Totals are recomputed from the finalized
// breakdown, never accumulated during the per-investment walk.
func (s *SnapshotService) CalculateNetWorthSnapshot(ctx context.Context, ownerID, month string) (*models.NetWorthSnapshot, error) {
	at, err := models.ParseMonth(month)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid month %q", ErrValidation, month)
	}
	rows, err := s.store.ListMonthlySnapshotsByMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	investments, err := s.store.ListInvestmentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	byID := map[string]models.Investment{}
	for _, inv := range investments {
		byID[inv.ID] = inv
	}

	type agg struct {
		invested, value decimal.Decimal
		count           int
	}
	perClass := map[models.AssetClass]*agg{}
	rowByInvestment := map[string]models.MonthlySnapshot{}
	for _, row := range rows {
		inv, ok := byID[row.InvestmentID]
		if !ok {
			continue
		}
		rowByInvestment[row.InvestmentID] = row
		a := perClass[inv.Class]
		if a == nil {
			a = &agg{invested: decimal.Zero, value: decimal.Zero}
			perClass[inv.Class] = a
		}
		a.invested = a.invested.Add(clampMoney(row.Invested))
		a.value = a.value.Add(clampMoney(row.Value))
		a.count++
	}

	breakdown := []models.ClassBreakdown{}
	for _, class := range models.AllAssetClasses {
		a := perClass[class]
		if a == nil {
			continue
		}
		cb := models.ClassBreakdown{
			Class:    class,
			Invested: a.invested,
			Value:    a.value,
			Count:    a.count,
		}
		if class != models.ClassLoan && class != models.ClassPlannedExpense {
			cb.Gain = a.value.Sub(a.invested)
			if a.invested.IsPositive() {
				cb.GainPercent = cb.Gain.Div(a.invested).Mul(decimal.NewFromInt(100)).Round(2)
			}
			cb.XIRR = s.classHistoricalXIRR(ctx, investments, class, a.value, at)
			runtime.Gosched()
		}
		breakdown = append(breakdown, cb)
	}

	// Totals come from the finalized breakdown so a single bad
	// per-investment value cannot leak into them unobserved.
	totalInvested, totalValue, totalDebt := decimal.Zero, decimal.Zero, decimal.Zero
	for _, cb := range breakdown {
		if cb.Class.IsLiability() {
			totalDebt = totalDebt.Add(cb.Value)
			continue
		}
		if cb.Class == models.ClassPlannedExpense {
			continue
		}
		totalInvested = totalInvested.Add(cb.Invested)
		totalValue = totalValue.Add(cb.Value)
	}

	goals, err := s.goalProgress(ctx, ownerID, byID, rowByInvestment)
	if err != nil {
		return nil, err
	}

	snap := models.NetWorthSnapshot{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Month:         month,
		TotalInvested: totalInvested,
		TotalValue:    totalValue,
		TotalDebt:     totalDebt,
		NetWorth:      totalValue.Sub(totalDebt),
		Breakdown:     breakdown,
		Goals:         goals,
		ComputedAt:    s.now(),
	}
	if err := s.store.ReplaceNetWorthSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// classHistoricalXIRR pools cash flows dated on or before the month across
// every investment of the class and appends the month's aggregate value as
// the terminal flow.
func (s *SnapshotService) classHistoricalXIRR(ctx context.Context, investments []models.Investment, class models.AssetClass, terminal decimal.Decimal, at time.Time) *decimal.Decimal {
	flows := []xirr.CashFlow{}
	for _, inv := range investments {
		if inv.Class != class || inv.StartDate().After(at) {
			continue
		}
		txs, err := s.store.ListTransactionsThrough(ctx, inv.ID, at)
		if err != nil {
			s.logger.WithError(err).WithField("investment", inv.ID).Warn("skipping investment in class XIRR")
			continue
		}
		invFlows := cashFlows(txs, at)
		if len(invFlows) == 0 {
			invFlows = syntheticFlows(inv, at)
		}
		flows = append(flows, invFlows...)
	}
	if len(flows) == 0 {
		return nil
	}
	flows = append(flows, xirr.CashFlow{Date: at, Amount: terminal.InexactFloat64()})
	rate, ok := xirr.Compute(flows)
	if !ok {
		return nil
	}
	d := decimal.NewFromFloat(rate)
	return &d
}

// goalProgress derives goal progress strictly from the month's just-written
// per-investment snapshot rows, so goal history always agrees with the
// snapshot it is attached to.
func (s *SnapshotService) goalProgress(ctx context.Context, ownerID string, byID map[string]models.Investment, rows map[string]models.MonthlySnapshot) ([]models.GoalProgress, error) {
	goals, err := s.store.ListGoalsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := []models.GoalProgress{}
	for _, goal := range goals {
		links, err := s.store.ListGoalInvestments(ctx, goal.ID)
		if err != nil {
			return nil, err
		}
		current := decimal.Zero
		for _, link := range links {
			row, ok := rows[link.InvestmentID]
			if !ok {
				continue
			}
			share := row.Value.Mul(link.AllocationPct).Div(decimal.NewFromInt(100))
			if inv, ok := byID[link.InvestmentID]; ok && inv.Class.IsLiability() {
				current = current.Sub(share)
			} else {
				current = current.Add(share)
			}
		}
		progress := models.GoalProgress{
			GoalID:  goal.ID,
			Name:    goal.Name,
			Target:  goal.TargetAmount,
			Current: current.Round(2),
		}
		if goal.TargetAmount.IsPositive() {
			progress.Percent = current.Div(goal.TargetAmount).Mul(decimal.NewFromInt(100)).Round(2)
		}
		out = append(out, progress)
	}
	return out, nil
}

// GenerateHistoricalSnapshots rebuilds monthly and net-worth snapshots for
// every month from the owner's earliest holding through the current month.
// It processes one month, and within it one investment, at a time. Returns
// the number of months processed.
func (s *SnapshotService) GenerateHistoricalSnapshots(ctx context.Context, ownerID string) (int, error) {
	investments, err := s.store.ListInvestmentsByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(investments) == 0 {
		return 0, nil
	}
	earliest := s.now()
	for _, inv := range investments {
		if start := inv.StartDate(); start.Before(earliest) {
			earliest = start
		}
	}

	months := 0
	end := models.MonthStart(s.now())
	for at := models.MonthStart(earliest); !at.After(end); at = at.AddDate(0, 1, 0) {
		if err := ctx.Err(); err != nil {
			return months, err
		}
		month := at.Format(models.MonthFormat)
		if _, err := s.CalculateMonthlySnapshots(ctx, ownerID, month); err != nil {
			return months, fmt.Errorf("month %s: %w", month, err)
		}
		if _, err := s.CalculateNetWorthSnapshot(ctx, ownerID, month); err != nil {
			return months, fmt.Errorf("month %s: %w", month, err)
		}
		months++
		s.setMonthsProcessed(months)
	}
	return months, nil
}

// StartHistoricalJob launches GenerateHistoricalSnapshots in the background.
// Only one job may be in flight; a second start is rejected, never queued.
func (s *SnapshotService) StartHistoricalJob(ownerID string) error {
	s.mu.Lock()
	if s.status.State == models.JobRunning {
		s.mu.Unlock()
		return ErrJobRunning
	}
	s.status = models.JobStatus{State: models.JobRunning, StartedAt: s.now()}
	s.mu.Unlock()

	go func() {
		months, err := s.GenerateHistoricalSnapshots(context.Background(), ownerID)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.status.MonthsProcessed = months
		s.status.FinishedAt = s.now()
		if err != nil {
			s.status.State = models.JobFailed
			s.status.Error = err.Error()
			s.logger.WithError(err).Error("historical snapshot job failed")
			return
		}
		s.status.State = models.JobCompleted
		s.logger.WithField("months", months).Info("historical snapshot job completed")
	}()
	return nil
}

// LatestNetWorth returns the owner's most recent net-worth snapshot.
func (s *SnapshotService) LatestNetWorth(ctx context.Context, ownerID string) (*models.NetWorthSnapshot, error) {
	snaps, err := s.store.ListNetWorthSnapshots(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, repository.ErrSnapshotNotFound
	}
	latest := snaps[len(snaps)-1]
	return &latest, nil
}

// JobStatus returns the current job status record.
func (s *SnapshotService) JobStatus() models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SnapshotService) setMonthsProcessed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.State == models.JobRunning {
		s.status.MonthsProcessed = n
	}
}
