package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dhankosh/backend/internal/formula"
	"github.com/dhankosh/backend/internal/lots"
	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/pricing"
	"github.com/dhankosh/backend/internal/repository"
	"github.com/dhankosh/backend/internal/xirr"
	"github.com/google/uuid"
)

var (
	ErrValidation = errors.New("validation_error")
)

// EnrichedInvestment is an investment with its computed valuation attached.
// XIRR is a fractional annual rate (0.10 == 10%), nil when undefined.
type EnrichedInvestment struct {
	models.Investment
	CurrentValue   decimal.Decimal  `json:"currentValue"`
	InvestedAmount decimal.Decimal  `json:"investedAmount"`
	Gain           decimal.Decimal  `json:"gain"`
	GainPercent    decimal.Decimal  `json:"gainPercent"`
	XIRR           *decimal.Decimal `json:"xirr,omitempty"`
}

// SellResult is the outcome of executing a disposal.
type SellResult struct {
	Transaction models.Transaction      `json:"transaction"`
	Allocations []models.SellAllocation `json:"allocations"`
}

// ValuationService selects the current value of an investment (override
// first, then formula or market lookup), derives invested amount, gain and
// XIRR, and executes FIFO disposals.
type ValuationService struct {
	store  repository.Store
	prices pricing.Service
	now    func() time.Time
	logger *logrus.Entry
}

func NewValuationService(store repository.Store, prices pricing.Service, logger *logrus.Logger) *ValuationService {
	return &ValuationService{
		store:  store,
		prices: prices,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.WithField("component", "valuation"),
	}
}

// rateConfig materializes the persisted per-class rate settings for one
// operation. Settings failures degrade to built-in defaults.
func (s *ValuationService) rateConfig(ctx context.Context) models.RateConfig {
	raw, err := s.store.GetSettings(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("settings unavailable, using default rates")
		return models.DefaultRateConfig()
	}
	return models.NewRateConfig(raw)
}

// GetEnriched loads an investment by id and enriches it.
func (s *ValuationService) GetEnriched(ctx context.Context, id string) (*EnrichedInvestment, error) {
	inv, err := s.store.GetInvestment(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.EnrichInvestment(ctx, *inv)
}

// EnrichInvestment computes current value, invested amount, gain and XIRR
// for a single investment.
func (s *ValuationService) EnrichInvestment(ctx context.Context, inv models.Investment) (*EnrichedInvestment, error) {
	now := s.now()
	rates := s.rateConfig(ctx)

	txs, err := s.store.ListTransactions(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	current, err := s.valueAsOf(ctx, inv, txs, rates, now)
	if err != nil {
		return nil, err
	}

	invested := netInvested(txs)
	if invested.IsZero() {
		invested = syntheticInvested(inv, now)
	}
	invested = clampMoney(invested)

	gain := decimal.Zero
	gainPct := decimal.Zero
	// Loans are liabilities and planned expenses are known outflows; neither
	// reports a gain.
	if inv.Class != models.ClassLoan && inv.Class != models.ClassPlannedExpense {
		gain = current.Sub(invested)
		if invested.IsPositive() {
			gainPct = gain.Div(invested).Mul(decimal.NewFromInt(100)).Round(2)
		}
	}

	enriched := &EnrichedInvestment{
		Investment:     inv,
		CurrentValue:   current,
		InvestedAmount: invested,
		Gain:           gain,
		GainPercent:    gainPct,
	}
	if rate, ok := s.investmentXIRR(inv, txs, current, now); ok {
		d := decimal.NewFromFloat(rate)
		enriched.XIRR = &d
	}
	return enriched, nil
}

// valueAsOf resolves the investment's value at the given instant: override
// first, then the class-specific formula or latest market price. The result
// is never negative.
func (s *ValuationService) valueAsOf(ctx context.Context, inv models.Investment, txs []models.Transaction, rates models.RateConfig, at time.Time) (decimal.Decimal, error) {
	override, err := s.store.LatestOverride(ctx, inv.ID, at)
	if err != nil {
		return decimal.Zero, err
	}
	if override != nil {
		return clampMoney(override.Value), nil
	}

	d := inv.Detail
	switch inv.Class {
	case models.ClassFD:
		if d.Deposit == nil {
			return decimal.Zero, nil
		}
		return formula.DepositValue(d.Deposit.Principal, d.Deposit.AnnualRate, d.Deposit.Compounding, d.Deposit.StartDate, at, d.Deposit.MaturityDate), nil
	case models.ClassRD:
		if d.Recurring == nil {
			return decimal.Zero, nil
		}
		return formula.RecurringDepositValue(d.Recurring.MonthlyInstallment, d.Recurring.AnnualRate, d.Recurring.Compounding, d.Recurring.StartDate, at, d.Recurring.MaturityDate), nil
	case models.ClassMutualFund, models.ClassStock:
		return s.marketValue(ctx, inv, txs, at), nil
	case models.ClassGold:
		if d.Gold == nil {
			return decimal.Zero, nil
		}
		perGram := s.goldPricePerGram(ctx, *d.Gold, rates, at)
		return formula.GoldValue(d.Gold.WeightGrams, perGram, d.Gold.Purity), nil
	case models.ClassLoan:
		if d.Loan == nil {
			return decimal.Zero, nil
		}
		return formula.LoanOutstanding(d.Loan.Principal, d.Loan.AnnualRate, d.Loan.EMI, d.Loan.StartDate, at), nil
	case models.ClassPPF, models.ClassNPS:
		if d.Pension == nil {
			return decimal.Zero, nil
		}
		return formula.PensionValue(d.Pension.TotalDeposits, d.Pension.AnnualRate, d.Pension.FirstContribution, at), nil
	case models.ClassRealEstate:
		if d.Asset == nil {
			return decimal.Zero, nil
		}
		return formula.AssetAppreciation(d.Asset.PurchasePrice, d.Asset.AppreciationRate, d.Asset.PurchaseDate, at), nil
	case models.ClassInsurance:
		if d.Insurance == nil {
			return decimal.Zero, nil
		}
		return formula.DepositValue(d.Insurance.TotalPremiumsPaid, d.Insurance.AnnualRate, models.CompoundYearly, d.Insurance.StartDate, at, d.Insurance.MaturityDate), nil
	case models.ClassPlannedExpense:
		if d.Planned == nil {
			return decimal.Zero, nil
		}
		return clampMoney(d.Planned.Amount), nil
	}
	s.logger.WithField("class", inv.Class).Warn("no valuation rule for asset class")
	return decimal.Zero, nil
}

// marketValue prices a fund or equity off the latest cached quote. With no
// price anywhere the net invested amount stands in, which at least keeps the
// holding visible in totals.
func (s *ValuationService) marketValue(ctx context.Context, inv models.Investment, txs []models.Transaction, at time.Time) decimal.Decimal {
	units := unitsHeldAsOf(txs, at)
	if !units.IsPositive() {
		return decimal.Zero
	}
	for _, symbol := range inv.PriceSymbols() {
		quote, err := s.prices.LatestPrice(ctx, symbol, models.DefaultSources)
		if err == nil {
			return clampMoney(units.Mul(quote.Price).Round(2))
		}
		if !errors.Is(err, repository.ErrNoPrice) {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("price lookup failed")
		}
	}
	s.logger.WithFields(logrus.Fields{"investment": inv.ID, "name": inv.Name}).
		Warn("no cached price, falling back to invested amount")
	return clampMoney(netInvested(txs))
}

// goldPricePerGram resolves the 24K per-gram price at the given instant,
// falling back to appreciating the purchase price forward.
func (s *ValuationService) goldPricePerGram(ctx context.Context, gold models.GoldDetail, rates models.RateConfig, at time.Time) decimal.Decimal {
	quote, err := s.prices.PriceOnOrBefore(ctx, models.GoldSymbol, models.DefaultSources, at)
	if err == nil {
		return quote.Price
	}
	return formula.AssetAppreciation(gold.PricePerGramPaid, rates.GoldRate(), gold.PurchaseDate, at)
}

// investmentXIRR computes the annualized return from real cash flows when
// the investment has any, otherwise from a synthetic flow at inception, with
// the current value appended as a terminal inflow dated now.
func (s *ValuationService) investmentXIRR(inv models.Investment, txs []models.Transaction, current decimal.Decimal, now time.Time) (float64, bool) {
	if inv.Class.IsLiability() {
		return 0, false
	}
	flows := cashFlows(txs, now)
	if len(flows) == 0 {
		flows = syntheticFlows(inv, now)
	}
	if len(flows) == 0 {
		return 0, false
	}
	flows = append(flows, xirr.CashFlow{Date: now, Amount: current.InexactFloat64()})
	return xirr.Compute(flows)
}

// CalculateTypeXIRR pools cash flows across every one of the owner's
// investments of the given class and solves a single pooled rate. Matured
// deposit-class instruments are excluded. Returns nil when undefined.
func (s *ValuationService) CalculateTypeXIRR(ctx context.Context, ownerID string, class models.AssetClass) (*decimal.Decimal, error) {
	now := s.now()
	investments, err := s.store.ListInvestmentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	flows := []xirr.CashFlow{}
	terminal := decimal.Zero
	rates := s.rateConfig(ctx)
	for _, inv := range investments {
		if inv.Class != class || inv.Class.IsLiability() {
			continue
		}
		if class.IsDeposit() && (!inv.Active || maturedBefore(inv, now)) {
			continue
		}
		txs, err := s.store.ListTransactions(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		invFlows := cashFlows(txs, now)
		if len(invFlows) == 0 {
			invFlows = syntheticFlows(inv, now)
		}
		flows = append(flows, invFlows...)
		value, err := s.valueAsOf(ctx, inv, txs, rates, now)
		if err != nil {
			return nil, err
		}
		terminal = terminal.Add(value)
	}
	if len(flows) == 0 {
		return nil, nil
	}
	flows = append(flows, xirr.CashFlow{Date: now, Amount: terminal.InexactFloat64()})
	rate, ok := xirr.Compute(flows)
	if !ok {
		return nil, nil
	}
	d := decimal.NewFromFloat(rate)
	return &d, nil
}

// ExecuteSell records a disposal and its FIFO cost-basis allocations. A sell
// that cannot be fully matched to lots is logged as a data-integrity warning
// but still succeeds; the uncovered units simply carry no recorded basis.
func (s *ValuationService) ExecuteSell(ctx context.Context, investmentID string, date time.Time, units, price, fees decimal.Decimal) (*SellResult, error) {
	if !units.IsPositive() || !price.IsPositive() {
		return nil, fmt.Errorf("%w: units and price must be positive", ErrValidation)
	}
	inv, err := s.store.GetInvestment(ctx, investmentID)
	if err != nil {
		return nil, err
	}

	sellTx := models.Transaction{
		ID:           uuid.NewString(),
		InvestmentID: inv.ID,
		Type:         models.TxSell,
		Date:         date,
		Amount:       units.Mul(price).Sub(fees).Round(2),
		Units:        units,
		UnitPrice:    price,
		Fees:         fees,
	}

	held, err := s.store.ListLots(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	res := lots.Consume(held, sellTx.ID, units, date)
	if res.Unallocated.IsPositive() {
		s.logger.WithFields(logrus.Fields{
			"investment":  inv.ID,
			"sell":        sellTx.ID,
			"unallocated": res.Unallocated.String(),
		}).Warn("sell exceeds lot holdings, basis recorded for matched units only")
	}

	if err := s.store.CreateTransaction(ctx, sellTx); err != nil {
		return nil, err
	}
	if len(res.Allocations) > 0 {
		if err := s.store.CreateAllocations(ctx, res.Allocations); err != nil {
			return nil, err
		}
	}
	for lotID, remaining := range res.Remaining {
		if err := s.store.UpdateLotRemaining(ctx, lotID, remaining); err != nil {
			return nil, err
		}
	}
	return &SellResult{Transaction: sellTx, Allocations: res.Allocations}, nil
}

// RecordTransaction persists a transaction and opens a cost-basis lot when
// the transaction qualifies as an acquisition.
func (s *ValuationService) RecordTransaction(ctx context.Context, tx models.Transaction) (*models.Transaction, error) {
	if tx.InvestmentID == "" {
		return nil, fmt.Errorf("%w: investmentId is required", ErrValidation)
	}
	if _, err := s.store.GetInvestment(ctx, tx.InvestmentID); err != nil {
		return nil, err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	if lot := lots.Open(tx); lot != nil {
		if err := s.store.CreateLot(ctx, *lot); err != nil {
			return nil, err
		}
	}
	return &tx, nil
}

// --- shared valuation helpers ---

// netInvested is the net of inflow-type transaction amounts minus
// outflow-type amounts; dividends and interest are returns, not investment.
func netInvested(txs []models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		switch {
		case tx.Type.IsInflow():
			total = total.Add(tx.Amount.Abs())
		case tx.Type.IsOutflow():
			total = total.Sub(tx.Amount.Abs())
		}
	}
	return total
}

// syntheticInvested derives an invested amount from detail fields when no
// transactions were recorded, evaluated as of the given instant.
func syntheticInvested(inv models.Investment, at time.Time) decimal.Decimal {
	d := inv.Detail
	switch inv.Class {
	case models.ClassFD:
		if d.Deposit != nil {
			return d.Deposit.Principal
		}
	case models.ClassRD:
		if d.Recurring != nil {
			months := monthsElapsed(d.Recurring.StartDate, at, d.Recurring.MaturityDate)
			return d.Recurring.MonthlyInstallment.Mul(decimal.NewFromInt(int64(months)))
		}
	case models.ClassGold:
		if d.Gold != nil {
			return d.Gold.WeightGrams.Mul(d.Gold.PricePerGramPaid).Round(2)
		}
	case models.ClassLoan:
		if d.Loan != nil {
			return d.Loan.Principal
		}
	case models.ClassPPF, models.ClassNPS:
		if d.Pension != nil {
			return d.Pension.TotalDeposits
		}
	case models.ClassRealEstate:
		if d.Asset != nil {
			return d.Asset.PurchasePrice
		}
	case models.ClassInsurance:
		if d.Insurance != nil {
			return d.Insurance.TotalPremiumsPaid
		}
	case models.ClassPlannedExpense:
		if d.Planned != nil {
			return d.Planned.Amount
		}
	}
	return decimal.Zero
}

// cashFlows converts transactions into signed XIRR flows: money in is
// negative (out of the investor's pocket), money out is positive.
func cashFlows(txs []models.Transaction, cutoff time.Time) []xirr.CashFlow {
	flows := []xirr.CashFlow{}
	for _, tx := range txs {
		if tx.Date.After(cutoff) {
			continue
		}
		amount := tx.Amount.Abs().InexactFloat64()
		switch {
		case tx.Type.IsInflow():
			flows = append(flows, xirr.CashFlow{Date: tx.Date, Amount: -amount})
		case tx.Type.IsOutflow(), tx.Type == models.TxDividend, tx.Type == models.TxInterest:
			flows = append(flows, xirr.CashFlow{Date: tx.Date, Amount: amount})
		}
	}
	return flows
}

// syntheticFlows mirrors syntheticInvested as a single dated outflow at the
// investment's real start date.
func syntheticFlows(inv models.Investment, cutoff time.Time) []xirr.CashFlow {
	invested := syntheticInvested(inv, cutoff)
	if !invested.IsPositive() {
		return nil
	}
	start := inv.StartDate()
	if start.After(cutoff) {
		return nil
	}
	return []xirr.CashFlow{{Date: start, Amount: -invested.InexactFloat64()}}
}

// unitsHeldAsOf sums signed unit deltas for transactions dated on or before
// the cutoff.
func unitsHeldAsOf(txs []models.Transaction, cutoff time.Time) decimal.Decimal {
	units := decimal.Zero
	for _, tx := range txs {
		if tx.Date.After(cutoff) {
			continue
		}
		units = units.Add(tx.UnitDelta())
	}
	return units
}

// monthsElapsed counts calendar installments from start through at, capped
// at maturity.
func monthsElapsed(start, at, maturity time.Time) int {
	if !maturity.IsZero() && at.After(maturity) {
		at = maturity
	}
	n := 0
	for due := start; !due.After(at); due = due.AddDate(0, 1, 0) {
		n++
	}
	return n
}

// clampMoney floors a value at zero. One invalid negative slipping into an
// aggregate corrupts the whole total, so every boundary clamps.
func clampMoney(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// maturedBefore reports whether a deposit-class instrument matured before t.
func maturedBefore(inv models.Investment, t time.Time) bool {
	d := inv.Detail
	switch inv.Class {
	case models.ClassFD:
		return d.Deposit != nil && !d.Deposit.MaturityDate.IsZero() && d.Deposit.MaturityDate.Before(t)
	case models.ClassRD:
		return d.Recurring != nil && !d.Recurring.MaturityDate.IsZero() && d.Recurring.MaturityDate.Before(t)
	case models.ClassInsurance:
		return d.Insurance != nil && !d.Insurance.MaturityDate.IsZero() && d.Insurance.MaturityDate.Before(t)
	}
	return false
}
