package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/repository"
)

// Holding-period thresholds and rates for capital-gains classification.
// A gain is long-term when the holding period strictly exceeds the
// threshold: equity held exactly 365 days is still short-term.
const (
	equityLongTermDays = 365
	debtLongTermDays   = 1095
)

var (
	equitySTCGRate = decimal.NewFromFloat(0.15)
	equityLTCGRate = decimal.NewFromFloat(0.10)
	debtSTCGRate   = decimal.NewFromFloat(0.30)
	debtLTCGRate   = decimal.NewFromFloat(0.20)

	// Annual exemption on equity long-term gains, capped at the gain itself.
	equityLTCGExemption = decimal.NewFromInt(100000)
)

// TaxService walks disposals in a financial year, pulls their FIFO
// allocations and classifies each into the four capital-gains buckets.
type TaxService struct {
	store  repository.Store
	logger *logrus.Entry
}

func NewTaxService(store repository.Store, logger *logrus.Logger) *TaxService {
	return &TaxService{
		store:  store,
		logger: logger.WithField("component", "tax"),
	}
}

// CalculateCapitalGains builds the capital-gains summary for disposals dated
// within [fyStart, fyEnd].
func (s *TaxService) CalculateCapitalGains(ctx context.Context, ownerID string, fyStart, fyEnd time.Time) (*models.TaxSummary, error) {
	if !fyEnd.After(fyStart) {
		return nil, fmt.Errorf("%w: financial year end must follow start", ErrValidation)
	}
	sells, err := s.store.ListSellsBetween(ctx, ownerID, fyStart, fyEnd)
	if err != nil {
		return nil, err
	}

	summary := &models.TaxSummary{FYStart: fyStart, FYEnd: fyEnd, Entries: []models.CapitalGainEntry{}}
	equityLTCGGain := decimal.Zero

	for _, sell := range sells {
		inv, err := s.store.GetInvestment(ctx, sell.InvestmentID)
		if err != nil {
			s.logger.WithError(err).WithField("sell", sell.ID).Warn("skipping sell with missing investment")
			continue
		}
		allocs, err := s.store.ListAllocationsBySell(ctx, sell.ID)
		if err != nil {
			return nil, err
		}
		for _, alloc := range allocs {
			entry := classifyAllocation(*inv, sell, alloc)
			summary.Entries = append(summary.Entries, entry)
			switch {
			case inv.Class.IsEquityLike() && entry.LongTerm:
				summary.EquityLTCG.Gain = summary.EquityLTCG.Gain.Add(entry.Gain)
				equityLTCGGain = equityLTCGGain.Add(entry.Gain)
			case inv.Class.IsEquityLike():
				summary.EquitySTCG.Gain = summary.EquitySTCG.Gain.Add(entry.Gain)
			case entry.LongTerm:
				summary.DebtLTCG.Gain = summary.DebtLTCG.Gain.Add(entry.Gain)
			default:
				summary.DebtSTCG.Gain = summary.DebtSTCG.Gain.Add(entry.Gain)
			}
		}
	}

	summary.EquitySTCG.Taxable = positiveOrZero(summary.EquitySTCG.Gain)
	summary.EquitySTCG.Tax = summary.EquitySTCG.Taxable.Mul(equitySTCGRate).Round(2)

	// The exemption never drives taxable gain below zero.
	exemption := decimal.Min(equityLTCGExemption, positiveOrZero(equityLTCGGain))
	summary.EquityLTCG.Taxable = positiveOrZero(equityLTCGGain.Sub(exemption))
	summary.EquityLTCG.Tax = summary.EquityLTCG.Taxable.Mul(equityLTCGRate).Round(2)

	summary.DebtSTCG.Taxable = positiveOrZero(summary.DebtSTCG.Gain)
	summary.DebtSTCG.Tax = summary.DebtSTCG.Taxable.Mul(debtSTCGRate).Round(2)

	summary.DebtLTCG.Taxable = positiveOrZero(summary.DebtLTCG.Gain)
	summary.DebtLTCG.Tax = summary.DebtLTCG.Taxable.Mul(debtLTCGRate).Round(2)

	summary.TotalTax = summary.EquitySTCG.Tax.
		Add(summary.EquityLTCG.Tax).
		Add(summary.DebtSTCG.Tax).
		Add(summary.DebtLTCG.Tax)
	return summary, nil
}

func classifyAllocation(inv models.Investment, sell models.Transaction, alloc models.SellAllocation) models.CapitalGainEntry {
	holdingDays := int(sell.Date.Sub(alloc.LotAcquiredAt).Hours() / 24)
	threshold := debtLongTermDays
	if inv.Class.IsEquityLike() {
		threshold = equityLongTermDays
	}
	cost := alloc.UnitsSold.Mul(alloc.CostPerUnit).Round(2)
	proceeds := alloc.UnitsSold.Mul(sell.UnitPrice).Round(2)
	return models.CapitalGainEntry{
		InvestmentID:   inv.ID,
		InvestmentName: inv.Name,
		Class:          inv.Class,
		SellDate:       sell.Date,
		AcquiredAt:     alloc.LotAcquiredAt,
		HoldingDays:    holdingDays,
		Units:          alloc.UnitsSold,
		CostBasis:      cost,
		Proceeds:       proceeds,
		Gain:           proceeds.Sub(cost),
		LongTerm:       holdingDays > threshold,
	}
}

func positiveOrZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
