// Package lots implements FIFO cost-basis accounting. Disposal is a pure
// function over a value snapshot of an investment's lots: it returns the
// allocations made and the updated remaining units without mutating its
// input, so callers decide when the decrements are persisted.
package lots

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dhankosh/backend/internal/models"
)

// Open creates a lot from a qualifying acquisition transaction. Returns nil
// for transactions that cannot establish a priced lot.
func Open(tx models.Transaction) *models.Lot {
	if !tx.IsAcquisition() {
		return nil
	}
	return &models.Lot{
		ID:             uuid.NewString(),
		InvestmentID:   tx.InvestmentID,
		TransactionID:  tx.ID,
		UnitsBought:    tx.Units,
		UnitsRemaining: tx.Units,
		CostPerUnit:    tx.UnitPrice,
		AcquiredAt:     tx.Date,
	}
}

// DisposalResult is the outcome of a FIFO consume pass.
type DisposalResult struct {
	Allocations []models.SellAllocation
	// Remaining maps lot id to its post-disposal units. Only lots that were
	// touched appear here.
	Remaining map[string]decimal.Decimal
	// Unallocated is the portion of the sell that no lot could cover. A
	// non-zero value is a data-integrity warning, not an error: the sell
	// still stands, the uncovered units simply carry no recorded basis.
	Unallocated decimal.Decimal
}

// Consume allocates a disposal of `units` against the given lots, oldest
// acquisition first (ties broken by the order lots were created). Lots with
// no remaining units are skipped. The input slice is not modified.
func Consume(lots []models.Lot, sellTxID string, units decimal.Decimal, soldAt time.Time) DisposalResult {
	ordered := make([]models.Lot, len(lots))
	copy(ordered, lots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].AcquiredAt.Before(ordered[j].AcquiredAt)
	})

	res := DisposalResult{Remaining: map[string]decimal.Decimal{}}
	toSell := units
	for _, lot := range ordered {
		if !toSell.IsPositive() {
			break
		}
		if !lot.UnitsRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(toSell, lot.UnitsRemaining)
		res.Allocations = append(res.Allocations, models.SellAllocation{
			ID:            uuid.NewString(),
			SellTxID:      sellTxID,
			LotID:         lot.ID,
			InvestmentID:  lot.InvestmentID,
			UnitsSold:     take,
			CostPerUnit:   lot.CostPerUnit,
			LotAcquiredAt: lot.AcquiredAt,
			SoldAt:        soldAt,
		})
		res.Remaining[lot.ID] = lot.UnitsRemaining.Sub(take)
		toSell = toSell.Sub(take)
	}
	res.Unallocated = toSell
	return res
}

// TotalRemaining sums the units still held across lots.
func TotalRemaining(lots []models.Lot) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.UnitsRemaining)
	}
	return total
}
