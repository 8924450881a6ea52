package lots

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhankosh/backend/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func lot(id string, acquired time.Time, bought, remaining, cost string) models.Lot {
	return models.Lot{
		ID:             id,
		InvestmentID:   "inv-1",
		UnitsBought:    d(bought),
		UnitsRemaining: d(remaining),
		CostPerUnit:    d(cost),
		AcquiredAt:     acquired,
	}
}

func TestOpen(t *testing.T) {
	t.Run("buy_with_units_and_price", func(t *testing.T) {
		got := Open(models.Transaction{
			ID: "tx-1", InvestmentID: "inv-1", Type: models.TxBuy,
			Date: day(2024, time.March, 5), Units: d("10"), UnitPrice: d("150"),
			Amount: d("1500"),
		})
		if got == nil {
			t.Fatal("expected a lot")
		}
		if !got.UnitsRemaining.Equal(d("10")) {
			t.Errorf("units remaining = %s, want 10", got.UnitsRemaining)
		}
		if !got.CostPerUnit.Equal(d("150")) {
			t.Errorf("cost per unit = %s, want 150", got.CostPerUnit)
		}
	})

	t.Run("dividend_opens_nothing", func(t *testing.T) {
		got := Open(models.Transaction{Type: models.TxDividend, Amount: d("200")})
		if got != nil {
			t.Errorf("dividend should not open a lot, got %+v", got)
		}
	})

	t.Run("buy_without_price_opens_nothing", func(t *testing.T) {
		got := Open(models.Transaction{Type: models.TxBuy, Units: d("5")})
		if got != nil {
			t.Errorf("buy with no unit price should not open a lot, got %+v", got)
		}
	})
}

func TestConsumeFIFO(t *testing.T) {
	jan := day(2024, time.January, 10)
	mar := day(2024, time.March, 10)
	jun := day(2024, time.June, 10)

	t.Run("oldest_lot_first", func(t *testing.T) {
		book := []models.Lot{
			lot("lot-mar", mar, "10", "10", "120"),
			lot("lot-jan", jan, "10", "10", "100"),
		}
		res := Consume(book, "sell-1", d("15"), jun)
		if len(res.Allocations) != 2 {
			t.Fatalf("expected 2 allocations, got %d", len(res.Allocations))
		}
		first, second := res.Allocations[0], res.Allocations[1]
		if first.LotID != "lot-jan" || !first.UnitsSold.Equal(d("10")) {
			t.Errorf("first allocation %s/%s, want lot-jan/10", first.LotID, first.UnitsSold)
		}
		if !first.CostPerUnit.Equal(d("100")) {
			t.Errorf("first allocation basis %s, want 100", first.CostPerUnit)
		}
		if second.LotID != "lot-mar" || !second.UnitsSold.Equal(d("5")) {
			t.Errorf("second allocation %s/%s, want lot-mar/5", second.LotID, second.UnitsSold)
		}
		if !res.Remaining["lot-jan"].IsZero() {
			t.Errorf("lot-jan remaining = %s, want 0", res.Remaining["lot-jan"])
		}
		if !res.Remaining["lot-mar"].Equal(d("5")) {
			t.Errorf("lot-mar remaining = %s, want 5", res.Remaining["lot-mar"])
		}
		if !res.Unallocated.IsZero() {
			t.Errorf("unallocated = %s, want 0", res.Unallocated)
		}
	})

	t.Run("allocation_units_sum_to_sell_units", func(t *testing.T) {
		book := []models.Lot{
			lot("a", jan, "4", "4", "100"),
			lot("b", mar, "4", "4", "110"),
			lot("c", jun, "4", "4", "120"),
		}
		res := Consume(book, "sell-1", d("9"), day(2024, time.July, 1))
		total := decimal.Zero
		for _, a := range res.Allocations {
			total = total.Add(a.UnitsSold)
		}
		if !total.Equal(d("9")) {
			t.Errorf("allocated units = %s, want 9", total)
		}
	})

	t.Run("skips_exhausted_lots", func(t *testing.T) {
		book := []models.Lot{
			lot("spent", jan, "10", "0", "90"),
			lot("live", mar, "10", "10", "120"),
		}
		res := Consume(book, "sell-1", d("5"), jun)
		if len(res.Allocations) != 1 || res.Allocations[0].LotID != "live" {
			t.Fatalf("expected single allocation from live lot, got %+v", res.Allocations)
		}
	})

	t.Run("under_allocation_reports_remainder", func(t *testing.T) {
		book := []models.Lot{lot("only", jan, "10", "10", "100")}
		res := Consume(book, "sell-1", d("14"), jun)
		if !res.Unallocated.Equal(d("4")) {
			t.Errorf("unallocated = %s, want 4", res.Unallocated)
		}
		if len(res.Allocations) != 1 || !res.Allocations[0].UnitsSold.Equal(d("10")) {
			t.Errorf("expected the one lot fully consumed, got %+v", res.Allocations)
		}
	})

	t.Run("input_lots_not_mutated", func(t *testing.T) {
		book := []models.Lot{lot("only", jan, "10", "10", "100")}
		Consume(book, "sell-1", d("6"), jun)
		if !book[0].UnitsRemaining.Equal(d("10")) {
			t.Errorf("input lot mutated: remaining = %s", book[0].UnitsRemaining)
		}
	})
}
