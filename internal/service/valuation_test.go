package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/pricing"
	"github.com/dhankosh/backend/internal/repository/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type testEnv struct {
	store     *memory.Store
	prices    *pricing.CacheService
	valuation *ValuationService
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := testLogger()
	store := memory.New()
	prices := pricing.NewCacheService(store, nil, log)
	valuation := NewValuationService(store, prices, log)
	now := day(2025, time.June, 15)
	valuation.now = func() time.Time { return now }
	return &testEnv{store: store, prices: prices, valuation: valuation, now: now}
}

func (e *testEnv) addInvestment(t *testing.T, inv models.Investment) models.Investment {
	t.Helper()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.OwnerID == "" {
		inv.OwnerID = "owner-1"
	}
	inv.Active = true
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = inv.StartDate()
	}
	if err := e.store.SaveInvestment(context.Background(), inv); err != nil {
		t.Fatalf("save investment: %v", err)
	}
	return inv
}

func (e *testEnv) addPrice(t *testing.T, symbol string, date time.Time, price string) {
	t.Helper()
	err := e.store.SavePrices(context.Background(), []models.PriceQuote{{
		Symbol: symbol, Source: models.SourceFetched, Date: date, Price: d(price),
	}})
	if err != nil {
		t.Fatalf("save price: %v", err)
	}
}

func fdInvestment(principal, rate string, start, maturity time.Time) models.Investment {
	return models.Investment{
		Class: models.ClassFD,
		Name:  "Bank FD",
		Detail: models.Detail{
			Class: models.ClassFD,
			Deposit: &models.DepositDetail{
				Principal:    d(principal),
				AnnualRate:   d(rate),
				Compounding:  models.CompoundQuarterly,
				StartDate:    start,
				MaturityDate: maturity,
			},
		},
	}
}

func stockInvestment(ticker string) models.Investment {
	return models.Investment{
		Class: models.ClassStock,
		Name:  ticker,
		Detail: models.Detail{
			Class: models.ClassStock,
			Stock: &models.StockDetail{Ticker: ticker, Exchange: "NSE", StartDate: day(2023, time.January, 1)},
		},
	}
}

func TestEnrichInvestment(t *testing.T) {
	ctx := context.Background()

	t.Run("fd_uses_formula_and_synthetic_invested", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, fdInvestment("100000", "0.08", day(2024, time.June, 15), day(2026, time.June, 15)))

		enriched, err := env.valuation.EnrichInvestment(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		if !enriched.InvestedAmount.Equal(d("100000")) {
			t.Errorf("invested = %s, want synthetic principal 100000", enriched.InvestedAmount)
		}
		// One year at 8% quarterly ≈ 108,243.
		if enriched.CurrentValue.LessThan(d("108000")) || enriched.CurrentValue.GreaterThan(d("108500")) {
			t.Errorf("current value = %s, want ≈ 108243", enriched.CurrentValue)
		}
		if !enriched.Gain.Equal(enriched.CurrentValue.Sub(enriched.InvestedAmount)) {
			t.Errorf("gain %s inconsistent with value %s - invested %s", enriched.Gain, enriched.CurrentValue, enriched.InvestedAmount)
		}
		if enriched.XIRR == nil {
			t.Error("expected an XIRR from synthetic flows")
		}
	})

	t.Run("override_beats_formula", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, fdInvestment("100000", "0.08", day(2024, time.June, 15), day(2026, time.June, 15)))
		err := env.store.SaveOverride(ctx, models.Override{
			ID: uuid.NewString(), InvestmentID: inv.ID, Value: d("123456"),
			AsOf: day(2025, time.January, 1), CreatedAt: day(2025, time.January, 1),
		})
		if err != nil {
			t.Fatal(err)
		}
		enriched, err := env.valuation.EnrichInvestment(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		if !enriched.CurrentValue.Equal(d("123456")) {
			t.Errorf("current value = %s, want override 123456", enriched.CurrentValue)
		}
	})

	t.Run("stock_uses_latest_price", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, stockInvestment("RELIANCE"))
		_, err := env.valuation.RecordTransaction(ctx, models.Transaction{
			InvestmentID: inv.ID, Type: models.TxBuy, Date: day(2024, time.January, 10),
			Amount: d("25000"), Units: d("10"), UnitPrice: d("2500"),
		})
		if err != nil {
			t.Fatal(err)
		}
		env.addPrice(t, "RELIANCE", day(2025, time.June, 1), "2900")

		enriched, err := env.valuation.EnrichInvestment(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		if !enriched.CurrentValue.Equal(d("29000")) {
			t.Errorf("current value = %s, want 10 × 2900", enriched.CurrentValue)
		}
		if !enriched.InvestedAmount.Equal(d("25000")) {
			t.Errorf("invested = %s, want 25000 from the buy", enriched.InvestedAmount)
		}
		if !enriched.Gain.Equal(d("4000")) {
			t.Errorf("gain = %s, want 4000", enriched.Gain)
		}
	})

	t.Run("stock_without_price_falls_back_to_invested", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, stockInvestment("OBSCURE"))
		_, err := env.valuation.RecordTransaction(ctx, models.Transaction{
			InvestmentID: inv.ID, Type: models.TxBuy, Date: day(2024, time.January, 10),
			Amount: d("10000"), Units: d("100"), UnitPrice: d("100"),
		})
		if err != nil {
			t.Fatal(err)
		}
		enriched, err := env.valuation.EnrichInvestment(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		if !enriched.CurrentValue.Equal(d("10000")) {
			t.Errorf("current value = %s, want invested fallback 10000", enriched.CurrentValue)
		}
	})

	t.Run("fund_prefers_scheme_code_symbol", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, models.Investment{
			Class: models.ClassMutualFund,
			Name:  "Index Fund",
			Detail: models.Detail{
				Class: models.ClassMutualFund,
				Fund:  &models.FundDetail{ISIN: "INF000X1", SchemeCode: "120503", StartDate: day(2023, time.May, 1)},
			},
		})
		_, err := env.valuation.RecordTransaction(ctx, models.Transaction{
			InvestmentID: inv.ID, Type: models.TxSIP, Date: day(2024, time.February, 1),
			Amount: d("5000"), Units: d("50"), UnitPrice: d("100"),
		})
		if err != nil {
			t.Fatal(err)
		}
		env.addPrice(t, "INF000X1", day(2025, time.June, 1), "90")
		env.addPrice(t, "120503", day(2025, time.June, 1), "110")

		enriched, err := env.valuation.EnrichInvestment(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		if !enriched.CurrentValue.Equal(d("5500")) {
			t.Errorf("current value = %s, want 50 × 110 via scheme code", enriched.CurrentValue)
		}
	})

	t.Run("loan_reports_zero_gain", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, models.Investment{
			Class: models.ClassLoan,
			Name:  "Home loan",
			Detail: models.Detail{
				Class: models.ClassLoan,
				Loan: &models.LoanDetail{
					Principal: d("2000000"), AnnualRate: d("0.09"), EMI: d("25000"),
					StartDate: day(2023, time.January, 1),
				},
			},
		})
		enriched, err := env.valuation.EnrichInvestment(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		if !enriched.Gain.IsZero() {
			t.Errorf("loan gain = %s, want zero by convention", enriched.Gain)
		}
		if enriched.CurrentValue.IsNegative() {
			t.Errorf("outstanding balance = %s, never negative", enriched.CurrentValue)
		}
		if enriched.XIRR != nil {
			t.Error("loan XIRR should be undefined")
		}
	})

	t.Run("gold_values_at_purity", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, models.Investment{
			Class: models.ClassGold,
			Name:  "Wedding gold",
			Detail: models.Detail{
				Class: models.ClassGold,
				Gold: &models.GoldDetail{
					WeightGrams: d("10"), Purity: models.Gold22K,
					PricePerGramPaid: d("6000"), PurchaseDate: day(2023, time.November, 1),
				},
			},
		})
		env.addPrice(t, models.GoldSymbol, day(2025, time.June, 1), "7200")
		enriched, err := env.valuation.EnrichInvestment(ctx, inv)
		if err != nil {
			t.Fatal(err)
		}
		// 10 × 7200 × 22/24 = 66,000.
		if !enriched.CurrentValue.Equal(d("66000")) {
			t.Errorf("gold value = %s, want 66000", enriched.CurrentValue)
		}
	})
}

func TestExecuteSell(t *testing.T) {
	ctx := context.Background()

	t.Run("fifo_order_and_audit_trail", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, stockInvestment("TCS"))
		for _, buy := range []struct {
			date  time.Time
			price string
		}{
			{day(2024, time.January, 5), "3500"},
			{day(2024, time.June, 5), "3800"},
		} {
			_, err := env.valuation.RecordTransaction(ctx, models.Transaction{
				InvestmentID: inv.ID, Type: models.TxBuy, Date: buy.date,
				Amount: d(buy.price).Mul(d("10")), Units: d("10"), UnitPrice: d(buy.price),
			})
			if err != nil {
				t.Fatal(err)
			}
		}

		res, err := env.valuation.ExecuteSell(ctx, inv.ID, day(2025, time.March, 1), d("15"), d("4000"), d("50"))
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Allocations) != 2 {
			t.Fatalf("expected 2 allocations, got %d", len(res.Allocations))
		}
		if !res.Allocations[0].CostPerUnit.Equal(d("3500")) {
			t.Errorf("first allocation basis %s, want oldest lot 3500", res.Allocations[0].CostPerUnit)
		}
		if !res.Allocations[0].UnitsSold.Equal(d("10")) || !res.Allocations[1].UnitsSold.Equal(d("5")) {
			t.Errorf("allocation units %s/%s, want 10/5", res.Allocations[0].UnitsSold, res.Allocations[1].UnitsSold)
		}
		if !res.Transaction.Amount.Equal(d("59950")) {
			t.Errorf("sell amount = %s, want 15×4000−50", res.Transaction.Amount)
		}

		remaining, err := env.store.ListLots(ctx, inv.ID)
		if err != nil {
			t.Fatal(err)
		}
		var total decimal.Decimal
		for _, lot := range remaining {
			total = total.Add(lot.UnitsRemaining)
		}
		if !total.Equal(d("5")) {
			t.Errorf("remaining units = %s, want 5", total)
		}

		persisted, err := env.store.ListAllocationsBySell(ctx, res.Transaction.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(persisted) != 2 {
			t.Errorf("persisted allocations = %d, want 2", len(persisted))
		}
	})

	t.Run("under_allocation_still_succeeds", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, stockInvestment("INFY"))
		_, err := env.valuation.RecordTransaction(ctx, models.Transaction{
			InvestmentID: inv.ID, Type: models.TxBuy, Date: day(2024, time.January, 5),
			Amount: d("15000"), Units: d("10"), UnitPrice: d("1500"),
		})
		if err != nil {
			t.Fatal(err)
		}
		res, err := env.valuation.ExecuteSell(ctx, inv.ID, day(2025, time.March, 1), d("14"), d("1600"), decimal.Zero)
		if err != nil {
			t.Fatalf("under-allocated sell must still succeed: %v", err)
		}
		if len(res.Allocations) != 1 || !res.Allocations[0].UnitsSold.Equal(d("10")) {
			t.Errorf("expected basis recorded for 10 matched units, got %+v", res.Allocations)
		}
		txs, err := env.store.ListTransactions(ctx, inv.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(txs) != 2 {
			t.Errorf("sell transaction not recorded, have %d transactions", len(txs))
		}
	})

	t.Run("rejects_non_positive_units", func(t *testing.T) {
		env := newTestEnv(t)
		inv := env.addInvestment(t, stockInvestment("WIPRO"))
		if _, err := env.valuation.ExecuteSell(ctx, inv.ID, env.now, decimal.Zero, d("100"), decimal.Zero); err == nil {
			t.Error("expected validation error for zero units")
		}
	})
}

func TestCalculateTypeXIRR(t *testing.T) {
	ctx := context.Background()

	t.Run("pools_flows_across_class", func(t *testing.T) {
		env := newTestEnv(t)
		for _, ticker := range []string{"AAA", "BBB"} {
			inv := env.addInvestment(t, stockInvestment(ticker))
			_, err := env.valuation.RecordTransaction(ctx, models.Transaction{
				InvestmentID: inv.ID, Type: models.TxBuy, Date: day(2024, time.June, 15),
				Amount: d("10000"), Units: d("100"), UnitPrice: d("100"),
			})
			if err != nil {
				t.Fatal(err)
			}
			env.addPrice(t, ticker, day(2025, time.June, 1), "110")
		}
		rate, err := env.valuation.CalculateTypeXIRR(ctx, "owner-1", models.ClassStock)
		if err != nil {
			t.Fatal(err)
		}
		if rate == nil {
			t.Fatal("expected a pooled rate")
		}
		// 20,000 grew to 22,000 over a year: about 10%.
		if rate.LessThan(d("0.05")) || rate.GreaterThan(d("0.15")) {
			t.Errorf("pooled XIRR = %s, want ≈ 0.10", rate)
		}
	})

	t.Run("no_holdings_is_undefined", func(t *testing.T) {
		env := newTestEnv(t)
		rate, err := env.valuation.CalculateTypeXIRR(ctx, "owner-1", models.ClassStock)
		if err != nil {
			t.Fatal(err)
		}
		if rate != nil {
			t.Errorf("expected nil rate for empty class, got %s", rate)
		}
	})

	t.Run("excludes_matured_deposits", func(t *testing.T) {
		env := newTestEnv(t)
		env.addInvestment(t, fdInvestment("100000", "0.08", day(2020, time.January, 1), day(2021, time.January, 1)))
		rate, err := env.valuation.CalculateTypeXIRR(ctx, "owner-1", models.ClassFD)
		if err != nil {
			t.Fatal(err)
		}
		if rate != nil {
			t.Errorf("matured FD should be excluded, got rate %s", rate)
		}
	})
}
