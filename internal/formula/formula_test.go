package formula

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

func assertNear(t *testing.T, got, want decimal.Decimal, tolerance string) {
	t.Helper()
	diff := got.Sub(want).Abs()
	if diff.GreaterThan(d(tolerance)) {
		t.Errorf("got %s, want %s (tolerance %s)", got, want, tolerance)
	}
}

func TestDepositValue(t *testing.T) {
	start := day(2023, time.January, 1)
	maturity := day(2024, time.January, 1)

	t.Run("quarterly_one_year", func(t *testing.T) {
		// 100,000 at 8% quarterly for one year: 100,000 × (1.02)^4 ≈ 108,243.
		got := DepositValue(d("100000"), d("0.08"), models.CompoundQuarterly, start, maturity, maturity)
		assertNear(t, got, d("108243.22"), "15")
	})

	t.Run("at_start_equals_principal", func(t *testing.T) {
		got := DepositValue(d("100000"), d("0.08"), models.CompoundQuarterly, start, start, maturity)
		if !got.Equal(d("100000")) {
			t.Errorf("value at start = %s, want principal", got)
		}
	})

	t.Run("before_start_equals_principal", func(t *testing.T) {
		got := DepositValue(d("100000"), d("0.08"), models.CompoundQuarterly, start, day(2022, time.June, 1), maturity)
		if !got.Equal(d("100000")) {
			t.Errorf("value before start = %s, want principal", got)
		}
	})

	t.Run("frozen_after_maturity", func(t *testing.T) {
		atMaturity := DepositMaturityValue(d("100000"), d("0.08"), models.CompoundQuarterly, start, maturity)
		later := DepositValue(d("100000"), d("0.08"), models.CompoundQuarterly, start, day(2030, time.January, 1), maturity)
		if !later.Equal(atMaturity) {
			t.Errorf("value past maturity %s, want frozen maturity value %s", later, atMaturity)
		}
	})

	t.Run("maturity_round_trip", func(t *testing.T) {
		evaluated := DepositValue(d("250000"), d("0.065"), models.CompoundHalfYearly, start, maturity, maturity)
		viaMaturity := DepositMaturityValue(d("250000"), d("0.065"), models.CompoundHalfYearly, start, maturity)
		if !evaluated.Equal(viaMaturity) {
			t.Errorf("evaluated at maturity %s != maturity value %s", evaluated, viaMaturity)
		}
	})
}

func TestRecurringDepositValue(t *testing.T) {
	start := day(2024, time.January, 1)

	t.Run("counts_calendar_installments", func(t *testing.T) {
		// Jan, Feb and Mar installments are all due by Mar 1.
		got := RecurringDepositValue(d("1000"), d("0.072"), models.CompoundQuarterly, start, day(2024, time.March, 1), time.Time{})
		if got.LessThan(d("3000")) {
			t.Errorf("three installments plus interest = %s, want > 3000", got)
		}
		if got.GreaterThan(d("3030")) {
			t.Errorf("three installments over two months = %s, unexpectedly large", got)
		}
	})

	t.Run("first_installment_counts_on_start_date", func(t *testing.T) {
		// The first installment is due on the start date itself, worth
		// exactly the installment with no time to compound.
		got := RecurringDepositValue(d("1000"), d("0.072"), models.CompoundQuarterly, start, start, time.Time{})
		if !got.Equal(d("1000")) {
			t.Errorf("value on start date = %s, want the first installment 1000", got)
		}
	})

	t.Run("zero_before_start", func(t *testing.T) {
		got := RecurringDepositValue(d("1000"), d("0.072"), models.CompoundQuarterly, start, day(2023, time.December, 1), time.Time{})
		if !got.IsZero() {
			t.Errorf("value before start = %s, want 0", got)
		}
	})

	t.Run("stops_compounding_at_maturity", func(t *testing.T) {
		maturity := day(2025, time.January, 1)
		atMaturity := RecurringDepositValue(d("1000"), d("0.072"), models.CompoundQuarterly, start, maturity, maturity)
		later := RecurringDepositValue(d("1000"), d("0.072"), models.CompoundQuarterly, start, day(2027, time.June, 1), maturity)
		if !later.Equal(atMaturity) {
			t.Errorf("post-maturity value %s, want frozen %s", later, atMaturity)
		}
	})
}

func TestLoanOutstanding(t *testing.T) {
	start := day(2024, time.January, 1)

	t.Run("first_month_amortization", func(t *testing.T) {
		// 1,00,000 at 12% (1% monthly), EMI 8,885: first month pays 1,000
		// interest and 7,885 principal.
		got := LoanOutstanding(d("100000"), d("0.12"), d("8885"), start, day(2024, time.February, 1))
		if !got.Equal(d("92115")) {
			t.Errorf("balance after one EMI = %s, want 92115", got)
		}
	})

	t.Run("at_start_is_principal", func(t *testing.T) {
		got := LoanOutstanding(d("100000"), d("0.12"), d("8885"), start, start)
		if !got.Equal(d("100000")) {
			t.Errorf("balance at start = %s, want principal", got)
		}
	})

	t.Run("never_negative", func(t *testing.T) {
		got := LoanOutstanding(d("100000"), d("0.12"), d("8885"), start, day(2034, time.January, 1))
		if got.IsNegative() {
			t.Errorf("balance went negative: %s", got)
		}
		if !got.IsZero() {
			t.Errorf("fully amortized loan balance = %s, want 0", got)
		}
	})
}

func TestAssetAppreciation(t *testing.T) {
	purchase := day(2020, time.January, 1)

	t.Run("clamps_before_purchase", func(t *testing.T) {
		got := AssetAppreciation(d("5000000"), d("0.06"), purchase, day(2019, time.June, 1))
		if !got.Equal(d("5000000")) {
			t.Errorf("pre-purchase value = %s, want purchase price", got)
		}
	})

	t.Run("appreciates_forward", func(t *testing.T) {
		got := AssetAppreciation(d("5000000"), d("0.06"), purchase, day(2021, time.January, 1))
		assertNear(t, got, d("5300000"), "1500")
	})
}

func TestGoldValue(t *testing.T) {
	t.Run("22k_purity", func(t *testing.T) {
		got := GoldValue(d("10"), d("7000"), models.Gold22K)
		if !got.Equal(d("64166.67")) {
			t.Errorf("10g of 22K at 7000/g = %s, want 64166.67", got)
		}
	})

	t.Run("24k_full_price", func(t *testing.T) {
		got := GoldValue(d("10"), d("7000"), models.Gold24K)
		if !got.Equal(d("70000")) {
			t.Errorf("10g of 24K at 7000/g = %s, want 70000", got)
		}
	})
}

func TestGoldBackExtrapolate(t *testing.T) {
	known := day(2025, time.January, 1)

	t.Run("walks_price_backwards", func(t *testing.T) {
		got := GoldBackExtrapolate(d("7560"), d("0.08"), known, day(2024, time.January, 1))
		assertNear(t, got, d("7000"), "10")
	})

	t.Run("target_after_known_returns_known", func(t *testing.T) {
		got := GoldBackExtrapolate(d("7560"), d("0.08"), known, day(2025, time.June, 1))
		if !got.Equal(d("7560")) {
			t.Errorf("forward target = %s, want last known price", got)
		}
	})
}

func TestAnnuity(t *testing.T) {
	t.Run("future_value_zero_rate", func(t *testing.T) {
		got := AnnuityFutureValue(d("1000"), 0, 12)
		if !got.Equal(d("12000")) {
			t.Errorf("zero-rate annuity = %s, want 12000", got)
		}
	})

	t.Run("future_value_positive_rate", func(t *testing.T) {
		// 1,000/month at 1% monthly for 12 months ≈ 12,682.50.
		got := AnnuityFutureValue(d("1000"), 0.01, 12)
		assertNear(t, got, d("12682.50"), "1")
	})

	t.Run("required_contribution_round_trip", func(t *testing.T) {
		contrib := RequiredContribution(d("100000"), d("20000"), 0.01, 24)
		future := AnnuityFutureValue(contrib, 0.01, 24).
			Add(d("20000").Mul(d("1.01").Pow(d("24"))))
		assertNear(t, future, d("100000"), "5")
	})

	t.Run("already_funded_needs_nothing", func(t *testing.T) {
		got := RequiredContribution(d("10000"), d("50000"), 0.01, 12)
		if !got.IsZero() {
			t.Errorf("overfunded goal contribution = %s, want 0", got)
		}
	})
}
