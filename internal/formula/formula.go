// Package formula contains the closed-form valuation functions for
// non-market-linked instruments. Every function is pure and date
// parameterized; rounding to paise happens once, at the end.
package formula

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhankosh/backend/internal/models"
)

const daysPerYear = 365.25

// Years returns the calendar-accurate fractional years between two instants.
func Years(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / daysPerYear
}

// clampToMaturity freezes the evaluation date at maturity: a matured deposit
// stops compounding.
func clampToMaturity(at, maturity time.Time) time.Time {
	if !maturity.IsZero() && at.After(maturity) {
		return maturity
	}
	return at
}

// DepositValue computes principal × (1 + rate/n)^(n·t) for a fixed deposit.
// At or before the start date the value is the principal.
func DepositValue(principal, annualRate decimal.Decimal, freq models.CompoundingFrequency, start, at, maturity time.Time) decimal.Decimal {
	at = clampToMaturity(at, maturity)
	t := Years(start, at)
	if t <= 0 {
		return principal.Round(2)
	}
	n := float64(freq.PeriodsPerYear())
	r := annualRate.InexactFloat64()
	factor := math.Pow(1+r/n, n*t)
	return mulFloat(principal, factor).Round(2)
}

// DepositMaturityValue is the deposit value at exactly the maturity date.
func DepositMaturityValue(principal, annualRate decimal.Decimal, freq models.CompoundingFrequency, start, maturity time.Time) decimal.Decimal {
	return DepositValue(principal, annualRate, freq, start, maturity, maturity)
}

// RecurringDepositValue values a recurring deposit by treating every monthly
// installment as its own principal compounded from its own contribution date.
// Installments are enumerated by calendar month-stepping from the start date,
// never by multiplying fractional years, so long series do not drift.
func RecurringDepositValue(installment, annualRate decimal.Decimal, freq models.CompoundingFrequency, start, at, maturity time.Time) decimal.Decimal {
	at = clampToMaturity(at, maturity)
	if at.Before(start) {
		return decimal.Zero
	}
	total := decimal.Zero
	for due := start; !due.After(at); due = due.AddDate(0, 1, 0) {
		total = total.Add(DepositValue(installment, annualRate, freq, due, at, time.Time{}))
	}
	return total.Round(2)
}

// LoanOutstanding simulates the reducing balance of an amortized loan one
// month at a time and returns the balance as of the evaluation date. The
// balance never goes negative; a fully repaid loan reports zero.
func LoanOutstanding(principal, annualRate, emi decimal.Decimal, start, at time.Time) decimal.Decimal {
	if !at.After(start) {
		return principal.Round(2)
	}
	monthlyRate := annualRate.Div(decimal.NewFromInt(12))
	balance := principal
	for due := start.AddDate(0, 1, 0); !due.After(at); due = due.AddDate(0, 1, 0) {
		interest := balance.Mul(monthlyRate).Round(2)
		repaid := emi.Sub(interest)
		balance = balance.Sub(repaid)
		if !balance.IsPositive() {
			return decimal.Zero
		}
	}
	return balance.Round(2)
}

// AssetAppreciation computes purchasePrice × (1+rate)^years. Before the
// purchase date the value is clamped to the purchase price.
func AssetAppreciation(purchasePrice, annualRate decimal.Decimal, purchaseDate, at time.Time) decimal.Decimal {
	t := Years(purchaseDate, at)
	if t <= 0 {
		return purchasePrice.Round(2)
	}
	factor := math.Pow(1+annualRate.InexactFloat64(), t)
	return mulFloat(purchasePrice, factor).Round(2)
}

// GoldValue prices a physical gold holding off the 24K per-gram market price.
func GoldValue(weightGrams, pricePerGram24K decimal.Decimal, purity models.GoldPurity) decimal.Decimal {
	return weightGrams.Mul(pricePerGram24K).Mul(purity.Factor()).Round(2)
}

// GoldBackExtrapolate walks a known gold price backwards in time using the
// configured annual appreciation rate: price / (1+rate)^yearsBack.
func GoldBackExtrapolate(knownPrice, annualRate decimal.Decimal, knownAt, target time.Time) decimal.Decimal {
	back := Years(target, knownAt)
	if back <= 0 {
		return knownPrice
	}
	factor := math.Pow(1+annualRate.InexactFloat64(), back)
	if factor == 0 {
		return knownPrice
	}
	return knownPrice.DivRound(decimal.NewFromFloat(factor), 6)
}

// PensionValue treats accumulated pension deposits as a single lump sum
// compounded annually from the first contribution date.
func PensionValue(totalDeposits, annualRate decimal.Decimal, firstContribution, at time.Time) decimal.Decimal {
	return DepositValue(totalDeposits, annualRate, models.CompoundYearly, firstContribution, at, time.Time{})
}

// AnnuityFutureValue is the future value of an ordinary annuity: a payment
// contributed at the end of each month for the given number of months,
// growing at the monthly rate.
func AnnuityFutureValue(payment decimal.Decimal, monthlyRate float64, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	if monthlyRate == 0 {
		return payment.Mul(decimal.NewFromInt(int64(months))).Round(2)
	}
	factor := (math.Pow(1+monthlyRate, float64(months)) - 1) / monthlyRate
	return mulFloat(payment, factor).Round(2)
}

// RequiredContribution solves the ordinary-annuity formula for the monthly
// payment that grows presentValue into target over the given months.
func RequiredContribution(target, presentValue decimal.Decimal, monthlyRate float64, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	growth := math.Pow(1+monthlyRate, float64(months))
	remaining := target.Sub(mulFloat(presentValue, growth))
	if !remaining.IsPositive() {
		return decimal.Zero
	}
	if monthlyRate == 0 {
		return remaining.DivRound(decimal.NewFromInt(int64(months)), 2)
	}
	annuityFactor := (growth - 1) / monthlyRate
	return remaining.DivRound(decimal.NewFromFloat(annuityFactor), 2)
}

func mulFloat(d decimal.Decimal, f float64) decimal.Decimal {
	return d.Mul(decimal.NewFromFloat(f))
}
