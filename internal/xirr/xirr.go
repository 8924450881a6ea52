// Package xirr solves for the annualized internal rate of return of a dated,
// signed cash-flow series using Newton-Raphson.
package xirr

import (
	"math"
	"time"
)

// CashFlow is one dated amount: outflows negative, inflows positive.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

const (
	initialGuess  = 0.10
	maxIterations = 100
	tolerance     = 1e-7
	rateFloor     = -0.99
	derivGuard    = 1e-10
	daysPerYear   = 365.25
)

// Compute solves Σ amount_i / (1+r)^(days_i/365.25) = 0 with days anchored at
// the earliest flow. With fewer than two flows the return is undefined and ok
// is false. Non-convergence returns the last estimate: an approximate
// annualized return is more useful than none.
func Compute(flows []CashFlow) (rate float64, ok bool) {
	if len(flows) < 2 {
		return 0, false
	}
	anchor := flows[0].Date
	for _, f := range flows[1:] {
		if f.Date.Before(anchor) {
			anchor = f.Date
		}
	}
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(anchor).Hours() / 24 / daysPerYear
	}

	npv := func(r float64) float64 {
		s := 0.0
		for i, f := range flows {
			s += f.Amount / math.Pow(1+r, years[i])
		}
		return s
	}
	// Analytic derivative of the NPV with respect to r.
	dnpv := func(r float64) float64 {
		s := 0.0
		for i, f := range flows {
			if years[i] == 0 {
				continue
			}
			s -= f.Amount * years[i] / math.Pow(1+r, years[i]+1)
		}
		return s
	}

	r := initialGuess
	for i := 0; i < maxIterations; i++ {
		deriv := dnpv(r)
		if math.Abs(deriv) < derivGuard {
			break
		}
		next := r - npv(r)/deriv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			break
		}
		if next < rateFloor {
			next = rateFloor
		}
		if math.Abs(next-r) < tolerance {
			return next, true
		}
		r = next
	}
	return r, true
}
