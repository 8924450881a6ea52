package models

import "github.com/shopspring/decimal"

// Default annual rates used when the persisted settings mapping has no entry
// or an entry fails to parse. Fractional, 0.08 == 8%.
var defaultClassRates = map[AssetClass]decimal.Decimal{
	ClassFD:             decimal.NewFromFloat(0.07),
	ClassRD:             decimal.NewFromFloat(0.07),
	ClassMutualFund:     decimal.NewFromFloat(0.12),
	ClassStock:          decimal.NewFromFloat(0.12),
	ClassGold:           decimal.NewFromFloat(0.08),
	ClassLoan:           decimal.NewFromFloat(0.09),
	ClassPPF:            decimal.NewFromFloat(0.071),
	ClassNPS:            decimal.NewFromFloat(0.10),
	ClassRealEstate:     decimal.NewFromFloat(0.06),
	ClassInsurance:      decimal.NewFromFloat(0.05),
	ClassPlannedExpense: decimal.Zero,
}

// RateConfig carries per-class default annual rates for one operation. It is
// loaded from persisted settings and passed explicitly, never read as
// ambient global state, so the formula and reconstruction code stay pure.
type RateConfig struct {
	rates map[AssetClass]decimal.Decimal
}

// NewRateConfig builds a config from raw settings strings. Entries that fail
// to parse, or parse to a non-positive value for a class that needs a
// positive rate, fall back to the class default. One bad settings row must
// never poison a valuation run.
func NewRateConfig(raw map[string]string) RateConfig {
	rates := make(map[AssetClass]decimal.Decimal, len(defaultClassRates))
	for class, def := range defaultClassRates {
		rates[class] = def
		s, ok := raw["rate."+string(class)]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		if d.IsNegative() {
			continue
		}
		rates[class] = d
	}
	return RateConfig{rates: rates}
}

// DefaultRateConfig returns the built-in defaults.
func DefaultRateConfig() RateConfig { return NewRateConfig(nil) }

// Rate returns the annual rate for a class, always a sane non-negative value.
func (c RateConfig) Rate(class AssetClass) decimal.Decimal {
	if c.rates == nil {
		return defaultClassRates[class]
	}
	if r, ok := c.rates[class]; ok {
		return r
	}
	return defaultClassRates[class]
}

// GoldRate is the annual gold appreciation rate used for back-extrapolation
// when price history runs out. Guaranteed positive.
func (c RateConfig) GoldRate() decimal.Decimal {
	r := c.Rate(ClassGold)
	if !r.IsPositive() {
		return defaultClassRates[ClassGold]
	}
	return r
}
