package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource identifies where a cached price came from. Manual entries are
// preferred over fetched ones on the same date.
type PriceSource string

const (
	SourceFetched PriceSource = "fetched"
	SourceManual  PriceSource = "manual"
)

// DefaultSources is the source set used when callers have no preference.
var DefaultSources = []PriceSource{SourceManual, SourceFetched}

// PriceQuote is one cached point-in-time price for a symbol.
type PriceQuote struct {
	Symbol string          `json:"symbol"`
	Source PriceSource     `json:"source"`
	Date   time.Time       `json:"date"`
	Price  decimal.Decimal `json:"price"`
}
