package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthFormat is the canonical "2006-01" key for snapshot months.
const MonthFormat = "2006-01"

// MonthlySnapshot is one investment's valuation at the first of a month.
// Replace semantics: recomputing a month overwrites the previous row.
type MonthlySnapshot struct {
	ID           string          `json:"id"`
	InvestmentID string          `json:"investmentId"`
	Month        string          `json:"month"` // "2006-01"
	Invested     decimal.Decimal `json:"invested"`
	Value        decimal.Decimal `json:"value"`
	Gain         decimal.Decimal `json:"gain"`
	ComputedAt   time.Time       `json:"computedAt"`
}

// ClassBreakdown aggregates one asset class inside a NetWorthSnapshot.
type ClassBreakdown struct {
	Class       AssetClass       `json:"class"`
	Invested    decimal.Decimal  `json:"invested"`
	Value       decimal.Decimal  `json:"value"`
	Gain        decimal.Decimal  `json:"gain"`
	GainPercent decimal.Decimal  `json:"gainPercent"`
	XIRR        *decimal.Decimal `json:"xirr,omitempty"`
	Count       int              `json:"count"`
}

// GoalProgress records how far along a goal was at snapshot time, derived
// from that month's per-investment snapshot rows.
type GoalProgress struct {
	GoalID   string          `json:"goalId"`
	Name     string          `json:"name"`
	Target   decimal.Decimal `json:"target"`
	Current  decimal.Decimal `json:"current"`
	Percent  decimal.Decimal `json:"percent"`
}

// NetWorthSnapshot aggregates the whole portfolio for one owner and month.
type NetWorthSnapshot struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"ownerId"`
	Month         string           `json:"month"`
	TotalInvested decimal.Decimal  `json:"totalInvested"`
	TotalValue    decimal.Decimal  `json:"totalValue"`
	TotalDebt     decimal.Decimal  `json:"totalDebt"`
	NetWorth      decimal.Decimal  `json:"netWorth"`
	Breakdown     []ClassBreakdown `json:"breakdown"`
	Goals         []GoalProgress   `json:"goals"`
	ComputedAt    time.Time        `json:"computedAt"`
}

// MonthStart normalizes t to midnight UTC on the first of its month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseMonth parses a "2006-01" key into the first of that month.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthFormat, month)
	if err != nil {
		return time.Time{}, err
	}
	return MonthStart(t), nil
}
