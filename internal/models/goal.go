package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goal is a savings target funded by allocations of specific investments.
type Goal struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"ownerId"`
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	TargetDate   time.Time       `json:"targetDate"`
	Priority     int             `json:"priority"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// GoalInvestment links an investment to a goal with a partial claim on its
// value. An investment belongs to at most one goal; loans subtract their
// outstanding balance instead of adding value.
type GoalInvestment struct {
	ID             string          `json:"id"`
	GoalID         string          `json:"goalId"`
	InvestmentID   string          `json:"investmentId"`
	AllocationPct  decimal.Decimal `json:"allocationPct"` // 0..100
	CreatedAt      time.Time       `json:"createdAt"`
}

// GoalSimulation is the outcome of projecting a goal forward under a
// hypothetical monthly contribution and expected return.
type GoalSimulation struct {
	CurrentValue   decimal.Decimal `json:"currentValue"`
	ProjectedValue decimal.Decimal `json:"projectedValue"`
	Shortfall      decimal.Decimal `json:"shortfall"`
	MonthsToGoal   int             `json:"monthsToGoal"`
	WillMeetGoal   bool            `json:"willMeetGoal"`
}

// GoalHistoryPoint is one month on a goal's history chart.
type GoalHistoryPoint struct {
	Month string          `json:"month"`
	Value decimal.Decimal `json:"value"`
}

// GoalHistory carries the three reference paths for a goal: what actually
// happened, where the current trajectory leads, and the ideal path that
// exactly reaches the target.
type GoalHistory struct {
	Actual    []GoalHistoryPoint `json:"actual"`
	Projected []GoalHistoryPoint `json:"projected"`
	Ideal     []GoalHistoryPoint `json:"ideal"`
	Target    decimal.Decimal    `json:"target"`
}
