package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dhankosh/backend/internal/formula"
	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/repository"
)

// ErrAlreadyAssigned indicates an investment is already funding another
// goal. An investment belongs to at most one goal; splitting the same rupee
// across two targets double-counts it.
var ErrAlreadyAssigned = errors.New("investment already assigned to a goal")

// GoalService links investments to goals, simulates goal outcomes and
// derives goal history from persisted snapshots.
type GoalService struct {
	store     repository.Store
	valuation *ValuationService
	now       func() time.Time
	logger    *logrus.Entry
}

func NewGoalService(store repository.Store, valuation *ValuationService, logger *logrus.Logger) *GoalService {
	return &GoalService{
		store:     store,
		valuation: valuation,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.WithField("component", "goals"),
	}
}

// AssignInvestment links an investment to a goal with a partial allocation.
func (s *GoalService) AssignInvestment(ctx context.Context, goalID, investmentID string, allocationPct decimal.Decimal) (*models.GoalInvestment, error) {
	if allocationPct.IsNegative() || allocationPct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: allocation must be between 0 and 100", ErrValidation)
	}
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetInvestment(ctx, investmentID); err != nil {
		return nil, err
	}
	if existing, err := s.store.FindGoalForInvestment(ctx, investmentID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: already funding goal %q", ErrAlreadyAssigned, existing.Name)
	}
	gi := models.GoalInvestment{
		ID:            uuid.NewString(),
		GoalID:        goal.ID,
		InvestmentID:  investmentID,
		AllocationPct: allocationPct,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateGoalInvestment(ctx, gi); err != nil {
		return nil, err
	}
	return &gi, nil
}

// CurrentValue sums the allocation-weighted current values of a goal's
// linked investments. Loans subtract their outstanding balance.
func (s *GoalService) CurrentValue(ctx context.Context, goalID string) (decimal.Decimal, error) {
	links, err := s.store.ListGoalInvestments(ctx, goalID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, link := range links {
		inv, err := s.store.GetInvestment(ctx, link.InvestmentID)
		if err != nil {
			s.logger.WithError(err).WithField("investment", link.InvestmentID).Warn("skipping missing goal investment")
			continue
		}
		enriched, err := s.valuation.EnrichInvestment(ctx, *inv)
		if err != nil {
			return decimal.Zero, err
		}
		share := enriched.CurrentValue.Mul(link.AllocationPct).Div(decimal.NewFromInt(100))
		if inv.Class.IsLiability() {
			total = total.Sub(share)
		} else {
			total = total.Add(share)
		}
	}
	return total.Round(2), nil
}

// SimulateGoal projects a goal to its target date under a hypothetical
// monthly contribution and expected annual return.
func (s *GoalService) SimulateGoal(ctx context.Context, goalID string, monthlySIP decimal.Decimal, annualRate decimal.Decimal) (*models.GoalSimulation, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	months := monthsUntil(now, goal.TargetDate)
	monthlyRate := annualRate.InexactFloat64() / 12
	rates := s.valuation.rateConfig(ctx)

	current := decimal.Zero
	projected := decimal.Zero
	links, err := s.store.ListGoalInvestments(ctx, goalID)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		inv, err := s.store.GetInvestment(ctx, link.InvestmentID)
		if err != nil {
			s.logger.WithError(err).WithField("investment", link.InvestmentID).Warn("skipping missing goal investment")
			continue
		}
		enriched, err := s.valuation.EnrichInvestment(ctx, *inv)
		if err != nil {
			return nil, err
		}
		weight := link.AllocationPct.Div(decimal.NewFromInt(100))
		future := s.projectInvestment(*inv, enriched.CurrentValue, rates, goal.TargetDate)
		if inv.Class.IsLiability() {
			current = current.Sub(enriched.CurrentValue.Mul(weight))
			projected = projected.Sub(future.Mul(weight))
		} else {
			current = current.Add(enriched.CurrentValue.Mul(weight))
			projected = projected.Add(future.Mul(weight))
		}
	}
	projected = projected.Add(formula.AnnuityFutureValue(monthlySIP, monthlyRate, months)).Round(2)

	shortfall := goal.TargetAmount.Sub(projected)
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}
	return &models.GoalSimulation{
		CurrentValue:   current.Round(2),
		ProjectedValue: projected,
		Shortfall:      shortfall,
		MonthsToGoal:   months,
		WillMeetGoal:   projected.GreaterThanOrEqual(goal.TargetAmount),
	}, nil
}

// projectInvestment values one holding at the goal's target date. Deposit
// instruments follow their own formulas with maturity caps; market-linked
// and physical holdings compound the current value at the class default
// rate; loans amortize down.
func (s *GoalService) projectInvestment(inv models.Investment, current decimal.Decimal, rates models.RateConfig, target time.Time) decimal.Decimal {
	d := inv.Detail
	switch inv.Class {
	case models.ClassFD:
		if d.Deposit != nil {
			return formula.DepositValue(d.Deposit.Principal, d.Deposit.AnnualRate, d.Deposit.Compounding, d.Deposit.StartDate, target, d.Deposit.MaturityDate)
		}
	case models.ClassRD:
		if d.Recurring != nil {
			return formula.RecurringDepositValue(d.Recurring.MonthlyInstallment, d.Recurring.AnnualRate, d.Recurring.Compounding, d.Recurring.StartDate, target, d.Recurring.MaturityDate)
		}
	case models.ClassLoan:
		if d.Loan != nil {
			return formula.LoanOutstanding(d.Loan.Principal, d.Loan.AnnualRate, d.Loan.EMI, d.Loan.StartDate, target)
		}
	case models.ClassPPF, models.ClassNPS:
		if d.Pension != nil {
			return formula.PensionValue(d.Pension.TotalDeposits, d.Pension.AnnualRate, d.Pension.FirstContribution, target)
		}
	case models.ClassInsurance:
		if d.Insurance != nil {
			return formula.DepositValue(d.Insurance.TotalPremiumsPaid, d.Insurance.AnnualRate, models.CompoundYearly, d.Insurance.StartDate, target, d.Insurance.MaturityDate)
		}
	case models.ClassPlannedExpense:
		return current
	}
	// Market-linked and physical holdings: compound today's value forward at
	// the class default rate.
	return formula.AssetAppreciation(current, rates.Rate(inv.Class), s.now(), target)
}

// GetGoalHistory renders the three reference paths for a goal: actual
// monthly values from snapshots, the projected path from today's value plus
// known recurring contributions, and the ideal required-contribution path
// that exactly reaches the target.
func (s *GoalService) GetGoalHistory(ctx context.Context, goalID string) (*models.GoalHistory, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	links, err := s.store.ListGoalInvestments(ctx, goalID)
	if err != nil {
		return nil, err
	}

	// Actual path: allocation-weighted sums of persisted monthly snapshots.
	byMonth := map[string]decimal.Decimal{}
	for _, link := range links {
		inv, err := s.store.GetInvestment(ctx, link.InvestmentID)
		if err != nil {
			continue
		}
		snaps, err := s.store.ListMonthlySnapshotsByInvestment(ctx, link.InvestmentID)
		if err != nil {
			return nil, err
		}
		weight := link.AllocationPct.Div(decimal.NewFromInt(100))
		for _, snap := range snaps {
			share := snap.Value.Mul(weight)
			if inv.Class.IsLiability() {
				byMonth[snap.Month] = byMonth[snap.Month].Sub(share)
			} else {
				byMonth[snap.Month] = byMonth[snap.Month].Add(share)
			}
		}
	}
	actual := []models.GoalHistoryPoint{}
	for month, value := range byMonth {
		actual = append(actual, models.GoalHistoryPoint{Month: month, Value: value.Round(2)})
	}
	sortHistoryPoints(actual)

	now := s.now()
	months := monthsUntil(now, goal.TargetDate)
	rates := s.valuation.rateConfig(ctx)
	monthlyRate := rates.Rate(models.ClassMutualFund).InexactFloat64() / 12

	current, err := s.CurrentValue(ctx, goalID)
	if err != nil {
		return nil, err
	}
	recurring := s.knownRecurringContribution(ctx, links)

	projected := make([]models.GoalHistoryPoint, 0, months+1)
	ideal := make([]models.GoalHistoryPoint, 0, months+1)
	required := formula.RequiredContribution(goal.TargetAmount, current, monthlyRate, months)
	for k := 0; k <= months; k++ {
		month := models.MonthStart(now).AddDate(0, k, 0).Format(models.MonthFormat)
		projected = append(projected, models.GoalHistoryPoint{
			Month: month,
			Value: compoundForward(current, monthlyRate, k).Add(formula.AnnuityFutureValue(recurring, monthlyRate, k)).Round(2),
		})
		ideal = append(ideal, models.GoalHistoryPoint{
			Month: month,
			Value: compoundForward(current, monthlyRate, k).Add(formula.AnnuityFutureValue(required, monthlyRate, k)).Round(2),
		})
	}

	return &models.GoalHistory{
		Actual:    actual,
		Projected: projected,
		Ideal:     ideal,
		Target:    goal.TargetAmount,
	}, nil
}

// knownRecurringContribution sums the recurring monthly installments of the
// goal's linked investments.
func (s *GoalService) knownRecurringContribution(ctx context.Context, links []models.GoalInvestment) decimal.Decimal {
	total := decimal.Zero
	for _, link := range links {
		inv, err := s.store.GetInvestment(ctx, link.InvestmentID)
		if err != nil || inv.Detail.Recurring == nil {
			continue
		}
		weight := link.AllocationPct.Div(decimal.NewFromInt(100))
		total = total.Add(inv.Detail.Recurring.MonthlyInstallment.Mul(weight))
	}
	return total
}

func compoundForward(value decimal.Decimal, monthlyRate float64, months int) decimal.Decimal {
	if months <= 0 {
		return value
	}
	factor := 1.0
	for i := 0; i < months; i++ {
		factor *= 1 + monthlyRate
	}
	return value.Mul(decimal.NewFromFloat(factor))
}

func monthsUntil(from, to time.Time) int {
	n := 0
	for at := from; at.Before(to); at = at.AddDate(0, 1, 0) {
		n++
	}
	return n
}

func sortHistoryPoints(points []models.GoalHistoryPoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Month < points[j].Month
	})
}
