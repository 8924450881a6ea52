package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dhankosh/backend/internal/models"
)

func newGoalEnv(t *testing.T) (*testEnv, *GoalService) {
	t.Helper()
	env := newTestEnv(t)
	goals := NewGoalService(env.store, env.valuation, testLogger())
	goals.now = env.valuation.now
	return env, goals
}

func (e *testEnv) addGoal(t *testing.T, name string, target string, targetDate time.Time) models.Goal {
	t.Helper()
	goal := models.Goal{
		ID: uuid.NewString(), OwnerID: "owner-1", Name: name,
		TargetAmount: d(target), TargetDate: targetDate, CreatedAt: e.now,
	}
	if err := e.store.SaveGoal(context.Background(), goal); err != nil {
		t.Fatalf("save goal: %v", err)
	}
	return goal
}

func TestAssignInvestment(t *testing.T) {
	ctx := context.Background()

	t.Run("links_with_allocation", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "House", "5000000", day(2030, time.January, 1))
		inv := env.addInvestment(t, stockInvestment("RELIANCE"))

		gi, err := goals.AssignInvestment(ctx, goal.ID, inv.ID, d("40"))
		if err != nil {
			t.Fatal(err)
		}
		if gi.GoalID != goal.ID || !gi.AllocationPct.Equal(d("40")) {
			t.Errorf("link = %+v, want 40%% of %s on goal %s", gi, inv.ID, goal.ID)
		}
	})

	t.Run("rejects_second_goal_for_same_investment", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		house := env.addGoal(t, "House", "5000000", day(2030, time.January, 1))
		car := env.addGoal(t, "Car", "1500000", day(2028, time.January, 1))
		inv := env.addInvestment(t, stockInvestment("RELIANCE"))

		if _, err := goals.AssignInvestment(ctx, house.ID, inv.ID, d("60")); err != nil {
			t.Fatal(err)
		}
		_, err := goals.AssignInvestment(ctx, car.ID, inv.ID, d("40"))
		if !errors.Is(err, ErrAlreadyAssigned) {
			t.Errorf("expected ErrAlreadyAssigned, got %v", err)
		}
	})

	t.Run("rejects_allocation_over_100", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "House", "5000000", day(2030, time.January, 1))
		inv := env.addInvestment(t, stockInvestment("RELIANCE"))

		if _, err := goals.AssignInvestment(ctx, goal.ID, inv.ID, d("140")); !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestGoalCurrentValue(t *testing.T) {
	ctx := context.Background()

	t.Run("weights_by_allocation", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "House", "5000000", day(2030, time.January, 1))
		inv := env.addInvestment(t, stockInvestment("RELIANCE"))
		_, err := env.valuation.RecordTransaction(ctx, models.Transaction{
			InvestmentID: inv.ID, Type: models.TxBuy, Date: day(2024, time.January, 10),
			Amount: d("100000"), Units: d("100"), UnitPrice: d("1000"),
		})
		if err != nil {
			t.Fatal(err)
		}
		env.addPrice(t, "RELIANCE", day(2025, time.June, 1), "1000")
		if _, err := goals.AssignInvestment(ctx, goal.ID, inv.ID, d("40")); err != nil {
			t.Fatal(err)
		}

		current, err := goals.CurrentValue(ctx, goal.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !current.Equal(d("40000")) {
			t.Errorf("goal value = %s, want 40%% of 100000", current)
		}
	})

	t.Run("loan_subtracts_outstanding", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "House", "5000000", day(2030, time.January, 1))
		fd := env.addInvestment(t, fdInvestment("100000", "0.07", day(2025, time.June, 1), day(2028, time.June, 1)))
		loan := env.addInvestment(t, models.Investment{
			Class: models.ClassLoan,
			Name:  "Renovation loan",
			Detail: models.Detail{
				Class: models.ClassLoan,
				Loan:  &models.LoanDetail{Principal: d("50000"), AnnualRate: d("0.10"), EMI: d("5000"), StartDate: day(2025, time.June, 1)},
			},
		})
		if _, err := goals.AssignInvestment(ctx, goal.ID, fd.ID, d("100")); err != nil {
			t.Fatal(err)
		}
		if _, err := goals.AssignInvestment(ctx, goal.ID, loan.ID, d("100")); err != nil {
			t.Fatal(err)
		}

		current, err := goals.CurrentValue(ctx, goal.ID)
		if err != nil {
			t.Fatal(err)
		}
		// Both start two weeks before "now": FD still ≈ principal, loan has
		// had no EMI yet, so the net is about 50,000.
		want := d("50000")
		diff := current.Sub(want).Abs()
		if diff.GreaterThan(d("500")) {
			t.Errorf("net goal value = %s, want ≈ %s with loan subtracted", current, want)
		}
		if current.GreaterThanOrEqual(d("100000")) {
			t.Errorf("goal value = %s, loan was not subtracted", current)
		}
	})
}

func TestSimulateGoal(t *testing.T) {
	ctx := context.Background()

	t.Run("reports_shortfall_against_target", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "Car", "1000000", day(2026, time.June, 15))
		fd := env.addInvestment(t, fdInvestment("100000", "0.07", day(2025, time.January, 1), day(2028, time.January, 1)))
		if _, err := goals.AssignInvestment(ctx, goal.ID, fd.ID, d("100")); err != nil {
			t.Fatal(err)
		}

		sim, err := goals.SimulateGoal(ctx, goal.ID, d("10000"), d("0.12"))
		if err != nil {
			t.Fatal(err)
		}
		if sim.MonthsToGoal != 12 {
			t.Errorf("months = %d, want 12", sim.MonthsToGoal)
		}
		if sim.WillMeetGoal {
			t.Error("₹1L FD plus 12 SIPs of 10k cannot reach 10L in a year")
		}
		if !sim.Shortfall.IsPositive() {
			t.Errorf("shortfall = %s, want positive", sim.Shortfall)
		}
		if !sim.Shortfall.Equal(goal.TargetAmount.Sub(sim.ProjectedValue)) {
			t.Errorf("shortfall %s != target − projected %s", sim.Shortfall, goal.TargetAmount.Sub(sim.ProjectedValue))
		}
	})

	t.Run("overfunded_goal_has_zero_shortfall", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "Phone", "50000", day(2026, time.June, 15))
		fd := env.addInvestment(t, fdInvestment("100000", "0.07", day(2025, time.January, 1), day(2028, time.January, 1)))
		if _, err := goals.AssignInvestment(ctx, goal.ID, fd.ID, d("100")); err != nil {
			t.Fatal(err)
		}

		sim, err := goals.SimulateGoal(ctx, goal.ID, decimal.Zero, d("0.07"))
		if err != nil {
			t.Fatal(err)
		}
		if !sim.WillMeetGoal {
			t.Error("an FD already above target must meet the goal")
		}
		if !sim.Shortfall.IsZero() {
			t.Errorf("shortfall = %s, want zero when overfunded", sim.Shortfall)
		}
	})
}

func TestGetGoalHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("actual_path_from_snapshots", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "House", "5000000", day(2026, time.June, 15))
		fd := env.addInvestment(t, fdInvestment("100000", "0.07", day(2024, time.January, 1), day(2028, time.January, 1)))
		if _, err := goals.AssignInvestment(ctx, goal.ID, fd.ID, d("50")); err != nil {
			t.Fatal(err)
		}
		for _, month := range []string{"2024-02", "2024-01", "2024-03"} {
			err := env.store.ReplaceMonthlySnapshot(ctx, models.MonthlySnapshot{
				ID: uuid.NewString(), InvestmentID: fd.ID, Month: month,
				Invested: d("100000"), Value: d("100000"), ComputedAt: env.now,
			})
			if err != nil {
				t.Fatal(err)
			}
		}

		history, err := goals.GetGoalHistory(ctx, goal.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(history.Actual) != 3 {
			t.Fatalf("actual points = %d, want 3", len(history.Actual))
		}
		if history.Actual[0].Month != "2024-01" || history.Actual[2].Month != "2024-03" {
			t.Errorf("actual path not month-ordered: %v", history.Actual)
		}
		if !history.Actual[0].Value.Equal(d("50000")) {
			t.Errorf("actual value = %s, want 50%% of 100000", history.Actual[0].Value)
		}
		if !history.Target.Equal(d("5000000")) {
			t.Errorf("target = %s, want the goal target", history.Target)
		}
	})

	t.Run("ideal_path_ends_at_target", func(t *testing.T) {
		env, goals := newGoalEnv(t)
		goal := env.addGoal(t, "Car", "1000000", day(2026, time.June, 15))
		fd := env.addInvestment(t, fdInvestment("100000", "0.07", day(2025, time.January, 1), day(2028, time.January, 1)))
		if _, err := goals.AssignInvestment(ctx, goal.ID, fd.ID, d("100")); err != nil {
			t.Fatal(err)
		}

		history, err := goals.GetGoalHistory(ctx, goal.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(history.Ideal) == 0 {
			t.Fatal("expected an ideal path")
		}
		last := history.Ideal[len(history.Ideal)-1].Value
		diff := last.Sub(goal.TargetAmount).Abs()
		if diff.GreaterThan(d("1000")) {
			t.Errorf("ideal path ends at %s, want ≈ target %s", last, goal.TargetAmount)
		}
	})
}
