package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"prevision/internal/core"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func seedRent(t *testing.T, store *fakeStore, user string) {
	t.Helper()
	_, err := store.CreateTemplate(context.Background(), user, core.RecurringTemplate{
		Label:      "Rent",
		Amount:     900,
		Category:   core.CategoryFixed,
		DayOfMonth: 1,
		StartDate:  core.NewDate(2024, 1, 1),
		Active:     true,
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
}

func TestMonthForecastCombinesExpensesAndTemplates(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	svc := NewForecastService(store, store, store)

	seedRent(t, store, "alice")
	store.SetStartingBalance(ctx, "alice", 2025, 3, 2000)
	store.CreateExpense(ctx, "alice", 2025, 3, core.Expense{
		Day: 5, Label: "Groceries", Amount: 150, Category: core.CategoryVariable,
	})

	b, err := svc.MonthForecast(ctx, "alice", 2025, 3)
	if err != nil {
		t.Fatalf("MonthForecast() error = %v", err)
	}
	if !almostEqual(b.FixedTotal, 900) {
		t.Errorf("FixedTotal = %v, want 900 from the rent template", b.FixedTotal)
	}
	if !almostEqual(b.VariableTotal, 150) {
		t.Errorf("VariableTotal = %v, want 150", b.VariableTotal)
	}
	if !almostEqual(b.ForecastBalance, 2000-900-150) {
		t.Errorf("ForecastBalance = %v, want 950", b.ForecastBalance)
	}
	if b.Year != 2025 || b.Month != 3 {
		t.Errorf("period = %d-%02d, want 2025-03", b.Year, b.Month)
	}
}

func TestMonthForecastIsRepeatable(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	svc := NewForecastService(store, store, store)
	seedRent(t, store, "alice")

	first, err := svc.MonthForecast(ctx, "alice", 2025, 3)
	if err != nil {
		t.Fatalf("MonthForecast() error = %v", err)
	}
	second, err := svc.MonthForecast(ctx, "alice", 2025, 3)
	if err != nil {
		t.Fatalf("MonthForecast() second call error = %v", err)
	}
	if first != second {
		t.Errorf("repeated forecast differs: %+v vs %+v (templates must not accumulate)", first, second)
	}
}

func TestMonthForecastRejectsBadMonth(t *testing.T) {
	svc := NewForecastService(newFakeStore(), newFakeStore(), newFakeStore())
	for _, month := range []int{0, 13, -1} {
		if _, err := svc.MonthForecast(context.Background(), "alice", 2025, month); !errors.Is(err, core.ErrInvalidMonth) {
			t.Errorf("MonthForecast(month=%d) error = %v, want ErrInvalidMonth", month, err)
		}
	}
}

func TestProjectionUsesTrailingVariableAverage(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	svc := NewForecastService(store, store, store)

	// Variable spend of 300, 150 and 150 across the trailing window.
	store.CreateExpense(ctx, "alice", 2025, 1, core.Expense{Day: 5, Label: "a", Amount: 300, Category: core.CategoryVariable})
	store.CreateExpense(ctx, "alice", 2025, 2, core.Expense{Day: 5, Label: "b", Amount: 150, Category: core.CategoryVariable})
	store.CreateExpense(ctx, "alice", 2025, 3, core.Expense{Day: 5, Label: "c", Amount: 150, Category: core.CategoryVariable})

	out, err := svc.Projection(ctx, "alice", 2025, 3, 2)
	if err != nil {
		t.Fatalf("Projection() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("Projection() returned %d entries, want anchor + 2", len(out))
	}

	wantAvg := (300.0 + 150.0 + 150.0) / 3
	for _, b := range out[1:] {
		if !almostEqual(b.VariableTotal, wantAvg) {
			t.Errorf("projected %d-%02d VariableTotal = %v, want trailing average %v",
				b.Year, b.Month, b.VariableTotal, wantAvg)
		}
	}
	// The anchor keeps its observed figure.
	if !almostEqual(out[0].VariableTotal, 150) {
		t.Errorf("anchor VariableTotal = %v, want observed 150", out[0].VariableTotal)
	}
}

func TestProjectionChainsFromAnchor(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	svc := NewForecastService(store, store, store)
	seedRent(t, store, "alice")
	store.SetStartingBalance(ctx, "alice", 2025, 3, 5000)

	out, err := svc.Projection(ctx, "alice", 2025, 3, 3)
	if err != nil {
		t.Fatalf("Projection() error = %v", err)
	}

	prev := out[0].ForecastBalance
	for _, b := range out[1:] {
		if !almostEqual(b.StartingBalance, prev) {
			t.Errorf("%d-%02d StartingBalance = %v, want previous balance %v", b.Year, b.Month, b.StartingBalance, prev)
		}
		prev = b.ForecastBalance
	}
}

func TestCarryForward(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	svc := NewForecastService(store, store, store)

	store.SetStartingBalance(ctx, "alice", 2025, 12, 1000)
	store.CreateExpense(ctx, "alice", 2025, 12, core.Expense{
		Day: 3, Label: "Gifts", Amount: 400, Category: core.CategoryVariable,
	})

	next, err := svc.CarryForward(ctx, "alice", 2025, 12)
	if err != nil {
		t.Fatalf("CarryForward() error = %v", err)
	}
	if next.Year != 2026 || next.Month != 1 {
		t.Errorf("next period = %d-%02d, want 2026-01", next.Year, next.Month)
	}
	if !almostEqual(next.StartingBalance, 600) {
		t.Errorf("next StartingBalance = %v, want 600", next.StartingBalance)
	}

	// Closing again after another expense overwrites the opening.
	store.CreateExpense(ctx, "alice", 2025, 12, core.Expense{
		Day: 30, Label: "More gifts", Amount: 100, Category: core.CategoryVariable,
	})
	next, err = svc.CarryForward(ctx, "alice", 2025, 12)
	if err != nil {
		t.Fatalf("CarryForward() rerun error = %v", err)
	}
	if !almostEqual(next.StartingBalance, 500) {
		t.Errorf("StartingBalance after rerun = %v, want 500", next.StartingBalance)
	}
}

func TestAffordability(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	svc := NewForecastService(store, store, store)
	seedRent(t, store, "alice")
	store.SetStartingBalance(ctx, "alice", 2025, 3, 2000)

	// 2000 opening, 900 rent per month: about 1100 free this month, then
	// 200 left after the next month's rent.
	affordable, err := svc.Affordability(ctx, "alice", 2025, 3, 100, 1)
	if err != nil {
		t.Fatalf("Affordability() error = %v", err)
	}
	if !affordable.Affordable {
		t.Errorf("Affordability(100) = %+v, want affordable", affordable)
	}

	tooMuch, err := svc.Affordability(ctx, "alice", 2025, 3, 500, 1)
	if err != nil {
		t.Fatalf("Affordability() error = %v", err)
	}
	if tooMuch.Affordable {
		t.Errorf("Affordability(500) = %+v, want not affordable (would go negative next month)", tooMuch)
	}
	if tooMuch.MinBalance >= 0 {
		t.Errorf("MinBalance = %v, want negative", tooMuch.MinBalance)
	}
}

func TestAffordabilityRejectsNonPositiveAmount(t *testing.T) {
	svc := NewForecastService(newFakeStore(), newFakeStore(), newFakeStore())
	for _, amount := range []float64{0, -50} {
		if _, err := svc.Affordability(context.Background(), "alice", 2025, 3, amount, 3); !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("Affordability(amount=%v) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}
