package forecast

import (
	"testing"
	"time"

	"prevision/internal/core"
)

func anchorBreakdown() core.ForecastBreakdown {
	return core.ForecastBreakdown{
		Year:            2025,
		Month:           1,
		StartingBalance: 2000,
		ForecastBalance: 1800,
	}
}

func TestProjectZeroHorizon(t *testing.T) {
	if got := Project(anchorBreakdown(), nil, 300, 0); len(got) != 0 {
		t.Errorf("Project(horizon=0) returned %d entries, want 0", len(got))
	}
	if got := Project(anchorBreakdown(), nil, 300, -2); len(got) != 0 {
		t.Errorf("Project(horizon=-2) returned %d entries, want 0", len(got))
	}
}

func TestProjectChainsBalances(t *testing.T) {
	rent := core.RecurringTemplate{
		ID: 1, Label: "Rent", Amount: 900, Category: core.CategoryFixed,
		DayOfMonth: 1, StartDate: core.NewDate(2024, 1, 1), Active: true,
	}

	got := Project(anchorBreakdown(), []core.RecurringTemplate{rent}, 250, 6)
	if len(got) != 6 {
		t.Fatalf("Project() returned %d entries, want 6", len(got))
	}

	prev := anchorBreakdown().ForecastBalance
	for i, b := range got {
		if !almostEqual(b.StartingBalance, prev) {
			t.Errorf("month %d: StartingBalance = %v, want previous ForecastBalance %v", i+1, b.StartingBalance, prev)
		}
		if !almostEqual(b.FixedTotal, 900) {
			t.Errorf("month %d: FixedTotal = %v, want 900", i+1, b.FixedTotal)
		}
		if !almostEqual(b.VariableTotal, 250) {
			t.Errorf("month %d: VariableTotal = %v, want the 250 estimate", i+1, b.VariableTotal)
		}
		want := b.StartingBalance - 900 - 250
		if !almostEqual(b.ForecastBalance, want) {
			t.Errorf("month %d: ForecastBalance = %v, want %v", i+1, b.ForecastBalance, want)
		}
		prev = b.ForecastBalance
	}
}

func TestProjectMonthSequence(t *testing.T) {
	got := Project(core.ForecastBreakdown{Year: 2025, Month: 11, ForecastBalance: 100}, nil, 0, 4)

	wantMonths := [][2]int{{2025, 12}, {2026, 1}, {2026, 2}, {2026, 3}}
	for i, b := range got {
		if b.Year != wantMonths[i][0] || b.Month != wantMonths[i][1] {
			t.Errorf("entry %d: period = %d-%02d, want %d-%02d",
				i, b.Year, b.Month, wantMonths[i][0], wantMonths[i][1])
		}
	}
}

func TestProjectVariableOverrideReplacesRecurringVariable(t *testing.T) {
	// Even a recurring variable template is replaced by the estimate: the
	// projector treats all future variable spend as unknown.
	streaming := core.RecurringTemplate{
		ID: 2, Label: "Streaming", Amount: 15, Category: core.CategoryVariable,
		DayOfMonth: 10, StartDate: core.NewDate(2024, 1, 1), Active: true,
	}

	got := Project(anchorBreakdown(), []core.RecurringTemplate{streaming}, 400, 1)
	if len(got) != 1 {
		t.Fatalf("Project() returned %d entries, want 1", len(got))
	}
	if !almostEqual(got[0].VariableTotal, 400) {
		t.Errorf("VariableTotal = %v, want the 400 estimate, not the template amount", got[0].VariableTotal)
	}
}

func TestProjectTemplateWindowHonored(t *testing.T) {
	ending := core.RecurringTemplate{
		ID: 3, Label: "Loan", Amount: 120, Category: core.CategoryFixed,
		DayOfMonth: 15, StartDate: core.NewDate(2024, 1, 1),
		EndDate: core.NewDate(2025, 3, 31), Active: true,
	}

	got := Project(anchorBreakdown(), []core.RecurringTemplate{ending}, 0, 4)

	// February and March fall inside the window, April and May outside.
	wantFixed := []float64{120, 120, 0, 0}
	for i, b := range got {
		if !almostEqual(b.FixedTotal, wantFixed[i]) {
			t.Errorf("month %d-%02d: FixedTotal = %v, want %v", b.Year, b.Month, b.FixedTotal, wantFixed[i])
		}
	}
}

func TestProjectIsIdempotent(t *testing.T) {
	rent := core.RecurringTemplate{
		ID: 1, Label: "Rent", Amount: 900, Category: core.CategoryFixed,
		DayOfMonth: 1, StartDate: core.NewDate(2024, 1, 1), Active: true,
	}
	templates := []core.RecurringTemplate{rent}

	first := Project(anchorBreakdown(), templates, 250, 3)
	second := Project(anchorBreakdown(), templates, 250, 3)
	if len(first) != len(second) {
		t.Fatalf("projection lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("entry %d differs between identical projections: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		year      int
		month     time.Month
		n         int
		wantYear  int
		wantMonth time.Month
	}{
		{2025, time.January, 1, 2025, time.February},
		{2025, time.December, 1, 2026, time.January},
		{2025, time.November, 3, 2026, time.February},
		{2025, time.June, 12, 2026, time.June},
	}
	for _, tt := range tests {
		y, m := AddMonths(tt.year, tt.month, tt.n)
		if y != tt.wantYear || m != tt.wantMonth {
			t.Errorf("AddMonths(%d, %v, %d) = (%d, %v), want (%d, %v)",
				tt.year, tt.month, tt.n, y, m, tt.wantYear, tt.wantMonth)
		}
	}
}
