package forecast

import (
	"time"

	"prevision/internal/core"
)

// Project chains single-month forecasts into a rolling projection of
// horizonMonths future periods, nearest first.
//
// Each iteration resolves the recurring templates against the target
// month, aggregates them on top of the previous iteration's forecast
// balance (the anchor's balance seeds the first), and overrides the
// variable total with avgVariable: future variable spending is always an
// estimate, never observed data. The fold is strictly sequential; month
// i+1 cannot be computed before month i.
func Project(anchor core.ForecastBreakdown, templates []core.RecurringTemplate, avgVariable float64, horizonMonths int) []core.ForecastBreakdown {
	if horizonMonths <= 0 {
		return nil
	}

	out := make([]core.ForecastBreakdown, 0, horizonMonths)
	balance := anchor.ForecastBalance

	for i := 1; i <= horizonMonths; i++ {
		year, month := AddMonths(anchor.Year, time.Month(anchor.Month), i)

		occurrences := ResolveAll(templates, year, month)
		expenses := make([]core.Expense, len(occurrences))
		for j, occ := range occurrences {
			expenses[j] = occ.Expense()
		}

		b := Aggregate(balance, expenses)
		b.Year = year
		b.Month = int(month)
		b.VariableTotal = avgVariable
		b = derive(b)

		out = append(out, b)
		balance = b.ForecastBalance
	}

	return out
}

// AddMonths offsets a (year, month) pair by n months, normalizing the
// year boundary.
func AddMonths(year int, month time.Month, n int) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return t.Year(), t.Month()
}
