package forecast

import "prevision/internal/core"

// Aggregate folds a period's expenses into its forecast breakdown.
//
// Shared fixed and variable expenses contribute only the owner's portion.
// Reimbursements are never apportioned: they are money owed back to the
// user, counted at full amount, routed to received or pending depending
// on their flag. A NaN amount flows through the totals untouched so a
// corrupted forecast is visibly wrong rather than subtly wrong.
func Aggregate(startingBalance float64, expenses []core.Expense) core.ForecastBreakdown {
	b := core.ForecastBreakdown{StartingBalance: startingBalance}

	for _, e := range expenses {
		switch e.Category {
		case core.CategoryFixed:
			b.FixedTotal += OwnerPortion(e)
		case core.CategoryVariable:
			b.VariableTotal += OwnerPortion(e)
		case core.CategoryReimbursement:
			if e.Received {
				b.ReimbursementsReceived += e.Amount
			} else {
				b.ReimbursementsPending += e.Amount
			}
		}
	}

	return derive(b)
}

// derive recomputes the two balances from the four totals.
func derive(b core.ForecastBreakdown) core.ForecastBreakdown {
	b.ForecastBalance = b.StartingBalance - b.FixedTotal - b.VariableTotal + b.ReimbursementsReceived
	b.ForecastBalanceWithPending = b.ForecastBalance + b.ReimbursementsPending
	return b
}
