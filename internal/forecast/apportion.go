// Package forecast implements the budget forecasting engine: expense
// apportionment, recurring-template resolution, per-period aggregation
// and the rolling multi-month projection. Everything here is a pure
// function over its inputs; loading and persisting data is the caller's
// job.
package forecast

import "prevision/internal/core"

// Shares is the outcome of splitting an expense between its owner and
// the counterparty.
type Shares struct {
	Owner        float64
	Counterparty float64
}

// Apportion splits a full expense amount according to its sharing policy.
//
// A percentage policy without a value degrades to an equal split; a
// fixed-amount policy without a value degrades to no split at all. Both
// fallbacks reproduce long-standing behavior and are kept for
// compatibility. Out-of-range values are accepted as given: bounds are
// the boundary layer's concern.
func Apportion(fullAmount float64, policy core.SharingPolicy) Shares {
	switch policy.Mode {
	case core.ShareEqual:
		half := fullAmount / 2
		return Shares{Owner: half, Counterparty: half}
	case core.SharePercentage:
		if policy.Value == nil {
			half := fullAmount / 2
			return Shares{Owner: half, Counterparty: half}
		}
		owner := fullAmount * *policy.Value / 100
		return Shares{Owner: owner, Counterparty: fullAmount - owner}
	case core.ShareFixedAmount:
		if policy.Value == nil {
			return Shares{Owner: fullAmount}
		}
		return Shares{Owner: *policy.Value, Counterparty: fullAmount - *policy.Value}
	default:
		return Shares{Owner: fullAmount}
	}
}

// OwnerPortion returns only the owner's share of an expense, the full
// amount when the expense is not shared.
func OwnerPortion(e core.Expense) float64 {
	if !e.Sharing.Shared() {
		return e.Amount
	}
	return Apportion(e.Amount, e.Sharing).Owner
}
