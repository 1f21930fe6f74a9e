// Package core provides the budget domain model and amount parsing.
//
// Amounts are float64 euros rather than integer cents: the forecasting
// engine's contract is that an unparseable amount reaching it propagates
// as NaN instead of being masked, and the apportionment math produces
// fractional portions (percentage splits) that the boundary rounds only
// for display.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a decimal string to a positive float64 amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns an error for invalid formats, signed values, or zero amounts.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return 0, ErrInvalidAmount
			}
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !(v > 0) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatAmount renders an amount with two decimals and a comma separator
// for display purposes.
func FormatAmount(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.ReplaceAll(s, ".", ",")
	if neg {
		return "-€" + s
	}
	return "€" + s
}
