package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"prevision/internal/core"
	"prevision/internal/forecast"
)

// trailingMonths is how far back the variable-spend estimate looks.
const trailingMonths = 3

// AffordabilityResult answers "can I spend this now without going
// negative before the horizon ends".
type AffordabilityResult struct {
	Affordable bool
	Amount     float64
	Horizon    int
	// MinBalance is the lowest forecast balance reached across the
	// current month and every projected one, with the purchase included.
	MinBalance float64
}

// ForecastService derives per-month breakdowns and rolling projections
// from stored expenses and recurring templates.
type ForecastService struct {
	periods   PeriodStore
	expenses  ExpenseStore
	templates TemplateStore
}

func NewForecastService(periods PeriodStore, expenses ExpenseStore, templates TemplateStore) *ForecastService {
	return &ForecastService{periods: periods, expenses: expenses, templates: templates}
}

// MonthForecast computes the breakdown for one month: stored expenses
// plus the occurrences of every recurring template that applies there.
// Templates are resolved on the fly and never written to storage, so
// the same month can be recomputed any number of times.
func (s *ForecastService) MonthForecast(ctx context.Context, userID string, year, month int) (core.ForecastBreakdown, error) {
	if month < 1 || month > 12 {
		return core.ForecastBreakdown{}, core.ErrInvalidMonth
	}

	period, err := s.periods.FindOrCreatePeriod(ctx, userID, year, month)
	if err != nil {
		return core.ForecastBreakdown{}, fmt.Errorf("load period: %w", err)
	}

	expenses, err := s.monthExpenses(ctx, userID, year, month)
	if err != nil {
		return core.ForecastBreakdown{}, err
	}

	b := forecast.Aggregate(period.StartingBalance, expenses)
	b.Year = year
	b.Month = month
	return b, nil
}

// Projection returns the anchor month's breakdown followed by
// horizonMonths projected ones. Future variable spending is estimated
// with the trailing three-month average of observed variable totals.
func (s *ForecastService) Projection(ctx context.Context, userID string, year, month, horizonMonths int) ([]core.ForecastBreakdown, error) {
	anchor, err := s.MonthForecast(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}

	templates, err := s.templates.ListTemplates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	avg, err := s.trailingVariableAverage(ctx, userID, year, month)
	if err != nil {
		return nil, err
	}

	out := []core.ForecastBreakdown{anchor}
	out = append(out, forecast.Project(anchor, templates, avg, horizonMonths)...)

	slog.InfoContext(ctx, "Projection computed",
		"user", userID,
		"anchor", fmt.Sprintf("%04d-%02d", year, month),
		"horizon_months", horizonMonths,
		"avg_variable", avg)
	return out, nil
}

// CarryForward closes a month by writing its forecast balance as the
// next month's starting balance. Re-running it after more expenses land
// simply overwrites the next month's opening.
func (s *ForecastService) CarryForward(ctx context.Context, userID string, year, month int) (core.Period, error) {
	b, err := s.MonthForecast(ctx, userID, year, month)
	if err != nil {
		return core.Period{}, err
	}

	nextYear, nextMonth := forecast.AddMonths(year, time.Month(month), 1)
	next, err := s.periods.SetStartingBalance(ctx, userID, nextYear, int(nextMonth), b.ForecastBalance)
	if err != nil {
		return core.Period{}, fmt.Errorf("carry forward: %w", err)
	}

	slog.InfoContext(ctx, "Balance carried forward",
		"user", userID,
		"from", fmt.Sprintf("%04d-%02d", year, month),
		"to", fmt.Sprintf("%04d-%02d", nextYear, nextMonth),
		"balance", b.ForecastBalance)
	return next, nil
}

// Affordability simulates a one-off variable purchase in the given month
// and reports whether every balance through the horizon stays at or
// above zero.
func (s *ForecastService) Affordability(ctx context.Context, userID string, year, month int, amount float64, horizonMonths int) (AffordabilityResult, error) {
	if !(amount > 0) {
		return AffordabilityResult{}, core.ErrInvalidAmount
	}

	anchor, err := s.MonthForecast(ctx, userID, year, month)
	if err != nil {
		return AffordabilityResult{}, err
	}

	// The purchase lands in the anchor month as plain variable spend.
	anchor.VariableTotal += amount
	anchor.ForecastBalance -= amount
	anchor.ForecastBalanceWithPending -= amount

	templates, err := s.templates.ListTemplates(ctx, userID)
	if err != nil {
		return AffordabilityResult{}, fmt.Errorf("list templates: %w", err)
	}
	avg, err := s.trailingVariableAverage(ctx, userID, year, month)
	if err != nil {
		return AffordabilityResult{}, err
	}

	min := anchor.ForecastBalance
	for _, b := range forecast.Project(anchor, templates, avg, horizonMonths) {
		if b.ForecastBalance < min {
			min = b.ForecastBalance
		}
	}

	return AffordabilityResult{
		Affordable: min >= 0,
		Amount:     amount,
		Horizon:    horizonMonths,
		MinBalance: min,
	}, nil
}

// trailingVariableAverage averages the observed variable totals of the
// anchor month and the two before it. Months without any expenses still
// count as zero, keeping the estimate honest for new users.
func (s *ForecastService) trailingVariableAverage(ctx context.Context, userID string, year, month int) (float64, error) {
	var sum float64
	for i := 0; i < trailingMonths; i++ {
		y, m := forecast.AddMonths(year, time.Month(month), -i)
		expenses, err := s.monthExpenses(ctx, userID, y, int(m))
		if err != nil {
			return 0, err
		}
		b := forecast.Aggregate(0, expenses)
		sum += b.VariableTotal
	}
	return sum / trailingMonths, nil
}

func (s *ForecastService) monthExpenses(ctx context.Context, userID string, year, month int) ([]core.Expense, error) {
	expenses, err := s.expenses.ListExpensesForMonth(ctx, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	templates, err := s.templates.ListTemplates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	for _, occ := range forecast.ResolveAll(templates, year, time.Month(month)) {
		expenses = append(expenses, occ.Expense())
	}
	return expenses, nil
}
