package services

import (
	"context"
	"fmt"
	"log/slog"

	"prevision/internal/core"
)

// ExpenseService writes expenses and triggers budget evaluation after
// every new entry. Alert evaluation failures never fail the write: the
// expense is saved, the periodic sweep will catch up.
type ExpenseService struct {
	expenses ExpenseStore
	alerts   *AlertService
}

func NewExpenseService(expenses ExpenseStore, alerts *AlertService) *ExpenseService {
	return &ExpenseService{expenses: expenses, alerts: alerts}
}

func (s *ExpenseService) AddExpense(ctx context.Context, userID string, year, month int, e core.Expense) (core.Expense, error) {
	if month < 1 || month > 12 {
		return core.Expense{}, core.ErrInvalidMonth
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	created, err := s.expenses.CreateExpense(ctx, userID, year, month, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.evaluateAlerts(ctx, userID, year, month)
	return created, nil
}

// MarkReceived confirms (or un-confirms) a reimbursement.
func (s *ExpenseService) MarkReceived(ctx context.Context, id int64, received bool) error {
	return s.expenses.SetExpenseReceived(ctx, id, received)
}

// MarkDeducted toggles the bookkeeping flag.
func (s *ExpenseService) MarkDeducted(ctx context.Context, id int64, deducted bool) error {
	return s.expenses.SetExpenseDeducted(ctx, id, deducted)
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	return s.expenses.SoftDeleteExpense(ctx, id)
}

func (s *ExpenseService) ListMonth(ctx context.Context, userID string, year, month int) ([]core.Expense, error) {
	if month < 1 || month > 12 {
		return nil, core.ErrInvalidMonth
	}
	return s.expenses.ListExpensesForMonth(ctx, userID, year, month)
}

func (s *ExpenseService) evaluateAlerts(ctx context.Context, userID string, year, month int) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.EvaluateMonth(ctx, userID, year, month); err != nil {
		slog.ErrorContext(ctx, "Alert evaluation after expense failed",
			"user", userID, "year", year, "month", month, "error", err)
	}
}
