package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"prevision/internal/alert"
	"prevision/internal/amqp"
	"prevision/internal/core"
	"prevision/internal/forecast"
)

// sweepConcurrency bounds how many users a sweep evaluates in parallel.
const sweepConcurrency = 4

// AlertService evaluates spending against configured budgets and hands
// fired alerts to the broker. Publishing is fire-and-forget: the tracker
// state has already advanced, so a lost message is a missed e-mail, not
// a stuck state machine.
type AlertService struct {
	budgets   BudgetStore
	expenses  ExpenseStore
	tracker   *alert.Tracker
	publisher AlertPublisher
	now       func() time.Time
}

func NewAlertService(budgets BudgetStore, expenses ExpenseStore, tracker *alert.Tracker, publisher AlertPublisher, now func() time.Time) *AlertService {
	if now == nil {
		now = time.Now
	}
	return &AlertService{
		budgets:   budgets,
		expenses:  expenses,
		tracker:   tracker,
		publisher: publisher,
		now:       now,
	}
}

// EvaluateMonth runs one alert evaluation for the user's month. Users
// without a configured budget are skipped silently.
func (s *AlertService) EvaluateMonth(ctx context.Context, userID string, year, month int) error {
	budget, ok, err := s.budgets.GetBudget(ctx, userID)
	if err != nil {
		return fmt.Errorf("get budget: %w", err)
	}
	if !ok {
		return nil
	}

	expenses, err := s.expenses.ListExpensesForMonth(ctx, userID, year, month)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	spent, reimbursed := spendFigures(expenses)

	key := alert.Key{UserID: userID, Year: year, Month: month}
	a, err := s.tracker.Evaluate(ctx, key, spent, reimbursed, budget.MonthlyLimit)
	if err != nil {
		return fmt.Errorf("evaluate alert: %w", err)
	}
	if a == nil {
		return nil
	}

	slog.InfoContext(ctx, "Budget alert fired",
		"user", userID,
		"period", key.PeriodLabel(),
		"severity", a.Severity,
		"percent_used", a.PercentUsed)

	if s.publisher == nil {
		slog.WarnContext(ctx, "No alert publisher configured, alert not delivered",
			"user", userID, "severity", a.Severity)
		return nil
	}

	msg := &amqp.AlertMessage{
		User:        userID,
		Email:       budget.Email,
		Severity:    string(a.Severity),
		PercentUsed: a.PercentUsed,
		Spent:       a.Spent,
		Limit:       a.Limit,
		Remaining:   a.Remaining,
		PeriodLabel: key.PeriodLabel(),
		Timestamp:   s.now(),
	}
	if err := s.publisher.PublishBudgetAlert(ctx, msg); err != nil {
		// State already advanced, so the alert will not re-fire. Losing
		// the message costs one e-mail, not correctness.
		slog.ErrorContext(ctx, "Failed to publish budget alert",
			"user", userID, "severity", a.Severity, "error", err)
	}
	return nil
}

// SweepAll evaluates the current month for every user with a configured
// budget. One failing user does not stop the others.
func (s *AlertService) SweepAll(ctx context.Context) error {
	budgets, err := s.budgets.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	now := s.now()
	year, month := now.Year(), int(now.Month())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, b := range budgets {
		g.Go(func() error {
			if err := s.EvaluateMonth(ctx, b.UserID, year, month); err != nil {
				slog.ErrorContext(ctx, "Sweep evaluation failed",
					"user", b.UserID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Alert sweep completed", "users", len(budgets))
	return nil
}

// spendFigures sums what counts against the budget: the owner's portion
// of fixed and variable expenses, minus confirmed reimbursements.
func spendFigures(expenses []core.Expense) (spent, reimbursed float64) {
	for _, e := range expenses {
		switch e.Category {
		case core.CategoryReimbursement:
			if e.Received {
				reimbursed += e.Amount
			}
		default:
			spent += forecast.OwnerPortion(e)
		}
	}
	return spent, reimbursed
}
