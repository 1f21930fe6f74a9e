// Package services orchestrates the forecast engine, storage, alert
// tracking and messaging behind the HTTP handlers and the worker.
package services

import (
	"context"

	"prevision/internal/amqp"
	"prevision/internal/core"
	"prevision/internal/storage"
)

// Store interfaces kept small so tests can fake exactly what a service
// touches. *storage.SQLiteRepository satisfies all of them.
type (
	PeriodStore interface {
		FindOrCreatePeriod(ctx context.Context, userID string, year, month int) (core.Period, error)
		SetStartingBalance(ctx context.Context, userID string, year, month int, balance float64) (core.Period, error)
	}

	ExpenseStore interface {
		CreateExpense(ctx context.Context, userID string, year, month int, e core.Expense) (core.Expense, error)
		SetExpenseReceived(ctx context.Context, id int64, received bool) error
		SetExpenseDeducted(ctx context.Context, id int64, deducted bool) error
		SoftDeleteExpense(ctx context.Context, id int64) error
		ListExpensesForMonth(ctx context.Context, userID string, year, month int) ([]core.Expense, error)
	}

	TemplateStore interface {
		CreateTemplate(ctx context.Context, userID string, t core.RecurringTemplate) (core.RecurringTemplate, error)
		UpdateTemplate(ctx context.Context, userID string, t core.RecurringTemplate) error
		DeactivateTemplate(ctx context.Context, userID string, id int64) error
		ListTemplates(ctx context.Context, userID string) ([]core.RecurringTemplate, error)
	}

	BudgetStore interface {
		UpsertBudget(ctx context.Context, userID string, monthlyLimit float64, email string) error
		GetBudget(ctx context.Context, userID string) (storage.UserBudget, bool, error)
		ListBudgets(ctx context.Context) ([]storage.UserBudget, error)
	}

	IncomeStore interface {
		PutIncome(ctx context.Context, userID string, year, month int, ciphertext []byte) error
		GetIncome(ctx context.Context, userID string, year, month int) ([]byte, bool, error)
	}

	// AlertPublisher hands alerts to the message broker for asynchronous
	// delivery. *amqp.Client satisfies it.
	AlertPublisher interface {
		PublishBudgetAlert(ctx context.Context, msg *amqp.AlertMessage) error
	}
)
