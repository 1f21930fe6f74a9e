// Package storage is the SQLite persistence layer: periods, expenses,
// recurring templates, budget settings, encrypted incomes and alert state.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"prevision/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// UserBudget pairs a user with their configured monthly limit, used by
// the alert sweep to enumerate who needs evaluation.
type UserBudget struct {
	UserID       string
	MonthlyLimit float64
	Email        string
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// FindOrCreatePeriod returns the period row for (user, year, month),
// inserting it with a zero starting balance on first access.
func (r *SQLiteRepository) FindOrCreatePeriod(ctx context.Context, userID string, year, month int) (core.Period, error) {
	p := core.Period{UserID: userID, Year: year, Month: month}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, starting_balance FROM periods WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month,
	).Scan(&p.ID, &p.StartingBalance)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Period{}, fmt.Errorf("find period: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO periods (user_id, year, month, starting_balance) VALUES (?, ?, ?, 0)`,
		userID, year, month)
	if err != nil {
		return core.Period{}, fmt.Errorf("create period: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return core.Period{}, fmt.Errorf("period insert id: %w", err)
	}

	slog.InfoContext(ctx, "Period created", "user", userID, "year", year, "month", month)
	return p, nil
}

// SetStartingBalance updates a period's opening balance, creating the
// period if it does not exist yet.
func (r *SQLiteRepository) SetStartingBalance(ctx context.Context, userID string, year, month int, balance float64) (core.Period, error) {
	p, err := r.FindOrCreatePeriod(ctx, userID, year, month)
	if err != nil {
		return core.Period{}, err
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE periods SET starting_balance = ? WHERE id = ?`, balance, p.ID); err != nil {
		return core.Period{}, fmt.Errorf("set starting balance: %w", err)
	}
	p.StartingBalance = balance

	slog.InfoContext(ctx, "Starting balance set",
		"user", userID, "year", year, "month", month, "balance", balance)
	return p, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, userID string, year, month int, e core.Expense) (core.Expense, error) {
	p, err := r.FindOrCreatePeriod(ctx, userID, year, month)
	if err != nil {
		return core.Expense{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (period_id, day, label, amount, category, share_mode, share_value, counterparty, received, deducted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, e.Day, e.Label, e.Amount, string(e.Category),
		string(e.Sharing.Mode), nullFloat(e.Sharing.Value), e.Sharing.Counterparty,
		e.Received, e.Deducted)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	e.ID, err = res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID,
		"user", userID,
		"label", e.Label,
		"amount", e.Amount,
		"category", e.Category,
		"day", e.Day)
	return e, nil
}

// SetExpenseReceived flags a reimbursement as confirmed (or pending again).
func (r *SQLiteRepository) SetExpenseReceived(ctx context.Context, id int64, received bool) error {
	return r.setExpenseFlag(ctx, id, "received", received)
}

// SetExpenseDeducted toggles the bookkeeping flag on an expense.
func (r *SQLiteRepository) SetExpenseDeducted(ctx context.Context, id int64, deducted bool) error {
	return r.setExpenseFlag(ctx, id, "deducted", deducted)
}

func (r *SQLiteRepository) setExpenseFlag(ctx context.Context, id int64, column string, value bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET `+column+` = ? WHERE id = ? AND deleted_at IS NULL`, value, id)
	if err != nil {
		return fmt.Errorf("set expense %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set expense %s: %w", column, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteExpense hides an expense from every listing without losing
// the row. Deleting twice reports ErrNotFound.
func (r *SQLiteRepository) SoftDeleteExpense(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Expense deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) ListExpensesForMonth(ctx context.Context, userID string, year, month int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.day, e.label, e.amount, e.category, e.share_mode, e.share_value, e.counterparty, e.received, e.deducted
		 FROM expenses e
		 JOIN periods p ON p.id = e.period_id
		 WHERE p.user_id = ? AND p.year = ? AND p.month = ? AND e.deleted_at IS NULL
		 ORDER BY e.day, e.id`,
		userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			e          core.Expense
			mode       string
			shareValue sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.Day, &e.Label, &e.Amount, &e.Category,
			&mode, &shareValue, &e.Sharing.Counterparty, &e.Received, &e.Deducted); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Sharing.Mode = core.SharingMode(mode)
		if shareValue.Valid {
			v := shareValue.Float64
			e.Sharing.Value = &v
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func (r *SQLiteRepository) CreateTemplate(ctx context.Context, userID string, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_templates (user_id, label, amount, category, day_of_month, start_date, end_date, active, share_mode, share_value, counterparty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, t.Label, t.Amount, string(t.Category), t.DayOfMonth,
		t.StartDate.Format(dateLayout), nullDate(t.EndDate), t.Active,
		string(t.Sharing.Mode), nullFloat(t.Sharing.Value), t.Sharing.Counterparty)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("create template: %w", err)
	}

	t.ID, err = res.LastInsertId()
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("template insert id: %w", err)
	}

	slog.InfoContext(ctx, "Recurring template created",
		"id", t.ID, "user", userID, "label", t.Label, "amount", t.Amount)
	return t, nil
}

func (r *SQLiteRepository) UpdateTemplate(ctx context.Context, userID string, t core.RecurringTemplate) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates
		 SET label = ?, amount = ?, category = ?, day_of_month = ?, start_date = ?, end_date = ?, active = ?, share_mode = ?, share_value = ?, counterparty = ?
		 WHERE id = ? AND user_id = ?`,
		t.Label, t.Amount, string(t.Category), t.DayOfMonth,
		t.StartDate.Format(dateLayout), nullDate(t.EndDate), t.Active,
		string(t.Sharing.Mode), nullFloat(t.Sharing.Value), t.Sharing.Counterparty,
		t.ID, userID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateTemplate stops a template from producing future occurrences
// while keeping it around for history.
func (r *SQLiteRepository) DeactivateTemplate(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_templates SET active = 0 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Recurring template deactivated", "id", id, "user", userID)
	return nil
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context, userID string) ([]core.RecurringTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, label, amount, category, day_of_month, start_date, end_date, active, share_mode, share_value, counterparty
		 FROM recurring_templates WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []core.RecurringTemplate
	for rows.Next() {
		var (
			t          core.RecurringTemplate
			start      string
			end        sql.NullString
			mode       string
			shareValue sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.Label, &t.Amount, &t.Category, &t.DayOfMonth,
			&start, &end, &t.Active, &mode, &shareValue, &t.Sharing.Counterparty); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if t.StartDate, err = parseDate(start); err != nil {
			return nil, fmt.Errorf("template %d start date: %w", t.ID, err)
		}
		if end.Valid && end.String != "" {
			if t.EndDate, err = parseDate(end.String); err != nil {
				return nil, fmt.Errorf("template %d end date: %w", t.ID, err)
			}
		}
		t.Sharing.Mode = core.SharingMode(mode)
		if shareValue.Valid {
			v := shareValue.Float64
			t.Sharing.Value = &v
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// UpsertBudget stores a user's monthly spending limit and the address
// alert e-mails go to.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, userID string, monthlyLimit float64, email string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budget_settings (user_id, monthly_limit, email, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET monthly_limit = excluded.monthly_limit, email = excluded.email, updated_at = excluded.updated_at`,
		userID, monthlyLimit, email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget limit set", "user", userID, "limit", monthlyLimit)
	return nil
}

// GetBudget returns the user's budget settings. ok is false when the
// user never configured a limit.
func (r *SQLiteRepository) GetBudget(ctx context.Context, userID string) (UserBudget, bool, error) {
	b := UserBudget{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT monthly_limit, email FROM budget_settings WHERE user_id = ?`, userID,
	).Scan(&b.MonthlyLimit, &b.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return UserBudget{}, false, nil
	}
	if err != nil {
		return UserBudget{}, false, fmt.Errorf("get budget: %w", err)
	}
	return b, true, nil
}

// ListBudgets returns every user with a configured limit, for the sweep.
func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]UserBudget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, monthly_limit, email FROM budget_settings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []UserBudget
	for rows.Next() {
		var b UserBudget
		if err := rows.Scan(&b.UserID, &b.MonthlyLimit, &b.Email); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

// PutIncome stores the encrypted income figure for a month. The
// repository never sees the plaintext.
func (r *SQLiteRepository) PutIncome(ctx context.Context, userID string, year, month int, ciphertext []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO incomes (user_id, year, month, ciphertext, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, year, month) DO UPDATE SET ciphertext = excluded.ciphertext, updated_at = excluded.updated_at`,
		userID, year, month, ciphertext, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put income: %w", err)
	}

	slog.InfoContext(ctx, "Income recorded", "user", userID, "year", year, "month", month)
	return nil
}

func (r *SQLiteRepository) GetIncome(ctx context.Context, userID string, year, month int) ([]byte, bool, error) {
	var ciphertext []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT ciphertext FROM incomes WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month,
	).Scan(&ciphertext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get income: %w", err)
	}
	return ciphertext, true, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullDate(d core.Date) sql.NullString {
	if d.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Format(dateLayout), Valid: true}
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, err
	}
	return core.Date{Time: t}, nil
}
