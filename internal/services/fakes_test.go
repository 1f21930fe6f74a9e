package services

import (
	"context"
	"errors"
	"sync"

	"prevision/internal/amqp"
	"prevision/internal/core"
	"prevision/internal/storage"
)

type periodKey struct {
	user        string
	year, month int
}

// fakeStore is an in-memory stand-in for the SQLite repository.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	periods   map[periodKey]core.Period
	expenses  map[periodKey][]core.Expense
	templates map[string][]core.RecurringTemplate
	budgets   map[string]storage.UserBudget
	incomes   map[periodKey][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		periods:   make(map[periodKey]core.Period),
		expenses:  make(map[periodKey][]core.Expense),
		templates: make(map[string][]core.RecurringTemplate),
		budgets:   make(map[string]storage.UserBudget),
		incomes:   make(map[periodKey][]byte),
	}
}

func (f *fakeStore) FindOrCreatePeriod(_ context.Context, userID string, year, month int) (core.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := periodKey{userID, year, month}
	if p, ok := f.periods[k]; ok {
		return p, nil
	}
	f.nextID++
	p := core.Period{ID: f.nextID, UserID: userID, Year: year, Month: month}
	f.periods[k] = p
	return p, nil
}

func (f *fakeStore) SetStartingBalance(ctx context.Context, userID string, year, month int, balance float64) (core.Period, error) {
	p, _ := f.FindOrCreatePeriod(ctx, userID, year, month)
	f.mu.Lock()
	defer f.mu.Unlock()
	p.StartingBalance = balance
	f.periods[periodKey{userID, year, month}] = p
	return p, nil
}

func (f *fakeStore) CreateExpense(_ context.Context, userID string, year, month int, e core.Expense) (core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	k := periodKey{userID, year, month}
	f.expenses[k] = append(f.expenses[k], e)
	return e, nil
}

func (f *fakeStore) SetExpenseReceived(_ context.Context, id int64, received bool) error {
	return f.updateExpense(id, func(e *core.Expense) { e.Received = received })
}

func (f *fakeStore) SetExpenseDeducted(_ context.Context, id int64, deducted bool) error {
	return f.updateExpense(id, func(e *core.Expense) { e.Deducted = deducted })
}

func (f *fakeStore) updateExpense(id int64, apply func(*core.Expense)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, list := range f.expenses {
		for i := range list {
			if list[i].ID == id {
				apply(&list[i])
				f.expenses[k] = list
				return nil
			}
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) SoftDeleteExpense(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, list := range f.expenses {
		for i := range list {
			if list[i].ID == id {
				f.expenses[k] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) ListExpensesForMonth(_ context.Context, userID string, year, month int) ([]core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.expenses[periodKey{userID, year, month}]
	out := make([]core.Expense, len(list))
	copy(out, list)
	return out, nil
}

func (f *fakeStore) CreateTemplate(_ context.Context, userID string, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t.ID = f.nextID
	f.templates[userID] = append(f.templates[userID], t)
	return t, nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, userID string, t core.RecurringTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.templates[userID] {
		if existing.ID == t.ID {
			f.templates[userID][i] = t
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) DeactivateTemplate(_ context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.templates[userID] {
		if existing.ID == id {
			f.templates[userID][i].Active = false
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) ListTemplates(_ context.Context, userID string) ([]core.RecurringTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.RecurringTemplate, len(f.templates[userID]))
	copy(out, f.templates[userID])
	return out, nil
}

func (f *fakeStore) UpsertBudget(_ context.Context, userID string, monthlyLimit float64, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budgets[userID] = storage.UserBudget{UserID: userID, MonthlyLimit: monthlyLimit, Email: email}
	return nil
}

func (f *fakeStore) GetBudget(_ context.Context, userID string) (storage.UserBudget, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgets[userID]
	return b, ok, nil
}

func (f *fakeStore) ListBudgets(_ context.Context) ([]storage.UserBudget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.UserBudget
	for _, b := range f.budgets {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) PutIncome(_ context.Context, userID string, year, month int, ciphertext []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incomes[periodKey{userID, year, month}] = ciphertext
	return nil
}

func (f *fakeStore) GetIncome(_ context.Context, userID string, year, month int) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	blob, ok := f.incomes[periodKey{userID, year, month}]
	return blob, ok, nil
}

// fakePublisher records published alerts, optionally failing.
type fakePublisher struct {
	mu       sync.Mutex
	messages []*amqp.AlertMessage
	fail     bool
}

func (p *fakePublisher) PublishBudgetAlert(_ context.Context, msg *amqp.AlertMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) published() []*amqp.AlertMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*amqp.AlertMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
