package services

import (
	"context"
	"errors"
	"testing"

	"prevision/internal/core"
	"prevision/internal/storage"
)

func TestAddExpenseValidates(t *testing.T) {
	store := newFakeStore()
	svc := NewExpenseService(store, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		month   int
		expense core.Expense
		wantErr error
	}{
		{
			name:    "bad month",
			month:   13,
			expense: core.Expense{Day: 1, Label: "x", Amount: 10, Category: core.CategoryFixed},
			wantErr: core.ErrInvalidMonth,
		},
		{
			name:    "bad day",
			month:   3,
			expense: core.Expense{Day: 0, Label: "x", Amount: 10, Category: core.CategoryFixed},
			wantErr: core.ErrInvalidDay,
		},
		{
			name:    "empty label",
			month:   3,
			expense: core.Expense{Day: 1, Label: "  ", Amount: 10, Category: core.CategoryFixed},
			wantErr: core.ErrEmptyLabel,
		},
		{
			name:    "zero amount",
			month:   3,
			expense: core.Expense{Day: 1, Label: "x", Amount: 0, Category: core.CategoryFixed},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "bad category",
			month:   3,
			expense: core.Expense{Day: 1, Label: "x", Amount: 10, Category: "luxury"},
			wantErr: core.ErrInvalidCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddExpense(ctx, "alice", 2025, tt.month, tt.expense)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddExpense() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	list, _ := store.ListExpensesForMonth(ctx, "alice", 2025, 3)
	if len(list) != 0 {
		t.Errorf("invalid expenses were stored: %+v", list)
	}
}

func TestAddExpenseTriggersAlertEvaluation(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewExpenseService(store, newAlertService(store, pub))
	ctx := context.Background()

	store.UpsertBudget(ctx, "alice", 1000, "alice@example.com")

	created, err := svc.AddExpense(ctx, "alice", 2025, 3, core.Expense{
		Day: 1, Label: "Laptop", Amount: 990, Category: core.CategoryVariable,
	})
	if err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}
	if created.ID == 0 {
		t.Error("created expense has zero ID")
	}

	msgs := pub.published()
	if len(msgs) != 1 || msgs[0].Severity != "critical" {
		t.Errorf("alert after expense = %+v, want one critical", msgs)
	}
}

func TestAddExpenseSurvivesAlertFailure(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{fail: true}
	svc := NewExpenseService(store, newAlertService(store, pub))
	ctx := context.Background()

	store.UpsertBudget(ctx, "alice", 1000, "")

	if _, err := svc.AddExpense(ctx, "alice", 2025, 3, core.Expense{
		Day: 1, Label: "Laptop", Amount: 990, Category: core.CategoryVariable,
	}); err != nil {
		t.Errorf("AddExpense() error = %v, want the write to succeed despite alert failure", err)
	}

	list, _ := store.ListExpensesForMonth(ctx, "alice", 2025, 3)
	if len(list) != 1 {
		t.Errorf("stored %d expenses, want 1", len(list))
	}
}

func TestExpenseFlagsAndDelete(t *testing.T) {
	store := newFakeStore()
	svc := NewExpenseService(store, nil)
	ctx := context.Background()

	created, err := svc.AddExpense(ctx, "alice", 2025, 3, core.Expense{
		Day: 4, Label: "Doctor", Amount: 80, Category: core.CategoryReimbursement,
	})
	if err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}

	if err := svc.MarkReceived(ctx, created.ID, true); err != nil {
		t.Fatalf("MarkReceived() error = %v", err)
	}
	if err := svc.MarkDeducted(ctx, created.ID, true); err != nil {
		t.Fatalf("MarkDeducted() error = %v", err)
	}
	list, _ := svc.ListMonth(ctx, "alice", 2025, 3)
	if len(list) != 1 || !list[0].Received || !list[0].Deducted {
		t.Errorf("expense after flag updates = %+v", list)
	}

	if err := svc.DeleteExpense(ctx, created.ID); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	if err := svc.DeleteExpense(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}
