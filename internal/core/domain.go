package core

import (
	"errors"
	"strings"
	"time"
)

const (
	CategoryFixed         Category = "fixed"
	CategoryVariable      Category = "variable"
	CategoryReimbursement Category = "reimbursement"
)

const (
	ShareNone        SharingMode = "none"
	ShareEqual       SharingMode = "equal"
	SharePercentage  SharingMode = "percentage"
	ShareFixedAmount SharingMode = "fixed_amount"
)

type (
	Category string

	SharingMode string

	Date struct {
		time.Time
	}

	// SharingPolicy describes how an expense is split with a counterparty.
	// Value is the owner's keep-percentage for SharePercentage and the
	// owner's absolute portion for ShareFixedAmount; nil means the value
	// was never supplied.
	SharingPolicy struct {
		Mode         SharingMode
		Value        *float64
		Counterparty string
	}

	Expense struct {
		ID       int64
		Day      int // day of month within the owning period
		Label    string
		Amount   float64
		Category Category
		Sharing  SharingPolicy
		Received bool // meaningful for reimbursements only
		Deducted bool // bookkeeping flag, not used in forecast math
	}

	// RecurringTemplate is a reusable projection of a future expense.
	// EndDate is inclusive; a zero EndDate means open-ended.
	RecurringTemplate struct {
		ID         int64
		Label      string
		Amount     float64
		Category   Category
		DayOfMonth int
		StartDate  Date
		EndDate    Date
		Active     bool
		Sharing    SharingPolicy
	}

	// Occurrence is a concrete dated expense produced by resolving a
	// recurring template against a target month.
	Occurrence struct {
		TemplateID int64
		Label      string
		Amount     float64
		Category   Category
		Sharing    SharingPolicy
		Date       Date
	}

	// Period is one calendar month of a user's budget.
	Period struct {
		ID              int64
		UserID          string
		Year            int
		Month           int
		StartingBalance float64
	}

	// ForecastBreakdown is the derived per-period forecast. ForecastBalance
	// counts confirmed reimbursements only; the WithPending variant also
	// counts money still owed back to the user.
	ForecastBreakdown struct {
		Year                       int
		Month                      int
		StartingBalance            float64
		FixedTotal                 float64
		VariableTotal              float64
		ReimbursementsReceived     float64
		ReimbursementsPending      float64
		ForecastBalance            float64
		ForecastBalanceWithPending float64
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidDay      = errors.New("invalid day of month")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrEmptyLabel      = errors.New("empty label")
	ErrInvalidSharing  = errors.New("invalid sharing mode")
)

// NewDate creates a Date from year, month, day at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// IsEmpty returns true for the zero date (used for optional end dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (c Category) Valid() bool {
	switch c {
	case CategoryFixed, CategoryVariable, CategoryReimbursement:
		return true
	}
	return false
}

func (m SharingMode) Valid() bool {
	switch m {
	case ShareNone, ShareEqual, SharePercentage, ShareFixedAmount:
		return true
	}
	return false
}

// Shared reports whether the policy splits the cost with a counterparty.
func (p SharingPolicy) Shared() bool {
	return p.Mode != "" && p.Mode != ShareNone
}

func (p SharingPolicy) Validate() error {
	if p.Mode == "" {
		return nil
	}
	if !p.Mode.Valid() {
		return ErrInvalidSharing
	}
	return nil
}

func (e Expense) Validate() error {
	if e.Day < 1 || e.Day > 31 {
		return ErrInvalidDay
	}
	if len(strings.TrimSpace(e.Label)) == 0 {
		return ErrEmptyLabel
	}
	if len(e.Label) > 200 {
		return errors.New("label too long (max 200 characters)")
	}
	if !(e.Amount > 0) {
		return ErrInvalidAmount
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	return e.Sharing.Validate()
}

func (t RecurringTemplate) Validate() error {
	if len(strings.TrimSpace(t.Label)) == 0 {
		return ErrEmptyLabel
	}
	if len(t.Label) > 200 {
		return errors.New("label too long (max 200 characters)")
	}
	if !(t.Amount > 0) {
		return ErrInvalidAmount
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	if t.DayOfMonth < 1 || t.DayOfMonth > 31 {
		return ErrInvalidDay
	}
	if t.StartDate.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if !t.EndDate.IsEmpty() && t.EndDate.Before(t.StartDate.Time) {
		return errors.New("end date must not precede start date")
	}
	return t.Sharing.Validate()
}

// Expense converts a resolved occurrence into an expense entry so it can
// be aggregated alongside ordinary expenses.
func (o Occurrence) Expense() Expense {
	return Expense{
		Day:      o.Date.Day(),
		Label:    o.Label,
		Amount:   o.Amount,
		Category: o.Category,
		Sharing:  o.Sharing,
	}
}
