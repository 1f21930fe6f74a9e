// Package alert implements the budget-alert state machine: at most one
// notification per user, period and severity, with a wall-clock TTL on
// the tracked state.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	// WarningRatio and CriticalRatio are the spend/limit thresholds at
	// which alerts fire.
	WarningRatio  = 0.80
	CriticalRatio = 0.95

	// DefaultStateTTL is how long a tracked state survives after its last
	// transition. Plain wall-clock time, not calendar-aware.
	DefaultStateTTL = 30 * 24 * time.Hour
)

type (
	Severity string

	// Key identifies one tracked budget period.
	Key struct {
		UserID string
		Year   int
		Month  int
	}

	// State is the highest severity already notified for a key.
	State struct {
		Severity  Severity
		UpdatedAt time.Time
	}

	// Alert is an emitted notification. Delivery is the caller's problem;
	// the tracker's state advances whether or not delivery succeeds.
	Alert struct {
		Key         Key
		Severity    Severity
		PercentUsed float64
		Spent       float64
		Limit       float64
		Remaining   float64
	}

	// StateStore is the injected keyed store behind the tracker. Expiry is
	// the tracker's job: stores only hold and return states.
	StateStore interface {
		Get(ctx context.Context, key Key) (State, bool, error)
		Put(ctx context.Context, key Key, state State) error
		Delete(ctx context.Context, key Key) error
	}

	// Tracker evaluates spend against a limit and decides whether a new
	// alert should fire. Evaluations for the same key serialize; distinct
	// keys never contend.
	Tracker struct {
		store StateStore
		ttl   time.Duration
		now   func() time.Time

		mu    sync.Mutex
		locks map[Key]*sync.Mutex
	}
)

// rank orders severities so the state machine never regresses.
func (s Severity) rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}

// NewTracker creates a tracker over the given store. A zero ttl means
// DefaultStateTTL; now defaults to time.Now and exists for tests.
func NewTracker(store StateStore, ttl time.Duration, now func() time.Time) *Tracker {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store: store,
		ttl:   ttl,
		now:   now,
		locks: make(map[Key]*sync.Mutex),
	}
}

// Evaluate runs one step of the state machine for the key.
//
// Received reimbursements reduce the spend before the ratio is computed:
// a reimbursed cost does not count against the budget. A missing limit
// (zero or negative) is a silent no-op. The returned alert is nil when
// no transition happened.
func (t *Tracker) Evaluate(ctx context.Context, key Key, totalSpent, reimbursed, limit float64) (*Alert, error) {
	if limit <= 0 {
		return nil, nil
	}

	lock := t.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	current, err := t.load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load alert state: %w", err)
	}

	net := totalSpent - reimbursed
	ratio := net / limit

	var next Severity
	switch {
	case ratio >= CriticalRatio && current.rank() < SeverityCritical.rank():
		next = SeverityCritical
	case ratio >= WarningRatio && current.rank() < SeverityWarning.rank():
		next = SeverityWarning
	default:
		return nil, nil
	}

	state := State{Severity: next, UpdatedAt: t.now()}
	if err := t.store.Put(ctx, key, state); err != nil {
		return nil, fmt.Errorf("store alert state: %w", err)
	}

	return &Alert{
		Key:         key,
		Severity:    next,
		PercentUsed: ratio * 100,
		Spent:       net,
		Limit:       limit,
		Remaining:   limit - net,
	}, nil
}

// load reads the current severity, treating an expired state as none.
func (t *Tracker) load(ctx context.Context, key Key) (Severity, error) {
	state, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return SeverityNone, err
	}
	if !ok {
		return SeverityNone, nil
	}
	if t.now().Sub(state.UpdatedAt) > t.ttl {
		// Expired: clear so the next period of silence starts clean. A
		// failed delete only delays the cleanup, it never blocks evaluation.
		_ = t.store.Delete(ctx, key)
		return SeverityNone, nil
	}
	return state.Severity, nil
}

func (t *Tracker) keyLock(key Key) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	return lock
}

// PeriodLabel renders the key's period for notification payloads.
func (k Key) PeriodLabel() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}
