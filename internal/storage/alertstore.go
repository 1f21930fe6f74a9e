package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prevision/internal/alert"
)

// AlertStore persists alert tracker state in the alert_states table so
// notified severities survive restarts. It implements alert.StateStore.
type AlertStore struct {
	db *sql.DB
}

func (r *SQLiteRepository) AlertStore() *AlertStore {
	return &AlertStore{db: r.db}
}

func (s *AlertStore) Get(ctx context.Context, key alert.Key) (alert.State, bool, error) {
	var (
		severity  string
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT severity, updated_at FROM alert_states WHERE user_id = ? AND year = ? AND month = ?`,
		key.UserID, key.Year, key.Month,
	).Scan(&severity, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return alert.State{}, false, nil
	}
	if err != nil {
		return alert.State{}, false, fmt.Errorf("get alert state: %w", err)
	}
	return alert.State{Severity: alert.Severity(severity), UpdatedAt: updatedAt}, true, nil
}

func (s *AlertStore) Put(ctx context.Context, key alert.Key, state alert.State) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_states (user_id, year, month, severity, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, year, month) DO UPDATE SET severity = excluded.severity, updated_at = excluded.updated_at`,
		key.UserID, key.Year, key.Month, string(state.Severity), state.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("put alert state: %w", err)
	}
	return nil
}

func (s *AlertStore) Delete(ctx context.Context, key alert.Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM alert_states WHERE user_id = ? AND year = ? AND month = ?`,
		key.UserID, key.Year, key.Month)
	if err != nil {
		return fmt.Errorf("delete alert state: %w", err)
	}
	return nil
}
