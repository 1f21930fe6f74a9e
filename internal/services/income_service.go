package services

import (
	"context"
	"fmt"
	"log/slog"

	"prevision/internal/core"
	"prevision/internal/income"
)

// IncomeService keeps monthly income figures encrypted at rest. The
// plaintext amount exists only inside this service.
type IncomeService struct {
	incomes IncomeStore
	cipher  *income.Cipher
}

func NewIncomeService(incomes IncomeStore, cipher *income.Cipher) *IncomeService {
	return &IncomeService{incomes: incomes, cipher: cipher}
}

func (s *IncomeService) SetIncome(ctx context.Context, userID string, year, month int, amount float64) error {
	if month < 1 || month > 12 {
		return core.ErrInvalidMonth
	}
	if !(amount >= 0) {
		return core.ErrInvalidAmount
	}

	blob, err := s.cipher.Encrypt(amount)
	if err != nil {
		return fmt.Errorf("encrypt income: %w", err)
	}
	if err := s.incomes.PutIncome(ctx, userID, year, month, blob); err != nil {
		return fmt.Errorf("store income: %w", err)
	}

	// The amount itself stays out of the logs.
	slog.InfoContext(ctx, "Income stored", "user", userID, "year", year, "month", month)
	return nil
}

func (s *IncomeService) GetIncome(ctx context.Context, userID string, year, month int) (float64, bool, error) {
	blob, ok, err := s.incomes.GetIncome(ctx, userID, year, month)
	if err != nil {
		return 0, false, fmt.Errorf("load income: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	amount, err := s.cipher.Decrypt(blob)
	if err != nil {
		return 0, false, fmt.Errorf("decrypt income: %w", err)
	}
	return amount, true, nil
}
