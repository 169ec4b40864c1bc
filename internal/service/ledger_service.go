package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/models"
	"storybook-server/internal/repository"
)

// LedgerService exclusively owns coin balance mutation. Every credit or
// debit appends exactly one CoinTransaction atomically with the balance
// change; serialization of concurrent mutations per user is delegated to the
// repository (conditional UPDATE in Postgres).
type LedgerService struct {
	repo   repository.LedgerRepository
	logger *zap.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(repo repository.LedgerRepository, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		repo:   repo,
		logger: logger.Named("LedgerService"),
	}
}

// Credit adds amount coins to the user and returns the new balance.
func (s *LedgerService) Credit(ctx context.Context, userID uuid.UUID, amount int64, reason models.CoinReason, memo string) (int64, error) {
	if amount <= 0 {
		return 0, models.ErrInvalidAmount
	}
	newBalance, err := s.repo.ApplyDelta(ctx, userID, amount, reason, memo)
	if err != nil {
		return 0, err
	}
	ledgerMutationsTotal.WithLabelValues(string(reason), "credit").Inc()
	return newBalance, nil
}

// Debit removes amount coins from the user and returns the new balance.
// Fails with models.ErrInsufficientFunds when the balance cannot cover the
// amount; in that case nothing is recorded.
func (s *LedgerService) Debit(ctx context.Context, userID uuid.UUID, amount int64, reason models.CoinReason, memo string) (int64, error) {
	if amount <= 0 {
		return 0, models.ErrInvalidAmount
	}
	newBalance, err := s.repo.ApplyDelta(ctx, userID, -amount, reason, memo)
	if err != nil {
		return 0, err
	}
	ledgerMutationsTotal.WithLabelValues(string(reason), "debit").Inc()
	return newBalance, nil
}

// Transfer moves amount coins between two users; the debit and credit either
// both apply or neither does. Used for anonymous→registered balance merges.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount int64, reason models.CoinReason, memo string) error {
	if amount <= 0 {
		return models.ErrInvalidAmount
	}
	if err := s.repo.Transfer(ctx, fromID, toID, amount, reason, memo); err != nil {
		return err
	}
	ledgerMutationsTotal.WithLabelValues(string(reason), "transfer").Inc()
	return nil
}

// Balance returns the user's current balance.
func (s *LedgerService) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.Balance(ctx, userID)
}

// History returns the user's ledger entries, newest first.
func (s *LedgerService) History(ctx context.Context, userID uuid.UUID) ([]models.CoinTransaction, error) {
	return s.repo.ListTransactions(ctx, userID)
}

// ReplaySum recomputes the balance from the transaction log. Consistency
// check only, not part of the hot path.
func (s *LedgerService) ReplaySum(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.SumDeltas(ctx, userID)
}
