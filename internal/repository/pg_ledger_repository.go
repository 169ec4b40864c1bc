package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// Compile-time check to ensure pgLedgerRepository implements LedgerRepository
var _ LedgerRepository = (*pgLedgerRepository)(nil)

// pgLedgerRepository stores the cached balance on users.coins and the
// append-only log in coin_transactions. Per-user serialization comes from the
// conditional UPDATE: the row lock taken by UPDATE orders concurrent
// mutations, and the `coins + delta >= 0` predicate makes an unaffordable
// debit match zero rows instead of violating the non-negative constraint.
type pgLedgerRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgLedgerRepository creates a new PostgreSQL-backed LedgerRepository.
func NewPgLedgerRepository(pool *pgxpool.Pool, logger *zap.Logger) LedgerRepository {
	return &pgLedgerRepository{
		pool:   pool,
		logger: logger.Named("PgLedgerRepo"),
	}
}

// applyDeltaTx performs one balance mutation plus its ledger entry inside the
// caller's transaction.
func (r *pgLedgerRepository) applyDeltaTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta int64, reason models.CoinReason, memo string) (int64, error) {
	var newBalance int64
	updateQuery := `UPDATE users SET coins = coins + $2, updated_at = now()
	                WHERE id = $1 AND coins + $2 >= 0
	                RETURNING coins`
	err := tx.QueryRow(ctx, updateQuery, userID, delta).Scan(&newBalance)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("failed to update balance: %w", err)
		}
		// Zero rows: either the user does not exist or the debit is
		// unaffordable. Distinguish the two for the caller.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("failed to check user existence: %w", err)
		}
		if !exists {
			return 0, models.ErrUserNotFound
		}
		return 0, models.ErrInsufficientFunds
	}

	insertQuery := `INSERT INTO coin_transactions (user_id, delta, reason, memo) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, insertQuery, userID, delta, string(reason), memo); err != nil {
		return 0, fmt.Errorf("failed to append coin transaction: %w", err)
	}
	return newBalance, nil
}

// ApplyDelta adjusts one user's balance and appends the matching ledger entry.
func (r *pgLedgerRepository) ApplyDelta(ctx context.Context, userID uuid.UUID, delta int64, reason models.CoinReason, memo string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := r.applyDeltaTx(ctx, tx, userID, delta, reason, memo)
	if err != nil {
		if !errors.Is(err, models.ErrInsufficientFunds) && !errors.Is(err, models.ErrUserNotFound) {
			r.logger.Error("Ledger mutation failed", zap.Error(err), zap.String("userID", userID.String()), zap.Int64("delta", delta))
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	r.logger.Debug("Ledger mutation applied",
		zap.String("userID", userID.String()),
		zap.Int64("delta", delta),
		zap.String("reason", string(reason)),
		zap.Int64("newBalance", newBalance),
	)
	return newBalance, nil
}

// Transfer moves amount from one user to another; both entries commit or
// neither does.
func (r *pgLedgerRepository) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount int64, reason models.CoinReason, memo string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transfer transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both rows in a canonical order first; otherwise two concurrent
	// opposite-direction transfers can deadlock on each other's row locks.
	first, second := fromID, toID
	if bytes.Compare(toID[:], fromID[:]) < 0 {
		first, second = toID, fromID
	}
	for _, id := range [2]uuid.UUID{first, second} {
		if _, err := tx.Exec(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("failed to lock user row for transfer: %w", err)
		}
	}

	if _, err := r.applyDeltaTx(ctx, tx, fromID, -amount, reason, memo); err != nil {
		return err
	}
	if _, err := r.applyDeltaTx(ctx, tx, toID, amount, reason, memo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer transaction: %w", err)
	}
	r.logger.Info("Transfer applied",
		zap.String("fromID", fromID.String()),
		zap.String("toID", toID.String()),
		zap.Int64("amount", amount),
	)
	return nil
}

// Balance reads the cached balance from users.coins.
func (r *pgLedgerRepository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT coins FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// SumDeltas replays the transaction log for one user.
func (r *pgLedgerRepository) SumDeltas(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	query := `SELECT COALESCE(SUM(delta), 0) FROM coin_transactions WHERE user_id = $1`
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum coin transactions: %w", err)
	}
	return sum, nil
}

// ListTransactions returns a user's ledger entries, newest first.
func (r *pgLedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID) ([]models.CoinTransaction, error) {
	query := `SELECT id, user_id, delta, reason, memo, created_at
	          FROM coin_transactions WHERE user_id = $1 ORDER BY id DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query coin transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]models.CoinTransaction, 0)
	for rows.Next() {
		var t models.CoinTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Delta, &t.Reason, &t.Memo, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coin transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coin transactions: %w", err)
	}
	return txs, nil
}
