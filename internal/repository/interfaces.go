package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storybook-server/internal/models"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx the repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository provides access to user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	// UpdateRegistration persists the anonymous→registered conversion:
	// email, display name, password hash, referred_by and the cleared
	// is_anonymous flag.
	UpdateRegistration(ctx context.Context, user *models.User) error
}

// LedgerRepository owns all balance mutation. Implementations must apply the
// balance change and append the transaction row atomically, and must serialize
// concurrent mutations per user (the Postgres implementation relies on a
// conditional UPDATE, the in-memory test implementation on a mutex).
type LedgerRepository interface {
	// ApplyDelta adjusts the user's balance by delta (negative = debit) and
	// appends one CoinTransaction. A debit that would drive the balance
	// negative fails with models.ErrInsufficientFunds and leaves no trace.
	ApplyDelta(ctx context.Context, userID uuid.UUID, delta int64, reason models.CoinReason, memo string) (int64, error)
	// Transfer moves amount between two users as a debit+credit pair inside
	// one transaction; either both entries apply or neither does.
	Transfer(ctx context.Context, fromID, toID uuid.UUID, amount int64, reason models.CoinReason, memo string) error
	// Balance reads the user's cached balance.
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	// SumDeltas replays the transaction log for consistency checks.
	SumDeltas(ctx context.Context, userID uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]models.CoinTransaction, error)
}

// StoryRepository provides access to generated stories.
type StoryRepository interface {
	CreateStory(ctx context.Context, story *models.Story) error
	UpdateStory(ctx context.Context, story *models.Story) error
	GetStoryByID(ctx context.Context, id uuid.UUID) (*models.Story, error)
	ListStoriesByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Story, error)
}

// TokenRepository tracks issued token pairs so sessions can be revoked.
type TokenRepository interface {
	SaveToken(ctx context.Context, userID uuid.UUID, td *models.TokenDetails) error
	UserIDByAccess(ctx context.Context, accessUUID string) (uuid.UUID, error)
	UserIDByRefresh(ctx context.Context, refreshUUID string) (uuid.UUID, error)
	DeleteRefresh(ctx context.Context, refreshUUID string) error
}
