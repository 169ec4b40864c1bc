package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// Compile-time check to ensure pgUserRepository implements UserRepository
var _ UserRepository = (*pgUserRepository)(nil)

type pgUserRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgUserRepository creates a new PostgreSQL-backed UserRepository.
func NewPgUserRepository(db DBTX, logger *zap.Logger) UserRepository {
	return &pgUserRepository{
		db:     db,
		logger: logger.Named("PgUserRepo"),
	}
}

const userColumns = `id, COALESCE(email, ''), display_name, COALESCE(password_hash, ''), coins, is_anonymous, is_active, COALESCE(referral_code, ''), COALESCE(referred_by, ''), created_at, updated_at`

// mapUniqueViolation translates a 23505 into the sentinel for the constraint
// that actually fired; users carry unique indexes on both email and
// referral_code, and the two conflicts mean different things to callers.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	if strings.Contains(pgErr.ConstraintName, "referral_code") {
		return models.ErrReferralCodeTaken
	}
	return models.ErrEmailAlreadyExists
}

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash,
		&user.Coins, &user.IsAnonymous, &user.IsActive,
		&user.ReferralCode, &user.ReferredBy, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a new user. Empty email/password are stored as NULL so
// the unique constraint on email ignores anonymous accounts.
func (r *pgUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (email, display_name, password_hash, is_anonymous, is_active, referral_code, referred_by)
	          VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''))
	          RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		user.Email, user.DisplayName, user.PasswordHash,
		user.IsAnonymous, user.IsActive, user.ReferralCode, user.ReferredBy,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if conflictErr := mapUniqueViolation(err); conflictErr != nil {
			r.logger.Warn("User insert hit unique constraint", zap.String("email", user.Email), zap.Error(conflictErr))
			return conflictErr
		}
		r.logger.Error("Failed to create user in postgres", zap.Error(err), zap.String("email", user.Email))
		return fmt.Errorf("failed to create user in postgres: %w", err)
	}
	r.logger.Info("User created", zap.String("userID", user.ID.String()), zap.Bool("anonymous", user.IsAnonymous))
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *pgUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by id from postgres", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get user by id from postgres: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by their email.
func (r *pgUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by email from postgres", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("failed to get user by email from postgres: %w", err)
	}
	return user, nil
}

// GetUserByReferralCode resolves a self-assigned referral code to its owner.
func (r *pgUserRepository) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		r.logger.Error("Failed to get user by referral code from postgres", zap.Error(err), zap.String("code", code))
		return nil, fmt.Errorf("failed to get user by referral code from postgres: %w", err)
	}
	return user, nil
}

// UpdateRegistration persists an anonymous→registered conversion in place.
func (r *pgUserRepository) UpdateRegistration(ctx context.Context, user *models.User) error {
	query := `UPDATE users
	          SET email = NULLIF($2, ''), display_name = $3, password_hash = NULLIF($4, ''),
	              is_anonymous = $5, referred_by = NULLIF($6, ''), referral_code = NULLIF($7, ''),
	              updated_at = now()
	          WHERE id = $1
	          RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		user.ID, user.Email, user.DisplayName, user.PasswordHash,
		user.IsAnonymous, user.ReferredBy, user.ReferralCode,
	).Scan(&user.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrUserNotFound
		}
		if conflictErr := mapUniqueViolation(err); conflictErr != nil {
			r.logger.Warn("Registration update hit unique constraint",
				zap.String("userID", user.ID.String()), zap.Error(conflictErr))
			return conflictErr
		}
		r.logger.Error("Failed to update user registration in postgres", zap.Error(err), zap.String("userID", user.ID.String()))
		return fmt.Errorf("failed to update user registration in postgres: %w", err)
	}
	r.logger.Info("User registration updated", zap.String("userID", user.ID.String()), zap.String("email", user.Email))
	return nil
}
