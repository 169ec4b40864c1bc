package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storybook-server/internal/config"
	"storybook-server/internal/models"
	"storybook-server/internal/repository"
)

// UserService manages the account lifecycle: implicit anonymous creation,
// in-place conversion to a registered account and merging of stray anonymous
// balances on login.
type UserService struct {
	users   repository.UserRepository
	ledger  *LedgerService
	economy config.EconomyConfig
	logger  *zap.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users repository.UserRepository, ledger *LedgerService, economy config.EconomyConfig, logger *zap.Logger) *UserService {
	return &UserService{
		users:   users,
		ledger:  ledger,
		economy: economy,
		logger:  logger.Named("UserService"),
	}
}

// CreateAnonymous allocates a new anonymous user seeded with the configured
// starting balance (credited through the ledger with reason "welcome").
func (s *UserService) CreateAnonymous(ctx context.Context) (*models.User, error) {
	user := &models.User{
		DisplayName: "Guest",
		IsAnonymous: true,
		IsActive:    true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create anonymous user: %w", err)
	}

	if s.economy.AnonymousStartingCoins > 0 {
		newBalance, err := s.ledger.Credit(ctx, user.ID, s.economy.AnonymousStartingCoins,
			models.CoinReasonWelcome, "anonymous starting balance")
		if err != nil {
			return nil, fmt.Errorf("failed to credit starting balance: %w", err)
		}
		user.Coins = newBalance
	}

	s.logger.Info("Anonymous user created",
		zap.String("userID", user.ID.String()),
		zap.Int64("startingCoins", user.Coins),
	)
	return user, nil
}

// ConvertToRegistered upgrades an anonymous user in place: attaches email,
// name and password, clears the anonymous flag, credits the registration
// bonus and records an optional referral relationship. The existing balance
// is carried over untouched.
func (s *UserService) ConvertToRegistered(ctx context.Context, userID uuid.UUID, email, name, password, referralCode string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email format: %w", models.ErrInvalidInput)
	}
	if name == "" || password == "" {
		return nil, models.ErrInvalidInput
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAnonymous {
		s.logger.Warn("Conversion attempt for registered user", zap.String("userID", userID.String()))
		return nil, models.ErrNotAnonymous
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		return nil, fmt.Errorf("error checking existing email: %w", err)
	}
	if existing != nil {
		return nil, models.ErrEmailAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var referrer *models.User
	if referralCode != "" {
		referrer, err = s.users.GetUserByReferralCode(ctx, referralCode)
		if err != nil {
			if !errors.Is(err, models.ErrUserNotFound) {
				return nil, fmt.Errorf("error resolving referral code: %w", err)
			}
			// Unknown codes are ignored rather than failing registration.
			referrer = nil
		}
		if referrer != nil && referrer.ID == userID {
			referrer = nil
		}
	}

	user.Email = email
	user.DisplayName = name
	user.PasswordHash = string(hash)
	user.IsAnonymous = false
	if user.ReferralCode == "" {
		user.ReferralCode = strings.ToUpper(uuid.NewString()[:8])
	}
	if referrer != nil {
		user.ReferredBy = referrer.ReferralCode
	}

	// The generated referral code is random; on the rare collision with
	// another user's code, pick a fresh one and retry.
	for attempt := 0; ; attempt++ {
		err = s.users.UpdateRegistration(ctx, user)
		if err == nil {
			break
		}
		if errors.Is(err, models.ErrReferralCodeTaken) && attempt < 2 {
			user.ReferralCode = strings.ToUpper(uuid.NewString()[:8])
			continue
		}
		return nil, err
	}

	if s.economy.RegistrationBonus > 0 {
		newBalance, err := s.ledger.Credit(ctx, user.ID, s.economy.RegistrationBonus,
			models.CoinReasonRegistration, "registration bonus")
		if err != nil {
			return nil, fmt.Errorf("failed to credit registration bonus: %w", err)
		}
		user.Coins = newBalance
	}

	// Referrer payout is configurable and off by default.
	if referrer != nil && s.economy.ReferralBonus > 0 {
		memo := fmt.Sprintf("referral reward for inviting %s", user.ID)
		if _, err := s.ledger.Credit(ctx, referrer.ID, s.economy.ReferralBonus,
			models.CoinReasonRegistration, memo); err != nil {
			// The registration itself already succeeded; only log.
			s.logger.Error("Failed to credit referral reward",
				zap.String("referrerID", referrer.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("Anonymous user converted to registered",
		zap.String("userID", user.ID.String()),
		zap.String("email", email),
		zap.Bool("referred", referrer != nil),
	)
	return user, nil
}

// Authenticate verifies a registered user's credentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, models.ErrUserInactive
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns a user by ID.
func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// MergeAnonymousBalance moves a stray anonymous balance into the account the
// caller just authenticated as. No-op when the source is not anonymous, has
// nothing to transfer, or is the target itself. The anonymous account is left
// at zero but is not deleted.
func (s *UserService) MergeAnonymousBalance(ctx context.Context, anonymousID, targetID uuid.UUID) error {
	if anonymousID == targetID {
		return nil
	}
	anon, err := s.users.GetUserByID(ctx, anonymousID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !anon.IsAnonymous || anon.Coins <= 0 {
		return nil
	}

	memo := fmt.Sprintf("merged anonymous balance from %s into %s", anonymousID, targetID)
	if err := s.ledger.Transfer(ctx, anonymousID, targetID, anon.Coins, models.CoinReasonWelcome, memo); err != nil {
		return fmt.Errorf("failed to merge anonymous balance: %w", err)
	}

	s.logger.Info("Anonymous balance merged",
		zap.String("anonymousID", anonymousID.String()),
		zap.String("targetID", targetID.String()),
		zap.Int64("amount", anon.Coins),
	)
	return nil
}
