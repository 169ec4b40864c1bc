package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/database"
	"storybook-server/internal/models"
	"storybook-server/internal/repository"
)

// RepositorySuite runs the Postgres and Redis repositories against real
// containers with the embedded migrations applied.
type RepositorySuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pool        *pgxpool.Pool
	redisClient *redis.Client

	users   repository.UserRepository
	ledger  repository.LedgerRepository
	stories repository.StoryRepository
	tokens  repository.TokenRepository
}

func dockerAvailable() bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false
	}
	defer cli.Close()
	_, err = cli.Ping(context.Background())
	return err == nil
}

func TestRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping repository integration tests in short mode")
	}
	if !dockerAvailable() {
		t.Skip("docker is not available, skipping repository integration tests")
	}
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	logger := zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("storybook_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get postgres connection string")

	// Connect applies the embedded migrations.
	s.pool, err = database.Connect(s.ctx, config.DatabaseConfig{URL: connStr}, logger)
	require.NoError(s.T(), err, "Failed to connect to test postgres")

	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	redisHost, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	redisPort, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)

	s.redisClient = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	require.NoError(s.T(), s.redisClient.Ping(s.ctx).Err(), "Failed to connect to test redis")

	s.users = repository.NewPgUserRepository(s.pool, logger)
	s.ledger = repository.NewPgLedgerRepository(s.pool, logger)
	s.stories = repository.NewPgStoryRepository(s.pool, logger)
	s.tokens = repository.NewRedisTokenRepository(s.redisClient, logger)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE coin_transactions, stories, users CASCADE`)
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.redisClient.FlushDB(s.ctx).Err())
}

func (s *RepositorySuite) newAnonymousUser() *models.User {
	user := &models.User{DisplayName: "Guest", IsAnonymous: true, IsActive: true}
	require.NoError(s.T(), s.users.CreateUser(s.ctx, user))
	return user
}

func (s *RepositorySuite) TestUserLifecycle() {
	user := s.newAnonymousUser()
	s.Require().NotEqual(uuid.Nil, user.ID)

	fetched, err := s.users.GetUserByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(fetched.IsAnonymous)
	s.Empty(fetched.Email)
	s.Equal(int64(0), fetched.Coins)

	// Registration in place.
	fetched.Email = "kid@example.com"
	fetched.DisplayName = "Sam"
	fetched.PasswordHash = "$2a$10$fakehashfakehashfakehash"
	fetched.IsAnonymous = false
	fetched.ReferralCode = "SAM12345"
	s.Require().NoError(s.users.UpdateRegistration(s.ctx, fetched))

	byEmail, err := s.users.GetUserByEmail(s.ctx, "kid@example.com")
	s.Require().NoError(err)
	s.Equal(fetched.ID, byEmail.ID)
	s.False(byEmail.IsAnonymous)

	byCode, err := s.users.GetUserByReferralCode(s.ctx, "SAM12345")
	s.Require().NoError(err)
	s.Equal(fetched.ID, byCode.ID)

	// The email is now taken.
	second := s.newAnonymousUser()
	second.Email = "kid@example.com"
	second.IsAnonymous = false
	err = s.users.UpdateRegistration(s.ctx, second)
	s.ErrorIs(err, models.ErrEmailAlreadyExists)

	// The referral code is unique too, and its conflict maps to its own
	// sentinel rather than masquerading as a duplicate email.
	third := s.newAnonymousUser()
	third.Email = "other@example.com"
	third.IsAnonymous = false
	third.ReferralCode = "SAM12345"
	err = s.users.UpdateRegistration(s.ctx, third)
	s.ErrorIs(err, models.ErrReferralCodeTaken)

	_, err = s.users.GetUserByID(s.ctx, uuid.New())
	s.ErrorIs(err, models.ErrUserNotFound)
	_, err = s.users.GetUserByEmail(s.ctx, "nobody@example.com")
	s.ErrorIs(err, models.ErrUserNotFound)
}

func (s *RepositorySuite) TestLedgerApplyDelta() {
	user := s.newAnonymousUser()

	balance, err := s.ledger.ApplyDelta(s.ctx, user.ID, 50, models.CoinReasonWelcome, "starting balance")
	s.Require().NoError(err)
	s.Equal(int64(50), balance)

	balance, err = s.ledger.ApplyDelta(s.ctx, user.ID, -20, models.CoinReasonGeneration, "story")
	s.Require().NoError(err)
	s.Equal(int64(30), balance)

	// Overdraft is rejected and leaves no transaction behind.
	_, err = s.ledger.ApplyDelta(s.ctx, user.ID, -40, models.CoinReasonGeneration, "too much")
	s.ErrorIs(err, models.ErrInsufficientFunds)

	txs, err := s.ledger.ListTransactions(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Require().Len(txs, 2)
	s.Equal(int64(-20), txs[0].Delta, "newest first")
	s.Equal(int64(50), txs[1].Delta)

	sum, err := s.ledger.SumDeltas(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(int64(30), sum, "cached balance equals replayed log")

	cached, err := s.ledger.Balance(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(sum, cached)

	_, err = s.ledger.Balance(s.ctx, uuid.New())
	s.ErrorIs(err, models.ErrUserNotFound)

	_, err = s.ledger.ApplyDelta(s.ctx, uuid.New(), 10, models.CoinReasonWelcome, "ghost")
	s.ErrorIs(err, models.ErrUserNotFound)
}

func (s *RepositorySuite) TestLedgerConcurrentDebits() {
	user := s.newAnonymousUser()
	_, err := s.ledger.ApplyDelta(s.ctx, user.ID, 100, models.CoinReasonWelcome, "seed")
	s.Require().NoError(err)

	const attempts = 20
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ledger.ApplyDelta(s.ctx, user.ID, -10, models.CoinReasonGeneration, "concurrent")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, models.ErrInsufficientFunds)
		}
	}
	s.Equal(10, succeeded)

	sum, err := s.ledger.SumDeltas(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), sum)

	fetched, err := s.users.GetUserByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), fetched.Coins)
}

func (s *RepositorySuite) TestLedgerTransfer() {
	from := s.newAnonymousUser()
	to := s.newAnonymousUser()
	_, err := s.ledger.ApplyDelta(s.ctx, from.ID, 40, models.CoinReasonWelcome, "seed")
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.Transfer(s.ctx, from.ID, to.ID, 40, models.CoinReasonWelcome, "merge"))

	fromAfter, _ := s.users.GetUserByID(s.ctx, from.ID)
	toAfter, _ := s.users.GetUserByID(s.ctx, to.ID)
	s.Equal(int64(0), fromAfter.Coins)
	s.Equal(int64(40), toAfter.Coins)

	// An uncovered transfer must roll back both sides.
	err = s.ledger.Transfer(s.ctx, from.ID, to.ID, 1, models.CoinReasonWelcome, "empty source")
	s.ErrorIs(err, models.ErrInsufficientFunds)

	fromAfter, _ = s.users.GetUserByID(s.ctx, from.ID)
	toAfter, _ = s.users.GetUserByID(s.ctx, to.ID)
	s.Equal(int64(0), fromAfter.Coins)
	s.Equal(int64(40), toAfter.Coins)

	fromSum, _ := s.ledger.SumDeltas(s.ctx, from.ID)
	toSum, _ := s.ledger.SumDeltas(s.ctx, to.ID)
	s.Equal(int64(0), fromSum)
	s.Equal(int64(40), toSum)
}

func (s *RepositorySuite) TestLedgerOppositeTransfersDoNotDeadlock() {
	a := s.newAnonymousUser()
	b := s.newAnonymousUser()
	_, err := s.ledger.ApplyDelta(s.ctx, a.ID, 100, models.CoinReasonWelcome, "seed")
	s.Require().NoError(err)
	_, err = s.ledger.ApplyDelta(s.ctx, b.ID, 100, models.CoinReasonWelcome, "seed")
	s.Require().NoError(err)

	// Interleaved a→b and b→a transfers must all settle; without canonical
	// row-lock ordering this pattern deadlocks in postgres.
	const rounds = 10
	var wg sync.WaitGroup
	errs := make(chan error, rounds*2)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- s.ledger.Transfer(s.ctx, a.ID, b.ID, 10, models.CoinReasonWelcome, "forward")
		}()
		go func() {
			defer wg.Done()
			errs <- s.ledger.Transfer(s.ctx, b.ID, a.ID, 10, models.CoinReasonWelcome, "reverse")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	aSum, err := s.ledger.SumDeltas(s.ctx, a.ID)
	s.Require().NoError(err)
	bSum, err := s.ledger.SumDeltas(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(int64(200), aSum+bSum, "transfers conserve the total balance")

	aBalance, err := s.ledger.Balance(s.ctx, a.ID)
	s.Require().NoError(err)
	bBalance, err := s.ledger.Balance(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(aSum, aBalance)
	s.Equal(bSum, bBalance)
}

func (s *RepositorySuite) TestStoryRoundTrip() {
	user := s.newAnonymousUser()

	story := &models.Story{
		ID:         uuid.New(),
		UserID:     &user.ID,
		Title:      "",
		ChildName:  "Sam",
		ChildAge:   5,
		Theme:      "a brave little fox",
		Language:   "English",
		Pages:      []models.StoryPage{},
		Status:     models.StoryStatusPending,
		Visibility: models.StoryVisibilityUnlisted,
	}
	s.Require().NoError(s.stories.CreateStory(s.ctx, story))

	story.Title = "The Brave Little Fox"
	story.Status = models.StoryStatusComplete
	story.Pages = []models.StoryPage{
		{PageNumber: 1, Text: "Once upon a time...", ImageURL: "https://img/1.jpg", Status: models.PageStatusGenerated},
		{PageNumber: 2, Text: "The fox set out.", ImageURL: "https://placehold.co/1024x1024?text=fox", Status: models.PageStatusPlaceholder},
	}
	s.Require().NoError(s.stories.UpdateStory(s.ctx, story))

	fetched, err := s.stories.GetStoryByID(s.ctx, story.ID)
	s.Require().NoError(err)
	s.Equal(models.StoryStatusComplete, fetched.Status)
	s.Require().Len(fetched.Pages, 2)
	s.Equal(1, fetched.Pages[0].PageNumber)
	s.Equal(models.PageStatusPlaceholder, fetched.Pages[1].Status)

	listed, err := s.stories.ListStoriesByUser(s.ctx, user.ID, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(story.ID, listed[0].ID)

	_, err = s.stories.GetStoryByID(s.ctx, uuid.New())
	s.ErrorIs(err, models.ErrStoryNotFound)

	missing := &models.Story{ID: uuid.New(), Status: models.StoryStatusFailed, Visibility: models.StoryVisibilityUnlisted}
	s.ErrorIs(s.stories.UpdateStory(s.ctx, missing), models.ErrStoryNotFound)
}

func (s *RepositorySuite) TestTokenRepository() {
	userID := uuid.New()
	td := &models.TokenDetails{
		AccessUUID:  uuid.NewString(),
		RefreshUUID: uuid.NewString(),
		AtExpires:   time.Now().Add(time.Minute).Unix(),
		RtExpires:   time.Now().Add(time.Hour).Unix(),
	}
	s.Require().NoError(s.tokens.SaveToken(s.ctx, userID, td))

	byAccess, err := s.tokens.UserIDByAccess(s.ctx, td.AccessUUID)
	s.Require().NoError(err)
	s.Equal(userID, byAccess)

	byRefresh, err := s.tokens.UserIDByRefresh(s.ctx, td.RefreshUUID)
	s.Require().NoError(err)
	s.Equal(userID, byRefresh)

	s.Require().NoError(s.tokens.DeleteRefresh(s.ctx, td.RefreshUUID))
	_, err = s.tokens.UserIDByRefresh(s.ctx, td.RefreshUUID)
	s.ErrorIs(err, models.ErrTokenNotFound)

	_, err = s.tokens.UserIDByAccess(s.ctx, uuid.NewString())
	s.ErrorIs(err, models.ErrTokenNotFound)
}
