package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"storybook-server/internal/models"
	"storybook-server/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. A single
// mutex serializes balance mutations the way the conditional UPDATE does in
// production, which is what the concurrency tests rely on.
type memStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*models.User
	stories map[uuid.UUID]*models.Story
	txs     []models.CoinTransaction
	nextTx  int64
}

var (
	_ repository.UserRepository   = (*memStore)(nil)
	_ repository.LedgerRepository = (*memStore)(nil)
	_ repository.StoryRepository  = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[uuid.UUID]*models.User),
		stories: make(map[uuid.UUID]*models.Story),
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyStory(s *models.Story) *models.Story {
	c := *s
	c.Pages = append([]models.StoryPage(nil), s.Pages...)
	return &c
}

// --- UserRepository ---

func (m *memStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.Email != "" {
		for _, existing := range m.users {
			if existing.Email == user.Email {
				return models.ErrEmailAlreadyExists
			}
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = copyUser(user)
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email && email != "" {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *memStore) GetUserByReferralCode(_ context.Context, code string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ReferralCode == code && code != "" {
			return copyUser(u), nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *memStore) UpdateRegistration(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.users[user.ID]
	if !ok {
		return models.ErrUserNotFound
	}
	for id, existing := range m.users {
		if id != user.ID && existing.Email == user.Email && user.Email != "" {
			return models.ErrEmailAlreadyExists
		}
		if id != user.ID && existing.ReferralCode == user.ReferralCode && user.ReferralCode != "" {
			return models.ErrReferralCodeTaken
		}
	}
	stored.Email = user.Email
	stored.DisplayName = user.DisplayName
	stored.PasswordHash = user.PasswordHash
	stored.IsAnonymous = user.IsAnonymous
	stored.ReferralCode = user.ReferralCode
	stored.ReferredBy = user.ReferredBy
	stored.UpdatedAt = time.Now()
	return nil
}

// --- LedgerRepository ---

func (m *memStore) ApplyDelta(_ context.Context, userID uuid.UUID, delta int64, reason models.CoinReason, memo string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(userID, delta, reason, memo)
}

func (m *memStore) applyDeltaLocked(userID uuid.UUID, delta int64, reason models.CoinReason, memo string) (int64, error) {
	u, ok := m.users[userID]
	if !ok {
		return 0, models.ErrUserNotFound
	}
	if u.Coins+delta < 0 {
		return 0, models.ErrInsufficientFunds
	}
	u.Coins += delta
	m.nextTx++
	m.txs = append(m.txs, models.CoinTransaction{
		ID:        m.nextTx,
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		Memo:      memo,
		CreatedAt: time.Now(),
	})
	return u.Coins, nil
}

func (m *memStore) Transfer(_ context.Context, fromID, toID uuid.UUID, amount int64, reason models.CoinReason, memo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.applyDeltaLocked(fromID, -amount, reason, memo); err != nil {
		return err
	}
	if _, err := m.applyDeltaLocked(toID, amount, reason, memo); err != nil {
		// Undo the debit so the pair stays atomic.
		m.users[fromID].Coins += amount
		m.txs = m.txs[:len(m.txs)-1]
		return err
	}
	return nil
}

func (m *memStore) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return 0, models.ErrUserNotFound
	}
	return u.Coins, nil
}

func (m *memStore) SumDeltas(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum int64
	for _, tx := range m.txs {
		if tx.UserID == userID {
			sum += tx.Delta
		}
	}
	return sum, nil
}

func (m *memStore) ListTransactions(_ context.Context, userID uuid.UUID) ([]models.CoinTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.CoinTransaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].UserID == userID {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

// --- StoryRepository ---

func (m *memStore) CreateStory(_ context.Context, story *models.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	story.CreatedAt = time.Now()
	story.UpdatedAt = story.CreatedAt
	m.stories[story.ID] = copyStory(story)
	return nil
}

func (m *memStore) UpdateStory(_ context.Context, story *models.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stories[story.ID]; !ok {
		return models.ErrStoryNotFound
	}
	story.UpdatedAt = time.Now()
	m.stories[story.ID] = copyStory(story)
	return nil
}

func (m *memStore) GetStoryByID(_ context.Context, id uuid.UUID) (*models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stories[id]
	if !ok {
		return nil, models.ErrStoryNotFound
	}
	return copyStory(s), nil
}

func (m *memStore) ListStoriesByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Story
	for _, s := range m.stories {
		if s.UserID != nil && *s.UserID == userID {
			out = append(out, *copyStory(s))
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// seedUser inserts a user with a fixed balance, bypassing the ledger.
func (m *memStore) seedUser(user *models.User) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = copyUser(user)
	if user.Coins != 0 {
		m.nextTx++
		m.txs = append(m.txs, models.CoinTransaction{
			ID:        m.nextTx,
			UserID:    user.ID,
			Delta:     user.Coins,
			Reason:    models.CoinReasonWelcome,
			Memo:      "seed",
			CreatedAt: time.Now(),
		})
	}
	return user.ID
}
