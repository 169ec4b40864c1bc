package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storybook-server/internal/models"
)

// Compile-time check to ensure redisTokenRepository implements TokenRepository
var _ TokenRepository = (*redisTokenRepository)(nil)

// redisTokenRepository stores two keys per issued pair, each expiring with
// its token:
//
//	access_uuid:{AccessUUID}  -> userID
//	refresh_uuid:{RefreshUUID} -> userID
type redisTokenRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTokenRepository creates a new Redis-backed TokenRepository.
func NewRedisTokenRepository(client *redis.Client, logger *zap.Logger) TokenRepository {
	return &redisTokenRepository{
		client: client,
		logger: logger.Named("RedisTokenRepo"),
	}
}

func accessKey(accessUUID string) string   { return fmt.Sprintf("access_uuid:%s", accessUUID) }
func refreshKey(refreshUUID string) string { return fmt.Sprintf("refresh_uuid:%s", refreshUUID) }

// SaveToken stores both token identifiers with their TTLs.
func (r *redisTokenRepository) SaveToken(ctx context.Context, userID uuid.UUID, td *models.TokenDetails) error {
	now := time.Now()
	accessTTL := time.Unix(td.AtExpires, 0).Sub(now)
	refreshTTL := time.Unix(td.RtExpires, 0).Sub(now)
	userIDStr := userID.String()

	pipe := r.client.Pipeline()
	pipe.Set(ctx, accessKey(td.AccessUUID), userIDStr, accessTTL)
	pipe.Set(ctx, refreshKey(td.RefreshUUID), userIDStr, refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save token details in redis", zap.Error(err), zap.String("userID", userIDStr))
		return fmt.Errorf("failed to save token details in redis: %w", err)
	}

	r.logger.Debug("Tokens saved in redis",
		zap.String("userID", userIDStr),
		zap.Duration("accessTTL", accessTTL),
		zap.Duration("refreshTTL", refreshTTL),
	)
	return nil
}

func (r *redisTokenRepository) lookup(ctx context.Context, key string) (uuid.UUID, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, models.ErrTokenNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get token from redis: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupted user id in token store: %w", err)
	}
	return id, nil
}

// UserIDByAccess resolves an access token UUID to its user.
func (r *redisTokenRepository) UserIDByAccess(ctx context.Context, accessUUID string) (uuid.UUID, error) {
	return r.lookup(ctx, accessKey(accessUUID))
}

// UserIDByRefresh resolves a refresh token UUID to its user.
func (r *redisTokenRepository) UserIDByRefresh(ctx context.Context, refreshUUID string) (uuid.UUID, error) {
	return r.lookup(ctx, refreshKey(refreshUUID))
}

// DeleteRefresh revokes a refresh token.
func (r *redisTokenRepository) DeleteRefresh(ctx context.Context, refreshUUID string) error {
	if err := r.client.Del(ctx, refreshKey(refreshUUID)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token from redis: %w", err)
	}
	return nil
}
