package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storybook-server/internal/config"
)

// Connect creates a pgx connection pool, verifies it and applies migrations.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Successfully connected to database")

	if err := ApplyMigrations(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info("Database migrations applied")

	return pool, nil
}

// Close shuts down the pool.
func Close(pool *pgxpool.Pool, logger *zap.Logger) {
	if pool != nil {
		pool.Close()
		logger.Info("Database connection closed")
	}
}
