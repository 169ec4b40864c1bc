package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/database"
	"storybook-server/internal/handler"
	"storybook-server/internal/logger"
	"storybook-server/internal/repository"
	"storybook-server/internal/service"
	"storybook-server/internal/storage"
)

func main() {
	// --- 1. Configuration ---
	cfg := config.Load()

	// --- 2. Logger ---
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	zap.ReplaceGlobals(appLogger)
	appLogger.Info("Starting Storybook Server...", zap.String("env", cfg.AppEnv))

	ctx := context.Background()

	// --- 3. Database ---
	pool, err := database.Connect(ctx, cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool, appLogger)

	// --- 4. Redis (token store) ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// --- 5. Blob storage (optional) ---
	blobStore, err := storage.New(ctx, cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	// --- 6. Repositories ---
	userRepo := repository.NewPgUserRepository(pool, appLogger)
	ledgerRepo := repository.NewPgLedgerRepository(pool, appLogger)
	storyRepo := repository.NewPgStoryRepository(pool, appLogger)
	tokenRepo := repository.NewRedisTokenRepository(redisClient, appLogger)

	// --- 7. Services ---
	ledgerService := service.NewLedgerService(ledgerRepo, appLogger)
	userService := service.NewUserService(userRepo, ledgerService, cfg.Economy, appLogger)
	tokenService := service.NewTokenService(cfg.JWT, tokenRepo, appLogger)

	aiClient := service.NewOpenAIClient(cfg.AI, appLogger)
	imageProvider := service.NewOpenAIImageProvider(cfg.Images, appLogger)
	imagePipeline := service.NewImagePipeline(imageProvider, blobStore, cfg.Images, appLogger)
	storageAdapter := service.NewStorageAdapter(blobStore, cfg.Storage.JPEGQuality, appLogger)

	storyService := service.NewStoryService(
		storyRepo, ledgerService, aiClient, imagePipeline, storageAdapter,
		cfg.Economy, cfg.Generation, appLogger,
	)

	// --- 8. HTTP server ---
	h := handler.New(userService, ledgerService, storyService, tokenService, appLogger)
	router := h.Router(cfg.Server, cfg.AppEnv)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		appLogger.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- 9. Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down Storybook Server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Forced shutdown", zap.Error(err))
	}

	appLogger.Info("Storybook Server shut down gracefully")
}
