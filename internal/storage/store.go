// Package storage provides the durable blob backends images are persisted to.
// Absence of a configured backend is a valid offline mode, not an error; the
// callers detect a nil store and fall back to serving payloads inline.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storybook-server/internal/config"
)

// BlobStore writes a named blob and returns its stable public URL.
type BlobStore interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// New builds the BlobStore selected by the configuration. Mode "none" returns
// a nil store, which callers treat as offline mode.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (BlobStore, error) {
	switch cfg.Mode {
	case "", "none":
		logger.Info("No durable storage configured, images will be served inline")
		return nil, nil
	case "local":
		return NewLocalStore(cfg, logger)
	case "gcs":
		return NewGCSStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}
}
