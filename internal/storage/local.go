package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"storybook-server/internal/config"
)

// Compile-time check to ensure localStore implements BlobStore
var _ BlobStore = (*localStore)(nil)

// localStore writes blobs under a mounted directory that is served by an
// external web server at the configured public base URL.
type localStore struct {
	basePath string
	baseURL  string
	logger   *zap.Logger
}

// NewLocalStore creates a filesystem-backed BlobStore.
func NewLocalStore(cfg config.StorageConfig, logger *zap.Logger) (BlobStore, error) {
	if cfg.LocalPath == "" {
		return nil, errors.New("local storage path (STORAGE_LOCAL_PATH) is not configured")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("public base URL (STORAGE_PUBLIC_BASE_URL) is not configured")
	}
	return &localStore{
		basePath: cfg.LocalPath,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:   logger.Named("LocalStore"),
	}, nil
}

// Save writes the blob to disk and returns its public URL.
func (s *localStore) Save(_ context.Context, name string, data []byte, _ string) (string, error) {
	filePath := filepath.Join(s.basePath, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		s.logger.Error("Failed to write blob to disk", zap.String("path", filePath), zap.Error(err))
		return "", fmt.Errorf("failed to write blob to disk: %w", err)
	}

	url := s.baseURL + "/" + name
	s.logger.Debug("Blob saved to disk", zap.String("path", filePath), zap.String("url", url))
	return url, nil
}
