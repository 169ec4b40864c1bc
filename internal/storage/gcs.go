package storage

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"storybook-server/internal/config"
)

// Compile-time check to ensure gcsStore implements BlobStore
var _ BlobStore = (*gcsStore)(nil)

// gcsStore writes blobs to the project's Firebase storage bucket. Objects are
// written with a public-read ACL so the returned URL is directly renderable.
type gcsStore struct {
	bucket     *gcs.BucketHandle
	bucketName string
	logger     *zap.Logger
}

// NewGCSStore initializes a Firebase app and returns a BlobStore backed by
// its default storage bucket.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket (STORAGE_GCS_BUCKET) is not configured")
	}

	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{StorageBucket: cfg.Bucket}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase storage client: %w", err)
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("failed to get default storage bucket: %w", err)
	}

	logger.Info("GCS blob store initialized", zap.String("bucket", cfg.Bucket))
	return &gcsStore{
		bucket:     bucket,
		bucketName: cfg.Bucket,
		logger:     logger.Named("GCSStore"),
	}, nil
}

// Save uploads the blob and returns its public URL.
func (s *gcsStore) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.PredefinedACL = "publicRead"
	w.CacheControl = "public, max-age=31536000"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write blob to bucket: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize blob upload: %w", err)
	}

	url := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, name)
	s.logger.Debug("Blob uploaded", zap.String("name", name), zap.Int("size_bytes", len(data)), zap.String("url", url))
	return url, nil
}
