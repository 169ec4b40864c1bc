package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	_ "image/gif" // register decoders for inbound payloads
	_ "image/png"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/storage"
)

// StorageAdapter normalizes inbound image payloads into compressed, durably
// stored assets with stable public URLs. It must never be the reason a story
// fails: every error path returns the original input unchanged.
type StorageAdapter struct {
	store       storage.BlobStore // nil in offline mode
	jpegQuality int
	logger      *zap.Logger
}

// NewStorageAdapter creates the adapter. A nil store selects pass-through
// (offline) mode.
func NewStorageAdapter(store storage.BlobStore, jpegQuality int, logger *zap.Logger) *StorageAdapter {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = jpeg.DefaultQuality
	}
	return &StorageAdapter{
		store:       store,
		jpegQuality: jpegQuality,
		logger:      logger.Named("StorageAdapter"),
	}
}

// Persist converts an inline-encoded image into a stored JPEG and returns its
// public URL. Remote references pass through unchanged, which also makes the
// operation idempotent on its own output.
func (a *StorageAdapter) Persist(ctx context.Context, rawImage string, storyID uuid.UUID, pageIndex int) string {
	if !strings.HasPrefix(rawImage, "data:") {
		return rawImage
	}
	if a.store == nil {
		// Offline mode: callers render the inline payload directly.
		return rawImage
	}

	data, err := decodeDataURI(rawImage)
	if err != nil {
		a.logger.Warn("Failed to decode inline image, keeping original",
			zap.String("storyID", storyID.String()), zap.Int("page", pageIndex), zap.Error(err))
		return rawImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		a.logger.Warn("Failed to decode image payload, keeping original",
			zap.String("storyID", storyID.String()), zap.Int("page", pageIndex), zap.Error(err))
		return rawImage
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: a.jpegQuality}); err != nil {
		a.logger.Warn("Failed to re-encode image, keeping original",
			zap.String("storyID", storyID.String()), zap.Int("page", pageIndex), zap.Error(err))
		return rawImage
	}

	name := fmt.Sprintf("stories/%s/page-%d-%s.jpg", storyID, pageIndex, uuid.NewString()[:8])
	url, err := a.store.Save(ctx, name, buf.Bytes(), "image/jpeg")
	if err != nil {
		a.logger.Warn("Failed to store converted image, keeping original",
			zap.String("storyID", storyID.String()), zap.Int("page", pageIndex), zap.Error(err))
		return rawImage
	}

	a.logger.Debug("Inline image persisted",
		zap.String("storyID", storyID.String()),
		zap.Int("page", pageIndex),
		zap.String("source_format", format),
		zap.Int("stored_bytes", buf.Len()),
		zap.String("url", url),
	)
	return url
}

// PersistAll applies Persist to each image independently; one item's failure
// never affects its siblings. Page indices are 1-based to match page numbers.
func (a *StorageAdapter) PersistAll(ctx context.Context, images []string, storyID uuid.UUID) []string {
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = a.Persist(ctx, img, storyID, i+1)
	}
	return urls
}

// decodeDataURI extracts the payload bytes from a data URI. Only base64
// encoding is supported; anything else is treated as undecodable.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI: no payload separator")
	}
	meta, payload := uri[:comma], uri[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("unsupported data URI encoding: %s", meta)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data URI payload")
	}
	return data, nil
}
