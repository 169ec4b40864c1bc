package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"storybook-server/internal/config"
)

// ErrImageGenerationFailed is returned when the remote provider could not
// produce an image. The pipeline absorbs it and falls through to the next
// stage.
var ErrImageGenerationFailed = errors.New("image generation failed")

// ImageProvider generates one illustration and returns its transient URL.
type ImageProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Compile-time check to ensure openAIImageProvider implements ImageProvider
var _ ImageProvider = (*openAIImageProvider)(nil)

type openAIImageProvider struct {
	client *openai.Client
	cfg    config.ImageConfig
	logger *zap.Logger
}

// NewOpenAIImageProvider creates an ImageProvider backed by the OpenAI images
// API. Returns nil when no credential is configured; the pipeline treats a
// nil provider as "remote generation unavailable".
func NewOpenAIImageProvider(cfg config.ImageConfig, logger *zap.Logger) ImageProvider {
	if cfg.APIKey == "" {
		logger.Warn("Image provider credential not configured, illustrations will use placeholders")
		return nil
	}
	return &openAIImageProvider{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
		logger: logger.Named("OpenAIImageProvider"),
	}
}

// Generate requests a single image at the configured resolution.
func (p *openAIImageProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutSec)*time.Second)
	defer cancel()

	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.cfg.Model,
		N:              1,
		Size:           p.cfg.Size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		p.logger.Warn("Image provider request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrImageGenerationFailed, err)
	}
	// An empty result is equivalent to an error.
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		p.logger.Warn("Image provider returned no data")
		return "", fmt.Errorf("%w: provider returned empty result", ErrImageGenerationFailed)
	}
	return resp.Data[0].URL, nil
}
