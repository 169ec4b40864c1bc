package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/storage"
)

// maxDownloadBytes caps how much of a provider's transient image we buffer.
const maxDownloadBytes = 20 << 20 // 20 MiB

// AcquireResult is the terminal outcome of one Acquire call. URL is always
// non-empty; Stage names the pipeline stage that produced it.
type AcquireResult struct {
	URL   string
	Stage string // remote, durable, transient, placeholder
}

// Placeholder reports whether the image is a synthesized stand-in rather
// than a real illustration.
func (r AcquireResult) Placeholder() bool {
	return r.Stage == stagePlaceholder
}

const (
	stageRemote      = "remote"
	stageDurable     = "durable"
	stageTransient   = "transient"
	stagePlaceholder = "placeholder"
)

// acquireState is threaded through the stage chain; remoteURL carries stage
// 1's output into stage 2.
type acquireState struct {
	prompt    string
	storyID   uuid.UUID
	pageIndex int
	remoteURL string
}

// acquireStage attempts one acquisition strategy. done=true terminates the
// chain with the given result; done=false advances to the next stage.
type acquireStage struct {
	name string
	run  func(ctx context.Context, st *acquireState) (result AcquireResult, done bool)
}

// ImagePipeline produces a renderable image URL for a page through an
// ordered fallback chain: remote generation, durable persistence of the
// remote result, deterministic placeholder. Acquire is total: provider
// errors, timeouts and malformed responses never propagate past it.
type ImagePipeline struct {
	provider   ImageProvider // nil when no credential is configured
	store      storage.BlobStore
	httpClient *http.Client
	cfg        config.ImageConfig
	logger     *zap.Logger
	stages     []acquireStage
}

// NewImagePipeline assembles the stage chain.
func NewImagePipeline(provider ImageProvider, store storage.BlobStore, cfg config.ImageConfig, logger *zap.Logger) *ImagePipeline {
	p := &ImagePipeline{
		provider: provider,
		store:    store,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.DownloadTimeoutSec) * time.Second,
		},
		cfg:    cfg,
		logger: logger.Named("ImagePipeline"),
	}
	p.stages = []acquireStage{
		{name: "remote_generation", run: p.stageRemoteGeneration},
		{name: "durable_save", run: p.stageDurableSave},
		{name: "placeholder", run: p.stagePlaceholder},
	}
	return p
}

// Acquire returns a usable image URL for the page. It never fails.
func (p *ImagePipeline) Acquire(ctx context.Context, prompt string, storyID uuid.UUID, pageIndex int) AcquireResult {
	st := &acquireState{prompt: prompt, storyID: storyID, pageIndex: pageIndex}
	for _, stage := range p.stages {
		result, done := stage.run(ctx, st)
		if done {
			imageStageTotal.WithLabelValues(result.Stage).Inc()
			p.logger.Debug("Image acquired",
				zap.String("storyID", storyID.String()),
				zap.Int("page", pageIndex),
				zap.String("stage", result.Stage),
			)
			return result
		}
	}
	// Unreachable: the placeholder stage always terminates the chain.
	return AcquireResult{
		URL:   PlaceholderImageURL(p.cfg.PlaceholderBaseURL, prompt, p.cfg.PlaceholderWidth, p.cfg.PlaceholderHeight),
		Stage: stagePlaceholder,
	}
}

// stageRemoteGeneration calls the external provider with the enhanced prompt.
// On success it records the transient URL for the durable-save stage; on any
// failure the chain advances, ultimately reaching the placeholder.
func (p *ImagePipeline) stageRemoteGeneration(ctx context.Context, st *acquireState) (AcquireResult, bool) {
	if p.provider == nil {
		return AcquireResult{}, false
	}
	url, err := p.provider.Generate(ctx, st.prompt+p.cfg.PromptStyleSuffix)
	if err != nil {
		p.logger.Warn("Remote image generation failed, falling back",
			zap.String("storyID", st.storyID.String()),
			zap.Int("page", st.pageIndex),
			zap.Error(err),
		)
		return AcquireResult{}, false
	}
	st.remoteURL = url
	return AcquireResult{}, false
}

// stageDurableSave downloads the transient provider URL and persists it. If
// the download or the write fails, the transient URL itself is still a valid
// outcome; failing the page over a persistence problem is never acceptable.
func (p *ImagePipeline) stageDurableSave(ctx context.Context, st *acquireState) (AcquireResult, bool) {
	if st.remoteURL == "" {
		return AcquireResult{}, false
	}
	if p.store == nil {
		return AcquireResult{URL: st.remoteURL, Stage: stageRemote}, true
	}

	data, err := p.download(ctx, st.remoteURL)
	if err != nil {
		p.logger.Warn("Failed to download transient image, returning provider URL",
			zap.String("storyID", st.storyID.String()),
			zap.Int("page", st.pageIndex),
			zap.Error(err),
		)
		return AcquireResult{URL: st.remoteURL, Stage: stageTransient}, true
	}

	name := fmt.Sprintf("stories/%s/page-%d-%s.jpg", st.storyID, st.pageIndex, uuid.NewString()[:8])
	url, err := p.store.Save(ctx, name, data, "image/jpeg")
	if err != nil {
		p.logger.Warn("Failed to persist image durably, returning provider URL",
			zap.String("storyID", st.storyID.String()),
			zap.Int("page", st.pageIndex),
			zap.Error(err),
		)
		return AcquireResult{URL: st.remoteURL, Stage: stageTransient}, true
	}
	return AcquireResult{URL: url, Stage: stageDurable}, true
}

// stagePlaceholder is the terminal fallback and cannot fail.
func (p *ImagePipeline) stagePlaceholder(_ context.Context, st *acquireState) (AcquireResult, bool) {
	url := PlaceholderImageURL(p.cfg.PlaceholderBaseURL, st.prompt, p.cfg.PlaceholderWidth, p.cfg.PlaceholderHeight)
	return AcquireResult{URL: url, Stage: stagePlaceholder}, true
}

func (p *ImagePipeline) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download returned empty body")
	}
	return data, nil
}
