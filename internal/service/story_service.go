package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storybook-server/internal/config"
	"storybook-server/internal/models"
	"storybook-server/internal/repository"
)

// StoryService is the top-level generation coordinator. One run moves a
// story through pending → text generation → parallel image fan-out →
// complete, with `failed` reachable only before images begin. The ledger
// debit happens first and is compensated with a refund exactly when text
// generation fails; image-stage degradation is absorbed as placeholder pages
// and never refunded.
type StoryService struct {
	stories  repository.StoryRepository
	ledger   *LedgerService
	ai       AIClient
	pipeline *ImagePipeline
	adapter  *StorageAdapter
	economy  config.EconomyConfig
	gen      config.GenerationConfig
	logger   *zap.Logger
}

// NewStoryService creates a new StoryService.
func NewStoryService(
	stories repository.StoryRepository,
	ledger *LedgerService,
	ai AIClient,
	pipeline *ImagePipeline,
	adapter *StorageAdapter,
	economy config.EconomyConfig,
	gen config.GenerationConfig,
	logger *zap.Logger,
) *StoryService {
	return &StoryService{
		stories:  stories,
		ledger:   ledger,
		ai:       ai,
		pipeline: pipeline,
		adapter:  adapter,
		economy:  economy,
		gen:      gen,
		logger:   logger.Named("StoryService"),
	}
}

// Cost returns the coin cost of a request.
func (s *StoryService) Cost(req models.StoryRequest) int64 {
	return int64(req.PageCount) * s.economy.CostPerPage
}

// Generate runs one full story generation for the user. On
// models.ErrInsufficientFunds no story record is created; on text-generation
// failure the returned story is marked failed and the debit is refunded.
func (s *StoryService) Generate(ctx context.Context, userID uuid.UUID, req models.StoryRequest) (*models.Story, error) {
	// Once the debit lands the run must finish or refund even if the
	// initiating request is abandoned, so detach from its cancellation.
	ctx = context.WithoutCancel(ctx)

	log := s.logger.With(zap.String("userID", userID.String()))
	cost := s.Cost(req)

	memo := fmt.Sprintf("story generation: %d pages about %q", req.PageCount, req.Theme)
	if _, err := s.ledger.Debit(ctx, userID, cost, models.CoinReasonGeneration, memo); err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) || errors.Is(err, models.ErrInvalidAmount) {
			storiesGeneratedTotal.WithLabelValues("insufficient_funds").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit generation cost: %w", err)
	}

	story := &models.Story{
		ID:         uuid.New(),
		UserID:     &userID,
		ChildName:  req.ChildName,
		ChildAge:   req.ChildAge,
		Theme:      req.Theme,
		Language:   req.Language,
		Pages:      []models.StoryPage{},
		Status:     models.StoryStatusPending,
		Visibility: models.StoryVisibilityUnlisted,
	}
	if err := s.stories.CreateStory(ctx, story); err != nil {
		s.refund(ctx, userID, cost, "story record creation failed")
		return nil, err
	}
	log = log.With(zap.String("storyID", story.ID.String()))

	draft, err := s.ai.GenerateStory(ctx, req)
	if err != nil {
		log.Error("Text generation failed, refunding", zap.Error(err))
		story.Status = models.StoryStatusFailed
		if updErr := s.stories.UpdateStory(ctx, story); updErr != nil {
			log.Error("Failed to mark story as failed", zap.Error(updErr))
		}
		s.refund(ctx, userID, cost, fmt.Sprintf("refund for failed generation %s", story.ID))
		storiesGeneratedTotal.WithLabelValues("failed").Inc()
		return story, err
	}

	// Past this point failures degrade to placeholders; the story always
	// completes and the debit stands.
	story.Title = draft.Title
	story.Pages = s.generatePages(ctx, story.ID, req, draft)
	story.Status = models.StoryStatusComplete

	if err := s.stories.UpdateStory(ctx, story); err != nil {
		log.Error("Failed to persist completed story", zap.Error(err))
		return story, err
	}

	placeholders := 0
	for _, p := range story.Pages {
		if p.Status == models.PageStatusPlaceholder {
			placeholders++
		}
	}
	log.Info("Story generation complete",
		zap.Int("pages", len(story.Pages)),
		zap.Int("placeholders", placeholders),
		zap.Int64("cost", cost),
	)
	storiesGeneratedTotal.WithLabelValues("complete").Inc()
	return story, nil
}

// generatePages fans out per-page image acquisition with a bounded degree of
// parallelism. Pages may finish in any order; indexing the result slice by
// page position keeps the assembled sequence in page-number order.
func (s *StoryService) generatePages(ctx context.Context, storyID uuid.UUID, req models.StoryRequest, draft *StoryDraft) []models.StoryPage {
	pages := make([]models.StoryPage, len(draft.Pages))

	g, gctx := errgroup.WithContext(ctx)
	limit := s.gen.MaxConcurrentImages
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, text := range draft.Pages {
		g.Go(func() error {
			pageNumber := i + 1
			prompt := buildImagePrompt(req, text)

			acquired := s.pipeline.Acquire(gctx, prompt, storyID, pageNumber)
			finalURL := s.adapter.Persist(gctx, acquired.URL, storyID, pageNumber)

			status := models.PageStatusGenerated
			if acquired.Placeholder() {
				status = models.PageStatusPlaceholder
			}
			pages[i] = models.StoryPage{
				PageNumber: pageNumber,
				Text:       text,
				ImageURL:   finalURL,
				Status:     status,
			}
			return nil
		})
	}
	// Acquire is total and the goroutines return nil, so Wait cannot fail.
	_ = g.Wait()
	return pages
}

// refund compensates a debit after an unrecoverable failure. A refund that
// itself fails is logged loudly: it leaves a debit without a story, which an
// operator has to repair by hand.
func (s *StoryService) refund(ctx context.Context, userID uuid.UUID, amount int64, memo string) {
	if _, err := s.ledger.Credit(ctx, userID, amount, models.CoinReasonRefund, memo); err != nil {
		s.logger.Error("CRITICAL: refund failed, user charged without a story",
			zap.String("userID", userID.String()),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
	}
}

// GetStory returns a story by ID.
func (s *StoryService) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	return s.stories.GetStoryByID(ctx, id)
}

// ListStories returns a user's stories, newest first.
func (s *StoryService) ListStories(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Story, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.stories.ListStoriesByUser(ctx, userID, limit, offset)
}

// buildImagePrompt condenses a page into an illustration prompt. The style
// suffix is appended later by the pipeline.
func buildImagePrompt(req models.StoryRequest, pageText string) string {
	const maxSceneLen = 300
	scene := pageText
	if runes := []rune(scene); len(runes) > maxSceneLen {
		scene = string(runes[:maxSceneLen])
	}
	return fmt.Sprintf("Illustration for a children's story about %s: %s", req.Theme, scene)
}
