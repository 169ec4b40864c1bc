package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/models"
)

// StoryDraft is the text-generation result: a title plus one body per page,
// in page order.
type StoryDraft struct {
	Title string   `json:"title"`
	Pages []string `json:"pages"`
}

// AIClient generates the page texts for a story request.
type AIClient interface {
	GenerateStory(ctx context.Context, req models.StoryRequest) (*StoryDraft, error)
}

// Compile-time check to ensure openAIClient implements AIClient
var _ AIClient = (*openAIClient)(nil)

type openAIClient struct {
	client  *openai.Client
	cfg     config.AIConfig
	logger  *zap.Logger
	encoder *tiktoken.Tiktoken // prompt token estimates for logging, may be nil
}

// NewOpenAIClient creates an AIClient backed by an OpenAI-compatible API.
func NewOpenAIClient(cfg config.AIConfig, logger *zap.Logger) AIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	encoder, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		logger.Warn("Failed to load tiktoken encoding, token estimates disabled", zap.Error(err))
		encoder = nil
	}

	return &openAIClient{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		logger:  logger.Named("OpenAIClient"),
		encoder: encoder,
	}
}

// contentGuidelines selects age-appropriate writing constraints by bracket.
func contentGuidelines(age int) string {
	switch {
	case age <= 3:
		return "Use very short sentences of at most 6 words. Repeat key words. No conflict, no scary elements. Focus on sounds, colors and familiar objects."
	case age <= 6:
		return "Use short, simple sentences. A gentle, positive plot with at most one mild challenge that is resolved happily. No violence or scary imagery."
	case age <= 9:
		return "Use clear language with some richer vocabulary. A simple adventure arc with a beginning, a challenge and a happy resolution is welcome."
	default:
		return "Use engaging language suitable for a confident young reader. A more layered plot with humor and light suspense is fine, but keep it wholesome."
	}
}

const storySystemPrompt = `You are a children's story writer. You write warm, imaginative, age-appropriate illustrated stories.
Respond with a single JSON object and nothing else, in the form:
{"title": "...", "pages": ["page 1 text", "page 2 text", ...]}
Each page should be a short self-contained scene that can be illustrated with one picture.`

// GenerateStory requests the page texts in one completion call.
func (c *openAIClient) GenerateStory(ctx context.Context, req models.StoryRequest) (*StoryDraft, error) {
	language := req.Language
	if language == "" {
		language = "English"
	}

	userPrompt := fmt.Sprintf(
		"Write a story for a child named %s, age %d, about: %s.\nLanguage: %s.\nExactly %d pages.\nGuidelines: %s",
		req.ChildName, req.ChildAge, req.Theme, language, req.PageCount, contentGuidelines(req.ChildAge),
	)

	if c.encoder != nil {
		promptTokens := len(c.encoder.Encode(storySystemPrompt+userPrompt, nil, nil))
		c.logger.Debug("Prepared story prompt", zap.Int("estimated_prompt_tokens", promptTokens))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSec)*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: storySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		aiRequestDuration.WithLabelValues(c.cfg.Model, "error").Observe(time.Since(start).Seconds())
		c.logger.Error("Text generation request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrTextGenerationFailed, err)
	}
	aiRequestDuration.WithLabelValues(c.cfg.Model, "success").Observe(time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", models.ErrTextGenerationFailed)
	}

	draft, err := parseStoryDraft(resp.Choices[0].Message.Content, req.PageCount)
	if err != nil {
		c.logger.Error("Failed to parse story draft", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrTextGenerationFailed, err)
	}

	c.logger.Info("Story draft generated",
		zap.String("model", c.cfg.Model),
		zap.Int("pages", len(draft.Pages)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return draft, nil
}

// parseStoryDraft decodes the model response, tolerating code fences, and
// enforces the requested page count. Extra pages are dropped; missing pages
// are an error.
func parseStoryDraft(content string, pageCount int) (*StoryDraft, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var draft StoryDraft
	if err := json.Unmarshal([]byte(cleaned), &draft); err != nil {
		return nil, fmt.Errorf("invalid JSON in completion: %w", err)
	}
	if len(draft.Pages) < pageCount {
		return nil, fmt.Errorf("model returned %d pages, expected %d", len(draft.Pages), pageCount)
	}
	draft.Pages = draft.Pages[:pageCount]
	for i, page := range draft.Pages {
		if strings.TrimSpace(page) == "" {
			return nil, fmt.Errorf("page %d is empty", i+1)
		}
	}
	return &draft, nil
}
