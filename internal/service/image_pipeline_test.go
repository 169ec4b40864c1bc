package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/mocks"
	"storybook-server/internal/service"
)

func pipelineConfig() config.ImageConfig {
	return config.ImageConfig{
		PromptStyleSuffix:  ", test style",
		PlaceholderBaseURL: "https://placehold.co",
		PlaceholderWidth:   512,
		PlaceholderHeight:  512,
		DownloadTimeoutSec: 5,
	}
}

func TestImagePipeline_NoProviderFallsBackToPlaceholder(t *testing.T) {
	pipeline := service.NewImagePipeline(nil, nil, pipelineConfig(), zap.NewNop())

	result := pipeline.Acquire(context.Background(), "a fox in the forest", uuid.New(), 1)

	assert.NotEmpty(t, result.URL)
	assert.True(t, result.Placeholder())
	assert.Contains(t, result.URL, "placehold.co/512x512")
	assert.Contains(t, result.URL, "text=")
}

func TestImagePipeline_ProviderErrorFallsBackToPlaceholder(t *testing.T) {
	provider := mocks.NewMockImageProvider(t)
	provider.On("Generate", mock.Anything, "a fox in the forest, test style").
		Return("", errors.New("provider down")).Once()

	pipeline := service.NewImagePipeline(provider, nil, pipelineConfig(), zap.NewNop())
	result := pipeline.Acquire(context.Background(), "a fox in the forest", uuid.New(), 1)

	assert.True(t, result.Placeholder())
	assert.NotEmpty(t, result.URL)
	provider.AssertExpectations(t)
}

func TestImagePipeline_NoStoreReturnsRemoteURL(t *testing.T) {
	provider := mocks.NewMockImageProvider(t)
	provider.On("Generate", mock.Anything, mock.Anything).
		Return("https://cdn.example.com/img.png", nil).Once()

	pipeline := service.NewImagePipeline(provider, nil, pipelineConfig(), zap.NewNop())
	result := pipeline.Acquire(context.Background(), "a fox", uuid.New(), 1)

	assert.Equal(t, "https://cdn.example.com/img.png", result.URL)
	assert.False(t, result.Placeholder())
	provider.AssertExpectations(t)
}

func TestImagePipeline_DurableSave(t *testing.T) {
	imageBody := []byte("fake-image-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(imageBody)
	}))
	defer srv.Close()

	provider := mocks.NewMockImageProvider(t)
	provider.On("Generate", mock.Anything, mock.Anything).Return(srv.URL+"/img.png", nil).Once()

	store := mocks.NewMockBlobStore(t)
	store.On("Save", mock.Anything, mock.AnythingOfType("string"), imageBody, "image/jpeg").
		Return("https://storage.example.com/stories/img.jpg", nil).Once()

	pipeline := service.NewImagePipeline(provider, store, pipelineConfig(), zap.NewNop())
	result := pipeline.Acquire(context.Background(), "a fox", uuid.New(), 1)

	assert.Equal(t, "https://storage.example.com/stories/img.jpg", result.URL)
	assert.False(t, result.Placeholder())
	provider.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestImagePipeline_DownloadFailureKeepsTransientURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider := mocks.NewMockImageProvider(t)
	provider.On("Generate", mock.Anything, mock.Anything).Return(srv.URL+"/img.png", nil).Once()

	// The store must not be consulted when the download already failed.
	store := mocks.NewMockBlobStore(t)

	pipeline := service.NewImagePipeline(provider, store, pipelineConfig(), zap.NewNop())
	result := pipeline.Acquire(context.Background(), "a fox", uuid.New(), 1)

	assert.Equal(t, srv.URL+"/img.png", result.URL, "the transient provider URL is still a usable image")
	assert.False(t, result.Placeholder())
	store.AssertExpectations(t)
}

func TestImagePipeline_SaveFailureKeepsTransientURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer srv.Close()

	provider := mocks.NewMockImageProvider(t)
	provider.On("Generate", mock.Anything, mock.Anything).Return(srv.URL+"/img.png", nil).Once()

	store := mocks.NewMockBlobStore(t)
	store.On("Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("bucket unavailable")).Once()

	pipeline := service.NewImagePipeline(provider, store, pipelineConfig(), zap.NewNop())
	result := pipeline.Acquire(context.Background(), "a fox", uuid.New(), 1)

	assert.Equal(t, srv.URL+"/img.png", result.URL)
	assert.False(t, result.Placeholder())
	store.AssertExpectations(t)
}

func TestImagePipeline_AcquireNeverReturnsEmptyURL(t *testing.T) {
	// Worst case on every axis: provider fails, store would fail too.
	provider := mocks.NewMockImageProvider(t)
	provider.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("down")).Once()

	pipeline := service.NewImagePipeline(provider, nil, pipelineConfig(), zap.NewNop())
	result := pipeline.Acquire(context.Background(), "", uuid.New(), 3)

	assert.NotEmpty(t, result.URL)
	assert.True(t, result.Placeholder())
	// Empty prompts still produce a readable placeholder label.
	assert.Contains(t, result.URL, "text=storybook")
}
