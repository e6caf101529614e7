package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

func TestNewLLMRouter(t *testing.T) {
	logger := setupTestLogger(t)
	fast := &MockLLMClient{Name: "fast"}
	powerful := &MockLLMClient{Name: "powerful"}

	t.Run("rejects nil clients", func(t *testing.T) {
		_, err := NewLLMRouter(logger, nil, powerful)
		assert.Error(t, err)
		_, err = NewLLMRouter(logger, fast, nil)
		assert.Error(t, err)
	})

	t.Run("accepts both clients", func(t *testing.T) {
		router, err := NewLLMRouter(logger, fast, powerful)
		require.NoError(t, err)
		assert.NotNil(t, router)
	})
}

func TestRouterTierSelection(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()

	fast := &MockLLMClient{Name: "fast"}
	powerful := &MockLLMClient{Name: "powerful"}
	router, err := NewLLMRouter(logger, fast, powerful)
	require.NoError(t, err)

	t.Run("routes fast tier to the fast client", func(t *testing.T) {
		req := schemas.GenerationRequest{Tier: schemas.TierFast, UserPrompt: "quick"}
		fast.On("Generate", ctx, req).Return("fast answer", nil).Once()

		out, err := router.Generate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "fast answer", out)
		fast.AssertExpectations(t)
	})

	t.Run("routes powerful tier to the powerful client", func(t *testing.T) {
		req := schemas.GenerationRequest{Tier: schemas.TierPowerful, UserPrompt: "deep"}
		powerful.On("Generate", ctx, req).Return("deep answer", nil).Once()

		out, err := router.Generate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "deep answer", out)
		powerful.AssertExpectations(t)
	})

	t.Run("defaults an empty tier to powerful", func(t *testing.T) {
		req := schemas.GenerationRequest{UserPrompt: "untagged"}
		powerful.On("Generate", ctx, req).Return("default answer", nil).Once()

		out, err := router.Generate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "default answer", out)
		powerful.AssertExpectations(t)
	})

	t.Run("propagates client errors", func(t *testing.T) {
		req := schemas.GenerationRequest{Tier: schemas.TierFast, UserPrompt: "boom"}
		fast.On("Generate", ctx, req).Return("", errors.New("upstream failure")).Once()

		_, err := router.Generate(ctx, req)
		assert.ErrorContains(t, err, "upstream failure")
	})
}

func TestRouterClose(t *testing.T) {
	logger := setupTestLogger(t)

	t.Run("closes distinct clients once each", func(t *testing.T) {
		fast := &MockLLMClient{Name: "fast"}
		powerful := &MockLLMClient{Name: "powerful"}
		fast.On("Close").Return(nil).Once()
		powerful.On("Close").Return(nil).Once()

		router, err := NewLLMRouter(logger, fast, powerful)
		require.NoError(t, err)
		require.NoError(t, router.Close())
		fast.AssertExpectations(t)
		powerful.AssertExpectations(t)
	})

	t.Run("closes a shared client only once", func(t *testing.T) {
		shared := &MockLLMClient{Name: "shared"}
		shared.On("Close").Return(nil).Once()

		router, err := NewLLMRouter(logger, shared, shared)
		require.NoError(t, err)
		require.NoError(t, router.Close())
		shared.AssertNumberOfCalls(t, "Close", 1)
	})
}
