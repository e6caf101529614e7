package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// setupGeminiClient rigs up a GeminiClient pointed at a mock HTTP server.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			t.Log("Warning: Unexpected HTTP request in test.")
			w.WriteHeader(http.StatusNotFound)
		}
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loggerCore, observedLogs := observer.New(zap.InfoLevel)

	cfg := getValidLLMConfig()
	cfg.Endpoint = server.URL

	client, err := NewGeminiClient(cfg, zap.New(loggerCore))
	require.NoError(t, err)
	client.httpClient.Timeout = 5 * time.Second

	return client, observedLogs
}

func createTestRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Options: schemas.GenerationOptions{
			Temperature: 0.7,
		},
	}
}

func geminiSuccessBody(text string) string {
	resp := GeminiResponsePayload{}
	resp.Candidates = []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	}{
		{Content: GeminiContent{Parts: []GeminiPart{{Text: text}}}, FinishReason: "STOP"},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestNewGeminiClient(t *testing.T) {
	logger := setupTestLogger(t)

	t.Run("requires an API key", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.APIKey = ""
		_, err := NewGeminiClient(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("derives the endpoint from the model name", func(t *testing.T) {
		cfg := getValidLLMConfig()
		client, err := NewGeminiClient(cfg, logger)
		require.NoError(t, err)
		assert.Contains(t, client.endpoint, "test-model:generateContent")
	})
}

func TestGenerateSuccess(t *testing.T) {
	var gotPayload GeminiRequestPayload
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		fmt.Fprint(w, geminiSuccessBody("generated text"))
	})

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)

	require.Len(t, gotPayload.Contents, 1)
	require.Len(t, gotPayload.Contents[0].Parts, 1)
	assert.Equal(t, "User query.", gotPayload.Contents[0].Parts[0].Text)
	require.NotNil(t, gotPayload.SystemInstruction)
	assert.Equal(t, "System prompt instructions.", gotPayload.SystemInstruction.Parts[0].Text)
	assert.Equal(t, 0.7, gotPayload.GenerationConfig.Temperature)
}

func TestGenerateMultimodal(t *testing.T) {
	var gotPayload GeminiRequestPayload
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		fmt.Fprint(w, geminiSuccessBody("saw the image"))
	})

	req := createTestRequest()
	req.Images = [][]byte{{0x89, 0x50, 0x4e, 0x47}}

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, gotPayload.Contents[0].Parts, 2)
	imgPart := gotPayload.Contents[0].Parts[1]
	require.NotNil(t, imgPart.InlineData)
	assert.Equal(t, "image/png", imgPart.InlineData.MimeType)
	assert.Equal(t, "iVBORw==", imgPart.InlineData.Data)
}

func TestGenerateSkipsEmptyImages(t *testing.T) {
	var gotPayload GeminiRequestPayload
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		fmt.Fprint(w, geminiSuccessBody("text only"))
	})

	req := createTestRequest()
	req.Images = [][]byte{nil, {}}

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	// Nil and zero-length entries must not become inline_data parts.
	require.Len(t, gotPayload.Contents[0].Parts, 1)
	assert.Nil(t, gotPayload.Contents[0].Parts[0].InlineData)
}

func TestGenerateForceJSONFormat(t *testing.T) {
	var gotPayload GeminiRequestPayload
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		fmt.Fprint(w, geminiSuccessBody(`{"ok":true}`))
	})

	req := createTestRequest()
	req.Options.ForceJSONFormat = true

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotPayload.GenerationConfig.ResponseMimeType)
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, geminiSuccessBody("recovered"))
	})

	out, err := client.Generate(context.Background(), createTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(3), calls.Load())
	assert.GreaterOrEqual(t, logs.FilterMessage("Gemini API returned error status").Len(), 1)
}

func TestGenerateStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "400 responses must not be retried")
}

func TestGenerateSafetyBlockIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateNoCandidates(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	})

	_, err := client.Generate(context.Background(), createTestRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGenerateContextCancellation(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, createTestRequest())
	require.Error(t, err)
}
