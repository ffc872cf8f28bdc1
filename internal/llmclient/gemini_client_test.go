package llmclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
)

const okResponse = `{
  "candidates": [{"content": {"role": "model", "parts": [{"text": "use parameterized queries"}]}, "finishReason": "STOP"}],
  "usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16}
}`

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:    config.ProviderGemini,
		Model:       "gemini-test-pro",
		FastModel:   "gemini-test-flash",
		APIKey:      "test-api-key",
		APITimeout:  5 * time.Second,
		Temperature: 0.2,
		TopK:        40,
		MaxTokens:   1024,
		MaxRetries:  3,
	}
}

func noDelay() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
}

// setupGeminiClient points a GeminiClient at handler and returns it with a
// log observer.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	core, logs := observer.New(zap.DebugLevel)
	client, err := NewGeminiClient(context.Background(), testLLMConfig(), "gemini-test-pro", zap.New(core),
		WithBaseURL(srv.URL+"/"),
		WithHTTPClient(srv.Client()),
		WithBackoff(noDelay),
	)
	require.NoError(t, err)
	return client, logs
}

func TestNewGeminiClient_Validation(t *testing.T) {
	cfg := testLLMConfig()
	cfg.APIKey = ""
	_, err := NewGeminiClient(context.Background(), cfg, "m", zap.NewNop())
	assert.ErrorContains(t, err, "API key is required")

	_, err = NewGeminiClient(context.Background(), testLLMConfig(), "", zap.NewNop())
	assert.ErrorContains(t, err, "model name is required")
}

func TestGeminiClient_Generate_Success(t *testing.T) {
	var body map[string]any
	client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-test-pro:generateContent"), r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, jsoniter.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	})

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "You are a security reviewer.",
		UserPrompt:   "How do I fix SQL injection?",
		Options:      schemas.GenerationOptions{Temperature: 0.7},
	})
	require.NoError(t, err)
	assert.Equal(t, "use parameterized queries", out)

	assert.Contains(t, body, "systemInstruction")
	gen, ok := body["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.7, gen["temperature"], 0.001)
	assert.EqualValues(t, 1024, gen["maxOutputTokens"])

	entries := logs.FilterMessage("LLM generation complete").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 16, entries[0].ContextMap()["total_tokens"])
}

func TestGeminiClient_Generate_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	client, logs := setupGeminiClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		_, _ = w.Write([]byte(okResponse))
	})

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "use parameterized queries", out)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
	assert.NotZero(t, logs.FilterMessage("Transient LLM error, retrying").Len())
}

func TestGeminiClient_Generate_PermanentError(t *testing.T) {
	var calls atomic.Int32
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiClient_Generate_SafetyBlock(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"SAFETY"}]}`))
	})

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	assert.ErrorContains(t, err, "blocked")
}

func TestGeminiClient_Generate_EmptyPrompt(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})
	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "  "})
	assert.True(t, errors.Is(err, schemas.ErrMalformedInput))
}

func TestGeminiClient_GenerationConfig(t *testing.T) {
	client, _ := setupGeminiClient(t, func(http.ResponseWriter, *http.Request) {})

	gc := client.generationConfig(schemas.GenerationRequest{})
	require.NotNil(t, gc.Temperature)
	assert.InDelta(t, 0.2, *gc.Temperature, 0.0001)
	assert.Nil(t, gc.TopP)
	require.NotNil(t, gc.TopK)
	assert.Equal(t, float32(40), *gc.TopK)
	assert.Nil(t, gc.SystemInstruction)

	gc = client.generationConfig(schemas.GenerationRequest{
		SystemPrompt: "sys",
		Options:      schemas.GenerationOptions{Temperature: 0.9, TopP: 0.5, TopK: 8},
	})
	assert.InDelta(t, 0.9, *gc.Temperature, 0.0001)
	assert.InDelta(t, 0.5, *gc.TopP, 0.0001)
	assert.Equal(t, float32(8), *gc.TopK)
	require.NotNil(t, gc.SystemInstruction)
	assert.Equal(t, "sys", gc.SystemInstruction.Parts[0].Text)
}

func TestNewClient_Factory(t *testing.T) {
	router, err := NewClient(context.Background(), testLLMConfig(), zap.NewNop())
	require.NoError(t, err)
	r, ok := router.(*LLMRouter)
	require.True(t, ok)

	fast := r.clients[schemas.TierFast].(*GeminiClient)
	powerful := r.clients[schemas.TierPowerful].(*GeminiClient)
	assert.Equal(t, "gemini-test-flash", fast.model)
	assert.Equal(t, "gemini-test-pro", powerful.model)

	cfg := testLLMConfig()
	cfg.FastModel = ""
	router, err = NewClient(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "gemini-test-pro", router.(*LLMRouter).clients[schemas.TierFast].(*GeminiClient).model)

	cfg.Provider = "openai"
	_, err = NewClient(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported LLM provider")
}
