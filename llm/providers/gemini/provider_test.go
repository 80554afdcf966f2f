package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/BaSui01/councilgate/internal/jsonx"
	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGeminiProvider(providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  "test-key",
			BaseURL: srv.URL,
			Model:   "gemini-test",
		},
	}, zap.NewNop())
}

func TestGeminiProvider_Name(t *testing.T) {
	provider := NewGeminiProvider(providers.GeminiConfig{}, zap.NewNop())
	assert.Equal(t, "gemini", provider.Name())
	assert.Equal(t, defaultBaseURL, provider.cfg.BaseURL)
}

func TestGeminiProvider_Completion(t *testing.T) {
	var captured geminiRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, jsonx.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"role":"model","parts":[{"text":"Not "},{"text":"Permitted"}]},"finishReason":"STOP","index":0}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":3,"totalTokenCount":15},
			"responseId":"r-1"
		}`))
	})

	resp, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "judge"},
			{Role: llm.RoleUser, Content: "q1"},
			{Role: llm.RoleAssistant, Content: "a1"},
			{Role: llm.RoleUser, Content: "q2"},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	require.NoError(t, err)

	text, ok := resp.FirstContent()
	require.True(t, ok)
	assert.Equal(t, "Not Permitted", text)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "r-1", resp.ID)

	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "judge", captured.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "model", captured.Contents[1].Role)
	require.NotNil(t, captured.GenerationConfig)
	assert.Equal(t, 1000, captured.GenerationConfig.MaxOutputTokens)
}

func TestGeminiProvider_CompletionErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   llm.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`, llm.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Resource exhausted"}}`, llm.ErrRateLimited},
		{"unavailable", http.StatusServiceUnavailable, `overloaded`, llm.ErrUpstreamError},
		{"blocked", http.StatusOK, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`, llm.ErrForbidden},
		{"malformed", http.StatusOK, `{not json`, llm.ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := provider.Completion(context.Background(), &llm.ChatRequest{
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			})
			var le *llm.Error
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.code, le.Code)
			assert.Equal(t, "gemini", le.Provider)
		})
	}
}

func TestGeminiProvider_RejectsEmptyContents(t *testing.T) {
	provider := newTestProvider(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("should not call upstream")
	})

	_, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: "only system"}},
	})
	var le *llm.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, llm.ErrInvalidRequest, le.Code)
}

func TestGeminiProvider_HealthCheck(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	})

	status, err := provider.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	failing := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	status, err = failing.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.False(t, status.Healthy)
}

func TestGeminiProvider_Integration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	provider := NewGeminiProvider(providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  apiKey,
			Timeout: 30 * time.Second,
		},
	}, zap.NewNop())

	resp, err := provider.Completion(context.Background(), &llm.ChatRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Say 'test' only"}},
		MaxTokens:   10,
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Choices)
}
