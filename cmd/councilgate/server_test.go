package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/councilgate/config"
	"github.com/BaSui01/councilgate/council"
	"github.com/BaSui01/councilgate/internal/jsonx"
	"github.com/BaSui01/councilgate/internal/metrics"
	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/testutil/fixtures"
	"github.com/BaSui01/councilgate/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedCompletion 按消息内容扮演专家、裁决者与后端模型
func scriptedCompletion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	last := req.Messages[len(req.Messages)-1].Content
	switch {
	case strings.Contains(last, "Leader of the Prompt Legality Council"):
		if strings.Contains(last, "admin password") {
			return fixtures.SimpleResponse(fixtures.JudgeDeny), nil
		}
		return fixtures.SimpleResponse(fixtures.JudgePermit), nil
	case strings.Contains(last, "Analyze this prompt"):
		return fixtures.SimpleResponse(fixtures.AllowOpinion), nil
	default:
		return fixtures.SimpleResponse("backend: " + last), nil
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *mocks.MockProvider) {
	t.Helper()
	logger := zap.NewNop()

	cfg := config.DefaultConfig()
	cfg.Server.APIKeys = []string{"test-key"}
	cfg.Council.Reviewers = []config.ReviewerConfig{{ID: "lawyer", Weight: 1}, {ID: "ethicist", Weight: 1}}

	mp := mocks.NewMockProvider().WithCompletionFunc(scriptedCompletion)
	provider := llm.NewResilientProvider(mp, &llm.ResilientConfig{}, nil, logger)
	gen := llm.NewProviderGenerator(provider, llm.GenerateOptions{}, logger)
	panel, err := council.NewPanel(council.PanelConfig{Mode: council.ModeBinary},
		council.NewRegistry(cfg.Council.Profiles()...), gen,
		council.NewAggregator(gen, council.AggregatorConfig{}, logger), logger)
	require.NoError(t, err)

	s := NewServer(cfg, logger, nil)
	s.metricsCollector = metrics.NewCollector("srvtest", logger)
	s.stack = &councilStack{provider: provider, generator: gen, panel: panel}
	s.initHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	handler, err := s.buildHandler(ctx)
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts, mp
}

func TestServer_EndToEnd(t *testing.T) {
	ts, mp := newTestServer(t)

	do := func(method, path, body string, withKey bool) *http.Response {
		req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
		require.NoError(t, err)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if withKey {
			req.Header.Set("X-API-Key", "test-key")
		}
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("health is public", func(t *testing.T) {
		resp := do(http.MethodGet, "/healthz", "", false)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("ready runs provider check", func(t *testing.T) {
		resp := do(http.MethodGet, "/readyz", "", false)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("api requires key", func(t *testing.T) {
		resp := do(http.MethodPost, "/api/v1/evaluate", `{"prompt":"hi"}`, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("evaluate", func(t *testing.T) {
		resp := do(http.MethodPost, "/api/v1/evaluate", `{"prompt":"`+fixtures.BenignPrompt+`"}`, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Success   bool   `json:"success"`
			RequestID string `json:"request_id"`
			Data      struct {
				Allowed  bool `json:"allowed"`
				Opinions []struct {
					ReviewerID string `json:"reviewer_id"`
				} `json:"opinions"`
			} `json:"data"`
		}
		require.NoError(t, jsonx.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Success)
		assert.Equal(t, resp.Header.Get("X-Request-ID"), body.RequestID)
		assert.True(t, body.Data.Allowed)
		assert.Len(t, body.Data.Opinions, 2)
	})

	t.Run("chat denied never reaches backend", func(t *testing.T) {
		before := mp.CallCount()
		resp := do(http.MethodPost, "/api/v1/chat", `{"prompt":"`+fixtures.JailbreakPrompt+`"}`, true)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		// 两位专家 + 一次裁决
		assert.Equal(t, before+3, mp.CallCount())
	})

	t.Run("chat allowed", func(t *testing.T) {
		resp := do(http.MethodPost, "/api/v1/chat", `{"prompt":"hello there"}`, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data struct {
				Response string `json:"response"`
				Status   string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, jsonx.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "backend: hello there", body.Data.Response)
		assert.Equal(t, "success", body.Data.Status)

		last := mp.LastRequest()
		require.NotNil(t, last)
		assert.InDelta(t, 0.7, last.Temperature, 1e-6)
		assert.Equal(t, 1000, last.MaxTokens)
	})

	t.Run("council info", func(t *testing.T) {
		resp := do(http.MethodGet, "/api/v1/council", "", true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("method mismatch", func(t *testing.T) {
		resp := do(http.MethodGet, "/api/v1/evaluate", "", true)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestServer_BuildHandlerRejectsBadJWTKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.JWT = config.JWTConfig{PublicKey: "-----BEGIN PUBLIC KEY-----\nnot a key\n-----END PUBLIC KEY-----"}

	s := NewServer(cfg, zap.NewNop(), nil)
	_, err := s.buildHandler(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse jwt public key")
}
