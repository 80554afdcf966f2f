package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/councilgate/api"
	"github.com/BaSui01/councilgate/internal/jsonx"
	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// decodeEnvelope 解码统一响应信封
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, jsonx.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// =============================================================================
// 🧪 响应信封
// =============================================================================

func TestWriteSuccessWithRequest(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/council", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-42"))

	WriteSuccessWithRequest(w, r, api.CouncilInfo{Mode: "binary", RiskThreshold: 0.7})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_CouncilAndUpstreamCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
		retryable  bool
	}{
		{"council denial", types.NewError(types.ErrForbidden, "rejected by council"), http.StatusForbidden, false},
		{"missing api key", types.NewError(types.ErrUnauthorized, "invalid or missing API key"), http.StatusUnauthorized, false},
		{"per-ip limit", types.NewError(types.ErrRateLimited, "too many requests"), http.StatusTooManyRequests, false},
		{"judge timed out", types.NewError(types.ErrUpstreamTimeout, "upstream call timed out").WithRetryable(true), http.StatusGatewayTimeout, true},
		{"breaker open", types.NewError(types.ErrProviderUnavailable, "circuit open"), http.StatusServiceUnavailable, false},
		{"explicit status", types.NewError(types.ErrUpstreamError, "bad gateway").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestWriteErrorMessage_SameEnvelopeAsWriteError(t *testing.T) {
	viaMessage := httptest.NewRecorder()
	WriteErrorMessage(viaMessage, http.StatusUnauthorized, types.ErrUnauthorized, "invalid or expired token", nil)

	viaError := httptest.NewRecorder()
	WriteError(viaError, types.NewError(types.ErrUnauthorized, "invalid or expired token"), nil)

	assert.Equal(t, viaError.Code, viaMessage.Code)
	a, b := decodeEnvelope(t, viaMessage), decodeEnvelope(t, viaError)
	assert.Equal(t, *b.Error, *a.Error)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	want := map[types.ErrorCode]int{
		types.ErrInvalidRequest:      http.StatusBadRequest,
		types.ErrUnauthorized:        http.StatusUnauthorized,
		types.ErrForbidden:           http.StatusForbidden,
		types.ErrRateLimited:         http.StatusTooManyRequests,
		types.ErrUpstreamTimeout:     http.StatusGatewayTimeout,
		types.ErrUpstreamError:       http.StatusBadGateway,
		types.ErrServiceUnavailable:  http.StatusServiceUnavailable,
		types.ErrProviderUnavailable: http.StatusServiceUnavailable,
		types.ErrInternalError:       http.StatusInternalServerError,
		"SOMETHING_NEW":              http.StatusInternalServerError,
	}
	for code, status := range want {
		assert.Equal(t, status, mapErrorCodeToHTTPStatus(code), code)
	}
}

// =============================================================================
// 🧪 后端错误映射
// =============================================================================

func TestUpstreamError(t *testing.T) {
	wrap := func(err error) error { return &llm.GenerationError{Provider: "gemini", Err: err} }

	tests := []struct {
		name      string
		err       error
		wantCode  types.ErrorCode
		wantHTTP  int
		retryable bool
	}{
		{"caller went away", wrap(context.Canceled), types.ErrServiceUnavailable, http.StatusServiceUnavailable, false},
		{"deadline", wrap(context.DeadlineExceeded), types.ErrUpstreamTimeout, http.StatusGatewayTimeout, true},
		{"llm timeout", wrap(&llm.Error{Code: llm.ErrUpstreamTimeout, Message: "slow", Retryable: true}), types.ErrUpstreamTimeout, http.StatusGatewayTimeout, true},
		{"overloaded", wrap(&llm.Error{Code: llm.ErrModelOverloaded, Message: "busy", Retryable: true}), types.ErrProviderUnavailable, http.StatusServiceUnavailable, true},
		{"quota", wrap(&llm.Error{Code: llm.ErrQuotaExceeded, Message: "quota"}), types.ErrRateLimited, http.StatusTooManyRequests, false},
		{"no choices", wrap(llm.ErrNoChoices), types.ErrUpstreamError, http.StatusBadGateway, false},
		{"unknown", wrap(fmt.Errorf("tls handshake")), types.ErrUpstreamError, http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := UpstreamError(tt.err)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.retryable, apiErr.Retryable)
			assert.ErrorIs(t, apiErr.Cause, tt.err)

			w := httptest.NewRecorder()
			WriteError(w, apiErr, nil)
			assert.Equal(t, tt.wantHTTP, w.Code)
		})
	}
}

// =============================================================================
// 🧪 请求解码与校验
// =============================================================================

func TestDecodeJSONBody_EvaluateRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"prompt with history", `{"prompt":"hi","history":[{"role":"user","content":"earlier"}]}`, false},
		{"trailing comma", `{"prompt":"hi",}`, true},
		{"unknown field", `{"prompt":"hi","mode":"adaptive"}`, true},
		{"oversized", `{"prompt":"` + strings.Repeat("x", maxBodyBytes+1) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader(tt.body))

			var req api.EvaluateRequest
			err := DecodeJSONBody(w, r, &req, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.Equal(t, string(types.ErrInvalidRequest), decodeEnvelope(t, w).Error.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "hi", req.Prompt)
			require.Len(t, req.History, 1)
			assert.Equal(t, "earlier", req.History[0].Content)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	for contentType, want := range map[string]bool{
		"application/json":                true,
		"application/json; charset=UTF-8": true,
		"text/plain":                      false,
		"":                                false,
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
		r.Header.Set("Content-Type", contentType)

		assert.Equal(t, want, ValidateContentType(w, r, nil), contentType)
		if !want {
			assert.Equal(t, http.StatusBadRequest, w.Code)
		}
	}
}

func TestValidateRequest(t *testing.T) {
	hot := 3.0
	zero := 0

	tests := []struct {
		name    string
		req     any
		wantMsg string
	}{
		{"empty prompt", &api.EvaluateRequest{}, "EvaluateRequest.Prompt: failed 'required'"},
		{"bad history role", &api.EvaluateRequest{Prompt: "hi", History: []api.Message{{Role: "tool", Content: "x"}}}, "EvaluateRequest.History[0].Role: failed 'oneof'"},
		{"temperature too high", &api.ChatRequest{Prompt: "hi", Temperature: &hot}, "ChatRequest.Temperature: failed 'lte' (2)"},
		{"zero max tokens", &api.ChatRequest{Prompt: "hi", MaxTokens: &zero}, "ChatRequest.MaxTokens: failed 'gt' (0)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			assert.False(t, ValidateRequest(w, tt.req, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decodeEnvelope(t, w).Error.Message, tt.wantMsg)
		})
	}

	w := httptest.NewRecorder()
	assert.True(t, ValidateRequest(w, &api.ChatRequest{Prompt: "hi"}, nil))
}
