package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/councilgate/council"
	"github.com/BaSui01/councilgate/internal/jsonx"
	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/testutil/fixtures"
	"github.com/BaSui01/councilgate/testutil/mocks"
	"github.com/BaSui01/councilgate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

const judgeKey = "Leader of the Prompt Legality Council"

func newTestPanel(t *testing.T, mode council.Mode, gen llm.Generator, ids ...string) *council.Panel {
	t.Helper()
	all := council.NewRegistry(council.DefaultProfiles()...)
	var profiles []council.ReviewerProfile
	for _, id := range ids {
		if p, ok := all.Get(id); ok {
			profiles = append(profiles, p)
		}
	}
	p, err := council.NewPanel(council.PanelConfig{Mode: mode}, council.NewRegistry(profiles...), gen,
		council.NewAggregator(gen, council.AggregatorConfig{}, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return p
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// decodeData 解出 Response.Data 到 dst
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) Response {
	t.Helper()
	var raw struct {
		Response
		Data jsonx.RawMessage `json:"data"`
	}
	require.NoError(t, jsonx.NewDecoder(w.Body).Decode(&raw))
	if dst != nil && len(raw.Data) > 0 {
		require.NoError(t, jsonx.Unmarshal(raw.Data, dst))
	}
	return raw.Response
}

// =============================================================================
// 🧪 CouncilHandler
// =============================================================================

func TestCouncilHandler_HandleEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		mode         council.Mode
		judge        string
		threshold    float64
		wantAdmitted bool
		wantAllowed  bool
		wantScore    bool
	}{
		{name: "binary deny", mode: council.ModeBinary, judge: fixtures.JudgeDeny, threshold: 0.7},
		{name: "binary permit", mode: council.ModeBinary, judge: fixtures.JudgePermit, threshold: 0.7, wantAdmitted: true, wantAllowed: true},
		{name: "scored under threshold", mode: council.ModeScored, judge: fixtures.JudgeScored, threshold: 0.7, wantAdmitted: true, wantAllowed: true, wantScore: true},
		{name: "scored over threshold", mode: council.ModeScored, judge: fixtures.JudgeScored, threshold: 0.3, wantAdmitted: true, wantScore: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := mocks.NewMockGenerator().
				WithReply(judgeKey, tt.judge).
				WithFallback(fixtures.AllowOpinion)
			h := NewCouncilHandler(newTestPanel(t, tt.mode, gen, "lawyer", "ethicist"), tt.threshold, zap.NewNop())

			w := httptest.NewRecorder()
			r := postJSON("/api/v1/evaluate", `{"prompt":"`+fixtures.BenignPrompt+`"}`)
			r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))
			h.HandleEvaluate(w, r)

			require.Equal(t, http.StatusOK, w.Code)
			var v struct {
				ID                 string   `json:"id"`
				Mode               string   `json:"mode"`
				Admitted           bool     `json:"admitted"`
				Allowed            bool     `json:"allowed"`
				RiskScore          *float64 `json:"risk_score"`
				ConsultedReviewers []string `json:"consulted_reviewers"`
				Opinions           []struct {
					ReviewerID string `json:"reviewer_id"`
				} `json:"opinions"`
			}
			resp := decodeData(t, w, &v)

			assert.True(t, resp.Success)
			assert.Equal(t, "req-1", resp.RequestID)
			assert.NotEmpty(t, v.ID)
			assert.Equal(t, string(tt.mode), v.Mode)
			assert.Equal(t, tt.wantAdmitted, v.Admitted)
			assert.Equal(t, tt.wantAllowed, v.Allowed)
			assert.Equal(t, tt.wantScore, v.RiskScore != nil)
			assert.NotNil(t, v.ConsultedReviewers)
			assert.Len(t, v.Opinions, 2)
		})
	}
}

func TestCouncilHandler_HandleEvaluate_History(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(judgeKey, fixtures.JudgePermit).
		WithFallback(fixtures.AllowOpinion)
	h := NewCouncilHandler(newTestPanel(t, council.ModeBinary, gen, "lawyer"), 0.7, nil)

	body := `{"prompt":"and then?","history":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`
	w := httptest.NewRecorder()
	h.HandleEvaluate(w, postJSON("/api/v1/evaluate", body))

	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range gen.Calls() {
		if strings.Contains(c.Message, "Analyze this prompt") {
			assert.Equal(t, 2, c.Turn, "reviewer sees the replayed history")
		}
	}
}

func TestCouncilHandler_HandleEvaluate_FailClosed(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithFailure(judgeKey, assert.AnError).
		WithFallback(fixtures.AllowOpinion)
	h := NewCouncilHandler(newTestPanel(t, council.ModeBinary, gen, "lawyer"), 0.7, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleEvaluate(w, postJSON("/api/v1/evaluate", `{"prompt":"x"}`))

	require.Equal(t, http.StatusOK, w.Code)
	var v struct {
		Failed  bool `json:"failed"`
		Allowed bool `json:"allowed"`
	}
	decodeData(t, w, &v)
	assert.True(t, v.Failed)
	assert.False(t, v.Allowed)
}

func TestCouncilHandler_HandleEvaluate_BadRequests(t *testing.T) {
	gen := mocks.NewMockGenerator()
	h := NewCouncilHandler(newTestPanel(t, council.ModeBinary, gen, "lawyer"), 0.7, zap.NewNop())

	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{name: "missing prompt", body: `{}`, contentType: "application/json"},
		{name: "unknown field", body: `{"prompt":"x","model":"y"}`, contentType: "application/json"},
		{name: "bad role", body: `{"prompt":"x","history":[{"role":"tool","content":"c"}]}`, contentType: "application/json"},
		{name: "wrong content type", body: `{"prompt":"x"}`, contentType: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			h.HandleEvaluate(w, r)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeData(t, w, nil)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
		})
	}
	assert.Empty(t, gen.Calls(), "no deliberation for rejected input")
}

func TestCouncilHandler_HandleInfo(t *testing.T) {
	gen := mocks.NewMockGenerator()
	h := NewCouncilHandler(newTestPanel(t, council.ModeAdaptive, gen, "lawyer", "scientist"), 0.6, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleInfo(w, httptest.NewRequest(http.MethodGet, "/api/v1/council", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var info struct {
		Mode          string  `json:"mode"`
		RiskThreshold float64 `json:"risk_threshold"`
		Reviewers     []struct {
			ID     string  `json:"id"`
			Weight float64 `json:"weight"`
		} `json:"reviewers"`
	}
	decodeData(t, w, &info)

	assert.Equal(t, "adaptive", info.Mode)
	assert.InDelta(t, 0.6, info.RiskThreshold, 1e-9)
	require.Len(t, info.Reviewers, 2)
	assert.Equal(t, "lawyer", info.Reviewers[0].ID)
	assert.InDelta(t, 0.9, info.Reviewers[1].Weight, 1e-9)
}
