package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/testutil"
	"github.com/BaSui01/councilgate/testutil/fixtures"
	"github.com/BaSui01/councilgate/testutil/mocks"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const judgeKey = "Leader of the Prompt Legality Council"

func newTestPanel(t *testing.T, mode Mode, gen llm.Generator, profiles []ReviewerProfile, opts ...PanelOption) *Panel {
	t.Helper()
	reg := NewRegistry(profiles...)
	p, err := NewPanel(PanelConfig{Mode: mode}, reg, gen, NewAggregator(gen, AggregatorConfig{}, zap.NewNop()), zap.NewNop(), opts...)
	require.NoError(t, err)
	return p
}

func profilesByID(ids ...string) []ReviewerProfile {
	all := NewRegistry(DefaultProfiles()...)
	out := make([]ReviewerProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := all.Get(id); ok {
			out = append(out, p)
		}
	}
	return out
}

type recordingRecorder struct {
	mu            sync.Mutex
	deliberations []string
	opinions      map[string]bool
	consulted     []int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{opinions: map[string]bool{}}
}

func (r *recordingRecorder) ObserveDeliberation(mode, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliberations = append(r.deliberations, mode+":"+outcome)
}

func (r *recordingRecorder) ObserveOpinion(reviewer string, ok bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opinions[reviewer] = ok
}

func (r *recordingRecorder) ObserveConsultation(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consulted = append(r.consulted, n)
}

// =============================================================================
// Broadcast
// =============================================================================

func TestPanel_BroadcastJailbreakDenied(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(judgeKey, fixtures.JudgeDeny).
		WithFallback(fixtures.DenyOpinion)
	p := newTestPanel(t, ModeBinary, gen, profilesByID("lawyer", "ethicist", "cybersecurity_expert"))

	v := p.Evaluate(testutil.TestContext(t), fixtures.JailbreakPrompt, nil)

	assert.False(t, v.Admitted)
	assert.False(t, v.Failed)
	assert.InDelta(t, 0.9, v.Confidence, 1e-9)
	assert.Empty(t, v.ConsultedReviewers)
	require.Len(t, v.Opinions, 3)
	for _, op := range v.Opinions {
		assert.True(t, op.Succeeded)
		assert.Equal(t, fixtures.DenyOpinion, op.Body)
	}
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, ModeBinary, v.Mode)
	assert.Equal(t, fixtures.JudgeDeny, v.Rationale)
}

func TestPanel_BroadcastTranscriptReachesJudge(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(judgeKey, fixtures.JudgePermit).
		WithReply("You are a lawyer", "lawyer says fine").
		WithReply("You are a scientist", "scientist says fine")
	p := newTestPanel(t, ModeBinary, gen, profilesByID("lawyer", "scientist"))

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)
	assert.True(t, v.Admitted)

	var judgeMsg string
	for _, c := range gen.Calls() {
		if strings.Contains(c.Message, judgeKey) {
			judgeMsg = c.Message
		}
	}
	testutil.AssertContainsAll(t, judgeMsg,
		"Original prompt: "+fixtures.BenignPrompt,
		"Evaluation from lawyer (weight: 1.0):\nlawyer says fine",
		"Evaluation from scientist (weight: 0.9):\nscientist says fine",
		"Please provide your final verdict.",
	)
	assert.Less(t, strings.Index(judgeMsg, "from lawyer"), strings.Index(judgeMsg, "from scientist"))
}

func TestPanel_SingleReviewerFailureIsDegraded(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(judgeKey, fixtures.JudgePermit).
		WithFailure("You are a scientist", errors.New("upstream timeout")).
		WithFallback(fixtures.AllowOpinion)
	rec := newRecordingRecorder()
	p := newTestPanel(t, ModeBinary, gen, profilesByID("lawyer", "scientist", "ethicist"), WithRecorder(rec))

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	require.Len(t, v.Opinions, 3)
	failed := v.Opinions[1]
	assert.Equal(t, "scientist", failed.ReviewerID)
	assert.False(t, failed.Succeeded)
	assert.Equal(t, FailedOpinionBody, failed.Body)
	assert.Equal(t, 0.9, failed.Weight)
	assert.True(t, v.Opinions[0].Succeeded)
	assert.True(t, v.Opinions[2].Succeeded)
	assert.True(t, v.Admitted)

	assert.Equal(t, map[string]bool{"lawyer": true, "scientist": false, "ethicist": true}, rec.opinions)
	assert.Equal(t, []string{"binary:admitted"}, rec.deliberations)
}

func TestPanel_EmptyRegistryStillAggregates(t *testing.T) {
	gen := mocks.NewMockGenerator().WithReply(judgeKey, fixtures.JudgeDeny)
	p := newTestPanel(t, ModeBinary, gen, nil)

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	assert.False(t, v.Admitted)
	assert.False(t, v.Failed)
	assert.Empty(t, v.Opinions)
	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Message, "Expert evaluations:\n\n\nPlease provide your final verdict.")
}

func TestPanel_ScoredMode(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(judgeKey, fixtures.JudgeScored).
		WithFallback(fixtures.AllowOpinion)
	p := newTestPanel(t, ModeScored, gen, profilesByID("lawyer"))

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	require.NotNil(t, v.RiskScore)
	assert.InDelta(t, 0.35, *v.RiskScore, 1e-9)
	assert.True(t, v.Allowed(0.7))
	assert.False(t, v.Allowed(0.3))
	assert.Contains(t, gen.Calls()[1].Message, "Risk Score: <number>")
}

func TestPanel_AggregatorFailureFailsClosed(t *testing.T) {
	for _, mode := range Modes() {
		t.Run(string(mode), func(t *testing.T) {
			gen := mocks.NewMockGenerator().
				WithFailure(judgeKey, errors.New("quota exhausted")).
				WithFallback(fixtures.AllowOpinion)
			rec := newRecordingRecorder()
			p := newTestPanel(t, mode, gen, profilesByID("lawyer"), WithRecorder(rec))

			v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

			assert.False(t, v.Admitted)
			assert.True(t, v.Failed)
			assert.False(t, v.Allowed(0.7))
			assert.Contains(t, v.Rationale, "deliberation failed")
			assert.Contains(t, v.Rationale, "quota exhausted")
			assert.NotEmpty(t, v.ID)
			assert.Equal(t, []string{string(mode) + ":failed"}, rec.deliberations)
		})
	}
}

func TestPanel_CallerCancellationDoesNotAbortRound(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(judgeKey, fixtures.JudgePermit).
		WithFallback(fixtures.AllowOpinion)
	p := newTestPanel(t, ModeBinary, gen, profilesByID("lawyer", "ethicist"))

	v := p.Evaluate(testutil.CancelledContext(), fixtures.BenignPrompt, nil)

	require.Len(t, v.Opinions, 2)
	for _, op := range v.Opinions {
		assert.True(t, op.Succeeded)
	}
	// 裁决者仍受调用方取消约束
	assert.True(t, v.Failed)
	assert.False(t, v.Admitted)
}

func TestPanel_MaxConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	gen := llm.GeneratorFunc(func(ctx context.Context, conv *llm.Conversation, message string) (string, error) {
		if strings.Contains(message, judgeKey) {
			return fixtures.JudgePermit, nil
		}
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return fixtures.AllowOpinion, nil
	})

	reg := NewRegistry(DefaultProfiles()...)
	p, err := NewPanel(PanelConfig{Mode: ModeBinary, MaxConcurrency: 2}, reg, gen, nil, nil)
	require.NoError(t, err)

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)
	assert.Len(t, v.Opinions, 7)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPanel_HistoryReachesReviewers(t *testing.T) {
	var mu sync.Mutex
	var turns []int
	gen := llm.GeneratorFunc(func(ctx context.Context, conv *llm.Conversation, message string) (string, error) {
		if strings.Contains(message, judgeKey) {
			return fixtures.JudgePermit, nil
		}
		mu.Lock()
		turns = append(turns, conv.Len())
		mu.Unlock()
		return fixtures.AllowOpinion, nil
	})
	p := newTestPanel(t, ModeBinary, gen, profilesByID("lawyer", "ethicist"))

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}
	p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, history)
	assert.Equal(t, []int{2, 2}, turns)
}

func TestNewPanel_Validation(t *testing.T) {
	gen := mocks.NewMockGenerator()

	_, err := NewPanel(PanelConfig{Mode: "majority"}, nil, gen, nil, nil)
	assert.Error(t, err)

	_, err = NewPanel(PanelConfig{Mode: ModeBinary}, nil, nil, nil, nil)
	assert.Error(t, err)

	p, err := NewPanel(PanelConfig{Mode: ModeAdaptive}, nil, gen, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeAdaptive, p.Mode())
	assert.Equal(t, 0, p.Registry().Len())
}

// =============================================================================
// Adaptive
// =============================================================================

const followUpKey = "Expert evaluations:"

func TestPanel_AdaptiveConsultsOnlyRegisteredReviewers(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(followUpKey, fixtures.JudgePermit).
		WithReply(judgeKey, "NEED_EXPERT_INPUT: lawyer for X, cybersecurity_expert for Y").
		WithReply("You are a lawyer", fixtures.AllowOpinion)
	rec := newRecordingRecorder()
	p := newTestPanel(t, ModeAdaptive, gen, profilesByID("lawyer"), WithRecorder(rec))

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	assert.True(t, v.Admitted)
	assert.Equal(t, []string{"lawyer"}, v.ConsultedReviewers)
	require.Len(t, v.Opinions, 1)
	assert.Equal(t, "lawyer", v.Opinions[0].ReviewerID)
	assert.Equal(t, 1, gen.CallsMatching("You are a lawyer"))
	assert.Equal(t, 0, gen.CallsMatching("You are a cybersecurity expert"))
	assert.Equal(t, []int{1}, rec.consulted)

	// 第二次裁决在同一对话中进行
	for _, c := range gen.Calls() {
		if strings.HasPrefix(c.Message, followUpKey) {
			assert.Equal(t, 2, c.Turn)
			assert.Contains(t, c.Message, "Evaluation from lawyer (weight: 1.0):\n"+fixtures.AllowOpinion)
		}
	}
}

func TestPanel_AdaptiveRequestOnFollowingLine(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(followUpKey, fixtures.JudgePermit).
		WithReply(judgeKey, "I want a legal view first.\nNEED_EXPERT_INPUT:\nlawyer for legal exposure").
		WithReply("You are a lawyer", fixtures.AllowOpinion)
	p := newTestPanel(t, ModeAdaptive, gen, profilesByID("lawyer", "ethicist"))

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	assert.True(t, v.Admitted)
	assert.Equal(t, []string{"lawyer"}, v.ConsultedReviewers)
	require.Len(t, v.Opinions, 1)
	assert.True(t, v.Opinions[0].Succeeded)
	assert.Equal(t, 1, gen.CallsMatching("You are a lawyer"))
	assert.Equal(t, 1, gen.CallsMatching(followUpKey))
}

func TestPanel_AdaptiveWithoutMarkerDecidesAlone(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(judgeKey, "Permitted. A plain factual question.").
		WithFallback(fixtures.DenyOpinion)
	p := newTestPanel(t, ModeAdaptive, gen, DefaultProfiles())

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	assert.True(t, v.Admitted)
	assert.NotNil(t, v.ConsultedReviewers)
	assert.Empty(t, v.ConsultedReviewers)
	assert.Empty(t, v.Opinions)
	assert.Len(t, gen.Calls(), 1)
	testutil.AssertContainsAll(t, gen.Calls()[0].Message, ExpertRequestMarker, "- lawyer (weight: 1.0)", "- scientist (weight: 0.9)")
}

func TestPanel_AdaptiveUnknownIDsReinvokeWithEmptyTranscript(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(followUpKey, fixtures.JudgeDeny).
		WithReply(judgeKey, "NEED_EXPERT_INPUT: astronaut for orbital mechanics")
	p := newTestPanel(t, ModeAdaptive, gen, profilesByID("lawyer"))

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	assert.False(t, v.Admitted)
	assert.False(t, v.Failed)
	assert.Empty(t, v.ConsultedReviewers)
	assert.Empty(t, v.Opinions)
	assert.Equal(t, 1, gen.CallsMatching(followUpKey))
	assert.Equal(t, 0, gen.CallsMatching("You are a lawyer"))
}

func TestPanel_AdaptiveAtMostOneRound(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithReply(followUpKey, "NEED_EXPERT_INPUT: ethicist for more context").
		WithReply(judgeKey, "NEED_EXPERT_INPUT: lawyer for contract law").
		WithFallback(fixtures.AllowOpinion)
	p := newTestPanel(t, ModeAdaptive, gen, profilesByID("lawyer", "ethicist"))

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	assert.False(t, v.Admitted)
	assert.InDelta(t, 0.5, v.Confidence, 1e-9)
	assert.Equal(t, []string{"lawyer"}, v.ConsultedReviewers)
	assert.Equal(t, 0, gen.CallsMatching("You are an ethicist"))
	assert.Len(t, gen.Calls(), 3)
}

func TestPanel_AdaptiveFollowUpFailureKeepsConsulted(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithFailure(followUpKey, errors.New("model overloaded")).
		WithReply(judgeKey, fixtures.JudgeNeedLawyer).
		WithFallback(fixtures.AllowOpinion)
	p := newTestPanel(t, ModeAdaptive, gen, DefaultProfiles())

	v := p.Evaluate(testutil.TestContext(t), fixtures.BenignPrompt, nil)

	assert.True(t, v.Failed)
	assert.False(t, v.Admitted)
	assert.Equal(t, []string{"lawyer", "cybersecurity_expert"}, v.ConsultedReviewers)
	assert.Len(t, v.Opinions, 2)
	assert.Contains(t, v.Rationale, "model overloaded")
}

func TestPanel_ConsecutiveDeliberationsAreIndependent(t *testing.T) {
	gen := mocks.NewMockGenerator().
		WithSequence(judgeKey, "Final Verdict: Permitted", "Final Verdict: Not Permitted").
		WithFallback(fixtures.AllowOpinion)
	p := newTestPanel(t, ModeBinary, gen, profilesByID("lawyer", "scientist"))
	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)

	first := p.Evaluate(ctx, fixtures.BenignPrompt, nil)
	second := p.Evaluate(ctx, fixtures.BenignPrompt, nil)

	assert.True(t, first.Admitted)
	assert.False(t, second.Admitted)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, second.Opinions, 2)
	assert.Equal(t, 2, gen.CallsMatching(judgeKey))
}

// =============================================================================
// Properties
// =============================================================================

func TestProperty_BroadcastInvokesEveryReviewerOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("each reviewer is invoked exactly once and the transcript keeps registration order", prop.ForAll(
		func(n int, failMask uint16) bool {
			mg := mocks.NewMockGenerator().WithReply(judgeKey, fixtures.JudgeDeny)
			profiles := make([]ReviewerProfile, n)
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("r%d", i)
				profiles[i] = ReviewerProfile{ID: id, Weight: 1, FramingText: "<" + id + ">"}
				if failMask&(1<<i) != 0 {
					mg.WithFailure("<"+id+">", errors.New("boom"))
				} else {
					mg.WithReply("<"+id+">", "opinion of "+id)
				}
			}
			reg := NewRegistry(profiles...)
			p, err := NewPanel(PanelConfig{Mode: ModeBinary}, reg, mg, nil, nil)
			if err != nil {
				return false
			}

			v := p.Evaluate(context.Background(), "prompt", nil)
			if len(v.Opinions) != n || v.Failed {
				return false
			}
			for i, op := range v.Opinions {
				id := fmt.Sprintf("r%d", i)
				if op.ReviewerID != id || mg.CallsMatching("<"+id+">") != 1 {
					return false
				}
				if op.Succeeded == (failMask&(1<<i) != 0) {
					return false
				}
			}
			return mg.CallsMatching(judgeKey) == 1
		},
		gen.IntRange(0, 10),
		gen.UInt16(),
	))

	properties.TestingRun(t)
}
