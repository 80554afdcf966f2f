package council

import (
	"context"
	"fmt"

	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/llm/tokenizer"
	"go.uber.org/zap"
)

// AggregatorConfig 裁决者配置
type AggregatorConfig struct {
	// JudgePrompt 裁决者指令，为空时使用 JudgePrompt
	JudgePrompt string
	// MaxOpinionTokens 每条意见写入裁决消息前的 token 上限，<=0 不限制
	MaxOpinionTokens int
	// Tokenizer 用于计数与截断；nil 时使用估算器
	Tokenizer tokenizer.Tokenizer
}

// Aggregator 裁决者：把提示词与专家意见综合为裁决。
type Aggregator struct {
	gen       llm.Generator
	judge     string
	maxTokens int
	budget    *tokenizer.Budget
	logger    *zap.Logger
}

// NewAggregator 创建裁决者。
func NewAggregator(gen llm.Generator, cfg AggregatorConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "aggregator"))
	judge := cfg.JudgePrompt
	if judge == "" {
		judge = JudgePrompt
	}
	return &Aggregator{
		gen:       gen,
		judge:     judge,
		maxTokens: cfg.MaxOpinionTokens,
		budget:    tokenizer.NewBudget(cfg.Tokenizer, logger),
		logger:    logger,
	}
}

// Decide 广播协议：一次调用给出裁决。错误只来自生成调用。
func (a *Aggregator) Decide(ctx context.Context, req DeliberationRequest, mode Mode) (Verdict, error) {
	instruction := binaryInstruction
	if mode == ModeScored {
		instruction = binaryInstruction + " " + scoredInstruction
	}

	conv := llm.NewConversation("")
	msg := judgeMessage(a.judge, instruction, req.Prompt(), a.transcript(req))
	text, err := a.gen.Generate(ctx, conv, msg)
	if err != nil {
		return Verdict{}, fmt.Errorf("aggregator: %w", err)
	}
	return toVerdict(text, mode), nil
}

// Open 自适应协议第一阶段：只呈上提示词与可咨询的专家列表。
func (a *Aggregator) Open(ctx context.Context, prompt string, available []ReviewerProfile) (*Consultation, error) {
	conv := llm.NewConversation("")
	text, err := a.gen.Generate(ctx, conv, openingMessage(a.judge, adaptiveInstruction(available), prompt))
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}
	reqs, requested := ParseExpertRequests(text)
	return &Consultation{
		agg:       a,
		conv:      conv,
		opening:   text,
		requests:  reqs,
		requested: requested,
	}, nil
}

// transcript 渲染意见，超出预算的正文被截断。
func (a *Aggregator) transcript(req DeliberationRequest) string {
	if a.maxTokens <= 0 {
		return req.Transcript(nil)
	}
	return req.Transcript(func(body string) string {
		out, truncated := a.budget.Fit(body, a.maxTokens)
		if truncated {
			a.logger.Debug("意见超出 token 预算，已截断", zap.Int("max_tokens", a.maxTokens))
		}
		return out
	})
}

// Consultation 自适应协议中一次打开的裁决对话。
type Consultation struct {
	agg       *Aggregator
	conv      *llm.Conversation
	opening   string
	requests  []ExpertRequest
	requested bool
}

// Requested 裁决者是否请求了专家意见。
func (c *Consultation) Requested() bool { return c.requested }

// Requests 返回裁决者请求的专家（未经注册表过滤）。
func (c *Consultation) Requests() []ExpertRequest {
	out := make([]ExpertRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Verdict 未请求专家时，第一条回复即最终裁决。
func (c *Consultation) Verdict() Verdict {
	return toVerdict(c.opening, ModeAdaptive)
}

// Decide 在同一对话中呈上专家意见并取得最终裁决。
func (c *Consultation) Decide(ctx context.Context, req DeliberationRequest) (Verdict, error) {
	text, err := c.agg.gen.Generate(ctx, c.conv, followUpMessage(c.agg.transcript(req)))
	if err != nil {
		return Verdict{}, fmt.Errorf("aggregator follow-up: %w", err)
	}
	return toVerdict(text, ModeAdaptive), nil
}

func toVerdict(text string, mode Mode) Verdict {
	pv := ParseVerdict(text, mode)
	return Verdict{
		Mode:         mode,
		Admitted:     pv.Admitted,
		ExplicitDeny: pv.Denied,
		RiskScore:    pv.RiskScore,
		Confidence:   pv.Confidence,
		Rationale:    text,
	}
}
