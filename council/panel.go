package council

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/BaSui01/councilgate/council"

// Recorder 接收审议过程中的观测数据，metrics.Collector 实现了该接口。
type Recorder interface {
	ObserveDeliberation(mode, outcome string, d time.Duration)
	ObserveOpinion(reviewer string, succeeded bool, d time.Duration)
	ObserveConsultation(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDeliberation(string, string, time.Duration) {}
func (nopRecorder) ObserveOpinion(string, bool, time.Duration)        {}
func (nopRecorder) ObserveConsultation(int)                            {}

// PanelConfig 审议面板配置
type PanelConfig struct {
	Mode Mode
	// MaxConcurrency 单轮内并发的专家调用上限，<=0 表示不限制
	MaxConcurrency int
}

// PanelOption 面板可选项
type PanelOption func(*Panel)

// WithRecorder 设置观测接收者。
func WithRecorder(r Recorder) PanelOption {
	return func(p *Panel) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithTracerProvider 设置 TracerProvider，默认使用全局 provider。
func WithTracerProvider(tp trace.TracerProvider) PanelOption {
	return func(p *Panel) {
		if tp != nil {
			p.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// Panel 审议编排器。注册表在构造时固定，可被多个请求并发使用。
type Panel struct {
	mode           Mode
	registry       *Registry
	reviewers      map[string]*Reviewer
	aggregator     *Aggregator
	protocol       protocol
	maxConcurrency int
	recorder       Recorder
	tracer         trace.Tracer
	logger         *zap.Logger
}

// NewPanel 创建审议面板。协议由 cfg.Mode 决定。
func NewPanel(cfg PanelConfig, registry *Registry, gen llm.Generator, aggregator *Aggregator, logger *zap.Logger, opts ...PanelOption) (*Panel, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("council: invalid mode %q", cfg.Mode)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if gen == nil {
		return nil, fmt.Errorf("council: generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if aggregator == nil {
		aggregator = NewAggregator(gen, AggregatorConfig{}, logger)
	}

	p := &Panel{
		mode:           cfg.Mode,
		registry:       registry,
		reviewers:      make(map[string]*Reviewer, registry.Len()),
		aggregator:     aggregator,
		protocol:       protocolFor(cfg.Mode),
		maxConcurrency: cfg.MaxConcurrency,
		recorder:       nopRecorder{},
		tracer:         otel.Tracer(instrumentationName),
		logger:         logger.With(zap.String("component", "council")),
	}
	for _, prof := range registry.Profiles() {
		p.reviewers[prof.ID] = NewReviewer(prof, gen, logger)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Mode 返回审议模式。
func (p *Panel) Mode() Mode { return p.mode }

// Registry 返回专家注册表。
func (p *Panel) Registry() *Registry { return p.registry }

// Evaluate 对提示词进行一次审议，从不返回错误。
//
// 裁决者调用失败时返回 Admitted=false、Failed=true 的裁决。
func (p *Panel) Evaluate(ctx context.Context, prompt string, history []llm.Message) Verdict {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "council.evaluate", trace.WithAttributes(
		attribute.String("council.mode", string(p.mode)),
		attribute.Int("council.reviewers", p.registry.Len()),
	))
	defer span.End()

	v, err := p.protocol.run(ctx, p, prompt, history)
	if err != nil {
		p.logger.Error("裁决失败，按拒绝处理",
			zap.String("request_id", requestID(ctx)),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		failed := failClosed(p.mode, err)
		failed.Opinions = v.Opinions
		failed.ConsultedReviewers = v.ConsultedReviewers
		v = failed
	}

	v.ID = uuid.NewString()
	v.Mode = p.mode
	if v.ConsultedReviewers == nil {
		v.ConsultedReviewers = []string{}
	}
	if v.Opinions == nil {
		v.Opinions = []Opinion{}
	}
	v.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("council.verdict_id", v.ID),
		attribute.Bool("council.admitted", v.Admitted),
		attribute.StringSlice("council.consulted", v.ConsultedReviewers),
	)
	p.recorder.ObserveDeliberation(string(p.mode), v.Outcome(), v.Duration)

	fields := []zap.Field{
		zap.String("verdict_id", v.ID),
		zap.String("request_id", requestID(ctx)),
		zap.String("mode", string(p.mode)),
		zap.Bool("admitted", v.Admitted),
		zap.Float64("confidence", v.Confidence),
		zap.Strings("consulted", v.ConsultedReviewers),
		zap.Int("opinions", len(v.Opinions)),
		zap.Duration("duration", v.Duration),
	}
	if v.RiskScore != nil {
		fields = append(fields, zap.Float64("risk_score", *v.RiskScore))
	}
	p.logger.Info("审议完成", fields...)
	return v
}

func requestID(ctx context.Context) string {
	id, _ := types.RequestID(ctx)
	return id
}

// consult 并发调用给定专家，结果按 profiles 的顺序返回。
//
// 一轮开始后不会因调用方取消而中断，每次生成调用仍受自身超时约束。
func (p *Panel) consult(ctx context.Context, profiles []ReviewerProfile, prompt string, history []llm.Message) []Opinion {
	opinions := make([]Opinion, len(profiles))
	if len(profiles) == 0 {
		return opinions
	}

	roundCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	if p.maxConcurrency > 0 {
		g.SetLimit(p.maxConcurrency)
	}
	for i, prof := range profiles {
		reviewer := p.reviewers[prof.ID]
		g.Go(func() error {
			rctx, span := p.tracer.Start(roundCtx, "council.review",
				trace.WithAttributes(attribute.String("council.reviewer", prof.ID)))
			op := reviewer.Evaluate(rctx, prompt, history)
			span.SetAttributes(attribute.Bool("council.succeeded", op.Succeeded))
			if !op.Succeeded {
				span.SetStatus(codes.Error, FailedOpinionBody)
			}
			span.End()

			p.recorder.ObserveOpinion(op.ReviewerID, op.Succeeded, op.Duration)
			opinions[i] = op
			return nil
		})
	}
	_ = g.Wait()
	return opinions
}

// aggregate 为裁决者调用包一层 span。
func (p *Panel) aggregate(ctx context.Context, stage string, fn func(context.Context) (Verdict, error)) (Verdict, error) {
	ctx, span := p.tracer.Start(ctx, "council.aggregate", trace.WithAttributes(attribute.String("council.stage", stage)))
	defer span.End()
	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

// =============================================================================
// 🔀 审议协议
// =============================================================================

type protocol interface {
	run(ctx context.Context, p *Panel, prompt string, history []llm.Message) (Verdict, error)
}

func protocolFor(mode Mode) protocol {
	if mode == ModeAdaptive {
		return adaptiveProtocol{}
	}
	return broadcastProtocol{}
}

// broadcastProtocol 全员并发评估，再一次性裁决。
type broadcastProtocol struct{}

func (broadcastProtocol) run(ctx context.Context, p *Panel, prompt string, history []llm.Message) (Verdict, error) {
	opinions := p.consult(ctx, p.registry.Profiles(), prompt, history)
	req := NewDeliberationRequest(prompt, opinions)

	v, err := p.aggregate(ctx, "decide", func(ctx context.Context) (Verdict, error) {
		return p.aggregator.Decide(ctx, req, p.mode)
	})
	v.Opinions = req.Opinions()
	v.ConsultedReviewers = []string{}
	return v, err
}

// adaptiveProtocol 裁决者先看提示词，按需咨询部分专家，最多一轮。
type adaptiveProtocol struct{}

func (adaptiveProtocol) run(ctx context.Context, p *Panel, prompt string, history []llm.Message) (Verdict, error) {
	var cons *Consultation
	_, err := p.aggregate(ctx, "open", func(ctx context.Context) (Verdict, error) {
		var err error
		cons, err = p.aggregator.Open(ctx, prompt, p.registry.Profiles())
		return Verdict{}, err
	})
	if err != nil {
		return Verdict{}, err
	}

	if !cons.Requested() {
		v := cons.Verdict()
		v.ConsultedReviewers = []string{}
		return v, nil
	}

	profiles := p.registry.Resolve(requestedIDs(cons.Requests()))
	consulted := make([]string, len(profiles))
	for i, prof := range profiles {
		consulted[i] = prof.ID
	}
	if dropped := len(cons.Requests()) - len(profiles); dropped > 0 {
		p.logger.Debug("忽略未注册或重复的专家请求", zap.Int("dropped", dropped))
	}
	p.recorder.ObserveConsultation(len(profiles))

	opinions := p.consult(ctx, profiles, prompt, history)
	req := NewDeliberationRequest(prompt, opinions)

	v, err := p.aggregate(ctx, "follow_up", func(ctx context.Context) (Verdict, error) {
		return cons.Decide(ctx, req)
	})
	v.Opinions = req.Opinions()
	v.ConsultedReviewers = consulted
	return v, err
}
