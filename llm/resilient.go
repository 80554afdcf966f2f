package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/councilgate/llm/circuitbreaker"
	"github.com/BaSui01/councilgate/llm/retry"
	"go.uber.org/zap"
)

// Observer 接收每次上游调用的结果，metrics.Collector 实现了该接口。
type Observer interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// ResilientConfig 弹性 Provider 配置
type ResilientConfig struct {
	// Timeout 单次上游调用超时（含在重试之内）
	Timeout time.Duration
	// Retry 重试策略；nil 表示不重试
	Retry *retry.Policy
	// Breaker 熔断配置；nil 表示不熔断
	Breaker *circuitbreaker.Config
}

// DefaultResilientConfig 返回默认配置
func DefaultResilientConfig() *ResilientConfig {
	return &ResilientConfig{
		Timeout: 60 * time.Second,
		Retry:   retry.DefaultPolicy(),
		Breaker: circuitbreaker.DefaultConfig(),
	}
}

// ResilientProvider 为 Provider 叠加超时、熔断与重试（装饰器）。
//
// 调用顺序：retry -> breaker -> timeout -> provider。
// 只有 Retryable 的 *Error 会被重试；客户端错误不计入熔断。
type ResilientProvider struct {
	provider Provider
	timeout  time.Duration
	retryer  retry.Retryer
	breaker  *circuitbreaker.Breaker
	observer Observer
	logger   *zap.Logger
}

// NewResilientProvider 创建 ResilientProvider。observer 可为 nil。
func NewResilientProvider(provider Provider, cfg *ResilientConfig, observer Observer, logger *zap.Logger) *ResilientProvider {
	if cfg == nil {
		cfg = DefaultResilientConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "resilient_provider"), zap.String("provider", provider.Name()))

	rp := &ResilientProvider{
		provider: provider,
		timeout:  cfg.Timeout,
		observer: observer,
		logger:   logger,
	}

	if cfg.Retry != nil {
		policy := *cfg.Retry
		if policy.ShouldRetry == nil {
			policy.ShouldRetry = IsRetryable
		}
		rp.retryer = retry.NewBackoff(&policy, logger)
	}

	if cfg.Breaker != nil {
		bc := *cfg.Breaker
		if bc.IsFailure == nil {
			bc.IsFailure = func(err error) bool { return !IsClientError(err) }
		}
		rp.breaker = circuitbreaker.New(&bc, logger)
	}

	return rp
}

// Completion 实现 Provider.Completion
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if rp.retryer == nil {
		return rp.guarded(ctx, req)
	}
	return retry.DoValue(ctx, rp.retryer, func(ctx context.Context) (*ChatResponse, error) {
		return rp.guarded(ctx, req)
	})
}

// guarded 执行一次带熔断和超时的上游调用。
func (rp *ResilientProvider) guarded(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = rp.attempt(ctx, req)
		return err
	}

	if rp.breaker == nil {
		err := call(ctx)
		return resp, err
	}

	err := rp.breaker.Call(ctx, call)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
		rp.logger.Warn("上游熔断中，拒绝调用", zap.String("state", rp.breaker.State().String()))
		return nil, &Error{
			Code:       ErrProviderUnavailable,
			Message:    err.Error(),
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   rp.provider.Name(),
		}
	}
	return resp, err
}

func (rp *ResilientProvider) attempt(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	timeout := rp.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := rp.provider.Completion(callCtx, req)
	elapsed := time.Since(start)

	// 本次调用超时而调用方未取消：转换为可重试的上游超时。
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = &Error{
			Code:       ErrUpstreamTimeout,
			Message:    "upstream call timed out after " + timeout.String(),
			HTTPStatus: http.StatusGatewayTimeout,
			Retryable:  true,
			Provider:   rp.provider.Name(),
		}
	}

	rp.observe(req, resp, err, elapsed)
	return resp, err
}

func (rp *ResilientProvider) observe(req *ChatRequest, resp *ChatResponse, err error, d time.Duration) {
	if rp.observer == nil {
		return
	}
	model := req.Model
	status := "success"
	var prompt, completion int
	if err != nil {
		status = "error"
	} else if resp != nil {
		if resp.Model != "" {
			model = resp.Model
		}
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	rp.observer.RecordLLMRequest(rp.provider.Name(), model, status, d, prompt, completion)
}

// HealthCheck 直接委托给底层 Provider，不经过熔断。
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return rp.provider.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// BreakerState 返回熔断器状态；未启用熔断时恒为 closed。
func (rp *ResilientProvider) BreakerState() circuitbreaker.State {
	if rp.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return rp.breaker.State()
}
