package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy 定义一次生成调用的重试策略。
type Policy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 首次重试前的等待
	MaxDelay     time.Duration // 单次等待上限
	Multiplier   float64       // 指数退避倍数
	Jitter       bool          // ±25% 随机抖动

	// ShouldRetry 判断错误是否值得重试；nil 表示所有错误都重试。
	ShouldRetry func(err error) bool
	// OnRetry 每次重试前回调，可用于指标埋点。
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回默认重试策略，适用于大多数模型 API。
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// ErrExhausted 在重试次数耗尽时包裹最后一次错误。
var ErrExhausted = errors.New("retries exhausted")

// Retryer 对单个操作执行带退避的重试。
type Retryer interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Backoff 基于指数退避的 Retryer 实现。
type Backoff struct {
	policy Policy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewBackoff 创建指数退避重试器，非法参数回落到默认值。
func NewBackoff(policy *Policy, logger *zap.Logger) *Backoff {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := *policy
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}

	return &Backoff{
		policy: p,
		logger: logger.With(zap.String("component", "retry")),
		sleep:  sleepContext,
	}
}

// Do 执行 fn，失败且可重试时按策略等待后重试。
func (b *Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= b.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.delay(attempt)

			b.logger.Debug("重试中",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", b.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if b.policy.OnRetry != nil {
				b.policy.OnRetry(attempt, lastErr, delay)
			}

			if err := b.sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry cancelled: %w", errors.Join(err, lastErr))
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				b.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return nil
		}

		if !b.retryable(lastErr) {
			return lastErr
		}
	}

	b.logger.Warn("重试次数耗尽",
		zap.Int("attempts", b.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, b.policy.MaxRetries+1, lastErr)
}

// delay 计算第 attempt 次重试前的等待：initial * multiplier^(attempt-1)，受 MaxDelay 约束。
func (b *Backoff) delay(attempt int) time.Duration {
	d := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	if d > float64(b.policy.MaxDelay) {
		d = float64(b.policy.MaxDelay)
	}

	if b.policy.Jitter {
		jitter := d * 0.25
		d += (rand.Float64()*2 - 1) * jitter
	}

	if d < float64(b.policy.InitialDelay) {
		d = float64(b.policy.InitialDelay)
	}
	return time.Duration(d)
}

func (b *Backoff) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if b.policy.ShouldRetry == nil {
		return true
	}
	return b.policy.ShouldRetry(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DoValue 是 Retryer.Do 的泛型便捷封装。
//
//	resp, err := retry.DoValue(ctx, r, func(ctx context.Context) (*llm.ChatResponse, error) {
//	    return p.Completion(ctx, req)
//	})
func DoValue[T any](ctx context.Context, r Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
