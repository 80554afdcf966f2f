package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Generator 是审议引擎唯一依赖的文本生成能力：
// 在给定对话中发送一条消息，返回模型回复。
type Generator interface {
	Generate(ctx context.Context, conv *Conversation, message string) (string, error)
}

// GeneratorFunc 函数适配器
type GeneratorFunc func(ctx context.Context, conv *Conversation, message string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, conv *Conversation, message string) (string, error) {
	return f(ctx, conv, message)
}

// GenerationError 是穿过 Generator 边界的唯一错误类型。
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation via %s failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrNoChoices 上游返回了空的候选列表。
var ErrNoChoices = &Error{Code: ErrEmptyResponse, Message: "provider returned no choices", HTTPStatus: 502}

// GenerateOptions 每次生成调用的采样参数。
type GenerateOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// ProviderGenerator 把 Provider 适配为 Generator。
type ProviderGenerator struct {
	provider Provider
	opts     GenerateOptions
	logger   *zap.Logger
}

// NewProviderGenerator 创建 ProviderGenerator。
func NewProviderGenerator(provider Provider, opts GenerateOptions, logger *zap.Logger) *ProviderGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderGenerator{
		provider: provider,
		opts:     opts,
		logger:   logger.With(zap.String("component", "generator"), zap.String("provider", provider.Name())),
	}
}

// WithOptions 返回采样参数被替换后的副本，共享同一个 Provider。
func (g *ProviderGenerator) WithOptions(opts GenerateOptions) *ProviderGenerator {
	cp := *g
	cp.opts = opts
	return &cp
}

// Generate 追加用户消息并调用 Provider；成功时追加助手回复。
// 失败时对话回滚到调用前的状态。
func (g *ProviderGenerator) Generate(ctx context.Context, conv *Conversation, message string) (string, error) {
	mark := conv.Len()
	conv.Append(RoleUser, message)

	req := &ChatRequest{
		Model:       g.opts.Model,
		Messages:    conv.Messages(),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	}

	resp, err := g.provider.Completion(ctx, req)
	if err != nil {
		conv.truncate(mark)
		return "", &GenerationError{Provider: g.provider.Name(), Err: err}
	}

	text, ok := resp.FirstContent()
	if !ok {
		conv.truncate(mark)
		return "", &GenerationError{Provider: g.provider.Name(), Err: ErrNoChoices}
	}

	conv.Append(RoleAssistant, text)
	g.logger.Debug("generation completed",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return text, nil
}

// IsGenerationError 判断 err 是否来自 Generator 边界。
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
