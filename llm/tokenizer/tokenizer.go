package tokenizer

import (
	"strings"

	"go.uber.org/zap"
)

// Tokenizer 统一的 Token 计数与截断接口。
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Truncate 把文本截断到最多 maxTokens 个 token，返回截断后的文本以及是否发生截断。
	Truncate(text string, maxTokens int) (string, bool, error)

	// Name 返回分词器的名称.
	Name() string
}

// TruncationMarker 追加在被截断文本末尾。
const TruncationMarker = " [truncated]"

// ForModel 为模型选择分词器：已知的 OpenAI 系列使用 tiktoken，其余使用估算器。
func ForModel(model string) Tokenizer {
	if enc, ok := lookupEncoding(model); ok {
		return newTiktoken(model, enc)
	}
	if strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
		return newTiktoken(model, "o200k_base")
	}
	return NewEstimator()
}

// Budget 对文本施加 token 上限；主分词器出错时回落到估算器。
type Budget struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger
}

// NewBudget 创建 Budget。primary 为 nil 时直接使用估算器。
func NewBudget(primary Tokenizer, logger *zap.Logger) *Budget {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := NewEstimator()
	if primary == nil {
		primary = fallback
	}
	return &Budget{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// Fit 把 text 截断到 maxTokens 以内；maxTokens <= 0 表示不限制。
func (b *Budget) Fit(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}

	out, truncated, err := b.primary.Truncate(text, maxTokens)
	if err == nil {
		return out, truncated
	}

	b.logger.Warn("分词器不可用，回落到估算器",
		zap.String("tokenizer", b.primary.Name()),
		zap.Error(err),
	)
	out, truncated, err = b.fallback.Truncate(text, maxTokens)
	if err != nil {
		return text, false
	}
	return out, truncated
}

// Name 返回主分词器名称。
func (b *Budget) Name() string { return b.primary.Name() }
