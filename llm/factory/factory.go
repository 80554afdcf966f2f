// Package factory provides a centralized factory for creating LLM Provider
// instances by name. It imports the provider sub-packages and maps string
// names to their constructors, breaking the import cycle that would occur
// if this logic lived in the llm package directly.
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/councilgate/config"
	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/llm/circuitbreaker"
	"github.com/BaSui01/councilgate/llm/providers"
	"github.com/BaSui01/councilgate/llm/providers/gemini"
	"github.com/BaSui01/councilgate/llm/providers/openai"
	"github.com/BaSui01/councilgate/llm/retry"
	"go.uber.org/zap"
)

// ProviderConfig is the generic configuration accepted by the factory function.
type ProviderConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Organization string        `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// NewProviderFromConfig creates a Provider instance based on the provider name.
//
// Supported names: gemini (alias google), openai. Any other name is treated
// as an OpenAI-compatible endpoint and requires base_url.
func NewProviderFromConfig(name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gemini", "google":
		return gemini.NewGeminiProvider(providers.GeminiConfig{BaseProviderConfig: base}, logger), nil

	case "openai":
		return openai.NewOpenAIProvider(providers.OpenAIConfig{
			BaseProviderConfig: base,
			Organization:       cfg.Organization,
		}, logger), nil

	default:
		// 通用 OpenAI 兼容服务：任意名称 + base_url 即可接入（Ollama、vLLM、OpenRouter 等）
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("unknown provider %q: base_url is required for an OpenAI-compatible provider", name)
		}
		logger.Info("creating generic OpenAI-compatible provider",
			zap.String("provider", name),
			zap.String("base_url", cfg.BaseURL))
		return openai.NewOpenAIProvider(providers.OpenAIConfig{BaseProviderConfig: base}, logger), nil
	}
}

// SupportedProviders returns the list of built-in provider names.
func SupportedProviders() []string {
	return []string{"gemini", "google", "openai"}
}

// NewProvider 按进程配置创建 Provider，并叠加超时、重试与熔断。
// observer 可为 nil。
func NewProvider(cfg config.LLMConfig, observer llm.Observer, logger *zap.Logger) (*llm.ResilientProvider, error) {
	base, err := NewProviderFromConfig(cfg.Provider, ProviderConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Timeout:      cfg.Timeout,
		Organization: cfg.Organization,
	}, logger)
	if err != nil {
		return nil, err
	}
	return llm.NewResilientProvider(base, ResilientConfigFrom(cfg), observer, logger), nil
}

// ResilientConfigFrom 把 LLM 配置转换为弹性层配置。
// MaxRetries 为 0 时不重试，BreakerThreshold 为 0 时不熔断。
func ResilientConfigFrom(cfg config.LLMConfig) *llm.ResilientConfig {
	rc := &llm.ResilientConfig{Timeout: cfg.Timeout}

	if cfg.MaxRetries > 0 {
		policy := retry.DefaultPolicy()
		policy.MaxRetries = cfg.MaxRetries
		if cfg.RetryInitialDelay > 0 {
			policy.InitialDelay = cfg.RetryInitialDelay
		}
		if cfg.RetryMaxDelay > 0 {
			policy.MaxDelay = cfg.RetryMaxDelay
		}
		rc.Retry = policy
	}

	if cfg.BreakerThreshold > 0 {
		bc := circuitbreaker.DefaultConfig()
		bc.Threshold = cfg.BreakerThreshold
		if cfg.BreakerResetTimeout > 0 {
			bc.ResetTimeout = cfg.BreakerResetTimeout
		}
		rc.Breaker = bc
	}
	return rc
}

// GenerateOptionsFrom 审议调用使用的采样参数。
func GenerateOptionsFrom(cfg config.LLMConfig) llm.GenerateOptions {
	return llm.GenerateOptions{
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	}
}
