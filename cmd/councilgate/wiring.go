package main

import (
	"fmt"

	"github.com/BaSui01/councilgate/config"
	"github.com/BaSui01/councilgate/council"
	"github.com/BaSui01/councilgate/llm"
	llmfactory "github.com/BaSui01/councilgate/llm/factory"
	"github.com/BaSui01/councilgate/llm/tokenizer"
	"go.uber.org/zap"
)

// councilStack 一次装配的审议依赖
type councilStack struct {
	provider  *llm.ResilientProvider
	generator *llm.ProviderGenerator
	panel     *council.Panel
}

// buildCouncil 依配置装配 Provider → Generator → Aggregator → Panel。
// observer 与 opts 可为空（CLI 单次审议不采集指标）。
func buildCouncil(cfg *config.Config, observer llm.Observer, logger *zap.Logger, opts ...council.PanelOption) (*councilStack, error) {
	provider, err := llmfactory.NewProvider(cfg.LLM, observer, logger)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	gen := llm.NewProviderGenerator(provider, llmfactory.GenerateOptionsFrom(cfg.LLM), logger)

	mode, err := council.ParseMode(cfg.Council.Mode)
	if err != nil {
		return nil, err
	}

	aggregator := council.NewAggregator(gen, council.AggregatorConfig{
		JudgePrompt:      cfg.Council.JudgePrompt,
		MaxOpinionTokens: cfg.Council.MaxOpinionTokens,
		Tokenizer:        tokenizer.ForModel(cfg.LLM.Model),
	}, logger)

	registry := council.NewRegistry(cfg.Council.Profiles()...)
	panel, err := council.NewPanel(council.PanelConfig{
		Mode:           mode,
		MaxConcurrency: cfg.Council.MaxConcurrency,
	}, registry, gen, aggregator, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create panel: %w", err)
	}

	logger.Info("审议团已装配",
		zap.String("mode", string(mode)),
		zap.Strings("reviewers", registry.IDs()),
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.LLM.Model),
	)
	return &councilStack{provider: provider, generator: gen, panel: panel}, nil
}

// backendFactory 为聊天接口按请求参数派生生成器，模型沿用配置。
func backendFactory(gen *llm.ProviderGenerator, model string) func(float32, int) llm.Generator {
	return func(temperature float32, maxTokens int) llm.Generator {
		return gen.WithOptions(llm.GenerateOptions{
			Model:       model,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	}
}
