package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/llm/providers"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const fallbackModel = "gpt-4o-mini"

// OpenAIProvider 实现 OpenAI（及兼容 Chat Completions 接口的服务）Provider。
type OpenAIProvider struct {
	cfg    providers.OpenAIConfig
	client *goopenai.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建新的 OpenAI 提供者实例.
// BaseURL 为空时使用官方地址；兼容服务需包含 /v1 前缀。
func NewOpenAIProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		clientCfg.OrgID = cfg.Organization
	}
	clientCfg.HTTPClient = providers.NewHTTPClient(timeout)

	return &OpenAIProvider{
		cfg:    cfg,
		client: goopenai.NewClientWithConfig(clientCfg),
		logger: logger.With(zap.String("provider", "openai")),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := providers.ChooseModel(req, p.cfg.Model, fallbackModel)

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    toOpenAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		mapped := p.mapError(err)
		p.logger.Warn("openai 请求失败", zap.String("model", model), zap.String("code", string(mapped.Code)))
		return nil, mapped
	}

	choices := make([]llm.ChatChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: string(c.FinishReason),
			Message:      llm.Message{Role: llm.RoleAssistant, Content: c.Message.Content},
		})
	}

	out := &llm.ChatResponse{
		ID:       resp.ID,
		Provider: p.Name(),
		Model:    resp.Model,
		Choices:  choices,
		Usage: llm.ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.ListModels(ctx)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, fmt.Errorf("openai health check failed: %w", err)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// mapError 把 go-openai 的错误类型映射为 llm.Error
func (p *OpenAIProvider) mapError(err error) *llm.Error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.HTTPStatusCode, apiErr.Message, p.Name())
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.Error()
		if reqErr.HTTPStatusCode == 0 {
			return providers.MapHTTPError(http.StatusBadGateway, msg, p.Name())
		}
		return providers.MapHTTPError(reqErr.HTTPStatusCode, msg, p.Name())
	}
	return providers.NetworkError(err, p.Name())
}

func toOpenAIRole(r llm.Role) string {
	switch r {
	case llm.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case llm.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}
