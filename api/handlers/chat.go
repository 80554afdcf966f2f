package handlers

import (
	"net/http"

	"github.com/BaSui01/councilgate/api"
	"github.com/BaSui01/councilgate/council"
	"github.com/BaSui01/councilgate/llm"
	"github.com/BaSui01/councilgate/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 受审议保护的聊天接口 Handler
// =============================================================================

// GeneratorFactory 按请求的采样参数返回后端生成器
type GeneratorFactory func(temperature float32, maxTokens int) llm.Generator

// ChatHandler 聊天接口处理器：先审议，通过后再调用后端模型
type ChatHandler struct {
	panel     *council.Panel
	backend   GeneratorFactory
	threshold float64
	logger    *zap.Logger
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(panel *council.Panel, backend GeneratorFactory, threshold float64, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		panel:     panel,
		backend:   backend,
		threshold: threshold,
		logger:    logger.With(zap.String("handler", "chat")),
	}
}

// HandleChat 处理聊天请求
// @Summary 受保护的聊天
// @Description 提示词先经审议团审议，放行后回放历史并转发给后端模型
// @Tags 聊天
// @Accept json
// @Produce json
// @Param request body api.ChatRequest true "聊天请求"
// @Success 200 {object} api.ChatResponse "聊天响应"
// @Failure 400 {object} Response "无效请求"
// @Failure 403 {object} Response "审议拒绝"
// @Failure 502 {object} Response "后端模型错误"
// @Security ApiKeyAuth
// @Router /api/v1/chat [post]
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if !ValidateRequest(w, &req, h.logger) {
		return
	}

	ctx := r.Context()
	history := api.ToLLMMessages(req.ChatHistory)

	v := h.panel.Evaluate(ctx, req.Prompt, history)
	if !v.Allowed(h.threshold) {
		h.logger.Warn("审议拒绝", append(callerFields(ctx),
			zap.String("verdict_id", v.ID),
			zap.String("rationale", v.Rationale),
			zap.Strings("consulted_reviewers", v.ConsultedReviewers),
			zap.Bool("failed", v.Failed),
		)...)
		WriteError(w, types.NewError(types.ErrForbidden, "rejected by council").
			WithHTTPStatus(http.StatusForbidden), nil)
		return
	}

	// 历史回放到全新的后端对话中，随后发送提示词
	conv := llm.NewConversation("", history...)
	gen := h.backend(float32(req.EffectiveTemperature()), req.EffectiveMaxTokens())
	text, err := gen.Generate(ctx, conv, req.Prompt)
	if err != nil {
		WriteError(w, UpstreamError(err), h.logger)
		return
	}

	WriteSuccessWithRequest(w, r, api.ChatResponse{
		Response:       text,
		Status:         "success",
		CouncilVerdict: api.NewVerdictResponse(v, h.threshold),
	})
}
