package handlers

import (
	"net/http"

	"github.com/BaSui01/councilgate/api"
	"github.com/BaSui01/councilgate/council"
	"go.uber.org/zap"
)

// =============================================================================
// ⚖️ 审议接口 Handler
// =============================================================================

// CouncilHandler 审议与审议团信息处理器
type CouncilHandler struct {
	panel     *council.Panel
	threshold float64
	logger    *zap.Logger
}

// NewCouncilHandler 创建审议处理器。threshold 用于计算响应中的 allowed。
func NewCouncilHandler(panel *council.Panel, threshold float64, logger *zap.Logger) *CouncilHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouncilHandler{
		panel:     panel,
		threshold: threshold,
		logger:    logger.With(zap.String("handler", "council")),
	}
}

// HandleEvaluate 处理审议请求
// @Summary 审议提示词
// @Description 由专家审议团审议提示词，不转发给后端模型
// @Tags 审议
// @Accept json
// @Produce json
// @Param request body api.EvaluateRequest true "审议请求"
// @Success 200 {object} api.VerdictResponse "审议裁决"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/evaluate [post]
func (h *CouncilHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.EvaluateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if !ValidateRequest(w, &req, h.logger) {
		return
	}

	// 审议失败同样以 200 返回（failed=true, allowed=false），由调用方决定如何处理
	v := h.panel.Evaluate(r.Context(), req.Prompt, api.ToLLMMessages(req.History))
	WriteSuccessWithRequest(w, r, api.NewVerdictResponse(v, h.threshold))
}

// HandleInfo 处理审议团信息请求
// @Summary 审议团信息
// @Description 返回审议模式、风险阈值与已注册专家
// @Tags 审议
// @Produce json
// @Success 200 {object} api.CouncilInfo "审议团信息"
// @Security ApiKeyAuth
// @Router /api/v1/council [get]
func (h *CouncilHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	WriteSuccessWithRequest(w, r, api.NewCouncilInfo(h.panel, h.threshold))
}
