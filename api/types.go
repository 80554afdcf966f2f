package api

import (
	"github.com/BaSui01/councilgate/council"
	"github.com/BaSui01/councilgate/llm"
)

// 聊天接口默认采样参数
const (
	DefaultChatTemperature = 0.7
	DefaultChatMaxTokens   = 1000
)

// =============================================================================
// 📨 请求类型
// =============================================================================

// Message 对话历史中的一条消息。
// @Description 对话消息
type Message struct {
	// 角色：user / assistant / system
	Role string `json:"role" validate:"required,oneof=user assistant system" example:"user"`
	// 消息内容
	Content string `json:"content" example:"Hello"`
}

// EvaluateRequest 审议请求。
// @Description 仅审议、不转发给后端模型
type EvaluateRequest struct {
	// 待审议的提示词
	Prompt string `json:"prompt" validate:"required" example:"How do I bake bread?"`
	// 可选的对话历史，会同时提供给每位专家
	History []Message `json:"history,omitempty" validate:"dive"`
}

// ChatRequest 先审议、通过后转发给后端模型的聊天请求。
// @Description 受审议保护的聊天请求
type ChatRequest struct {
	Prompt      string    `json:"prompt" validate:"required" example:"How do I bake bread?"`
	ChatHistory []Message `json:"chat_history,omitempty" validate:"dive"`
	// 采样温度（0-2），缺省 0.7
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2" example:"0.7"`
	// 最大生成 token 数，缺省 1000
	MaxTokens *int `json:"max_tokens,omitempty" validate:"omitempty,gt=0" example:"1000"`
}

// EffectiveTemperature 返回请求温度或默认值。
func (r *ChatRequest) EffectiveTemperature() float64 {
	if r.Temperature == nil {
		return DefaultChatTemperature
	}
	return *r.Temperature
}

// EffectiveMaxTokens 返回请求的最大 token 数或默认值。
func (r *ChatRequest) EffectiveMaxTokens() int {
	if r.MaxTokens == nil {
		return DefaultChatMaxTokens
	}
	return *r.MaxTokens
}

// =============================================================================
// 📤 响应类型
// =============================================================================

// OpinionResponse 单个专家意见。
type OpinionResponse struct {
	ReviewerID string  `json:"reviewer_id"`
	Weight     float64 `json:"weight"`
	Body       string  `json:"body"`
	Succeeded  bool    `json:"succeeded"`
	DurationMS int64   `json:"duration_ms"`
}

// VerdictResponse 审议裁决。
// @Description 审议结果；allowed 已按服务端阈值计算
type VerdictResponse struct {
	ID                 string            `json:"id" example:"5f0c..."`
	Mode               string            `json:"mode" example:"binary"`
	Admitted           bool              `json:"admitted"`
	Allowed            bool              `json:"allowed"`
	RiskScore          *float64          `json:"risk_score,omitempty"`
	Confidence         float64           `json:"confidence" example:"0.9"`
	Rationale          string            `json:"rationale"`
	ConsultedReviewers []string          `json:"consulted_reviewers"`
	Opinions           []OpinionResponse `json:"opinions"`
	Failed             bool              `json:"failed"`
	DurationMS         int64             `json:"duration_ms"`
}

// ChatResponse 聊天接口响应。
type ChatResponse struct {
	Response       string          `json:"response"`
	Status         string          `json:"status" example:"success"`
	CouncilVerdict VerdictResponse `json:"council_verdict"`
}

// ReviewerInfo 注册的专家。
type ReviewerInfo struct {
	ID     string  `json:"id" example:"lawyer"`
	Weight float64 `json:"weight" example:"1.0"`
}

// CouncilInfo GET /api/v1/council 的响应。
type CouncilInfo struct {
	Mode          string         `json:"mode" example:"binary"`
	RiskThreshold float64        `json:"risk_threshold" example:"0.7"`
	Reviewers     []ReviewerInfo `json:"reviewers"`
}

// =============================================================================
// 🔄 转换
// =============================================================================

// NewVerdictResponse 把 council.Verdict 转为响应 DTO。
func NewVerdictResponse(v council.Verdict, threshold float64) VerdictResponse {
	ops := make([]OpinionResponse, 0, len(v.Opinions))
	for _, op := range v.Opinions {
		ops = append(ops, OpinionResponse{
			ReviewerID: op.ReviewerID,
			Weight:     op.Weight,
			Body:       op.Body,
			Succeeded:  op.Succeeded,
			DurationMS: op.Duration.Milliseconds(),
		})
	}
	consulted := v.ConsultedReviewers
	if consulted == nil {
		consulted = []string{}
	}
	return VerdictResponse{
		ID:                 v.ID,
		Mode:               string(v.Mode),
		Admitted:           v.Admitted,
		Allowed:            v.Allowed(threshold),
		RiskScore:          v.RiskScore,
		Confidence:         v.Confidence,
		Rationale:          v.Rationale,
		ConsultedReviewers: consulted,
		Opinions:           ops,
		Failed:             v.Failed,
		DurationMS:         v.Duration.Milliseconds(),
	}
}

// ToLLMMessages 转换对话历史。
func ToLLMMessages(msgs []Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return out
}

// NewCouncilInfo 描述当前审议团。
func NewCouncilInfo(p *council.Panel, threshold float64) CouncilInfo {
	profiles := p.Registry().Profiles()
	reviewers := make([]ReviewerInfo, 0, len(profiles))
	for _, prof := range profiles {
		reviewers = append(reviewers, ReviewerInfo{ID: prof.ID, Weight: prof.Weight})
	}
	return CouncilInfo{
		Mode:          string(p.Mode()),
		RiskThreshold: threshold,
		Reviewers:     reviewers,
	}
}
