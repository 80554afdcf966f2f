package council

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// FailedOpinionBody 专家调用失败时的意见正文。
const FailedOpinionBody = "evaluation failed"

// Opinion 单个专家对提示词的评估。
type Opinion struct {
	ReviewerID string        `json:"reviewer_id"`
	Weight     float64       `json:"weight"`
	Body       string        `json:"body"`
	Succeeded  bool          `json:"succeeded"`
	Duration   time.Duration `json:"-"`
}

// DeliberationRequest 呈给裁决者的审议材料：原始提示词 + 有序意见列表。
// 构建后不可变，每次审议各自构建。
type DeliberationRequest struct {
	prompt   string
	opinions []Opinion
}

// NewDeliberationRequest 复制 opinions 构建审议材料。
func NewDeliberationRequest(prompt string, opinions []Opinion) DeliberationRequest {
	cp := make([]Opinion, len(opinions))
	copy(cp, opinions)
	return DeliberationRequest{prompt: prompt, opinions: cp}
}

// Prompt 返回原始提示词。
func (r DeliberationRequest) Prompt() string { return r.prompt }

// Len 返回意见数量。
func (r DeliberationRequest) Len() int { return len(r.opinions) }

// Opinions 返回意见副本。
func (r DeliberationRequest) Opinions() []Opinion {
	out := make([]Opinion, len(r.opinions))
	copy(out, r.opinions)
	return out
}

// Transcript 渲染意见列表，body 可对每条正文做变换（例如 token 截断），nil 表示原样输出。
func (r DeliberationRequest) Transcript(body func(string) string) string {
	entries := make([]string, 0, len(r.opinions))
	for _, op := range r.opinions {
		text := op.Body
		if body != nil {
			text = body(text)
		}
		entries = append(entries, "Evaluation from "+op.ReviewerID+" (weight: "+formatWeight(op.Weight)+"):\n"+text)
	}
	return strings.Join(entries, "\n\n")
}

// formatWeight 整数权重保留一位小数（1 -> "1.0"），其余取最短表示。
func formatWeight(w float64) string {
	if w == math.Trunc(w) && !math.IsInf(w, 0) {
		return strconv.FormatFloat(w, 'f', 1, 64)
	}
	return strconv.FormatFloat(w, 'f', -1, 64)
}
