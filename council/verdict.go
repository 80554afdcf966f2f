package council

import (
	"fmt"
	"strings"
	"time"
)

// Mode 审议模式
type Mode string

const (
	ModeBinary   Mode = "binary"   // 广播 + 放行/拒绝标记
	ModeScored   Mode = "scored"   // 广播 + 风险分数
	ModeAdaptive Mode = "adaptive" // 裁决者按需咨询专家
)

// Modes 返回全部合法模式。
func Modes() []Mode { return []Mode{ModeBinary, ModeScored, ModeAdaptive} }

// Valid 判断模式是否合法。
func (m Mode) Valid() bool {
	switch m {
	case ModeBinary, ModeScored, ModeAdaptive:
		return true
	}
	return false
}

// ParseMode 解析模式名（大小写不敏感）。
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown council mode %q (want binary, scored or adaptive)", s)
	}
	return m, nil
}

// Verdict 一次审议的最终裁决。
type Verdict struct {
	ID        string `json:"id"`
	Mode      Mode   `json:"mode"`
	Admitted  bool   `json:"admitted"`
	// ExplicitDeny 裁决者写出了 "Not Permitted"
	ExplicitDeny bool `json:"explicit_deny"`
	// RiskScore 仅在 scored 模式下存在，范围 [0,1]
	RiskScore  *float64 `json:"risk_score,omitempty"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
	// ConsultedReviewers 自适应模式中实际咨询的专家，按裁决者请求顺序
	ConsultedReviewers []string      `json:"consulted_reviewers"`
	Opinions           []Opinion     `json:"opinions"`
	Failed             bool          `json:"failed"`
	Duration           time.Duration `json:"-"`
}

// Allowed 按调用方阈值给出放行决定。
//
// 有风险分数时分数为准：RiskScore >= threshold 拒绝；否则取 Admitted。
// 审议失败或裁决者明确拒绝的裁决一律拒绝，分数再低也不放行。
func (v Verdict) Allowed(threshold float64) bool {
	if v.Failed || v.ExplicitDeny {
		return false
	}
	if v.RiskScore != nil {
		return *v.RiskScore < threshold
	}
	return v.Admitted
}

// Outcome 返回用于指标的结果标签：admitted / denied / failed。
func (v Verdict) Outcome() string {
	switch {
	case v.Failed:
		return "failed"
	case v.Admitted:
		return "admitted"
	default:
		return "denied"
	}
}

// failClosed 构造裁决者失败时的拒绝裁决。
func failClosed(mode Mode, err error) Verdict {
	v := Verdict{
		Mode:       mode,
		Admitted:   false,
		Confidence: 0.5,
		Rationale:  "deliberation failed: " + err.Error(),
		Failed:     true,
	}
	if mode == ModeScored {
		maxRisk := 1.0
		v.RiskScore = &maxRisk
	}
	return v
}
