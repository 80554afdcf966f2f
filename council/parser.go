package council

import (
	"regexp"
	"strconv"
	"strings"
)

// ExpertRequestMarker 自适应模式下裁决者请求专家意见的标记。
const ExpertRequestMarker = "NEED_EXPERT_INPUT:"

const (
	markerDeny  = "not permitted"
	markerAdmit = "permitted"
)

var strongCues = []string{"definitely", "clearly", "absolutely", "certainly"}

var (
	requestMarkerRe = regexp.MustCompile(`(?i)NEED_EXPERT_INPUT\s*:`)
	forSeparatorRe  = regexp.MustCompile(`(?i)\s+for(?:\s+|$)`)
	labeledScoreRe  = regexp.MustCompile(`(?i)risk[ _-]?score[*\s]*(?:[:=]|of|is)?[*\s]*([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)`)
	numberRe        = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)
)

// ParsedVerdict 从裁决文本中解析出的字段。
type ParsedVerdict struct {
	Admitted   bool
	Confidence float64
	// RiskScore 仅 scored 模式填充
	RiskScore *float64
	// Marker 是否找到放行/拒绝标记
	Marker bool
	// Denied 找到明确的拒绝标记
	Denied bool
}

// ParseVerdict 把裁决者输出解析为裁决字段，是纯函数。
//
// 规则：
//  1. 只在小写副本中查找标记，原文不改动；
//  2. "not permitted" 优先于 "permitted"；
//  3. 有强语气词时拒绝 0.9 / 放行 0.1，否则 0.7 / 0.3；无标记 0.5 且不放行；
//  4. scored 模式取风险分数（优先 "risk score" 标签后的数字，否则第一个数字），
//     截断到 [0,1]；没有数字时为 1.0 且不放行。
func ParseVerdict(text string, mode Mode) ParsedVerdict {
	lower := strings.ToLower(text)

	var pv ParsedVerdict
	strong := false
	for _, cue := range strongCues {
		if strings.Contains(lower, cue) {
			strong = true
			break
		}
	}

	switch {
	case strings.Contains(lower, markerDeny):
		pv.Marker = true
		pv.Denied = true
		pv.Admitted = false
		pv.Confidence = 0.7
		if strong {
			pv.Confidence = 0.9
		}
	case strings.Contains(lower, markerAdmit):
		pv.Marker = true
		pv.Admitted = true
		pv.Confidence = 0.3
		if strong {
			pv.Confidence = 0.1
		}
	default:
		pv.Confidence = 0.5
	}

	if mode == ModeScored {
		score, ok := parseRiskScore(text)
		if !ok {
			score = 1.0
			pv.Admitted = false
		}
		pv.RiskScore = &score
	}
	return pv
}

// parseRiskScore 提取风险分数并截断到 [0,1]。
func parseRiskScore(text string) (float64, bool) {
	var literal string
	if m := labeledScoreRe.FindStringSubmatch(text); m != nil {
		literal = m[1]
	} else {
		literal = numberRe.FindString(text)
	}
	if literal == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return 0, false
	}
	return clamp01(v), true
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 1.0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ExpertRequest 裁决者请求的一条专家咨询。
type ExpertRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason,omitempty"`
}

// ParseExpertRequests 解析 NEED_EXPERT_INPUT 标记。
//
// 标记后第一个非空行按逗号切分，每个子句再按 "for" 分为 ID 与理由。
// 第二个返回值表示是否出现了标记；标记存在但没有任何 ID 时返回空列表和 true。
// 这里不校验 ID 是否注册，由 Registry.Resolve 负责。
func ParseExpertRequests(text string) ([]ExpertRequest, bool) {
	loc := requestMarkerRe.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}

	// 标记后可能直接换行，取其后第一个非空行
	rest := strings.TrimLeft(text[loc[1]:], " \t\r\n")
	if nl := strings.IndexAny(rest, "\r\n"); nl >= 0 {
		rest = rest[:nl]
	}

	var out []ExpertRequest
	for _, clause := range strings.Split(rest, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		id, reason := clause, ""
		if parts := forSeparatorRe.Split(clause, 2); len(parts) == 2 {
			id, reason = parts[0], parts[1]
		}
		id = strings.Trim(strings.TrimSpace(id), "`'\"*[]().")
		if id == "" {
			continue
		}
		out = append(out, ExpertRequest{
			ReviewerID: id,
			Reason:     strings.TrimRight(strings.TrimSpace(reason), "."),
		})
	}
	return out, true
}

// requestedIDs 提取请求中的 ID 列表。
func requestedIDs(reqs []ExpertRequest) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ReviewerID
	}
	return ids
}
