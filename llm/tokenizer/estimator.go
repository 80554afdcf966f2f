package tokenizer

import (
	"unicode/utf8"
)

// Estimator 基于字符数的 token 估算器。
// CJK 约 1.5 字符/token，其余约 4 字符/token。
type Estimator struct{}

// NewEstimator creates a generic estimator.
func NewEstimator() *Estimator { return &Estimator{} }

func (e *Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cost float64
	for _, r := range text {
		cost += runeCost(r)
	}
	if n := int(cost); n > 0 {
		return n, nil
	}
	return 1, nil
}

// Truncate 按估算代价累加，在超出预算前的最后一个完整 rune 处截断。
func (e *Estimator) Truncate(text string, maxTokens int) (string, bool, error) {
	var cost float64
	for i, r := range text {
		cost += runeCost(r)
		if cost > float64(maxTokens) {
			return text[:i] + TruncationMarker, true, nil
		}
	}
	return text, false, nil
}

func (e *Estimator) Name() string {
	return "estimator"
}

func runeCost(r rune) float64 {
	if isCJK(r) {
		return 1 / 1.5
	}
	if r == utf8.RuneError {
		return 1
	}
	return 0.25
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
