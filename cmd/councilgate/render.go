package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/councilgate/council"
	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// 🎨 裁决渲染（evaluate 命令）
// =============================================================================

var (
	allowStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	denyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// maxOpinionPreview 每条意见在终端中显示的最大字符数
const maxOpinionPreview = 160

// renderVerdict 渲染裁决为终端友好的文本框
func renderVerdict(v council.Verdict, threshold float64) string {
	var b strings.Builder

	headline := allowStyle.Render("ALLOWED")
	switch {
	case v.Failed:
		headline = failStyle.Render("DENIED (deliberation failed)")
	case !v.Allowed(threshold):
		headline = denyStyle.Render("DENIED")
	}
	b.WriteString(headline)
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	field("mode", string(v.Mode))
	field("admitted", fmt.Sprintf("%t", v.Admitted))
	if v.RiskScore != nil {
		field("risk score", fmt.Sprintf("%.2f (threshold %.2f)", *v.RiskScore, threshold))
	}
	field("confidence", fmt.Sprintf("%.2f", v.Confidence))
	if v.Mode == council.ModeAdaptive {
		consulted := "none"
		if len(v.ConsultedReviewers) > 0 {
			consulted = strings.Join(v.ConsultedReviewers, ", ")
		}
		field("consulted", consulted)
	}
	field("duration", v.Duration.Round(time.Millisecond).String())

	if len(v.Opinions) > 0 {
		b.WriteString("\n")
		for _, op := range v.Opinions {
			marker := "✓"
			if !op.Succeeded {
				marker = "✗"
			}
			b.WriteString(fmt.Sprintf("%s %s %s\n", marker, idStyle.Render(op.ReviewerID),
				labelStyle.Render(fmt.Sprintf("(weight %.1f)", op.Weight))))
			b.WriteString("  " + preview(op.Body) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.Render("rationale"))
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(v.Rationale))

	return boxStyle.Render(b.String())
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxOpinionPreview {
		return s
	}
	return string(r[:maxOpinionPreview]) + "…"
}
