package council

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/councilgate/llm"
	"go.uber.org/zap"
)

// Reviewer 单个专家，通过 Generator 产出 Opinion。
type Reviewer struct {
	profile ReviewerProfile
	gen     llm.Generator
	logger  *zap.Logger
}

// NewReviewer 创建专家。
func NewReviewer(profile ReviewerProfile, gen llm.Generator, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{
		profile: profile,
		gen:     gen,
		logger:  logger.With(zap.String("component", "reviewer"), zap.String("reviewer", profile.ID)),
	}
}

// Profile 返回专家档案。
func (r *Reviewer) Profile() ReviewerProfile { return r.profile }

// Evaluate 评估提示词，从不返回错误。
//
// 生成失败（超时、鉴权失败、空响应等）时返回 Succeeded=false、
// Body 为 FailedOpinionBody 的意见；权重与 ID 始终保留。
// 每次调用使用独立的 Conversation，history 会先回放到其中。
func (r *Reviewer) Evaluate(ctx context.Context, prompt string, history []llm.Message) Opinion {
	op := Opinion{ReviewerID: r.profile.ID, Weight: r.profile.Weight}
	start := time.Now()

	conv := llm.NewConversation("", history...)
	body, err := r.gen.Generate(ctx, conv, reviewerMessage(r.profile.FramingText, prompt))
	op.Duration = time.Since(start)

	if err == nil && strings.TrimSpace(body) == "" {
		err = llm.ErrNoChoices
	}
	if err != nil {
		r.logger.Warn("专家评估失败",
			zap.Error(err),
			zap.Duration("duration", op.Duration),
		)
		op.Body = FailedOpinionBody
		return op
	}

	op.Body = body
	op.Succeeded = true
	r.logger.Debug("专家意见",
		zap.Float64("weight", op.Weight),
		zap.String("opinion", body),
		zap.Duration("duration", op.Duration),
	)
	return op
}
