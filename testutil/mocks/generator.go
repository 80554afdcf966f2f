package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/councilgate/llm"
)

// GeneratorCall 记录一次 Generate 调用
type GeneratorCall struct {
	System  string
	Message string
	// Turn 调用前对话中已有的消息数
	Turn int
}

type generatorRule struct {
	match string
	reply string
	err   error
}

// MockGenerator 按系统指令或消息内容中的关键字返回脚本化回复。
// 规则按注册顺序匹配，先命中者生效；可在多个 goroutine 中并发调用。
type MockGenerator struct {
	mu       sync.Mutex
	rules    []generatorRule
	fallback string
	calls    []GeneratorCall
	// sequences 为同一关键字依次返回多条回复
	sequences map[string][]string
}

// NewMockGenerator 创建 MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{fallback: "Mock response", sequences: make(map[string][]string)}
}

// WithReply 当系统指令或消息包含 match 时返回 reply
func (g *MockGenerator) WithReply(match, reply string) *MockGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, generatorRule{match: match, reply: reply})
	return g
}

// WithSequence 当命中 match 时依次返回 replies，用尽后重复最后一条
func (g *MockGenerator) WithSequence(match string, replies ...string) *MockGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, generatorRule{match: match})
	g.sequences[match] = replies
	return g
}

// WithFailure 当命中 match 时返回 err
func (g *MockGenerator) WithFailure(match string, err error) *MockGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, generatorRule{match: match, err: err})
	return g
}

// WithFallback 设置未命中任何规则时的回复
func (g *MockGenerator) WithFallback(reply string) *MockGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = reply
	return g
}

// Generate 实现 llm.Generator
func (g *MockGenerator) Generate(ctx context.Context, conv *llm.Conversation, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &llm.GenerationError{Provider: "mock", Err: err}
	}

	g.mu.Lock()
	g.calls = append(g.calls, GeneratorCall{System: conv.System(), Message: message, Turn: conv.Len()})
	reply, err := g.lookup(conv.System() + "\n" + message)
	g.mu.Unlock()

	if err != nil {
		return "", &llm.GenerationError{Provider: "mock", Err: err}
	}
	conv.Append(llm.RoleUser, message)
	conv.Append(llm.RoleAssistant, reply)
	return reply, nil
}

// lookup 必须持有 mu。
func (g *MockGenerator) lookup(text string) (string, error) {
	for _, r := range g.rules {
		if !strings.Contains(text, r.match) {
			continue
		}
		if r.err != nil {
			return "", r.err
		}
		if seq, ok := g.sequences[r.match]; ok && len(seq) > 0 {
			reply := seq[0]
			if len(seq) > 1 {
				g.sequences[r.match] = seq[1:]
			}
			return reply, nil
		}
		return r.reply, nil
	}
	return g.fallback, nil
}

// Calls 返回调用记录副本
func (g *MockGenerator) Calls() []GeneratorCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GeneratorCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallsMatching 统计消息或系统指令包含 match 的调用次数
func (g *MockGenerator) CallsMatching(match string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if strings.Contains(c.System+"\n"+c.Message, match) {
			n++
		}
	}
	return n
}
