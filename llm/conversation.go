package llm

// Conversation 单个调用方独占的对话历史。
//
// 每个 Reviewer / Aggregator 调用各自持有一个 Conversation，
// 不在 goroutine 之间共享，因此不加锁。
type Conversation struct {
	system  string
	history []Message
}

// NewConversation 以系统指令和可选的历史消息创建对话。
// 历史中的 system 消息会被忽略，系统指令只由 system 参数决定。
func NewConversation(system string, history ...Message) *Conversation {
	c := &Conversation{system: system}
	for _, m := range history {
		if m.Role == RoleSystem || m.Content == "" {
			continue
		}
		c.history = append(c.history, m)
	}
	return c
}

// System 返回系统指令。
func (c *Conversation) System() string { return c.system }

// Len 返回历史消息数（不含系统指令）。
func (c *Conversation) Len() int { return len(c.history) }

// Append 追加一条消息。
func (c *Conversation) Append(role Role, content string) {
	c.history = append(c.history, Message{Role: role, Content: content})
}

// Messages 返回发送给 Provider 的完整消息序列（副本）。
func (c *Conversation) Messages() []Message {
	out := make([]Message, 0, len(c.history)+1)
	if c.system != "" {
		out = append(out, Message{Role: RoleSystem, Content: c.system})
	}
	return append(out, c.history...)
}

// truncate 回滚到 n 条历史消息。
func (c *Conversation) truncate(n int) {
	if n < len(c.history) {
		c.history = c.history[:n]
	}
}
