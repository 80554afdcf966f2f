// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 councilgate 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue
  - 文本断言: AssertContainsAll

# 子包

  - testutil/mocks: MockProvider（llm.Provider）与 MockGenerator
    （llm.Generator，按关键字返回脚本化回复，支持错误注入）
  - testutil/fixtures: 预置 ChatResponse 与典型专家意见 / 裁决文本

# 使用示例

	gen := mocks.NewMockGenerator().
		WithReply("You are a lawyer", fixtures.DenyOpinion).
		WithReply("Expert evaluations", fixtures.JudgeDeny)
*/
package testutil
