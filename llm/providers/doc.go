// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 是具体 Provider 实现（gemini、openai）的公共基础层，
负责配置结构、错误映射与 HTTP 客户端构建等共享逻辑。

# 核心类型

  - BaseProviderConfig — 所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - OpenAIConfig / GeminiConfig — 各服务商的专有配置

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - NetworkError — 传输层错误统一视为可重试的上游不可用
  - ReadErrorMessage — 从错误响应体中提取 message 字段
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）
  - NewHTTPClient — 带 otelhttp 埋点的 HTTP 客户端

重试与熔断不在本包处理，由 llm.ResilientProvider 统一叠加。
*/
package providers
