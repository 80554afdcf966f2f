// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 基于 github.com/sashabaranov/go-openai 提供 OpenAI 及兼容
Chat Completions 接口服务（vLLM、Ollama、LiteLLM 等）的 Provider 实现。

# 核心结构体

  - OpenAIProvider — 持有 go-openai Client；HTTP 客户端带 otelhttp 埋点

# 支持能力

  - Chat Completions（/v1/chat/completions）
  - APIError / RequestError 映射为 llm.Error（沿用统一的 HTTP 状态映射）
  - HealthCheck（GET /v1/models）
*/
package openai
