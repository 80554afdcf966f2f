// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 councilgate HTTP API 的请求处理器实现。

# 概述

handlers 包实现审议、受保护聊天、审议团信息与健康检查端点，
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - CouncilHandler   — POST /api/v1/evaluate 与 GET /api/v1/council
  - ChatHandler      — POST /api/v1/chat，审议放行后回放历史并调用后端模型
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /readyz, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Provider、熔断器等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType、ValidateRequest
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx），审议拒绝统一为 403 FORBIDDEN
  - 后端错误映射：UpstreamError 将 llm.Error 转为 API 错误码
*/
package handlers
