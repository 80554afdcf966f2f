// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 gemini 提供 Google Gemini 模型的 Provider 适配实现。该包直接对接
Gemini REST API（generativelanguage.googleapis.com），自行处理请求构建
与响应解析；HTTP 客户端带 otelhttp 埋点。

# 核心结构体

  - GeminiProvider — 持有 http.Client 与 GeminiConfig；使用 x-goog-api-key 请求头认证
  - geminiRequest / geminiResponse — Gemini 原生请求/响应结构

# 构造函数

  - NewGeminiProvider(cfg, logger) — 创建实例，默认模型 gemini-1.5-flash

# 支持能力

  - Chat Completions（/v1beta/models/{model}:generateContent）
  - promptFeedback.blockReason 映射为 LLM_FORBIDDEN
  - HealthCheck（GET /v1beta/models）
*/
package gemini
