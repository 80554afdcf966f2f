// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 councilgate 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 council、llm、api 等
上层模块提供统一的错误码与 context 传播契约。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码与 Retryable 标记
  - AsError / IsRetryable / GetErrorCode — 沿错误链提取信息

# Context 传播

  - WithRequestID / RequestID — 请求关联 ID，贯穿审议日志
  - WithTenantID / WithUserID / WithRoles — 由认证中间件注入
*/
package types
