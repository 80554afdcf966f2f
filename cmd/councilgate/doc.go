// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 councilgate 服务端程序入口。

# 概述

cmd/councilgate 是提示词审议网关的可执行入口（cobra），提供 HTTP API 服务、
本地单次审议、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集与 OpenTelemetry 追踪。

# 核心类型

  - Server           — 主服务器，管理 API、Metrics 双端口及优雅关闭
  - Middleware       — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - councilStack     — Provider → Generator → Panel 的一次装配结果

# 主要能力

  - 子命令：serve、evaluate（lipgloss 渲染或 --json）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、RateLimiter（基于 IP）、APIKeyAuth / JWTAuth
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号 → 关闭 API 与 Metrics → 停止限流清理 → 刷新追踪
  - 构建注入：BuildTime、GitCommit 通过 ldflags 设置，版本号见 telemetry.Version
*/
package main
