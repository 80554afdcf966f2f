// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供审议引擎所依赖的文本生成能力：Provider 抽象、对话、
生成器以及带重试与熔断的弹性装饰器。

# 概述

审议团只需要一种能力：在一段对话中发送一条消息并拿到回复。
本包把不同模型服务商的差异收敛到 [Provider]，再由 [Generator]
向上暴露这一能力，使审议逻辑与具体服务商无关。

# 核心接口

  - [Provider]：模型服务商适配接口，提供 Completion / HealthCheck / Name
  - [Generator]：在 [Conversation] 中发送消息并返回回复
  - [Observer]：接收每次上游调用的耗时、状态与 token 用量

# 核心类型

  - [Conversation]：单个调用方独占的有序消息历史，非并发安全
  - [ProviderGenerator]：把 Provider 适配为 Generator；失败时回滚对话
  - [GenerationError]：穿过 Generator 边界的唯一错误类型
  - [ResilientProvider]：超时 + 熔断 + 退避重试的 Provider 装饰器
  - [Error]：带错误码与 Retryable 标记的上游错误

# 错误语义

  - 只有 Retryable 的 [Error] 会被重试（限流、超时、上游 5xx）
  - 鉴权、参数、配额等调用方错误不计入熔断
  - 上游返回空候选视为失败（[ErrNoChoices]）

# 相关子包

- llm/providers：Gemini 与 OpenAI（含兼容服务）适配实现。
- llm/factory：按配置构建 Provider 与弹性装饰器。
- llm/retry：指数退避重试。
- llm/circuitbreaker：熔断器实现。
- llm/tokenizer：token 计数与意见截断。
*/
package llm
