/*
包 council 实现多专家审议引擎：在提示词进入下游大模型之前，
由一组专家（Reviewer）从各自的风险视角给出意见，再由裁决者（Aggregator）
综合这些意见给出放行 / 拒绝的最终裁决。

# 核心模型

  - ReviewerProfile：专家档案，包含 ID、权重（仅供裁决者参考）与领域指令。
  - Registry：启动时构建的只读专家注册表，负责 ID 解析与去重。
  - Reviewer：基于 llm.Generator 生成单条 Opinion，从不向上返回错误。
  - Aggregator：把提示词与专家意见组织成裁决消息并调用 Generator。
  - Panel：审议编排器，按配置选择广播或自适应协议，返回 Verdict。
  - ParseVerdict / ParseExpertRequests：把裁决者的自由文本解析为结构化字段。

# 审议协议

广播协议（binary / scored）：所有专家并发评估同一提示词，全部完成后
按注册顺序把意见交给裁决者，单个专家失败不会中断本轮。

自适应协议（adaptive）：裁决者先只看到提示词，可以用
NEED_EXPERT_INPUT: <id> for <reason>, ... 请求部分专家意见；
Panel 解析并调用这些专家后，在同一对话中发起第二次裁决。最多一轮咨询。

# 失败语义

裁决者调用失败时 Panel 返回 Admitted=false 的裁决（fail closed），
Evaluate 不会返回错误；无法识别的裁决文本同样按保守规则判为拒绝。
*/
package council
