// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 orchestrator 将各项防护组合为完整的输入与输出流水线。

# 输入流水线

ProcessInboundMessage 依次执行：结构校验 → 毒性检测 → 受限内容检查 →
PII 脱敏 → 情绪分析 → 会话上下文更新 → 引导方式判定，并返回字段完整的
GuardrailDecision。结构校验与毒性检测失败时直接拦截，不再执行后续的
外部调用；受限内容无论风险高低都只触发教育引导。block_on_high_risk 只在
汇总风险为 HIGH 且包含拦截级别违规时生效，这只会出现在自定义 Policy 把
某个输入类别设为 fallback 等非拦截但高严重度的处理方式时。各类别的处理
方式来自 guardrails.DefaultPolicy。

会话上下文只在情绪分析完成（包括回退结果）后更新；请求被取消时不写入。
流水线内的 panic 被恢复为保守的拦截决策，不向调用方返回错误；
只有缺少 session_id 或文本等调用错误才返回 *types.Error。

# 输出流水线

ValidateOutboundResponse 委托 guardrails.OutputGuard，不安全的回复被
替换为预置的安全回复。

# 其他能力

  - GetSafetyReport：并发执行各项检查的只读报告，不修改会话状态。
  - UpdateConfig / GetConfig：运行时阈值与开关，校验失败时整体不生效。
*/
package orchestrator
