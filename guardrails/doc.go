// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 guardrails 为陪伴式对话系统提供输入与输出两侧的安全检查。

# 概述

每个护栏都是一个独立、无状态的检查，输入文本，输出带标签的结果结构体。
调用方（通常是 orchestrator 包）负责按固定顺序组合它们并根据
[DefaultPolicy] 决定拦截、教育引导、脱敏或仅记录。

# 输入侧

  - [InputValidator]：长度、词数、行数与字符集校验，所有规则都会执行并
    汇总违规项；缺失文本直接返回 types.ErrInvalidInput
  - [ToxicityGuard]：按类别打分并应用阈值，模型检测器不可用时回退到
    [KeywordDetector]
  - [RestrictedChecker]：受限关键词与垃圾信息启发式检查，给出教育类别

# PII

  - [PIIGuard]：正则匹配器 + 可选 [PIIEntityRecognizer]，合并重叠区间后
    从右向左替换为占位符，脱敏操作幂等
  - [PresidioRecognizer]：Presidio analyzer HTTP 客户端

# 输出侧

  - [OutputGuard]：毒性 → PII → 禁止内容 → 相关性 → 质量 五个阶段，
    出现严重违规时替换为 [FallbackSelector] 选出的安全回复
  - [AuditLogger]：记录输出校验失败事件，只保存内容哈希

# 风险等级

[RiskLevel] 只能由 [DeriveRiskLevel] 从违规项推导：两个及以上不同类别为
HIGH，恰好一个类别为 MEDIUM，否则为 LOW。
*/
package guardrails
