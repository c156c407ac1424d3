// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 moderation 将外部内容审核服务适配为毒性分类器，供
guardrails.ModelDetector 使用。

# 概述

OpenAIProvider 调用 OpenAI Moderation API，把服务商的分类体系
（hate、harassment、self-harm、sexual、violence、illicit 等）
折算为防护层使用的毒性类别分数：

  - toxicity：所有类别中的最高分
  - insult：harassment
  - threat：hate/threatening、harassment/threatening、violence 中的最高分
  - identity_attack：hate
  - obscene：sexual
  - self_harm：self-harm、self-harm/intent 中的最高分

# 核心接口

  - ModerationProvider：审核提供者接口，包含 Name 与 Moderate。
  - OpenAIProvider.Score：实现 guardrails.ToxicityClassifier。
  - OpenAIConfig / DefaultOpenAIConfig：API Key、BaseURL、Model 与超时。
*/
package moderation
