// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供防护层使用的语言模型协作者抽象。

# 概述

防护层本身不生成最终回复，只在情绪分类等环节调用语言模型。
[LanguageModel] 定义了两类调用：

  - Generate：普通对话补全，返回文本。
  - Classify：要求模型返回 JSON，剥离 Markdown 代码围栏后解码到 out。

[OpenAIClient] 基于 OpenAI 兼容的 /chat/completions 接口实现该抽象，
可接入任何兼容服务商。传输错误、超时与无法解析的响应统一包装为
types.Error，由调用方决定是否降级。

# 熔断

每个客户端内置 circuitbreaker.Breaker。连续的传输失败、超时或可重试的
上游错误达到阈值后，后续调用直接返回 UPSTREAM_ERROR，不再发起请求，
直到 BreakerResetTimeout 后放行一次试探。畸形响应不计入失败。
*/
package llm
