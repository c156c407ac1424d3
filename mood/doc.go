// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 mood 基于语言模型对用户消息做情绪分类。

# 概述

Analyzer 将当前消息与最近若干轮对话（每轮截断）拼成提示词，
调用 llm.LanguageModel.Classify 获取 JSON 结果并做字段校验：

  - 非法 mood 归为 neutral
  - confidence 不在 [0,1] 内取 0.5
  - 非法 sensitivity 归为 low

模型超时、传输错误或返回无法解析时，使用固定的回退结果
{neutral, 0.3, low, false}。

# 危机信号

每次分析都会在本地扫描危机短语（自伤、轻生等），命中时强制
SupportNeeded=true 且 Sensitivity=high，即使模型不可用也不会丢失。

# 缓存

可选的 Cache 以提示词哈希为键缓存模型结果，RedisCache 基于
internal/cache.Manager 实现。回退结果不会写入缓存。
*/
package mood
