// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 维护会话级的短期上下文，用于判断何时需要引导对话。

# 概述

Context 保存单个会话最近 15 轮消息与最近 10 个情绪样本（超出时丢弃
最旧项），以及讨论过的话题、已覆盖的教育话题和用户偏好。

  - MoodTrend：最近 5 个样本中 sad 占比 ≥60% 为 declining，
    happy 占比 ≥60% 为 improving，否则 stable；样本不足 2 个时为 stable。
  - ShouldRedirect：趋势为 declining，或教育话题超过 3 个且主要情绪不是 happy。
  - RedirectSuggestions：优先使用用户偏好生成建议，不足 3 条时用通用话题补齐。

# 并发

Manager 的会话表由 RWMutex 保护，仅用于查找、插入与删除；每个 Context
有独立的互斥锁，不同会话之间互不阻塞。后台清理按 TTL 淘汰空闲会话，
会话数达到上限时淘汰最久未活动的会话。
*/
package conversation
