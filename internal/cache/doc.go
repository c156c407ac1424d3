// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，用于缓存情绪分类等
可复用的模型调用结果。

# 概述

Manager 封装 go-redis 客户端，负责连接生命周期（初始化、后台健康
检查、优雅关闭），对上层提供带键前缀的字符串与 JSON 读写。
缓存只是加速手段：调用方应在 Redis 不可用时直接回源。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/GetJSON/SetJSON/Ping，
    并在本地统计命中与未命中次数。
  - Config：地址、密码、库号、键前缀、默认 TTL、连接池与健康检查间隔。
  - Stats：命中、未命中与错误计数。

# 错误语义

未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断；已关闭的 Manager
返回 ErrClosed。
*/
package cache
