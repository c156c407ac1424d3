// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 safetycore 服务端程序入口。

# 子命令

  - serve    启动 HTTP 服务，--config 指定 YAML 时启用护栏配置热更新
  - check    离线生成安全报告，文本来自参数或标准输入，不安全时退出码为 3
  - version  显示构建信息
  - health   请求 /health 并报告结果

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → Metrics →
OTelTracing → RateLimiter（按客户端 IP，默认每分钟 30 次）。

# 组件装配

Server 在启动时按配置构造输入校验、毒性检测（关键词或 moderation API）、
PII 识别（正则，可选 Presidio）、情绪分析（可选 LLM 与 Redis 缓存）、
会话管理与输出防护，并注入 orchestrator。关闭时依次停止热更新、
关闭 Redis、刷新遥测。
*/
package main
