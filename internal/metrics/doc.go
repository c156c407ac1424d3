// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、防护决策、情绪分析、会话与缓存几个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 防护指标：输入侧决策（按 response_type/risk_level）、
    输出侧校验（按是否安全与是否回退）、违规计数（按方向/类别/种类）、
    检测器回退计数，以及按方向区分的流水线耗时。
  - 情绪指标：按来源（model/cache/fallback）与是否需要支持分组。
  - 会话指标：内存中活跃会话数 Gauge。
  - 缓存指标：由 RegisterCacheStats 从缓存自身的统计导出命中、未命中、错误计数与命中率，按 cache_type 分组。
*/
package metrics
