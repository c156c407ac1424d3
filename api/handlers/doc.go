// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 safetycore HTTP 接口的请求处理器。

# 核心类型

  - SafetyHandler：输入防护、输出校验、安全报告、运行时配置与会话查询
  - HealthHandler：存活与就绪检查（/health, /healthz, /ready, /version）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo：结构化错误信息，HTTP 状态码取自 types.Error
  - FuncCheck：以函数实现的就绪检查（Redis 等）

被拦截的输入仍以 200 返回完整决策；请求格式错误、缺少会话或
配置无效时返回 4xx，并在 data 中附带可用的部分结果。
*/
package handlers
