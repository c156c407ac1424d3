// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package api 定义 safetycore HTTP 接口的请求体结构。
//
// # 端点
//
//   - POST /v1/inbound          输入侧防护，返回 GuardrailDecision
//   - POST /v1/outbound         输出侧校验，返回 OutputValidationResult
//   - POST /v1/report           只读安全报告
//   - GET  /v1/config           当前运行时配置
//   - PUT  /v1/config           原子更新运行时配置
//   - GET  /v1/sessions/{id}    会话摘要
//   - DELETE /v1/sessions/{id}  结束会话
//   - GET  /health /healthz /ready /version
//
// 所有响应使用统一包装：
//
//	{"success": true, "data": {...}, "timestamp": "...", "request_id": "..."}
package api
