package api

// =============================================================================
// 📮 请求体
// =============================================================================

// OutboundRequest 输出侧校验请求
type OutboundRequest struct {
	// 待校验的模型回复
	AIResponse string `json:"ai_response"`
	// 触发该回复的用户消息，用于相关性检查
	UserMessage string `json:"user_message"`
}

// ReportRequest 安全报告请求
type ReportRequest struct {
	Text string `json:"text"`
}

// ConfigUpdateRequest 运行时配置更新，键为 block_on_high_risk 等配置名
type ConfigUpdateRequest map[string]any

// SessionDeleted 结束会话的响应
type SessionDeleted struct {
	SessionID string `json:"session_id"`
	Removed   bool   `json:"removed"`
}
