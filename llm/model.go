package llm

import "context"

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 对话消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LanguageModel 语言模型协作者
type LanguageModel interface {
	// Generate 返回补全文本
	Generate(ctx context.Context, messages []Message) (string, error)
	// Classify 要求模型输出 JSON 并解码到 out
	Classify(ctx context.Context, prompt string, out any) error
}
