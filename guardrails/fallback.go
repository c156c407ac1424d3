package guardrails

import (
	"math/rand"
	"sync"
)

// DefaultFallbackResponses 预先审核过的安全回复
var DefaultFallbackResponses = []string{
	"I understand you're looking for information, but I can't provide that type of content. How else can I help you?",
	"I'm not able to generate that kind of response. Let's discuss something else instead.",
	"I'd prefer not to go in that direction. Is there another way I can assist you?",
	"That's not something I can help with. What else would you like to talk about?",
	"I'm designed to be helpful and safe. Can we explore a different topic?",
	"I can't provide that information, but I'm happy to help with other questions you might have.",
	"Let's focus on something more constructive. How can I assist you today?",
}

// FallbackSelector 安全回复选择策略
type FallbackSelector interface {
	Select() string
}

// RandomFallback 随机选择，可指定种子以获得确定结果
type RandomFallback struct {
	responses []string
	mu        sync.Mutex
	rng       *rand.Rand
}

// NewRandomFallback 创建随机选择器，responses 为空时使用默认回复
func NewRandomFallback(responses []string, seed int64) *RandomFallback {
	if len(responses) == 0 {
		responses = DefaultFallbackResponses
	}
	return &RandomFallback{
		responses: append([]string(nil), responses...),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Select 返回一条安全回复
func (f *RandomFallback) Select() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.responses[f.rng.Intn(len(f.responses))]
}

// FixedFallback 总是返回同一条回复
type FixedFallback struct {
	response string
}

// NewFixedFallback 按下标选择默认回复，越界时取模
func NewFixedFallback(index int) *FixedFallback {
	n := len(DefaultFallbackResponses)
	return &FixedFallback{response: DefaultFallbackResponses[((index%n)+n)%n]}
}

// Select 返回固定回复
func (f *FixedFallback) Select() string {
	return f.response
}

// IsFallbackResponse 报告 text 是否来自默认安全回复集合
func IsFallbackResponse(text string) bool {
	for _, r := range DefaultFallbackResponses {
		if r == text {
			return true
		}
	}
	return false
}
