package mood

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/llm"
	"github.com/BaSui01/safetycore/types"
)

// Config 情绪分析配置
type Config struct {
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT" json:"timeout"`
	HistoryTurns int           `yaml:"history_turns" env:"HISTORY_TURNS" json:"history_turns"`
	TurnChars    int           `yaml:"turn_chars" env:"TURN_CHARS" json:"turn_chars"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" json:"cache_ttl"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		HistoryTurns: 5,
		TurnChars:    100,
		CacheTTL:     10 * time.Minute,
	}
}

// Analyzer 情绪分析器
type Analyzer struct {
	model  llm.LanguageModel
	cache  Cache
	cfg    Config
	logger *zap.Logger
}

// NewAnalyzer 创建分析器，model 为 nil 时总是返回回退结果，cache 可为 nil
func NewAnalyzer(model llm.LanguageModel, cache Cache, cfg Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = def.HistoryTurns
	}
	if cfg.TurnChars <= 0 {
		cfg.TurnChars = def.TurnChars
	}
	return &Analyzer{
		model:  model,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "mood_analyzer")),
	}
}

// modelResponse 字段类型宽松，以便逐项校验而不是整体失败
type modelResponse struct {
	Mood          any `json:"mood"`
	Confidence    any `json:"confidence"`
	Indicators    any `json:"emotional_indicators"`
	Rationale     any `json:"context_analysis"`
	Sensitivity   any `json:"sensitivity_level"`
	SupportNeeded any `json:"support_needed"`
}

// Analyze 分析情绪，总是返回完整结果
func (a *Analyzer) Analyze(ctx context.Context, text string, history []Turn) Analysis {
	result := a.classify(ctx, text, history)
	applyCrisis(&result, text)
	return result
}

func (a *Analyzer) classify(ctx context.Context, text string, history []Turn) Analysis {
	if a.model == nil {
		return Fallback()
	}

	prompt := a.buildPrompt(text, history)
	key := cacheKey(prompt)
	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, key); ok {
			cached.Source = SourceCache
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var raw modelResponse
	if err := a.model.Classify(ctx, prompt, &raw); err != nil {
		a.logger.Warn("mood classification failed, using fallback",
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		return Fallback()
	}

	result := validate(raw)
	if a.cache != nil {
		a.cache.Set(ctx, key, result)
	}
	return result
}

func (a *Analyzer) buildPrompt(text string, history []Turn) string {
	var b strings.Builder
	b.WriteString("You are an expert at analyzing emotional states and mood from text. ")
	b.WriteString("Analyze the user message and conversation context to determine the user's current emotional state.\n\n")
	fmt.Fprintf(&b, "User Message: %q\n\n", text)
	b.WriteString("Conversation Context:\n")
	b.WriteString(a.historyContext(history))
	b.WriteString(`

Respond with a JSON object containing:
1. "mood": one of "neutral", "happy", "sad", "curious", "supportive"
2. "confidence": a number between 0.0 and 1.0
3. "emotional_indicators": list of words or phrases that indicate the mood
4. "context_analysis": brief explanation of why this mood was detected
5. "sensitivity_level": "low", "medium" or "high"
6. "support_needed": boolean, true if the user might need emotional support

Be especially sensitive to distress, hopelessness or self-harm. If you detect any, set "sensitivity_level" to "high" and "support_needed" to true.
Respond with ONLY a valid JSON object.`)
	return b.String()
}

// historyContext 最近若干轮，每轮按字符截断
func (a *Analyzer) historyContext(history []Turn) string {
	if len(history) == 0 {
		return "No previous conversation context."
	}
	if len(history) > a.cfg.HistoryTurns {
		history = history[len(history)-a.cfg.HistoryTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		role := "AI"
		if t.Role == "user" {
			role = "User"
		}
		lines = append(lines, role+": "+truncateRunes(t.Content, a.cfg.TurnChars))
	}
	return strings.Join(lines, "\n")
}

func validate(raw modelResponse) Analysis {
	result := Analysis{
		Mood:        Neutral,
		Confidence:  0.5,
		Sensitivity: SensitivityLow,
		Indicators:  []string{},
		Source:      SourceModel,
	}
	if s, ok := raw.Mood.(string); ok && Mood(strings.ToLower(s)).Valid() {
		result.Mood = Mood(strings.ToLower(s))
	}
	if f, ok := raw.Confidence.(float64); ok && f >= 0 && f <= 1 {
		result.Confidence = f
	}
	if s, ok := raw.Sensitivity.(string); ok && Sensitivity(strings.ToLower(s)).Valid() {
		result.Sensitivity = Sensitivity(strings.ToLower(s))
	}
	if b, ok := raw.SupportNeeded.(bool); ok {
		result.SupportNeeded = b
	}
	if s, ok := raw.Rationale.(string); ok {
		result.Rationale = s
	}
	if list, ok := raw.Indicators.([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				result.Indicators = append(result.Indicators, s)
			}
		}
	}
	return result
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "mood:" + hex.EncodeToString(sum[:])
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
