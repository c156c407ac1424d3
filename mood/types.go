package mood

// Mood 情绪类别
type Mood string

const (
	Neutral    Mood = "neutral"
	Happy      Mood = "happy"
	Sad        Mood = "sad"
	Curious    Mood = "curious"
	Supportive Mood = "supportive"
)

// Valid 报告是否为已知情绪
func (m Mood) Valid() bool {
	switch m {
	case Neutral, Happy, Sad, Curious, Supportive:
		return true
	}
	return false
}

// Sensitivity 内容敏感程度
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Valid 报告是否为已知敏感级别
func (s Sensitivity) Valid() bool {
	return s == SensitivityLow || s == SensitivityMedium || s == SensitivityHigh
}

// 结果来源
const (
	SourceModel    = "model"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// Turn 一轮对话
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Analysis 情绪分析结果
type Analysis struct {
	Mood          Mood        `json:"mood"`
	Confidence    float64     `json:"confidence"`
	Sensitivity   Sensitivity `json:"sensitivity_level"`
	SupportNeeded bool        `json:"support_needed"`
	Indicators    []string    `json:"emotional_indicators"`
	Rationale     string      `json:"context_analysis"`
	Source        string      `json:"source"`
	Crisis        bool        `json:"crisis,omitempty"`
}

// Fallback 返回模型不可用时的固定结果
func Fallback() Analysis {
	return Analysis{
		Mood:        Neutral,
		Confidence:  0.3,
		Sensitivity: SensitivityLow,
		Indicators:  []string{},
		Rationale:   "fallback analysis, language model unavailable",
		Source:      SourceFallback,
	}
}

// IsFallback 报告结果是否来自回退
func (a Analysis) IsFallback() bool {
	return a.Source == SourceFallback
}
