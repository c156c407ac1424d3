package guardrails

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/types"
)

// ToxicityClassifier 外部毒性分类服务
// 返回 类别 -> [0,1] 分数
type ToxicityClassifier interface {
	Score(ctx context.Context, text string) (map[string]float64, error)
}

// ToxicityDetector 毒性检测能力，构造时根据可用性选定实现
type ToxicityDetector interface {
	Name() string
	Scores(ctx context.Context, text string) (ToxicityScore, error)
}

// ToxicityScore 类别 -> 分数
type ToxicityScore map[string]float64

// Max 返回最高分及其类别，空分数返回 ("", 0)
func (s ToxicityScore) Max() (string, float64) {
	var (
		category string
		best     float64
	)
	// 按类别名排序以保证并列时结果确定
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if category == "" || s[k] > best {
			category, best = k, s[k]
		}
	}
	return category, best
}

// IsToxic 最高分 >= threshold 时为毒性，对 threshold 单调
func (s ToxicityScore) IsToxic(threshold float64) bool {
	if len(s) == 0 {
		return false
	}
	_, best := s.Max()
	return best >= threshold
}

// Above 返回分数严格高于 threshold 的类别（已排序）
func (s ToxicityScore) Above(threshold float64) []string {
	var out []string
	for k, v := range s {
		if v > threshold {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// ToxicityResult 毒性检测结果
type ToxicityResult struct {
	Scores      ToxicityScore `json:"scores"`
	IsToxic     bool          `json:"is_toxic"`
	MaxCategory string        `json:"max_category,omitempty"`
	MaxScore    float64       `json:"max_score"`
	Threshold   float64       `json:"threshold"`
	Detector    string        `json:"detector"`
	Degraded    bool          `json:"degraded"`
}

// =============================================================================
// 🤖 模型检测器
// =============================================================================

// ModelDetector 基于外部分类服务的检测器
type ModelDetector struct {
	classifier ToxicityClassifier
	timeout    time.Duration
}

// NewModelDetector 创建模型检测器
func NewModelDetector(classifier ToxicityClassifier, timeout time.Duration) *ModelDetector {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ModelDetector{classifier: classifier, timeout: timeout}
}

// Name 返回检测器名称
func (d *ModelDetector) Name() string { return "model" }

// Scores 调用分类服务，超时与错误统一包装为 types.Error
func (d *ModelDetector) Scores(ctx context.Context, text string) (ToxicityScore, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	scores, err := d.classifier.Score(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrExternalServiceTimeout, "toxicity classifier timed out").
				WithCause(err).WithComponent("toxicity")
		}
		return nil, types.NewError(types.ErrDetectorUnavailable, "toxicity classifier unavailable").
			WithCause(err).WithComponent("toxicity")
	}

	out := make(ToxicityScore, len(scores))
	for k, v := range scores {
		out[k] = clamp01(v)
	}
	return out, nil
}

// =============================================================================
// 🔤 关键词启发式检测器
// =============================================================================

type keywordRule struct {
	category string
	score    float64
	pattern  *regexp.Regexp
}

// KeywordDetector 关键词启发式检测器，模型不可用时使用
type KeywordDetector struct {
	rules []keywordRule
}

// NewKeywordDetector 创建关键词检测器
func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{rules: []keywordRule{
		{"threat", 0.9, regexp.MustCompile(`(?i)\b(?:i(?:'ll| will| am going to| gonna) (?:kill|hurt|destroy) you|you(?:'re| are) dead|watch your back)\b`)},
		{"insult", 0.8, regexp.MustCompile(`(?i)\b(?:stupid|idiot|moron|loser|dumb|pathetic|worthless)\b`)},
		{"identity_attack", 0.85, regexp.MustCompile(`(?i)\b(?:i hate (?:you|them|all)|go back to where)\b`)},
		{"obscene", 0.75, regexp.MustCompile(`(?i)\b(?:fuck\w*|shit\w*|bitch\w*|asshole)\b`)},
		{"toxicity", 0.4, regexp.MustCompile(`(?i)\b(?:damn|hell|shut up|die)\b`)},
	}}
}

// Name 返回检测器名称
func (d *KeywordDetector) Name() string { return "keyword" }

// Scores 每个类别取命中规则的分数，多次命中略微加分
func (d *KeywordDetector) Scores(_ context.Context, text string) (ToxicityScore, error) {
	scores := ToxicityScore{}
	for _, rule := range d.rules {
		hits := len(rule.pattern.FindAllStringIndex(text, -1))
		if hits == 0 {
			continue
		}
		score := rule.score + 0.05*float64(hits-1)
		if score > scores[rule.category] {
			scores[rule.category] = clamp01(score)
		}
	}
	// 任一类别命中时 toxicity 至少与最高类别分数一致
	if _, best := scores.Max(); best > scores["toxicity"] {
		scores["toxicity"] = best
	}
	return scores, nil
}

// =============================================================================
// 🛡️ ToxicityGuard
// =============================================================================

// ToxicityGuard 毒性防护
type ToxicityGuard struct {
	primary  ToxicityDetector
	fallback ToxicityDetector
	logger   *zap.Logger
}

// NewToxicityGuard 创建毒性防护
// classifier 为 nil 时直接使用关键词检测器；否则模型检测器为主，关键词检测器作为唯一回退
func NewToxicityGuard(classifier ToxicityClassifier, timeout time.Duration, logger *zap.Logger) *ToxicityGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &ToxicityGuard{logger: logger.With(zap.String("component", "toxicity_guard"))}
	if classifier == nil {
		g.primary = NewKeywordDetector()
		return g
	}
	g.primary = NewModelDetector(classifier, timeout)
	g.fallback = NewKeywordDetector()
	return g
}

// NewToxicityGuardWithDetectors 使用指定检测器创建毒性防护
func NewToxicityGuardWithDetectors(primary, fallback ToxicityDetector, logger *zap.Logger) *ToxicityGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToxicityGuard{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(zap.String("component", "toxicity_guard")),
	}
}

// DetectorName 返回主检测器名称
func (g *ToxicityGuard) DetectorName() string {
	return g.primary.Name()
}

// Detect 计算毒性分数并应用阈值
// 主检测器失败时使用回退检测器；都失败时返回空分数并标记 Degraded
func (g *ToxicityGuard) Detect(ctx context.Context, text string, threshold float64) *ToxicityResult {
	result := &ToxicityResult{Threshold: threshold, Detector: g.primary.Name()}

	scores, err := g.primary.Scores(ctx, text)
	if err != nil {
		g.logger.Warn("primary toxicity detector failed",
			zap.String("detector", g.primary.Name()),
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		result.Degraded = true
		scores = nil
		if g.fallback != nil {
			result.Detector = g.fallback.Name()
			scores, err = g.fallback.Scores(ctx, text)
			if err != nil {
				g.logger.Error("fallback toxicity detector failed", zap.Error(err))
				scores = nil
			}
		}
	}
	if scores == nil {
		scores = ToxicityScore{}
	}

	result.Scores = scores
	result.MaxCategory, result.MaxScore = scores.Max()
	result.IsToxic = scores.IsToxic(threshold)
	return result
}

// Describe 返回面向日志的简短描述
func (r *ToxicityResult) Describe() string {
	return fmt.Sprintf("%s=%.2f (threshold %.2f, detector %s)", r.MaxCategory, r.MaxScore, r.Threshold, r.Detector)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
