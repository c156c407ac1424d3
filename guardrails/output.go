package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// prohibitedPatterns 输出侧禁止内容，类别 -> 正则
var prohibitedPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"violence", regexp.MustCompile(`(?i)\b(?:kill|murder|suicide|harm|violence)\b`)},
	{"illegal_activity", regexp.MustCompile(`(?i)\b(?:hack|crack|pirate|illegal|steal)\b`)},
	{"drugs", regexp.MustCompile(`(?i)\b(?:drug|cocaine|heroin|meth|weed|marijuana)\b`)},
	{"weapons", regexp.MustCompile(`(?i)\b(?:bomb|weapon|gun|knife|explosive)\b`)},
	{"terrorism", regexp.MustCompile(`(?i)\b(?:terrorist|terrorism|attack|threat)\b`)},
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by i you he she it we they
		is are was were be been have has had do does did will would could should may might can
		this that these those`) {
		stopWords[w] = struct{}{}
	}
}

// 置信度扣减
var confidenceReduction = map[Category]float64{
	CategoryToxicity:   0.3,
	CategoryPII:        0.2,
	CategoryProhibited: 0.4,
	CategoryAlignment:  0.1,
	CategoryQuality:    0.05,
}

// OutputGuardConfig 输出防护配置
type OutputGuardConfig struct {
	ToxicityThreshold float64
	MinLength         int
	MaxLength         int
	// AlignmentMinInput 用户输入不超过该长度时跳过相关性检查
	AlignmentMinInput int
	Policy            Policy
	Fallback          FallbackSelector
	AuditLogger       AuditLogger
}

// DefaultOutputGuardConfig 返回默认配置
func DefaultOutputGuardConfig() OutputGuardConfig {
	return OutputGuardConfig{
		ToxicityThreshold: 0.7,
		MinLength:         5,
		MaxLength:         2000,
		AlignmentMinInput: 10,
		Policy:            DefaultPolicy,
	}
}

// OutputValidationResult 输出校验结果
type OutputValidationResult struct {
	IsSafe          bool          `json:"is_safe"`
	Violations      []Violation   `json:"violations"`
	CleanedText     string        `json:"cleaned_response"`
	ConfidenceScore float64       `json:"confidence_score"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	FallbackUsed    bool          `json:"fallback_used"`
	ProcessingTime  time.Duration `json:"processing_time"`
}

// OutputGuard 输出防护
type OutputGuard struct {
	toxicity *ToxicityGuard
	pii      *PIIGuard
	cfg      OutputGuardConfig
	logger   *zap.Logger

	threshold atomicFloat
}

// NewOutputGuard 创建输出防护
func NewOutputGuard(toxicity *ToxicityGuard, pii *PIIGuard, cfg OutputGuardConfig, logger *zap.Logger) *OutputGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOutputGuardConfig()
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	if cfg.AlignmentMinInput <= 0 {
		cfg.AlignmentMinInput = def.AlignmentMinInput
	}
	if cfg.ToxicityThreshold <= 0 {
		cfg.ToxicityThreshold = def.ToxicityThreshold
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy
	}
	if cfg.Fallback == nil {
		cfg.Fallback = NewRandomFallback(nil, time.Now().UnixNano())
	}
	if cfg.AuditLogger == nil {
		cfg.AuditLogger = NewMemoryAuditLogger(1000)
	}
	g := &OutputGuard{
		toxicity: toxicity,
		pii:      pii,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "output_guard")),
	}
	g.threshold.Store(cfg.ToxicityThreshold)
	return g
}

// SetToxicityThreshold 更新毒性阈值
func (g *OutputGuard) SetToxicityThreshold(threshold float64) {
	g.threshold.Store(threshold)
}

// AuditLogger 返回审计日志记录器
func (g *OutputGuard) AuditLogger() AuditLogger {
	return g.cfg.AuditLogger
}

// ValidateResponse 按 毒性 → PII → 禁止内容 → 相关性 → 质量 的顺序校验模型输出
func (g *OutputGuard) ValidateResponse(ctx context.Context, aiText, userText string) (result *OutputValidationResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("output validation panicked", zap.Any("panic", r))
			result = g.failClosed(ctx, aiText, fmt.Sprintf("output validation failed: %v", r))
		}
		result.ProcessingTime = time.Since(start)
	}()

	var violations []Violation
	cleaned := aiText

	// 1. 毒性
	tox := g.toxicity.Detect(ctx, aiText, g.threshold.Load())
	for _, category := range tox.Scores.Above(tox.Threshold) {
		violations = append(violations, Violation{
			Kind:     KindToxicOutput,
			Category: CategoryToxicity,
			Severity: g.cfg.Policy.Severity(Outbound, CategoryToxicity, false),
			Message:  fmt.Sprintf("response scored %.2f for %s", tox.Scores[category], category),
			Observed: tox.Scores[category],
			Limit:    tox.Threshold,
		})
	}

	// 2. PII：总是脱敏，SSN/信用卡为拦截级别
	scrub := g.pii.Scrub(ctx, cleaned)
	for _, t := range scrub.EntityTypes {
		kind := KindPIIOutput
		if t.IsBlocking() {
			kind = KindBlockingPII
		}
		violations = append(violations, Violation{
			Kind:     kind,
			Category: CategoryPII,
			Severity: g.cfg.Policy.Severity(Outbound, CategoryPII, t.IsBlocking()),
			Message:  fmt.Sprintf("response contains %s", t),
			Observed: string(t),
		})
	}
	cleaned = scrub.RedactedText

	if err := ctx.Err(); err != nil {
		return g.failClosed(ctx, aiText, "output validation cancelled: "+err.Error())
	}

	// 3. 禁止内容
	for _, p := range prohibitedPatterns {
		if matches := p.pattern.FindAllString(aiText, -1); len(matches) > 0 {
			violations = append(violations, Violation{
				Kind:     KindProhibited,
				Category: CategoryProhibited,
				Severity: g.cfg.Policy.Severity(Outbound, CategoryProhibited, false),
				Message:  fmt.Sprintf("response contains %s vocabulary", p.name),
				Observed: len(matches),
			})
		}
	}

	// 4. 相关性
	if utf8.RuneCountInString(userText) > g.cfg.AlignmentMinInput && misaligned(userText, aiText) {
		violations = append(violations, Violation{
			Kind:     KindMisalignment,
			Category: CategoryAlignment,
			Severity: g.cfg.Policy.Severity(Outbound, CategoryAlignment, false),
			Message:  "response shares no meaningful words with the user message",
		})
	}

	// 5. 质量
	violations = append(violations, g.qualityViolations(aiText)...)

	result = &OutputValidationResult{
		IsSafe:          !HasSerious(violations),
		Violations:      violations,
		CleanedText:     cleaned,
		ConfidenceScore: confidence(violations),
		RiskLevel:       DeriveRiskLevel(violations),
	}
	if result.Violations == nil {
		result.Violations = []Violation{}
	}

	if !result.IsSafe {
		result.CleanedText = g.cfg.Fallback.Select()
		result.FallbackUsed = true
		g.audit(ctx, AuditEventOutputUnsafe, aiText, result)
		g.logger.Info("unsafe response replaced with fallback",
			zap.Strings("kinds", violationKinds(violations)),
			zap.String("risk_level", string(result.RiskLevel)))
	} else if scrub.HasPII {
		g.audit(ctx, AuditEventOutputScrubbed, aiText, result)
	}
	return result
}

func (g *OutputGuard) qualityViolations(text string) []Violation {
	severity := g.cfg.Policy.Severity(Outbound, CategoryQuality, false)
	quality := func(kind, msg string, observed, limit any) Violation {
		return Violation{Kind: kind, Category: CategoryQuality, Severity: severity, Message: msg, Observed: observed, Limit: limit}
	}

	var out []Violation
	trimmed := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(trimmed); n < g.cfg.MinLength {
		out = append(out, quality(KindTooShort, "response is too short", n, g.cfg.MinLength))
	}
	runes := utf8.RuneCountInString(text)
	if runes > g.cfg.MaxLength {
		out = append(out, quality(KindTooLong, "response is too long", runes, g.cfg.MaxLength))
	}
	words := strings.Fields(text)
	if word, ratio := dominantWord(words); len(words) > 10 && ratio > 0.3 {
		out = append(out, quality(KindRepetitive, fmt.Sprintf("word %q makes up %.0f%% of the response", word, ratio*100), ratio, 0.3))
	}
	if runes > 0 {
		if ratio := float64(strings.Count(text, "!")) / float64(runes); ratio > 0.1 {
			out = append(out, quality(KindPunctuation, "response has excessive exclamation marks", ratio, 0.1))
		}
	}
	return out
}

// failClosed 内部错误时返回保守结果
func (g *OutputGuard) failClosed(ctx context.Context, aiText, msg string) *OutputValidationResult {
	violations := []Violation{{
		Kind:     KindValidationErr,
		Category: CategoryInternal,
		Severity: SeverityBlock,
		Message:  msg,
	}}
	result := &OutputValidationResult{
		IsSafe:       false,
		Violations:   violations,
		CleanedText:  g.cfg.Fallback.Select(),
		RiskLevel:    RiskHigh,
		FallbackUsed: true,
	}
	g.audit(context.WithoutCancel(ctx), AuditEventOutputError, aiText, result)
	return result
}

func (g *OutputGuard) audit(ctx context.Context, event AuditEventType, content string, result *OutputValidationResult) {
	entry := &AuditLogEntry{
		Timestamp:   time.Now(),
		EventType:   event,
		ContentHash: hashContent(content),
		Kinds:       violationKinds(result.Violations),
		RiskLevel:   result.RiskLevel,
	}
	if err := g.cfg.AuditLogger.Log(ctx, entry); err != nil {
		g.logger.Warn("failed to write audit entry", zap.Error(err))
	}
}

// misaligned 去除停用词后双方都超过 3 个词且没有交集
func misaligned(userText, aiText string) bool {
	user := meaningfulWords(userText)
	ai := meaningfulWords(aiText)
	if len(user) <= 3 || len(ai) <= 3 {
		return false
	}
	for w := range ai {
		if _, ok := user[w]; ok {
			return false
		}
	}
	return true
}

func meaningfulWords(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w == "" {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func confidence(violations []Violation) float64 {
	score := 1.0
	for _, v := range violations {
		score -= confidenceReduction[v.Category]
	}
	return clamp01(score)
}

func violationKinds(violations []Violation) []string {
	kinds := make([]string, 0, len(violations))
	for _, v := range violations {
		kinds = append(kinds, v.Kind)
	}
	return kinds
}
