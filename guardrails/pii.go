package guardrails

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/types"
)

// PIIType PII 类型
type PIIType string

const (
	PIIEmail         PIIType = "EMAIL"
	PIIPhone         PIIType = "PHONE"
	PIISSN           PIIType = "SSN"
	PIICreditCard    PIIType = "CREDIT_CARD"
	PIIIPAddress     PIIType = "IP_ADDRESS"
	PIIAddress       PIIType = "ADDRESS"
	PIIPerson        PIIType = "PERSON"
	PIILocation      PIIType = "LOCATION"
	PIIBankNumber    PIIType = "BANK_NUMBER"
	PIIDriverLicense PIIType = "DRIVER_LICENSE"
	PIIURL           PIIType = "URL"
)

var placeholders = map[PIIType]string{
	PIIEmail:         "[EMAIL_REDACTED]",
	PIIPhone:         "[PHONE_REDACTED]",
	PIISSN:           "[SSN_REDACTED]",
	PIICreditCard:    "[CARD_REDACTED]",
	PIIIPAddress:     "[IP_REDACTED]",
	PIIAddress:       "[ADDRESS_REDACTED]",
	PIIPerson:        "[NAME_REDACTED]",
	PIILocation:      "[LOCATION_REDACTED]",
	PIIBankNumber:    "[BANK_REDACTED]",
	PIIDriverLicense: "[LICENSE_REDACTED]",
	PIIURL:           "[URL_REDACTED]",
}

// specificity 数值越小越具体，用于重叠区间置信度相同时的裁决
var specificity = map[PIIType]int{
	PIISSN:           0,
	PIICreditCard:    1,
	PIIBankNumber:    2,
	PIIEmail:         3,
	PIIIPAddress:     4,
	PIIPhone:         5,
	PIIDriverLicense: 6,
	PIIAddress:       7,
	PIIURL:           8,
	PIIPerson:        9,
	PIILocation:      10,
}

// placeholderPattern 匹配已脱敏的占位符，落在其中的实体会被忽略
var placeholderPattern = regexp.MustCompile(`\[[A-Z_]*REDACTED\]`)

// Placeholder 返回类型对应的占位符
func Placeholder(t PIIType) string {
	if p, ok := placeholders[t]; ok {
		return p
	}
	return "[REDACTED]"
}

// IsBlocking 报告该类型是否属于拦截级别
func (t PIIType) IsBlocking() bool {
	return t == PIISSN || t == PIICreditCard
}

func rank(t PIIType) int {
	if r, ok := specificity[t]; ok {
		return r
	}
	return len(specificity)
}

// PIIEntity 检测到的实体，Start/End 为字节偏移 [Start, End)
type PIIEntity struct {
	Type       PIIType `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"-"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// PIIEntityRecognizer 通用实体识别服务
type PIIEntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]PIIEntity, error)
}

// PIIScrubResult 脱敏结果
type PIIScrubResult struct {
	HasPII       bool        `json:"has_pii"`
	EntityTypes  []PIIType   `json:"entity_types"`
	RedactedText string      `json:"redacted_text"`
	EntityCount  int         `json:"entity_count"`
	Entities     []PIIEntity `json:"entities,omitempty"`
	Blocking     bool        `json:"blocking"`
	Degraded     bool        `json:"degraded"`
}

// BlockingTypes 返回命中的拦截级别类型
func (r *PIIScrubResult) BlockingTypes() []PIIType {
	var out []PIIType
	for _, t := range r.EntityTypes {
		if t.IsBlocking() {
			out = append(out, t)
		}
	}
	return out
}

type piiMatcher struct {
	typ        PIIType
	pattern    *regexp.Regexp
	confidence float64
}

// addressPattern 门牌号 + 1~4 个首字母大写的街名词（或 5th 之类序数）+ 街道后缀，
// 只允许空格与制表符分隔，不跨行
var addressPattern = regexp.MustCompile(
	`\b\d{1,6}[ \t]+(?:(?:[A-Z][A-Za-z'.-]*|\d+(?:st|nd|rd|th))[ \t]+){1,4}` +
		`(?i:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd)\b`)

// defaultMatchers 每个模式都以单词边界或非单词字符开头、以单词边界结尾，
// 替换为占位符后不会在相邻文本中产生新的匹配
func defaultMatchers() []piiMatcher {
	return []piiMatcher{
		{PIIEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), 1.0},
		{PIISSN, regexp.MustCompile(`\b\d{3}[- ]?\d{2}[- ]?\d{4}\b`), 1.0},
		{PIICreditCard, regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`), 1.0},
		{PIIPhone, regexp.MustCompile(`(?:\+?\b1[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`), 1.0},
		{PIIIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), 1.0},
		{PIIAddress, addressPattern, 0.85},
	}
}

// PIIGuardConfig PII 防护配置
type PIIGuardConfig struct {
	// Threshold 识别服务结果的最低置信度
	Threshold float64
	// RecognizerTimeout 识别服务调用超时
	RecognizerTimeout time.Duration
}

// DefaultPIIGuardConfig 返回默认配置
func DefaultPIIGuardConfig() PIIGuardConfig {
	return PIIGuardConfig{
		Threshold:         0.5,
		RecognizerTimeout: 3 * time.Second,
	}
}

// PIIGuard PII 检测与脱敏
type PIIGuard struct {
	matchers   []piiMatcher
	recognizer PIIEntityRecognizer
	timeout    time.Duration
	logger     *zap.Logger

	mu        sync.RWMutex
	threshold float64
}

// NewPIIGuard 创建 PII 防护，recognizer 可为 nil（仅正则）
func NewPIIGuard(cfg PIIGuardConfig, recognizer PIIEntityRecognizer, logger *zap.Logger) *PIIGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecognizerTimeout <= 0 {
		cfg.RecognizerTimeout = DefaultPIIGuardConfig().RecognizerTimeout
	}
	return &PIIGuard{
		matchers:   defaultMatchers(),
		recognizer: recognizer,
		timeout:    cfg.RecognizerTimeout,
		threshold:  cfg.Threshold,
		logger:     logger.With(zap.String("component", "pii_guard")),
	}
}

// SetThreshold 更新识别服务置信度阈值
func (g *PIIGuard) SetThreshold(threshold float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = threshold
}

// Threshold 返回当前阈值
func (g *PIIGuard) Threshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// Detect 返回合并后互不重叠的实体，按起始偏移排序
func (g *PIIGuard) Detect(ctx context.Context, text string) []PIIEntity {
	entities, _ := g.detect(ctx, text)
	return entities
}

// Scrub 检测并替换为占位符
func (g *PIIGuard) Scrub(ctx context.Context, text string) *PIIScrubResult {
	entities, degraded := g.detect(ctx, text)

	result := &PIIScrubResult{
		HasPII:       len(entities) > 0,
		RedactedText: text,
		EntityCount:  len(entities),
		Entities:     entities,
		Degraded:     degraded,
		EntityTypes:  []PIIType{},
	}
	if len(entities) == 0 {
		return result
	}

	var b strings.Builder
	b.Grow(len(text))
	// 实体已排序且不重叠，从右向左替换与顺序拼接等价
	cursor := 0
	seen := map[PIIType]bool{}
	for _, e := range entities {
		b.WriteString(text[cursor:e.Start])
		b.WriteString(Placeholder(e.Type))
		cursor = e.End
		if !seen[e.Type] {
			seen[e.Type] = true
			result.EntityTypes = append(result.EntityTypes, e.Type)
		}
		if e.Type.IsBlocking() {
			result.Blocking = true
		}
	}
	b.WriteString(text[cursor:])
	result.RedactedText = b.String()
	sort.Slice(result.EntityTypes, func(i, j int) bool { return result.EntityTypes[i] < result.EntityTypes[j] })
	return result
}

func (g *PIIGuard) detect(ctx context.Context, text string) ([]PIIEntity, bool) {
	var entities []PIIEntity
	for _, m := range g.matchers {
		for _, loc := range m.pattern.FindAllStringIndex(text, -1) {
			entities = append(entities, PIIEntity{
				Type:       m.typ,
				Start:      loc[0],
				End:        loc[1],
				Confidence: m.confidence,
				Source:     "pattern",
			})
		}
	}

	degraded := false
	if g.recognizer != nil {
		recognized, err := g.recognize(ctx, text)
		if err != nil {
			degraded = true
			g.logger.Warn("pii recognizer unavailable, using pattern matchers only",
				zap.String("code", string(types.GetErrorCode(err))),
				zap.Error(err))
		} else {
			threshold := g.Threshold()
			for _, e := range recognized {
				if e.Confidence < threshold || !validSpan(text, e.Start, e.End) {
					continue
				}
				if e.Source == "" {
					e.Source = "recognizer"
				}
				entities = append(entities, e)
			}
		}
	}

	entities = dropInsidePlaceholders(text, entities)
	entities = g.resolveOverlaps(entities)
	for i := range entities {
		entities[i].Text = text[entities[i].Start:entities[i].End]
	}
	return entities, degraded
}

func (g *PIIGuard) recognize(ctx context.Context, text string) ([]PIIEntity, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	entities, err := g.recognizer.Recognize(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrExternalServiceTimeout, "pii recognizer timed out").
				WithCause(err).WithComponent("pii")
		}
		return nil, types.NewError(types.ErrDetectorUnavailable, "pii recognizer unavailable").
			WithCause(err).WithComponent("pii")
	}
	return entities, nil
}

// resolveOverlaps 合并重叠区间：取并集，类型按 置信度 > 具体程度 > 区间长度 > 名称 裁决
func (g *PIIGuard) resolveOverlaps(entities []PIIEntity) []PIIEntity {
	if len(entities) == 0 {
		return nil
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].End > entities[j].End
	})

	out := make([]PIIEntity, 0, len(entities))
	cur := entities[0]
	for _, e := range entities[1:] {
		if e.Start >= cur.End {
			out = append(out, cur)
			cur = e
			continue
		}
		if e.Type != cur.Type && e.Confidence == cur.Confidence && rank(e.Type) == rank(cur.Type) {
			g.logger.Debug("overlapping pii spans tied, resolved by type name",
				zap.String("code", string(types.ErrMergeConflict)),
				zap.String("a", string(cur.Type)),
				zap.String("b", string(e.Type)))
		}
		start, end := cur.Start, max(cur.End, e.End)
		cur = preferEntity(cur, e)
		cur.Start, cur.End = start, end
	}
	return append(out, cur)
}

func preferEntity(a, b PIIEntity) PIIEntity {
	switch {
	case a.Confidence != b.Confidence:
		if a.Confidence > b.Confidence {
			return a
		}
		return b
	case rank(a.Type) != rank(b.Type):
		if rank(a.Type) < rank(b.Type) {
			return a
		}
		return b
	case a.End-a.Start != b.End-b.Start:
		if a.End-a.Start > b.End-b.Start {
			return a
		}
		return b
	case a.Type <= b.Type:
		return a
	default:
		return b
	}
}

func dropInsidePlaceholders(text string, entities []PIIEntity) []PIIEntity {
	spans := placeholderPattern.FindAllStringIndex(text, -1)
	if len(spans) == 0 {
		return entities
	}
	kept := entities[:0]
	for _, e := range entities {
		overlaps := false
		for _, s := range spans {
			if e.Start < s[1] && s[0] < e.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, e)
		}
	}
	return kept
}

func validSpan(text string, start, end int) bool {
	if start < 0 || end > len(text) || start >= end {
		return false
	}
	return utf8.RuneStart(text[start]) && (end == len(text) || utf8.RuneStart(text[end]))
}
