package guardrails

import (
	"sort"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Category 违规类别，风险等级按不同类别的数量推导
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryToxicity   Category = "toxicity"
	CategoryRestricted Category = "restricted"
	CategoryPII        Category = "pii"
	CategoryProhibited Category = "prohibited"
	CategoryAlignment  Category = "alignment"
	CategoryQuality    Category = "quality"
	CategoryInternal   Category = "internal"
)

// Severity 违规严重级别
type Severity string

const (
	// SeverityBlock 严重违规，触发拦截或回退
	SeverityBlock Severity = "block"
	// SeverityWarn 需要处理但不拦截（如可脱敏的 PII）
	SeverityWarn Severity = "warn"
	// SeverityInfo 仅记录
	SeverityInfo Severity = "info"
)

// Violation kinds
const (
	KindMinLength     = "min_length"
	KindMaxLength     = "max_length"
	KindMinWords      = "min_words"
	KindMaxWords      = "max_words"
	KindMaxLines      = "max_lines"
	KindInvalidChars  = "invalid_chars"
	KindMissingText   = "missing_text"
	KindToxicInput    = "toxic_input"
	KindRestricted    = "restricted_content"
	KindPIIInput      = "pii_detected"
	KindToxicOutput   = "toxic_output"
	KindPIIOutput     = "pii_in_output"
	KindBlockingPII   = "blocking_pii_in_output"
	KindProhibited    = "prohibited_content"
	KindMisalignment  = "potential_misalignment"
	KindTooShort      = "too_short"
	KindTooLong       = "too_long"
	KindRepetitive    = "repetitive"
	KindPunctuation   = "excessive_punctuation"
	KindValidationErr = "output_validation_error"
	KindPipelineErr   = "pipeline_error"
)

// Violation 单条违规记录
type Violation struct {
	Kind     string   `json:"kind"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Observed any      `json:"observed_value,omitempty"`
	Limit    any      `json:"limit,omitempty"`
}

// Serious 报告违规是否属于拦截级别
func (v Violation) Serious() bool {
	return v.Severity == SeverityBlock
}

// DeriveRiskLevel 根据不同违规类别的数量推导风险等级
func DeriveRiskLevel(violations []Violation) RiskLevel {
	switch n := len(Categories(violations)); {
	case n >= 2:
		return RiskHigh
	case n == 1:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Categories 返回违规项涉及的类别（去重、排序）
func Categories(violations []Violation) []Category {
	seen := make(map[Category]struct{}, len(violations))
	for _, v := range violations {
		seen[v.Category] = struct{}{}
	}
	out := make([]Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasSerious 报告是否存在拦截级别的违规
func HasSerious(violations []Violation) bool {
	for _, v := range violations {
		if v.Serious() {
			return true
		}
	}
	return false
}
