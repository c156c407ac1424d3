package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/safetycore/types"
)

// DefaultAllowedChars 默认允许的字符集（ASCII 字母、数字、空白与常用标点）
const DefaultAllowedChars = `^[a-zA-Z0-9\s.,!?@#$%^&*()_+\-=\[\]{}|;:"'<>/~` + "`" + `]*$`

// InputRules 输入结构规则
type InputRules struct {
	MinLength    int    `yaml:"min_length" env:"MIN_LENGTH" json:"min_length"`
	MaxLength    int    `yaml:"max_length" env:"MAX_LENGTH" json:"max_length"`
	MinWords     int    `yaml:"min_words" env:"MIN_WORDS" json:"min_words"`
	MaxWords     int    `yaml:"max_words" env:"MAX_WORDS" json:"max_words"`
	MaxLines     int    `yaml:"max_lines" env:"MAX_LINES" json:"max_lines"`
	AllowedChars string `yaml:"allowed_chars" env:"ALLOWED_CHARS" json:"allowed_chars"`
}

// DefaultInputRules 返回默认输入规则
func DefaultInputRules() InputRules {
	return InputRules{
		MinLength:    1,
		MaxLength:    2000,
		MinWords:     1,
		MaxWords:     300,
		MaxLines:     20,
		AllowedChars: DefaultAllowedChars,
	}
}

// InputValidation 输入校验结果
type InputValidation struct {
	IsValid    bool        `json:"is_valid"`
	Violations []Violation `json:"violations"`
	Length     int         `json:"length"`
	WordCount  int         `json:"word_count"`
	LineCount  int         `json:"line_count"`
}

// Messages 返回面向用户的违规提示
func (r *InputValidation) Messages() []string {
	msgs := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		msgs = append(msgs, v.Message)
	}
	return msgs
}

// InputValidator 输入结构校验器
// 所有规则都会执行，调用方需要完整的违规集合来生成提示
type InputValidator struct {
	rules   InputRules
	allowed *regexp.Regexp
}

// NewInputValidator 创建输入校验器
func NewInputValidator(rules InputRules) (*InputValidator, error) {
	if rules.AllowedChars == "" {
		rules.AllowedChars = DefaultAllowedChars
	}
	allowed, err := regexp.Compile(rules.AllowedChars)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed_chars pattern: %w", err)
	}
	if rules.MaxLength > 0 && rules.MinLength > rules.MaxLength {
		return nil, fmt.Errorf("min_length %d exceeds max_length %d", rules.MinLength, rules.MaxLength)
	}
	if rules.MaxWords > 0 && rules.MinWords > rules.MaxWords {
		return nil, fmt.Errorf("min_words %d exceeds max_words %d", rules.MinWords, rules.MaxWords)
	}
	return &InputValidator{rules: rules, allowed: allowed}, nil
}

// Rules 返回当前规则
func (v *InputValidator) Rules() InputRules {
	return v.rules
}

// Validate 校验输入文本
// text 为 nil 表示调用方未提供文本，立即返回 ErrInvalidInput
func (v *InputValidator) Validate(text *string) (*InputValidation, error) {
	if text == nil {
		return nil, types.NewError(types.ErrInvalidInput, "text is required").WithComponent("input_validator")
	}
	s := *text

	result := &InputValidation{
		Length:    utf8.RuneCountInString(s),
		WordCount: len(strings.Fields(s)),
		LineCount: strings.Count(s, "\n") + 1,
	}

	if result.Length < v.rules.MinLength {
		result.Violations = append(result.Violations, validationViolation(KindMinLength,
			fmt.Sprintf("Message too short (minimum %d characters)", v.rules.MinLength),
			result.Length, v.rules.MinLength))
	}
	if v.rules.MaxLength > 0 && result.Length > v.rules.MaxLength {
		result.Violations = append(result.Violations, validationViolation(KindMaxLength,
			fmt.Sprintf("Message too long (maximum %d characters)", v.rules.MaxLength),
			result.Length, v.rules.MaxLength))
	}
	if result.WordCount < v.rules.MinWords {
		result.Violations = append(result.Violations, validationViolation(KindMinWords,
			fmt.Sprintf("Message needs at least %d words", v.rules.MinWords),
			result.WordCount, v.rules.MinWords))
	}
	if v.rules.MaxWords > 0 && result.WordCount > v.rules.MaxWords {
		result.Violations = append(result.Violations, validationViolation(KindMaxWords,
			fmt.Sprintf("Message has too many words (maximum %d)", v.rules.MaxWords),
			result.WordCount, v.rules.MaxWords))
	}
	if v.rules.MaxLines > 0 && result.LineCount > v.rules.MaxLines {
		result.Violations = append(result.Violations, validationViolation(KindMaxLines,
			fmt.Sprintf("Message has too many lines (maximum %d)", v.rules.MaxLines),
			result.LineCount, v.rules.MaxLines))
	}
	if !v.allowed.MatchString(s) {
		result.Violations = append(result.Violations, validationViolation(KindInvalidChars,
			"Message contains characters that are not allowed",
			countDisallowed(s, v.allowed), 0))
	}

	result.IsValid = len(result.Violations) == 0
	return result, nil
}

func validationViolation(kind, message string, observed, limit int) Violation {
	return Violation{
		Kind:     kind,
		Category: CategoryValidation,
		Severity: SeverityBlock,
		Message:  message,
		Observed: observed,
		Limit:    limit,
	}
}

// countDisallowed 统计不在允许字符集中的字符数量
func countDisallowed(s string, allowed *regexp.Regexp) int {
	n := 0
	for _, r := range s {
		if !allowed.MatchString(string(r)) {
			n++
		}
	}
	return n
}
