package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/safetycore/guardrails"
	"github.com/BaSui01/safetycore/mood"
)

// ResponseType 调用方应生成的回复类型
type ResponseType string

const (
	ResponseNormal      ResponseType = "normal"
	ResponseEducational ResponseType = "educational"
	ResponseBlocked     ResponseType = "blocked"
)

// Framing 回复的引导方式
type Framing string

const (
	FramingDefault    Framing = "default"
	FramingRedirect   Framing = "redirect"
	FramingSupportive Framing = "supportive"
)

// 拦截原因
const (
	BlockReasonInvalidInput   = "invalid_input"
	BlockReasonMissingSession = "missing_session"
	BlockReasonToxic          = "toxic_content"
	BlockReasonHighRisk       = "high_risk_content"
	BlockReasonPII            = "pii_scrubbing_disabled"
	BlockReasonInternal       = "internal_error"
)

// InboundRequest 输入侧请求，Text 为 nil 表示调用方未提供文本
type InboundRequest struct {
	Text        *string           `json:"text"`
	UserID      string            `json:"user_id"`
	SessionID   string            `json:"session_id"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// GuardrailDecision 输入侧决策
type GuardrailDecision struct {
	DecisionID    string       `json:"decision_id"`
	OriginalText  string       `json:"original_text"`
	ProcessedText string       `json:"processed_text"`
	IsSafe        bool         `json:"is_safe"`
	ShouldBlock   bool         `json:"should_block"`
	ResponseType  ResponseType `json:"response_type"`
	BlockReason   string       `json:"block_reason,omitempty"`
	// UserMessages 面向用户的提示
	UserMessages []string               `json:"user_messages"`
	Violations   []guardrails.Violation `json:"violations"`
	RiskLevel    guardrails.RiskLevel   `json:"risk_level"`
	Mood         mood.Analysis          `json:"mood"`

	PIIDetected         bool                 `json:"pii_detected"`
	PIITypes            []guardrails.PIIType `json:"pii_types"`
	BlockingPIIDetected bool                 `json:"blocking_pii_detected"`

	Toxicity   *guardrails.ToxicityResult   `json:"toxicity,omitempty"`
	Restricted *guardrails.RestrictedResult `json:"restricted,omitempty"`
	Education  *guardrails.Guidance         `json:"education,omitempty"`

	Framing             Framing       `json:"framing"`
	RedirectSuggestions []string      `json:"redirect_suggestions"`
	ProcessingTime      time.Duration `json:"processing_time"`
}

func newDecision(req *InboundRequest) *GuardrailDecision {
	d := &GuardrailDecision{
		DecisionID:          uuid.NewString(),
		IsSafe:              true,
		ResponseType:        ResponseNormal,
		UserMessages:        []string{},
		Violations:          []guardrails.Violation{},
		RiskLevel:           guardrails.RiskLow,
		Mood:                mood.Fallback(),
		PIITypes:            []guardrails.PIIType{},
		Framing:             FramingDefault,
		RedirectSuggestions: []string{},
	}
	if req != nil && req.Text != nil {
		d.OriginalText = *req.Text
		d.ProcessedText = *req.Text
	}
	return d
}

func (d *GuardrailDecision) addViolation(v guardrails.Violation) {
	d.Violations = append(d.Violations, v)
}

func (d *GuardrailDecision) block(reason string, messages ...string) {
	d.ShouldBlock = true
	d.IsSafe = false
	d.ResponseType = ResponseBlocked
	d.BlockReason = reason
	d.UserMessages = append(d.UserMessages, messages...)
}

// failClosed 将决策转为保守的拦截结果
func (d *GuardrailDecision) failClosed() {
	d.addViolation(guardrails.Violation{
		Kind:     guardrails.KindPipelineErr,
		Category: guardrails.CategoryInternal,
		Severity: guardrails.SeverityBlock,
		Message:  "Guardrails processing failed",
	})
	d.ProcessedText = ""
	d.Education = nil
	d.block(BlockReasonInternal, "We couldn't check your message right now. Please try again.")
}

func (d *GuardrailDecision) finalize(start time.Time) {
	d.IsSafe = !d.ShouldBlock
	d.RiskLevel = guardrails.DeriveRiskLevel(d.Violations)
	d.ProcessingTime = time.Since(start)
}
