package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/conversation"
	"github.com/BaSui01/safetycore/guardrails"
	"github.com/BaSui01/safetycore/mood"
	"github.com/BaSui01/safetycore/types"
)

// Dependencies 流水线组件，未提供的组件使用本地默认实现
type Dependencies struct {
	Validator  *guardrails.InputValidator
	Toxicity   *guardrails.ToxicityGuard
	Restricted *guardrails.RestrictedChecker
	PII        *guardrails.PIIGuard
	Output     *guardrails.OutputGuard
	Mood       *mood.Analyzer
	Sessions   *conversation.Manager
	Policy     guardrails.Policy
	Metrics    MetricsRecorder
}

// Orchestrator 防护流水线编排器
type Orchestrator struct {
	validator  *guardrails.InputValidator
	toxicity   *guardrails.ToxicityGuard
	restricted *guardrails.RestrictedChecker
	pii        *guardrails.PIIGuard
	output     *guardrails.OutputGuard
	mood       *mood.Analyzer
	sessions   *conversation.Manager
	policy     guardrails.Policy
	metrics    MetricsRecorder
	ins        *instruments
	logger     *zap.Logger

	mu  sync.RWMutex
	cfg RuntimeConfig
}

// New 创建编排器
func New(deps Dependencies, cfg RuntimeConfig, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if deps.Validator == nil {
		v, err := guardrails.NewInputValidator(guardrails.DefaultInputRules())
		if err != nil {
			return nil, fmt.Errorf("default input validator: %w", err)
		}
		deps.Validator = v
	}
	if deps.Toxicity == nil {
		deps.Toxicity = guardrails.NewToxicityGuard(nil, 0, logger)
	}
	if deps.Restricted == nil {
		deps.Restricted = guardrails.NewRestrictedChecker(nil)
	}
	if deps.PII == nil {
		deps.PII = guardrails.NewPIIGuard(guardrails.DefaultPIIGuardConfig(), nil, logger)
	}
	if deps.Output == nil {
		deps.Output = guardrails.NewOutputGuard(deps.Toxicity, deps.PII, guardrails.DefaultOutputGuardConfig(), logger)
	}
	if deps.Mood == nil {
		deps.Mood = mood.NewAnalyzer(nil, nil, mood.DefaultConfig(), logger)
	}
	if deps.Sessions == nil {
		deps.Sessions = conversation.NewManager(conversation.DefaultManagerConfig(), logger)
	}
	if deps.Policy == nil {
		deps.Policy = guardrails.DefaultPolicy
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}

	ins, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}

	o := &Orchestrator{
		validator:  deps.Validator,
		toxicity:   deps.Toxicity,
		restricted: deps.Restricted,
		pii:        deps.PII,
		output:     deps.Output,
		mood:       deps.Mood,
		sessions:   deps.Sessions,
		policy:     deps.Policy,
		metrics:    deps.Metrics,
		ins:        ins,
		logger:     logger.With(zap.String("component", "orchestrator")),
	}
	o.setConfigLocked(cfg)
	return o, nil
}

// Sessions 返回会话管理器
func (o *Orchestrator) Sessions() *conversation.Manager {
	return o.sessions
}

// =============================================================================
// 📥 输入流水线
// =============================================================================

// ProcessInboundMessage 处理一条用户消息
// 缺少 session_id 或文本时返回拦截决策与 *types.Error；内部 panic 转为拦截决策，不返回错误
func (o *Orchestrator) ProcessInboundMessage(ctx context.Context, req *InboundRequest) (decision *GuardrailDecision, err error) {
	start := time.Now()
	ctx, span := o.ins.tracer.Start(ctx, "guardrails.inbound")
	defer span.End()

	decision = newDecision(req)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("inbound pipeline panic recovered",
				zap.Any("panic", r),
				zap.String("decision_id", decision.DecisionID))
			span.SetStatus(codes.Error, "panic recovered")
			decision.failClosed()
			err = nil
		}
		decision.finalize(start)
		o.recordInbound(ctx, span, decision)
	}()

	if req == nil || strings.TrimSpace(req.SessionID) == "" {
		decision.block(BlockReasonMissingSession, "A session is required to process messages.")
		err = types.NewError(types.ErrMissingSession, "session_id is required").WithComponent("orchestrator")
		span.RecordError(err)
		return decision, err
	}
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	if req.Text == nil {
		decision.addViolation(guardrails.Violation{
			Kind:     guardrails.KindMissingText,
			Category: guardrails.CategoryValidation,
			Severity: guardrails.SeverityBlock,
			Message:  "Message text is required",
		})
		decision.block(BlockReasonInvalidInput, "Message text is required")
		_, err = o.validator.Validate(nil)
		span.RecordError(err)
		return decision, err
	}

	o.processInbound(ctx, req, decision)
	return decision, nil
}

func (o *Orchestrator) processInbound(ctx context.Context, req *InboundRequest, d *GuardrailDecision) {
	cfg := o.Config()
	text := *req.Text

	// 1. 结构校验，失败时不再执行后续检查
	if cfg.EnableInputValidation {
		validation, err := o.validator.Validate(req.Text)
		if err != nil {
			d.block(BlockReasonInvalidInput, "Message text is required")
			return
		}
		if !validation.IsValid {
			for _, v := range validation.Violations {
				d.addViolation(v)
			}
			if o.policy.Outcome(guardrails.Inbound, guardrails.CategoryValidation, false) == guardrails.OutcomeBlock {
				d.block(BlockReasonInvalidInput, validation.Messages()...)
				o.finishBlocked(req, d)
				return
			}
		}
	}

	// 2. 毒性
	if cfg.EnableToxicityDetection {
		tox := o.toxicity.Detect(ctx, text, cfg.ToxicityThreshold)
		d.Toxicity = tox
		if tox.Degraded {
			o.metrics.RecordDegradation("toxicity")
		}
		if tox.IsToxic {
			d.addViolation(guardrails.Violation{
				Kind:     guardrails.KindToxicInput,
				Category: guardrails.CategoryToxicity,
				Severity: o.policy.Severity(guardrails.Inbound, guardrails.CategoryToxicity, false),
				Message:  fmt.Sprintf("Message contains toxic content (%s)", tox.MaxCategory),
				Observed: tox.MaxScore,
				Limit:    cfg.ToxicityThreshold,
			})
			if o.policy.Outcome(guardrails.Inbound, guardrails.CategoryToxicity, false) == guardrails.OutcomeBlock {
				d.block(BlockReasonToxic, "Your message contains language we can't respond to. Let's keep things kind.")
				o.finishBlocked(req, d)
				return
			}
		}
	}

	// 3. 受限内容：默认只做教育引导
	restricted := o.restricted.Check(text)
	d.Restricted = restricted
	if restricted.HasRestricted {
		d.addViolation(guardrails.Violation{
			Kind:     guardrails.KindRestricted,
			Category: guardrails.CategoryRestricted,
			Severity: o.policy.Severity(guardrails.Inbound, guardrails.CategoryRestricted, false),
			Message:  "Message contains restricted content or spam patterns",
			Observed: len(restricted.Keywords) + len(restricted.SpamSignals),
		})
		if o.policy.Outcome(guardrails.Inbound, guardrails.CategoryRestricted, false) == guardrails.OutcomeEducate {
			guidance := guardrails.GuidanceFor(restricted.Category)
			d.Education = &guidance
			d.ResponseType = ResponseEducational
		}
	}

	// 4. PII
	scrub := o.pii.Scrub(ctx, text)
	if scrub.Degraded {
		o.metrics.RecordDegradation("pii")
	}
	d.PIIDetected = scrub.HasPII
	d.PIITypes = scrub.EntityTypes
	d.BlockingPIIDetected = scrub.Blocking
	if scrub.HasPII {
		d.addViolation(guardrails.Violation{
			Kind:     guardrails.KindPIIInput,
			Category: guardrails.CategoryPII,
			Severity: o.policy.Severity(guardrails.Inbound, guardrails.CategoryPII, scrub.Blocking),
			Message:  "PII detected: " + joinTypes(scrub.EntityTypes),
			Observed: scrub.EntityCount,
		})
		if !cfg.EnablePIIScrubbing {
			d.block(BlockReasonPII, "Message contains personal information and scrubbing is disabled")
			o.finishBlocked(req, d)
			return
		}
		d.ProcessedText = scrub.RedactedText
		d.UserMessages = append(d.UserMessages, "Personal information was removed from your message: "+joinTypes(scrub.EntityTypes))
	}

	// 汇总风险为 HIGH 且包含拦截级别违规时才拦截；受限内容本身只会是 warn
	if cfg.BlockOnHighRisk && guardrails.DeriveRiskLevel(d.Violations) == guardrails.RiskHigh && guardrails.HasSerious(d.Violations) {
		d.Education = nil
		d.block(BlockReasonHighRisk, "Message was flagged by several safety checks")
		o.finishBlocked(req, d)
		return
	}

	// 5. 情绪分析（脱敏后的文本）
	var history []mood.Turn
	if sess, ok := o.sessions.Peek(req.SessionID); ok {
		history = sess.Turns(0)
	}
	analysis := o.mood.Analyze(ctx, d.ProcessedText, history)
	d.Mood = analysis
	o.metrics.RecordMoodAnalysis(analysis.Source, analysis.SupportNeeded)

	// 请求已取消时不写入会话
	if ctx.Err() != nil {
		o.logger.Warn("request cancelled before context update",
			zap.String("decision_id", d.DecisionID),
			zap.Error(ctx.Err()))
		if analysis.SupportNeeded {
			d.Framing = FramingSupportive
		}
		return
	}

	// 6. 会话上下文
	entry := conversation.Entry{
		Message:    conversation.Message{Role: "user", Content: d.ProcessedText},
		Mood:       analysis.Mood,
		Confidence: analysis.Confidence,
		Topics:     conversation.ExtractTopics(d.ProcessedText),
	}
	if d.Education != nil {
		entry.Education = &conversation.EducationalTopic{Topic: d.Education.Category, Content: d.Education.Message}
	}
	sess := o.sessions.Record(req.UserID, req.SessionID, req.Preferences, entry)
	o.metrics.SetActiveSessions(o.sessions.Len())

	// 7. 引导方式
	switch {
	case analysis.SupportNeeded:
		d.Framing = FramingSupportive
	case sess.ShouldRedirect():
		d.Framing = FramingRedirect
		d.RedirectSuggestions = sess.RedirectSuggestions()
	}
}

// finishBlocked 拦截路径只做本地危机扫描；会话已存在时附带引导建议
func (o *Orchestrator) finishBlocked(req *InboundRequest, d *GuardrailDecision) {
	d.Mood = mood.Screen(*req.Text)
	if sess, ok := o.sessions.Peek(req.SessionID); ok {
		d.RedirectSuggestions = sess.RedirectSuggestions()
		d.Framing = FramingRedirect
	}
	if d.Mood.SupportNeeded {
		d.Framing = FramingSupportive
	}
}

func (o *Orchestrator) recordInbound(ctx context.Context, span trace.Span, d *GuardrailDecision) {
	o.metrics.RecordInboundDecision(string(d.ResponseType), string(d.RiskLevel), d.ProcessingTime)
	for _, v := range d.Violations {
		o.metrics.RecordViolation(string(guardrails.Inbound), string(v.Category), v.Kind)
	}
	o.ins.recordInbound(ctx, span, d)

	o.logger.Info("inbound message processed",
		zap.String("decision_id", d.DecisionID),
		zap.String("response_type", string(d.ResponseType)),
		zap.String("risk_level", string(d.RiskLevel)),
		zap.String("framing", string(d.Framing)),
		zap.Int("violations", len(d.Violations)),
		zap.Int("text_length", len(d.OriginalText)),
		zap.Duration("duration", d.ProcessingTime))
}

// =============================================================================
// 📤 输出流水线
// =============================================================================

// ValidateOutboundResponse 校验模型回复，不安全时替换为安全回复
func (o *Orchestrator) ValidateOutboundResponse(ctx context.Context, aiText, userText string) *guardrails.OutputValidationResult {
	ctx, span := o.ins.tracer.Start(ctx, "guardrails.outbound")
	defer span.End()

	result := o.output.ValidateResponse(ctx, aiText, userText)

	o.metrics.RecordOutboundValidation(result.IsSafe, result.FallbackUsed, string(result.RiskLevel), result.ProcessingTime)
	for _, v := range result.Violations {
		o.metrics.RecordViolation(string(guardrails.Outbound), string(v.Category), v.Kind)
	}
	o.ins.recordOutbound(ctx, span, result)

	o.logger.Info("outbound response validated",
		zap.Bool("safe", result.IsSafe),
		zap.Bool("fallback_used", result.FallbackUsed),
		zap.String("risk_level", string(result.RiskLevel)),
		zap.Int("violations", len(result.Violations)),
		zap.Duration("duration", result.ProcessingTime))
	return result
}

// =============================================================================
// ⚙️ 运行时配置
// =============================================================================

// Config 返回当前运行时配置
func (o *Orchestrator) Config() RuntimeConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// GetConfig 以配置键返回当前运行时配置
func (o *Orchestrator) GetConfig() map[string]any {
	return o.Config().ToMap()
}

// UpdateConfig 原子地应用配置更新，任一项无效时不做任何修改
func (o *Orchestrator) UpdateConfig(updates map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	next, err := o.cfg.Merge(updates)
	if err != nil {
		o.logger.Warn("config update rejected", zap.Error(err))
		return err
	}
	o.setConfigLocked(next)
	o.logger.Info("config updated", zap.Any("config", next.ToMap()))
	return nil
}

// setConfigLocked 同步阈值到 PII 与输出防护
func (o *Orchestrator) setConfigLocked(cfg RuntimeConfig) {
	o.cfg = cfg
	o.pii.SetThreshold(cfg.PIIThreshold)
	o.output.SetToxicityThreshold(cfg.ToxicityThreshold)
}

func joinTypes(ts []guardrails.PIIType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
