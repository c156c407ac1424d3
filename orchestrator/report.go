package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/safetycore/guardrails"
)

// SafetyReport 只读的安全分析报告
type SafetyReport struct {
	MessageLength int       `json:"message_length"`
	WordCount     int       `json:"word_count"`
	AnalyzedAt    time.Time `json:"analysis_timestamp"`
	Checks        Checks    `json:"safety_checks"`
	Overall       Overall   `json:"overall_safety"`
	// Errors 失败的检查，非空时 Overall.IsSafe 为 false
	Errors []string `json:"errors,omitempty"`
}

// Checks 各项检查结果
type Checks struct {
	Toxicity   *guardrails.ToxicityResult   `json:"toxicity,omitempty"`
	PII        *guardrails.PIIScrubResult   `json:"pii,omitempty"`
	Restricted *guardrails.RestrictedResult `json:"content,omitempty"`
	Validation *guardrails.InputValidation  `json:"validation,omitempty"`
}

// Overall 总体结论
type Overall struct {
	IsSafe          bool                 `json:"is_safe"`
	RiskLevel       guardrails.RiskLevel `json:"risk_level"`
	Recommendations []string             `json:"recommendations"`
}

// 报告建议
const (
	RecommendToxic      = "Message contains toxic content"
	RecommendInvalid    = "Message violates input rules"
	RecommendRestricted = "Message contains restricted content"
	RecommendPII        = "Message contains PII"
	RecommendIncomplete = "Safety analysis incomplete"
)

// GetSafetyReport 并发执行毒性、PII、受限内容与结构检查，不修改任何会话
func (o *Orchestrator) GetSafetyReport(ctx context.Context, text string) *SafetyReport {
	ctx, span := o.ins.tracer.Start(ctx, "guardrails.report")
	defer span.End()

	cfg := o.Config()
	report := &SafetyReport{
		MessageLength: utf8.RuneCountInString(text),
		WordCount:     len(strings.Fields(text)),
		AnalyzedAt:    time.Now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)
	run := func(name string, fn func() error) {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s check panicked: %v", name, r)
				}
			}()
			if ferr := fn(); ferr != nil {
				return fmt.Errorf("%s check failed: %w", name, ferr)
			}
			return nil
		})
	}

	run("toxicity", func() error {
		report.Checks.Toxicity = o.toxicity.Detect(gctx, text, cfg.ToxicityThreshold)
		return nil
	})
	run("pii", func() error {
		report.Checks.PII = o.pii.Scrub(gctx, text)
		return nil
	})
	run("content", func() error {
		report.Checks.Restricted = o.restricted.Check(text)
		return nil
	})
	run("validation", func() error {
		v, err := o.validator.Validate(&text)
		report.Checks.Validation = v
		return err
	})

	if err := g.Wait(); err != nil {
		o.logger.Error("safety report check failed", zap.Error(err))
		span.RecordError(err)
		report.Errors = append(report.Errors, err.Error())
	}

	report.Overall = assess(report)
	span.SetAttributes(
		attribute.Bool("safe", report.Overall.IsSafe),
		attribute.String("risk_level", string(report.Overall.RiskLevel)))
	return report
}

// assess 汇总结论；缺失的检查视为不安全
func assess(r *SafetyReport) Overall {
	out := Overall{Recommendations: []string{}}
	var violations []guardrails.Violation
	complete := len(r.Errors) == 0

	toxic, invalid, restricted := false, false, false
	if t := r.Checks.Toxicity; t != nil && t.IsToxic {
		toxic = true
		out.Recommendations = append(out.Recommendations, RecommendToxic)
		violations = append(violations, guardrails.Violation{Kind: guardrails.KindToxicInput, Category: guardrails.CategoryToxicity})
	}
	if v := r.Checks.Validation; v != nil && !v.IsValid {
		invalid = true
		out.Recommendations = append(out.Recommendations, RecommendInvalid)
		violations = append(violations, v.Violations...)
	}
	if c := r.Checks.Restricted; c != nil && c.HasRestricted {
		restricted = true
		out.Recommendations = append(out.Recommendations, RecommendRestricted)
		violations = append(violations, guardrails.Violation{Kind: guardrails.KindRestricted, Category: guardrails.CategoryRestricted})
	}
	if p := r.Checks.PII; p != nil && p.HasPII {
		out.Recommendations = append(out.Recommendations, RecommendPII)
		violations = append(violations, guardrails.Violation{Kind: guardrails.KindPIIInput, Category: guardrails.CategoryPII})
	}
	if r.Checks.Toxicity == nil || r.Checks.PII == nil || r.Checks.Restricted == nil || r.Checks.Validation == nil {
		complete = false
	}
	if !complete {
		out.Recommendations = append(out.Recommendations, RecommendIncomplete)
	}

	out.IsSafe = complete && !toxic && !invalid && !restricted
	out.RiskLevel = guardrails.DeriveRiskLevel(violations)
	return out
}
