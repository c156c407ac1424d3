package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/BaSui01/safetycore/guardrails"
)

const instrumentationName = "github.com/BaSui01/safetycore/orchestrator"

// MetricsRecorder 流水线指标记录，由 internal/metrics.Collector 实现
type MetricsRecorder interface {
	RecordInboundDecision(responseType, riskLevel string, duration time.Duration)
	RecordOutboundValidation(safe, fallbackUsed bool, riskLevel string, duration time.Duration)
	RecordViolation(direction, category, kind string)
	RecordDegradation(detector string)
	RecordMoodAnalysis(source string, supportNeeded bool)
	SetActiveSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordInboundDecision(string, string, time.Duration)        {}
func (nopRecorder) RecordOutboundValidation(bool, bool, string, time.Duration) {}
func (nopRecorder) RecordViolation(string, string, string)                     {}
func (nopRecorder) RecordDegradation(string)                                   {}
func (nopRecorder) RecordMoodAnalysis(string, bool)                            {}
func (nopRecorder) SetActiveSessions(int)                                      {}

// instruments OTel 追踪与计数，未初始化 SDK 时为 noop
type instruments struct {
	tracer   trace.Tracer
	inbound  metric.Int64Counter
	outbound metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(instrumentationName)
	ins := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	ins.inbound, err = meter.Int64Counter("guardrails.inbound.decisions",
		metric.WithDescription("Inbound guardrail decisions"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return nil, err
	}

	ins.outbound, err = meter.Int64Counter("guardrails.outbound.validations",
		metric.WithDescription("Outbound response validations"),
		metric.WithUnit("{validation}"))
	if err != nil {
		return nil, err
	}

	ins.duration, err = meter.Float64Histogram("guardrails.pipeline.duration",
		metric.WithDescription("Guardrail pipeline duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10))
	if err != nil {
		return nil, err
	}
	return ins, nil
}

func (ins *instruments) recordInbound(ctx context.Context, span trace.Span, d *GuardrailDecision) {
	attrs := []attribute.KeyValue{
		attribute.String("response_type", string(d.ResponseType)),
		attribute.String("risk_level", string(d.RiskLevel)),
	}
	span.SetAttributes(append(attrs,
		attribute.String("decision.id", d.DecisionID),
		attribute.Bool("should_block", d.ShouldBlock),
		attribute.String("framing", string(d.Framing)),
		attribute.Int("violations", len(d.Violations)),
	)...)
	ins.inbound.Add(ctx, 1, metric.WithAttributes(attrs...))
	ins.duration.Record(ctx, d.ProcessingTime.Seconds(),
		metric.WithAttributes(attribute.String("direction", string(guardrails.Inbound))))
}

func (ins *instruments) recordOutbound(ctx context.Context, span trace.Span, r *guardrails.OutputValidationResult) {
	attrs := []attribute.KeyValue{
		attribute.Bool("safe", r.IsSafe),
		attribute.Bool("fallback_used", r.FallbackUsed),
		attribute.String("risk_level", string(r.RiskLevel)),
	}
	span.SetAttributes(append(attrs, attribute.Int("violations", len(r.Violations)))...)
	ins.outbound.Add(ctx, 1, metric.WithAttributes(attrs...))
	ins.duration.Record(ctx, r.ProcessingTime.Seconds(),
		metric.WithAttributes(attribute.String("direction", string(guardrails.Outbound))))
}
