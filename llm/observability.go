package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/types"
)

const instrumentationName = "github.com/shivanandmn/wingman/llm"

// instrumented 为执行器添加追踪与 OTel 指标
type instrumented struct {
	next     crews.Executor
	provider string
	tracer   trace.Tracer

	// 计数器
	invocations metric.Int64Counter
	errors      metric.Int64Counter
	// 直方图
	duration metric.Float64Histogram
	// 高低计
	active metric.Int64UpDownCounter
}

// Instrument wraps next so that every invocation gets an "llm.invoke" span
// and OpenTelemetry metrics labelled with provider.
func Instrument(next crews.Executor, provider string) (crews.Executor, error) {
	meter := otel.Meter(instrumentationName)
	in := &instrumented{
		next:     next,
		provider: provider,
		tracer:   otel.Tracer(instrumentationName),
	}

	var err error
	in.invocations, err = meter.Int64Counter("llm.invocation.total",
		metric.WithDescription("Total number of capability invocations"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return nil, err
	}
	in.errors, err = meter.Int64Counter("llm.error.total",
		metric.WithDescription("Total number of failed invocations"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}
	in.duration, err = meter.Float64Histogram("llm.invocation.duration",
		metric.WithDescription("Invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	if err != nil {
		return nil, err
	}
	in.active, err = meter.Int64UpDownCounter("llm.invocation.active",
		metric.WithDescription("Number of in-flight invocations"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return nil, err
	}
	return in, nil
}

// Invoke implements crews.Executor.
func (in *instrumented) Invoke(ctx context.Context, inv crews.Invocation) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.provider", in.provider),
		attribute.String("crew.agent", inv.Agent.ID),
	}
	ctx, span := in.tracer.Start(ctx, "llm.invoke", trace.WithAttributes(append(attrs,
		attribute.String("crew.id", inv.CrewID),
		attribute.String("crew.task", inv.TaskID),
		attribute.Int("crew.delegation_depth", inv.Depth),
	)...))
	defer span.End()

	set := metric.WithAttributes(attrs...)
	in.active.Add(ctx, 1, set)
	defer in.active.Add(ctx, -1, set)

	start := time.Now()
	out, err := in.next.Invoke(ctx, inv)
	in.duration.Record(ctx, time.Since(start).Seconds(), set)
	in.invocations.Add(ctx, 1, set)

	if err != nil {
		in.errors.Add(ctx, 1, metric.WithAttributes(append(attrs,
			attribute.String("error.code", string(types.GetErrorCode(err))))...))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.output_chars", len(out)))
	return out, nil
}
