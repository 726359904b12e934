package router

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/localroute/llm/router"

// instruments 路由层 OTel 指标
type instruments struct {
	tracer trace.Tracer

	requestTotal    metric.Int64Counter
	localTotal      metric.Int64Counter
	estimatedTokens metric.Int64Counter
	requestDuration metric.Float64Histogram
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter(instrumentationName)
	in := &instruments{tracer: otel.Tracer(instrumentationName)}

	var err error
	in.requestTotal, err = meter.Int64Counter("localroute.request.total",
		metric.WithDescription("Messages calls by route and outcome"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	in.localTotal, err = meter.Int64Counter("localroute.local.invocations",
		metric.WithDescription("Calls answered by a local CLI"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return nil, err
	}

	// 本地路径的 usage 是估算值
	in.estimatedTokens, err = meter.Int64Counter("localroute.tokens.estimated",
		metric.WithDescription("Estimated tokens on the local route"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	in.requestDuration, err = meter.Float64Histogram("localroute.request.duration",
		metric.WithDescription("Messages call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (in *instruments) record(ctx context.Context, target string, local bool, inputTokens, outputTokens int, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("outcome", outcome),
	)
	in.requestTotal.Add(ctx, 1, attrs)
	in.requestDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	if !local {
		return
	}
	in.localTotal.Add(ctx, 1, attrs)
	if err == nil {
		in.estimatedTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attribute.String("direction", "input")))
		in.estimatedTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("direction", "output")))
	}
}
