package otelhelper

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const ExitCodeKey = "stepflow.step.exit_code"

type exitCoder interface {
	ExitCode() int
}

// FailStep marks a step span failed. The exit code is attached when err
// carries one.
func FailStep(span trace.Span, stepID string, elapsed time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String(StepIDKey, stepID),
		attribute.Int64("stepflow.step.elapsed_ms", elapsed.Milliseconds()),
	}

	var coded exitCoder
	if errors.As(err, &coded) {
		attrs = append(attrs, attribute.Int(ExitCodeKey, coded.ExitCode()))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("step_failed", trace.WithAttributes(attrs...))
}
