package otelhelper

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type codedError struct{ code int }

func (e *codedError) Error() string { return "exit code 1" }
func (e *codedError) ExitCode() int { return e.code }

func TestStartSpan_FailStep(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := StartSpan(t.Context(), tracer, "step.run", attribute.String(StepIDKey, "align"))
	FailStep(span, "align", 2*time.Second, fmt.Errorf("wrapped: %w", &codedError{code: 1}))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "step.run", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "wrapped: exit code 1", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String(StepIDKey, "align"))

	var failed *sdktrace.Event

	for i, event := range spans[0].Events() {
		if event.Name == "step_failed" {
			failed = &spans[0].Events()[i]
		}
	}

	require.NotNil(t, failed)
	assert.Contains(t, failed.Attributes, attribute.Int(ExitCodeKey, 1))
	assert.Contains(t, failed.Attributes, attribute.Int64("stepflow.step.elapsed_ms", 2000))
}

func TestFailStep_PlainError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := StartSpan(t.Context(), provider.Tracer("test"), "step.run")
	FailStep(span, "sort", 0, errors.New("no environment"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	for _, event := range spans[0].Events() {
		for _, attr := range event.Attributes {
			assert.NotEqual(t, attribute.Key(ExitCodeKey), attr.Key)
		}
	}
}

func TestNoopTracer(t *testing.T) {
	_, span := StartSpan(t.Context(), NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.IsRecording())
}
