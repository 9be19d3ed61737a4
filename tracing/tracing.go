// Package tracing wraps Client and ServerProxy call dispatch in OpenTelemetry
// spans. Metrics are deliberately out of scope here; only distributed tracing
// is wired in.
package tracing

import (
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/telemetry/otel/trace/span"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ymmah/messaging/envelope"
)

// Config controls what Tracer records.
type Config struct {
	// Enabled turns span creation on. Default false via the zero value;
	// use DefaultConfig for an enabled Tracer.
	Enabled bool

	// RecordPayloadSize adds a messaging.payload_size attribute to every
	// span.
	RecordPayloadSize bool
}

// DefaultConfig returns a Config with tracing and payload-size recording on.
func DefaultConfig() Config {
	return Config{Enabled: true, RecordPayloadSize: true}
}

// Tracer starts client- and server-kind spans around one call's dispatch.
type Tracer struct {
	cfg Config
}

// New returns a Tracer governed by cfg.
func New(cfg Config) *Tracer {
	return &Tracer{cfg: cfg}
}

// EndSpan is returned by StartClientSpan/StartServerSpan; call it exactly
// once with the call's terminal error (nil for success) to close the span.
type EndSpan func(err error)

// StartClientSpan starts a client-kind span for a Signal call to destName,
// returning a context carrying it and the function that ends it.
func (t *Tracer) StartClientSpan(ctx context.Context, destName string, callID envelope.CallID, payloadLen int) (context.Context, EndSpan) {
	if t == nil || !t.cfg.Enabled {
		return ctx, func(error) {}
	}
	return t.startSpan(ctx, "messaging.Signal "+destName, trace.SpanKindClient, destName, callID, payloadLen)
}

// StartServerSpan starts a server-kind span for a ServerProxy dispatch of a
// Signal arriving on destName.
func (t *Tracer) StartServerSpan(ctx context.Context, destName string, callID envelope.CallID, payloadLen int) (context.Context, EndSpan) {
	if t == nil || !t.cfg.Enabled {
		return ctx, func(error) {}
	}
	return t.startSpan(ctx, "messaging.Signal "+destName, trace.SpanKindServer, destName, callID, payloadLen)
}

func (t *Tracer) startSpan(ctx context.Context, name string, kind trace.SpanKind, destName string, callID envelope.CallID, payloadLen int) (context.Context, EndSpan) {
	ctx, sp := span.New(ctx,
		span.WithName(name),
		span.WithSpanStartOption(trace.WithSpanKind(kind)),
	)

	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", "messaging"),
		attribute.String("messaging.destination", destName),
		attribute.String("messaging.call_id", string(callID)),
	}
	if t.cfg.RecordPayloadSize {
		attrs = append(attrs, attribute.Int("messaging.payload_size", payloadLen))
	}
	sp.Span.SetAttributes(attrs...)

	return ctx, func(err error) {
		if err != nil {
			sp.Span.SetStatus(codes.Error, err.Error())
		}
		sp.End()
	}
}
