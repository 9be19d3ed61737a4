package tracing

import (
	"errors"
	"testing"

	"github.com/ymmah/messaging/envelope"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled {
		t.Errorf("Enabled = false, want true")
	}
	if !cfg.RecordPayloadSize {
		t.Errorf("RecordPayloadSize = false, want true")
	}
}

func TestDisabledTracerIsNoOp(t *testing.T) {
	tr := New(Config{Enabled: false})
	ctx := t.Context()

	gotCtx, end := tr.StartClientSpan(ctx, "orders.process", envelope.CallID("call-1"), 10)
	if gotCtx != ctx {
		t.Errorf("a disabled Tracer should return the same context unchanged")
	}
	end(errors.New("should not panic"))

	gotCtx, end = tr.StartServerSpan(ctx, "orders.process", envelope.CallID("call-1"), 10)
	if gotCtx != ctx {
		t.Errorf("a disabled Tracer should return the same context unchanged")
	}
	end(nil)
}

func TestNilTracerIsNoOp(t *testing.T) {
	var tr *Tracer
	ctx := t.Context()

	gotCtx, end := tr.StartClientSpan(ctx, "orders.process", envelope.CallID("call-1"), 10)
	if gotCtx != ctx {
		t.Errorf("a nil Tracer should return the same context unchanged")
	}
	end(nil)

	gotCtx, end = tr.StartServerSpan(ctx, "orders.process", envelope.CallID("call-1"), 10)
	if gotCtx != ctx {
		t.Errorf("a nil Tracer should return the same context unchanged")
	}
	end(errors.New("should not panic"))
}
