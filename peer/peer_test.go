package peer

import "testing"

func TestRemoteAddrNotSet(t *testing.T) {
	ctx := t.Context()

	if addr := RemoteAddr(ctx); addr != "" {
		t.Errorf("RemoteAddr() = %q, want \"\"", addr)
	}
}

func TestWithRemoteAddr(t *testing.T) {
	ctx := t.Context()
	ctx = WithRemoteAddr(ctx, "10.0.0.5:4242")

	if got := RemoteAddr(ctx); got != "10.0.0.5:4242" {
		t.Errorf("RemoteAddr() = %q, want %q", got, "10.0.0.5:4242")
	}
}

func TestRemoteAddrDoesNotAffectParent(t *testing.T) {
	parentCtx := t.Context()
	childCtx := WithRemoteAddr(parentCtx, "10.0.0.5:4242")

	if addr := RemoteAddr(parentCtx); addr != "" {
		t.Errorf("parent RemoteAddr() = %q, want \"\"", addr)
	}
	if addr := RemoteAddr(childCtx); addr != "10.0.0.5:4242" {
		t.Errorf("child RemoteAddr() = %q, want %q", addr, "10.0.0.5:4242")
	}
}
