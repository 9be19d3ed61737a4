// Package peer carries the remote transport address of the connection an
// inbound envelope arrived on, so a RequestSink can learn who called it.
// It uses a private key type to prevent collisions with other packages.
package peer

import (
	"github.com/gostdlib/base/context"
)

// addrKey is a private type used as a context key for the remote address.
type addrKey struct{}

// RemoteAddr retrieves the remote address from ctx, as reported by
// transport.Connection.Addr(). Returns "" if not set.
func RemoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(addrKey{}).(string)
	return addr
}

// WithRemoteAddr returns a context carrying addr for RemoteAddr to retrieve.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, addrKey{}, addr)
}
