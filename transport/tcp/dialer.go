package tcp

import (
	"github.com/gostdlib/base/context"

	"github.com/ymmah/messaging/transport"
)

// Dialer implements transport.Dialer, dialing the same addr with the same
// Options on every call.
type Dialer struct {
	addr string
	opts []Option
}

// NewDialer returns a Dialer for addr.
func NewDialer(addr string, opts ...Option) *Dialer {
	return &Dialer{addr: addr, opts: opts}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context) (transport.Connection, error) {
	return Dial(ctx, d.addr, d.opts...)
}

var _ transport.Dialer = (*Dialer)(nil)
