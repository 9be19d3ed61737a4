// Package session implements the Transport Session: the connection-lifecycle
// state machine that sits between the fixed list of candidate broker
// connections and everything that needs a sender, a receiver, or a reply
// destination. One Session instance is shared by every call multiplexed
// over it.
package session

import (
	"fmt"

	stdsync "github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/retry/exponential"

	"github.com/ymmah/messaging/envelope"
	"github.com/ymmah/messaging/transport"
)

// State is a Session's position in the connection lifecycle.
//
//	FRESH -> ACTIVE -> INVALIDATING -> FRESH
//	              \--> RECONNECTING -> ACTIVE
//	any state      --> CLOSED (terminal)
//
// INVALIDATING and RECONNECTING are mutually exclusive: invalidate() is a
// no-op while reconnect() is already running, and reconnect() returns an
// error without attempting a connection while invalidate() is running.
type State uint8

const (
	// Fresh has no active connection yet; the next getSession-family call
	// triggers a connect.
	Fresh State = iota
	// Active holds a live BrokerSession on the connection named by active.
	Active
	// Invalidating is tearing down the current connection's cached handles.
	Invalidating
	// Reconnecting is retrying candidate connections looking for one to
	// activate.
	Reconnecting
	// Closed is terminal; every further operation fails.
	Closed
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "FRESH"
	case Active:
		return "ACTIVE"
	case Invalidating:
		return "INVALIDATING"
	case Reconnecting:
		return "RECONNECTING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrClosed is returned by any operation attempted after Close.
var ErrClosed = fmt.Errorf("session: closed")

// ErrNoCandidates is returned when a Session is constructed with no
// candidate connections.
var ErrNoCandidates = fmt.Errorf("session: no candidate connections")

// Session owns the fixed list of candidate connections, the pointer to
// whichever one is currently active, and the lazily-created BrokerSession /
// Sender / Receiver handles layered on top of it. All of this is guarded by
// one monitor (mu); per spec, the monitor is never held across a user-sink
// invocation or a blocking transport send — callers copy out what they need
// (a Sender, a BrokerSession) and release the lock before using it.
type Session struct {
	mu stdsync.Mutex

	candidates []transport.Connection
	active     int // index into candidates; meaningful only in Active/Reconnecting
	activatedAt int64 // unix millis, for the failback interval

	failbackInterval int64 // millis; 0 disables failback

	state State

	conn        transport.Connection
	brokerSess  transport.BrokerSession
	sender      map[envelope.Destination]transport.Sender
	replyDest   envelope.Destination
	haveReply   bool

	transacted bool
	autoAck    bool

	onMessage     transport.ReceiveFunc
	onException   transport.ExceptionFunc

	// nowMillis is overridable for tests; defaults to a wall-clock source.
	nowMillis func() int64
}

// Option configures a new Session.
type Option func(*Session)

// WithFailbackInterval sets how long, in milliseconds, a non-primary
// connection is preferred before checkFailback attempts to move back to the
// primary (candidates[0]). Zero disables failback.
func WithFailbackInterval(millis int64) Option {
	return func(s *Session) { s.failbackInterval = millis }
}

// WithTransacted selects transacted session semantics on connect.
func WithTransacted(transacted bool) Option {
	return func(s *Session) { s.transacted = transacted }
}

// WithAutoAck selects automatic acknowledgement on connect (ignored if
// transacted is set).
func WithAutoAck(autoAck bool) Option {
	return func(s *Session) { s.autoAck = autoAck }
}

// WithClock overrides the millisecond clock used for failback timing. Tests
// use this instead of wall time.
func WithClock(now func() int64) Option {
	return func(s *Session) { s.nowMillis = now }
}

// New returns a Session over candidates, with candidates[0] as primary.
// candidates must be non-empty.
func New(candidates []transport.Connection, opts ...Option) (*Session, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	s := &Session{
		candidates: candidates,
		state:      Fresh,
		autoAck:    true,
		sender:     map[envelope.Destination]transport.Sender{},
		nowMillis:  defaultClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the Session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentAddr returns the Addr of the currently active connection, or ""
// if the Session has never successfully connected.
func (s *Session) CurrentAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.Addr()
}

// getBrokerSession returns the active BrokerSession, connecting candidates[0]
// (or whichever checkFailback/reconnect last activated) if the Session is
// still Fresh. Per the locking discipline, the monitor is released before
// any blocking call into the transport.
func (s *Session) getBrokerSession(ctx context.Context) (transport.BrokerSession, error) {
	s.mu.Lock()
	switch s.state {
	case Closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case Active:
		bs := s.brokerSess
		s.mu.Unlock()
		return bs, nil
	case Fresh:
		idx := s.active
		s.mu.Unlock()
		return s.connectAt(ctx, idx)
	default:
		// Invalidating or Reconnecting: caller should retry once the
		// in-flight transition completes.
		s.mu.Unlock()
		return nil, fmt.Errorf("session: not ready, state=%v", s.State())
	}
}

// connectAt dials candidates[idx] and opens a BrokerSession on it, then
// activates it. Called with the monitor NOT held.
func (s *Session) connectAt(ctx context.Context, idx int) (transport.BrokerSession, error) {
	conn := s.candidates[idx]
	bs, err := conn.OpenBrokerSession(ctx, s.transacted, s.autoAck)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		bs.Close()
		return nil, ErrClosed
	}
	s.conn = conn
	s.brokerSess = bs
	s.active = idx
	s.activatedAt = s.nowMillis()
	s.state = Active
	s.sender = map[envelope.Destination]transport.Sender{}
	s.haveReply = false
	s.mu.Unlock()
	return bs, nil
}

// GetDestination resolves name to a Destination via the active
// BrokerSession, connecting if necessary. Cached per-name lookups are the
// caller's responsibility; spec only requires the Session/Sender/Receiver
// handles themselves to be lazily cached.
func (s *Session) GetDestination(ctx context.Context, name string) (envelope.Destination, error) {
	bs, err := s.getBrokerSession(ctx)
	if err != nil {
		return "", err
	}
	return bs.LookupDestination(ctx, name)
}

// GetReplyDestination returns the session-scoped temporary reply
// destination, creating it once and caching it for the lifetime of the
// current activation.
func (s *Session) GetReplyDestination(ctx context.Context) (envelope.Destination, error) {
	s.mu.Lock()
	if s.haveReply {
		d := s.replyDest
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	bs, err := s.getBrokerSession(ctx)
	if err != nil {
		return "", err
	}
	d, err := bs.CreateTemporaryDestination(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.replyDest = d
	s.haveReply = true
	s.mu.Unlock()
	return d, nil
}

// GetSender returns a Sender bound to dest, creating and caching it on first
// use for the current activation.
func (s *Session) GetSender(ctx context.Context, dest envelope.Destination) (transport.Sender, error) {
	s.mu.Lock()
	if sn, ok := s.sender[dest]; ok {
		s.mu.Unlock()
		return sn, nil
	}
	s.mu.Unlock()

	bs, err := s.getBrokerSession(ctx)
	if err != nil {
		return nil, err
	}
	sn, err := bs.CreateSender(ctx, dest)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.sender[dest]; ok {
		s.mu.Unlock()
		sn.Close()
		return existing, nil
	}
	s.sender[dest] = sn
	s.mu.Unlock()
	return sn, nil
}

// GetReceiver creates a Receiver on dest bound to onMessage/onException.
// Unlike the Sender/BrokerSession handles, a Receiver is not cached here:
// ClientDispatcher and ServerProxy each own exactly one, created once at
// startup, and remember it themselves.
func (s *Session) GetReceiver(ctx context.Context, dest envelope.Destination, onMessage transport.ReceiveFunc, onException transport.ExceptionFunc) (transport.Receiver, error) {
	bs, err := s.getBrokerSession(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.onMessage = onMessage
	s.onException = onException
	s.mu.Unlock()
	return bs.CreateReceiver(ctx, dest, onMessage, onException)
}

// Invalidate tears down the current activation's cached handles and returns
// the Session to Fresh so the next call reconnects. It is idempotent and a
// no-op while a reconnect is already in progress — per spec, at most one
// thread invalidates and at most one reconnects, and the two are never
// interleaved.
func (s *Session) Invalidate() {
	s.mu.Lock()
	switch s.state {
	case Closed, Invalidating, Reconnecting:
		s.mu.Unlock()
		return
	}
	s.state = Invalidating
	bs := s.brokerSess
	senders := s.sender
	s.brokerSess = nil
	s.sender = map[envelope.Destination]transport.Sender{}
	s.haveReply = false
	s.mu.Unlock()

	for _, sn := range senders {
		sn.Close()
	}
	if bs != nil {
		bs.Close()
	}

	s.mu.Lock()
	if s.state == Invalidating {
		s.state = Fresh
	}
	s.mu.Unlock()
}

// Reconnect retries candidate connections, starting from the next one after
// the last active index (round robin), once per second, until one connects
// or maxWait elapses. It returns the error from the final attempt if the
// deadline is reached without success. Only one Reconnect runs at a time:
// a call made while one is already in flight, or while Invalidate is
// running, returns an error immediately without attempting a connection
// (callers are expected to only trigger this from the
// single place a transport send failure is observed per spec's error
// taxonomy).
func (s *Session) Reconnect(ctx context.Context, maxWait int64, onMessage transport.ReceiveFunc, onException transport.ExceptionFunc) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == Reconnecting {
		s.mu.Unlock()
		return fmt.Errorf("session: reconnect already in progress")
	}
	if s.state == Invalidating {
		s.mu.Unlock()
		return fmt.Errorf("session: invalidation in progress")
	}
	s.state = Reconnecting
	startIdx := (s.active + 1) % len(s.candidates)
	s.mu.Unlock()

	deadline, cancel := context.WithTimeout(ctx, millisToDuration(maxWait))
	defer cancel()

	// SecondsRetryPolicy is the closest built-in policy to a flat one-second
	// retry cadence; see DESIGN.md for why a hand-rolled flat policy isn't
	// used instead.
	backoff, _ := exponential.New(exponential.WithPolicy(exponential.SecondsRetryPolicy()))

	var lastErr error
	idx := startIdx
	err := backoff.Retry(deadline, func(retryCtx context.Context, r exponential.Record) error {
		_, connErr := s.connectAt(retryCtx, idx)
		if connErr != nil {
			lastErr = connErr
			idx = (idx + 1) % len(s.candidates)
			return connErr
		}
		return nil
	})

	// connectAt flips state to Active and records activatedAt/active on
	// success; on failure the Session falls back to Fresh so the next
	// caller retries from scratch.
	s.mu.Lock()
	if s.state == Reconnecting && err != nil {
		s.state = Fresh
	}
	s.mu.Unlock()

	if err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}

	s.mu.Lock()
	s.onMessage = onMessage
	s.onException = onException
	s.mu.Unlock()
	return nil
}

// CheckFailback returns the Session to the primary connection
// (candidates[0]) if it is not already active, more than one candidate
// exists, the failback interval is non-zero, and that interval has elapsed
// since the last connection SELECTION — per spec's Open Question resolution,
// the failback timer is stamped on every selection (including failed ones),
// not only on a successful restoration, so a flapping primary does not get
// retried more aggressively than the configured interval.
func (s *Session) CheckFailback(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return nil
	}
	if len(s.candidates) < 2 || s.failbackInterval <= 0 {
		s.mu.Unlock()
		return nil
	}
	if s.active == 0 {
		s.mu.Unlock()
		return nil
	}
	elapsed := s.nowMillis() - s.activatedAt
	if elapsed < s.failbackInterval {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.Invalidate()
	_, err := s.connectAt(ctx, 0)
	return err
}

// Close permanently shuts the Session down. Terminal: no further operation
// succeeds.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	s.state = Closed
	bs := s.brokerSess
	senders := s.sender
	s.brokerSess = nil
	s.sender = nil
	s.mu.Unlock()

	for _, sn := range senders {
		sn.Close()
	}
	if bs != nil {
		return bs.Close()
	}
	return nil
}

func defaultClock() int64 {
	return nowMillis()
}
