// Package fragment splits large payloads into Envelope fragments for the
// wire and reassembles them back into the original bytes on the receiving
// side, verifying the MD5 digest carried by the terminator message.
package fragment

import (
	"fmt"

	"github.com/ymmah/messaging/envelope"
)

// DefaultMaxFragmentSize is used when Split is called with maxSize <= 0.
const DefaultMaxFragmentSize = 64 * 1024

// Splitter turns one large payload into an ordered sequence of
// SignalFragment envelopes followed by a single EndOfFragmentedMessage
// terminator carrying the total fragment count and the MD5 digest of the
// original payload.
type Splitter struct{}

// Split divides data into fragments of at most maxSize bytes (DefaultMaxFragmentSize
// if maxSize <= 0), addressed to callID/responseID. The returned slice is
// ready to hand to a transport sender in order; receivers may not rely on
// delivery order (see Reassembler), only on the FragmentIndex each envelope
// carries.
func (Splitter) Split(callID envelope.CallID, responseID envelope.ResponseID, data []byte, maxSize int) []*envelope.Envelope {
	if maxSize <= 0 {
		maxSize = DefaultMaxFragmentSize
	}

	var fragments []*envelope.Envelope
	total := (len(data) + maxSize - 1) / maxSize
	if total == 0 {
		total = 1
	}

	for i := 0; i < total; i++ {
		start := i * maxSize
		end := start + maxSize
		if end > len(data) {
			end = len(data)
		}
		f := envelope.New(envelope.TSignalFragment, callID)
		f.ResponseID = responseID
		f.FragmentIndex = i
		f.FragmentsTotal = total
		f.Payload = data[start:end]
		fragments = append(fragments, f)
	}

	term := envelope.New(envelope.TEndOfFragmentedMessage, callID)
	term.ResponseID = responseID
	term.FragmentsTotal = total
	term.ChecksumMD5 = envelope.MD5Sum(data)
	fragments = append(fragments, term)

	return fragments
}

// ErrDigestMismatch is returned by Reassembler.AddFragment (via the
// terminator) when the reassembled payload's MD5 does not match the digest
// the sender carried. The partial buffer for that callID/responseID is
// discarded so a retried upload starts clean.
var ErrDigestMismatch = fmt.Errorf("fragment: reassembled payload does not match digest")

type bufferKey struct {
	callID     envelope.CallID
	responseID envelope.ResponseID
}

type buffer struct {
	parts       map[int][]byte
	total       int // 0 until the terminator arrives
	digest      string
	haveTotal   bool
}

// Reassembler accumulates fragments across possibly many concurrent calls
// and responses, committing a payload only once every index in [0,total) is
// present and the MD5 digest matches. Fragments and terminators may arrive
// in any order — the buffer for a given callID/responseID is independent of
// every other buffer, so interleaved delivery across different calls or
// responses never corrupts reassembly.
type Reassembler struct {
	buffers map[bufferKey]*buffer
}

// NewReassembler returns a ready-to-use Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{buffers: map[bufferKey]*buffer{}}
}

func (r *Reassembler) bufferFor(key bufferKey) *buffer {
	if r.buffers == nil {
		r.buffers = map[bufferKey]*buffer{}
	}
	b, ok := r.buffers[key]
	if !ok {
		b = &buffer{parts: map[int][]byte{}}
		r.buffers[key] = b
	}
	return b
}

// AddFragment records one fragment or terminator envelope. It returns the
// reassembled payload and true once the terminator has arrived and every
// fragment index it names is present with a matching digest; otherwise it
// returns (nil, false, nil). A digest mismatch returns ErrDigestMismatch and
// discards the buffer so the caller can reject the call instead of serving
// corrupt data.
//
// Not safe for concurrent use by multiple goroutines on the same
// Reassembler; callers serialize access the way a single dispatcher
// goroutine per connection naturally does.
func (r *Reassembler) AddFragment(env *envelope.Envelope) ([]byte, bool, error) {
	key := bufferKey{env.CallID, env.ResponseID}
	b := r.bufferFor(key)

	switch env.Type {
	case envelope.TSignalFragment:
		b.parts[env.FragmentIndex] = env.Payload
	case envelope.TEndOfFragmentedMessage, envelope.TStreamClosed:
		// TEndOfFragmentedMessage terminates ordinary response
		// fragmentation; TStreamClosed terminates a channel-upload stream
		// (spec §4.6) — both carry the same total/digest properties, so one
		// terminator path serves both.
		b.total = env.FragmentsTotal
		b.digest = env.ChecksumMD5
		b.haveTotal = true
	default:
		return nil, false, fmt.Errorf("fragment: unexpected envelope type %v", env.Type)
	}

	if !b.haveTotal || len(b.parts) < b.total {
		return nil, false, nil
	}

	payload := make([]byte, 0, b.total*DefaultMaxFragmentSize)
	for i := 0; i < b.total; i++ {
		part, ok := b.parts[i]
		if !ok {
			return nil, false, nil
		}
		payload = append(payload, part...)
	}

	delete(r.buffers, key)

	if envelope.MD5Sum(payload) != b.digest {
		return nil, false, ErrDigestMismatch
	}
	return payload, true, nil
}

// ExpireCall discards every in-progress reassembly buffer belonging to
// callID, regardless of ResponseID. A dispatcher calls this when a call's
// RequestHandler closes or times out, so an abandoned upload doesn't leak
// memory forever.
func (r *Reassembler) ExpireCall(callID envelope.CallID) {
	for key := range r.buffers {
		if key.callID == callID {
			delete(r.buffers, key)
		}
	}
}

// Pending reports how many partial (callID, responseID) buffers are
// currently held, for tests and diagnostics.
func (r *Reassembler) Pending() int {
	return len(r.buffers)
}
