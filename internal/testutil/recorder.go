package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/casualjim/hoot/envelope"
	"github.com/casualjim/hoot/transport"
)

var _ transport.Transport = (*Recorder)(nil)

// Handle is a plain string context handle for tests.
type Handle string

func (h Handle) ID() string { return string(h) }

// Sent is one payload captured by a Recorder.
type Sent struct {
	From string
	To   string
	Raw  string
}

// Envelope parses the captured payload, failing the test when it is invalid.
func (s Sent) Envelope() envelope.Envelope {
	env, err := envelope.Parse(s.Raw)
	if err != nil {
		panic(fmt.Sprintf("recorded payload does not parse: %v", err))
	}
	return env
}

// Recorder is a transport that captures sends instead of delivering them.
// Deliveries only happen when a test calls Deliver, synchronously, on the
// calling goroutine, which makes it the test's event loop.
type Recorder struct {
	mu     sync.Mutex
	sent   []Sent
	closed map[string]bool
	subs   map[string][]transport.Delivery
	err    error
	subErr map[string]error
}

func NewRecorder() *Recorder {
	return &Recorder{
		closed: make(map[string]bool),
		subs:   make(map[string][]transport.Delivery),
		subErr: make(map[string]error),
	}
}

func (r *Recorder) Send(_ context.Context, from, to transport.Handle, raw string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	var fromID string
	if from != nil {
		fromID = from.ID()
	}
	r.sent = append(r.sent, Sent{From: fromID, To: to.ID(), Raw: raw})
	return nil
}

func (r *Recorder) Subscribe(ctx context.Context, h transport.Handle, fn transport.Delivery) (transport.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.subErr[h.ID()]; err != nil {
		return nil, err
	}
	r.subs[h.ID()] = append(r.subs[h.ID()], fn)
	idx := len(r.subs[h.ID()]) - 1
	return &subscription{id: fmt.Sprintf("%s/%d", h.ID(), idx), cancel: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.subs[h.ID()][idx] = nil
	}}, nil
}

func (r *Recorder) IsClosed(h transport.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[h.ID()]
}

// SetClosed flips the liveness of h.
func (r *Recorder) SetClosed(h transport.Handle, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[h.ID()] = closed
}

// FailSends makes every subsequent Send return err. Pass nil to recover.
func (r *Recorder) FailSends(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// FailSubscribe makes every subsequent Subscribe on h return err. Pass nil to
// recover.
func (r *Recorder) FailSubscribe(h transport.Handle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.subErr, h.ID())
		return
	}
	r.subErr[h.ID()] = err
}

// Deliver runs every subscriber of to with raw as if origin had sent it.
func (r *Recorder) Deliver(ctx context.Context, to, origin transport.Handle, raw string) {
	r.mu.Lock()
	subs := slices.Clone(r.subs[to.ID()])
	r.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(ctx, raw, origin)
		}
	}
}

// DeliverEnvelope encodes env and delivers it.
func (r *Recorder) DeliverEnvelope(ctx context.Context, to, origin transport.Handle, env envelope.Envelope) {
	raw, err := envelope.Encode(env)
	if err != nil {
		panic(err)
	}
	r.Deliver(ctx, to, origin, raw)
}

// Sent returns everything sent so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

// SentTo returns the parsed envelopes sent to h, in order.
func (r *Recorder) SentTo(h transport.Handle) []envelope.Envelope {
	var out []envelope.Envelope
	for _, s := range r.Sent() {
		if s.To == h.ID() {
			out = append(out, s.Envelope())
		}
	}
	return out
}

// Reset forgets captured sends.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type subscription struct {
	id     string
	once   sync.Once
	cancel func()
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Unsubscribe() { s.once.Do(s.cancel) }
