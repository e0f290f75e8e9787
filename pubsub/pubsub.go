// Package pubsub is the per-context listener registry. A PubSub is bound to
// one context handle; every payload the transport delivers to that context is
// parsed and handed to the listeners registered for its command, in the order
// they were registered.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/casualjim/hoot/envelope"
	"github.com/casualjim/hoot/internal/endpoint"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/transport"
	"github.com/fogfish/opts"
)

// Event is a parsed delivery together with the context that sent it.
type Event struct {
	envelope.Envelope
	Origin transport.Handle
}

// Listener handles one delivery. content is the raw JSON payload of the envelope.
type Listener func(ctx context.Context, content json.RawMessage, ev Event)

// PubSub dispatches the deliveries of one context to listeners by command.
type PubSub struct {
	transport transport.Transport
	handle    transport.Handle
	logger    *slog.Logger

	mu        sync.RWMutex
	listeners map[envelope.Command][]Listener
	sub       transport.Subscription
}

// WithLogger sets the logger used for dropped deliveries.
var WithLogger = opts.ForName[PubSub, *slog.Logger]("logger")

// New creates a PubSub for the context h. It receives nothing until Bind.
func New(tr transport.Transport, h transport.Handle, options ...opts.Option[PubSub]) (*PubSub, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: transport is required", endpoint.ErrInvalidArgument)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: context handle is required: %w", endpoint.ErrInvalidArgument, transport.ErrNilHandle)
	}
	p := &PubSub{
		transport: tr,
		handle:    h,
		logger:    slog.Default(),
		listeners: make(map[envelope.Command][]Listener),
	}
	if err := opts.Apply(p, options); err != nil {
		return nil, err
	}
	return p, nil
}

// Handle returns the context this PubSub listens on.
func (p *PubSub) Handle() transport.Handle {
	return p.handle
}

// Bind subscribes to the transport so deliveries reach Dispatch. Calling Bind
// on a bound PubSub is a no-op.
func (p *PubSub) Bind(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		return nil
	}
	sub, err := p.transport.Subscribe(ctx, p.handle, p.Dispatch)
	if err != nil {
		return fmt.Errorf("bind %s: %w", p.handle.ID(), err)
	}
	p.sub = sub
	return nil
}

// Listen appends fn to the listeners of every given command, SendMessage when
// none is given. Registering the same function twice makes it run twice.
func (p *PubSub) Listen(fn Listener, cmds ...envelope.Command) {
	if fn == nil {
		return
	}
	if len(cmds) == 0 {
		cmds = []envelope.Command{envelope.SendMessage}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cmd := range cmds {
		p.listeners[cmd] = append(p.listeners[cmd], fn)
	}
}

// Dispatch parses raw and runs the listeners for its command. Payloads that do
// not parse are dropped.
func (p *PubSub) Dispatch(ctx context.Context, raw string, origin transport.Handle) {
	env, err := envelope.Parse(raw)
	if err != nil {
		p.logger.DebugContext(ctx, "dropping delivery", slogx.Error(err), slogx.Handle("context", p.handle))
		return
	}

	p.mu.RLock()
	listeners := slices.Clone(p.listeners[env.Type])
	p.mu.RUnlock()

	ev := Event{Envelope: env, Origin: origin}
	for _, fn := range listeners {
		fn(ctx, env.Content, ev)
	}
}

// Clear drops every listener. The transport subscription stays in place.
func (p *PubSub) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = make(map[envelope.Command][]Listener)
}

// Close drops the transport subscription.
func (p *PubSub) Close() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
