package hoot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/casualjim/hoot/envelope"
	"github.com/casualjim/hoot/internal/broker"
	"github.com/casualjim/hoot/internal/endpoint"
	"github.com/casualjim/hoot/internal/registry"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/pubsub"
	"github.com/casualjim/hoot/transport"
	"github.com/fogfish/opts"
)

// BrokerName is the name a peer uses for its endpoint to the broker.
const BrokerName = "TOP_WINDOW"

var (
	// ErrInvalidArgument is returned when a peer is built from missing parts.
	ErrInvalidArgument = endpoint.ErrInvalidArgument
	// ErrNotRegistered is returned by Send until the broker acknowledged the
	// registration.
	ErrNotRegistered = errors.New("hoot: peer is not registered")
)

// brokers holds one broker per top-level context in this process.
var brokers = registry.New[*broker.Broker]()

// State is the registration state of a peer.
type State int32

const (
	StateUnregistered State = iota
	StateRegistering
	StateRegistered
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistering:
		return "registering"
	case StateRegistered:
		return "registered"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type peerOptions struct {
	hostBroker bool
	brokerName string
	logger     *slog.Logger
}

var (
	// HostBroker controls whether the peer makes sure a broker runs for the
	// top-level context in this process. Turn it off when the top-level
	// context is owned by another process.
	HostBroker = opts.ForName[peerOptions, bool]("hostBroker")
	// WithBrokerName overrides the name of the peer's endpoint to the broker.
	WithBrokerName = opts.ForName[peerOptions, string]("brokerName")
	// WithLogger sets the logger for the peer and, when it creates one, the broker.
	WithLogger = opts.ForName[peerOptions, *slog.Logger]("logger")
)

// Peer is a named participant that talks to other peers through the broker of
// its top-level context.
type Peer struct {
	name   string
	self   transport.Handle
	pubsub *pubsub.PubSub
	broker *endpoint.Endpoint
	logger *slog.Logger

	state     atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
}

// NewPeer creates a peer named name living in the context self, makes sure the
// top-level context top hosts a broker, and sends the registration request.
// The peer can send once the broker's response arrives; there is no timeout,
// a lost response leaves the peer unable to send. ctx bounds the transport
// subscription of the peer; a broker started here outlives it.
func NewPeer(ctx context.Context, tr transport.Transport, self, top transport.Handle, name string, options ...opts.Option[peerOptions]) (*Peer, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: peer name is required", ErrInvalidArgument)
	}
	if tr == nil || self == nil || top == nil {
		return nil, fmt.Errorf("%w: transport, own and top-level context handles are required", ErrInvalidArgument)
	}

	o := peerOptions{hostBroker: true, brokerName: BrokerName, logger: slog.Default()}
	if err := opts.Apply(&o, options); err != nil {
		return nil, err
	}

	ps, err := pubsub.New(tr, self, pubsub.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	if err := ps.Bind(ctx); err != nil {
		return nil, err
	}

	if o.hostBroker {
		if err := ensureBroker(ctx, tr, top, o.logger); err != nil {
			ps.Close()
			return nil, err
		}
	}

	brokerEndpoint, err := endpoint.New(tr, self, top, o.brokerName)
	if err != nil {
		ps.Close()
		return nil, err
	}

	p := &Peer{
		name:   name,
		self:   self,
		pubsub: ps,
		broker: brokerEndpoint,
		logger: o.logger.With(slogx.LoggerName("peer"), slog.String("peer", name)),
		ready:  make(chan struct{}),
	}
	ps.Listen(p.handleRegistered, envelope.ResponseRegistry)

	p.state.Store(int32(StateRegistering))
	if err := brokerEndpoint.Send(ctx, envelope.Envelope{Type: envelope.RequestRegistry, Source: name}); err != nil {
		p.state.Store(int32(StateUnregistered))
		ps.Close()
		return nil, fmt.Errorf("request registration: %w", err)
	}
	p.logger.DebugContext(ctx, "registration requested", slogx.Handle("broker", top))
	return p, nil
}

func ensureBroker(ctx context.Context, tr transport.Transport, top transport.Handle, logger *slog.Logger) error {
	var buildErr error
	b, _ := brokers.GetOrAdd(top.ID(), func() *broker.Broker {
		b, err := broker.New(tr, top, broker.WithLogger(logger))
		if err != nil {
			buildErr = err
			return nil
		}
		return b
	})
	if b == nil {
		brokers.Del(top.ID())
		if buildErr == nil {
			buildErr = fmt.Errorf("hoot: no broker for %s", top.ID())
		}
		return buildErr
	}
	if err := b.Start(ctx); err != nil {
		// the next peer for top builds a fresh broker
		brokers.Del(top.ID())
		return err
	}
	return nil
}

func (p *Peer) handleRegistered(ctx context.Context, _ json.RawMessage, ev pubsub.Event) {
	// answers for other peers sharing this context
	if ev.Target != "" && ev.Target != p.name {
		return
	}
	p.state.Store(int32(StateRegistered))
	p.readyOnce.Do(func() { close(p.ready) })
	p.logger.DebugContext(ctx, "registered")
}

// Name returns the name the peer registered under.
func (p *Peer) Name() string {
	return p.name
}

// Handle returns the context the peer lives in.
func (p *Peer) Handle() transport.Handle {
	return p.self
}

// State returns the current registration state.
func (p *Peer) State() State {
	return State(p.state.Load())
}

// Ready is closed once the registration response arrived. Waiting on it is
// optional and never triggers a retry.
func (p *Peer) Ready() <-chan struct{} {
	return p.ready
}

// Listen registers fn for the given commands, SendMessage when none is given.
// Every peer living in the same context sees deliveries to that context;
// Event.Target names the peer a delivery was addressed to.
func (p *Peer) Listen(fn pubsub.Listener, cmds ...envelope.Command) {
	p.pubsub.Listen(fn, cmds...)
}

// Clear drops every listener, including the one waiting for the registration
// response.
func (p *Peer) Clear() {
	p.pubsub.Clear()
}

// Send delivers data to every peer registered under target.
func (p *Peer) Send(ctx context.Context, target string, data any) error {
	return p.SendCommand(ctx, envelope.UnicastMessage, target, data)
}

// Multicast delivers data to every registered peer, this one included.
func (p *Peer) Multicast(ctx context.Context, data any) error {
	return p.SendCommand(ctx, envelope.MulticastMessage, "", data)
}

// SendCommand sends an envelope of type cmd to the broker. It fails with
// ErrNotRegistered, without touching the transport, until registration completed.
func (p *Peer) SendCommand(ctx context.Context, cmd envelope.Command, target string, data any) error {
	if p.State() != StateRegistered {
		return fmt.Errorf("%w: %q is %s", ErrNotRegistered, p.name, p.State())
	}
	content, err := envelope.Marshal(data)
	if err != nil {
		return err
	}
	return p.broker.Send(ctx, envelope.Envelope{
		Type:    cmd,
		Target:  target,
		Source:  p.name,
		Content: content,
	})
}

// Close stops listening. The broker keeps the peer's endpoint; there is no
// unregistration message.
func (p *Peer) Close() {
	p.pubsub.Close()
}

// Route lists the contexts registered under one name.
type Route struct {
	Name     string
	Contexts []string
}

// Routes returns the routing table of the broker this process runs for top,
// in registration order. It reports false when no broker runs for top here.
func Routes(top transport.Handle) ([]Route, bool) {
	b, ok := brokers.Get(top.ID())
	if !ok {
		return nil, false
	}
	names := b.Names()
	routes := make([]Route, 0, len(names))
	for _, name := range names {
		r := Route{Name: name}
		for _, ep := range b.Endpoints(name) {
			r.Contexts = append(r.Contexts, ep.Handle().ID())
		}
		routes = append(routes, r)
	}
	return routes, true
}

// Brokers returns the ids of the top-level contexts this process runs a
// broker for, in no particular order.
func Brokers() []string {
	return brokers.Names()
}

// Unregister removes the endpoints under name delivering to h, or all of them
// when h is nil, from the broker this process runs for top. Nothing calls it
// implicitly; peers of closed contexts stay registered until somebody does.
func Unregister(top transport.Handle, name string, h transport.Handle) int {
	b, ok := brokers.Get(top.ID())
	if !ok {
		return 0
	}
	return b.Unregister(name, h)
}
