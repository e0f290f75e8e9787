package broker

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
	"github.com/casualjim/hoot/pubsub"
	"github.com/casualjim/hoot/transport"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Broker routes envelopes between the peers registered with it. It lives in,
// and listens on, the top-level context.
type Broker struct {
	transport transport.Transport
	top       transport.Handle
	logger    *slog.Logger
	pubsub    *pubsub.PubSub

	mu     sync.RWMutex
	routes *orderedmap.OrderedMap[string, []*endpoint.Endpoint]

	startMu sync.Mutex
	wired   bool
	started bool
}

// WithLogger sets the logger for routing diagnostics.
var WithLogger = opts.ForName[Broker, *slog.Logger]("logger")

// New creates a broker for the top-level context top. It does not listen for
// anything until Start is called.
func New(tr transport.Transport, top transport.Handle, options ...opts.Option[Broker]) (*Broker, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: transport is required", endpoint.ErrInvalidArgument)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: top-level context handle is required", endpoint.ErrInvalidArgument)
	}

	b := &Broker{
		transport: tr,
		top:       top,
		logger:    slog.Default(),
		routes:    orderedmap.New[string, []*endpoint.Endpoint](),
	}
	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	b.logger = b.logger.With(slogx.LoggerName("broker"), slogx.Handle("context", top))

	ps, err := pubsub.New(tr, top, pubsub.WithLogger(b.logger))
	if err != nil {
		return nil, err
	}
	b.pubsub = ps
	return b, nil
}

// Start installs the protocol handlers and subscribes to the top-level
// context. The subscription belongs to the broker: cancelling ctx does not end
// it, Close does. Once Start succeeded further calls are no-ops; a failed Start
// may be retried.
func (b *Broker) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return nil
	}

	if !b.wired {
		b.pubsub.Listen(b.handleRegistration, envelope.RequestRegistry)
		b.pubsub.Listen(func(ctx context.Context, content json.RawMessage, ev pubsub.Event) {
			b.Route(ctx, content, ev.Target, ev.Source)
		}, envelope.UnicastMessage)
		b.pubsub.Listen(func(ctx context.Context, content json.RawMessage, ev pubsub.Event) {
			b.Multicast(ctx, content, ev.Source)
		}, envelope.MulticastMessage)
		b.wired = true
	}

	if err := b.pubsub.Bind(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	b.started = true
	b.logger.DebugContext(ctx, "broker started")
	return nil
}

// Close stops listening on the top-level context. The routing table is kept.
func (b *Broker) Close() {
	b.pubsub.Close()
}

// Top returns the context the broker lives in.
func (b *Broker) Top() transport.Handle {
	return b.top
}

func (b *Broker) handleRegistration(ctx context.Context, _ json.RawMessage, ev pubsub.Event) {
	ep, err := endpoint.New(b.transport, b.top, ev.Origin, ev.Source)
	if err != nil {
		b.logger.ErrorContext(ctx, "rejecting registration", slogx.Error(err), slogx.Handle("origin", ev.Origin))
		return
	}
	b.RegisterEndpoint(ep)

	if err := ep.Send(ctx, envelope.Envelope{Type: envelope.ResponseRegistry, Target: ep.Name()}); err != nil {
		sendFailuresTotal.Inc()
		b.logger.ErrorContext(ctx, "failed to answer registration", slogx.Error(err), slog.String("name", ep.Name()))
		return
	}
	b.logger.DebugContext(ctx, "registered endpoint", slog.String("name", ep.Name()), slogx.Handle("origin", ev.Origin))
}

// RegisterEndpoint appends ep to the endpoints registered under its name.
// Nothing is deduplicated: registering the same context twice makes it receive
// every message twice.
func (b *Broker) RegisterEndpoint(ep *endpoint.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	eps, _ := b.routes.Get(ep.Name())
	b.routes.Set(ep.Name(), append(eps, ep))
	registrationsTotal.Inc()
}

// Unregister removes the endpoints under name that deliver to h, or every
// endpoint under name when h is nil, and returns how many were removed. The
// broker never calls it on its own: endpoints of closed contexts stay in the
// table until somebody unregisters them.
func (b *Broker) Unregister(name string, h transport.Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	eps, ok := b.routes.Get(name)
	if !ok {
		return 0
	}
	kept := slices.DeleteFunc(slices.Clone(eps), func(ep *endpoint.Endpoint) bool {
		return h == nil || ep.Handle().ID() == h.ID()
	})
	if len(kept) == 0 {
		b.routes.Delete(name)
	} else {
		b.routes.Set(name, kept)
	}
	return len(eps) - len(kept)
}

// Route sends content to every endpoint registered under target, in
// registration order. An unknown target is not an error.
func (b *Broker) Route(ctx context.Context, content json.RawMessage, target, source string) {
	b.mu.RLock()
	eps, ok := b.routes.Get(target)
	eps = slices.Clone(eps)
	b.mu.RUnlock()

	if !ok {
		routeMissesTotal.Inc()
		b.logger.DebugContext(ctx, "no route", slog.String("target", target), slog.String("source", source))
		return
	}
	b.deliver(ctx, modeUnicast, target, source, content, eps)
}

// Multicast sends content to every endpoint under every name, the sender's
// own name included.
func (b *Broker) Multicast(ctx context.Context, content json.RawMessage, source string) {
	type route struct {
		name string
		eps  []*endpoint.Endpoint
	}

	b.mu.RLock()
	routes := make([]route, 0, b.routes.Len())
	for pair := b.routes.Oldest(); pair != nil; pair = pair.Next() {
		routes = append(routes, route{name: pair.Key, eps: slices.Clone(pair.Value)})
	}
	b.mu.RUnlock()

	for _, r := range routes {
		b.deliver(ctx, modeMulticast, r.name, source, content, r.eps)
	}
}

func (b *Broker) deliver(ctx context.Context, mode, target, source string, content json.RawMessage, eps []*endpoint.Endpoint) {
	env := envelope.Envelope{
		Type:    envelope.SendMessage,
		Target:  target,
		Source:  source,
		Content: content,
	}
	for _, ep := range eps {
		if ep.IsClosed() {
			closedSkipsTotal.Inc()
			b.logger.WarnContext(ctx, "target left", slog.String("target", ep.Name()), slogx.Handle("endpoint", ep.Handle()))
			continue
		}
		if err := ep.Send(ctx, env); err != nil {
			sendFailuresTotal.Inc()
			b.logger.ErrorContext(ctx, "failed to deliver", slogx.Error(err), slog.String("target", ep.Name()))
			continue
		}
		deliveriesTotal.WithLabelValues(mode).Inc()
	}
}

// Names returns the registered names in the order they first registered.
func (b *Broker) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, b.routes.Len())
	for pair := b.routes.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Endpoints returns the endpoints registered under name in registration order.
func (b *Broker) Endpoints(name string) []*endpoint.Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	eps, _ := b.routes.Get(name)
	return slices.Clone(eps)
}
