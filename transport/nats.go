package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/nats-io/nats.go"
)

const (
	// HeaderOrigin carries the id of the sending context.
	HeaderOrigin = "Hoot-Origin"

	defaultSubjectPrefix   = "hoot.ctx"
	defaultLivenessTimeout = 250 * time.Millisecond
)

var _ Transport = (*NATS)(nil)

// NATS maps every context onto the subject <prefix>.<id>. A context opened in
// this process also answers liveness probes on <prefix>.<id>.alive; a context
// nobody answers for is considered closed.
type NATS struct {
	client          *nats.Conn
	prefix          string
	livenessTimeout time.Duration
	logger          *slog.Logger
	contexts        *haxmap.Map[string, *natsContext]
}

var (
	// WithSubjectPrefix sets the subject namespace contexts live under.
	WithSubjectPrefix = opts.ForName[NATS, string]("prefix")
	// WithLivenessTimeout bounds how long IsClosed waits for a liveness reply.
	WithLivenessTimeout = opts.ForName[NATS, time.Duration]("livenessTimeout")
	// WithNATSLogger sets the logger used for delivery failures.
	WithNATSLogger = opts.ForName[NATS, *slog.Logger]("logger")
)

func NewNATS(client *nats.Conn, options ...opts.Option[NATS]) (*NATS, error) {
	if client == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	t := &NATS{
		client:          client,
		prefix:          defaultSubjectPrefix,
		livenessTimeout: defaultLivenessTimeout,
		logger:          slog.Default(),
		contexts:        haxmap.New[string, *natsContext](),
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}
	return t, nil
}

// Handle refers to a context that may live in another process.
func (t *NATS) Handle(id string) (Handle, error) {
	if err := validateToken(id); err != nil {
		return nil, err
	}
	return natsHandle(id), nil
}

// Open claims the context id for this process: deliveries to it are fanned out
// to local subscribers and liveness probes are answered until Close.
func (t *NATS) Open(id string) (Handle, error) {
	h, err := t.Handle(id)
	if err != nil {
		return nil, err
	}

	c := &natsContext{handle: natsHandle(id)}
	if _, loaded := t.contexts.GetOrSet(id, c); loaded {
		return nil, fmt.Errorf("transport: context %q is already open", id)
	}

	inbox, err := t.client.Subscribe(t.subject(h), func(msg *nats.Msg) {
		var origin Handle
		if from := msg.Header.Get(HeaderOrigin); from != "" {
			origin = natsHandle(from)
		}
		c.subscribers.deliver(string(msg.Data), origin)
	})
	if err != nil {
		t.contexts.Del(id)
		return nil, fmt.Errorf("subscribe %s: %w", t.subject(h), err)
	}

	alive, err := t.client.Subscribe(t.aliveSubject(h), func(msg *nats.Msg) {
		if rerr := msg.Respond(nil); rerr != nil {
			t.logger.Error("failed to answer liveness probe", slogx.Error(rerr), slog.String("context", id))
		}
	})
	if err != nil {
		_ = inbox.Unsubscribe()
		t.contexts.Del(id)
		return nil, fmt.Errorf("subscribe %s: %w", t.aliveSubject(h), err)
	}

	c.inbox, c.alive = inbox, alive
	if err := t.client.Flush(); err != nil {
		t.logger.Warn("failed to flush subscriptions", slogx.Error(err), slog.String("context", id))
	}
	return h, nil
}

// Close stops delivering to and answering for a context opened by this process.
func (t *NATS) Close(h Handle) error {
	if h == nil {
		return ErrNilHandle
	}
	c, ok := t.contexts.Get(h.ID())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h.ID())
	}
	return c.close()
}

func (t *NATS) Send(ctx context.Context, from, to Handle, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == nil {
		return ErrNilHandle
	}
	if c, ok := t.contexts.Get(to.ID()); ok && c.closed.Load() {
		return fmt.Errorf("%w: %s", ErrClosed, to.ID())
	}

	msg := nats.NewMsg(t.subject(to))
	msg.Data = []byte(raw)
	if from != nil {
		msg.Header.Set(HeaderOrigin, from.ID())
	}
	return t.client.PublishMsg(msg)
}

func (t *NATS) Subscribe(ctx context.Context, h Handle, fn Delivery) (Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("delivery callback is required")
	}
	if h == nil {
		return nil, ErrNilHandle
	}
	c, ok := t.contexts.Get(h.ID())
	if !ok {
		return nil, fmt.Errorf("%w: %s is not open in this process", ErrUnknownHandle, h.ID())
	}
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: %s", ErrClosed, h.ID())
	}
	return c.subscribers.add(ctx, fn), nil
}

func (t *NATS) IsClosed(h Handle) bool {
	if h == nil {
		return true
	}
	if c, ok := t.contexts.Get(h.ID()); ok {
		return c.closed.Load()
	}
	if _, err := t.client.Request(t.aliveSubject(h), nil, t.livenessTimeout); err != nil {
		if !errors.Is(err, nats.ErrNoResponders) && !errors.Is(err, nats.ErrTimeout) {
			t.logger.Warn("liveness probe failed", slogx.Error(err), slog.String("context", h.ID()))
		}
		return true
	}
	return false
}

func (t *NATS) subject(h Handle) string {
	return t.prefix + "." + h.ID()
}

func (t *NATS) aliveSubject(h Handle) string {
	return t.subject(h) + ".alive"
}

func validateToken(id string) error {
	if id == "" {
		return fmt.Errorf("transport: context id is required")
	}
	if strings.ContainsAny(id, ".*> \t\r\n") {
		return fmt.Errorf("transport: context id %q is not a valid subject token", id)
	}
	return nil
}

type natsHandle string

func (h natsHandle) ID() string { return string(h) }

func (h natsHandle) String() string { return string(h) }

type natsContext struct {
	handle      natsHandle
	subscribers fanout
	inbox       *nats.Subscription
	alive       *nats.Subscription
	closed      atomic.Bool
	closeOnce   sync.Once
}

func (c *natsContext) close() error {
	var errs []error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.subscribers.clear()
		for _, sub := range []*nats.Subscription{c.alive, c.inbox} {
			if sub == nil {
				continue
			}
			if err := sub.Unsubscribe(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
