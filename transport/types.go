package transport

import (
	"context"
	"errors"
)

var (
	ErrClosed        = errors.New("transport: context is closed")
	ErrUnknownHandle = errors.New("transport: unknown context handle")
	ErrNilHandle     = errors.New("transport: nil context handle")
)

// Handle identifies a context reachable through a Transport.
type Handle interface {
	ID() string
}

// Delivery receives one raw payload together with the handle of the context
// that sent it.
type Delivery func(ctx context.Context, raw string, origin Handle)

type Transport interface {
	// Send delivers raw to the context identified by to. It does not wait for
	// the payload to be handled.
	Send(ctx context.Context, from, to Handle, raw string) error
	// Subscribe registers fn for every payload delivered to h.
	Subscribe(ctx context.Context, h Handle, fn Delivery) (Subscription, error)
	// IsClosed reports whether the context behind h can no longer receive.
	IsClosed(h Handle) bool
}

type Subscription interface {
	ID() string
	Unsubscribe()
}
