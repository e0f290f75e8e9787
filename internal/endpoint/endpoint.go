package endpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/hoot/envelope"
	"github.com/casualjim/hoot/transport"
)

// ErrInvalidArgument is returned when an endpoint is built from missing parts.
var ErrInvalidArgument = errors.New("endpoint: invalid argument")

// Endpoint binds a context handle to the logical name it registered under.
// Sends leave from the context identified by from.
type Endpoint struct {
	transport transport.Transport
	from      transport.Handle
	to        transport.Handle
	name      string
}

// New binds the context to under name; envelopes leave from the context from.
func New(tr transport.Transport, from, to transport.Handle, name string) (*Endpoint, error) {
	switch {
	case tr == nil:
		return nil, fmt.Errorf("%w: transport is required", ErrInvalidArgument)
	case from == nil:
		return nil, fmt.Errorf("%w: sending context handle is required", ErrInvalidArgument)
	case to == nil:
		return nil, fmt.Errorf("%w: context handle is required", ErrInvalidArgument)
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	return &Endpoint{transport: tr, from: from, to: to, name: name}, nil
}

func (e *Endpoint) Name() string {
	return e.name
}

// Handle returns the context this endpoint delivers to.
func (e *Endpoint) Handle() transport.Handle {
	return e.to
}

// Send encodes env and hands it to the transport. There is no acknowledgment.
func (e *Endpoint) Send(ctx context.Context, env envelope.Envelope) error {
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	if err := e.transport.Send(ctx, e.from, e.to, raw); err != nil {
		return fmt.Errorf("send %s to %q: %w", env.Type, e.name, err)
	}
	return nil
}

// IsClosed reports whether the bound context is gone. Closed endpoints must not
// be sent to but stay wherever they are referenced.
func (e *Endpoint) IsClosed() bool {
	return e.transport.IsClosed(e.to)
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("%s@%s", e.name, e.to.ID())
}
