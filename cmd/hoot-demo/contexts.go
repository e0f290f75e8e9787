package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/hoot/pkg/natsx"
	"github.com/casualjim/hoot/transport"
	"github.com/nats-io/nats.go"
)

// contexts is a transport that can also open and close the contexts peers
// live in.
type contexts interface {
	transport.Transport
	open(label string) (transport.Handle, error)
	close(h transport.Handle) error
	shutdown()
}

type memoryContexts struct {
	*transport.Memory
}

func (m memoryContexts) open(label string) (transport.Handle, error) {
	return m.Open(label), nil
}

func (m memoryContexts) close(h transport.Handle) error {
	return m.Close(h)
}

func (m memoryContexts) shutdown() {
	m.Shutdown()
}

type natsContexts struct {
	*transport.NATS
	client *nats.Conn
	opened []transport.Handle
}

func (n *natsContexts) open(label string) (transport.Handle, error) {
	h, err := n.Open(label)
	if err != nil {
		return nil, err
	}
	n.opened = append(n.opened, h)
	return h, nil
}

func (n *natsContexts) close(h transport.Handle) error {
	return n.Close(h)
}

func (n *natsContexts) shutdown() {
	for _, h := range n.opened {
		_ = n.Close(h)
	}
	n.client.Close()
}

func newContexts(_ context.Context, cfg Config, logger *slog.Logger) (contexts, error) {
	switch cfg.Transport {
	case transportMemory:
		return memoryContexts{transport.NewMemory()}, nil
	case transportNATS:
		nc, err := natsx.Connect(cfg.NATSURL, nats.Name("hoot-demo"), nats.Compression(true))
		if err != nil {
			return nil, fmt.Errorf("connect to nats at %s: %w", natsx.ResolveURL(cfg.NATSURL), err)
		}
		tr, err := transport.NewNATS(nc,
			transport.WithSubjectPrefix(cfg.SubjectPrefix),
			transport.WithLivenessTimeout(cfg.LivenessTimeout),
			transport.WithNATSLogger(logger),
		)
		if err != nil {
			nc.Close()
			return nil, err
		}
		return &natsContexts{NATS: tr, client: nc}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
