/*
Package hoot is a small pub/sub message broker for isolated execution contexts
that must talk to each other without holding references to one another, like
sibling frames embedded in one host page.

One context is the top-level context. The first peer created for it lazily
starts a broker there; every peer, including that first one, then registers a
logical name with the broker and sends all its traffic through it.

# Basic Usage

	tr := transport.NewMemory()
	top := tr.Open("top")

	alpha, err := hoot.NewPeer(ctx, tr, tr.Open("alpha"), top, "alpha")
	if err != nil {
		return err
	}
	beta, err := hoot.NewPeer(ctx, tr, tr.Open("beta"), top, "beta")
	if err != nil {
		return err
	}

	beta.Listen(func(ctx context.Context, content json.RawMessage, ev pubsub.Event) {
		fmt.Printf("%s says %s\n", ev.Source, content)
	})

	<-alpha.Ready()
	if err := alpha.Send(ctx, "beta", "hi"); err != nil {
		return err
	}

# Registration

A peer sends REQREG as soon as it is created and may only send once the
broker's RESREG arrived. Send returns ErrNotRegistered before that. There is no
timeout and no retry: a peer whose response got lost stays unable to send.
Ready exposes the moment registration completed for callers that want to wait.

# Routing

Unicast messages reach every endpoint registered under the target name, in
registration order. Multicast messages reach every endpoint under every name,
the sender included. Names nobody registered are silently ignored. Endpoints
whose context closed are skipped and logged as "target left" but are never
removed from the routing table automatically.

# Brokers

The broker of a top-level context is created at most once per process, keyed
by the context's handle id. Processes that do not own the top-level context
pass HostBroker(false) and rely on the owner to run it.
*/
package hoot
