// Package transport defines the cross-context delivery primitive the broker
// protocol runs on, and ships two implementations of it.
//
// A context is an isolated execution environment with its own event loop. The
// protocol only needs three things from the layer underneath:
//   - Send: fire-and-forget delivery of a string to a context
//   - Subscribe: a callback invoked with (payload, origin) for every delivery
//   - IsClosed: a liveness probe for a context
//
// Design decisions:
//   - One loop per context: every implementation delivers to all subscribers of
//     a context from a single goroutine, so listeners in one context never run
//     concurrently with each other
//   - Never block the sender: inbound queues are unbounded, which lets a
//     listener send to its own context from inside a delivery
//   - FIFO per pair: deliveries from one sender to one receiver keep their order
//   - Opaque handles: a Handle is only an identity, the transport owns the state
//
// Implementations:
//   - Memory: process-local contexts, used by tests and single-process hosts
//   - NATS: contexts are subjects on a NATS server, liveness is a request/reply probe
//
// Example usage:
//
//	tr := transport.NewMemory()
//	top := tr.Open("top")
//	frame := tr.Open("frame-1")
//
//	sub, err := tr.Subscribe(ctx, top, func(ctx context.Context, raw string, origin transport.Handle) {
//	    // handle raw payload sent by origin
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	_ = tr.Send(ctx, frame, top, "hello")
package transport
