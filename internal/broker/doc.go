// Package broker implements the routing authority that lives in the top-level
// context. Peers register a name with it and then address each other by name;
// the broker owns the routing table that turns names into context handles.
//
// Design decisions:
//   - Composition: a Broker holds a pubsub.PubSub for its context instead of
//     being one, and only wires the three commands it understands
//   - Append-only table: every registration appends an endpoint, nothing is
//     deduplicated and nothing is pruned automatically
//   - Skip, don't prune: endpoints whose context closed are skipped with a
//     "target left" warning and stay in the table; Unregister is the explicit
//     way to drop them
//   - Inclusive multicast: a multicast reaches every registered name, the
//     sender's own name included
//   - Silent misses: routing to a name nobody registered is a no-op, since a
//     sender cannot tell "not joined yet" from "never existed"
//
// Protocol:
//
//	peer   ── REQREG{source:name} ─────────▶ broker   append endpoint(origin, name)
//	peer   ◀──────────── RESREG{target:name} broker
//	peer   ── UNICASTMSG{target,content} ──▶ broker   Route(content, target, source)
//	peer   ── MULTICASTMSG{content} ───────▶ broker   Multicast(content, source)
//	target ◀── SENDMSG{target,source,content} broker
//
// Example usage:
//
//	b, err := broker.New(tr, top)
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Close()
//
// Counters for registrations, deliveries, closed-context skips, misses and
// transport failures are exported through the default prometheus registry
// under the hoot_broker_ prefix.
package broker
