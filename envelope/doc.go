// Package envelope implements the wire format exchanged between peers and the
// broker. Every message travelling over a transport is a single string made of
// a fixed prefix followed by a JSON object:
//
//	[MESSAGE_PREFIX]{"type":"UNICASTMSG","target":"beta","source":"alpha","content":{"x":1}}
//
// Design decisions:
//   - Closed vocabulary: Command is an enum, unknown wire strings never parse
//   - Discriminated result: Parse returns an Envelope or an error wrapping
//     ErrParseFailure, it never panics on hostile input
//   - Raw content: payloads stay as raw JSON until a listener decodes them,
//     so the broker forwards content without re-encoding it
//   - Hand-built JSON: envelopes are assembled with sjson and read with gjson,
//     the same way the rest of the module treats small JSON documents
//
// Example usage:
//
//	raw, err := envelope.Encode(envelope.Envelope{
//	    Type:    envelope.UnicastMessage,
//	    Target:  "beta",
//	    Source:  "alpha",
//	    Content: json.RawMessage(`"hi"`),
//	})
//	if err != nil {
//	    return err
//	}
//
//	env, err := envelope.Parse(raw)
//	if errors.Is(err, envelope.ErrParseFailure) {
//	    // drop it
//	}
package envelope
