// Package protocol defines the JSON frame types exchanged with the gateway.
//
// Every frame on the wire is an envelope {"type": ..., "data": {...}}. Inbound
// bytes are parsed with Parse, which never fails: anything that is not a
// well-formed frame of a known type degrades to an opaque frame carrying the
// raw payload, so diagnostic subscribers can still observe it and a malformed
// message can never crash the client.
package protocol
