// Package envelope implements the wire codec for the two on-disk/on-wire
// messages of the assurance-contract protocol: the project envelope and the
// pledge envelope. Both are payment-protocol-shaped: a small outer message
// carrying one opaque, length-delimited inner payload, so that the outer
// message's raw bytes -- not some canonicalized re-encoding of its fields --
// are what identity hashes are computed over.
//
// Encoding uses the standard protobuf wire format via
// google.golang.org/protobuf/encoding/protowire directly, in the manner
// lnwire hand-rolls its own message codec (see lnwire.WriteMessage) rather
// than through generated bindings, since nothing in this tree is
// protoc-generated.
package envelope
