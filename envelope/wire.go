package envelope

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers for the Project envelope message.
const (
	fieldProjectSerializedDetails protowire.Number = 1
)

// field numbers for ProjectDetails.
const (
	fieldDetailsNetwork     protowire.Number = 1
	fieldDetailsOutputs     protowire.Number = 2
	fieldDetailsCreatedAt   protowire.Number = 3
	fieldDetailsExpiresAt   protowire.Number = 4
	fieldDetailsMemo        protowire.Number = 5
	fieldDetailsPaymentURL  protowire.Number = 6
	fieldDetailsOwnerBlob   protowire.Number = 7
	fieldDetailsExtra       protowire.Number = 8
)

// field numbers for Output.
const (
	fieldOutputAmount protowire.Number = 1
	fieldOutputScript protowire.Number = 2
)

// field numbers for the Pledge envelope message.
const (
	fieldPledgeTransactions protowire.Number = 1
	fieldPledgeDetails      protowire.Number = 2
)

// field numbers for PledgeDetails.
const (
	fieldPledgeDetailsTotalValue protowire.Number = 1
	fieldPledgeDetailsTimestamp  protowire.Number = 2
	fieldPledgeDetailsProjectID  protowire.Number = 3
	fieldPledgeDetailsOrigHash   protowire.Number = 4
)

// field numbers for ProjectStatus.
const (
	fieldStatusID            protowire.Number = 1
	fieldStatusTimestamp      protowire.Number = 2
	fieldStatusValuePledged   protowire.Number = 3
	fieldStatusPledges        protowire.Number = 4
	fieldStatusClaimedBy      protowire.Number = 5
)

// ErrMalformed is returned whenever a message's bytes do not decode as a
// well-formed protobuf stream of the expected shape.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed envelope: %s", e.Reason)
}

func malformed(format string, args ...interface{}) error {
	return &ErrMalformed{Reason: fmt.Sprintf(format, args...)}
}

// fieldReader walks a flat protobuf-encoded message, invoking fn once per
// field encountered with its number, wire type and remaining buffer
// positioned just after the tag. fn must consume exactly one value (via the
// appropriate protowire.Consume* helper) and return the number of bytes it
// consumed, or a negative number to signal a decode error.
func fieldReader(b []byte, fn func(num protowire.Number, typ protowire.Type, rest []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("invalid tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		consumed := fn(num, typ, b)
		if consumed < 0 {
			return malformed("invalid field %d: %v", num,
				protowire.ParseError(consumed))
		}
		b = b[consumed:]
	}
	return nil
}

// skipField consumes and discards a field's value given its wire type, for
// fields this codec does not recognize. Unrecognized extension fields must
// not perturb the canonical byte-hash, since identity is taken over the raw
// envelope bytes, never over a re-encoding -- so unknown fields are simply
// skipped rather than rejected.
func skipField(typ protowire.Type, b []byte) int {
	_, n := protowire.ConsumeFieldValue(0, typ, b)
	return n
}
