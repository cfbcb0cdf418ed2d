package envelope

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// PledgeDetails is the decoded payload of a Pledge envelope's pledgeDetails
// field.
type PledgeDetails struct {
	TotalInputValue int64
	Timestamp       int64
	ProjectID       string
	// OrigHash is the hash this message self-reports before any field was
	// scrubbed. Set only on pledges a server has stripped transaction
	// data from.
	OrigHash []byte
}

func (d *PledgeDetails) marshalAppend(b []byte) []byte {
	b = protowire.AppendTag(b, fieldPledgeDetailsTotalValue, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.TotalInputValue))

	b = protowire.AppendTag(b, fieldPledgeDetailsTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Timestamp))

	b = protowire.AppendTag(b, fieldPledgeDetailsProjectID, protowire.BytesType)
	b = protowire.AppendString(b, d.ProjectID)

	if len(d.OrigHash) > 0 {
		b = protowire.AppendTag(b, fieldPledgeDetailsOrigHash, protowire.BytesType)
		b = protowire.AppendBytes(b, d.OrigHash)
	}

	return b
}

func unmarshalPledgeDetails(b []byte) (*PledgeDetails, error) {
	d := &PledgeDetails{}

	err := fieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldPledgeDetailsTotalValue:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			d.TotalInputValue = int64(v)
			return n
		case fieldPledgeDetailsTimestamp:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			d.Timestamp = int64(v)
			return n
		case fieldPledgeDetailsProjectID:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return n
			}
			d.ProjectID = v
			return n
		case fieldPledgeDetailsOrigHash:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			d.OrigHash = append([]byte(nil), v...)
			return n
		default:
			return skipField(typ, rest)
		}
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Pledge is the outer Pledge envelope message. Transactions holds the
// pledge's transaction list: the last entry is the pledge transaction
// itself, earlier entries (if any) are dependency transactions it spends
// from that must also be broadcast for it to be valid.
type Pledge struct {
	Transactions  [][]byte
	PledgeDetails *PledgeDetails
}

// Marshal serializes the pledge envelope to canonical protobuf bytes.
func (p *Pledge) Marshal() []byte {
	var b []byte

	for _, tx := range p.Transactions {
		b = protowire.AppendTag(b, fieldPledgeTransactions, protowire.BytesType)
		b = protowire.AppendBytes(b, tx)
	}

	if p.PledgeDetails != nil {
		var db []byte
		db = p.PledgeDetails.marshalAppend(db)
		b = protowire.AppendTag(b, fieldPledgeDetails, protowire.BytesType)
		b = protowire.AppendBytes(b, db)
	}

	return b
}

// UnmarshalPledge parses the bytes of a Pledge envelope message.
func UnmarshalPledge(b []byte) (*Pledge, error) {
	p := &Pledge{}

	err := fieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldPledgeTransactions:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			p.Transactions = append(p.Transactions, append([]byte(nil), v...))
			return n
		case fieldPledgeDetails:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			details, err := unmarshalPledgeDetails(v)
			if err != nil {
				return -1
			}
			p.PledgeDetails = details
			return n
		default:
			return skipField(typ, rest)
		}
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}
