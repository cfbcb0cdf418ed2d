package envelope

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// ProjectStatus is the message a server's GET .../project/{id}[.format]
// response carries: a snapshot of a project's pledge progress as observed by
// that server, optionally including the pledges themselves.
type ProjectStatus struct {
	ID                []byte
	Timestamp         int64
	ValuePledgedSoFar int64
	Pledges           []*Pledge

	// ClaimedBy is the txid of the claim transaction, set only once the
	// project's pledges have been broadcast as a single funding
	// transaction.
	ClaimedBy []byte
}

// Marshal serializes the project status to canonical protobuf bytes.
func (s *ProjectStatus) Marshal() []byte {
	var b []byte

	b = protowire.AppendTag(b, fieldStatusID, protowire.BytesType)
	b = protowire.AppendBytes(b, s.ID)

	b = protowire.AppendTag(b, fieldStatusTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Timestamp))

	b = protowire.AppendTag(b, fieldStatusValuePledged, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.ValuePledgedSoFar))

	for _, p := range s.Pledges {
		var pb []byte
		pb = append(pb, p.Marshal()...)
		b = protowire.AppendTag(b, fieldStatusPledges, protowire.BytesType)
		b = protowire.AppendBytes(b, pb)
	}

	if len(s.ClaimedBy) > 0 {
		b = protowire.AppendTag(b, fieldStatusClaimedBy, protowire.BytesType)
		b = protowire.AppendBytes(b, s.ClaimedBy)
	}

	return b
}

// UnmarshalProjectStatus parses the bytes of a ProjectStatus message.
func UnmarshalProjectStatus(b []byte) (*ProjectStatus, error) {
	s := &ProjectStatus{}

	err := fieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldStatusID:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			s.ID = append([]byte(nil), v...)
			return n
		case fieldStatusTimestamp:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			s.Timestamp = int64(v)
			return n
		case fieldStatusValuePledged:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			s.ValuePledgedSoFar = int64(v)
			return n
		case fieldStatusPledges:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			pledge, err := UnmarshalPledge(v)
			if err != nil {
				return -1
			}
			s.Pledges = append(s.Pledges, pledge)
			return n
		case fieldStatusClaimedBy:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			s.ClaimedBy = append([]byte(nil), v...)
			return n
		default:
			return skipField(typ, rest)
		}
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}
