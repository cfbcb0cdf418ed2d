package envelope

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Output is a single fixed payment destination of a project: an amount in
// satoshis and the output script that must receive it.
type Output struct {
	Amount int64
	Script []byte
}

func (o *Output) marshalAppend(b []byte) []byte {
	b = protowire.AppendTag(b, fieldOutputAmount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(o.Amount))
	b = protowire.AppendTag(b, fieldOutputScript, protowire.BytesType)
	b = protowire.AppendBytes(b, o.Script)
	return b
}

func unmarshalOutput(b []byte) (*Output, error) {
	out := &Output{}
	err := fieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldOutputAmount:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			out.Amount = int64(v)
			return n
		case fieldOutputScript:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			out.Script = append([]byte(nil), v...)
			return n
		default:
			return skipField(typ, rest)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProjectDetails is the decoded payload of a Project envelope's
// serialized_payment_details field.
type ProjectDetails struct {
	Network    string
	Outputs    []*Output
	CreatedAt  int64
	ExpiresAt  int64
	Memo       string
	PaymentURL string
	OwnerBlob  []byte
	Extra      []byte // TLV-encoded ExtraDetails, see envelope/extra.go
}

// Marshal serializes the project details to canonical protobuf bytes.
func (d *ProjectDetails) Marshal() []byte {
	var b []byte

	b = protowire.AppendTag(b, fieldDetailsNetwork, protowire.BytesType)
	b = protowire.AppendString(b, d.Network)

	for _, out := range d.Outputs {
		var ob []byte
		ob = out.marshalAppend(ob)
		b = protowire.AppendTag(b, fieldDetailsOutputs, protowire.BytesType)
		b = protowire.AppendBytes(b, ob)
	}

	b = protowire.AppendTag(b, fieldDetailsCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.CreatedAt))

	b = protowire.AppendTag(b, fieldDetailsExpiresAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.ExpiresAt))

	if d.Memo != "" {
		b = protowire.AppendTag(b, fieldDetailsMemo, protowire.BytesType)
		b = protowire.AppendString(b, d.Memo)
	}

	if d.PaymentURL != "" {
		b = protowire.AppendTag(b, fieldDetailsPaymentURL, protowire.BytesType)
		b = protowire.AppendString(b, d.PaymentURL)
	}

	if len(d.OwnerBlob) > 0 {
		b = protowire.AppendTag(b, fieldDetailsOwnerBlob, protowire.BytesType)
		b = protowire.AppendBytes(b, d.OwnerBlob)
	}

	if len(d.Extra) > 0 {
		b = protowire.AppendTag(b, fieldDetailsExtra, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Extra)
	}

	return b
}

// UnmarshalProjectDetails parses the bytes of a ProjectDetails message.
func UnmarshalProjectDetails(b []byte) (*ProjectDetails, error) {
	d := &ProjectDetails{}

	err := fieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldDetailsNetwork:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return n
			}
			d.Network = v
			return n
		case fieldDetailsOutputs:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			out, err := unmarshalOutput(v)
			if err != nil {
				return -1
			}
			d.Outputs = append(d.Outputs, out)
			return n
		case fieldDetailsCreatedAt:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			d.CreatedAt = int64(v)
			return n
		case fieldDetailsExpiresAt:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return n
			}
			d.ExpiresAt = int64(v)
			return n
		case fieldDetailsMemo:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return n
			}
			d.Memo = v
			return n
		case fieldDetailsPaymentURL:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return n
			}
			d.PaymentURL = v
			return n
		case fieldDetailsOwnerBlob:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			d.OwnerBlob = append([]byte(nil), v...)
			return n
		case fieldDetailsExtra:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			d.Extra = append([]byte(nil), v...)
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

// Project is the outer envelope message. Its bytes, not any re-encoding of
// its fields, are what the project identity hash is computed over (see
// project.Project.ID), so SerializedDetails is kept verbatim as parsed and
// project.Project holds on to the envelope bytes it was parsed from.
type Project struct {
	SerializedDetails []byte
}

// Marshal serializes the envelope to canonical protobuf bytes.
func (p *Project) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldProjectSerializedDetails, protowire.BytesType)
	b = protowire.AppendBytes(b, p.SerializedDetails)
	return b
}

// UnmarshalProject parses the bytes of a Project envelope message.
func UnmarshalProject(b []byte) (*Project, error) {
	p := &Project{}

	err := fieldReader(b, func(num protowire.Number, typ protowire.Type, rest []byte) int {
		switch num {
		case fieldProjectSerializedDetails:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return n
			}
			p.SerializedDetails = append([]byte(nil), v...)
			return n
		default:
			return skipField(typ, rest)
		}
	})
	if err != nil {
		return nil, err
	}
	if p.SerializedDetails == nil {
		return nil, malformed("missing serialized_payment_details")
	}

	return p, nil
}
