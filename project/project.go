// Package project implements the Project entity: a pure function of its
// envelope bytes (identity, outputs, goal, metadata, owner authentication).
// Nothing in this package performs I/O; parsing, hashing and accessors are
// all deterministic over the bytes handed to ParseProject.
package project

import (
	"fmt"
	"net/url"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/vinumeris/lighthouse/envelope"
)

// ParseError is returned by ParseProject when the envelope decodes but is
// semantically invalid.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid project: %s", e.Reason)
}

func parseErr(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Project is an immutable, parsed project envelope. Its identity is the
// double-SHA256 of the raw bytes it was parsed from, never of any
// re-encoding of its fields -- extension fields an author adds cannot
// therefore collide with or be silently re-parented onto the canonical
// form.
type Project struct {
	raw     []byte
	id      chainhash.Hash
	details *envelope.ProjectDetails
	extra   *envelope.ExtraDetails
	params  *chaincfg.Params
}

// ParseProject decodes and validates a project envelope. It fails with a
// *ParseError if the bytes do not decode, the network token is unknown, the
// goal is non-positive, any output amount is non-positive, or the stated
// payment URL has no host.
func ParseProject(raw []byte) (*Project, error) {
	env, err := envelope.UnmarshalProject(raw)
	if err != nil {
		return nil, parseErr("%v", err)
	}

	details, err := envelope.UnmarshalProjectDetails(env.SerializedDetails)
	if err != nil {
		return nil, parseErr("%v", err)
	}

	params, err := networkParams(details.Network)
	if err != nil {
		return nil, err
	}

	if len(details.Outputs) == 0 {
		return nil, parseErr("project has no outputs")
	}

	var goal int64
	for i, out := range details.Outputs {
		if out.Amount <= 0 {
			return nil, parseErr("output %d has non-positive amount %d", i, out.Amount)
		}
		goal += out.Amount
	}
	if goal <= 0 {
		return nil, parseErr("goal must be positive, got %d", goal)
	}

	if details.PaymentURL != "" {
		u, err := url.Parse(details.PaymentURL)
		if err != nil || u.Host == "" {
			return nil, parseErr("payment URL %q has no host", details.PaymentURL)
		}
	}

	extra := &envelope.ExtraDetails{}
	if len(details.Extra) > 0 {
		extra, err = envelope.DecodeExtraDetails(details.Extra)
		if err != nil {
			return nil, parseErr("%v", err)
		}
	}

	return &Project{
		raw:     append([]byte(nil), raw...),
		id:      chainhash.DoubleHashH(raw),
		details: details,
		extra:   extra,
		params:  params,
	}, nil
}

// ID is the 32-byte double-SHA256 of the envelope bytes this project was
// parsed from.
func (p *Project) ID() chainhash.Hash {
	return p.id
}

// Bytes returns the exact envelope bytes this project was parsed from, for
// byte-exact re-emission (MIME type application/vnd.vinumeris.lighthouse-project).
func (p *Project) Bytes() []byte {
	return append([]byte(nil), p.raw...)
}

// Outputs returns the project's ordered, immutable output list.
func (p *Project) Outputs() []*envelope.Output {
	out := make([]*envelope.Output, len(p.details.Outputs))
	copy(out, p.details.Outputs)
	return out
}

// Goal is the sum of the project's output amounts.
func (p *Project) Goal() int64 {
	var total int64
	for _, out := range p.details.Outputs {
		total += out.Amount
	}
	return total
}

// MinPledgeSize is the minimum totalInputValue a pledge toward this project
// may declare.
func (p *Project) MinPledgeSize() uint64 {
	return p.extra.MinPledgeSize
}

// Title is the project's human-readable name.
func (p *Project) Title() string {
	return p.extra.Title
}

// Memo is the project's optional free-text memo.
func (p *Project) Memo() string {
	return p.details.Memo
}

// CreatedAt and ExpiresAt are the envelope's unix-second timestamps.
func (p *Project) CreatedAt() int64 { return p.details.CreatedAt }
func (p *Project) ExpiresAt() int64 { return p.details.ExpiresAt }

// AuthorKey is the compressed secp256k1 public key the project owner proves
// authorship with.
func (p *Project) AuthorKey() []byte {
	return p.extra.AuthorKey
}

// AuthorKeyIndex is the author key's HD derivation index, present only when
// it falls outside a restored wallet's lookahead window.
func (p *Project) AuthorKeyIndex() *uint32 {
	return p.extra.AuthorKeyIndex
}

// NetworkParams is the chain this project's outputs and any claim
// transaction belong to.
func (p *Project) NetworkParams() *chaincfg.Params {
	return p.params
}

// reservedLocalTestPort is substituted for any localhost payment URL's
// port, so local development servers are always reachable at one fixed
// address regardless of what the project envelope originally recorded.
const reservedLocalTestPort = "36000"

// PaymentURL parses the project's payment URL, if any. When the URL's host
// is "localhost" its port is rewritten to the reserved local test port.
func (p *Project) PaymentURL() (*url.URL, error) {
	if p.details.PaymentURL == "" {
		return nil, nil
	}

	u, err := url.Parse(p.details.PaymentURL)
	if err != nil {
		return nil, err
	}

	if u.Hostname() == "localhost" {
		u.Host = "localhost:" + reservedLocalTestPort
	}

	return u, nil
}
