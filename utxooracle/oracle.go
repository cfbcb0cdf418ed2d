package utxooracle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// UTXO is the unspent-output data an oracle reports for one outpoint that
// was found unspent.
type UTXO struct {
	Value    int64
	PkScript []byte
}

// Result is the answer to a "get UTXO" query: HitMap has one entry per
// queried outpoint (true iff that outpoint is currently unspent), and
// Outputs carries the UTXO data for each hit, in hit order.
type Result struct {
	HitMap  []bool
	Outputs []*UTXO
}

// Equal reports whether two results describe the same hit-map and the same
// output data, which is exactly the agreement a peer-set oracle requires
// across all its peers.
func (r *Result) Equal(other *Result) bool {
	if other == nil || len(r.HitMap) != len(other.HitMap) || len(r.Outputs) != len(other.Outputs) {
		return false
	}
	for i := range r.HitMap {
		if r.HitMap[i] != other.HitMap[i] {
			return false
		}
	}
	for i := range r.Outputs {
		a, b := r.Outputs[i], other.Outputs[i]
		if a.Value != b.Value || !bytes.Equal(a.PkScript, b.PkScript) {
			return false
		}
	}
	return true
}

// Peer is a single full node capable of answering a UTXO query. Production
// peers are backed by a neutrino/SPV connection; tests supply an
// in-memory fake.
type Peer interface {
	QueryUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*Result, error)
	String() string
}

// InconsistentUTXOAnswers is returned when the queried peers disagree about
// the UTXO state of the outpoints. No peer's answer can be trusted in that
// case, so none is returned.
type InconsistentUTXOAnswers struct {
	PeerCount int
	Outpoints []wire.OutPoint
}

func (e *InconsistentUTXOAnswers) Error() string {
	return fmt.Sprintf("%d peers disagreed on the UTXO state of %d outpoints",
		e.PeerCount, len(e.Outpoints))
}

// Oracle answers a UTXO query, either directly against a peer set or
// through a batching layer in front of one.
type Oracle interface {
	LookupUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*Result, error)
}
