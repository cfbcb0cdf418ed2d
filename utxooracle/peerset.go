package utxooracle

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"
)

// PeerSetOracle queries every configured peer in parallel and only trusts
// the answer when all of them agree bit-for-bit.
type PeerSetOracle struct {
	Peers []Peer
}

// NewPeerSetOracle builds an oracle over the given peers. At least one peer
// is required.
func NewPeerSetOracle(peers []Peer) *PeerSetOracle {
	return &PeerSetOracle{Peers: peers}
}

// LookupUTXOs queries every peer concurrently, waits for all replies, and
// succeeds only if they are byte-identical. A single peer error propagates
// immediately (the first one observed, via errgroup); disagreement among
// otherwise-successful replies surfaces as InconsistentUTXOAnswers.
func (o *PeerSetOracle) LookupUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*Result, error) {
	results := make([]*Result, len(o.Peers))

	g, gCtx := errgroup.WithContext(ctx)
	for i, peer := range o.Peers {
		i, peer := i, peer
		g.Go(func() error {
			res, err := peer.QueryUTXOs(gCtx, outpoints)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	first := results[0]
	for _, res := range results[1:] {
		if !first.Equal(res) {
			return nil, &InconsistentUTXOAnswers{
				PeerCount: len(o.Peers),
				Outpoints: outpoints,
			}
		}
	}

	return first, nil
}
