package main

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/chain"
	"github.com/lightninglabs/neutrino"
	"github.com/vinumeris/lighthouse/utxooracle"
)

// neutrinoPeer adapts a single neutrino-backed chain client to the
// utxooracle.Peer interface: "unspent" and "spent/unknown" are the only
// two answers a pledge validator needs, so GetUtxo's richer SpendReport
// collapses to exactly those two cases.
type neutrinoPeer struct {
	name   string
	client *chain.NeutrinoClient
	cancel chan struct{}
}

// newNeutrinoPeer wraps svc as a utxooracle.Peer identified by name, so a
// peer set built from several neutrino-backed full nodes can still be told
// apart in logs and InconsistentUTXOAnswers reports.
func newNeutrinoPeer(name string, params *chaincfg.Params, svc *neutrino.ChainService) *neutrinoPeer {
	return &neutrinoPeer{
		name:   name,
		client: chain.NewNeutrinoClient(params, svc),
		cancel: make(chan struct{}),
	}
}

func (p *neutrinoPeer) String() string { return p.name }

// QueryUTXOs answers one outpoint at a time via GetUtxo: each outpoint
// whose output is still unspent is marked hit and its value/script
// appended to Outputs in hit order, matching utxooracle.Result's contract.
func (p *neutrinoPeer) QueryUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*utxooracle.Result, error) {
	res := &utxooracle.Result{HitMap: make([]bool, len(outpoints))}

	for i, op := range outpoints {
		op := op
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		report, err := p.client.GetUtxo(&op, nil, 0, p.cancel)
		if err != nil {
			return nil, fmt.Errorf("neutrinopeer %s: querying %v: %w", p.name, op, err)
		}
		if report == nil || report.Output == nil || report.SpendingTx != nil {
			// Already spent, or the peer never saw this outpoint at all:
			// either way it reports as a miss, same as an unknown UTXO.
			continue
		}

		res.HitMap[i] = true
		res.Outputs = append(res.Outputs, &utxooracle.UTXO{
			Value:    report.Output.Value,
			PkScript: report.Output.PkScript,
		})
	}

	return res, nil
}
