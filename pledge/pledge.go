// Package pledge implements pledge parsing, the pledge validation
// algorithm, and claim assembly.
package pledge

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/vinumeris/lighthouse/envelope"
)

// Pledge is a parsed pledge envelope: an ordered list of transactions (the
// last is the pledge transaction itself, earlier ones are dependencies it
// spends from) plus its cached details.
type Pledge struct {
	raw []byte

	// Dependencies are any transactions earlier pledge.Transactions
	// entries decode to; they must be broadcast alongside the pledge
	// transaction for it to be satisfiable.
	Dependencies []*wire.MsgTx

	// Tx is the pledge transaction: the last entry of the envelope's
	// transaction list.
	Tx *wire.MsgTx

	Details *envelope.PledgeDetails
}

// ParsePledge decodes a pledge envelope's bytes into transactions.
func ParsePledge(raw []byte) (*Pledge, error) {
	env, err := envelope.UnmarshalPledge(raw)
	if err != nil {
		return nil, err
	}
	if len(env.Transactions) == 0 {
		return nil, newErr(KindNoTransactionData)
	}

	txs := make([]*wire.MsgTx, len(env.Transactions))
	for i, raw := range env.Transactions {
		tx := &wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, newErr(KindNoTransactionData)
		}
		txs[i] = tx
	}

	return &Pledge{
		raw:          raw,
		Dependencies: txs[:len(txs)-1],
		Tx:           txs[len(txs)-1],
		Details:      env.PledgeDetails,
	}, nil
}

// ID is this pledge's identity: the double-SHA256 of its encoded envelope,
// unless Details.OrigHash is set (a scrubbed pledge), in which case
// OrigHash -- the hash the message self-reported before scrubbing -- is the
// identity instead.
func (p *Pledge) ID() chainhash.Hash {
	if p.Details != nil && len(p.Details.OrigHash) == 32 {
		var h chainhash.Hash
		copy(h[:], p.Details.OrigHash)
		return h
	}
	return chainhash.DoubleHashH(p.raw)
}

// TotalInputValue is the pledge's self-reported sum of spent output values.
func (p *Pledge) TotalInputValue() int64 {
	if p.Details == nil {
		return 0
	}
	return p.Details.TotalInputValue
}
