package pledge

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/vinumeris/lighthouse/project"
)

// Claim is the assembled transaction combining a complete pledge set,
// before its one extra fee-paying input is attached.
type Claim struct {
	Tx *wire.MsgTx

	// Pledges is the pledge set this claim was assembled from, in the
	// order their inputs were concatenated.
	Pledges []*Pledge
}

// AssembleClaim combines a complete set of validated pledges into the
// claim transaction: the project's outputs, followed by every pledge's
// inputs in pledge-iteration order. It fails with ValueMismatch if the
// pledges' total does not exactly equal the project's goal. The returned
// transaction has no fee-paying input; neither this package nor
// pledgewallet builds or attaches one.
func AssembleClaim(proj *project.Project, pledges []*Pledge) (*Claim, error) {
	var sum int64
	for _, p := range pledges {
		sum += p.TotalInputValue()
	}

	goal := proj.Goal()
	if sum != goal {
		return nil, &ValidationError{Kind: KindValueMismatch, ByAmount: sum - goal}
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, out := range proj.Outputs() {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}
	for _, p := range pledges {
		for _, in := range p.Tx.TxIn {
			tx.AddTxIn(wire.NewTxIn(&in.PreviousOutPoint, in.SignatureScript, in.Witness))
		}
	}

	return &Claim{Tx: tx, Pledges: pledges}, nil
}
