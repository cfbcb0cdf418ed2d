package pledgewallet

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
	"github.com/vinumeris/lighthouse/envelope"
)

// ObserveTransaction inspects tx for inputs spending any currently tracked
// stub. For each one it is either our own outstanding revocation, a claim
// (the spending tx's outputs structurally match the project's), or a
// foreign double-spend -- most likely a cloned wallet racing us to the
// same stub.
func (w *Wallet) ObserveTransaction(tx *wire.MsgTx) {
	for _, in := range tx.TxIn {
		w.observeStubSpend(in.PreviousOutPoint, tx)
	}
}

func (w *Wallet) observeStubSpend(op wire.OutPoint, spendTx *wire.MsgTx) {
	w.mu.Lock()
	rec, tracked := w.byStub[op]
	if !tracked {
		w.mu.Unlock()
		return
	}

	if revokeID, ours := w.outstandingRevokes[op]; ours {
		delete(w.byStub, op)
		w.removeFromProjectLocked(rec)
		delete(w.outstandingRevokes, op)
		w.revoked[revokeID] = rec
		listeners := append([]OnRevokeFunc(nil), w.onRevoke...)
		w.mu.Unlock()

		if err := w.persist(); err != nil {
			log.Errorf("failed to persist wallet state after revoke of %v: %v", revokeID, err)
		}

		for _, fn := range listeners {
			fn(rec)
		}
		return
	}

	proj, haveProj := w.cachedProjects[rec.ProjectID]
	w.mu.Unlock()

	if haveProj && outputsMatch(spendTx.TxOut, envelopeOutputs(proj)) {
		w.fireClaim(rec, spendTx)
		return
	}
	w.fireForeignRevoke(rec)
}

func (w *Wallet) fireClaim(rec *PledgeRecord, claimTx *wire.MsgTx) {
	w.mu.Lock()
	delete(w.byStub, rec.Stub)
	w.removeFromProjectLocked(rec)
	listeners := append([]OnClaimFunc(nil), w.onClaim...)
	w.mu.Unlock()

	if err := w.persist(); err != nil {
		log.Errorf("failed to persist wallet state after claim of stub %v: %v", rec.Stub, err)
	}

	for _, fn := range listeners {
		fn(rec, claimTx)
	}
}

func (w *Wallet) fireForeignRevoke(rec *PledgeRecord) {
	w.mu.Lock()
	delete(w.byStub, rec.Stub)
	w.removeFromProjectLocked(rec)
	w.revoked[pledgeRecordID(rec)] = rec
	listeners := append([]OnRevokeFunc(nil), w.onRevoke...)
	w.mu.Unlock()

	if err := w.persist(); err != nil {
		log.Errorf("failed to persist wallet state after foreign revoke of stub %v: %v", rec.Stub, err)
	}

	for _, fn := range listeners {
		fn(rec)
	}
}

// removeFromProjectLocked deletes rec from byProject[rec.ProjectID]. Callers
// must already hold w.mu.
func (w *Wallet) removeFromProjectLocked(rec *PledgeRecord) {
	recs := w.byProject[rec.ProjectID]
	for i, other := range recs {
		if other == rec {
			w.byProject[rec.ProjectID] = append(recs[:i], recs[i+1:]...)
			return
		}
	}
}

// envelopeOutputs adapts a project's output list to wire.TxOut for
// comparison against a spending transaction's own outputs.
func envelopeOutputs(proj interface {
	Outputs() []*envelope.Output
}) []*wire.TxOut {
	outs := proj.Outputs()
	wireOuts := make([]*wire.TxOut, len(outs))
	for i, out := range outs {
		wireOuts[i] = wire.NewTxOut(out.Amount, out.Script)
	}
	return wireOuts
}

// outputsMatch reports whether two output lists agree on amount, script
// and order.
func outputsMatch(a, b []*wire.TxOut) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Value != b[i].Value || !bytes.Equal(a[i].PkScript, b[i].PkScript) {
			return false
		}
	}
	return true
}
