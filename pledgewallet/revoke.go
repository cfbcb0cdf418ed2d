package pledgewallet

import (
	"github.com/go-errors/errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/btcsuite/btcwallet/wallet/txrules"
)

var errUnknownPledge = errors.New("pledgewallet: no tracked pledge with that id")

// Revoke spends pledgeID's stub to a fresh address of this wallet,
// subtracting one dust-floor fee. It records the stub as an outstanding
// revoke, broadcasts the tx and persists the wallet; the pledge moves into
// the revoked map only when ObserveTransaction later sees the spend. A
// failed broadcast drops the outstanding-revoke record again.
func (w *Wallet) Revoke(pledgeID chainhash.Hash) error {
	rec := w.recordByID(pledgeID)
	if rec == nil {
		return errUnknownPledge
	}

	_, prevOut, _, err := w.Base.FetchOutpointInfo(&rec.Stub)
	if err != nil {
		return err
	}

	addr, err := w.Base.NewAddress(waddrmgr.DefaultAccountNum, depositScope)
	if err != nil {
		return err
	}
	destScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return err
	}

	dust := txrules.GetDustThreshold(len(destScript), feePerKB)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&rec.Stub, nil, nil))
	tx.AddTxOut(wire.NewTxOut(prevOut.Value-int64(dust), destScript))

	if err := w.signStubInputAt(tx, 0, prevOut.PkScript, txscript.SigHashAll); err != nil {
		return err
	}

	w.mu.Lock()
	w.outstandingRevokes[rec.Stub] = pledgeID
	w.mu.Unlock()

	if err := w.Base.PublishTransaction(tx, ""); err != nil {
		w.mu.Lock()
		delete(w.outstandingRevokes, rec.Stub)
		w.mu.Unlock()
		return err
	}

	return w.persist()
}

// recordByID looks a tracked pledge up by its envelope identity hash.
func (w *Wallet) recordByID(id chainhash.Hash) *PledgeRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rec := range w.byStub {
		if pledgeRecordID(rec) == id {
			return rec
		}
	}
	return nil
}
