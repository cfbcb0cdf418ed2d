package pledgewallet

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/go-errors/errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/waddrmgr"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/project"
)

// depositScope is the key scope fresh receive/change addresses used by
// dependency transactions are drawn from.
var depositScope = waddrmgr.KeyScopeBIP0084

// feePerKB is the relay fee rate dependency transactions are built
// against.
const feePerKB = btcutil.Amount(1000)

var errNoExactStub = errors.New("pledgewallet: no spendable output of the exact requested value")

// PendingPledge is a fully-built, signed pledge awaiting commitment. The
// caller inspects the fee paid and dependency transaction (if any) before
// deciding whether to broadcast.
type PendingPledge struct {
	w *Wallet

	Project     *project.Project
	Dependency  *wire.MsgTx
	Tx          *wire.MsgTx
	FeePaid     btcutil.Amount
	Stub        wire.OutPoint
	rawEnvelope []byte

	committed bool
}

// CreatePledge builds a pledge of value satoshis toward proj: it first
// looks for a spendable output of exactly that value that is not already a
// stub, and failing that builds a dependency transaction resizing a coin
// to the exact amount (or to the wallet's whole balance if emptying it).
func (w *Wallet) CreatePledge(ctx context.Context, proj *project.Project, value int64) (*PendingPledge, error) {
	w.CacheProject(proj)

	stub, prevScript, err := w.findExactStub(value)
	var dep *wire.MsgTx
	var fee btcutil.Amount
	if err != nil {
		stub, prevScript, dep, fee, err = w.buildDependency(value)
		if err != nil {
			return nil, err
		}
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&stub, nil, nil))
	for _, out := range proj.Outputs() {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}

	if err := w.signStubInput(tx, prevScript); err != nil {
		return nil, err
	}

	env := &envelope.Pledge{
		PledgeDetails: &envelope.PledgeDetails{
			TotalInputValue: value,
			Timestamp:       w.Clock.Now().Unix(),
			ProjectID:       hex.EncodeToString(proj.ID().CloneBytes()),
		},
	}
	if dep != nil {
		var depBuf []byte
		depBuf, err = serializeTx(dep)
		if err != nil {
			return nil, err
		}
		env.Transactions = append(env.Transactions, depBuf)
	}
	pledgeBuf, err := serializeTx(tx)
	if err != nil {
		return nil, err
	}
	env.Transactions = append(env.Transactions, pledgeBuf)

	return &PendingPledge{
		w:           w,
		Project:     proj,
		Dependency:  dep,
		Tx:          tx,
		FeePaid:     fee,
		Stub:        stub,
		rawEnvelope: env.Marshal(),
	}, nil
}

// findExactStub searches the wallet's spendable candidates for an output
// of exactly value satoshis that is not already a tracked stub.
func (w *Wallet) findExactStub(value int64) (wire.OutPoint, []byte, error) {
	unspent, err := w.Base.ListUnspent(1, 9999999, "")
	if err != nil {
		return wire.OutPoint{}, nil, err
	}

	for _, u := range unspent {
		amt, err := btcutil.NewAmount(u.Amount)
		if err != nil || int64(amt) != value {
			continue
		}

		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			continue
		}
		op := wire.OutPoint{Hash: *hash, Index: u.Vout}
		if w.IsStub(op) {
			continue
		}

		script, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			continue
		}
		return op, script, nil
	}

	return wire.OutPoint{}, nil, errNoExactStub
}

// buildDependency resizes a coin to an exact stub of value satoshis by
// sending it to a fresh address of the same wallet. If the wallet's
// spendable balance cannot cover value plus fees, it empties the wallet
// instead: the single resulting output's value is whatever remains after
// the miner fee, smaller than requested.
func (w *Wallet) buildDependency(value int64) (wire.OutPoint, []byte, *wire.MsgTx, btcutil.Amount, error) {
	addr, err := w.Base.NewAddress(waddrmgr.DefaultAccountNum, depositScope)
	if err != nil {
		return wire.OutPoint{}, nil, nil, 0, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return wire.OutPoint{}, nil, nil, 0, err
	}

	var authored *txauthor.AuthoredTx
	authored, err = w.Base.CreateSimpleTx(
		waddrmgr.DefaultAccountNum, []*wire.TxOut{wire.NewTxOut(value, script)},
		1, feePerKB, false,
	)
	if err == nil {
		op, out, fee := locateOutput(authored.Tx, value, authored.TotalInput)
		return op, out.PkScript, authored.Tx, fee, nil
	}

	// Insufficient funds for an exact-value dependency: empty the wallet
	// instead, letting the miner fee shrink the resulting output below
	// the requested value.
	tx, total, err := w.sweepAll(script)
	if err != nil {
		return wire.OutPoint{}, nil, nil, 0, err
	}
	out := tx.TxOut[0]
	fee := total - btcutil.Amount(out.Value)
	op := wire.OutPoint{Hash: tx.TxHash(), Index: 0}
	return op, out.PkScript, tx, fee, nil
}

// locateOutput finds the dependency transaction's non-change output: the
// one whose value equals the requested amount. The change output, if any,
// sits at a random position, so position cannot be assumed.
func locateOutput(tx *wire.MsgTx, value int64, totalIn btcutil.Amount) (wire.OutPoint, *wire.TxOut, btcutil.Amount) {
	var spent int64
	for _, out := range tx.TxOut {
		spent += out.Value
	}
	fee := totalIn - btcutil.Amount(spent)
	for i, out := range tx.TxOut {
		if out.Value == value {
			return wire.OutPoint{Hash: tx.TxHash(), Index: uint32(i)}, out, fee
		}
	}
	// No exact match: the library must have folded the requested output
	// into a single remaining output (e.g. dust change was dropped).
	out := tx.TxOut[0]
	return wire.OutPoint{Hash: tx.TxHash(), Index: 0}, out, fee
}

// sweepAll spends every spendable output in the wallet to a single
// destination script, letting the fee reduce the resulting output's value.
func (w *Wallet) sweepAll(destScript []byte) (*wire.MsgTx, btcutil.Amount, error) {
	unspent, err := w.Base.ListUnspent(1, 9999999, "")
	if err != nil {
		return nil, 0, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	var total btcutil.Amount
	prevScripts := make([][]byte, 0, len(unspent))
	for _, u := range unspent {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			continue
		}
		op := wire.OutPoint{Hash: *hash, Index: u.Vout}
		if w.IsStub(op) {
			continue
		}
		amt, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			continue
		}
		script, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			continue
		}
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
		prevScripts = append(prevScripts, script)
		total += amt
	}
	if len(tx.TxIn) == 0 {
		return nil, 0, errNoExactStub
	}

	estimatedSize := int64(10 + len(tx.TxIn)*180 + 34)
	fee := btcutil.Amount(estimatedSize * int64(feePerKB) / 1000)
	out := int64(total) - int64(fee)
	if out <= 0 {
		return nil, 0, errors.New("pledgewallet: balance too small to sweep after fees")
	}
	tx.AddTxOut(wire.NewTxOut(out, destScript))

	for i, script := range prevScripts {
		if err := w.signStubInputAt(tx, i, script, txscript.SigHashAll); err != nil {
			return nil, 0, err
		}
	}

	return tx, total, nil
}

// signStubInput signs input 0 of tx with SIGHASH_ALL | ANYONECANPAY using
// the key that owns prevScript, the scriptSig shape chosen by prevScript's
// own class (P2PKH, P2PK, bare multisig).
func (w *Wallet) signStubInput(tx *wire.MsgTx, prevScript []byte) error {
	return w.signStubInputAt(tx, 0, prevScript, txscript.SigHashAll|txscript.SigHashAnyOneCanPay)
}

func (w *Wallet) signStubInputAt(tx *wire.MsgTx, idx int, prevScript []byte, hashType txscript.SigHashType) error {
	kdb := txscript.KeyClosure(func(addr btcutil.Address) (*btcec.PrivateKey, bool, error) {
		key, err := w.Base.PrivKeyForAddress(addr)
		if err != nil {
			return nil, false, err
		}
		return key, true, nil
	})
	sdb := txscript.ScriptClosure(func(addr btcutil.Address) ([]byte, error) {
		return nil, errors.New("pledgewallet: p2sh stubs are not wallet-owned")
	})

	sigScript, err := txscript.SignTxOutput(
		w.Base.ChainParams(), tx, idx, prevScript, hashType, kdb, sdb, nil,
	)
	if err != nil {
		return err
	}
	tx.TxIn[idx].SignatureScript = sigScript
	return nil
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// commit records the pledge into wallet state, optionally broadcasts the
// dependency transaction, persists the wallet and fires the onPledge
// listeners. It is idempotent: only the first call has any effect.
func (pp *PendingPledge) commit(broadcastDeps bool) error {
	if pp.committed {
		return errors.New("pledgewallet: pledge already committed")
	}
	pp.committed = true

	if broadcastDeps && pp.Dependency != nil {
		if err := pp.w.maybeCommitTx(pp.Dependency); err != nil {
			return err
		}
	}

	rec := &PledgeRecord{
		Stub:      pp.Stub,
		ProjectID: pp.Project.ID(),
		Envelope:  pp.rawEnvelope,
	}
	pp.w.recordPledge(rec)

	return pp.w.persist()
}

// Commit is the exported entry point for committing a pending pledge; see
// commit for the idempotence and ordering contract.
func (pp *PendingPledge) Commit(broadcastDeps bool) error {
	return pp.commit(broadcastDeps)
}

// maybeCommitTx broadcasts tx if it has not already been broadcast by
// this wallet, and is a no-op otherwise.
func (w *Wallet) maybeCommitTx(tx *wire.MsgTx) error {
	txHash := tx.TxHash()
	if _, err := w.Base.FetchTx(&txHash); err == nil {
		return nil
	}
	return w.Base.PublishTransaction(tx, "")
}
