package pledge

import (
	"bytes"
	"context"
	"crypto/rand"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/vinumeris/lighthouse/project"
	"github.com/vinumeris/lighthouse/utxooracle"
)

// maxP2SHRedeemSigOps is the sigop ceiling Bitcoin Core's standardness
// policy places on a P2SH redeem script whose form this validator does not
// otherwise recognize.
const maxP2SHRedeemSigOps = 15

// Validate runs the four-step pledge validation algorithm against a
// project and a UTXO oracle. Every validation failure is returned as a
// *ValidationError with the matching Kind; an error from the oracle lookup
// (including *utxooracle.InconsistentUTXOAnswers) or from drawing the
// nonce is returned unchanged. Nothing here panics.
func Validate(ctx context.Context, p *Pledge, proj *project.Project, oracle utxooracle.Oracle) error {
	if err := fastSanity(p, proj); err != nil {
		return err
	}

	outpoints := make([]wire.OutPoint, len(p.Tx.TxIn))
	for i, in := range p.Tx.TxIn {
		outpoints[i] = in.PreviousOutPoint
	}

	res, err := oracle.LookupUTXOs(ctx, outpoints)
	if err != nil {
		return err
	}
	if countHits(res.HitMap) != len(outpoints) || len(res.Outputs) != len(outpoints) {
		return newErr(KindUnknownUTXO)
	}

	if err := scriptCrossCheck(p.Tx, res.Outputs); err != nil {
		return err
	}

	return valueCheck(p, res.Outputs, proj)
}

func countHits(hitMap []bool) int {
	n := 0
	for _, h := range hitMap {
		if h {
			n++
		}
	}
	return n
}

// fastSanity is step 1: structural checks that require no network access.
func fastSanity(p *Pledge, proj *project.Project) error {
	outputs := proj.Outputs()
	if len(p.Tx.TxOut) != len(outputs) {
		return &ValidationError{
			Kind:     KindTxWrongNumberOfOutputs,
			Actual:   len(p.Tx.TxOut),
			Expected: len(outputs),
		}
	}
	for i, out := range p.Tx.TxOut {
		want := outputs[i]
		if out.Value != want.Amount || !bytes.Equal(out.PkScript, want.Script) {
			return newErr(KindOutputMismatch)
		}
	}

	btx := btcutil.NewTx(p.Tx)
	if err := blockchain.CheckTransactionSanity(btx); err != nil {
		if ruleErr, ok := err.(blockchain.RuleError); ok &&
			ruleErr.ErrorCode == blockchain.ErrDuplicateTxInputs {
			return newErr(KindDuplicatedOutPoint)
		}
		return wrapErr(KindDuplicatedOutPoint, err)
	}

	return nil
}

// scriptCrossCheck is step 3: each real input is checked against one of the
// four recognized standard forms, its scriptSig is required to be
// push-only with the expected arity, and its signature is verified against
// the fetched scriptPubKey -- against a copy of the transaction with one
// extra, unrelated trailing input appended, so that a non-ANYONECANPAY
// signature (which would otherwise validate) is caught by the extra input
// perturbing the sighash.
func scriptCrossCheck(tx *wire.MsgTx, utxos []*utxooracle.UTXO) error {
	withNonce, err := appendNonceInput(tx)
	if err != nil {
		return err
	}

	for i, in := range tx.TxIn {
		utxo := utxos[i]

		if err := checkArity(in.SignatureScript, utxo.PkScript); err != nil {
			return err
		}

		vm, err := txscript.NewEngine(
			utxo.PkScript, withNonce, i,
			txscript.StandardVerifyFlags, nil, nil, utxo.Value,
		)
		if err != nil {
			return wrapErr(KindScriptExecutionFailure, err)
		}
		if err := vm.Execute(); err != nil {
			return wrapErr(KindScriptExecutionFailure, err)
		}
	}

	return nil
}

// appendNonceInput returns a shallow copy of tx with one extra input
// spending a random, non-existent outpoint, unlocked by a push-only script
// carrying a 32-byte nonce. It is never meant to be broadcast; it only
// proves the real inputs' signatures tolerate an appended input.
func appendNonceInput(tx *wire.MsgTx) (*wire.MsgTx, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	nonceScript, err := txscript.NewScriptBuilder().AddData(nonce).Script()
	if err != nil {
		return nil, err
	}

	clone := tx.Copy()

	var randHash [32]byte
	copy(randHash[:], nonce)
	clone.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: randHash, Index: 0},
		SignatureScript:  nonceScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})

	return clone, nil
}

// checkArity rejects a NonStandardInput: a scriptPubKey outside the four
// recognized forms, a scriptSig that is not push-only, or a scriptSig whose
// pushed-data count does not match the scriptPubKey's expected argument
// count (P2SH-aware: the redeem script's own arity is added to its single
// push).
func checkArity(sigScript, pkScript []byte) error {
	if !txscript.IsPushOnlyScript(sigScript) {
		return newErr(KindNonStandardInput)
	}
	pushed, err := txscript.PushedData(sigScript)
	if err != nil {
		return wrapErr(KindNonStandardInput, err)
	}

	class := txscript.GetScriptClass(pkScript)

	switch class {
	case txscript.PubKeyHashTy:
		if len(pushed) != 2 {
			return newErr(KindNonStandardInput)
		}
	case txscript.PubKeyTy:
		if len(pushed) != 1 {
			return newErr(KindNonStandardInput)
		}
	case txscript.MultiSigTy:
		_, numSigsRequired, err := txscript.CalcMultiSigStats(pkScript)
		if err != nil {
			return wrapErr(KindNonStandardInput, err)
		}
		// +1 for the OP_0 CHECKMULTISIG off-by-one dummy element.
		if len(pushed) != numSigsRequired+1 {
			return newErr(KindNonStandardInput)
		}
	case txscript.ScriptHashTy:
		if len(pushed) == 0 {
			return newErr(KindNonStandardInput)
		}
		redeem := pushed[len(pushed)-1]
		redeemPushes := pushed[:len(pushed)-1]
		if err := checkRedeemArity(redeemPushes, redeem); err != nil {
			return err
		}
	default:
		return newErr(KindNonStandardInput)
	}

	return nil
}

// checkRedeemArity validates the arity of the data pushed ahead of a P2SH
// redeem script against that redeem script's own class. An unrecognized
// redeem script is still accepted provided its sigop count is within the
// standard P2SH ceiling.
func checkRedeemArity(pushes [][]byte, redeem []byte) error {
	switch txscript.GetScriptClass(redeem) {
	case txscript.PubKeyHashTy:
		if len(pushes) != 2 {
			return newErr(KindNonStandardInput)
		}
	case txscript.PubKeyTy:
		if len(pushes) != 1 {
			return newErr(KindNonStandardInput)
		}
	case txscript.MultiSigTy:
		_, numSigsRequired, err := txscript.CalcMultiSigStats(redeem)
		if err != nil {
			return wrapErr(KindNonStandardInput, err)
		}
		if len(pushes) != numSigsRequired+1 {
			return newErr(KindNonStandardInput)
		}
	default:
		if txscript.GetSigOpCount(redeem) > maxP2SHRedeemSigOps {
			return newErr(KindNonStandardInput)
		}
	}
	return nil
}

// valueCheck is step 4.
func valueCheck(p *Pledge, utxos []*utxooracle.UTXO, proj *project.Project) error {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}

	if total == 0 || total != p.TotalInputValue() {
		return newErr(KindCachedValueMismatch)
	}

	minSize := int64(proj.MinPledgeSize())
	if total < minSize {
		return &ValidationError{Kind: KindPledgeTooSmall, ShortBy: minSize - total}
	}

	return nil
}
