package pledgewallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func samplePkScript(t *testing.T, seed byte) []byte {
	t.Helper()
	return []byte{txscript.OP_DUP, txscript.OP_HASH160, 0x14,
		seed, seed, seed, seed, seed, seed, seed, seed,
		seed, seed, seed, seed, seed, seed, seed, seed,
		seed, seed, seed,
		txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG}
}

func newTestWallet() *Wallet {
	return New(nil)
}

func TestOutputsMatch(t *testing.T) {
	a := []*wire.TxOut{
		wire.NewTxOut(100000, samplePkScript(t, 1)),
		wire.NewTxOut(200000, samplePkScript(t, 2)),
	}
	b := []*wire.TxOut{
		wire.NewTxOut(100000, samplePkScript(t, 1)),
		wire.NewTxOut(200000, samplePkScript(t, 2)),
	}
	require.True(t, outputsMatch(a, b))

	reordered := []*wire.TxOut{b[1], b[0]}
	require.False(t, outputsMatch(a, reordered))

	differentAmount := []*wire.TxOut{
		wire.NewTxOut(999, samplePkScript(t, 1)),
		wire.NewTxOut(200000, samplePkScript(t, 2)),
	}
	require.False(t, outputsMatch(a, differentAmount))
}

func TestStateRoundTrip(t *testing.T) {
	rec := &PledgeRecord{
		Stub:      wire.OutPoint{Hash: chainhash.Hash{1, 2, 3}, Index: 7},
		ProjectID: chainhash.Hash{9, 9, 9},
		Envelope:  []byte("envelope bytes"),
	}
	state := &walletState{
		Projects: [][]byte{[]byte("raw project bytes")},
		Pledges:  []*PledgeRecord{rec},
		Revoked:  nil,
	}

	raw := marshalState(state)
	decoded, err := unmarshalState(raw)
	require.NoError(t, err)

	require.Equal(t, state.Projects, decoded.Projects)
	require.Len(t, decoded.Pledges, 1)
	require.Equal(t, rec.Stub, decoded.Pledges[0].Stub)
	require.Equal(t, rec.ProjectID, decoded.Pledges[0].ProjectID)
	require.Equal(t, rec.Envelope, decoded.Pledges[0].Envelope)
}

func TestObserveTransaction_OutstandingRevoke(t *testing.T) {
	w := newTestWallet()
	stub := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	rec := &PledgeRecord{Stub: stub, ProjectID: chainhash.Hash{2}}
	w.byStub[stub] = rec
	w.byProject[rec.ProjectID] = []*PledgeRecord{rec}

	pledgeID := chainhash.Hash{3}
	w.outstandingRevokes[stub] = pledgeID

	var revoked *PledgeRecord
	w.OnRevoke(func(r *PledgeRecord) { revoked = r })

	spendTx := wire.NewMsgTx(wire.TxVersion)
	spendTx.AddTxIn(wire.NewTxIn(&stub, nil, nil))
	spendTx.AddTxOut(wire.NewTxOut(1000, samplePkScript(t, 5)))

	w.ObserveTransaction(spendTx)

	require.Same(t, rec, revoked)
	require.False(t, w.IsStub(stub))
	require.Empty(t, w.PledgesForProject(rec.ProjectID))
	require.Contains(t, w.revoked, pledgeID)
	require.NotContains(t, w.outstandingRevokes, stub)
}

func TestObserveTransaction_ForeignDoubleSpend(t *testing.T) {
	w := newTestWallet()
	stub := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 0}
	rec := &PledgeRecord{Stub: stub, ProjectID: chainhash.Hash{2}}
	w.byStub[stub] = rec
	w.byProject[rec.ProjectID] = []*PledgeRecord{rec}
	// no cached project, no outstanding revoke: any spend is foreign.

	var revoked *PledgeRecord
	var claimed bool
	w.OnRevoke(func(r *PledgeRecord) { revoked = r })
	w.OnClaim(func(r *PledgeRecord, tx *wire.MsgTx) { claimed = true })

	spendTx := wire.NewMsgTx(wire.TxVersion)
	spendTx.AddTxIn(wire.NewTxIn(&stub, nil, nil))
	spendTx.AddTxOut(wire.NewTxOut(1000, samplePkScript(t, 5)))

	w.ObserveTransaction(spendTx)

	require.Same(t, rec, revoked)
	require.False(t, claimed)
	require.False(t, w.IsStub(stub))
}

func TestPledgesForProject_IndependentOfBase(t *testing.T) {
	w := newTestWallet()
	rec := &PledgeRecord{
		Stub:      wire.OutPoint{Hash: chainhash.Hash{7}, Index: 1},
		ProjectID: chainhash.Hash{8},
		Envelope:  []byte("x"),
	}
	w.recordPledge(rec)

	require.True(t, w.IsStub(rec.Stub))
	require.Equal(t, []*PledgeRecord{rec}, w.PledgesForProject(rec.ProjectID))
	require.Empty(t, w.PledgesForProject(chainhash.Hash{99}))
}
