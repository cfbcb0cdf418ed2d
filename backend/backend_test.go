package backend

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/vinumeris/lighthouse/affinity"
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/project"
	"github.com/vinumeris/lighthouse/utxooracle"
)

type fakeOracle struct {
	res *utxooracle.Result
}

func (f *fakeOracle) LookupUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*utxooracle.Result, error) {
	return f.res, nil
}

// buildProjectAndPledge builds a one-output regtest project pledged toward
// by a single P2PKH stub of the exact goal amount, returning the project,
// the raw pledge envelope bytes, the pledge transaction and the oracle
// result that makes it valid.
func buildProjectAndPledge(t *testing.T, value int64) (*project.Project, []byte, *wire.MsgTx, *utxooracle.Result) {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	stubScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	details := &envelope.ProjectDetails{
		Network:   "regtest",
		Outputs:   []*envelope.Output{{Amount: value, Script: stubScript}},
		CreatedAt: 1700000000,
		ExpiresAt: 1800000000,
	}
	extra := &envelope.ExtraDetails{Title: "test project", MinPledgeSize: uint64(value) / 2}
	extraBytes, err := extra.Encode()
	require.NoError(t, err)
	details.Extra = extraBytes

	env := &envelope.Project{SerializedDetails: details.Marshal()}
	proj, err := project.ParseProject(env.Marshal())
	require.NoError(t, err)

	var stubHash chainhash.Hash
	stubHash[0] = 0xCD
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: stubHash, Index: 0}, nil, nil))
	for _, out := range proj.Outputs() {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}
	sigScript, err := txscript.SignatureScript(
		tx, 0, stubScript, txscript.SigHashAll|txscript.SigHashAnyOneCanPay, priv.ToECDSA(), true,
	)
	require.NoError(t, err)
	tx.TxIn[0].SignatureScript = sigScript

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	pledgeEnv := &envelope.Pledge{
		Transactions: [][]byte{buf.Bytes()},
		PledgeDetails: &envelope.PledgeDetails{
			TotalInputValue: value,
			Timestamp:       1700000001,
			ProjectID:       proj.ID().String(),
		},
	}

	res := &utxooracle.Result{
		HitMap:  []bool{true},
		Outputs: []*utxooracle.UTXO{{Value: value, PkScript: stubScript}},
	}

	return proj, pledgeEnv.Marshal(), tx, res
}

// newTestCoordinator builds a Coordinator whose executor runs every task
// inline, so tests can assert on its maps immediately after each call
// without waiting on a background goroutine.
func newTestCoordinator(res *utxooracle.Result) *Coordinator {
	c := NewCoordinator(nil, &fakeOracle{res: res})
	c.executor = affinity.NewSameThread("test-backend")
	return c
}

func TestSubmitPledgeAddsToOpenSet(t *testing.T) {
	const value = 100000
	proj, raw, _, res := buildProjectAndPledge(t, value)

	c := newTestCoordinator(res)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.TrackProject(context.Background(), proj))
	require.NoError(t, c.SubmitPledge(context.Background(), proj.ID(), raw))

	entry := c.projects[proj.ID()]
	require.Len(t, entry.open, 1)
	require.Equal(t, StateOpen, entry.state)
}

func TestSubmitPledgeRejectsDuplicate(t *testing.T) {
	const value = 100000
	proj, raw, _, res := buildProjectAndPledge(t, value)

	c := newTestCoordinator(res)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.TrackProject(context.Background(), proj))
	require.NoError(t, c.SubmitPledge(context.Background(), proj.ID(), raw))

	err := c.SubmitPledge(context.Background(), proj.ID(), raw)
	require.ErrorIs(t, err, ErrDuplicatePledge)
}

func TestSubmitPledgeRejectsUnknownProject(t *testing.T) {
	const value = 100000
	_, raw, _, res := buildProjectAndPledge(t, value)

	c := newTestCoordinator(res)
	require.NoError(t, c.Start())
	defer c.Stop()

	var unknownID chainhash.Hash
	err := c.SubmitPledge(context.Background(), unknownID, raw)
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestSubmitPledgeRejectsOnClosedProject(t *testing.T) {
	const value = 100000
	proj, raw, tx, res := buildProjectAndPledge(t, value)

	c := newTestCoordinator(res)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.TrackProject(context.Background(), proj))
	require.NoError(t, c.SubmitPledge(context.Background(), proj.ID(), raw))

	c.ObserveTransaction(context.Background(), tx)

	entry := c.projects[proj.ID()]
	require.Equal(t, StateClaimed, entry.state)

	err := c.SubmitPledge(context.Background(), proj.ID(), anotherPledgeFixture(t, proj, value))
	require.ErrorIs(t, err, ErrProjectClosed)
}

// anotherPledgeFixture builds one more independent stub pledge for proj,
// used to prove a second, otherwise-valid pledge is still rejected once the
// project has closed.
func anotherPledgeFixture(t *testing.T, proj *project.Project, value int64) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	stubScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	var stubHash chainhash.Hash
	stubHash[0] = 0xEF
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: stubHash, Index: 0}, nil, nil))
	for _, out := range proj.Outputs() {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}
	sigScript, err := txscript.SignatureScript(
		tx, 0, stubScript, txscript.SigHashAll|txscript.SigHashAnyOneCanPay, priv.ToECDSA(), true,
	)
	require.NoError(t, err)
	tx.TxIn[0].SignatureScript = sigScript

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	pledgeEnv := &envelope.Pledge{
		Transactions: [][]byte{buf.Bytes()},
		PledgeDetails: &envelope.PledgeDetails{
			TotalInputValue: value,
			Timestamp:       1700000002,
			ProjectID:       proj.ID().String(),
		},
	}
	return pledgeEnv.Marshal()
}

func TestObserveTransactionRevokesNonClaimSpend(t *testing.T) {
	const value = 100000
	proj, raw, tx, res := buildProjectAndPledge(t, value)

	c := newTestCoordinator(res)
	require.NoError(t, c.Start())
	defer c.Stop()

	require.NoError(t, c.TrackProject(context.Background(), proj))
	require.NoError(t, c.SubmitPledge(context.Background(), proj.ID(), raw))

	// Spend the same stub to an unrelated output: this is a revoke, not
	// a claim, since the outputs don't match the project's.
	foreign := wire.NewMsgTx(wire.TxVersion)
	foreign.AddTxIn(wire.NewTxIn(&tx.TxIn[0].PreviousOutPoint, nil, nil))
	foreign.AddTxOut(wire.NewTxOut(value, tx.TxOut[0].PkScript))
	foreign.TxOut[0].Value = value - 500

	c.ObserveTransaction(context.Background(), foreign)

	entry := c.projects[proj.ID()]
	require.Empty(t, entry.open)
	require.Len(t, entry.revoked, 1)
	require.Equal(t, StateOpen, entry.state)
}

func TestTrackProjectRestoresPersistedPledges(t *testing.T) {
	const value = 100000
	proj, raw, _, res := buildProjectAndPledge(t, value)

	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	c := NewCoordinator(store, &fakeOracle{res: res})
	c.executor = affinity.NewSameThread("test-backend")
	require.NoError(t, c.Start())
	require.NoError(t, c.TrackProject(context.Background(), proj))
	require.NoError(t, c.SubmitPledge(context.Background(), proj.ID(), raw))
	c.Stop()

	// A fresh coordinator over the same store, as after a process restart,
	// must come back up with the pledge already counted toward the goal.
	c2 := NewCoordinator(store, &fakeOracle{res: res})
	c2.executor = affinity.NewSameThread("test-backend")
	require.NoError(t, c2.Start())
	defer c2.Stop()

	require.NoError(t, c2.TrackProject(context.Background(), proj))

	entry := c2.projects[proj.ID()]
	require.Len(t, entry.open, 1)
	require.Equal(t, StateOpen, entry.state)

	set, _, err := c2.MirrorOpenPledges(context.Background(), proj.ID(), c2.executor)
	require.NoError(t, err)
	require.Len(t, set.Snapshot(), 1)
}

func TestReconcileRemoteStatusPopulatesOpenSet(t *testing.T) {
	const value = 100000
	proj, raw, _, res := buildProjectAndPledge(t, value)
	parsedRaw, err := envelope.UnmarshalPledge(raw)
	require.NoError(t, err)

	c := newTestCoordinator(res)
	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.TrackProject(context.Background(), proj))

	status := &envelope.ProjectStatus{
		ID:      func() []byte { id := proj.ID(); return id[:] }(),
		Pledges: []*envelope.Pledge{parsedRaw},
	}
	c.ReconcileRemoteStatus(context.Background(), proj.ID(), status)

	entry := c.projects[proj.ID()]
	require.Len(t, entry.open, 1)
	require.Empty(t, entry.claimed)
}

func TestReconcileRemoteStatusMarksClaimed(t *testing.T) {
	const value = 100000
	proj, raw, tx, res := buildProjectAndPledge(t, value)
	parsedRaw, err := envelope.UnmarshalPledge(raw)
	require.NoError(t, err)

	c := newTestCoordinator(res)
	require.NoError(t, c.Start())
	defer c.Stop()
	require.NoError(t, c.TrackProject(context.Background(), proj))

	txid := tx.TxHash()
	status := &envelope.ProjectStatus{
		Pledges:   []*envelope.Pledge{parsedRaw},
		ClaimedBy: txid[:],
	}
	c.ReconcileRemoteStatus(context.Background(), proj.ID(), status)

	entry := c.projects[proj.ID()]
	require.Empty(t, entry.open)
	require.Len(t, entry.claimed, 1)
	require.Equal(t, StateClaimed, entry.state)
	require.Equal(t, txid, *entry.claimTxID)
}

func TestProjectStateString(t *testing.T) {
	require.Equal(t, "NEW", StateNew.String())
	require.Equal(t, "OPEN", StateOpen.String())
	require.Equal(t, "CLAIMED", StateClaimed.String())
	require.Equal(t, "ERROR", StateError.String())
}
