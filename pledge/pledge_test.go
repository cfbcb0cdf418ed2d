package pledge

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
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/project"
	"github.com/vinumeris/lighthouse/utxooracle"
)

type fakeOracle struct {
	res *utxooracle.Result
	err error
}

func (f *fakeOracle) LookupUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*utxooracle.Result, error) {
	return f.res, f.err
}

// buildStubAndProject creates a P2PKH stub output of the given value and a
// one-output project that exact value is pledged toward.
func buildStubAndProject(t *testing.T, value int64) (*btcec.PrivateKey, []byte, *project.Project) {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	stubScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	details := &envelope.ProjectDetails{
		Network: "regtest",
		Outputs: []*envelope.Output{
			{Amount: value, Script: stubScript},
		},
		CreatedAt: 1700000000,
		ExpiresAt: 1800000000,
	}
	extra := &envelope.ExtraDetails{Title: "test", MinPledgeSize: uint64(value) / 2}
	extraBytes, err := extra.Encode()
	require.NoError(t, err)
	details.Extra = extraBytes

	env := &envelope.Project{SerializedDetails: details.Marshal()}
	proj, err := project.ParseProject(env.Marshal())
	require.NoError(t, err)

	return priv, stubScript, proj
}

func buildPledgeTx(t *testing.T, priv *btcec.PrivateKey, stubScript []byte, stubValue int64, proj *project.Project) *wire.MsgTx {
	t.Helper()

	var stubHash chainhash.Hash
	stubHash[0] = 0xAB

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: stubHash, Index: 0}, nil, nil))
	for _, out := range proj.Outputs() {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}

	sigScript, err := txscript.SignatureScript(
		tx, 0, stubScript,
		txscript.SigHashAll|txscript.SigHashAnyOneCanPay,
		priv.ToECDSA(), true,
	)
	require.NoError(t, err)
	tx.TxIn[0].SignatureScript = sigScript

	return tx
}

func pledgeBytes(t *testing.T, tx *wire.MsgTx, projectID chainhash.Hash, totalValue int64) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	env := &envelope.Pledge{
		Transactions: [][]byte{buf.Bytes()},
		PledgeDetails: &envelope.PledgeDetails{
			TotalInputValue: totalValue,
			Timestamp:       1700000001,
			ProjectID:       projectID.String(),
		},
	}
	return env.Marshal()
}

func TestValidatePerfectSizePledge(t *testing.T) {
	const stubValue = 100000

	priv, stubScript, proj := buildStubAndProject(t, stubValue)
	tx := buildPledgeTx(t, priv, stubScript, stubValue, proj)

	raw := pledgeBytes(t, tx, proj.ID(), stubValue)
	p, err := ParsePledge(raw)
	require.NoError(t, err)

	oracle := &fakeOracle{res: &utxooracle.Result{
		HitMap:  []bool{true},
		Outputs: []*utxooracle.UTXO{{Value: stubValue, PkScript: stubScript}},
	}}

	err = Validate(context.Background(), p, proj, oracle)
	require.NoError(t, err)
}

func TestValidateRejectsUnknownUTXO(t *testing.T) {
	const stubValue = 100000

	priv, stubScript, proj := buildStubAndProject(t, stubValue)
	tx := buildPledgeTx(t, priv, stubScript, stubValue, proj)

	raw := pledgeBytes(t, tx, proj.ID(), stubValue)
	p, err := ParsePledge(raw)
	require.NoError(t, err)

	oracle := &fakeOracle{res: &utxooracle.Result{HitMap: []bool{false}}}

	err = Validate(context.Background(), p, proj, oracle)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindUnknownUTXO, verr.Kind)
}

func TestValidateRejectsWrongOutputCount(t *testing.T) {
	const stubValue = 100000

	priv, stubScript, proj := buildStubAndProject(t, stubValue)
	tx := buildPledgeTx(t, priv, stubScript, stubValue, proj)
	tx.AddTxOut(wire.NewTxOut(1, stubScript))

	raw := pledgeBytes(t, tx, proj.ID(), stubValue)
	p, err := ParsePledge(raw)
	require.NoError(t, err)

	err = Validate(context.Background(), p, proj, &fakeOracle{})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindTxWrongNumberOfOutputs, verr.Kind)
}

func TestValidateRejectsCachedValueMismatch(t *testing.T) {
	const stubValue = 100000

	priv, stubScript, proj := buildStubAndProject(t, stubValue)
	tx := buildPledgeTx(t, priv, stubScript, stubValue, proj)

	// totalInputValue lies about the real value.
	raw := pledgeBytes(t, tx, proj.ID(), stubValue-1)
	p, err := ParsePledge(raw)
	require.NoError(t, err)

	oracle := &fakeOracle{res: &utxooracle.Result{
		HitMap:  []bool{true},
		Outputs: []*utxooracle.UTXO{{Value: stubValue, PkScript: stubScript}},
	}}

	err = Validate(context.Background(), p, proj, oracle)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindCachedValueMismatch, verr.Kind)
}

func TestAssembleClaimSumsExactly(t *testing.T) {
	const stubValue = 100000

	priv, stubScript, proj := buildStubAndProject(t, stubValue)
	tx := buildPledgeTx(t, priv, stubScript, stubValue, proj)
	raw := pledgeBytes(t, tx, proj.ID(), stubValue)
	p, err := ParsePledge(raw)
	require.NoError(t, err)

	claim, err := AssembleClaim(proj, []*Pledge{p})
	require.NoError(t, err)
	require.Len(t, claim.Tx.TxOut, 1)
	require.Len(t, claim.Tx.TxIn, 1)
	require.Equal(t, tx.TxIn[0].PreviousOutPoint, claim.Tx.TxIn[0].PreviousOutPoint)
}

func TestAssembleClaimRejectsValueMismatch(t *testing.T) {
	const stubValue = 100000

	priv, stubScript, proj := buildStubAndProject(t, stubValue)
	tx := buildPledgeTx(t, priv, stubScript, stubValue, proj)
	raw := pledgeBytes(t, tx, proj.ID(), stubValue-1)
	p, err := ParsePledge(raw)
	require.NoError(t, err)

	_, err = AssembleClaim(proj, []*Pledge{p})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindValueMismatch, verr.Kind)
	require.Equal(t, int64(-1), verr.ByAmount)
}
