package httpapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"github.com/vinumeris/lighthouse/backend"
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/project"
	"github.com/vinumeris/lighthouse/projectindex"
	"github.com/vinumeris/lighthouse/utxooracle"
)

type fakeOracle struct {
	res *utxooracle.Result
}

func (f *fakeOracle) LookupUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*utxooracle.Result, error) {
	return f.res, nil
}

// testFixture is a project with an owner key, its on-disk project file, and
// the state needed to produce a valid pledge for it.
type testFixture struct {
	proj       *project.Project
	ownerPriv  *btcec.PrivateKey
	stubScript []byte
	stubPriv   *btcec.PrivateKey
	value      int64
}

func buildTestFixture(t *testing.T, dir string) *testFixture {
	t.Helper()

	ownerPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	stubPriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pkHash := btcutil.Hash160(stubPriv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressPubKeyHash(pkHash, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	stubScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	const value = 100000

	details := &envelope.ProjectDetails{
		Network:   "regtest",
		Outputs:   []*envelope.Output{{Amount: value, Script: stubScript}},
		CreatedAt: 1700000000,
		ExpiresAt: 1800000000,
	}
	extra := &envelope.ExtraDetails{
		Title:         "test project",
		MinPledgeSize: value / 2,
		AuthorKey:     ownerPriv.PubKey().SerializeCompressed(),
	}
	extraBytes, err := extra.Encode()
	require.NoError(t, err)
	details.Extra = extraBytes

	env := &envelope.Project{SerializedDetails: details.Marshal()}
	proj, err := project.ParseProject(env.Marshal())
	require.NoError(t, err)

	idHex := hex.EncodeToString(proj.ID().CloneBytes())
	path := filepath.Join(dir, idHex+projectindex.FileExtension)
	require.NoError(t, os.WriteFile(path, proj.Bytes(), 0600))

	return &testFixture{
		proj:       proj,
		ownerPriv:  ownerPriv,
		stubScript: stubScript,
		stubPriv:   stubPriv,
		value:      value,
	}
}

func (f *testFixture) buildPledge(t *testing.T, stubHashByte byte) []byte {
	t.Helper()

	var stubHash chainhash.Hash
	stubHash[0] = stubHashByte
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: stubHash, Index: 0}, nil, nil))
	for _, out := range f.proj.Outputs() {
		tx.AddTxOut(wire.NewTxOut(out.Amount, out.Script))
	}
	sigScript, err := txscript.SignatureScript(
		tx, 0, f.stubScript, txscript.SigHashAll|txscript.SigHashAnyOneCanPay, f.stubPriv.ToECDSA(), true,
	)
	require.NoError(t, err)
	tx.TxIn[0].SignatureScript = sigScript

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	pledgeEnv := &envelope.Pledge{
		Transactions: [][]byte{buf.Bytes()},
		PledgeDetails: &envelope.PledgeDetails{
			TotalInputValue: f.value,
			Timestamp:       1700000001,
			ProjectID:       f.proj.ID().String(),
		},
	}
	return pledgeEnv.Marshal()
}

func (f *testFixture) oracleResult() *utxooracle.Result {
	return &utxooracle.Result{
		HitMap:  []bool{true},
		Outputs: []*utxooracle.UTXO{{Value: f.value, PkScript: f.stubScript}},
	}
}

func (f *testFixture) sign(t *testing.T, msg []byte) []byte {
	t.Helper()
	signer := project.MessageSigner{
		SignCompact: func(hash []byte) ([]byte, error) {
			return ecdsa.SignCompact(f.ownerPriv, hash, true), nil
		},
	}
	sig, err := f.proj.SignAsOwner(signer, msg)
	require.NoError(t, err)
	return sig
}

// buildServer sets up a Server whose Index has already scanned dir and
// whose Coordinator tracks f.proj. Coordinator calls run through
// ExecuteSync, so they complete before returning even though the
// coordinator's executor runs on its own goroutine.
func buildServer(t *testing.T, dir string, f *testFixture, oracle utxooracle.Oracle) *Server {
	t.Helper()

	idx := projectindex.New(dir)
	require.NoError(t, idx.Scan())

	coord := backend.NewCoordinator(nil, oracle)
	require.NoError(t, coord.Start())
	t.Cleanup(coord.Stop)
	require.NoError(t, coord.TrackProject(context.Background(), f.proj))

	return &Server{Coordinator: coord, Index: idx}
}

func TestHandleGetProjectScrubsWithoutSignature(t *testing.T) {
	dir := t.TempDir()
	f := buildTestFixture(t, dir)
	s := buildServer(t, dir, f, &fakeOracle{res: f.oracleResult()})
	require.NoError(t, s.Coordinator.SubmitPledge(context.Background(), f.proj.ID(), f.buildPledge(t, 0xAB)))

	router := NewRouter(s)
	idHex := hex.EncodeToString(f.proj.ID().CloneBytes())
	req := httptest.NewRequest(http.MethodGet, projectindex.URLPathPrefix+idHex+".json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got jsonStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Pledges, 1)
	require.NotEmpty(t, got.Pledges[0].OrigHash)
	require.NotZero(t, got.Timestamp)
}

func TestHandleGetProjectRevealsWithOwnerSignature(t *testing.T) {
	dir := t.TempDir()
	f := buildTestFixture(t, dir)
	s := buildServer(t, dir, f, &fakeOracle{res: f.oracleResult()})
	require.NoError(t, s.Coordinator.SubmitPledge(context.Background(), f.proj.ID(), f.buildPledge(t, 0xAB)))

	msg := []byte("status-request")
	sig := f.sign(t, msg)

	router := NewRouter(s)
	idHex := hex.EncodeToString(f.proj.ID().CloneBytes())
	target := projectindex.URLPathPrefix + idHex + ".json?msg=" +
		hex.EncodeToString(msg) + "&sig=" + hex.EncodeToString(sig)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got jsonStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Pledges, 1)
	require.Empty(t, got.Pledges[0].OrigHash)
}

func TestHandleGetProjectRawFormat(t *testing.T) {
	dir := t.TempDir()
	f := buildTestFixture(t, dir)
	s := buildServer(t, dir, f, &fakeOracle{res: f.oracleResult()})

	router := NewRouter(s)
	idHex := hex.EncodeToString(f.proj.ID().CloneBytes())
	req := httptest.NewRequest(http.MethodGet, projectindex.URLPathPrefix+idHex+"."+formatRawProject, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, rawProjectMimeType, rec.Header().Get("Content-Type"))
	require.Equal(t, f.proj.Bytes(), rec.Body.Bytes())
}

func TestHandleGetProjectUnknownIDNotFound(t *testing.T) {
	dir := t.TempDir()
	f := buildTestFixture(t, dir)
	s := buildServer(t, dir, f, &fakeOracle{res: f.oracleResult()})

	router := NewRouter(s)
	var unknown chainhash.Hash
	unknown[0] = 0x42
	req := httptest.NewRequest(http.MethodGet, projectindex.URLPathPrefix+hex.EncodeToString(unknown.CloneBytes()), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePostPledgeAccepted(t *testing.T) {
	dir := t.TempDir()
	f := buildTestFixture(t, dir)
	s := buildServer(t, dir, f, &fakeOracle{res: f.oracleResult()})

	router := NewRouter(s)
	idHex := hex.EncodeToString(f.proj.ID().CloneBytes())
	req := httptest.NewRequest(http.MethodPost, projectindex.URLPathPrefix+idHex, bytes.NewReader(f.buildPledge(t, 0xCD)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePostPledgeRejectsMalformedBody(t *testing.T) {
	dir := t.TempDir()
	f := buildTestFixture(t, dir)
	s := buildServer(t, dir, f, &fakeOracle{res: f.oracleResult()})

	router := NewRouter(s)
	idHex := hex.EncodeToString(f.proj.ID().CloneBytes())
	req := httptest.NewRequest(http.MethodPost, projectindex.URLPathPrefix+idHex, bytes.NewReader([]byte("not a pledge")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePostPledgeRejectsOversizedBody(t *testing.T) {
	dir := t.TempDir()
	f := buildTestFixture(t, dir)
	s := buildServer(t, dir, f, &fakeOracle{res: f.oracleResult()})

	router := NewRouter(s)
	idHex := hex.EncodeToString(f.proj.ID().CloneBytes())
	oversized := make([]byte, maxPledgeUploadSize+1)
	req := httptest.NewRequest(http.MethodPost, projectindex.URLPathPrefix+idHex, bytes.NewReader(oversized))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
