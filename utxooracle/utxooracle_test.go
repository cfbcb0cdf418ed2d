package utxooracle

import (
	"context"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	name string
	res  *Result
	err  error
}

func (f *fakePeer) String() string { return f.name }

func (f *fakePeer) QueryUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func testOutpoint(i uint32) wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash{}, Index: i}
}

func TestPeerSetOracleAgreement(t *testing.T) {
	res := &Result{
		HitMap:  []bool{true, false},
		Outputs: []*UTXO{{Value: 1000, PkScript: []byte{0x01}}},
	}
	oracle := NewPeerSetOracle([]Peer{
		&fakePeer{name: "a", res: res},
		&fakePeer{name: "b", res: res},
	})

	out, err := oracle.LookupUTXOs(context.Background(), []wire.OutPoint{testOutpoint(0), testOutpoint(1)})
	require.NoError(t, err)
	require.Equal(t, res.HitMap, out.HitMap)
}

func TestPeerSetOracleDisagreement(t *testing.T) {
	oracle := NewPeerSetOracle([]Peer{
		&fakePeer{name: "a", res: &Result{HitMap: []bool{true}, Outputs: []*UTXO{{Value: 1}}}},
		&fakePeer{name: "b", res: &Result{HitMap: []bool{false}}},
	})

	_, err := oracle.LookupUTXOs(context.Background(), []wire.OutPoint{testOutpoint(0)})
	require.Error(t, err)
	var inconsistent *InconsistentUTXOAnswers
	require.ErrorAs(t, err, &inconsistent)
}

func TestPeerSetOraclePropagatesPeerError(t *testing.T) {
	oracle := NewPeerSetOracle([]Peer{
		&fakePeer{name: "a", err: context.DeadlineExceeded},
		&fakePeer{name: "b", res: &Result{HitMap: []bool{true}, Outputs: []*UTXO{{Value: 1}}}},
	})

	_, err := oracle.LookupUTXOs(context.Background(), []wire.OutPoint{testOutpoint(0)})
	require.Error(t, err)
}

type recordingOracle struct {
	mu      sync.Mutex
	queries [][]wire.OutPoint
}

func (r *recordingOracle) LookupUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*Result, error) {
	r.mu.Lock()
	r.queries = append(r.queries, outpoints)
	r.mu.Unlock()

	hits := make([]bool, len(outpoints))
	var outs []*UTXO
	for i := range outpoints {
		hits[i] = true
		outs = append(outs, &UTXO{Value: int64(1000 + i), PkScript: []byte{byte(i)}})
	}
	return &Result{HitMap: hits, Outputs: outs}, nil
}

func TestBatcherDistributesResultsPerEntry(t *testing.T) {
	oracle := &recordingOracle{}
	b := NewBatcher(oracle)
	b.Start()
	defer b.Stop()

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)

	lookups := [][]wire.OutPoint{
		{testOutpoint(0)},
		{testOutpoint(1), testOutpoint(2)},
	}

	pendings := make([]*pendingEntry, len(lookups))
	for i := range lookups {
		pendings[i] = b.Enqueue(lookups[i])
	}

	require.NoError(t, b.Flush(context.Background()))

	for i := range lookups {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = pendings[i].Wait(context.Background())
		}()
	}

	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Len(t, results[0].Outputs, 1)
	require.Len(t, results[1].Outputs, 2)

	oracle.mu.Lock()
	defer oracle.mu.Unlock()
	require.Len(t, oracle.queries, 1)
	require.Len(t, oracle.queries[0], 3)
}

func TestBatcherFlushWithNoPendingEntriesIsNoop(t *testing.T) {
	oracle := &recordingOracle{}
	b := NewBatcher(oracle)
	b.Start()
	defer b.Stop()

	require.NoError(t, b.Flush(context.Background()))
	oracle.mu.Lock()
	defer oracle.mu.Unlock()
	require.Len(t, oracle.queries, 0)
}
