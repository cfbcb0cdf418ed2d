package utxooracle

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

type pendingEntry struct {
	outpoints []wire.OutPoint
	resultCh  chan lookupResult
}

type lookupResult struct {
	hits    []bool
	outputs []*UTXO
	err     error
}

// Batcher aggregates concurrent Lookup calls into a single oracle query per
// Flush, then splits the combined answer back out to each caller. One round
// trip this way amortizes over many pledge validations started inside a
// single backend executor turn.
//
// Pending entries live in a mutex-guarded slice rather than behind a
// channel-based queue: Enqueue must make an entry visible to the very next
// Flush unconditionally, with no dependency on a separate goroutine having
// been scheduled in between. A channel hand-off (as lnd/queue.ConcurrentQueue
// provides) cannot give that guarantee -- the item only reaches a receiver
// once its internal worker goroutine gets to run, which Flush's caller has
// no way to wait for without blocking.
type Batcher struct {
	oracle Oracle

	mu      sync.Mutex
	pending []*pendingEntry
}

// NewBatcher wraps oracle with batching. The returned Batcher must be
// started before use and stopped when no longer needed.
func NewBatcher(oracle Oracle) *Batcher {
	return &Batcher{oracle: oracle}
}

// Start begins accepting Lookup calls. Kept for lifecycle symmetry with the
// rest of this package's started/shutdown components; the batcher itself
// holds no resources that need acquiring up front.
func (b *Batcher) Start() {}

// Stop releases the batcher. Any entry still pending at this point never
// receives a result.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Enqueue registers outpoints as a pending query and returns a handle to
// wait on its result once Flush runs. The entry is appended to the pending
// slice before Enqueue returns, so a Flush call made immediately afterward
// -- even on another goroutine -- is guaranteed to observe it.
func (b *Batcher) Enqueue(outpoints []wire.OutPoint) *pendingEntry {
	entry := &pendingEntry{
		outpoints: outpoints,
		resultCh:  make(chan lookupResult, 1),
	}
	b.mu.Lock()
	b.pending = append(b.pending, entry)
	b.mu.Unlock()
	return entry
}

// Wait blocks until entry's Flush-assigned result arrives or ctx is
// cancelled.
func (entry *pendingEntry) Wait(ctx context.Context) (*Result, error) {
	select {
	case res := <-entry.resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return &Result{HitMap: res.hits, Outputs: res.outputs}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup enqueues a pending query for outpoints and blocks until the next
// Flush resolves it (or ctx is cancelled). Equivalent to Enqueue followed by
// Wait; kept for callers (and tests) that don't need to separate the two
// steps.
func (b *Batcher) Lookup(ctx context.Context, outpoints []wire.OutPoint) (*Result, error) {
	return b.Enqueue(outpoints).Wait(ctx)
}

// Flush makes exactly one oracle query for every entry enqueued since the
// last Flush, then distributes results back to each pending entry by
// walking the concatenated outpoint list and the returned hit-map together.
// After Flush the batcher is drained; callers still waiting past this point
// belong to the next batch.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	entries := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	var all []wire.OutPoint
	for _, e := range entries {
		all = append(all, e.outpoints...)
	}

	res, err := b.oracle.LookupUTXOs(ctx, all)
	if err != nil {
		for _, e := range entries {
			e.resultCh <- lookupResult{err: err}
		}
		return err
	}

	idx, hitIdx := 0, 0
	for _, e := range entries {
		hits := make([]bool, len(e.outpoints))
		var outs []*UTXO
		for j := range e.outpoints {
			if res.HitMap[idx] {
				hits[j] = true
				outs = append(outs, res.Outputs[hitIdx])
				hitIdx++
			}
			idx++
		}
		e.resultCh <- lookupResult{hits: hits, outputs: outs}
	}

	return nil
}
