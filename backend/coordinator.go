package backend

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/vinumeris/lighthouse/affinity"
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/observable"
	"github.com/vinumeris/lighthouse/pledge"
	"github.com/vinumeris/lighthouse/project"
	"github.com/vinumeris/lighthouse/utxooracle"
)

// minPeersForUTXOQuery is the minimum peer agreement a coordinator's oracle
// must reach before a pledge can be validated; below this the coordinator
// refuses to query at all rather than trust a thin sample.
const minPeersForUTXOQuery = 2

// batchingOracle adapts a *utxooracle.Batcher, whose Lookup/Flush pair is
// built for amortizing many concurrent callers, to the single-shot
// utxooracle.Oracle interface pledge.Validate expects. Each call flushes
// immediately, so batching degenerates to one oracle round trip per
// pledge; true amortization would require deferring Flush until multiple
// submitPledge calls queued within the same executor turn, which the
// executor's run-to-completion semantics don't expose a hook for yet.
type batchingOracle struct {
	batcher *utxooracle.Batcher
}

func (b *batchingOracle) LookupUTXOs(ctx context.Context, outpoints []wire.OutPoint) (*utxooracle.Result, error) {
	pending := b.batcher.Enqueue(outpoints)
	if err := b.batcher.Flush(ctx); err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// Coordinator is the backend's single point of entry: every project and
// pledge mutation is executed on its own affinity.Executor, so the maps in
// state.go never need a lock of their own.
type Coordinator struct {
	executor *affinity.Executor
	store    *Store
	oracle   utxooracle.Oracle

	projects map[chainhash.Hash]*projectEntry
	known    map[chainhash.Hash]*project.Project

	states      *observable.Map[chainhash.Hash, ProjectState]
	openSets    map[chainhash.Hash]*observable.Set[chainhash.Hash]
	claimedSets map[chainhash.Hash]*observable.Set[chainhash.Hash]
}

// NewPeerCoordinator builds a Coordinator whose UTXO lookups are answered
// by a batching oracle over peers. It refuses to start if fewer than
// minPeersForUTXOQuery peers were supplied, since a thinner peer set can't
// be trusted to catch a peer lying about an outpoint's spentness.
func NewPeerCoordinator(store *Store, peers []utxooracle.Peer) (*Coordinator, error) {
	if len(peers) < minPeersForUTXOQuery {
		return nil, fmt.Errorf("backend: need at least %d peers for UTXO lookups, got %d", minPeersForUTXOQuery, len(peers))
	}
	batcher := utxooracle.NewBatcher(utxooracle.NewPeerSetOracle(peers))
	batcher.Start()
	return NewCoordinator(store, &batchingOracle{batcher: batcher}), nil
}

// NewCoordinator builds a Coordinator backed by store and oracle, running
// its own executor. Call Start before submitting any work.
func NewCoordinator(store *Store, oracle utxooracle.Oracle) *Coordinator {
	return &Coordinator{
		executor:    affinity.New("backend"),
		store:       store,
		oracle:      oracle,
		projects:    make(map[chainhash.Hash]*projectEntry),
		known:       make(map[chainhash.Hash]*project.Project),
		states:      observable.NewMap[chainhash.Hash, ProjectState](),
		openSets:    make(map[chainhash.Hash]*observable.Set[chainhash.Hash]),
		claimedSets: make(map[chainhash.Hash]*observable.Set[chainhash.Hash]),
	}
}

func (c *Coordinator) Start() error { return c.executor.Start() }
func (c *Coordinator) Stop()        { c.executor.Stop() }

// TrackProject registers proj with the coordinator, restoring any
// persisted state for it and moving it to OPEN if it was still NEW.
func (c *Coordinator) TrackProject(ctx context.Context, proj *project.Project) error {
	var trackErr error
	c.executor.ExecuteSync(ctx, func(ctx context.Context) {
		id := proj.ID()
		if _, exists := c.projects[id]; exists {
			return
		}

		entry := newProjectEntry()
		c.openSets[id] = observable.NewSet[chainhash.Hash]()
		c.claimedSets[id] = observable.NewSet[chainhash.Hash]()

		if c.store != nil {
			state, txid, found, err := c.store.loadProjectState(id)
			if err != nil {
				trackErr = err
				return
			}
			if found {
				entry.state = state
				entry.claimTxID = txid
			}

			if err := c.restorePledges(id, openBucket, entry.open, c.openSets[id]); err != nil {
				trackErr = err
				return
			}
			if err := c.restorePledges(id, claimedBucket, entry.claimed, c.claimedSets[id]); err != nil {
				trackErr = err
				return
			}
		}
		if entry.state == StateNew {
			entry.state = StateOpen
		}

		c.known[id] = proj
		c.projects[id] = entry
		c.states.Set(id, entry.state)

		log.Infof("tracking project %v, state %v, restored %d open / %d claimed pledge(s)",
			id, entry.state, len(entry.open), len(entry.claimed))
	})
	return trackErr
}

// restorePledges loads every pledge persisted under bucket for projectID,
// re-parsing each one to rebuild its in-memory pledgeEntry, and fills both
// dst and mirror so a restart never drops a project back to an empty open
// or claimed set it had already persisted.
func (c *Coordinator) restorePledges(projectID chainhash.Hash, bucket []byte, dst map[chainhash.Hash]*pledgeEntry, mirror *observable.Set[chainhash.Hash]) error {
	raws, err := c.store.loadPledges(bucket, projectID)
	if err != nil {
		return err
	}
	for id, raw := range raws {
		p, err := pledge.ParsePledge(raw)
		if err != nil {
			log.Warnf("dropping unparseable persisted pledge %v for project %v: %v", id, projectID, err)
			continue
		}
		dst[id] = &pledgeEntry{raw: raw, id: id, totalInputValue: p.TotalInputValue()}
		mirror.Add(id)
	}
	return nil
}

// SubmitPledge validates raw against the project it names and, if valid,
// adds it to that project's open set. It returns ErrProjectNotFound,
// ErrProjectClosed, ErrDuplicatePledge or a *pledge.ValidationError; a
// decoding, oracle or store error is returned as it occurred.
func (c *Coordinator) SubmitPledge(ctx context.Context, projectID chainhash.Hash, raw []byte) error {
	p, err := pledge.ParsePledge(raw)
	if err != nil {
		return err
	}
	id := p.ID()

	var submitErr error
	c.executor.ExecuteSync(ctx, func(ctx context.Context) {
		entry, ok := c.projects[projectID]
		if !ok {
			submitErr = ErrProjectNotFound
			return
		}
		if entry.state == StateClaimed || entry.state == StateError {
			submitErr = ErrProjectClosed
			return
		}
		if _, dup := entry.open[id]; dup {
			submitErr = ErrDuplicatePledge
			return
		}
		if _, dup := entry.claimed[id]; dup {
			submitErr = ErrDuplicatePledge
			return
		}

		proj := c.known[projectID]
		if err := pledge.Validate(ctx, p, proj, c.oracle); err != nil {
			submitErr = err
			return
		}

		if entry.state == StateNew {
			entry.state = StateOpen
			c.states.Set(projectID, entry.state)
		}
		entry.open[id] = &pledgeEntry{raw: raw, id: id, totalInputValue: p.TotalInputValue()}
		c.openSets[projectID].Add(id)

		if c.store != nil {
			if err := c.store.putPledge(openBucket, projectID, id, raw); err != nil {
				submitErr = err
			}
		}
	})
	return submitErr
}

// MirrorOpenPledges returns a live view of projectID's open pledge ids
// reflected onto executor, plus a handle to detach it.
func (c *Coordinator) MirrorOpenPledges(ctx context.Context, projectID chainhash.Hash, executor *affinity.Executor) (*observable.Set[chainhash.Hash], observable.Handle, error) {
	var (
		mirror *observable.Set[chainhash.Hash]
		handle observable.Handle
		rErr   error
	)
	c.executor.ExecuteSync(ctx, func(ctx context.Context) {
		set, ok := c.openSets[projectID]
		if !ok {
			rErr = ErrProjectNotFound
			return
		}
		mirror, handle = set.Mirror(executor)
	})
	return mirror, handle, rErr
}

// MirrorClaimedPledges is the CLAIMED-set analogue of MirrorOpenPledges.
func (c *Coordinator) MirrorClaimedPledges(ctx context.Context, projectID chainhash.Hash, executor *affinity.Executor) (*observable.Set[chainhash.Hash], observable.Handle, error) {
	var (
		mirror *observable.Set[chainhash.Hash]
		handle observable.Handle
		rErr   error
	)
	c.executor.ExecuteSync(ctx, func(ctx context.Context) {
		set, ok := c.claimedSets[projectID]
		if !ok {
			rErr = ErrProjectNotFound
			return
		}
		mirror, handle = set.Mirror(executor)
	})
	return mirror, handle, rErr
}

// MirrorProjectStates returns a live view of every tracked project's
// lifecycle state reflected onto executor.
func (c *Coordinator) MirrorProjectStates(executor *affinity.Executor) (*observable.Map[chainhash.Hash, ProjectState], observable.Handle) {
	mirror := observable.NewMap[chainhash.Hash, ProjectState]()
	for k, v := range c.states.Snapshot() {
		mirror.Set(k, v)
	}
	handle := c.states.AddListener(executor, func(change observable.MapChange[chainhash.Hash, ProjectState]) {
		if change.Removed {
			mirror.Delete(change.Key)
			return
		}
		mirror.Set(change.Key, change.Value)
	})
	return mirror, handle
}

// PledgeBytes returns the raw envelope bytes for a tracked pledge, from
// whichever of the open/claimed/revoked sets currently holds it.
func (c *Coordinator) PledgeBytes(ctx context.Context, projectID, pledgeID chainhash.Hash) ([]byte, bool) {
	var (
		raw   []byte
		found bool
	)
	c.executor.ExecuteSync(ctx, func(ctx context.Context) {
		entry, ok := c.projects[projectID]
		if !ok {
			return
		}
		if pe, ok := entry.open[pledgeID]; ok {
			raw, found = pe.raw, true
			return
		}
		if pe, ok := entry.claimed[pledgeID]; ok {
			raw, found = pe.raw, true
			return
		}
		if pe, ok := entry.revoked[pledgeID]; ok {
			raw, found = pe.raw, true
		}
	})
	return raw, found
}

// ProjectSnapshot is a point-in-time summary of one project's lifecycle
// state and pledge sets, the shape an HTTP status response is built from.
type ProjectSnapshot struct {
	State     ProjectState
	ClaimTxID *chainhash.Hash
	Open      [][]byte
	Claimed   [][]byte
}

// Snapshot returns projectID's current state and the raw bytes of every
// open and claimed pledge, or ErrProjectNotFound.
func (c *Coordinator) Snapshot(ctx context.Context, projectID chainhash.Hash) (*ProjectSnapshot, error) {
	var (
		snap *ProjectSnapshot
		rErr error
	)
	c.executor.ExecuteSync(ctx, func(ctx context.Context) {
		entry, ok := c.projects[projectID]
		if !ok {
			rErr = ErrProjectNotFound
			return
		}
		snap = &ProjectSnapshot{State: entry.state, ClaimTxID: entry.claimTxID}
		for _, pe := range entry.open {
			snap.Open = append(snap.Open, pe.raw)
		}
		for _, pe := range entry.claimed {
			snap.Claimed = append(snap.Claimed, pe.raw)
		}
	})
	return snap, rErr
}

// ObserveTransaction runs the chain watcher's reconciliation for a single
// transaction seen in a new block or accepted to the mempool: for every
// tracked project whose open pledges include a stub this tx spends, either
// the whole project moves to CLAIMED (tx's outputs match the project's
// exactly) or that single pledge is revoked.
func (c *Coordinator) ObserveTransaction(ctx context.Context, tx *wire.MsgTx) {
	c.executor.Execute(ctx, func(ctx context.Context) {
		spent := make(map[wire.OutPoint]bool, len(tx.TxIn))
		for _, in := range tx.TxIn {
			spent[in.PreviousOutPoint] = true
		}

		for projectID, entry := range c.projects {
			if entry.state != StateOpen {
				continue
			}
			var hit *pledgeEntry
			for _, pe := range entry.open {
				p, err := pledge.ParsePledge(pe.raw)
				if err != nil {
					continue
				}
				if spent[p.Tx.TxIn[0].PreviousOutPoint] {
					hit = pe
					break
				}
			}
			if hit == nil {
				continue
			}

			proj := c.known[projectID]
			if outputsMatchProject(tx, proj) {
				c.markClaimed(projectID, entry, tx)
			} else {
				c.revokePledge(projectID, entry, hit)
			}
		}
	})
}

func (c *Coordinator) markClaimed(projectID chainhash.Hash, entry *projectEntry, tx *wire.MsgTx) {
	txid := tx.TxHash()
	for id, pe := range entry.open {
		entry.claimed[id] = pe
		delete(entry.open, id)
		c.openSets[projectID].Remove(id)
		c.claimedSets[projectID].Add(id)
		if c.store != nil {
			c.store.deletePledge(openBucket, projectID, id)
			c.store.putPledge(claimedBucket, projectID, id, pe.raw)
		}
	}
	entry.state = StateClaimed
	entry.claimTxID = &txid
	c.states.Set(projectID, entry.state)
	if c.store != nil {
		c.store.putProjectState(projectID, entry.state, entry.claimTxID)
	}
	log.Infof("project %v claimed by tx %v", projectID, txid)
}

func (c *Coordinator) revokePledge(projectID chainhash.Hash, entry *projectEntry, pe *pledgeEntry) {
	delete(entry.open, pe.id)
	entry.revoked[pe.id] = pe
	c.openSets[projectID].Remove(pe.id)
	if c.store != nil {
		c.store.deletePledge(openBucket, projectID, pe.id)
		c.store.putPledge(revokedBucket, projectID, pe.id, pe.raw)
	}
	log.Infof("pledge %v on project %v revoked by a foreign spend of its stub", pe.id, projectID)
}

// ReconcileRemoteStatus folds a remote server's reported project status
// into projectID's local open/claimed observables. This is the client-mode
// analogue of ObserveTransaction's chain watcher: rather than re-validating
// every pledge against its own peer set, a client-mode install trusts the
// owner-authenticated status its RemoteStatusClient fetched and mirrors it
// directly, the way Watch's onUpdate callback is meant to be used.
func (c *Coordinator) ReconcileRemoteStatus(ctx context.Context, projectID chainhash.Hash, status *envelope.ProjectStatus) {
	c.executor.Execute(ctx, func(ctx context.Context) {
		entry, ok := c.projects[projectID]
		if !ok {
			return
		}

		claimed := len(status.ClaimedBy) > 0
		dst, dstSet := entry.open, c.openSets[projectID]
		if claimed {
			dst, dstSet = entry.claimed, c.claimedSets[projectID]
		}

		seen := make(map[chainhash.Hash]bool, len(status.Pledges))
		for _, p := range status.Pledges {
			raw := p.Marshal()
			parsed, err := pledge.ParsePledge(raw)
			if err != nil {
				log.Warnf("dropping unparseable pledge from remote status of project %v: %v", projectID, err)
				continue
			}
			id := parsed.ID()
			seen[id] = true
			if _, tracked := dst[id]; tracked {
				continue
			}
			dst[id] = &pledgeEntry{raw: raw, id: id, totalInputValue: parsed.TotalInputValue()}
			dstSet.Add(id)
		}
		for id := range dst {
			if !seen[id] {
				delete(dst, id)
				dstSet.Remove(id)
			}
		}

		if claimed && entry.state != StateClaimed {
			var txid chainhash.Hash
			copy(txid[:], status.ClaimedBy)
			entry.state = StateClaimed
			entry.claimTxID = &txid
			c.states.Set(projectID, entry.state)
			log.Infof("project %v claimed by tx %v, per remote status", projectID, txid)
		}
	})
}

// WatchRemote runs client's Watch loop for proj, reconciling every
// successfully fetched status snapshot into proj's local observables. It
// blocks until ctx is cancelled, so callers run it on its own goroutine.
func (c *Coordinator) WatchRemote(ctx context.Context, proj *project.Project, client *RemoteStatusClient) {
	id := proj.ID()
	client.Watch(ctx, proj, func(status *envelope.ProjectStatus) {
		c.ReconcileRemoteStatus(ctx, id, status)
	})
}

// outputsMatchProject reports whether tx's outputs are, in order, exactly
// the project's declared outputs -- the signature of a genuine claim
// transaction rather than an unrelated stub spend.
func outputsMatchProject(tx *wire.MsgTx, proj *project.Project) bool {
	outs := proj.Outputs()
	if len(tx.TxOut) != len(outs) {
		return false
	}
	for i, out := range outs {
		if tx.TxOut[i].Value != out.Amount {
			return false
		}
		if string(tx.TxOut[i].PkScript) != string(out.Script) {
			return false
		}
	}
	return true
}
