package pledgewallet

import (
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/vinumeris/lighthouse/project"
)

// extensionID is the tagged identifier this wallet extension's side-table
// payload is stored under inside the standard wallet proto.
const extensionID = "com.vinumeris.lighthouse"

// PledgeRecord is the wallet's bookkeeping for one tracked pledge: the
// outpoint it is backed by, the project it was made toward, and the
// encoded envelope so it survives a restart without needing the chain
// rescanned.
type PledgeRecord struct {
	Stub      wire.OutPoint
	ProjectID chainhash.Hash
	Envelope  []byte
}

// OnPledgeFunc, OnClaimFunc and OnRevokeFunc are the wallet's event
// callbacks. They are invoked synchronously on the goroutine that
// triggered the event (the caller of PendingPledge.Commit or
// ObserveTransaction); the wallet runs no goroutine of its own.
type (
	OnPledgeFunc func(rec *PledgeRecord)
	OnClaimFunc  func(rec *PledgeRecord, claimTx *wire.MsgTx)
	OnRevokeFunc func(rec *PledgeRecord)
)

// Wallet wraps a standard btcwallet.Wallet with pledge-tracking state: it
// holds three mappings guarded by one lock -- stub output ↔ pledge,
// project ↔ pledge, and revoked-pledge-hash ↔ pledge.
type Wallet struct {
	Base *wallet.Wallet

	// Clock supplies the pledge timestamp; overridden in tests with
	// clock.NewTestClock so pledge fixtures are deterministic.
	Clock clock.Clock

	mu                 sync.Mutex
	byStub             map[wire.OutPoint]*PledgeRecord
	byProject          map[chainhash.Hash][]*PledgeRecord
	revoked            map[chainhash.Hash]*PledgeRecord
	outstandingRevokes map[wire.OutPoint]chainhash.Hash
	cachedProjects     map[chainhash.Hash]*project.Project

	onPledge []OnPledgeFunc
	onClaim  []OnClaimFunc
	onRevoke []OnRevokeFunc

	started  int32
	shutdown int32
}

// New builds a pledgewallet around an already-open, already-unlocked
// standard wallet. Call Start to rehydrate persisted pledge state.
func New(base *wallet.Wallet) *Wallet {
	return &Wallet{
		Base:               base,
		Clock:              clock.NewDefaultClock(),
		byStub:             make(map[wire.OutPoint]*PledgeRecord),
		byProject:          make(map[chainhash.Hash][]*PledgeRecord),
		revoked:            make(map[chainhash.Hash]*PledgeRecord),
		outstandingRevokes: make(map[wire.OutPoint]chainhash.Hash),
		cachedProjects:     make(map[chainhash.Hash]*project.Project),
	}
}

// Start rehydrates pledge state from the wallet's side-table.
func (w *Wallet) Start() error {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return nil
	}
	return w.rehydrate()
}

// Stop marks the wallet extension as shut down. The underlying base wallet
// is not touched; callers close it separately.
func (w *Wallet) Stop() {
	atomic.CompareAndSwapInt32(&w.shutdown, 0, 1)
}

// OnPledge, OnClaim and OnRevoke register event listeners.
func (w *Wallet) OnPledge(fn OnPledgeFunc) { w.mu.Lock(); w.onPledge = append(w.onPledge, fn); w.mu.Unlock() }
func (w *Wallet) OnClaim(fn OnClaimFunc)   { w.mu.Lock(); w.onClaim = append(w.onClaim, fn); w.mu.Unlock() }
func (w *Wallet) OnRevoke(fn OnRevokeFunc) { w.mu.Lock(); w.onRevoke = append(w.onRevoke, fn); w.mu.Unlock() }

// IsStub reports whether outpoint currently backs a tracked, unrevoked
// pledge -- the coin selector's exclusion predicate: a coin backing a live
// pledge must never be offered up for an unrelated spend.
func (w *Wallet) IsStub(op wire.OutPoint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.byStub[op]
	return ok
}

// PledgesForProject returns the tracked pledges made toward a project.
func (w *Wallet) PledgesForProject(id chainhash.Hash) []*PledgeRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	recs := w.byProject[id]
	out := make([]*PledgeRecord, len(recs))
	copy(out, recs)
	return out
}

// CacheProject registers a project's envelope so the wallet can still
// describe its own pledges (and re-persist them) without needing the
// project looked up again after a restart.
func (w *Wallet) CacheProject(proj *project.Project) {
	w.mu.Lock()
	w.cachedProjects[proj.ID()] = proj
	w.mu.Unlock()
}

// CachedProject returns a previously-cached project, if any.
func (w *Wallet) CachedProject(id chainhash.Hash) (*project.Project, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	proj, ok := w.cachedProjects[id]
	return proj, ok
}

func (w *Wallet) recordPledge(rec *PledgeRecord) {
	w.mu.Lock()
	w.byStub[rec.Stub] = rec
	w.byProject[rec.ProjectID] = append(w.byProject[rec.ProjectID], rec)
	listeners := append([]OnPledgeFunc(nil), w.onPledge...)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(rec)
	}
}
