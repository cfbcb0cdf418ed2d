package backend

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ProjectState is a project's position in its one-way state machine:
// NEW -> OPEN -> CLAIMED, or any state -> ERROR.
type ProjectState int

const (
	StateNew ProjectState = iota
	StateOpen
	StateClaimed
	StateError
)

func (s ProjectState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateOpen:
		return "OPEN"
	case StateClaimed:
		return "CLAIMED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// projectEntry is the backend's bookkeeping for one tracked project: its
// lifecycle state, the pledges currently counted toward its goal, the
// pledges that have been revoked, and (once CLAIMED) the claim txid.
type projectEntry struct {
	state     ProjectState
	claimTxID *chainhash.Hash
	open      map[chainhash.Hash]*pledgeEntry
	claimed   map[chainhash.Hash]*pledgeEntry
	revoked   map[chainhash.Hash]*pledgeEntry
}

func newProjectEntry() *projectEntry {
	return &projectEntry{
		state:   StateNew,
		open:    make(map[chainhash.Hash]*pledgeEntry),
		claimed: make(map[chainhash.Hash]*pledgeEntry),
		revoked: make(map[chainhash.Hash]*pledgeEntry),
	}
}

// pledgeEntry pairs a parsed pledge with the raw bytes it was submitted
// as, so the backend can still serve byte-exact re-emission and scrubbing.
type pledgeEntry struct {
	raw []byte
	id  chainhash.Hash
	// totalInputValue is cached at submission time so observers and the
	// goal-sum check never need to re-parse the pledge.
	totalInputValue int64
}
