// Package backend implements the per-project state machine, pledge
// submission pipeline, chain watcher and persistent store a crowdfunding
// server runs, on top of the pledge and utxooracle packages.
package backend

import "fmt"

var (
	ErrNoStoreExists   = fmt.Errorf("backend store has not yet been created")
	ErrProjectNotFound = fmt.Errorf("no project with that id is known to this backend")
	ErrProjectClosed   = fmt.Errorf("project is claimed and accepts no further pledges")
	ErrDuplicatePledge = fmt.Errorf("pledge with that id is already known")
)

// InconsistentState describes a transition the backend cannot reconcile --
// e.g. a claim observed for a project with no open pledges. No code in this
// package constructs it, and nothing moves a project to StateError.
type InconsistentState struct {
	ProjectID string
	Reason    string
}

func (e *InconsistentState) Error() string {
	return fmt.Sprintf("project %s: inconsistent state: %s", e.ProjectID, e.Reason)
}
