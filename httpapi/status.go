package httpapi

import (
	"github.com/vinumeris/lighthouse/backend"
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/pledge"
	"github.com/vinumeris/lighthouse/project"
)

// buildStatus assembles the response for a project's status endpoint from
// its current snapshot. Every open and claimed pledge is included. Unless
// authenticated is true, each pledge is scrubbed of its transaction data so
// an anonymous caller learns the project's progress without seeing who
// pledged what -- except once the project has been claimed, when every
// pledge is already public in the claim transaction and is always returned
// unscrubbed. A pledge that fails to scrub (malformed stored bytes, which
// should never happen) is dropped from the response rather than served
// unscrubbed.
func buildStatus(proj *project.Project, snap *backend.ProjectSnapshot, authenticated bool, now int64) *envelope.ProjectStatus {
	id := proj.ID()
	status := &envelope.ProjectStatus{
		ID:        id[:],
		Timestamp: now,
	}

	claimed := snap.ClaimTxID != nil
	if claimed {
		status.ClaimedBy = snap.ClaimTxID[:]
	}
	reveal := authenticated || claimed

	all := make([][]byte, 0, len(snap.Open)+len(snap.Claimed))
	all = append(all, snap.Open...)
	all = append(all, snap.Claimed...)

	for _, raw := range all {
		if !reveal {
			scrubbed, err := pledge.Scrub(raw)
			if err != nil {
				continue
			}
			raw = scrubbed
		}

		p, err := envelope.UnmarshalPledge(raw)
		if err != nil {
			continue
		}
		status.Pledges = append(status.Pledges, p)
		status.ValuePledgedSoFar += p.PledgeDetails.TotalInputValue
	}

	return status
}
