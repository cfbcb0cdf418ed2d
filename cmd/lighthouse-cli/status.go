package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/projectindex"
)

// statusCommand fetches the ProjectStatus for a project id over the wire
// protobuf format (no .json suffix), the same bytes httpapi's buildStatus
// assembles for the HTTP surface's plain GET.
type statusCommand struct {
	Positional struct {
		ProjectID string `positional-arg-name:"project-id" description:"Hex-encoded project id, as printed by show-project"`
	} `positional-args:"yes" required:"yes"`
}

func (c *statusCommand) Execute(args []string) error {
	url := opts.Host + projectindex.URLPathPrefix + c.Positional.ProjectID

	resp, err := httpClient().Get(url)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}

	status, err := envelope.UnmarshalProjectStatus(body)
	if err != nil {
		return fmt.Errorf("parsing status: %w", err)
	}

	printStatus(status)
	return nil
}

func printStatus(s *envelope.ProjectStatus) {
	fmt.Printf("project:      %x\n", s.ID)
	fmt.Printf("as of:        %d\n", s.Timestamp)
	fmt.Printf("pledged:      %d satoshis across %d pledge(s)\n", s.ValuePledgedSoFar, len(s.Pledges))
	if len(s.ClaimedBy) > 0 {
		fmt.Printf("claimed by:   %x\n", s.ClaimedBy)
	} else {
		fmt.Println("claimed by:   (not yet claimed)")
	}
	for i, p := range s.Pledges {
		var value int64
		if p.PledgeDetails != nil {
			value = p.PledgeDetails.TotalInputValue
		}
		fmt.Printf("  pledge %d: %d satoshis, %d transaction(s)\n", i, value, len(p.Transactions))
	}
}
