package main

import (
	"fmt"
	"os"
	"time"

	"github.com/vinumeris/lighthouse/project"
)

// showProjectCommand parses a project file locally and prints its details,
// performing no network I/O at all -- useful for inspecting a
// .lighthouse-project file before publishing or pledging to it.
type showProjectCommand struct {
	Positional struct {
		ProjectFile string `positional-arg-name:"project-file" description:"Path to the .lighthouse-project file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *showProjectCommand) Execute(args []string) error {
	raw, err := os.ReadFile(c.Positional.ProjectFile)
	if err != nil {
		return fmt.Errorf("reading project file: %w", err)
	}

	proj, err := project.ParseProject(raw)
	if err != nil {
		return fmt.Errorf("parsing project file: %w", err)
	}

	id := proj.ID()
	fmt.Printf("id:           %x\n", id[:])
	fmt.Printf("title:        %s\n", proj.Title())
	fmt.Printf("memo:         %s\n", proj.Memo())
	fmt.Printf("network:      %s\n", proj.NetworkParams().Name)
	fmt.Printf("goal:         %d satoshis\n", proj.Goal())
	fmt.Printf("min pledge:   %d satoshis\n", proj.MinPledgeSize())
	fmt.Printf("created:      %s\n", time.Unix(proj.CreatedAt(), 0).UTC())
	if exp := proj.ExpiresAt(); exp > 0 {
		fmt.Printf("expires:      %s\n", time.Unix(exp, 0).UTC())
	}
	if u, err := proj.PaymentURL(); err == nil && u != nil {
		fmt.Printf("payment url:  %s\n", u)
	}
	fmt.Println("outputs:")
	for i, out := range proj.Outputs() {
		fmt.Printf("  %d: %d satoshis to script %x\n", i, out.Amount, out.Script)
	}

	return nil
}
