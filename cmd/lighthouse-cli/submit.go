package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/vinumeris/lighthouse/project"
	"github.com/vinumeris/lighthouse/projectindex"
)

// submitCommand POSTs a .lighthouse-pledge file to the project it targets,
// the upload half of what pledgewallet.CreatePledge produces and the HTTP
// surface's handlePostPledge consumes.
type submitCommand struct {
	Positional struct {
		ProjectFile string `positional-arg-name:"project-file" description:"Path to the .lighthouse-project file this pledge targets"`
		PledgeFile  string `positional-arg-name:"pledge-file" description:"Path to the .lighthouse-pledge file to upload"`
	} `positional-args:"yes" required:"yes"`
}

func (c *submitCommand) Execute(args []string) error {
	projectRaw, err := os.ReadFile(c.Positional.ProjectFile)
	if err != nil {
		return fmt.Errorf("reading project file: %w", err)
	}
	proj, err := project.ParseProject(projectRaw)
	if err != nil {
		return fmt.Errorf("parsing project file: %w", err)
	}

	pledgeRaw, err := os.ReadFile(c.Positional.PledgeFile)
	if err != nil {
		return fmt.Errorf("reading pledge file: %w", err)
	}

	id := proj.ID()
	url := opts.Host + projectindex.URLPathPrefix + fmt.Sprintf("%x", id[:])

	resp, err := httpClient().Post(url, "application/octet-stream", bytes.NewReader(pledgeRaw))
	if err != nil {
		return fmt.Errorf("uploading pledge: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server rejected pledge (%s): %s", resp.Status, body)
	}

	fmt.Printf("pledge accepted for project %x\n", id[:])
	return nil
}
