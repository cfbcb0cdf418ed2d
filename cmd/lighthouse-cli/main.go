// Command lighthouse-cli is a thin client for the httpapi HTTP surface:
// it fetches project status and uploads pledge files, the same division
// of labor cmd/lncli draws between itself and the lnd daemon it talks to,
// just over this repository's REST surface instead of lncli's gRPC one.
package main

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"

	flags "github.com/jessevdk/go-flags"
)

// options are the flags shared by every subcommand, the equivalent of
// lncli's app-global --rpcserver/--tlscertpath flags.
type options struct {
	Host      string `long:"host" default:"http://localhost:8489" description:"Base URL of the lighthoused HTTP surface"`
	Insecure  bool   `long:"insecure" description:"Accept the server's TLS certificate without verification"`
}

var opts options

// httpClient returns the client every subcommand issues its request
// through, skipping certificate verification when --insecure is set --
// useful against a daemon serving a self-signed cert it generated itself
// via httpapi.LoadOrCreateTLSCert.
func httpClient() *http.Client {
	if !opts.Insecure {
		return http.DefaultClient
	}
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "lighthouse-cli: %v\n", err)
	os.Exit(1)
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)

	if _, err := parser.AddCommand(
		"status", "Fetch a project's pledge status",
		"Fetches and prints the ProjectStatus for a hex-encoded project id.",
		&statusCommand{},
	); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand(
		"submit", "Upload a pledge file",
		"POSTs a .lighthouse-pledge file to a project's pledge endpoint.",
		&submitCommand{},
	); err != nil {
		fatal(err)
	}
	if _, err := parser.AddCommand(
		"show-project", "Print a local project file's contents",
		"Parses a .lighthouse-project file and prints its title, goal, and outputs without any network access.",
		&showProjectCommand{},
	); err != nil {
		fatal(err)
	}

	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fatal(err)
	}
}
