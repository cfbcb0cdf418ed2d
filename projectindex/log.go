package projectindex

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by projectindex.
func UseLogger(logger btclog.Logger) {
	log = logger
}
