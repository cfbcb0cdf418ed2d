package backend

import "github.com/btcsuite/btclog"

// log is the package-wide logger; callers wire up a real backend with
// UseLogger, same as every other lnd-style subsystem in this tree.
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by backend.
func UseLogger(logger btclog.Logger) {
	log = logger
}
