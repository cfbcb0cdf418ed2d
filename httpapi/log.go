package httpapi

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by httpapi.
func UseLogger(logger btclog.Logger) {
	log = logger
}
