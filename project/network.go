package project

import "github.com/btcsuite/btcd/chaincfg"

// networkParams resolves a project envelope's network token to the chain
// parameters it refers to, rejecting unrecognized tokens at parse time
// rather than letting a project silently bind to the wrong chain.
func networkParams(token string) (*chaincfg.Params, error) {
	switch token {
	case "main":
		return &chaincfg.MainNetParams, nil
	case "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, parseErr("unknown network token %q", token)
	}
}
