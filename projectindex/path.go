package projectindex

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// URLPathPrefix is the reserved path prefix a project lookup URL begins
// with, followed by the project id and an optional format suffix.
const URLPathPrefix = "/_lighthouse/crowdfund/project/"

// ParsePathID extracts the project id and optional format suffix from a
// request path beginning with URLPathPrefix, e.g.
// "/_lighthouse/crowdfund/project/ab12....json" -> (id, "json", nil).
// An absent suffix reports format "" (protobuf, the wire default).
func ParsePathID(path string) (chainhash.Hash, string, error) {
	if !strings.HasPrefix(path, URLPathPrefix) {
		return chainhash.Hash{}, "", fmt.Errorf("projectindex: path %q does not start with %s", path, URLPathPrefix)
	}
	rest := path[len(URLPathPrefix):]
	if rest == "" {
		return chainhash.Hash{}, "", fmt.Errorf("projectindex: no project id in path %q", path)
	}

	idStr, format := rest, ""
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		idStr, format = rest[:i], rest[i+1:]
	}

	raw, err := hex.DecodeString(strings.ToLower(idStr))
	if err != nil || len(raw) != chainhash.HashSize {
		return chainhash.Hash{}, "", fmt.Errorf("projectindex: %q is not a valid project id", idStr)
	}

	var id chainhash.Hash
	copy(id[:], raw)
	return id, format, nil
}
