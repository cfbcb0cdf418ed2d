package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/vinumeris/lighthouse/project"
)

// authenticateRequest reports whether r carries a valid owner signature for
// proj. The signed message and its signature travel as the "msg" and "sig"
// query parameters, both hex-encoded; either missing or malformed makes the
// request unauthenticated rather than an error, since an unauthenticated GET
// is still a valid request, just one that gets a scrubbed response.
func authenticateRequest(r *http.Request, proj *project.Project) bool {
	msgHex := r.URL.Query().Get("msg")
	sigHex := r.URL.Query().Get("sig")
	if msgHex == "" || sigHex == "" {
		return false
	}

	msg, err := hex.DecodeString(msgHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	return proj.AuthenticateOwner(msg, sig)
}
