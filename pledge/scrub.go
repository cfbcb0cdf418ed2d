package pledge

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/vinumeris/lighthouse/envelope"
)

// Scrub re-encodes raw with its transaction data stripped and
// PledgeDetails.OrigHash set to raw's pre-strip identity hash, so the
// scrubbed pledge's ID is unchanged by the strip. Servers use this to
// answer unauthenticated status requests without leaking a third party's
// pledge transactions.
func Scrub(raw []byte) ([]byte, error) {
	env, err := envelope.UnmarshalPledge(raw)
	if err != nil {
		return nil, err
	}

	origHash := chainhash.DoubleHashH(raw)
	details := *env.PledgeDetails
	details.OrigHash = origHash[:]

	scrubbed := &envelope.Pledge{PledgeDetails: &details}
	return scrubbed.Marshal(), nil
}
