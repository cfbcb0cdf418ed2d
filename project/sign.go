package project

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MessageSigner is supplied by the caller of SignAsOwner so this package
// never needs direct access to private key material -- the wallet decides
// how (and whether) the author key can be used, the same separation
// zpay32.MessageSigner draws between invoice encoding and key custody.
type MessageSigner struct {
	// SignCompact signs the passed hash and returns a signature in the
	// 65-byte recoverable-compact format produced by
	// btcec/v2/ecdsa.SignCompact.
	SignCompact func(hash []byte) ([]byte, error)
}

// SignAsOwner signs an arbitrary message as the project owner, using the
// author key the project was created with. The digest signed is the
// double-SHA256 of msg, matching the hashing convention used elsewhere in
// this protocol for identity and signing.
func (p *Project) SignAsOwner(signer MessageSigner, msg []byte) ([]byte, error) {
	digest := chainhash.DoubleHashB(msg)
	return signer.SignCompact(digest)
}

// AuthenticateOwner reports whether sig is a valid signature over msg by
// this project's author key. It recovers the signing public key from sig
// and compares it against the key recorded in the project's extra details;
// a project with no author key never authenticates.
func (p *Project) AuthenticateOwner(msg, sig []byte) bool {
	if len(p.extra.AuthorKey) == 0 {
		return false
	}

	digest := chainhash.DoubleHashB(msg)
	pubKey, _, err := ecdsa.RecoverCompact(sig, digest)
	if err != nil {
		return false
	}

	return bytes.Equal(pubKey.SerializeCompressed(), p.extra.AuthorKey)
}
