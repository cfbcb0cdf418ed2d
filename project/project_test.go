package project

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"
	"github.com/vinumeris/lighthouse/envelope"
)

func buildTestProjectBytes(t *testing.T, mutate func(d *envelope.ProjectDetails)) []byte {
	t.Helper()

	details := &envelope.ProjectDetails{
		Network: "test",
		Outputs: []*envelope.Output{
			{Amount: 100000, Script: []byte{0x76, 0xa9, 0x14}},
		},
		CreatedAt:  1700000000,
		ExpiresAt:  1800000000,
		PaymentURL: "https://example.com/_lighthouse/crowdfund/project/abc",
	}
	if mutate != nil {
		mutate(details)
	}

	extra := &envelope.ExtraDetails{Title: "Test Project", MinPledgeSize: 40000}
	extraBytes, err := extra.Encode()
	require.NoError(t, err)
	details.Extra = extraBytes

	env := &envelope.Project{SerializedDetails: details.Marshal()}
	return env.Marshal()
}

func TestParseProjectHappyPath(t *testing.T) {
	raw := buildTestProjectBytes(t, nil)

	p, err := ParseProject(raw)
	require.NoError(t, err)
	require.Equal(t, int64(100000), p.Goal())
	require.Equal(t, "Test Project", p.Title())
	require.Equal(t, uint64(40000), p.MinPledgeSize())
	require.Len(t, p.Outputs(), 1)
}

func TestParseProjectRoundTripIdentity(t *testing.T) {
	raw := buildTestProjectBytes(t, nil)

	p1, err := ParseProject(raw)
	require.NoError(t, err)
	p2, err := ParseProject(append([]byte(nil), raw...))
	require.NoError(t, err)

	require.Equal(t, p1.ID(), p2.ID())
	require.Equal(t, raw, p1.Bytes())
}

func TestParseProjectRejectsNonPositiveOutput(t *testing.T) {
	raw := buildTestProjectBytes(t, func(d *envelope.ProjectDetails) {
		d.Outputs[0].Amount = 0
	})

	_, err := ParseProject(raw)
	require.Error(t, err)
}

func TestParseProjectRejectsURLWithoutHost(t *testing.T) {
	raw := buildTestProjectBytes(t, func(d *envelope.ProjectDetails) {
		d.PaymentURL = "not-a-url"
	})

	_, err := ParseProject(raw)
	require.Error(t, err)
}

func TestParseProjectRejectsUnknownNetwork(t *testing.T) {
	raw := buildTestProjectBytes(t, func(d *envelope.ProjectDetails) {
		d.Network = "mainnet-but-wrong"
	})

	_, err := ParseProject(raw)
	require.Error(t, err)
}

func TestPaymentURLRewritesLocalhostPort(t *testing.T) {
	raw := buildTestProjectBytes(t, func(d *envelope.ProjectDetails) {
		d.PaymentURL = "http://localhost:9999/_lighthouse/crowdfund/project/abc"
	})

	p, err := ParseProject(raw)
	require.NoError(t, err)

	u, err := p.PaymentURL()
	require.NoError(t, err)
	require.Equal(t, "localhost:36000", u.Host)
}

func TestSlugNormalization(t *testing.T) {
	require.Equal(t,
		"bbc-14-01-2015-eu-lawyer-approves-ecb-bond-buying-programme",
		Slug("BBC 14/01/2015 EU lawyer approves ECB bond-buying programme"),
	)
	require.Equal(t, "български-език", Slug("български език"))
}

func TestSignAndAuthenticateOwner(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	raw := buildTestProjectBytes(t, nil)
	p, err := ParseProject(raw)
	require.NoError(t, err)
	p.extra.AuthorKey = priv.PubKey().SerializeCompressed()

	signer := MessageSigner{
		SignCompact: func(hash []byte) ([]byte, error) {
			return ecdsa.SignCompact(priv, hash, true), nil
		},
	}

	msg := []byte("authenticate me")
	sig, err := p.SignAsOwner(signer, msg)
	require.NoError(t, err)
	require.True(t, p.AuthenticateOwner(msg, sig))
	require.False(t, p.AuthenticateOwner([]byte("different message"), sig))
}

func TestAuthenticateOwnerWithNoAuthorKeyFails(t *testing.T) {
	raw := buildTestProjectBytes(t, nil)
	p, err := ParseProject(raw)
	require.NoError(t, err)

	require.False(t, p.AuthenticateOwner([]byte("msg"), []byte("sig")))
}
