package backend

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/vinumeris/lighthouse/envelope"
	"github.com/vinumeris/lighthouse/project"
)

// statusPollInterval is how often a tracked remote project's status is
// refetched after the initial fetch, whether or not that fetch succeeded.
const statusPollInterval = 2 * time.Minute

// RemoteStatusClient polls a project owner's server for a signed status
// snapshot, used by client-mode installs that only watch a project rather
// than run its backend. signer signs the project id so the server can
// authenticate the request and return unscrubbed pledges.
type RemoteStatusClient struct {
	httpClient *http.Client
	signer     project.MessageSigner

	// newTicker builds the ticker Watch polls on; overridden in tests
	// with ticker.NewForce so a poll can be driven manually instead of
	// waiting on a real wall-clock interval.
	newTicker func() ticker.Ticker
}

// NewRemoteStatusClient builds a status poller that signs every request
// with signer.
func NewRemoteStatusClient(signer project.MessageSigner) *RemoteStatusClient {
	return &RemoteStatusClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signer:     signer,
		newTicker:  func() ticker.Ticker { return ticker.New(statusPollInterval) },
	}
}

// SetTicker overrides the ticker Watch polls on, for tests that need to
// force a poll deterministically rather than wait on a real interval.
func (c *RemoteStatusClient) SetTicker(newTicker func() ticker.Ticker) {
	c.newTicker = newTicker
}

// FetchOnce makes a single signed status request against proj's payment
// URL and parses the response, retrying transient failures with
// exponential backoff before giving up.
func (c *RemoteStatusClient) FetchOnce(ctx context.Context, proj *project.Project) (*envelope.ProjectStatus, error) {
	base, err := proj.PaymentURL()
	if err != nil {
		return nil, err
	}

	id := proj.ID()
	sig, err := proj.SignAsOwner(c.signer, id[:])
	if err != nil {
		return nil, fmt.Errorf("backend: signing status request: %w", err)
	}

	q := url.Values{}
	q.Set("msg", hex.EncodeToString(id[:]))
	q.Set("sig", hex.EncodeToString(sig))
	reqURL := *base
	reqURL.RawQuery = q.Encode()

	var status *envelope.ProjectStatus
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	err = backoff.Retry(func() error {
		body, err := c.get(ctx, reqURL.String())
		if err != nil {
			return err
		}
		status, err = envelope.UnmarshalProjectStatus(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	return status, nil
}

func (c *RemoteStatusClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors are transient: retry.
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("backend: server error %d fetching status", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("backend: status fetch failed with %d", resp.StatusCode))
	}
}

// Watch polls proj's status every statusPollInterval, invoking onUpdate
// with each successfully parsed snapshot, until ctx is cancelled.
func (c *RemoteStatusClient) Watch(ctx context.Context, proj *project.Project, onUpdate func(*envelope.ProjectStatus)) {
	t := c.newTicker()
	t.Resume()
	defer t.Stop()

	fetch := func() {
		status, err := c.FetchOnce(ctx, proj)
		if err == nil {
			onUpdate(status)
		}
	}

	fetch()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Ticks():
			fetch()
		}
	}
}
