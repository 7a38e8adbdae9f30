package quorumrpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
)

// QuorumNotReachedError aggregates the per-peer errors observed by a
// QuorumInvoke call that failed to collect Q successes.
type QuorumNotReachedError struct {
	Peers  []string
	Errors []error
}

func (e *QuorumNotReachedError) Error() string {
	var b strings.Builder
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n-%s\n%v", e.Peers[i], err)
	}
	return b.String()
}

// Client fans RPC calls out to every peer in a fixed cluster and reports
// success once at least Quorum of them agree to respond successfully.
// Ordering between concurrent calls is not imposed here - Paxos supplies
// the ordering guarantee (SPEC_FULL.md §4.2).
type Client struct {
	peers      []string
	httpClient *http.Client
	quorum     int
}

// NewClient builds a Client trusting cacertPath to verify peers, presenting
// certPath/keyPath as its own client certificate, talking to the given
// ordered peer addresses. quorumOverride raises (never lowers) the derived
// majority quorum Q = floor(N/2)+1, matching the --quorum CLI flag
// preserved from original_source/paxosdb.py.
func NewClient(cacertPath, certPath, keyPath string, peers []string, quorumOverride int) (*Client, error) {
	caBytes, err := os.ReadFile(cacertPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificates found in %s", cacertPath)
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
	}

	quorum := len(peers)/2 + 1
	if quorumOverride > quorum {
		quorum = quorumOverride
	}

	return &Client{
		peers: peers,
		httpClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		quorum: quorum,
	}, nil
}

// Quorum returns Q, the number of successful replies required.
func (c *Client) Quorum() int { return c.quorum }

// Peers returns the configured peer addresses, in order.
func (c *Client) Peers() []string { return c.peers }

type peerResult struct {
	peer   string
	result json.RawMessage
	err    error
}

// QuorumInvoke calls path (with body, if any) against every configured
// peer in parallel, waits for all of them to either succeed or fail, and
// returns the decoded result of each successful reply. It fails with
// QuorumNotReachedError if fewer than Quorum peers succeeded. The caller's
// ctx cancellation propagates to every in-flight peer call.
func (c *Client) QuorumInvoke(ctx context.Context, path string, body []byte) ([]json.RawMessage, error) {
	results := make([]peerResult, len(c.peers))

	var wg sync.WaitGroup
	for i, peer := range c.peers {
		wg.Add(1)
		go func(i int, peer string) {
			defer wg.Done()
			result, err := c.invokeOne(ctx, peer, path, body)
			results[i] = peerResult{peer: peer, result: result, err: err}
		}(i, peer)
	}
	wg.Wait()

	successes := make([]json.RawMessage, 0, len(c.peers))
	var errs []error
	var errPeers []string
	for _, r := range results {
		if r.err != nil {
			logger.Warningf("%s %v", r.peer, r.err)
			errs = append(errs, r.err)
			errPeers = append(errPeers, r.peer)
			continue
		}
		successes = append(successes, r.result)
	}

	if len(successes) < c.quorum {
		return nil, &QuorumNotReachedError{Peers: errPeers, Errors: errs}
	}
	return successes, nil
}

func (c *Client) invokeOne(ctx context.Context, peer, path string, body []byte) (json.RawMessage, error) {
	url := "https://" + peer + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", peer, err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("%s", env.Error)
	}
	return env.Result, nil
}
