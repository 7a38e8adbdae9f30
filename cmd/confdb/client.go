package main

import (
	"fmt"

	"github.com/cactus/go-statsd-client/statsd"

	"github.com/bdeggleston/confdb/internal/consensus"
	"github.com/bdeggleston/confdb/internal/quorumrpc"
)

// newClusterClient builds the same Client/Proposer/Reader/Writer stack a
// server node runs internally for its get/put handlers, so that client
// mode can drive a full read or write round directly against the cluster
// without an extra RPC hop through some single node's handler.
func newClusterClient(certPath, cacertPath, serversCSV string, quorum int) (*consensus.Reader, *consensus.Writer, error) {
	servers := splitServers(serversCSV)
	if len(servers) == 0 {
		return nil, nil, fmt.Errorf("--servers must list at least one server")
	}

	// certPath carries both the certificate and its private key PEM blocks,
	// matching the single --cert flag in SPEC_FULL.md's CLI shape.
	client, err := quorumrpc.NewClient(cacertPath, certPath, certPath, servers, quorum)
	if err != nil {
		return nil, nil, fmt.Errorf("building cluster client: %w", err)
	}

	stats, err := statsd.NewNoopClient()
	if err != nil {
		return nil, nil, err
	}

	proposer := consensus.NewProposer(client, stats)
	reader := consensus.NewReader(client, proposer)
	writer := consensus.NewWriter(reader, proposer)
	return reader, writer, nil
}
