package paxosdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bdeggleston/confdb/internal/quorumrpc"
)

// Register wires Acceptor onto server as the read_server and paxos
// operations described in SPEC_FULL.md §6's handler table. Call before
// server.Start().
func (a *Acceptor) Register(server *quorumrpc.Server) {
	server.Register("read_server", a.handleReadServer)
	server.Register("paxos", a.handlePaxos)
}

func (a *Acceptor) handleReadServer(ctx context.Context, peerIdentity string, args map[string]string, body []byte) (interface{}, error) {
	db, ok := args["db"]
	if !ok {
		return nil, fmt.Errorf("read_server: missing db argument")
	}

	var keyPtr *string
	var versionPtr *int64
	if key, ok := args["key"]; ok {
		keyPtr = &key
		if versionStr, ok := args["version"]; ok {
			version, err := strconv.ParseInt(versionStr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("read_server: bad version %q: %w", versionStr, err)
			}
			versionPtr = &version
		}
	}

	return a.ReadServer(ctx, db, keyPtr, versionPtr)
}

func (a *Acceptor) handlePaxos(ctx context.Context, peerIdentity string, args map[string]string, body []byte) (interface{}, error) {
	db, ok := args["db"]
	if !ok {
		return nil, fmt.Errorf("paxos: missing db argument")
	}
	key, ok := args["key"]
	if !ok {
		return nil, fmt.Errorf("paxos: missing key argument")
	}
	version, err := strconv.ParseInt(args["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("paxos: bad version %q: %w", args["version"], err)
	}
	seq, err := strconv.ParseInt(args["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("paxos: bad seq %q: %w", args["seq"], err)
	}

	hasValue := len(body) > 0
	result, err := a.Paxos(ctx, peerIdentity, db, key, version, seq, body, hasValue)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return struct{}{}, nil
	}
	return result, nil
}
