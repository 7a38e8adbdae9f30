package consensus

import (
	"context"
	"encoding/json"

	"github.com/bdeggleston/confdb/internal/quorumrpc"
)

type readServerKeysReply struct {
	Keys []keyVersionReply
}

type keyVersionReply struct {
	Key     string
	Version int64
}

type readServerValueReply struct {
	Found   bool
	Version int64
	Value   []byte
}

// Reader answers get requests, performing read-repair via a Proposer when
// acceptors disagree, matching SPEC_FULL.md §4.4.
type Reader struct {
	client   *quorumrpc.Client
	proposer *Proposer
}

// NewReader builds a Reader issuing quorum reads through client, repairing
// divergence through proposer.
func NewReader(client *quorumrpc.Client, proposer *Proposer) *Reader {
	return &Reader{client: client, proposer: proposer}
}

// ListKeys returns the highest known version of every key in db, merged
// across a quorum of acceptors by taking the max version seen for each
// key. There is no repair step for this form - it is a best-effort
// directory listing, not a value read (spec.md §4.1's keyless read_server
// case).
func (r *Reader) ListKeys(ctx context.Context, db string) (map[string]int64, error) {
	raws, err := r.client.QuorumInvoke(ctx, quorumrpc.BuildPath("read_server", "db", db), nil)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]int64)
	for _, raw := range raws {
		var reply readServerKeysReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, err
		}
		for _, kv := range reply.Keys {
			if kv.Version > merged[kv.Key] {
				merged[kv.Key] = kv.Version
			}
		}
	}
	return merged, nil
}

// GetKey returns the agreed value of (db, key) across a quorum of
// acceptors. version is nil and value is nil if no acceptor has ever
// accepted a value for key; if db has no store on a quorum of acceptors
// the read fails NOT_INITIALIZED instead. When acceptors disagree - a
// write is in-flight or was left half-finished - GetKey drives a Proposer
// round at the highest version it observed and tries again. A failed
// quorum read is also tried again. After Q attempts it returns the last
// error, or QuorumDivergedError if the replies still disagree.
func (r *Reader) GetKey(ctx context.Context, db, key string) (version *int64, value json.RawMessage, err error) {
	attempts := r.client.Quorum()
	var lastErr error

	for i := 0; i < attempts; i++ {
		raws, err := r.client.QuorumInvoke(ctx, quorumrpc.BuildPath("read_server", "db", db, "key", key), nil)
		if err != nil {
			lastErr = err
			continue
		}

		replies := make([]readServerValueReply, len(raws))
		for j, raw := range raws {
			if err := json.Unmarshal(raw, &replies[j]); err != nil {
				return nil, nil, err
			}
		}

		if converged, reply := agree(replies); converged {
			if !reply.Found {
				return nil, nil, nil
			}
			decoded, err := decodeValue(reply.Value)
			if err != nil {
				return nil, nil, err
			}
			v := reply.Version
			return &v, decoded, nil
		}

		var maxVersion int64
		for _, reply := range replies {
			if reply.Found && reply.Version > maxVersion {
				maxVersion = reply.Version
			}
		}
		if proposeErr := r.proposer.Propose(ctx, db, key, maxVersion, nil); proposeErr != nil {
			lastErr = proposeErr
			continue
		}
		lastErr = nil
	}

	if lastErr != nil {
		return nil, nil, lastErr
	}
	return nil, nil, &QuorumDivergedError{Db: db, Key: key}
}

func agree(replies []readServerValueReply) (bool, readServerValueReply) {
	first := replies[0]
	for _, reply := range replies[1:] {
		if reply.Found != first.Found || reply.Version != first.Version || string(reply.Value) != string(first.Value) {
			return false, readServerValueReply{}
		}
	}
	return true, first
}

// QuorumDivergedError is returned by Reader.GetKey when acceptors still
// disagree after exhausting every repair attempt.
type QuorumDivergedError struct {
	Db, Key string
}

func (e *QuorumDivergedError) Error() string {
	return "read quorum for " + e.Db + "/" + e.Key + " did not converge after repair"
}
