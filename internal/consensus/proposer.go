package consensus

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cactus/go-statsd-client/statsd"

	"github.com/bdeggleston/confdb/internal/confdblog"
	"github.com/bdeggleston/confdb/internal/quorumrpc"
)

var logger = confdblog.Get("consensus")

// Proposer drives one Paxos round to a decision for a (db, key, version)
// triple, playing the paxos_client role of SPEC_FULL.md §4.3. It holds no
// state across calls; every Propose is a fresh round whose seq is the
// wall clock in whole seconds, so two rounds started within the same
// second share a seq and the later one is rejected as stale.
type Proposer struct {
	client *quorumrpc.Client
	stats  statsd.Statter
}

// NewProposer builds a Proposer issuing quorum RPCs through client.
func NewProposer(client *quorumrpc.Client, stats statsd.Statter) *Proposer {
	return &Proposer{client: client, stats: stats}
}

type promiseReply struct {
	AcceptedSeq int64
	Value       []byte
}

// Propose runs both Paxos phases for (db, key, version). obj is the value
// to propose if no acceptor in the promise quorum has already accepted
// one; otherwise the value accepted at the highest seq is proposed instead.
// Pass nil for a read-repair call that only wants to drive convergence
// without introducing new data (SPEC_FULL.md's resolution of the "what if
// nothing has ever been accepted" open question: Propose silently aborts
// rather than erroring).
//
// Phase 2's outcome is not itself load-bearing: once phase 1 reveals a
// quorum of acceptors at this seq, the value is already safe to read back
// by a later reader performing its own repair, so Propose ignores
// ACCEPT's error the way original_source/paxosdb.py's paxos_client does.
func (p *Proposer) Propose(ctx context.Context, db, key string, version int64, obj interface{}) error {
	seq := time.Now().Unix()

	var octets []byte
	hasObj := obj != nil
	if hasObj {
		encoded, err := encodeValue(obj)
		if err != nil {
			return err
		}
		octets = encoded
	}

	path := quorumrpc.BuildPath("paxos",
		"db", db,
		"key", key,
		"version", strconv.FormatInt(version, 10),
		"seq", strconv.FormatInt(seq, 10),
	)

	start := time.Now()
	promiseRaws, err := p.client.QuorumInvoke(ctx, path, nil)
	p.stats.Timing("proposer.promise.time", time.Since(start).Milliseconds(), 1.0)
	if err != nil {
		return err
	}

	var adoptedSeq int64
	for _, raw := range promiseRaws {
		var reply promiseReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return err
		}
		if reply.AcceptedSeq > adoptedSeq {
			adoptedSeq = reply.AcceptedSeq
			octets = reply.Value
		}
	}

	if adoptedSeq == 0 && !hasObj {
		logger.Debugf("propose %s/%s:%d: nothing accepted anywhere and no value offered, aborting", db, key, version)
		return nil
	}

	start = time.Now()
	_, err = p.client.QuorumInvoke(ctx, path, octets)
	p.stats.Timing("proposer.accept.time", time.Since(start).Milliseconds(), 1.0)
	if err != nil {
		logger.Debugf("propose %s/%s:%d: accept phase did not reach quorum, ignoring: %v", db, key, version, err)
	}
	return nil
}
