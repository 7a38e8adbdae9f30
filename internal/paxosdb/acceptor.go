package paxosdb

import (
	"context"
	"time"

	"github.com/cactus/go-statsd-client/statsd"

	"github.com/bdeggleston/confdb/internal/confdblog"
)

var logger = confdblog.Get("acceptor")

// clockGuardSeconds bounds how far a proposal's seq may drift from this
// acceptor's wall clock. Liveness guard only - correctness never depends
// on it (SPEC_FULL.md §4.1).
const clockGuardSeconds = 10

// Acceptor is the safety guardian described in SPEC_FULL.md §4.1: it is a
// pure state transition over a persisted Record, wrapped in transactional
// store I/O. It holds no long-lived in-memory state beyond the store
// handle cache in its Registry.
type Acceptor struct {
	registry *Registry
	stats    statsd.Statter
}

// NewAcceptor builds an Acceptor over registry, emitting metrics through
// stats (pass a statsd.NoopClient in tests that don't care).
func NewAcceptor(registry *Registry, stats statsd.Statter) *Acceptor {
	return &Acceptor{registry: registry, stats: stats}
}

// ReadServerResult is the decoded reply to a read_server call. Keys is set
// only for the keyless form; Found is false for the "empty result" case
// described in SPEC_FULL.md §4.1.
type ReadServerResult struct {
	Keys    []KeyVersion
	Found   bool
	Version int64
	Value   []byte
}

// ReadServer answers a read_server call. It never mutates state.
//
//   - key == nil: returns every (key, version) with accepted_seq > 0.
//   - key != nil, version == nil: returns the highest accepted version of key.
//   - key != nil, version != nil: returns the exact (key, version) record.
//     Not listed in the handler table in SPEC_FULL.md §6, but the
//     read_server handler passes a version path argument through to it.
func (a *Acceptor) ReadServer(ctx context.Context, db string, key *string, version *int64) (*ReadServerResult, error) {
	store, err := a.registry.Store(db)
	if err != nil {
		return nil, err
	}

	if key == nil {
		keys, err := store.ListAccepted(ctx)
		if err != nil {
			return nil, err
		}
		return &ReadServerResult{Keys: keys}, nil
	}

	var rec *Record
	if version == nil {
		rec, err = store.Latest(ctx, *key)
	} else {
		rec, err = store.Exact(ctx, *key, *version)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.AcceptedSeq == 0 {
		return &ReadServerResult{}, nil
	}
	return &ReadServerResult{Found: true, Version: rec.Version, Value: rec.Value}, nil
}

// PromiseResult is the reply to a Paxos PROMISE phase call: the highest
// value this acceptor has already accepted for (key, version), if any.
type PromiseResult struct {
	AcceptedSeq int64
	Value       []byte
}

// Paxos handles one call to the combined promise/accept endpoint. hasValue
// disambiguates PROMISE (false) from ACCEPT (true), matching spec.md §4.1's
// single dynamic-payload endpoint. peerIdentity is the authenticated
// caller's certificate subject, required non-empty by TLSAuthFailedError.
//
// On ACCEPT, result is always nil; success is signaled by a nil error.
func (a *Acceptor) Paxos(ctx context.Context, peerIdentity, db, key string, version, seq int64, value []byte, hasValue bool) (*PromiseResult, error) {
	now := time.Now().Unix()
	if seq > now+clockGuardSeconds || seq < now-clockGuardSeconds {
		return nil, &ClocksOutOfSyncError{Seq: seq, Now: now, GuardSec: clockGuardSeconds}
	}
	if peerIdentity == "" {
		return nil, &TLSAuthFailedError{}
	}

	store, err := a.registry.WritableStore(db)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if !hasValue {
		acceptedSeq, val, err := store.Promise(ctx, key, version, seq)
		a.stats.Timing("paxos.promise.time", time.Since(start).Milliseconds(), 1.0)
		if err != nil {
			a.stats.Inc("paxos.promise.stale.count", 1, 1.0)
			logger.Debugf("promise rejected for %s/%s:%d seq=%d: %v", db, key, version, seq, err)
			return nil, err
		}
		a.stats.Inc("paxos.promise.count", 1, 1.0)
		return &PromiseResult{AcceptedSeq: acceptedSeq, Value: val}, nil
	}

	if err := store.Accept(ctx, key, version, seq, value); err != nil {
		a.stats.Timing("paxos.accept.time", time.Since(start).Milliseconds(), 1.0)
		a.stats.Inc("paxos.accept.stale.count", 1, 1.0)
		logger.Debugf("accept rejected for %s/%s:%d seq=%d: %v", db, key, version, seq, err)
		return nil, err
	}
	a.stats.Timing("paxos.accept.time", time.Since(start).Milliseconds(), 1.0)
	a.stats.Inc("paxos.accept.count", 1, 1.0)
	return nil, nil
}
