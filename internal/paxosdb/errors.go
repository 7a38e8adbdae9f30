package paxosdb

import "fmt"

// Acceptor errors are distinct types, not sentinel values, following the
// NodeError / queryError / nodeTimeoutError convention in cluster/node.go -
// callers distinguish kinds with errors.As rather than string matching.

// NotInitializedError is returned by ReadServer when a db's store file
// does not exist yet - nothing has ever been proposed for this db.
type NotInitializedError struct {
	Db string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("NOT_INITIALIZED: db %q", e.Db)
}

// TLSAuthFailedError is returned by Paxos when the caller's peer identity
// is empty - mutual TLS client auth did not run for this request.
type TLSAuthFailedError struct{}

func (e *TLSAuthFailedError) Error() string {
	return "TLS_AUTH_FAILED"
}

// ClocksOutOfSyncError is returned by Paxos when the proposal's seq is
// further than the liveness guard window from wall-clock time.
type ClocksOutOfSyncError struct {
	Seq      int64
	Now      int64
	GuardSec int64
}

func (e *ClocksOutOfSyncError) Error() string {
	return fmt.Sprintf("CLOCKS_OUT_OF_SYNC: seq=%d now=%d guard=%ds", e.Seq, e.Now, e.GuardSec)
}

// StaleProposalSeqError is returned by Paxos when a PROMISE or ACCEPT
// arrives with a seq that has already been superseded at this acceptor.
type StaleProposalSeqError struct {
	Key     string
	Version int64
	Seq     int64
}

func (e *StaleProposalSeqError) Error() string {
	return fmt.Sprintf("STALE_PROPOSAL_SEQ %s:%d %d", e.Key, e.Version, e.Seq)
}
