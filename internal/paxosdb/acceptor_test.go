package paxosdb

import (
	"context"
	"testing"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
)

func setupAcceptor(t *testing.T) *Acceptor {
	t.Helper()
	stats, err := statsd.NewNoopClient()
	if err != nil {
		t.Fatalf("unexpected error building noop statsd client: %v", err)
	}
	return NewAcceptor(NewRegistry(t.TempDir()), stats)
}

func TestPaxosRejectsEmptyPeerIdentity(t *testing.T) {
	a := setupAcceptor(t)
	ctx := context.Background()

	_, err := a.Paxos(ctx, "", "dbA", "k", 1, nowSeq(), nil, false)
	if _, ok := err.(*TLSAuthFailedError); !ok {
		t.Fatalf("expected *TLSAuthFailedError, got %T: %v", err, err)
	}
}

func TestPaxosRejectsClockSkew(t *testing.T) {
	a := setupAcceptor(t)
	ctx := context.Background()

	_, err := a.Paxos(ctx, "peer", "dbA", "k", 1, nowSeq()-20, nil, false)
	if _, ok := err.(*ClocksOutOfSyncError); !ok {
		t.Fatalf("expected *ClocksOutOfSyncError, got %T: %v", err, err)
	}
}

func TestPaxosPromiseThenAccept(t *testing.T) {
	a := setupAcceptor(t)
	ctx := context.Background()
	seq := nowSeq()

	promise, err := a.Paxos(ctx, "peer", "dbA", "k", 1, seq, nil, false)
	if err != nil {
		t.Fatalf("unexpected promise error: %v", err)
	}
	if promise.AcceptedSeq != 0 || promise.Value != nil {
		t.Fatalf("expected empty promise reply, got %+v", promise)
	}

	if _, err := a.Paxos(ctx, "peer", "dbA", "k", 1, seq, []byte("v"), true); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}

	result, err := a.ReadServer(ctx, "dbA", strPtr("k"), nil)
	if err != nil {
		t.Fatalf("unexpected read_server error: %v", err)
	}
	if !result.Found || string(result.Value) != "v" || result.Version != 1 {
		t.Fatalf("unexpected read_server result: %+v", result)
	}
}

func TestReadServerNotInitialized(t *testing.T) {
	a := setupAcceptor(t)
	_, err := a.ReadServer(context.Background(), "dbA", nil, nil)
	if _, ok := err.(*NotInitializedError); !ok {
		t.Fatalf("expected *NotInitializedError, got %T: %v", err, err)
	}
}

func strPtr(s string) *string { return &s }

func nowSeq() int64 {
	return time.Now().Unix()
}
