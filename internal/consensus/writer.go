package consensus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Writer implements put, described in SPEC_FULL.md §4.5: authenticate the
// caller's secret against the db's bootstrap-or-existing credential, then
// run a Proposer round for the requested key and re-read the result.
type Writer struct {
	reader   *Reader
	proposer *Proposer
}

// NewWriter builds a Writer driving reads through reader and proposals
// through proposer. Both must share the same underlying quorumrpc.Client.
func NewWriter(reader *Reader, proposer *Proposer) *Writer {
	return &Writer{reader: reader, proposer: proposer}
}

// Put authenticates secret against db's credential (bootstrapping one if
// this is the first write to db), proposes obj at (db, key, version), and
// returns the value a quorum subsequently reads back for key. If key == db
// this is a secret rotation: obj must be the new secret (a string), and
// the stored credential's guid is regenerated alongside it.
func (w *Writer) Put(ctx context.Context, db, secret, key string, version int64, obj interface{}) (*int64, json.RawMessage, error) {
	if _, err := w.authenticate(ctx, db, secret); err != nil {
		return nil, nil, err
	}

	if key == db {
		newSecret, ok := obj.(string)
		if !ok {
			return nil, nil, fmt.Errorf("rotating the credential for db %q requires a string secret", db)
		}
		guid := uuid.New().String()
		obj = credential{Guid: guid, Hmac: hmacHex(newSecret, guid)}
	}

	if err := w.proposer.Propose(ctx, db, key, version, obj); err != nil {
		return nil, nil, err
	}
	return w.reader.GetKey(ctx, db, key)
}

// authenticate reads db's credential record, bootstrapping one through a
// Proposer round if db has never been written to anywhere (every
// acceptor's read_server fails NOT_INITIALIZED, so GetKey's quorum read
// itself fails), and checks secret against it. Mirrors the
// try/except around get(ctx, db, db) in original_source/paxosdb.py's put.
func (w *Writer) authenticate(ctx context.Context, db, secret string) (*credential, error) {
	version, raw, err := w.reader.GetKey(ctx, db, db)
	if err != nil {
		guid := uuid.New().String()
		bootstrap := credential{Guid: guid, Hmac: hmacHex(secret, guid)}
		if proposeErr := w.proposer.Propose(ctx, db, db, 0, bootstrap); proposeErr != nil {
			return nil, proposeErr
		}
		version, raw, err = w.reader.GetKey(ctx, db, db)
		if err != nil {
			return nil, err
		}
		if version == nil {
			return nil, fmt.Errorf("db %q: credential bootstrap did not converge", db)
		}
	}

	var cred credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("db %q: decoding credential: %w", db, err)
	}
	if hmacHex(secret, cred.Guid) != cred.Hmac {
		return nil, &AuthenticationFailedError{Db: db}
	}
	return &cred, nil
}
