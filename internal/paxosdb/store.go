package paxosdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const createTableSQL = `create table if not exists paxos(
	key          text,
	version      int,
	promised_seq int,
	accepted_seq int,
	value        blob,
	primary key(key, version)
)`

// Record is one acceptor record, uniquely identified by (key, version)
// within a db. Value is nil iff AcceptedSeq == 0.
type Record struct {
	Key         string
	Version     int64
	PromisedSeq int64
	AcceptedSeq int64
	Value       []byte
}

// KeyVersion names the (key, version) of a finalized record, as returned
// by a keyless read_server call.
type KeyVersion struct {
	Key     string
	Version int64
}

// Registry caches one *sql.DB handle per db for the process lifetime - a
// ConfDB cluster manages a bounded, operator-provisioned set of dbs, not an
// unbounded tenant space, so no eviction policy is needed (see SPEC_FULL.md
// Open Question resolutions).
type Registry struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewRegistry returns a Registry rooted at root (store files live under
// root/paxosdb/...).
func NewRegistry(root string) *Registry {
	return &Registry{
		root: root,
		dbs:  make(map[string]*sql.DB),
	}
}

// Exists reports whether db's store file has ever been created, without
// creating it.
func (r *Registry) Exists(db string) bool {
	_, err := os.Stat(StorePath(r.root, db))
	return err == nil
}

func (r *Registry) open(db string, create bool) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.dbs[db]; ok {
		return handle, nil
	}

	path := StorePath(r.root, db)
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, &NotInitializedError{Db: db}
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory for db %q: %w", db, err)
	}

	dsn := path + "?_busy_timeout=5000"
	handle, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store for db %q: %w", db, err)
	}
	if create {
		if _, err := handle.Exec(createTableSQL); err != nil {
			handle.Close()
			return nil, fmt.Errorf("creating paxos table for db %q: %w", db, err)
		}
	}

	r.dbs[db] = handle
	return handle, nil
}

// Store reads an existing db's store for read_server. Fails NOT_INITIALIZED
// if the db has never been written to.
func (r *Registry) Store(db string) (*Store, error) {
	handle, err := r.open(db, false)
	if err != nil {
		return nil, err
	}
	return &Store{db: handle, name: db}, nil
}

// WritableStore opens (creating if necessary) a db's store for a paxos call.
func (r *Registry) WritableStore(db string) (*Store, error) {
	handle, err := r.open(db, true)
	if err != nil {
		return nil, err
	}
	return &Store{db: handle, name: db}, nil
}

// Store is the per-db acceptor table, accessed transactionally.
type Store struct {
	db   *sql.DB
	name string
}

// ListAccepted returns every (key, version) with accepted_seq > 0.
func (s *Store) ListAccepted(ctx context.Context) ([]KeyVersion, error) {
	rows, err := s.db.QueryContext(ctx, `select key, version from paxos where accepted_seq > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyVersion
	for rows.Next() {
		var kv KeyVersion
		if err := rows.Scan(&kv.Key, &kv.Version); err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// Latest returns the highest-version finalized record for key, or nil if
// none exists.
func (s *Store) Latest(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		select key, version, promised_seq, accepted_seq, value from paxos
		where key=? and accepted_seq > 0
		order by version desc limit 1
	`, key)
	return scanRecord(row)
}

// Exact returns the record at (key, version), or nil if it has never been
// touched by a Paxos phase.
func (s *Store) Exact(ctx context.Context, key string, version int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		select key, version, promised_seq, accepted_seq, value from paxos
		where key=? and version=?
	`, key, version)
	return scanRecord(row)
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	if err := row.Scan(&rec.Key, &rec.Version, &rec.PromisedSeq, &rec.AcceptedSeq, &rec.Value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if rec.AcceptedSeq == 0 {
		rec.Value = nil
	}
	return &rec, nil
}

// Promise runs Paxos phase 1 (PROMISE) for (key, version) at proposal
// number seq. On success it returns the previously accepted (seq, value),
// which may be (0, nil) if nothing has been accepted yet. It fails
// StaleProposalSeqError if seq does not exceed the current promised_seq.
func (s *Store) Promise(ctx context.Context, key string, version, seq int64) (acceptedSeq int64, value []byte, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`insert or ignore into paxos(key,version,promised_seq,accepted_seq,value) values(?,?,0,0,null)`,
		key, version,
	); err != nil {
		return 0, nil, err
	}

	var promisedSeq int64
	row := tx.QueryRowContext(ctx,
		`select promised_seq, accepted_seq, value from paxos where key=? and version=?`,
		key, version,
	)
	if err := row.Scan(&promisedSeq, &acceptedSeq, &value); err != nil {
		return 0, nil, err
	}

	if seq <= promisedSeq {
		return 0, nil, &StaleProposalSeqError{Key: key, Version: version, Seq: seq}
	}

	if _, err := tx.ExecContext(ctx,
		`update paxos set promised_seq=? where key=? and version=?`,
		seq, key, version,
	); err != nil {
		return 0, nil, err
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	if acceptedSeq == 0 {
		value = nil
	}
	return acceptedSeq, value, nil
}

// Accept runs Paxos phase 2 (ACCEPT) for (key, version) at proposal number
// seq, storing value as the chosen value. On success it prunes every
// record for this key whose version is below the highest accepted version
// of the key, whatever that record's own state - garbage collection,
// outside the safety proof. It fails
// StaleProposalSeqError if seq is less than the current promised_seq.
func (s *Store) Accept(ctx context.Context, key string, version, seq int64, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`insert or ignore into paxos(key,version,promised_seq,accepted_seq,value) values(?,?,0,0,null)`,
		key, version,
	); err != nil {
		return err
	}

	var promisedSeq int64
	row := tx.QueryRowContext(ctx, `select promised_seq from paxos where key=? and version=?`, key, version)
	if err := row.Scan(&promisedSeq); err != nil {
		return err
	}

	if seq < promisedSeq {
		return &StaleProposalSeqError{Key: key, Version: version, Seq: seq}
	}

	if _, err := tx.ExecContext(ctx,
		`update paxos set promised_seq=?, accepted_seq=?, value=? where key=? and version=?`,
		seq, seq, value, key, version,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		delete from paxos where key=? and version < (
			select max(version) from paxos where key=? and accepted_seq > 0
		)
	`, key, key); err != nil {
		return err
	}

	return tx.Commit()
}
