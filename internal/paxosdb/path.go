package paxosdb

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// StorePath returns the deterministic on-disk path for a db's SQLite store,
// fanned out two levels deep by the hex-encoded SHA-256 of the db name so
// that no single directory ever holds more than a few thousand files.
//
//	<root>/paxosdb/<hex[0:3]>/<hex[3:6]>/<hex>.store
func StorePath(root, db string) string {
	sum := sha256.Sum256([]byte(db))
	hexSum := hex.EncodeToString(sum[:])
	return filepath.Join(root, "paxosdb", hexSum[0:3], hexSum[3:6], hexSum+".store")
}
