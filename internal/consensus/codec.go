package consensus

import (
	"bytes"
	"compress/gzip"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
)

// encodeValue serializes a user object the way SPEC_FULL.md §3 requires:
// JSON, then gzip, stored and transported as opaque octets.
func encodeValue(obj interface{}) ([]byte, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue reverses encodeValue, returning the still-JSON-encoded
// payload for the caller to unmarshal into whatever type it expects.
func decodeValue(octets []byte) (json.RawMessage, error) {
	zr, err := gzip.NewReader(bytes.NewReader(octets))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// credential is the {guid, hmac} object stored as the Paxos record at
// (db=D, key=D), described in SPEC_FULL.md §3.
type credential struct {
	Guid string `json:"guid"`
	Hmac string `json:"hmac"`
}

// hmacHex computes HMAC-SHA256(secret, msg) hex-encoded, matching
// original_source/paxosdb.py's get_hmac.
func hmacHex(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
