package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bdeggleston/confdb/internal/quorumrpc"
)

// Register wires Reader and Writer onto server as the get and put
// operations in SPEC_FULL.md §6's handler table. A node's get/put handlers
// run its own Reader/Writer, which in turn fan out to the whole cluster
// through the node's quorumrpc.Client - so a client calling these handlers
// needs only talk to one node. cmd/confdb's get/put commands do not use
// them; they run their own quorum client.
func Register(server *quorumrpc.Server, reader *Reader, writer *Writer) {
	server.Register("get", handleGet(reader))
	server.Register("put", handlePut(writer))
}

type getResult struct {
	Keys    map[string]int64 `json:"keys,omitempty"`
	Version *int64           `json:"version,omitempty"`
	Value   json.RawMessage  `json:"value,omitempty"`
}

func handleGet(reader *Reader) quorumrpc.Handler {
	return func(ctx context.Context, peerIdentity string, args map[string]string, body []byte) (interface{}, error) {
		db, ok := args["db"]
		if !ok {
			return nil, fmt.Errorf("get: missing db argument")
		}

		key, hasKey := args["key"]
		if !hasKey {
			keys, err := reader.ListKeys(ctx, db)
			if err != nil {
				return nil, err
			}
			return getResult{Keys: keys}, nil
		}

		version, value, err := reader.GetKey(ctx, db, key)
		if err != nil {
			return nil, err
		}
		return getResult{Version: version, Value: value}, nil
	}
}

func handlePut(writer *Writer) quorumrpc.Handler {
	return func(ctx context.Context, peerIdentity string, args map[string]string, body []byte) (interface{}, error) {
		db, ok := args["db"]
		if !ok {
			return nil, fmt.Errorf("put: missing db argument")
		}
		key, ok := args["key"]
		if !ok {
			return nil, fmt.Errorf("put: missing key argument")
		}
		secret, ok := args["secret"]
		if !ok {
			return nil, fmt.Errorf("put: missing secret argument")
		}
		version, err := strconv.ParseInt(args["version"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("put: bad version %q: %w", args["version"], err)
		}

		var obj interface{}
		if key == db {
			var newSecret string
			if err := json.Unmarshal(body, &newSecret); err != nil {
				return nil, fmt.Errorf("put: rotating db %q's secret requires a JSON string body: %w", db, err)
			}
			obj = newSecret
		} else {
			obj = json.RawMessage(body)
		}

		resultVersion, resultValue, err := writer.Put(ctx, db, secret, key, version, obj)
		if err != nil {
			return nil, err
		}
		return getResult{Version: resultVersion, Value: resultValue}, nil
	}
}
