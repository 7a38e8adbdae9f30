package quorumrpc

import (
	"fmt"
	"strings"
)

// BuildPath assembles a handler path of the form /<op>/<arg1>/<val1>/...
// from alternating argument name/value pairs, matching the wire contract in
// SPEC_FULL.md §6.
func BuildPath(op string, kv ...string) string {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("quorumrpc: BuildPath(%q, ...) called with an odd number of kv args", op))
	}
	segments := make([]string, 0, 1+len(kv))
	segments = append(segments, op)
	segments = append(segments, kv...)
	return "/" + strings.Join(segments, "/")
}

// ParsePath splits a request path into its operation name and an ordered
// map of argument name -> value. Path segments must come in pairs after
// the operation name.
func ParsePath(path string) (op string, args map[string]string, err error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", nil, fmt.Errorf("empty path")
	}
	segments := strings.Split(trimmed, "/")
	op = segments[0]
	rest := segments[1:]
	if len(rest)%2 != 0 {
		return "", nil, fmt.Errorf("path %q has an odd number of argument segments", path)
	}
	args = make(map[string]string, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		args[rest[i]] = rest[i+1]
	}
	return op, args, nil
}
