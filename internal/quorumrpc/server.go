// Package quorumrpc is the mutual-TLS HTTP RPC framework described as an
// external collaborator in spec.md §6 and specified concretely in
// SPEC_FULL.md §6: named handlers addressed by a path of the form
// /<op>/<arg1>/<val1>/..., an optional opaque request body, and a
// quorum-fanout client built on top of the same wire contract.
package quorumrpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bdeggleston/confdb/internal/confdblog"
)

var logger = confdblog.Get("quorumrpc")

// Handler is a named RPC operation. args holds the path's argument
// name/value pairs (e.g. {"db": "dbA", "key": "k"}); body is the raw
// request body, empty for handlers that don't take one. peerIdentity is
// the authenticated caller's certificate subject, or "" if client auth did
// not run.
type Handler func(ctx context.Context, peerIdentity string, args map[string]string, body []byte) (interface{}, error)

// Server exposes a set of named Handlers over mutual-TLS HTTP.
type Server struct {
	addr       string
	tlsConfig  *tls.Config
	handlers   map[string]Handler
	httpServer *http.Server
}

// NewServer builds a Server listening on addr with the given TLS config
// (which must require and verify client certificates for the acceptor's
// TLS_AUTH_FAILED check to be meaningful).
func NewServer(addr string, tlsConfig *tls.Config) *Server {
	return &Server{
		addr:      addr,
		tlsConfig: tlsConfig,
		handlers:  make(map[string]Handler),
	}
}

// Register associates a Handler with an operation name. Call before Start.
func (s *Server) Register(op string, h Handler) {
	s.handlers[op] = h
}

// Start begins serving in the background and returns once the listener is
// bound. Stop shuts it down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serve)

	listener, err := tls.Listen("tcp", s.addr, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Errorf("server on %s exited: %v", s.addr, err)
		}
	}()
	return nil
}

// Stop shuts down the server at once, closing its listener and every open
// connection without waiting for in-flight requests to finish.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	op, args, err := ParsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	handler, ok := s.handlers[op]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown operation %q", op))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		return
	}

	peerIdentity := peerIdentityFromRequest(r)
	result, err := handler(r.Context(), peerIdentity, args, body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeResult(w, result)
}

// peerIdentityFromRequest returns the verified client certificate's
// subject common name, or "" if mutual TLS client auth did not run for
// this connection - the condition Acceptor.Paxos treats as
// TLS_AUTH_FAILED.
func peerIdentityFromRequest(r *http.Request) string {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return ""
	}
	return r.TLS.PeerCertificates[0].Subject.CommonName
}

type envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func writeResult(w http.ResponseWriter, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Result: raw})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: err.Error()})
}
