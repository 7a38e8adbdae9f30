package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cactus/go-statsd-client/statsd"
	"github.com/spf13/cobra"

	"github.com/bdeggleston/confdb/internal/confdblog"
	"github.com/bdeggleston/confdb/internal/consensus"
	"github.com/bdeggleston/confdb/internal/paxosdb"
	"github.com/bdeggleston/confdb/internal/quorumrpc"
)

var serverLogger = confdblog.Get("cmd")

func newServerCmd() *cobra.Command {
	var (
		port       int
		certPath   string
		cacertPath string
		serversCSV string
		quorum     int
		dataDir    string
		statsdAddr string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run an acceptor node, serving read_server/paxos/get/put over mutual TLS",
		RunE: func(cmd *cobra.Command, args []string) error {
			servers := splitServers(serversCSV)
			if len(servers) == 0 {
				return fmt.Errorf("--servers must list at least this node's own address")
			}

			cert, err := tls.LoadX509KeyPair(certPath, certPath)
			if err != nil {
				return fmt.Errorf("loading server certificate: %w", err)
			}
			caBytes, err := os.ReadFile(cacertPath)
			if err != nil {
				return fmt.Errorf("reading CA certificate: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caBytes) {
				return fmt.Errorf("no certificates found in %s", cacertPath)
			}

			tlsConfig := &tls.Config{
				Certificates: []tls.Certificate{cert},
				ClientCAs:    pool,
				ClientAuth:   tls.RequireAndVerifyClientCert,
			}

			stats, err := newStatter(statsdAddr)
			if err != nil {
				return fmt.Errorf("building statsd client: %w", err)
			}

			registry := paxosdb.NewRegistry(dataDir)
			acceptor := paxosdb.NewAcceptor(registry, stats)

			client, err := quorumrpc.NewClient(cacertPath, certPath, certPath, servers, quorum)
			if err != nil {
				return fmt.Errorf("building cluster client: %w", err)
			}
			proposer := consensus.NewProposer(client, stats)
			reader := consensus.NewReader(client, proposer)
			writer := consensus.NewWriter(reader, proposer)

			addr := fmt.Sprintf("0.0.0.0:%d", port)
			rpcServer := quorumrpc.NewServer(addr, tlsConfig)
			acceptor.Register(rpcServer)
			consensus.Register(rpcServer, reader, writer)

			if err := rpcServer.Start(); err != nil {
				return fmt.Errorf("starting server: %w", err)
			}
			serverLogger.Infof("listening on %s, quorum %d of %d peers", addr, client.Quorum(), len(servers))

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			serverLogger.Info("shutting down")
			return rpcServer.Stop()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on")
	cmd.Flags().StringVar(&certPath, "cert", "", "this node's certificate and private key PEM")
	cmd.Flags().StringVar(&cacertPath, "cacert", "", "cluster CA certificate")
	cmd.Flags().StringVar(&serversCSV, "servers", "", "comma separated list of server host:port, including this node")
	cmd.Flags().IntVar(&quorum, "quorum", 0, "quorum override, only ever raises floor(N/2)+1")
	cmd.Flags().StringVar(&dataDir, "data-dir", ".", "root directory for this node's store files")
	cmd.Flags().StringVar(&statsdAddr, "statsd-addr", "", "statsd host:port, metrics disabled if empty")
	_ = cmd.MarkFlagRequired("port")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("cacert")
	_ = cmd.MarkFlagRequired("servers")

	return cmd
}

func newStatter(addr string) (statsd.Statter, error) {
	if addr == "" {
		return statsd.NewNoopClient()
	}
	return statsd.NewClient(addr, "confdb")
}
