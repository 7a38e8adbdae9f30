package consensus

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cactus/go-statsd-client/statsd"

	"github.com/bdeggleston/confdb/internal/paxosdb"
	"github.com/bdeggleston/confdb/internal/quorumrpc"
)

// testCluster stands up n real acceptor nodes over loopback mutual TLS,
// the way cluster_test.go's setupCluster() exercises real collaborators
// end to end instead of mocking the acceptor or the transport away.
type testCluster struct {
	peers      []string
	servers    []*quorumrpc.Server
	addrs      []string
	tlsConfigs []*tls.Config
	acceptors  []*paxosdb.Acceptor

	caPath, certPath, keyPath string
}

func startTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating CA key: %v", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "confdb-consensus-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating CA certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parsing CA certificate: %v", err)
	}
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		t.Fatalf("failed to parse CA cert into pool")
	}

	issue := func(commonName string) (certPEM, keyPEM []byte) {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			t.Fatalf("generating leaf key: %v", err)
		}
		template := &x509.Certificate{
			SerialNumber: big.NewInt(time.Now().UnixNano()),
			Subject:      pkix.Name{CommonName: commonName},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
			IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
			DNSNames:     []string{"localhost"},
		}
		der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
		if err != nil {
			t.Fatalf("signing leaf certificate: %v", err)
		}
		keyBytes, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			t.Fatalf("marshaling leaf key: %v", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
			pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	}
	writePEM := func(name string, certPEM, keyPEM []byte) (certPath, keyPath string) {
		certPath = filepath.Join(dir, name+".crt")
		keyPath = filepath.Join(dir, name+".key")
		if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
			t.Fatalf("writing %s: %v", certPath, err)
		}
		if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
			t.Fatalf("writing %s: %v", keyPath, err)
		}
		return certPath, keyPath
	}

	cluster := &testCluster{}
	noop, err := statsd.NewNoopClient()
	if err != nil {
		t.Fatalf("building noop statsd client: %v", err)
	}

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("node%d", i)
		certPEM, keyPEM := issue(name)
		certPath, keyPath := writePEM(name, certPEM, keyPEM)
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			t.Fatalf("loading %s keypair: %v", name, err)
		}

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("reserving port: %v", err)
		}
		addr := listener.Addr().String()
		listener.Close()

		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientCAs:    pool,
			ClientAuth:   tls.RequireAndVerifyClientCert,
		}
		registry := paxosdb.NewRegistry(filepath.Join(dir, name+"-data"))
		acceptor := paxosdb.NewAcceptor(registry, noop)

		server := quorumrpc.NewServer(addr, tlsConfig)
		acceptor.Register(server)
		if err := server.Start(); err != nil {
			t.Fatalf("starting %s: %v", name, err)
		}
		t.Cleanup(func() { server.Stop() })

		cluster.peers = append(cluster.peers, addr)
		cluster.servers = append(cluster.servers, server)
		cluster.addrs = append(cluster.addrs, addr)
		cluster.tlsConfigs = append(cluster.tlsConfigs, tlsConfig)
		cluster.acceptors = append(cluster.acceptors, acceptor)
	}

	clientCertPEM, clientKeyPEM := issue("test-client")
	cluster.certPath, cluster.keyPath = writePEM("client", clientCertPEM, clientKeyPEM)
	cluster.caPath, _ = writePEM("ca", caPEM, caPEM)

	time.Sleep(20 * time.Millisecond)
	return cluster
}

func (c *testCluster) stopNode(i int) { c.servers[i].Stop() }

// startNode rebinds node i on its original address, re-registering its
// existing Acceptor (and thus its existing store data) - used to simulate
// a node that falls behind while stopped and then rejoins, per
// SPEC_FULL.md §8's half-written-state-recovery scenario.
func (c *testCluster) startNode(t *testing.T, i int) {
	t.Helper()
	server := quorumrpc.NewServer(c.addrs[i], c.tlsConfigs[i])
	c.acceptors[i].Register(server)
	if err := server.Start(); err != nil {
		t.Fatalf("restarting node%d: %v", i, err)
	}
	c.servers[i] = server
	time.Sleep(20 * time.Millisecond)
}

// rig bundles a Proposer/Reader/Writer over one Client talking to the
// whole cluster, the unit these tests exercise.
type rig struct {
	client   *quorumrpc.Client
	proposer *Proposer
	reader   *Reader
	writer   *Writer
}

func (c *testCluster) newRig(t *testing.T, quorumOverride int) *rig {
	t.Helper()
	client, err := quorumrpc.NewClient(c.caPath, c.certPath, c.keyPath, c.peers, quorumOverride)
	if err != nil {
		t.Fatalf("building client: %v", err)
	}
	noop, err := statsd.NewNoopClient()
	if err != nil {
		t.Fatalf("building noop statsd client: %v", err)
	}
	proposer := NewProposer(client, noop)
	reader := NewReader(client, proposer)
	writer := NewWriter(reader, proposer)
	return &rig{client: client, proposer: proposer, reader: reader, writer: writer}
}
