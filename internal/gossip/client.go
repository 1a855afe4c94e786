package gossip

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	gossipv1 "github.com/processtriage/pttriage/api/gossip/v1"
)

// ParseTrustedPeers decodes a node-ID → base64-encoded-Ed25519-public-key
// map, as loaded from config.GossipConfig.TrustedPeers, into the form
// NewServer expects.
func ParseTrustedPeers(encoded map[string]string) (map[string]ed25519.PublicKey, error) {
	peers := make(map[string]ed25519.PublicKey, len(encoded))
	for nodeID, enc := range encoded {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("trusted peer %q: decode public key: %w", nodeID, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("trusted peer %q: public key is %d bytes, want %d", nodeID, len(raw), ed25519.PublicKeySize)
		}
		peers[nodeID] = ed25519.PublicKey(raw)
	}
	return peers, nil
}

// PollPeers dials every address in peers and issues a HealthCheck RPC,
// returning how many responded within timeout. The gossip client's poll
// loop feeds this count into Quorum.UpdatePeerReachability so the
// partition-aware correlation threshold tracks actual fleet reachability.
func PollPeers(ctx context.Context, peers []string, certFile, keyFile, caFile string, timeout time.Duration, log *zap.Logger) int {
	if len(peers) == 0 {
		return 0
	}

	tlsCfg, err := buildClientTLS(certFile, keyFile, caFile)
	if err != nil {
		log.Warn("gossip poll: client TLS config failed", zap.Error(err))
		return 0
	}

	reachable := 0
	for _, addr := range peers {
		if pollOnePeer(ctx, addr, tlsCfg, timeout) {
			reachable++
		} else {
			log.Debug("gossip peer unreachable", zap.String("addr", addr))
		}
	}
	return reachable
}

func pollOnePeer(ctx context.Context, addr string, tlsCfg *tls.Config, timeout time.Duration) bool {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)),
		grpc.WithBlock(),
	)
	if err != nil {
		return false
	}
	defer conn.Close()

	client := gossipv1.NewGossipServiceClient(conn)
	callCtx, cancel2 := context.WithTimeout(ctx, timeout)
	defer cancel2()
	_, err = client.HealthCheck(callCtx, &gossipv1.HealthRequest{}, grpc.CallContentSubtype(codecName))
	return err == nil
}

// buildClientTLS constructs a TLS 1.3-only mTLS config for outbound peer
// connections, presenting the same node certificate the server uses.
func buildClientTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert/key: %w", err)
	}

	caData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file %q: %w", caFile, err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
