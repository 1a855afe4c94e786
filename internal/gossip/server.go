// Package gossip — server.go
//
// gRPC mTLS server for the fleet gossip transport.
//
// Transport security:
//   - TLS 1.3 only (tls.VersionTLS13).
//   - Mutual TLS: client must present a certificate signed by the configured CA.
//   - Certificate type: Ed25519 by deployment; the key type is not checked.
//
// Envelope verification:
//  1. Reject if timestamp older than EnvelopeTTL (default 30s).
//  2. Reject if peer node_id not in trusted peer list.
//  3. Reject if Ed25519 signature invalid.
//  4. Forward the accepted observation into the correlation sink.
package gossip

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"

	gossipv1 "github.com/processtriage/pttriage/api/gossip/v1"
	"github.com/processtriage/pttriage/internal/fleet"
)

// CorrelationSink receives accepted gossip observations so they can
// participate in fleet-wide pattern correlation alongside this host's own
// local signatures. fleet.Correlator satisfies this directly.
type CorrelationSink interface {
	Observe(hostID string, signature fleet.Signature)
}

// Server implements the GossipService gRPC server.
type Server struct {
	gossipv1.UnimplementedGossipServiceServer

	nodeID       string
	trustedPeers map[string]ed25519.PublicKey // node_id → public key
	envelopeTTL  time.Duration
	correlator   CorrelationSink
	log          *zap.Logger
	startTime    time.Time
}

// NewServer creates a gossip server. trustedPeers maps node_id to Ed25519
// public key for envelope verification; correlator receives every envelope
// that passes verification.
func NewServer(
	nodeID string,
	trustedPeers map[string]ed25519.PublicKey,
	envelopeTTL time.Duration,
	correlator CorrelationSink,
	log *zap.Logger,
) *Server {
	return &Server{
		nodeID:       nodeID,
		trustedPeers: trustedPeers,
		envelopeTTL:  envelopeTTL,
		correlator:   correlator,
		log:          log,
		startTime:    time.Now(),
	}
}

// ShareObservation implements GossipService.ShareObservation: verifies the
// envelope's freshness, sender trust, and signature, then records it against
// the sending node's host ID so DetectCorrelated sees cross-host patterns
// that span gossip peers, not just locally-observed processes.
func (s *Server) ShareObservation(
	ctx context.Context,
	env *gossipv1.Envelope,
) (*gossipv1.AckResponse, error) {
	envTime := time.Unix(0, env.TimestampUnixNs)
	age := time.Since(envTime)
	if age > s.envelopeTTL || age < -5*time.Second {
		s.log.Warn("gossip envelope rejected: stale timestamp",
			zap.String("node_id", env.NodeId),
			zap.Duration("age", age))
		return &gossipv1.AckResponse{Accepted: false, RejectionReason: "timestamp_stale"}, nil
	}

	pubKey, trusted := s.trustedPeers[env.NodeId]
	if !trusted {
		s.log.Warn("gossip envelope rejected: unknown peer", zap.String("node_id", env.NodeId))
		return &gossipv1.AckResponse{Accepted: false, RejectionReason: "peer_unknown"}, nil
	}

	msg := envelopeSignatureMessage(env)
	if !ed25519.Verify(pubKey, msg, env.Signature) {
		s.log.Warn("gossip envelope rejected: invalid signature", zap.String("node_id", env.NodeId))
		return &gossipv1.AckResponse{Accepted: false, RejectionReason: "signature_invalid"}, nil
	}

	s.correlator.Observe(env.NodeId, fleet.Signature{CommandHash: env.ProcessHash})

	s.log.Debug("gossip envelope accepted",
		zap.String("node_id", env.NodeId),
		zap.String("peer_addr", peerFromContext(ctx)),
		zap.String("process_hash", env.ProcessHash),
		zap.Float64("observed_score", env.ObservedScore),
		zap.Float64("impact_score", env.ImpactScore))

	return &gossipv1.AckResponse{Accepted: true}, nil
}

// HealthCheck implements GossipService.HealthCheck.
func (s *Server) HealthCheck(
	ctx context.Context,
	req *gossipv1.HealthRequest,
) (*gossipv1.HealthResponse, error) {
	return &gossipv1.HealthResponse{
		NodeId:        s.nodeID,
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}, nil
}

// envelopeSignatureMessage constructs the canonical byte sequence signed by
// the sender and verified by the receiver. It deliberately excludes the
// signature field itself.
func envelopeSignatureMessage(env *gossipv1.Envelope) []byte {
	buf := make([]byte, 0, len(env.NodeId)+8+len(env.ProcessHash)+16)
	buf = append(buf, []byte(env.NodeId)...)
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, uint64(env.TimestampUnixNs))
	buf = append(buf, ts...)
	buf = append(buf, []byte(env.ProcessHash)...)
	scores := make([]byte, 16)
	binary.LittleEndian.PutUint64(scores[:8], math.Float64bits(env.ObservedScore))
	binary.LittleEndian.PutUint64(scores[8:], math.Float64bits(env.ImpactScore))
	buf = append(buf, scores...)
	return buf
}

// ListenAndServe starts the gRPC mTLS server on addr and blocks until ctx is
// cancelled, at which point it drains in-flight RPCs and returns.
func ListenAndServe(
	ctx context.Context,
	addr string,
	certFile, keyFile, caFile string,
	srv *Server,
	log *zap.Logger,
) error {
	tlsCfg, err := buildServerTLS(certFile, keyFile, caFile)
	if err != nil {
		return fmt.Errorf("gossip TLS config: %w", err)
	}

	grpcSrv := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(tlsCfg)),
		grpc.MaxRecvMsgSize(64*1024),
		grpc.MaxSendMsgSize(64*1024),
	)
	gossipv1.RegisterGossipServiceServer(grpcSrv, srv)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gossip listen %s: %w", addr, err)
	}

	log.Info("gossip server listening", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()

	if err := grpcSrv.Serve(lis); err != nil {
		return fmt.Errorf("gossip grpc serve: %w", err)
	}
	return nil
}

// buildServerTLS constructs a TLS 1.3-only mTLS config for the gRPC server
// from the given certificate/key pair (of whatever key type it holds) and a
// CA for client verification.
func buildServerTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load server cert/key: %w", err)
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
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    caPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// peerFromContext extracts the peer address from a gRPC context for logging.
// Returns "unknown" if not available.
func peerFromContext(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "unknown"
	}
	return p.Addr.String()
}
