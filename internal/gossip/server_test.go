package gossip

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"go.uber.org/zap"

	gossipv1 "github.com/processtriage/pttriage/api/gossip/v1"
	"github.com/processtriage/pttriage/internal/fleet"
)

type recordingCorrelator struct {
	hostID    string
	signature fleet.Signature
	called    bool
}

func (r *recordingCorrelator) Observe(hostID string, signature fleet.Signature) {
	r.hostID, r.signature, r.called = hostID, signature, true
}

func signedEnvelope(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, nodeID string, ts time.Time) *gossipv1.Envelope {
	t.Helper()
	env := &gossipv1.Envelope{
		NodeId:          nodeID,
		TimestampUnixNs: ts.UnixNano(),
		ProcessHash:     "fp-1",
		ObservedScore:   0.75,
	}
	env.Signature = ed25519.Sign(priv, envelopeSignatureMessage(env))
	return env
}

func TestShareObservationAccepted(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	corr := &recordingCorrelator{}
	srv := NewServer("self", map[string]ed25519.PublicKey{"peer-a": pub}, time.Minute, corr, zap.NewNop())

	env := signedEnvelope(t, pub, priv, "peer-a", time.Now())
	resp, err := srv.ShareObservation(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("expected accepted, got rejection %q", resp.RejectionReason)
	}
	if !corr.called || corr.hostID != "peer-a" || corr.signature.CommandHash != "fp-1" {
		t.Errorf("expected correlator to observe the envelope, got %+v", corr)
	}
}

func TestShareObservationRejectsStaleTimestamp(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	corr := &recordingCorrelator{}
	srv := NewServer("self", map[string]ed25519.PublicKey{"peer-a": pub}, time.Second, corr, zap.NewNop())

	env := signedEnvelope(t, pub, priv, "peer-a", time.Now().Add(-time.Hour))
	resp, err := srv.ShareObservation(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Accepted || resp.RejectionReason != "timestamp_stale" {
		t.Errorf("expected timestamp_stale rejection, got %+v", resp)
	}
	if corr.called {
		t.Error("correlator should not be invoked for a rejected envelope")
	}
}

func TestShareObservationRejectsUnknownPeer(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	corr := &recordingCorrelator{}
	srv := NewServer("self", map[string]ed25519.PublicKey{}, time.Minute, corr, zap.NewNop())

	env := signedEnvelope(t, pub, priv, "peer-a", time.Now())
	resp, err := srv.ShareObservation(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Accepted || resp.RejectionReason != "peer_unknown" {
		t.Errorf("expected peer_unknown rejection, got %+v", resp)
	}
}

func TestShareObservationRejectsInvalidSignature(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	_, otherPriv, _ := ed25519.GenerateKey(nil)
	corr := &recordingCorrelator{}
	srv := NewServer("self", map[string]ed25519.PublicKey{"peer-a": pub}, time.Minute, corr, zap.NewNop())

	env := signedEnvelope(t, pub, otherPriv, "peer-a", time.Now())
	resp, err := srv.ShareObservation(context.Background(), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Accepted || resp.RejectionReason != "signature_invalid" {
		t.Errorf("expected signature_invalid rejection, got %+v", resp)
	}
}

func TestHealthCheckReportsNodeID(t *testing.T) {
	srv := NewServer("self", nil, time.Minute, &recordingCorrelator{}, zap.NewNop())
	resp, err := srv.HealthCheck(context.Background(), &gossipv1.HealthRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.NodeId != "self" || resp.Status != "ok" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}
