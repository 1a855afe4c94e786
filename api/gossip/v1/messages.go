// Package gossipv1 defines the wire messages and service contract for the
// fleet gossip transport: cross-host corroboration of command-signature
// observations between process-triage hosts.
//
// There is no protoc-generated binding here — the messages are carried over
// gRPC using a JSON codec (see service.go) rather than the protobuf wire
// format, so the message shapes below are the single source of truth.
package gossipv1

// Envelope carries a signed observation about a process fingerprint from
// one host to its gossip peers.
type Envelope struct {
	NodeId          string
	TimestampUnixNs int64
	ProcessHash     string
	ObservedScore   float64
	ImpactScore     float64
	Signature       []byte
}

// AckResponse acknowledges (or rejects, with a reason) a gossip envelope.
type AckResponse struct {
	Accepted        bool
	RejectionReason string
}

// HealthRequest is an empty health probe request.
type HealthRequest struct{}

// HealthResponse reports a peer's liveness and uptime.
type HealthResponse struct {
	NodeId        string
	Status        string
	UptimeSeconds int64
}
