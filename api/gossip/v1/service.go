package gossipv1

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets the gossip service travel over gRPC without a protoc step:
// messages are plain structs marshaled as JSON rather than protobuf wire
// format. Registered under the "json" content-subtype; clients opt in with
// grpc.CallContentSubtype(codecName).
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

// GossipServiceServer is the server-side contract for the fleet gossip
// service: observation sharing and health checks between peers.
type GossipServiceServer interface {
	ShareObservation(context.Context, *Envelope) (*AckResponse, error)
	HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error)
}

// UnimplementedGossipServiceServer must be embedded by server implementations
// for forward compatibility.
type UnimplementedGossipServiceServer struct{}

func (UnimplementedGossipServiceServer) ShareObservation(context.Context, *Envelope) (*AckResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ShareObservation not implemented")
}

func (UnimplementedGossipServiceServer) HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method HealthCheck not implemented")
}

const serviceName = "gossip.v1.GossipService"

// RegisterGossipServiceServer registers srv on s.
func RegisterGossipServiceServer(s grpc.ServiceRegistrar, srv GossipServiceServer) {
	s.RegisterService(&gossipServiceDesc, srv)
}

func shareObservationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GossipServiceServer).ShareObservation(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ShareObservation"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GossipServiceServer).ShareObservation(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GossipServiceServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/HealthCheck"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GossipServiceServer).HealthCheck(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var gossipServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*GossipServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ShareObservation", Handler: shareObservationHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gossip/v1/gossip.proto",
}

// GossipServiceClient is the client-side contract for the fleet gossip service.
type GossipServiceClient interface {
	ShareObservation(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*AckResponse, error)
	HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
}

type gossipServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGossipServiceClient builds a client bound to cc.
func NewGossipServiceClient(cc grpc.ClientConnInterface) GossipServiceClient {
	return &gossipServiceClient{cc}
}

func (c *gossipServiceClient) callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}

func (c *gossipServiceClient) ShareObservation(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*AckResponse, error) {
	out := new(AckResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ShareObservation", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gossipServiceClient) HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/HealthCheck", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
