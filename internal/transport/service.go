package transport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/mapbridge/internal/wire"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mapbridge.MapBridge"

const subscribeMethod = "/" + ServiceName + "/Subscribe"

// subscribeServer is the interface the service handler dispatches to.
type subscribeServer interface {
	subscribe(req *wire.SubscribeRequest, stream grpc.ServerStream) error
}

// serviceDesc describes:
//
//	service MapBridge {
//	  rpc Subscribe(SubscribeRequest) returns (stream PoseArray);
//	}
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*subscribeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "api/mapbridge.proto",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(wire.SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(subscribeServer).subscribe(req, stream)
}

// subscribe streams messages published on req.Topic until the client
// goes away or the server stops.
func (s *Server) subscribe(req *wire.SubscribeRequest, stream grpc.ServerStream) error {
	if req.Topic == "" {
		return status.Error(codes.InvalidArgument, "topic is required")
	}

	id := uuid.NewString()
	client, err := s.addClient(id, req.Topic)
	if err != nil {
		s.logf("Rejecting subscriber for %s: %v", req.Topic, err)
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer s.removeClient(id)

	s.notifySubscribe(req.Topic)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return status.Error(codes.Unavailable, "server stopping")
		case msg := <-client.msgCh:
			if err := stream.SendMsg(msg); err != nil {
				s.logf("Send error for %s: %v", id, err)
				return err
			}
		}
	}
}

// Dial connects to a mapbridge server without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMsgSize)),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}

// Subscribe opens a stream on topic and calls fn for each message until
// ctx is cancelled, the server ends the stream, or fn returns an error.
func Subscribe(ctx context.Context, conn grpc.ClientConnInterface, topic string, fn func(*wire.PoseArray) error) error {
	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod, grpc.ForceCodec(wire.Codec{}))
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.SendMsg(&wire.SubscribeRequest{Topic: topic}); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close send: %w", err)
	}

	for {
		msg := new(wire.PoseArray)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
