package visualiser

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "pcn.visualiser.v1.Visualiser"

// VisualiserServer is the server API. Requests carry an optional
// "stream" field naming the stream of interest.
type VisualiserServer interface {
	// Latest returns the most recent frame of the named stream.
	Latest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Subscribe streams frames until the client goes away.
	Subscribe(*structpb.Struct, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VisualiserServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Latest", Handler: latestHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "visualiser.proto",
}

func latestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VisualiserServer).Latest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Latest"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VisualiserServer).Latest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, ss grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := ss.RecvMsg(in); err != nil {
		return err
	}
	return srv.(VisualiserServer).Subscribe(in, ss)
}

func streamField(req *structpb.Struct) string {
	if req == nil {
		return ""
	}
	return req.GetFields()["stream"].GetStringValue()
}

type service struct {
	p *Publisher
}

func (s *service) Latest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := streamField(req)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "stream is required")
	}
	msg, ok := s.p.Latest(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no frames for stream %q", name)
	}
	return msg, nil
}

func (s *service) Subscribe(req *structpb.Struct, ss grpc.ServerStream) error {
	id, c, err := s.p.subscribe(streamField(req))
	if err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer s.p.unsubscribe(id)
	logf("client %d subscribed (stream=%q)", id, c.stream)

	ctx := ss.Context()
	for {
		select {
		case <-ctx.Done():
			logf("client %d disconnected", id)
			return nil
		case msg := <-c.ch:
			if err := ss.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// Client is a minimal viewer-side client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func request(streamName string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"stream": structpb.NewStringValue(streamName),
	}}
}

// Latest fetches the most recent frame of a stream.
func (c *Client) Latest(ctx context.Context, streamName string) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Latest", request(streamName), out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscription receives frames from Subscribe.
type Subscription struct {
	cs grpc.ClientStream
}

// Recv blocks for the next frame.
func (s *Subscription) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := s.cs.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Subscribe opens a frame stream; an empty name subscribes to all.
func (c *Client) Subscribe(ctx context.Context, streamName string) (*Subscription, error) {
	cs, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+serviceName+"/Subscribe")
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(request(streamName)); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{cs: cs}, nil
}
