package grpc

import (
	"context"

	"github.com/shrtyk/rsm/api"
	"github.com/shrtyk/rsm/server"
	"google.golang.org/grpc"
)

// Service/method names form the content of the gRPC "full method" path.
// There is no .proto file behind these: the wire format is this package's
// jsonCodec, not protobuf, per spec.md's treatment of serialization as an
// external, unspecified concern.
const (
	serviceName = "rsm.Session"

	methodRegister  = "/" + serviceName + "/Register"
	methodKeepAlive = "/" + serviceName + "/KeepAlive"
	methodCommand   = "/" + serviceName + "/Command"
	methodQuery     = "/" + serviceName + "/Query"
	methodPublish   = "/" + serviceName + "/Publish"
)

func registerHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(api.RegisterRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	gw := srv.(*server.Gateway)
	if interceptor == nil {
		return gw.HandleRegister(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRegister}
	handler := func(ctx context.Context, req any) (any, error) {
		return gw.HandleRegister(ctx, req.(*api.RegisterRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func keepAliveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(api.KeepAliveRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	gw := srv.(*server.Gateway)
	if interceptor == nil {
		return gw.HandleKeepAlive(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodKeepAlive}
	handler := func(ctx context.Context, req any) (any, error) {
		return gw.HandleKeepAlive(ctx, req.(*api.KeepAliveRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func commandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(api.CommandRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	gw := srv.(*server.Gateway)
	if interceptor == nil {
		return gw.HandleCommand(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCommand}
	handler := func(ctx context.Context, req any) (any, error) {
		return gw.HandleCommand(ctx, req.(*api.CommandRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(api.QueryRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	gw := srv.(*server.Gateway)
	if interceptor == nil {
		return gw.HandleQuery(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodQuery}
	handler := func(ctx context.Context, req any) (any, error) {
		return gw.HandleQuery(ctx, req.(*api.QueryRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// publishSubscribeRequest is what a client sends to open its Publish
// stream.
type publishSubscribeRequest struct {
	SessionID int64
}

func publishStreamHandler(srv any, stream grpc.ServerStream) error {
	req := new(publishSubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	gw := srv.(*server.Gateway)
	return gw.StreamPublishes(stream.Context(), req.SessionID, stream)
}

// serviceDesc is registered on the grpc.Server; srv must be a *server.Gateway.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: registerHandler},
		{MethodName: "KeepAlive", Handler: keepAliveHandler},
		{MethodName: "Command", Handler: commandHandler},
		{MethodName: "Query", Handler: queryHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Publish",
			Handler:       publishStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "rsm/session.proto",
}
