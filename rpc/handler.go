package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// unaryMethod builds the descriptor of a unary method whose request type is
// Req. call dispatches the decoded request to the registered implementation.
func unaryMethod[S any, Req any, Resp any](service, name string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := fmt.Sprintf("/%s/%s", service, name)

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func invoke(ctx context.Context, cc grpc.ClientConnInterface, service, name string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return cc.Invoke(ctx, fmt.Sprintf("/%s/%s", service, name), in, out, opts...)
}
