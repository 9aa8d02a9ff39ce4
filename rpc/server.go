// Package rpc is the gRPC transport of the broker and supervisor services.
// Messages are the apimodels structs carried with a BSON codec, and the
// service descriptors are declared by hand.
package rpc

import (
	"context"
	"net"

	"github.com/evergreen-ci/aviation"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/logging"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/grip/recovery"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

// CloseFunc stops a running service.
type CloseFunc func() error

// NewServer returns a gRPC server that logs every call through grip. Extra
// options are appended to the defaults.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.UnaryInterceptor(aviation.MakeGripUnaryInterceptor(logging.MakeGrip(grip.GetSender()))),
	}, opts...)

	return grpc.NewServer(opts...)
}

// Listen opens a TCP listener on addr.
func Listen(addr string) (net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on '%s'", addr)
	}
	return lis, nil
}

// StartService serves srv on lis in the background until the returned
// function is called or the context is canceled.
func StartService(ctx context.Context, lis net.Listener, srv *grpc.Server) CloseFunc {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer recovery.LogStackTraceAndContinue("gRPC service")
		grip.Info(message.Fields{
			"message": "starting gRPC service",
			"address": lis.Addr().String(),
		})
		grip.Notice(message.WrapError(srv.Serve(lis), message.Fields{
			"message": "gRPC service stopped",
			"address": lis.Addr().String(),
		}))
	}()

	go func() {
		defer recovery.LogStackTraceAndContinue("gRPC service shutdown")
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return func() error { cancel(); srv.Stop(); return nil }
}
