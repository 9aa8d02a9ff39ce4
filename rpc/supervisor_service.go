package rpc

import (
	"context"

	"github.com/evergreen-ci/grid/apimodels"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

const supervisorServiceName = "grid.Supervisor"

// SupervisorServer is the server side of the supervisor RPC surface. Domain
// failures are reported in the ErrorMessage field of the responses; a
// returned error is a transport fault.
type SupervisorServer interface {
	AcceptServiceLibrary(context.Context, *apimodels.AcceptServiceLibraryRequest) (*apimodels.AcceptServiceLibraryResponse, error)
	StartServer(context.Context, *apimodels.StartServerRequest) (*apimodels.StartServerResponse, error)
	StartWorker(context.Context, *apimodels.StartWorkerRequest) (*apimodels.StartWorkerResponse, error)
	StopServer(context.Context, *apimodels.StopProcessRequest) (*apimodels.StopProcessResponse, error)
	StopWorker(context.Context, *apimodels.StopProcessRequest) (*apimodels.StopProcessResponse, error)
	GetStatus(context.Context, *apimodels.SupervisorStatusRequest) (*apimodels.SupervisorStatusResponse, error)
}

var supervisorServiceDesc = grpc.ServiceDesc{
	ServiceName: supervisorServiceName,
	HandlerType: (*SupervisorServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(supervisorServiceName, "AcceptServiceLibrary", SupervisorServer.AcceptServiceLibrary),
		unaryMethod(supervisorServiceName, "StartServer", SupervisorServer.StartServer),
		unaryMethod(supervisorServiceName, "StartWorker", SupervisorServer.StartWorker),
		unaryMethod(supervisorServiceName, "StopServer", SupervisorServer.StopServer),
		unaryMethod(supervisorServiceName, "StopWorker", SupervisorServer.StopWorker),
		unaryMethod(supervisorServiceName, "GetStatus", SupervisorServer.GetStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grid/supervisor",
}

// RegisterSupervisorServer attaches the supervisor service to the gRPC
// server. The server should be created with MaxRecvMsgSize raised so that
// service libraries can be uploaded.
func RegisterSupervisorServer(s *grpc.Server, srv SupervisorServer) {
	s.RegisterService(&supervisorServiceDesc, srv)
}

// SupervisorClient is the client side of the supervisor RPC surface.
type SupervisorClient interface {
	AcceptServiceLibrary(context.Context, *apimodels.AcceptServiceLibraryRequest, ...grpc.CallOption) (*apimodels.AcceptServiceLibraryResponse, error)
	StartServer(context.Context, *apimodels.StartServerRequest, ...grpc.CallOption) (*apimodels.StartServerResponse, error)
	StartWorker(context.Context, *apimodels.StartWorkerRequest, ...grpc.CallOption) (*apimodels.StartWorkerResponse, error)
	StopServer(context.Context, *apimodels.StopProcessRequest, ...grpc.CallOption) (*apimodels.StopProcessResponse, error)
	StopWorker(context.Context, *apimodels.StopProcessRequest, ...grpc.CallOption) (*apimodels.StopProcessResponse, error)
	GetStatus(context.Context, *apimodels.SupervisorStatusRequest, ...grpc.CallOption) (*apimodels.SupervisorStatusResponse, error)
}

type supervisorClient struct {
	cc grpc.ClientConnInterface
}

// NewSupervisorClient returns a supervisor client over the connection.
func NewSupervisorClient(cc grpc.ClientConnInterface) SupervisorClient {
	return &supervisorClient{cc: cc}
}

func (c *supervisorClient) AcceptServiceLibrary(ctx context.Context, in *apimodels.AcceptServiceLibraryRequest, opts ...grpc.CallOption) (*apimodels.AcceptServiceLibraryResponse, error) {
	out := &apimodels.AcceptServiceLibraryResponse{}
	if err := invoke(ctx, c.cc, supervisorServiceName, "AcceptServiceLibrary", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "uploading service library")
	}
	return out, nil
}

func (c *supervisorClient) StartServer(ctx context.Context, in *apimodels.StartServerRequest, opts ...grpc.CallOption) (*apimodels.StartServerResponse, error) {
	out := &apimodels.StartServerResponse{}
	if err := invoke(ctx, c.cc, supervisorServiceName, "StartServer", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "starting server")
	}
	return out, nil
}

func (c *supervisorClient) StartWorker(ctx context.Context, in *apimodels.StartWorkerRequest, opts ...grpc.CallOption) (*apimodels.StartWorkerResponse, error) {
	out := &apimodels.StartWorkerResponse{}
	if err := invoke(ctx, c.cc, supervisorServiceName, "StartWorker", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "starting worker")
	}
	return out, nil
}

func (c *supervisorClient) StopServer(ctx context.Context, in *apimodels.StopProcessRequest, opts ...grpc.CallOption) (*apimodels.StopProcessResponse, error) {
	out := &apimodels.StopProcessResponse{}
	if err := invoke(ctx, c.cc, supervisorServiceName, "StopServer", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "stopping server")
	}
	return out, nil
}

func (c *supervisorClient) StopWorker(ctx context.Context, in *apimodels.StopProcessRequest, opts ...grpc.CallOption) (*apimodels.StopProcessResponse, error) {
	out := &apimodels.StopProcessResponse{}
	if err := invoke(ctx, c.cc, supervisorServiceName, "StopWorker", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "stopping worker")
	}
	return out, nil
}

func (c *supervisorClient) GetStatus(ctx context.Context, in *apimodels.SupervisorStatusRequest, opts ...grpc.CallOption) (*apimodels.SupervisorStatusResponse, error) {
	out := &apimodels.SupervisorStatusResponse{}
	if err := invoke(ctx, c.cc, supervisorServiceName, "GetStatus", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "getting supervisor status")
	}
	return out, nil
}
