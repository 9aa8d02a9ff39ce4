package rpc

import (
	"context"

	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/broker"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const brokerServiceName = "grid.Broker"

// BrokerServer is the server side of the broker RPC surface.
type BrokerServer interface {
	RegisterClient(context.Context, *apimodels.RegisterClientRequest) (*apimodels.RegisterClientResponse, error)
	SubmitJob(context.Context, *apimodels.SubmitJobRequest) (*apimodels.SubmitJobResponse, error)
	FetchResults(context.Context, *apimodels.FetchResultsRequest) (*apimodels.FetchResultsResponse, error)
	WorkerExchange(context.Context, *apimodels.WorkerExchangeRequest) (*apimodels.WorkerExchangeResponse, error)
	SubmitResult(context.Context, *apimodels.SubmitResultRequest) (*apimodels.SubmitResultResponse, error)
	GetStatus(context.Context, *apimodels.BrokerStatusRequest) (*apimodels.BrokerStatusResponse, error)
}

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: brokerServiceName,
	HandlerType: (*BrokerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(brokerServiceName, "RegisterClient", BrokerServer.RegisterClient),
		unaryMethod(brokerServiceName, "SubmitJob", BrokerServer.SubmitJob),
		unaryMethod(brokerServiceName, "FetchResults", BrokerServer.FetchResults),
		unaryMethod(brokerServiceName, "WorkerExchange", BrokerServer.WorkerExchange),
		unaryMethod(brokerServiceName, "SubmitResult", BrokerServer.SubmitResult),
		unaryMethod(brokerServiceName, "GetStatus", BrokerServer.GetStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grid/broker",
}

// RegisterBrokerServer attaches the broker service to the gRPC server.
func RegisterBrokerServer(s *grpc.Server, srv BrokerServer) {
	s.RegisterService(&brokerServiceDesc, srv)
}

type brokerService struct {
	broker *broker.Broker
}

// NewBrokerService exposes the broker over gRPC.
func NewBrokerService(b *broker.Broker) BrokerServer {
	return &brokerService{broker: b}
}

func (s *brokerService) RegisterClient(_ context.Context, req *apimodels.RegisterClientRequest) (*apimodels.RegisterClientResponse, error) {
	return &apimodels.RegisterClientResponse{
		ClientID: s.broker.RegisterClient(req.HostID, req.UserID, req.Description),
	}, nil
}

func (s *brokerService) SubmitJob(_ context.Context, req *apimodels.SubmitJobRequest) (*apimodels.SubmitJobResponse, error) {
	return &apimodels.SubmitJobResponse{
		JobID: s.broker.SubmitJob(req.ClientID, req.Service, req.JobData),
	}, nil
}

func (s *brokerService) FetchResults(_ context.Context, req *apimodels.FetchResultsRequest) (*apimodels.FetchResultsResponse, error) {
	return &apimodels.FetchResultsResponse{
		Results: s.broker.FetchResults(req.ClientID),
	}, nil
}

func (s *brokerService) WorkerExchange(_ context.Context, req *apimodels.WorkerExchangeRequest) (*apimodels.WorkerExchangeResponse, error) {
	return &apimodels.WorkerExchangeResponse{
		Job: s.broker.WorkerExchange(req.ClientID, req.Result, req.JobQuery),
	}, nil
}

func (s *brokerService) SubmitResult(_ context.Context, req *apimodels.SubmitResultRequest) (*apimodels.SubmitResultResponse, error) {
	if req.Result == nil {
		return nil, status.Error(codes.InvalidArgument, "no result given")
	}
	s.broker.SubmitResult(req.ClientID, *req.Result)
	return &apimodels.SubmitResultResponse{}, nil
}

func (s *brokerService) GetStatus(_ context.Context, req *apimodels.BrokerStatusRequest) (*apimodels.BrokerStatusResponse, error) {
	return s.broker.GetStatus(req.ClientID), nil
}

// BrokerClient is the client side of the broker RPC surface.
type BrokerClient interface {
	RegisterClient(context.Context, *apimodels.RegisterClientRequest, ...grpc.CallOption) (*apimodels.RegisterClientResponse, error)
	SubmitJob(context.Context, *apimodels.SubmitJobRequest, ...grpc.CallOption) (*apimodels.SubmitJobResponse, error)
	FetchResults(context.Context, *apimodels.FetchResultsRequest, ...grpc.CallOption) (*apimodels.FetchResultsResponse, error)
	WorkerExchange(context.Context, *apimodels.WorkerExchangeRequest, ...grpc.CallOption) (*apimodels.WorkerExchangeResponse, error)
	SubmitResult(context.Context, *apimodels.SubmitResultRequest, ...grpc.CallOption) (*apimodels.SubmitResultResponse, error)
	GetStatus(context.Context, *apimodels.BrokerStatusRequest, ...grpc.CallOption) (*apimodels.BrokerStatusResponse, error)
}

type brokerClient struct {
	cc grpc.ClientConnInterface
}

// NewBrokerClient returns a broker client over the connection.
func NewBrokerClient(cc grpc.ClientConnInterface) BrokerClient {
	return &brokerClient{cc: cc}
}

func (c *brokerClient) RegisterClient(ctx context.Context, in *apimodels.RegisterClientRequest, opts ...grpc.CallOption) (*apimodels.RegisterClientResponse, error) {
	out := &apimodels.RegisterClientResponse{}
	if err := invoke(ctx, c.cc, brokerServiceName, "RegisterClient", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "registering client")
	}
	return out, nil
}

func (c *brokerClient) SubmitJob(ctx context.Context, in *apimodels.SubmitJobRequest, opts ...grpc.CallOption) (*apimodels.SubmitJobResponse, error) {
	out := &apimodels.SubmitJobResponse{}
	if err := invoke(ctx, c.cc, brokerServiceName, "SubmitJob", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "submitting job")
	}
	return out, nil
}

func (c *brokerClient) FetchResults(ctx context.Context, in *apimodels.FetchResultsRequest, opts ...grpc.CallOption) (*apimodels.FetchResultsResponse, error) {
	out := &apimodels.FetchResultsResponse{}
	if err := invoke(ctx, c.cc, brokerServiceName, "FetchResults", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "fetching results")
	}
	return out, nil
}

func (c *brokerClient) WorkerExchange(ctx context.Context, in *apimodels.WorkerExchangeRequest, opts ...grpc.CallOption) (*apimodels.WorkerExchangeResponse, error) {
	out := &apimodels.WorkerExchangeResponse{}
	if err := invoke(ctx, c.cc, brokerServiceName, "WorkerExchange", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "exchanging with broker")
	}
	return out, nil
}

func (c *brokerClient) SubmitResult(ctx context.Context, in *apimodels.SubmitResultRequest, opts ...grpc.CallOption) (*apimodels.SubmitResultResponse, error) {
	out := &apimodels.SubmitResultResponse{}
	if err := invoke(ctx, c.cc, brokerServiceName, "SubmitResult", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "submitting result")
	}
	return out, nil
}

func (c *brokerClient) GetStatus(ctx context.Context, in *apimodels.BrokerStatusRequest, opts ...grpc.CallOption) (*apimodels.BrokerStatusResponse, error) {
	out := &apimodels.BrokerStatusResponse{}
	if err := invoke(ctx, c.cc, brokerServiceName, "GetStatus", in, out, opts...); err != nil {
		return nil, errors.Wrap(err, "getting broker status")
	}
	return out, nil
}
