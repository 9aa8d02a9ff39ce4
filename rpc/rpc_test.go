package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dialBufconn(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, conn.Close()) })
	return conn
}

func startBroker(ctx context.Context, t *testing.T) (*broker.Broker, BrokerClient) {
	b := broker.New()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer()
	RegisterBrokerServer(srv, NewBrokerService(b))
	closer := StartService(ctx, lis, srv)
	t.Cleanup(func() { assert.NoError(t, closer()) })

	return b, NewBrokerClient(dialBufconn(t, lis))
}

func TestBrokerOverGRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, client := startBroker(ctx, t)

	reg, err := client.RegisterClient(ctx, &apimodels.RegisterClientRequest{HostID: "host", UserID: "user", Description: "grpc"})
	require.NoError(t, err)
	assert.Equal(t, apimodels.ClientID(0), reg.ClientID)

	service := apimodels.ServiceDescriptor{ServiceID: 7, ServiceVersion: 1}
	submitted, err := client.SubmitJob(ctx, &apimodels.SubmitJobRequest{ClientID: reg.ClientID, Service: service, JobData: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, apimodels.JobID(0), submitted.JobID)

	exchange, err := client.WorkerExchange(ctx, &apimodels.WorkerExchangeRequest{ClientID: reg.ClientID})
	require.NoError(t, err)
	assert.Nil(t, exchange.Job)

	exchange, err = client.WorkerExchange(ctx, &apimodels.WorkerExchangeRequest{ClientID: reg.ClientID, JobQuery: &service})
	require.NoError(t, err)
	require.NotNil(t, exchange.Job)
	assert.Equal(t, submitted.JobID, exchange.Job.ID)
	assert.Equal(t, service, exchange.Job.Service)
	assert.Equal(t, []byte("abc"), exchange.Job.Data)

	exchange, err = client.WorkerExchange(ctx, &apimodels.WorkerExchangeRequest{
		ClientID: reg.ClientID,
		Result:   &apimodels.Result{JobID: exchange.Job.ID, Data: []byte("xyz")},
		JobQuery: &service,
	})
	require.NoError(t, err)
	assert.Nil(t, exchange.Job)

	results, err := client.FetchResults(ctx, &apimodels.FetchResultsRequest{ClientID: reg.ClientID})
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Equal(t, []byte("xyz"), results.Results[0].Data)

	results, err = client.FetchResults(ctx, &apimodels.FetchResultsRequest{ClientID: reg.ClientID})
	require.NoError(t, err)
	assert.Empty(t, results.Results)
}

func TestSubmitResultOverGRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, client := startBroker(ctx, t)
	owner := b.RegisterClient("host", "user", "")
	job := b.SubmitJob(owner, apimodels.ServiceDescriptor{}, nil)

	_, err := client.SubmitResult(ctx, &apimodels.SubmitResultRequest{
		ClientID: 1,
		Result:   &apimodels.Result{JobID: job, ErrorMessage: "service failed"},
	})
	require.NoError(t, err)

	results := b.FetchResults(owner)
	require.Len(t, results, 1)
	assert.Equal(t, "service failed", results[0].ErrorMessage)

	_, err = client.SubmitResult(ctx, &apimodels.SubmitResultRequest{ClientID: 1})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestBrokerStatusOverGRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, client := startBroker(ctx, t)
	id := b.RegisterClient("host", "user", "status")
	b.SubmitJob(id, apimodels.ServiceDescriptor{ServiceID: 1, ServiceVersion: 2}, []byte("data"))

	resp, err := client.GetStatus(ctx, &apimodels.BrokerStatusRequest{ClientID: id})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Queued jobs: 1")
	require.Len(t, resp.Status.Queues, 1)
	assert.Equal(t, 1, resp.Status.Queues[0].Jobs)
	require.Len(t, resp.Status.Clients, 1)
	assert.Equal(t, "status", resp.Status.Clients[0].Description)
}

func TestUnreachableBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	lis := bufconn.Listen(1024)
	require.NoError(t, lis.Close())

	client := NewBrokerClient(dialBufconn(t, lis))
	_, err := client.RegisterClient(ctx, &apimodels.RegisterClientRequest{})
	assert.Error(t, err)
}

type mockSupervisor struct {
	library []byte
	stopped []int
}

func (m *mockSupervisor) AcceptServiceLibrary(_ context.Context, req *apimodels.AcceptServiceLibraryRequest) (*apimodels.AcceptServiceLibraryResponse, error) {
	if req.Service == nil {
		return &apimodels.AcceptServiceLibraryResponse{ErrorMessage: "no service given"}, nil
	}
	m.library = req.Data
	return &apimodels.AcceptServiceLibraryResponse{Path: "libraries/" + req.Service.String()}, nil
}

func (m *mockSupervisor) StartServer(_ context.Context, req *apimodels.StartServerRequest) (*apimodels.StartServerResponse, error) {
	return &apimodels.StartServerResponse{PID: 100}, nil
}

func (m *mockSupervisor) StartWorker(_ context.Context, req *apimodels.StartWorkerRequest) (*apimodels.StartWorkerResponse, error) {
	return &apimodels.StartWorkerResponse{PID: 200}, nil
}

func (m *mockSupervisor) StopServer(_ context.Context, req *apimodels.StopProcessRequest) (*apimodels.StopProcessResponse, error) {
	m.stopped = append(m.stopped, req.PID)
	return &apimodels.StopProcessResponse{}, nil
}

func (m *mockSupervisor) StopWorker(_ context.Context, req *apimodels.StopProcessRequest) (*apimodels.StopProcessResponse, error) {
	return &apimodels.StopProcessResponse{ErrorMessage: "No worker process with the given process ID"}, nil
}

func (m *mockSupervisor) GetStatus(context.Context, *apimodels.SupervisorStatusRequest) (*apimodels.SupervisorStatusResponse, error) {
	return &apimodels.SupervisorStatusResponse{
		Servers: []apimodels.ServerStatus{{PID: 100, Configuration: apimodels.ServerConfiguration{Address: "127.0.0.1:1"}}},
	}, nil
}

func TestSupervisorOverGRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mock := &mockSupervisor{}
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(ServerMessageSizeOptions()...)
	RegisterSupervisorServer(srv, mock)
	closer := StartService(ctx, lis, srv)
	defer func() { assert.NoError(t, closer()) }()

	client := NewSupervisorClient(dialBufconn(t, lis))

	t.Run("LargeUpload", func(t *testing.T) {
		library := bytes.Repeat([]byte{0x7f}, 8<<20)
		resp, err := client.AcceptServiceLibrary(ctx, &apimodels.AcceptServiceLibraryRequest{
			Service: &apimodels.ServiceDescriptor{ServiceID: 1, ServiceVersion: 1},
			Data:    library,
		})
		require.NoError(t, err)
		assert.Empty(t, resp.ErrorMessage)
		assert.Equal(t, "libraries/1/1", resp.Path)
		assert.Equal(t, library, mock.library)
	})
	t.Run("InBandError", func(t *testing.T) {
		resp, err := client.AcceptServiceLibrary(ctx, &apimodels.AcceptServiceLibraryRequest{})
		require.NoError(t, err)
		assert.Equal(t, "no service given", resp.ErrorMessage)

		stop, err := client.StopWorker(ctx, &apimodels.StopProcessRequest{PID: 5})
		require.NoError(t, err)
		assert.NotEmpty(t, stop.ErrorMessage)
	})
	t.Run("Lifecycle", func(t *testing.T) {
		server, err := client.StartServer(ctx, &apimodels.StartServerRequest{Configuration: &apimodels.ServerConfiguration{Address: "127.0.0.1:1"}})
		require.NoError(t, err)
		assert.Equal(t, 100, server.PID)

		worker, err := client.StartWorker(ctx, &apimodels.StartWorkerRequest{Configuration: &apimodels.WorkerConfiguration{Address: "127.0.0.1:1"}})
		require.NoError(t, err)
		assert.Equal(t, 200, worker.PID)

		stop, err := client.StopServer(ctx, &apimodels.StopProcessRequest{PID: server.PID})
		require.NoError(t, err)
		assert.Empty(t, stop.ErrorMessage)
		assert.Equal(t, []int{100}, mock.stopped)

		status, err := client.GetStatus(ctx, &apimodels.SupervisorStatusRequest{})
		require.NoError(t, err)
		require.Len(t, status.Servers, 1)
		assert.Equal(t, "127.0.0.1:1", status.Servers[0].Configuration.Address)
		assert.Empty(t, status.Workers)
	})
}

func TestBrokerStatusHandler(t *testing.T) {
	b := broker.New()
	id := b.RegisterClient("host", "user", "http")
	b.SubmitJob(id, apimodels.ServiceDescriptor{ServiceID: 3}, []byte("job"))

	rw := httptest.NewRecorder()
	brokerStatus(b)(rw, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rw.Code)

	out := apimodels.BrokerStatus{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out))
	require.Len(t, out.Queues, 1)
	assert.Equal(t, 1, out.Queues[0].Jobs)
	assert.Equal(t, 1, out.UnroutedJobs)

	h, err := NewBrokerStatusHandler(b)
	require.NoError(t, err)
	assert.NotNil(t, h)
}

func TestCodec(t *testing.T) {
	codec := bsonCodec{}
	assert.Equal(t, "bson", codec.Name())

	in := &apimodels.WorkerExchangeRequest{
		ClientID: 4,
		Result:   &apimodels.Result{JobID: 1 << 40, Data: []byte{0, 1, 2}},
	}
	data, err := codec.Marshal(in)
	require.NoError(t, err)

	out := &apimodels.WorkerExchangeRequest{}
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, in, out)
	assert.Nil(t, out.JobQuery)
}
