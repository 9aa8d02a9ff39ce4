package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/broker"
	"github.com/evergreen-ci/grid/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// flakyBroker fails the first registrations and delegates everything else.
type flakyBroker struct {
	rpc.BrokerClient
	failures int
	attempts int
}

func (f *flakyBroker) RegisterClient(ctx context.Context, req *apimodels.RegisterClientRequest, opts ...grpc.CallOption) (*apimodels.RegisterClientResponse, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.New("unavailable")
	}
	return &apimodels.RegisterClientResponse{ClientID: 11}, nil
}

func TestRegistrationRetries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := Options{RegisterAttempts: 3, RetryMin: time.Millisecond, RetryMax: 2 * time.Millisecond}

	t.Run("SucceedsWithinBound", func(t *testing.T) {
		b := &flakyBroker{failures: 2}
		comm, err := NewCommunicator(ctx, b, opts)
		require.NoError(t, err)
		assert.Equal(t, apimodels.ClientID(11), comm.ClientID())
		assert.Equal(t, 3, b.attempts)
		assert.NoError(t, comm.Close())
	})
	t.Run("GivesUpAfterBound", func(t *testing.T) {
		b := &flakyBroker{failures: 3}
		comm, err := NewCommunicator(ctx, b, opts)
		assert.Error(t, err)
		assert.Nil(t, comm)
		assert.Equal(t, 3, b.attempts)
	})
	t.Run("StopsWhenCanceled", func(t *testing.T) {
		cctx, ccancel := context.WithCancel(ctx)
		ccancel()
		b := &flakyBroker{failures: 100}
		_, err := NewCommunicator(cctx, b, Options{RegisterAttempts: 3, RetryMin: time.Hour, RetryMax: time.Hour})
		assert.Error(t, err)
	})
	t.Run("RejectsNegativeAttempts", func(t *testing.T) {
		_, err := NewCommunicator(ctx, &flakyBroker{}, Options{RegisterAttempts: -1})
		assert.Error(t, err)
	})
}

func TestConnectRequiresAddress(t *testing.T) {
	_, err := Connect(context.Background(), Options{})
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	assert.NotEmpty(t, hostID())
	assert.NotEmpty(t, userID())
}

func TestMockRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	app := NewMock(b, "application")
	worker := NewMock(b, "worker")
	assert.NotEqual(t, app.ClientID(), worker.ClientID())

	service := apimodels.ServiceDescriptor{ServiceID: 1, ServiceVersion: 1}
	id, err := app.SubmitJob(ctx, service, []byte("in"))
	require.NoError(t, err)

	job, err := worker.WorkerExchange(ctx, nil, &service)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)

	require.NoError(t, worker.SubmitResult(ctx, apimodels.Result{JobID: id, Data: []byte("out")}))

	results, err := app.FetchResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []byte("out"), results[0].Data)

	status, err := app.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Status.Clients, 2)

	worker.ExchangeShouldFail = true
	_, err = worker.WorkerExchange(ctx, nil, &service)
	assert.Error(t, err)
	assert.Equal(t, 2, worker.ExchangeCount())
}

func TestConnectOverTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := broker.New()
	lis, err := rpc.Listen("127.0.0.1:0")
	require.NoError(t, err)
	srv := rpc.NewServer()
	rpc.RegisterBrokerServer(srv, rpc.NewBrokerService(b))
	closer := rpc.StartService(ctx, lis, srv)
	defer func() { assert.NoError(t, closer()) }()

	comm, err := Connect(ctx, Options{Address: lis.Addr().String(), Description: "tcp", RegisterAttempts: 3})
	require.NoError(t, err)
	defer func() { assert.NoError(t, comm.Close()) }()

	service := apimodels.ServiceDescriptor{ServiceID: 2, ServiceVersion: 5}
	id, err := comm.SubmitJob(ctx, service, []byte("payload"))
	require.NoError(t, err)

	job, err := comm.WorkerExchange(ctx, nil, &service)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)

	require.NoError(t, comm.SubmitResult(ctx, apimodels.Result{JobID: id, Data: []byte("done")}))
	results, err := comm.FetchResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []byte("done"), results[0].Data)

	status, err := comm.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Status.Clients, 1)
	assert.Equal(t, "tcp", status.Status.Clients[0].Description)
	assert.Equal(t, hostID(), status.Status.Clients[0].HostID)
}
