package client

import (
	"context"
	"sync"

	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/broker"
	"github.com/pkg/errors"
)

// Mock is a Communicator backed by an in-process broker. It records the
// calls it receives and can be told to fail.
type Mock struct {
	Broker *broker.Broker

	// mock behavior
	ExchangeShouldFail     bool
	SubmitResultShouldFail bool
	// OnExchange, if set, is called after every successful exchange.
	OnExchange func(job *apimodels.Job)

	// data collected by mocked methods
	Exchanges        []apimodels.WorkerExchangeRequest
	SubmittedResults []apimodels.Result
	Closed           bool

	clientID apimodels.ClientID
	mu       sync.Mutex
}

// NewMock registers a client with the broker and returns a communicator
// for it.
func NewMock(b *broker.Broker, description string) *Mock {
	return &Mock{
		Broker:   b,
		clientID: b.RegisterClient("mock-host", "mock-user", description),
	}
}

func (m *Mock) ClientID() apimodels.ClientID { return m.clientID }

func (m *Mock) SubmitJob(_ context.Context, service apimodels.ServiceDescriptor, data []byte) (apimodels.JobID, error) {
	return m.Broker.SubmitJob(m.clientID, service, data), nil
}

func (m *Mock) FetchResults(context.Context) ([]apimodels.Result, error) {
	return m.Broker.FetchResults(m.clientID), nil
}

func (m *Mock) WorkerExchange(ctx context.Context, result *apimodels.Result, query *apimodels.ServiceDescriptor) (*apimodels.Job, error) {
	m.mu.Lock()
	req := apimodels.WorkerExchangeRequest{ClientID: m.clientID, Result: result, JobQuery: query}
	m.Exchanges = append(m.Exchanges, req)
	fail := m.ExchangeShouldFail
	hook := m.OnExchange
	m.mu.Unlock()

	if fail {
		return nil, errors.New("mock exchange failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	job := m.Broker.WorkerExchange(m.clientID, result, query)
	if hook != nil {
		hook(job)
	}
	return job, nil
}

func (m *Mock) SubmitResult(_ context.Context, result apimodels.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SubmitResultShouldFail {
		return errors.New("mock submit result failed")
	}
	m.SubmittedResults = append(m.SubmittedResults, result)
	m.Broker.SubmitResult(m.clientID, result)
	return nil
}

func (m *Mock) Status(context.Context) (*apimodels.BrokerStatusResponse, error) {
	return m.Broker.GetStatus(m.clientID), nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

// ExchangeCount returns the number of exchanges issued so far.
func (m *Mock) ExchangeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Exchanges)
}
