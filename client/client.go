package client

import (
	"context"
	"os"
	"os/user"
	"time"

	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/rpc"
	"github.com/jpillora/backoff"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

const (
	defaultRegisterAttempts = 1
	defaultRetryMin         = 100 * time.Millisecond
	defaultRetryMax         = 5 * time.Second

	unknownIdentity = "unknown"
)

// Options configure how a communicator connects and registers.
type Options struct {
	// Address is the host:port of the broker.
	Address string
	// Description is recorded by the broker alongside the host and user.
	Description string
	// RegisterAttempts bounds how often registration is tried before the
	// broker is considered unreachable.
	RegisterAttempts int
	RetryMin         time.Duration
	RetryMax         time.Duration
}

func (o *Options) validate() error {
	if o.RegisterAttempts < 0 {
		return errors.New("register attempts cannot be negative")
	}
	if o.RegisterAttempts == 0 {
		o.RegisterAttempts = defaultRegisterAttempts
	}
	if o.RetryMin <= 0 {
		o.RetryMin = defaultRetryMin
	}
	if o.RetryMax < o.RetryMin {
		o.RetryMax = defaultRetryMax
	}
	return nil
}

type communicatorImpl struct {
	broker   rpc.BrokerClient
	conn     *grpc.ClientConn
	clientID apimodels.ClientID
}

// Connect dials the broker and registers a new client.
func Connect(ctx context.Context, opts Options) (Communicator, error) {
	if opts.Address == "" {
		return nil, errors.New("broker address must be specified")
	}
	conn, err := rpc.Dial(opts.Address)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	comm, err := newCommunicator(ctx, rpc.NewBrokerClient(conn), opts)
	if err != nil {
		grip.Warning(message.WrapError(conn.Close(), message.Fields{
			"message": "closing broker connection",
			"address": opts.Address,
		}))
		return nil, errors.WithStack(err)
	}
	comm.conn = conn

	return comm, nil
}

// NewCommunicator registers with the broker behind the given client. The
// returned communicator does not own the underlying connection.
func NewCommunicator(ctx context.Context, broker rpc.BrokerClient, opts Options) (Communicator, error) {
	comm, err := newCommunicator(ctx, broker, opts)
	if err != nil {
		return nil, err
	}
	return comm, nil
}

func newCommunicator(ctx context.Context, broker rpc.BrokerClient, opts Options) (*communicatorImpl, error) {
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}

	req := &apimodels.RegisterClientRequest{
		HostID:      hostID(),
		UserID:      userID(),
		Description: opts.Description,
	}

	resp, err := register(ctx, broker, req, opts)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	grip.Info(message.Fields{
		"message":     "registered with broker",
		"client_id":   resp.ClientID,
		"address":     opts.Address,
		"description": opts.Description,
	})

	return &communicatorImpl{broker: broker, clientID: resp.ClientID}, nil
}

func register(ctx context.Context, broker rpc.BrokerClient, req *apimodels.RegisterClientRequest, opts Options) (*apimodels.RegisterClientResponse, error) {
	b := &backoff.Backoff{
		Min:    opts.RetryMin,
		Max:    opts.RetryMax,
		Factor: 2,
		Jitter: true,
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	var lastErr error
	for i := 1; i <= opts.RegisterAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "registration canceled")
		case <-timer.C:
			resp, err := broker.RegisterClient(ctx, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err

			wait := b.Duration()
			grip.Debug(message.WrapError(err, message.Fields{
				"message":   "registration attempt failed",
				"attempt":   i,
				"max":       opts.RegisterAttempts,
				"wait_secs": wait.Seconds(),
			}))
			timer.Reset(wait)
		}
	}

	return nil, errors.Wrapf(lastErr, "registering after %d attempts", opts.RegisterAttempts)
}

func hostID() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return unknownIdentity
	}
	return name
}

func userID() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return unknownIdentity
	}
	return u.Username
}

func (c *communicatorImpl) ClientID() apimodels.ClientID { return c.clientID }

func (c *communicatorImpl) SubmitJob(ctx context.Context, service apimodels.ServiceDescriptor, data []byte) (apimodels.JobID, error) {
	resp, err := c.broker.SubmitJob(ctx, &apimodels.SubmitJobRequest{
		ClientID: c.clientID,
		Service:  service,
		JobData:  data,
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return resp.JobID, nil
}

func (c *communicatorImpl) FetchResults(ctx context.Context) ([]apimodels.Result, error) {
	resp, err := c.broker.FetchResults(ctx, &apimodels.FetchResultsRequest{ClientID: c.clientID})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return resp.Results, nil
}

func (c *communicatorImpl) WorkerExchange(ctx context.Context, result *apimodels.Result, query *apimodels.ServiceDescriptor) (*apimodels.Job, error) {
	resp, err := c.broker.WorkerExchange(ctx, &apimodels.WorkerExchangeRequest{
		ClientID: c.clientID,
		Result:   result,
		JobQuery: query,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return resp.Job, nil
}

func (c *communicatorImpl) SubmitResult(ctx context.Context, result apimodels.Result) error {
	_, err := c.broker.SubmitResult(ctx, &apimodels.SubmitResultRequest{
		ClientID: c.clientID,
		Result:   &result,
	})
	return errors.WithStack(err)
}

func (c *communicatorImpl) Status(ctx context.Context) (*apimodels.BrokerStatusResponse, error) {
	resp, err := c.broker.GetStatus(ctx, &apimodels.BrokerStatusRequest{ClientID: c.clientID})
	return resp, errors.WithStack(err)
}

func (c *communicatorImpl) Close() error {
	if c.conn == nil {
		return nil
	}
	return errors.Wrap(c.conn.Close(), "closing broker connection")
}
