// Package client is the broker client used by workers and applications. A
// Communicator registers with the broker once and then issues every call
// under the client ID it was given.
package client

import (
	"context"

	"github.com/evergreen-ci/grid/apimodels"
)

// Communicator is the broker API as seen by a registered client.
type Communicator interface {
	// ClientID returns the ID assigned to this client at registration.
	ClientID() apimodels.ClientID

	// SubmitJob queues data for the service and returns the job ID.
	SubmitJob(context.Context, apimodels.ServiceDescriptor, []byte) (apimodels.JobID, error)
	// FetchResults drains the mailbox of this client.
	FetchResults(context.Context) ([]apimodels.Result, error)

	// WorkerExchange delivers result, if set, and asks for the next job of
	// the queried service. A nil query never returns a job.
	WorkerExchange(context.Context, *apimodels.Result, *apimodels.ServiceDescriptor) (*apimodels.Job, error)
	// SubmitResult delivers a result without asking for a job.
	SubmitResult(context.Context, apimodels.Result) error

	// Status returns the broker status snapshot.
	Status(context.Context) (*apimodels.BrokerStatusResponse, error)

	Close() error
}
