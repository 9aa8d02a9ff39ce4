// Package broker implements the in-memory job/result broker. Jobs are queued
// per service descriptor and handed to polling workers; results are routed
// back to the mailbox of the client that submitted the job.
package broker

import (
	"sync/atomic"
	"time"

	"github.com/evergreen-ci/grid/apimodels"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
)

// Broker owns the routing tables. Each table has its own lock and no
// operation holds more than one of them at a time, so there is no cross-table
// atomicity: a racing observer may see a table updated before another one
// touched by the same operation.
type Broker struct {
	clients   *clientRegistry
	owners    *jobIndex
	queues    *jobQueues
	mailboxes *resultMailboxes

	nextJobID atomic.Uint64
	clock     func() time.Time
}

// New returns an empty broker.
func New() *Broker {
	return newBroker(time.Now)
}

func newBroker(clock func() time.Time) *Broker {
	return &Broker{
		clients:   newClientRegistry(),
		owners:    newJobIndex(),
		queues:    newJobQueues(),
		mailboxes: newResultMailboxes(),
		clock:     clock,
	}
}

// RegisterClient records a new client and returns its ID. Registration is
// never refused.
func (b *Broker) RegisterClient(hostID, userID, description string) apimodels.ClientID {
	id := b.clients.register(hostID, userID, description, b.clock())

	grip.Info(message.Fields{
		"message":     "registered client",
		"client_id":   id,
		"host_id":     hostID,
		"user_id":     userID,
		"description": description,
	})

	return id
}

// SubmitJob queues data for the service and returns the ID of the new job.
//
// The job index entry is written before the job is pushed to its queue, so a
// worker can never return a result for a job whose owner is not yet known.
func (b *Broker) SubmitJob(clientID apimodels.ClientID, service apimodels.ServiceDescriptor, data []byte) apimodels.JobID {
	b.touch(clientID)

	id := apimodels.JobID(b.nextJobID.Add(1) - 1)
	b.owners.put(id, clientID)
	b.queues.push(apimodels.Job{ID: id, Service: service, Data: data})

	grip.Debug(message.Fields{
		"message":   "queued job",
		"client_id": clientID,
		"job_id":    id,
		"service":   service.String(),
		"bytes":     len(data),
	})

	return id
}

// FetchResults removes and returns every result waiting for the client.
func (b *Broker) FetchResults(clientID apimodels.ClientID) []apimodels.Result {
	b.touch(clientID)

	results := b.mailboxes.drain(clientID)
	if len(results) > 0 {
		grip.Debug(message.Fields{
			"message":   "delivered results",
			"client_id": clientID,
			"results":   len(results),
		})
	}

	return results
}

// WorkerExchange ingests the result, if any, and then pops the next job for
// the queried service. Without a query no job is returned.
func (b *Broker) WorkerExchange(clientID apimodels.ClientID, result *apimodels.Result, query *apimodels.ServiceDescriptor) *apimodels.Job {
	b.touch(clientID)

	if result != nil {
		b.AddResult(*result)
	}

	if query == nil {
		return nil
	}

	job, ok := b.queues.pop(*query)
	if !ok {
		return nil
	}

	grip.Debug(message.Fields{
		"message":   "dispatched job",
		"client_id": clientID,
		"job_id":    job.ID,
		"service":   job.Service.String(),
	})

	return &job
}

// SubmitResult ingests a result outside of a worker exchange.
func (b *Broker) SubmitResult(clientID apimodels.ClientID, result apimodels.Result) {
	b.touch(clientID)
	b.AddResult(result)
}

// AddResult routes the result to the mailbox of the client that submitted its
// job and reports whether it was routed. The owner of a job is forgotten once
// its first result arrives; any later result for the same job, or a result
// for a job the broker never issued, is logged and dropped.
func (b *Broker) AddResult(result apimodels.Result) bool {
	owner, ok := b.owners.take(result.JobID)
	if !ok {
		grip.Warning(message.Fields{
			"message": "dropping result for unknown job",
			"job_id":  result.JobID,
			"bytes":   len(result.Data),
		})
		return false
	}

	b.mailboxes.deliver(owner, result)

	grip.Debug(message.Fields{
		"message":   "routed result",
		"job_id":    result.JobID,
		"client_id": owner,
		"failed":    result.Failed(),
	})

	return true
}

// touch records the access. Requests from unknown clients are still served.
func (b *Broker) touch(clientID apimodels.ClientID) {
	if b.clients.touch(clientID, b.clock()) {
		return
	}

	grip.Debug(message.Fields{
		"message":   "request from unregistered client",
		"client_id": clientID,
	})
}
