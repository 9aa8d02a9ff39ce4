package broker

import (
	"sort"
	"sync"

	"github.com/evergreen-ci/grid/apimodels"
)

// jobQueues holds one FIFO of jobs per service descriptor. A queue is created
// on the first submission for its descriptor and is kept once it drains.
type jobQueues struct {
	mu     sync.Mutex
	queues map[apimodels.ServiceDescriptor][]apimodels.Job
}

func newJobQueues() *jobQueues {
	return &jobQueues{queues: map[apimodels.ServiceDescriptor][]apimodels.Job{}}
}

func (q *jobQueues) push(job apimodels.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queues[job.Service] = append(q.queues[job.Service], job)
}

// pop removes and returns the head of the queue for the descriptor. It
// returns false if the queue does not exist or is empty.
func (q *jobQueues) pop(service apimodels.ServiceDescriptor) (apimodels.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := q.queues[service]
	if len(jobs) == 0 {
		return apimodels.Job{}, false
	}

	job := jobs[0]
	jobs[0] = apimodels.Job{}
	if len(jobs) == 1 {
		q.queues[service] = jobs[:0]
	} else {
		q.queues[service] = jobs[1:]
	}

	return job, true
}

func (q *jobQueues) status() []apimodels.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]apimodels.QueueStatus, 0, len(q.queues))
	for service, jobs := range q.queues {
		size := 0
		for _, job := range jobs {
			size += len(job.Data)
		}
		out = append(out, apimodels.QueueStatus{Service: service, Jobs: len(jobs), Bytes: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service.ServiceID != out[j].Service.ServiceID {
			return out[i].Service.ServiceID < out[j].Service.ServiceID
		}
		return out[i].Service.ServiceVersion < out[j].Service.ServiceVersion
	})

	return out
}
