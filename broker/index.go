package broker

import (
	"sync"

	"github.com/evergreen-ci/grid/apimodels"
)

// jobIndex maps a job to the client that submitted it. An entry is consumed
// by the first result for its job.
type jobIndex struct {
	mu     sync.Mutex
	owners map[apimodels.JobID]apimodels.ClientID
}

func newJobIndex() *jobIndex {
	return &jobIndex{owners: map[apimodels.JobID]apimodels.ClientID{}}
}

func (i *jobIndex) put(job apimodels.JobID, client apimodels.ClientID) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.owners[job] = client
}

func (i *jobIndex) take(job apimodels.JobID) (apimodels.ClientID, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	client, ok := i.owners[job]
	if ok {
		delete(i.owners, job)
	}
	return client, ok
}

func (i *jobIndex) size() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return len(i.owners)
}
