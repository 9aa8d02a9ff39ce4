package broker

import (
	"sort"
	"sync"

	"github.com/evergreen-ci/grid/apimodels"
)

// resultMailboxes accumulates results per client until the client drains
// its mailbox.
type resultMailboxes struct {
	mu        sync.Mutex
	mailboxes map[apimodels.ClientID][]apimodels.Result
}

func newResultMailboxes() *resultMailboxes {
	return &resultMailboxes{mailboxes: map[apimodels.ClientID][]apimodels.Result{}}
}

func (m *resultMailboxes) deliver(client apimodels.ClientID, result apimodels.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mailboxes[client] = append(m.mailboxes[client], result)
}

func (m *resultMailboxes) drain(client apimodels.ClientID) []apimodels.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := m.mailboxes[client]
	delete(m.mailboxes, client)

	return results
}

func (m *resultMailboxes) status() []apimodels.MailboxStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]apimodels.MailboxStatus, 0, len(m.mailboxes))
	for client, results := range m.mailboxes {
		size := 0
		for _, result := range results {
			size += len(result.Data)
		}
		out = append(out, apimodels.MailboxStatus{ClientID: client, Results: len(results), Bytes: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })

	return out
}
