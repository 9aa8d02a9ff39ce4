package broker

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/grid/apimodels"
)

// Snapshot reads every table in turn. The tables are not locked together,
// so the snapshot is not a consistent cut.
func (b *Broker) Snapshot() apimodels.BrokerStatus {
	return apimodels.BrokerStatus{
		Clients:      b.clients.status(),
		Queues:       b.queues.status(),
		Mailboxes:    b.mailboxes.status(),
		UnroutedJobs: b.owners.size(),
	}
}

// GetStatus returns the snapshot together with its text rendering.
func (b *Broker) GetStatus(clientID apimodels.ClientID) *apimodels.BrokerStatusResponse {
	b.touch(clientID)

	status := b.Snapshot()
	return &apimodels.BrokerStatusResponse{
		Text:   RenderStatus(status),
		Status: status,
	}
}

// RenderStatus formats the snapshot as tables for operators.
func RenderStatus(status apimodels.BrokerStatus) string {
	buf := &bytes.Buffer{}

	fmt.Fprintf(buf, "Clients: %d\n", len(status.Clients))
	if len(status.Clients) > 0 {
		t := newTable(buf)
		t.AddHeader("ID", "Host", "User", "Description", "Last Access")
		for _, c := range status.Clients {
			t.AddLine(c.ClientID, c.HostID, c.UserID, c.Description, humanize.Time(c.LastAccess))
		}
		t.Print()
	}

	fmt.Fprintf(buf, "\nQueued jobs: %d\n", queuedJobs(status.Queues))
	if len(status.Queues) > 0 {
		t := newTable(buf)
		t.AddHeader("Service", "Version", "Jobs", "Size")
		for _, q := range status.Queues {
			t.AddLine(q.Service.ServiceID, q.Service.ServiceVersion, q.Jobs, humanize.Bytes(uint64(q.Bytes)))
		}
		t.Print()
	}

	fmt.Fprintf(buf, "\nPending results: %d\n", pendingResults(status.Mailboxes))
	if len(status.Mailboxes) > 0 {
		t := newTable(buf)
		t.AddHeader("Client", "Results", "Size")
		for _, m := range status.Mailboxes {
			t.AddLine(m.ClientID, m.Results, humanize.Bytes(uint64(m.Bytes)))
		}
		t.Print()
	}

	fmt.Fprintf(buf, "\nJobs awaiting a result: %d\n", status.UnroutedJobs)

	return buf.String()
}

func newTable(buf *bytes.Buffer) *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0))
}

func queuedJobs(queues []apimodels.QueueStatus) int {
	total := 0
	for _, q := range queues {
		total += q.Jobs
	}
	return total
}

func pendingResults(mailboxes []apimodels.MailboxStatus) int {
	total := 0
	for _, m := range mailboxes {
		total += m.Results
	}
	return total
}
