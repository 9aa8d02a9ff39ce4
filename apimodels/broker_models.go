package apimodels

import (
	"fmt"
	"time"
)

// ClientID identifies a client registered with a broker. IDs are assigned by
// the broker and increase monotonically for the lifetime of the broker.
type ClientID uint32

// JobID identifies a job submitted to a broker. IDs are assigned by the
// broker and increase monotonically for the lifetime of the broker.
type JobID uint64

// ServiceDescriptor identifies the capability a job requires and a worker
// advertises.
type ServiceDescriptor struct {
	ServiceID      uint32 `bson:"service_id" json:"service_id" yaml:"service_id"`
	ServiceVersion uint32 `bson:"service_version" json:"service_version" yaml:"service_version"`
}

func (d ServiceDescriptor) String() string {
	return fmt.Sprintf("%d/%d", d.ServiceID, d.ServiceVersion)
}

// Job is an opaque unit of work queued for a service.
type Job struct {
	ID      JobID             `bson:"job_id" json:"job_id"`
	Service ServiceDescriptor `bson:"service" json:"service"`
	Data    []byte            `bson:"job_data" json:"job_data"`
}

// Result is the outcome of executing a job. ErrorMessage is set when the
// service failed to compute the job, in which case Data is empty.
type Result struct {
	JobID        JobID  `bson:"job_id" json:"job_id"`
	Data         []byte `bson:"result_data" json:"result_data"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

// Failed reports whether the service failed to compute the job.
func (r *Result) Failed() bool { return r.ErrorMessage != "" }

// RegisterClientRequest carries the self-reported identity of a client.
type RegisterClientRequest struct {
	HostID      string `bson:"host_id" json:"host_id"`
	UserID      string `bson:"user_id" json:"user_id"`
	Description string `bson:"description" json:"description"`
}

type RegisterClientResponse struct {
	ClientID ClientID `bson:"client_id" json:"client_id"`
}

// SubmitJobRequest queues JobData for the given service.
type SubmitJobRequest struct {
	ClientID ClientID          `bson:"client_id" json:"client_id"`
	Service  ServiceDescriptor `bson:"service" json:"service"`
	JobData  []byte            `bson:"job_data" json:"job_data"`
}

type SubmitJobResponse struct {
	JobID JobID `bson:"job_id" json:"job_id"`
}

type FetchResultsRequest struct {
	ClientID ClientID `bson:"client_id" json:"client_id"`
}

type FetchResultsResponse struct {
	Results []Result `bson:"results" json:"results"`
}

// WorkerExchangeRequest is the combined poll-and-report call of a worker.
// Result, if set, is ingested before the job query is served. A nil
// JobQuery never returns a job.
type WorkerExchangeRequest struct {
	ClientID ClientID           `bson:"client_id" json:"client_id"`
	Result   *Result            `bson:"result_from_worker,omitempty" json:"result_from_worker,omitempty"`
	JobQuery *ServiceDescriptor `bson:"job_query,omitempty" json:"job_query,omitempty"`
}

type WorkerExchangeResponse struct {
	Job *Job `bson:"job,omitempty" json:"job,omitempty"`
}

// SubmitResultRequest delivers a result without polling for a job.
type SubmitResultRequest struct {
	ClientID ClientID `bson:"client_id" json:"client_id"`
	Result   *Result  `bson:"result,omitempty" json:"result,omitempty"`
}

type SubmitResultResponse struct{}

type BrokerStatusRequest struct {
	ClientID ClientID `bson:"client_id" json:"client_id"`
}

// BrokerStatusResponse carries a diagnostic snapshot of the broker, both
// rendered for humans and structured.
type BrokerStatusResponse struct {
	Text   string       `bson:"text" json:"text"`
	Status BrokerStatus `bson:"status" json:"status"`
}

// BrokerStatus is a point-in-time view of the broker tables. The tables are
// read one after the other, so the view is not a consistent cut across them.
type BrokerStatus struct {
	Clients   []ClientStatus  `bson:"clients" json:"clients"`
	Queues    []QueueStatus   `bson:"queues" json:"queues"`
	Mailboxes []MailboxStatus `bson:"mailboxes" json:"mailboxes"`
	// UnroutedJobs is the number of job IDs still waiting for a result.
	UnroutedJobs int `bson:"unrouted_jobs" json:"unrouted_jobs"`
}

type ClientStatus struct {
	ClientID    ClientID  `bson:"client_id" json:"client_id"`
	HostID      string    `bson:"host_id" json:"host_id"`
	UserID      string    `bson:"user_id" json:"user_id"`
	Description string    `bson:"description" json:"description"`
	Registered  time.Time `bson:"registered" json:"registered"`
	LastAccess  time.Time `bson:"last_access" json:"last_access"`
}

type QueueStatus struct {
	Service ServiceDescriptor `bson:"service" json:"service"`
	Jobs    int               `bson:"jobs" json:"jobs"`
	Bytes   int               `bson:"bytes" json:"bytes"`
}

type MailboxStatus struct {
	ClientID ClientID `bson:"client_id" json:"client_id"`
	Results  int      `bson:"results" json:"results"`
	Bytes    int      `bson:"bytes" json:"bytes"`
}
