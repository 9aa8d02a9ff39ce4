package apimodels

import (
	"strconv"

	"github.com/pkg/errors"
)

// ServerConfiguration is the launch configuration of a broker process.
type ServerConfiguration struct {
	Address string `bson:"address" json:"address" yaml:"address"`
}

// Args returns the positional argument vector of a server process.
func (c *ServerConfiguration) Args() []string {
	return []string{c.Address}
}

func (c *ServerConfiguration) Validate() error {
	if c.Address == "" {
		return errors.New("server address must be specified")
	}
	return nil
}

// WorkerConfiguration is the launch configuration of a worker process.
type WorkerConfiguration struct {
	Address     string            `bson:"address" json:"address" yaml:"address"`
	Service     ServiceDescriptor `bson:"service" json:"service" yaml:"service"`
	LibraryPath string            `bson:"library_path" json:"library_path" yaml:"library_path"`
}

// Args returns the positional argument vector of a worker process.
func (c *WorkerConfiguration) Args() []string {
	return []string{
		c.Address,
		strconv.FormatUint(uint64(c.Service.ServiceID), 10),
		strconv.FormatUint(uint64(c.Service.ServiceVersion), 10),
		c.LibraryPath,
	}
}

func (c *WorkerConfiguration) Validate() error {
	if c.Address == "" {
		return errors.New("server address must be specified")
	}
	return nil
}

type ServerStatus struct {
	PID           int                 `bson:"pid" json:"pid"`
	Configuration ServerConfiguration `bson:"configuration" json:"configuration"`
}

type WorkerStatus struct {
	PID           int                 `bson:"pid" json:"pid"`
	Configuration WorkerConfiguration `bson:"configuration" json:"configuration"`
}

// AcceptServiceLibraryRequest uploads the library implementing a service.
type AcceptServiceLibraryRequest struct {
	Service *ServiceDescriptor `bson:"service,omitempty" json:"service,omitempty"`
	Data    []byte             `bson:"service_library_data" json:"service_library_data"`
}

type AcceptServiceLibraryResponse struct {
	Path         string `bson:"path,omitempty" json:"path,omitempty"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

type StartServerRequest struct {
	Configuration *ServerConfiguration `bson:"server_configuration,omitempty" json:"server_configuration,omitempty"`
}

type StartServerResponse struct {
	PID          int    `bson:"pid,omitempty" json:"pid,omitempty"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

type StartWorkerRequest struct {
	Configuration *WorkerConfiguration `bson:"worker_configuration,omitempty" json:"worker_configuration,omitempty"`
}

type StartWorkerResponse struct {
	PID          int    `bson:"pid,omitempty" json:"pid,omitempty"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

type StopProcessRequest struct {
	PID int `bson:"pid" json:"pid"`
}

type StopProcessResponse struct {
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
}

type SupervisorStatusRequest struct{}

// SupervisorStatusResponse lists the grid processes found in the process
// table when the request was served.
type SupervisorStatusResponse struct {
	Servers []ServerStatus `bson:"servers" json:"servers"`
	Workers []WorkerStatus `bson:"workers" json:"workers"`
}
