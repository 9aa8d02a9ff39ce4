// Package supervisor starts, stops and reports grid server and worker
// processes. It keeps no registry of what it started: status is read from
// the OS process table on every request, so a restarted supervisor reports
// exactly what is running.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/apimodels"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// Options configure a supervisor.
type Options struct {
	// BasePath holds the server and worker executables and the libraries
	// and logs directories.
	BasePath string
	// LogLevel is handed to spawned processes.
	LogLevel string
	// LogPrefix overrides the log file prefix of spawned processes. By
	// default they log below <base>/logs.
	LogPrefix string
}

// Supervisor implements the supervisor RPC surface. Domain failures are
// reported in the ErrorMessage of the responses; its methods never return
// an error.
type Supervisor struct {
	opts      Options
	table     ProcessTable
	spawner   Spawner
	libraries *LibraryStore
}

// New returns a supervisor rooted at opts.BasePath.
func New(opts Options, table ProcessTable, spawner Spawner) (*Supervisor, error) {
	if opts.BasePath == "" {
		return nil, errors.New("base path must be specified")
	}
	if table == nil || spawner == nil {
		return nil, errors.New("supervisor requires a process table and a spawner")
	}

	libraries, err := NewLibraryStore(opts.BasePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if opts.LogPrefix == "" {
		logs := filepath.Join(opts.BasePath, grid.LogsDirectory)
		if err = os.MkdirAll(logs, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating log directory '%s'", logs)
		}
	}

	return &Supervisor{
		opts:      opts,
		table:     table,
		spawner:   spawner,
		libraries: libraries,
	}, nil
}

func (s *Supervisor) AcceptServiceLibrary(ctx context.Context, req *apimodels.AcceptServiceLibraryRequest) (*apimodels.AcceptServiceLibraryResponse, error) {
	if req.Service == nil {
		return &apimodels.AcceptServiceLibraryResponse{ErrorMessage: "no service library configuration given"}, nil
	}

	path, err := s.libraries.Put(ctx, *req.Service, req.Data)
	if err != nil {
		grip.Error(message.WrapError(err, message.Fields{
			"message": "could not store service library",
			"service": req.Service.String(),
		}))
		return &apimodels.AcceptServiceLibraryResponse{ErrorMessage: err.Error()}, nil
	}

	grip.Info(message.Fields{
		"message": "stored service library",
		"service": req.Service.String(),
		"path":    path,
		"bytes":   len(req.Data),
	})

	return &apimodels.AcceptServiceLibraryResponse{Path: path}, nil
}

func (s *Supervisor) StartServer(ctx context.Context, req *apimodels.StartServerRequest) (*apimodels.StartServerResponse, error) {
	if req.Configuration == nil {
		return &apimodels.StartServerResponse{ErrorMessage: "no server configuration given"}, nil
	}
	if err := req.Configuration.Validate(); err != nil {
		return &apimodels.StartServerResponse{ErrorMessage: err.Error()}, nil
	}

	pid, err := s.spawn(ctx, grid.ServerExecutableName, req.Configuration.Args())
	if err != nil {
		return &apimodels.StartServerResponse{ErrorMessage: err.Error()}, nil
	}

	return &apimodels.StartServerResponse{PID: pid}, nil
}

func (s *Supervisor) StartWorker(ctx context.Context, req *apimodels.StartWorkerRequest) (*apimodels.StartWorkerResponse, error) {
	if req.Configuration == nil {
		return &apimodels.StartWorkerResponse{ErrorMessage: "no worker configuration given"}, nil
	}
	conf := *req.Configuration
	if err := conf.Validate(); err != nil {
		return &apimodels.StartWorkerResponse{ErrorMessage: err.Error()}, nil
	}
	// The library is not checked here; a bad path only shows up in the
	// worker's own log.
	if conf.LibraryPath == "" {
		conf.LibraryPath = s.libraries.Path(conf.Service)
	}

	pid, err := s.spawn(ctx, grid.WorkerExecutableName, conf.Args())
	if err != nil {
		return &apimodels.StartWorkerResponse{ErrorMessage: err.Error()}, nil
	}

	return &apimodels.StartWorkerResponse{PID: pid}, nil
}

func (s *Supervisor) StopServer(ctx context.Context, req *apimodels.StopProcessRequest) (*apimodels.StopProcessResponse, error) {
	return s.stop(ctx, grid.RoleServer, grid.ServerExecutableName, req.PID), nil
}

func (s *Supervisor) StopWorker(ctx context.Context, req *apimodels.StopProcessRequest) (*apimodels.StopProcessResponse, error) {
	return s.stop(ctx, grid.RoleWorker, grid.WorkerExecutableName, req.PID), nil
}

func (s *Supervisor) GetStatus(ctx context.Context, _ *apimodels.SupervisorStatusRequest) (*apimodels.SupervisorStatusResponse, error) {
	resp := &apimodels.SupervisorStatusResponse{
		Servers: []apimodels.ServerStatus{},
		Workers: []apimodels.WorkerStatus{},
	}

	procs, err := s.table.Find(ctx, grid.ServerExecutableName, grid.WorkerExecutableName)
	if err != nil {
		// Status has no error field; an unreadable table reads as empty.
		grip.Error(message.WrapError(err, "reading process table"))
		return resp, nil
	}

	for _, proc := range procs {
		switch proc.Name {
		case grid.ServerExecutableName:
			resp.Servers = append(resp.Servers, apimodels.ServerStatus{
				PID:           proc.PID,
				Configuration: ParseServerArgs(proc.Args),
			})
		case grid.WorkerExecutableName:
			resp.Workers = append(resp.Workers, apimodels.WorkerStatus{
				PID:           proc.PID,
				Configuration: ParseWorkerArgs(proc.Args),
			})
		}
	}

	return resp, nil
}

func (s *Supervisor) spawn(ctx context.Context, executable string, args []string) (int, error) {
	path := filepath.Join(s.opts.BasePath, executable)

	pid, err := s.spawner.Spawn(ctx, path, args, s.childEnvironment(executable))
	if err != nil {
		grip.Error(message.WrapError(err, message.Fields{
			"message": "could not start process",
			"path":    path,
			"args":    args,
		}))
		return 0, errors.WithStack(err)
	}

	return pid, nil
}

// childEnvironment passes logging settings to a spawned process without
// touching its positional arguments.
func (s *Supervisor) childEnvironment(executable string) map[string]string {
	prefix := s.opts.LogPrefix
	if prefix == "" {
		prefix = filepath.Join(s.opts.BasePath, grid.LogsDirectory, strings.TrimSuffix(executable, ".exe"))
	} else {
		prefix = fmt.Sprintf("%s-%s", prefix, strings.TrimSuffix(executable, ".exe"))
	}

	env := map[string]string{
		grid.EnvironmentKey("logging", "prefix"): prefix,
	}
	if s.opts.LogLevel != "" {
		env[grid.EnvironmentKey("logging", "level")] = s.opts.LogLevel
	}
	return env
}

func (s *Supervisor) stop(ctx context.Context, role, executable string, pid int) *apimodels.StopProcessResponse {
	proc, err := s.table.Get(ctx, pid)
	if err != nil {
		if errors.Cause(err) == ErrNoProcess {
			return &apimodels.StopProcessResponse{ErrorMessage: fmt.Sprintf("no %s process with the given process ID", role)}
		}
		return &apimodels.StopProcessResponse{ErrorMessage: err.Error()}
	}
	if proc.Name != executable {
		return &apimodels.StopProcessResponse{
			ErrorMessage: fmt.Sprintf("process %d is '%s', not a grid %s", pid, proc.Name, role),
		}
	}

	if err = s.table.Kill(ctx, pid); err != nil {
		grip.Error(message.WrapError(err, message.Fields{
			"message": "could not stop process",
			"role":    role,
			"pid":     pid,
		}))
		return &apimodels.StopProcessResponse{ErrorMessage: err.Error()}
	}

	grip.Info(message.Fields{
		"message": "stopped process",
		"role":    role,
		"pid":     pid,
	})

	return &apimodels.StopProcessResponse{}
}
