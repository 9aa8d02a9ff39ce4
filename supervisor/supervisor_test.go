package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/rpc"
	"github.com/stretchr/testify/suite"
)

var _ rpc.SupervisorServer = &Supervisor{}

type SupervisorSuite struct {
	base       string
	table      *MockProcessTable
	spawner    *MockSpawner
	supervisor *Supervisor
	ctx        context.Context
	cancel     context.CancelFunc
	suite.Suite
}

func TestSupervisorSuite(t *testing.T) {
	suite.Run(t, new(SupervisorSuite))
}

func (s *SupervisorSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.base = s.T().TempDir()
	s.table = NewMockProcessTable()
	s.spawner = NewMockSpawner(s.table)

	var err error
	s.supervisor, err = New(Options{BasePath: s.base, LogLevel: "debug"}, s.table, s.spawner)
	s.Require().NoError(err)
}

func (s *SupervisorSuite) TearDownTest() {
	s.cancel()
}

func (s *SupervisorSuite) status() *apimodels.SupervisorStatusResponse {
	resp, err := s.supervisor.GetStatus(s.ctx, &apimodels.SupervisorStatusRequest{})
	s.Require().NoError(err)
	return resp
}

func (s *SupervisorSuite) TestNewCreatesDirectories() {
	s.DirExists(filepath.Join(s.base, grid.LibrariesDirectory))
	s.DirExists(filepath.Join(s.base, grid.LogsDirectory))

	_, err := New(Options{}, s.table, s.spawner)
	s.Error(err)
	_, err = New(Options{BasePath: s.base}, nil, s.spawner)
	s.Error(err)
}

func (s *SupervisorSuite) TestServerLifecycle() {
	start, err := s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{
		Configuration: &apimodels.ServerConfiguration{Address: "127.0.0.1:60000"},
	})
	s.Require().NoError(err)
	s.Require().Empty(start.ErrorMessage)
	s.NotZero(start.PID)

	proc := s.table.Processes[start.PID]
	s.Equal(grid.ServerExecutableName, proc.Name)
	s.Equal([]string{"127.0.0.1:60000"}, proc.Args)

	status := s.status()
	s.Require().Len(status.Servers, 1)
	s.Equal(start.PID, status.Servers[0].PID)
	s.Equal("127.0.0.1:60000", status.Servers[0].Configuration.Address)
	s.Empty(status.Workers)

	stop, err := s.supervisor.StopServer(s.ctx, &apimodels.StopProcessRequest{PID: start.PID})
	s.Require().NoError(err)
	s.Empty(stop.ErrorMessage)
	s.Equal([]int{start.PID}, s.table.Killed)
	s.Empty(s.status().Servers)
}

func (s *SupervisorSuite) TestWorkerLifecycle() {
	conf := &apimodels.WorkerConfiguration{
		Address:     "127.0.0.1:60000",
		Service:     apimodels.ServiceDescriptor{ServiceID: 7, ServiceVersion: 42},
		LibraryPath: "/opt/lib.so",
	}
	start, err := s.supervisor.StartWorker(s.ctx, &apimodels.StartWorkerRequest{Configuration: conf})
	s.Require().NoError(err)
	s.Require().Empty(start.ErrorMessage)

	status := s.status()
	s.Require().Len(status.Workers, 1)
	s.Equal(start.PID, status.Workers[0].PID)
	s.Equal(*conf, status.Workers[0].Configuration)

	stop, err := s.supervisor.StopWorker(s.ctx, &apimodels.StopProcessRequest{PID: start.PID})
	s.Require().NoError(err)
	s.Empty(stop.ErrorMessage)
	s.Empty(s.status().Workers)
}

func (s *SupervisorSuite) TestWorkerDefaultsToUploadedLibrary() {
	service := apimodels.ServiceDescriptor{ServiceID: 3, ServiceVersion: 1}
	start, err := s.supervisor.StartWorker(s.ctx, &apimodels.StartWorkerRequest{
		Configuration: &apimodels.WorkerConfiguration{Address: "127.0.0.1:1", Service: service},
	})
	s.Require().NoError(err)
	s.Require().Empty(start.ErrorMessage)

	expected := filepath.Join(s.base, grid.LibrariesDirectory, "3", "1", grid.ServiceLibraryName)
	args := s.table.Processes[start.PID].Args
	s.Require().Len(args, 4)
	s.Equal(expected, args[3])
}

func (s *SupervisorSuite) TestSpawnedProcessesGetLoggingEnvironment() {
	_, err := s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{
		Configuration: &apimodels.ServerConfiguration{Address: "127.0.0.1:1"},
	})
	s.Require().NoError(err)

	s.Require().Len(s.spawner.Environments, 1)
	env := s.spawner.Environments[0]
	s.Equal(filepath.Join(s.base, grid.LogsDirectory, "grid-server"), env["GRID_LOGGING_PREFIX"])
	s.Equal("debug", env["GRID_LOGGING_LEVEL"])
}

func (s *SupervisorSuite) TestMissingConfigurationIsReportedInBand() {
	server, err := s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{})
	s.NoError(err)
	s.Equal("no server configuration given", server.ErrorMessage)

	server, err = s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{Configuration: &apimodels.ServerConfiguration{}})
	s.NoError(err)
	s.NotEmpty(server.ErrorMessage)

	worker, err := s.supervisor.StartWorker(s.ctx, &apimodels.StartWorkerRequest{})
	s.NoError(err)
	s.Equal("no worker configuration given", worker.ErrorMessage)

	s.Empty(s.table.Processes)
}

func (s *SupervisorSuite) TestSpawnFailureIsReportedInBand() {
	s.spawner.SpawnShouldFail = true
	resp, err := s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{
		Configuration: &apimodels.ServerConfiguration{Address: "127.0.0.1:1"},
	})
	s.NoError(err)
	s.Contains(resp.ErrorMessage, "mock spawn")
	s.Zero(resp.PID)
}

func (s *SupervisorSuite) TestStopUnknownProcess() {
	resp, err := s.supervisor.StopWorker(s.ctx, &apimodels.StopProcessRequest{PID: 4242})
	s.NoError(err)
	s.Equal("no worker process with the given process ID", resp.ErrorMessage)

	resp, err = s.supervisor.StopServer(s.ctx, &apimodels.StopProcessRequest{PID: 4242})
	s.NoError(err)
	s.Equal("no server process with the given process ID", resp.ErrorMessage)
}

func (s *SupervisorSuite) TestStopRefusesOtherExecutables() {
	s.table.Processes[77] = ProcessInfo{PID: 77, Name: "sshd"}
	start, err := s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{
		Configuration: &apimodels.ServerConfiguration{Address: "127.0.0.1:1"},
	})
	s.Require().NoError(err)

	resp, err := s.supervisor.StopWorker(s.ctx, &apimodels.StopProcessRequest{PID: 77})
	s.NoError(err)
	s.Contains(resp.ErrorMessage, "not a grid worker")

	resp, err = s.supervisor.StopWorker(s.ctx, &apimodels.StopProcessRequest{PID: start.PID})
	s.NoError(err)
	s.Contains(resp.ErrorMessage, "not a grid worker")

	s.Empty(s.table.Killed)
}

func (s *SupervisorSuite) TestKillFailureIsReportedInBand() {
	start, err := s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{
		Configuration: &apimodels.ServerConfiguration{Address: "127.0.0.1:1"},
	})
	s.Require().NoError(err)

	s.table.KillShouldFail = true
	resp, err := s.supervisor.StopServer(s.ctx, &apimodels.StopProcessRequest{PID: start.PID})
	s.NoError(err)
	s.Contains(resp.ErrorMessage, "mock kill failed")
}

func (s *SupervisorSuite) TestStatusUsesPlaceholdersForForeignArguments() {
	s.table.Processes[10] = ProcessInfo{PID: 10, Name: grid.WorkerExecutableName, Args: []string{"--verbose"}}
	s.table.Processes[11] = ProcessInfo{PID: 11, Name: grid.ServerExecutableName}
	s.table.Processes[12] = ProcessInfo{PID: 12, Name: "grid-server-old", Args: []string{"127.0.0.1:1"}}

	status := s.status()
	s.Require().Len(status.Workers, 1)
	s.Equal(apimodels.WorkerConfiguration{
		Address:     grid.UnknownArgument,
		LibraryPath: grid.UnknownArgument,
	}, status.Workers[0].Configuration)
	s.Require().Len(status.Servers, 1)
	s.Equal(11, status.Servers[0].PID)
	s.Equal(grid.UnknownArgument, status.Servers[0].Configuration.Address)
}

func (s *SupervisorSuite) TestStatusSurvivesProcessTableFailure() {
	s.table.FindShouldFail = true
	status := s.status()
	s.Empty(status.Servers)
	s.Empty(status.Workers)
}

func (s *SupervisorSuite) TestRestartedSupervisorSeesRunningProcesses() {
	start, err := s.supervisor.StartServer(s.ctx, &apimodels.StartServerRequest{
		Configuration: &apimodels.ServerConfiguration{Address: "127.0.0.1:1"},
	})
	s.Require().NoError(err)

	restarted, err := New(Options{BasePath: s.base}, s.table, NewMockSpawner(s.table))
	s.Require().NoError(err)
	status, err := restarted.GetStatus(s.ctx, &apimodels.SupervisorStatusRequest{})
	s.Require().NoError(err)
	s.Require().Len(status.Servers, 1)
	s.Equal(start.PID, status.Servers[0].PID)
}

func (s *SupervisorSuite) TestAcceptServiceLibrary() {
	service := &apimodels.ServiceDescriptor{ServiceID: 9, ServiceVersion: 2}
	resp, err := s.supervisor.AcceptServiceLibrary(s.ctx, &apimodels.AcceptServiceLibraryRequest{
		Service: service,
		Data:    []byte("library contents"),
	})
	s.Require().NoError(err)
	s.Require().Empty(resp.ErrorMessage)

	expected := filepath.Join(s.base, "libraries", "9", "2", grid.ServiceLibraryName)
	s.Equal(expected, resp.Path)
	data, err := os.ReadFile(expected)
	s.Require().NoError(err)
	s.Equal("library contents", string(data))

	resp, err = s.supervisor.AcceptServiceLibrary(s.ctx, &apimodels.AcceptServiceLibraryRequest{
		Service: service,
		Data:    []byte("replacement"),
	})
	s.Require().NoError(err)
	s.Require().Empty(resp.ErrorMessage)
	data, err = os.ReadFile(expected)
	s.Require().NoError(err)
	s.Equal("replacement", string(data))
}

func (s *SupervisorSuite) TestAcceptServiceLibraryErrorsAreInBand() {
	resp, err := s.supervisor.AcceptServiceLibrary(s.ctx, &apimodels.AcceptServiceLibraryRequest{Data: []byte("x")})
	s.NoError(err)
	s.Equal("no service library configuration given", resp.ErrorMessage)

	blocker := filepath.Join(s.base, grid.LibrariesDirectory, "5")
	s.Require().NoError(os.WriteFile(blocker, []byte("in the way"), 0644))
	resp, err = s.supervisor.AcceptServiceLibrary(s.ctx, &apimodels.AcceptServiceLibraryRequest{
		Service: &apimodels.ServiceDescriptor{ServiceID: 5, ServiceVersion: 1},
		Data:    []byte("x"),
	})
	s.NoError(err)
	s.NotEmpty(resp.ErrorMessage)
	s.Empty(resp.Path)
}
