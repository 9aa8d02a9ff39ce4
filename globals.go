package grid

import (
	"runtime"
	"time"
)

// BuildRevision is set at link time.
var BuildRevision = ""

// ClientVersion is the version reported by the command line tools.
const ClientVersion = "2026-10-18"

// Executable names shared by the supervisor and the binaries it spawns. Status
// introspection matches running processes against these names exactly, so the
// cmd/ directories must keep producing binaries with the same names.
var (
	ServerExecutableName     = executableName("grid-server")
	WorkerExecutableName     = executableName("grid-worker")
	SupervisorExecutableName = executableName("grid-supervisor")
	ControlExecutableName    = executableName("grid-control")
)

// ServiceLibraryName is the file name under which an uploaded service library
// is stored inside its <service_id>/<service_version> directory.
var ServiceLibraryName = serviceLibraryName()

const (
	// LibrariesDirectory is the directory below the supervisor base path that
	// holds uploaded service libraries.
	LibrariesDirectory = "libraries"
	// LogsDirectory is the directory below the supervisor base path where
	// spawned processes write their logs.
	LogsDirectory = "logs"

	// ServiceFunctionSymbol is the symbol a Go plugin service library must
	// export.
	ServiceFunctionSymbol = "ServiceFunction"
	// NativeServiceFunctionSymbol is the C-ABI function any other shared
	// object service library must export.
	NativeServiceFunctionSymbol = "service_function"

	// EnvironmentPrefix prefixes every environment variable that overrides
	// a settings key, e.g. GRID_WORKER_POLL_INTERVAL.
	EnvironmentPrefix = "GRID"

	DefaultBrokerAddress     = "127.0.0.1:50051"
	DefaultSupervisorAddress = "127.0.0.1:50000"

	DefaultWorkerPollInterval     = time.Second
	DefaultWorkerRegisterAttempts = 5

	// UnknownArgument is reported by the supervisor in place of a string
	// argument missing from the argument vector of a process.
	UnknownArgument = "n/a"
)

// ValueFlagNames are the flags of the grid executables that take a value.
// The supervisor skips them, together with their values, when it reads the
// positional arguments of a running process.
var ValueFlagNames = []string{"conf", "config", "c", "level"}

// Process roles reported by the supervisor.
const (
	RoleServer = "server"
	RoleWorker = "worker"
)

// Logger names.
const (
	ServerLoggerName     = "grid.server"
	WorkerLoggerName     = "grid.worker"
	SupervisorLoggerName = "grid.supervisor"
	ControlLoggerName    = "grid.control"
)

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}

func serviceLibraryName() string {
	if runtime.GOOS == "windows" {
		return "service_library.dll"
	}
	return "service_library.so"
}
