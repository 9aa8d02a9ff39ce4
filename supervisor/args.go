package supervisor

import (
	"strconv"
	"strings"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/utility"
)

// positional drops flags, and the values of the flags in
// grid.ValueFlagNames, so that only the positional arguments remain, in
// order. Everything after "--" is positional.
func positional(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return append(out, args[i+1:]...)
		case strings.HasPrefix(arg, "-"):
			if takesValue(arg) {
				i++
			}
		default:
			out = append(out, arg)
		}
	}
	return out
}

// takesValue reports whether the value of flag is the next argument.
func takesValue(flag string) bool {
	name := strings.TrimLeft(flag, "-")
	if strings.Contains(name, "=") {
		return false
	}
	return utility.StringSliceContains(grid.ValueFlagNames, name)
}

func stringAt(args []string, i int) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return grid.UnknownArgument
}

func uint32At(args []string, i int) uint32 {
	if i >= len(args) {
		return 0
	}
	v, err := strconv.ParseUint(args[i], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// ParseServerArgs recovers the configuration of a server process from its
// arguments. A missing address is reported as grid.UnknownArgument.
func ParseServerArgs(args []string) apimodels.ServerConfiguration {
	args = positional(args)
	return apimodels.ServerConfiguration{Address: stringAt(args, 0)}
}

// ParseWorkerArgs recovers the configuration of a worker process from its
// arguments. Missing or malformed values are replaced by placeholders
// rather than failing.
func ParseWorkerArgs(args []string) apimodels.WorkerConfiguration {
	args = positional(args)
	return apimodels.WorkerConfiguration{
		Address: stringAt(args, 0),
		Service: apimodels.ServiceDescriptor{
			ServiceID:      uint32At(args, 1),
			ServiceVersion: uint32At(args, 2),
		},
		LibraryPath: stringAt(args, 3),
	}
}
