package worker

import (
	"context"
	"debug/buildinfo"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Executor computes the result of one job. Implementations need not be safe
// for concurrent use; the worker runs one job at a time.
type Executor interface {
	Execute(ctx context.Context, data []byte) ([]byte, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(context.Context, []byte) ([]byte, error)

func (f ExecutorFunc) Execute(ctx context.Context, data []byte) ([]byte, error) {
	return f(ctx, data)
}

// NewExecutor returns the executor for the service library at path. Shared
// objects are loaded in process: Go plugins through their ServiceFunction,
// any other library through its C-ABI service_function. Any other file is
// run as a command that reads the job from standard input and writes the
// result to standard output.
func NewExecutor(path string) (Executor, error) {
	if path == "" {
		return nil, errors.New("service library path must be specified")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "finding service library '%s'", path)
	}
	if info.IsDir() {
		return nil, errors.Errorf("service library '%s' is a directory", path)
	}

	var exec Executor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".so", ".dll", ".dylib":
		if isGoPlugin(path) {
			exec, err = newPluginExecutor(path)
		} else {
			exec, err = newNativeExecutor(path)
		}
	default:
		exec, err = newCommandExecutor(path)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return exec, nil
}

// isGoPlugin reports whether the shared object at path was built by the Go
// toolchain. The runtime aborts when plugin.Open is given any other library.
func isGoPlugin(path string) bool {
	_, err := buildinfo.ReadFile(path)
	return err == nil
}
