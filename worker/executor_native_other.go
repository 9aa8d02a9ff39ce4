//go:build !(darwin || freebsd || linux) || android

package worker

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
)

type nativeExecutor struct{}

func newNativeExecutor(path string) (*nativeExecutor, error) {
	return nil, errors.Errorf("cannot load service library '%s': native libraries are not supported on %s", path, runtime.GOOS)
}

func (e *nativeExecutor) Execute(context.Context, []byte) ([]byte, error) {
	return nil, errors.New("native libraries are not supported")
}
