//go:build (darwin || freebsd || linux) && !android

package worker

import (
	"context"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/evergreen-ci/grid"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// nativeServiceFunction is the C entry point
//
//	void service_function(const void *data_in, long long size_in, void *data_out, long long size_out);
//
// The caller owns both buffers.
type nativeServiceFunction func(dataIn unsafe.Pointer, sizeIn int64, dataOut unsafe.Pointer, sizeOut int64)

// nativeExecutor calls the C-ABI service function of a shared library.
type nativeExecutor struct {
	path   string
	handle uintptr
	fn     nativeServiceFunction
}

func newNativeExecutor(path string) (*nativeExecutor, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, errors.Wrapf(err, "loading service library '%s'", path)
	}

	sym, err := purego.Dlsym(handle, grid.NativeServiceFunctionSymbol)
	if err != nil {
		catcher := grip.NewBasicCatcher()
		catcher.Wrapf(err, "looking up '%s' in '%s'", grid.NativeServiceFunctionSymbol, path)
		catcher.Wrapf(purego.Dlclose(handle), "unloading service library '%s'", path)
		return nil, catcher.Resolve()
	}

	e := &nativeExecutor{path: path, handle: handle}
	purego.RegisterFunc(&e.fn, sym)

	return e, nil
}

// Execute hands the service function an output buffer as large as the input
// and returns that buffer whole.
func (e *nativeExecutor) Execute(_ context.Context, data []byte) ([]byte, error) {
	out := make([]byte, len(data))

	e.fn(bytesPointer(data), int64(len(data)), bytesPointer(out), int64(len(out)))
	runtime.KeepAlive(data)
	runtime.KeepAlive(out)

	return out, nil
}

func bytesPointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}
