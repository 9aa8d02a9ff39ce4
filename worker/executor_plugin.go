package worker

import (
	"context"
	"plugin"

	"github.com/evergreen-ci/grid"
	"github.com/pkg/errors"
)

// pluginExecutor calls the service function exported by a Go plugin.
type pluginExecutor struct {
	path string
	fn   func(context.Context, []byte) ([]byte, error)
}

func newPluginExecutor(path string) (*pluginExecutor, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading service library '%s'", path)
	}

	sym, err := p.Lookup(grid.ServiceFunctionSymbol)
	if err != nil {
		return nil, errors.Wrapf(err, "looking up '%s' in '%s'", grid.ServiceFunctionSymbol, path)
	}

	fn, err := serviceFunction(sym)
	if err != nil {
		return nil, errors.Wrapf(err, "service library '%s'", path)
	}

	return &pluginExecutor{path: path, fn: fn}, nil
}

// serviceFunction accepts the exported symbol either as a function or as a
// variable holding one, with or without a context parameter.
func serviceFunction(sym interface{}) (func(context.Context, []byte) ([]byte, error), error) {
	switch fn := sym.(type) {
	case func(context.Context, []byte) ([]byte, error):
		return fn, nil
	case *func(context.Context, []byte) ([]byte, error):
		return *fn, nil
	case func([]byte) ([]byte, error):
		return func(_ context.Context, data []byte) ([]byte, error) { return fn(data) }, nil
	case *func([]byte) ([]byte, error):
		inner := *fn
		return func(_ context.Context, data []byte) ([]byte, error) { return inner(data) }, nil
	default:
		return nil, errors.Errorf("symbol '%s' has unsupported type %T", grid.ServiceFunctionSymbol, sym)
	}
}

func (e *pluginExecutor) Execute(ctx context.Context, data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("service function panicked: %v", r)
		}
	}()

	out, err = e.fn(ctx, data)
	return out, errors.Wrap(err, "running service function")
}
