package worker

import (
	"bytes"
	"context"
	"strings"

	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
)

type bufferCloser struct {
	*bytes.Buffer
}

func (bufferCloser) Close() error { return nil }

// commandExecutor runs the service library as an executable, once per job.
type commandExecutor struct {
	path    string
	manager jasper.Manager
}

func newCommandExecutor(path string) (*commandExecutor, error) {
	manager, err := jasper.NewSynchronizedManager(false)
	if err != nil {
		return nil, errors.Wrap(err, "creating process manager")
	}

	return &commandExecutor{path: path, manager: manager}, nil
}

func (e *commandExecutor) Execute(ctx context.Context, data []byte) ([]byte, error) {
	stdout := bufferCloser{&bytes.Buffer{}}
	stderr := bufferCloser{&bytes.Buffer{}}

	err := e.manager.CreateCommand(ctx).
		Add([]string{e.path}).
		SetInputBytes(data).
		SetOutputWriter(stdout).
		SetErrorWriter(stderr).
		Run(ctx)

	defer e.manager.Clear(ctx)

	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrapf(err, "running '%s': %s", e.path, msg)
		}
		return nil, errors.Wrapf(err, "running '%s'", e.path)
	}

	return stdout.Bytes(), nil
}
