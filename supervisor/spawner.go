package supervisor

import (
	"context"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/jasper"
	"github.com/mongodb/jasper/options"
	"github.com/pkg/errors"
)

// Spawner starts detached processes.
type Spawner interface {
	// Spawn starts the executable at path with args and the extra
	// environment variables, and returns its PID. The process outlives the
	// calling request.
	Spawn(ctx context.Context, path string, args []string, env map[string]string) (int, error)
}

type jasperSpawner struct {
	manager jasper.Manager
}

// NewSpawner returns a spawner backed by a jasper process manager, which
// reaps children when they exit.
func NewSpawner() (Spawner, error) {
	manager, err := jasper.NewSynchronizedManager(false)
	if err != nil {
		return nil, errors.Wrap(err, "creating process manager")
	}
	return &jasperSpawner{manager: manager}, nil
}

func (s *jasperSpawner) Spawn(ctx context.Context, path string, args []string, env map[string]string) (int, error) {
	opts := &options.Create{
		Args:        append([]string{path}, args...),
		Environment: env,
		Output: options.Output{
			SuppressOutput: true,
			SuppressError:  true,
		},
	}

	// Forget the children that have exited since the last spawn.
	s.manager.Clear(ctx)

	// The request context ends with the RPC; the child must not.
	proc, err := s.manager.CreateProcess(context.Background(), opts)
	if err != nil {
		return 0, errors.Wrapf(err, "spawning '%s'", path)
	}

	pid := proc.Info(ctx).PID
	grip.Info(message.Fields{
		"message": "spawned process",
		"path":    path,
		"args":    args,
		"pid":     pid,
	})

	return pid, nil
}
