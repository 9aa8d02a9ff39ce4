package operations

import (
	"context"
	"fmt"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/client"
	"github.com/evergreen-ci/grid/supervisor"
	"github.com/evergreen-ci/grid/worker"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Worker runs a worker for one service. Its positional arguments are the
// ones the supervisor passes: address, service ID, service version and
// library path.
func Worker() cli.Command {
	return cli.Command{
		Name:      "worker",
		Usage:     "run a worker executing jobs of one service",
		ArgsUsage: "<address> <service_id> <service_version> <library_path>",
		Before:    requireArgs(4, 4),
		Action: func(c *cli.Context) error {
			settings, err := getSettings(c)
			if err != nil {
				return errors.WithStack(err)
			}

			conf, err := workerConfiguration(c.Args())
			if err != nil {
				return errors.WithStack(err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			return errors.WithStack(runWorker(ctx, conf, settings.Worker))
		},
	}
}

// workerConfiguration parses the worker arguments strictly. The supervisor
// parses the same vector leniently when reporting status.
func workerConfiguration(args []string) (apimodels.WorkerConfiguration, error) {
	conf := supervisor.ParseWorkerArgs(args)

	catcher := grip.NewBasicCatcher()
	_, err := parseUint32("service ID", args[1])
	catcher.Add(err)
	_, err = parseUint32("service version", args[2])
	catcher.Add(err)
	catcher.Add(conf.Validate())
	catcher.NewWhen(args[3] == "", "library path must be specified")

	return conf, catcher.Resolve()
}

func runWorker(ctx context.Context, conf apimodels.WorkerConfiguration, settings grid.WorkerConfig) error {
	exec, err := worker.NewExecutor(conf.LibraryPath)
	if err != nil {
		return errors.Wrapf(err, "loading service library '%s'", conf.LibraryPath)
	}

	comm, err := client.Connect(ctx, client.Options{
		Address:          conf.Address,
		Description:      fmt.Sprintf("worker for service %s", conf.Service),
		RegisterAttempts: settings.RegisterAttempts,
	})
	if err != nil {
		return errors.Wrap(err, "connecting to broker")
	}
	defer func() {
		grip.Warning(message.WrapError(comm.Close(), message.Fields{
			"message": "closing broker connection",
			"address": conf.Address,
		}))
	}()

	w, err := worker.New(worker.Options{
		Service:          conf.Service,
		PollInterval:     settings.PollInterval,
		ImmediateResults: settings.ImmediateResults,
	}, comm, exec)
	if err != nil {
		return errors.WithStack(err)
	}

	return w.Start(ctx)
}
