package operations

import (
	"context"
	"net"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/rpc"
	"github.com/evergreen-ci/grid/supervisor"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Supervisor runs the process supervisor.
func Supervisor() cli.Command {
	return cli.Command{
		Name:      "supervisor",
		Usage:     "run the process supervisor of a host",
		ArgsUsage: "[address]",
		Before:    requireArgs(0, 1),
		Action: func(c *cli.Context) error {
			settings, err := getSettings(c)
			if err != nil {
				return errors.WithStack(err)
			}

			addr := c.Args().First()
			if addr == "" {
				addr = grid.DefaultSupervisorAddress
			}

			spawner, err := supervisor.NewSpawner()
			if err != nil {
				return errors.WithStack(err)
			}
			sv, err := supervisor.New(supervisor.Options{
				BasePath: settings.Supervisor.BasePath,
				LogLevel: settings.Logging.Level,
				// An explicit prefix is handed down; otherwise children log
				// below the base path.
				LogPrefix: settings.Logging.Prefix,
			}, supervisor.NewProcessTable(), spawner)
			if err != nil {
				return errors.Wrap(err, "creating supervisor")
			}

			lis, err := rpc.Listen(addr)
			if err != nil {
				return errors.WithStack(err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			return errors.WithStack(runSupervisor(ctx, lis, sv))
		},
	}
}

func runSupervisor(ctx context.Context, lis net.Listener, srv rpc.SupervisorServer) error {
	grpcServer := rpc.NewServer(rpc.ServerMessageSizeOptions()...)
	rpc.RegisterSupervisorServer(grpcServer, srv)
	closeService := rpc.StartService(ctx, lis, grpcServer)

	grip.Info(message.Fields{
		"message":  "supervisor started",
		"address":  lis.Addr().String(),
		"revision": grid.BuildRevision,
	})

	<-ctx.Done()
	return errors.Wrap(closeService(), "closing supervisor service")
}
