package operations

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/broker"
	"github.com/evergreen-ci/grid/rpc"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/grip/recovery"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

const statusShutdownTimeout = 5 * time.Second

// Server runs the job/result broker. The address is the only positional
// argument, which is what the supervisor passes when it starts a server.
func Server() cli.Command {
	return cli.Command{
		Name:      "server",
		Usage:     "run the job/result broker",
		ArgsUsage: "[address]",
		Before:    requireArgs(0, 1),
		Action: func(c *cli.Context) error {
			settings, err := getSettings(c)
			if err != nil {
				return errors.WithStack(err)
			}

			addr := c.Args().First()
			if addr == "" {
				addr = grid.DefaultBrokerAddress
			}

			lis, err := rpc.Listen(addr)
			if err != nil {
				return errors.WithStack(err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			return errors.WithStack(runServer(ctx, lis, settings.Broker))
		},
	}
}

// runServer serves a new broker on lis, plus the HTTP status endpoint when a
// status port is configured, until the context is canceled.
func runServer(ctx context.Context, lis net.Listener, conf grid.BrokerConfig) error {
	b := broker.New()

	srv := rpc.NewServer(rpc.ServerMessageSizeOptions()...)
	rpc.RegisterBrokerServer(srv, rpc.NewBrokerService(b))
	closeService := rpc.StartService(ctx, lis, srv)
	defer func() {
		grip.Warning(message.WrapError(closeService(), message.Fields{
			"message": "closing broker service",
		}))
	}()

	grip.Info(message.Fields{
		"message":     "broker started",
		"address":     lis.Addr().String(),
		"status_port": conf.StatusPort,
		"revision":    grid.BuildRevision,
	})

	if conf.StatusPort == 0 {
		<-ctx.Done()
		return nil
	}

	handler, err := rpc.NewBrokerStatusHandler(b)
	if err != nil {
		return errors.WithStack(err)
	}
	statusServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", conf.StatusPort),
		Handler:           handler,
		ReadHeaderTimeout: time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer recovery.LogStackTraceAndContinue("broker status server")
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serving broker status")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		return errors.Wrap(statusServer.Shutdown(shutdownCtx), "shutting down broker status")
	})

	return g.Wait()
}
