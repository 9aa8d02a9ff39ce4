package operations

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/evergreen-ci/grid"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

const (
	confFlagName  = "conf"
	levelFlagName = "level"

	settingsMetadataKey = "settings"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  joinFlagNames(confFlagName, "config", "c"),
			Usage: "path to a grid settings file (optional)",
		},
		cli.StringFlag{
			Name:  levelFlagName,
			Usage: "lowest visible log level: 'emergency|alert|critical|error|warning|notice|info|debug|trace' (overrides the settings)",
		},
	}
}

// NewApp returns an application that loads the settings and configures a
// logger named loggerName before running any of its commands.
func NewApp(loggerName, usage string, commands ...cli.Command) *cli.App {
	app := cli.NewApp()
	app.Usage = usage
	app.Version = grid.ClientVersion
	app.Flags = globalFlags()
	app.Commands = commands
	app.Before = setupApp(loggerName)

	return app
}

// NewCommandApp returns an application that runs cmd directly, taking the
// positional arguments of cmd as its own.
func NewCommandApp(loggerName string, cmd cli.Command) *cli.App {
	app := NewApp(loggerName, cmd.Usage)
	app.ArgsUsage = cmd.ArgsUsage
	app.Flags = append(app.Flags, cmd.Flags...)
	app.Before = mergeBeforeFuncs(setupApp(loggerName), cmd.Before)
	app.Action = cmd.Action

	return app
}

func setupApp(loggerName string) cli.BeforeFunc {
	return func(c *cli.Context) error {
		settings, err := grid.NewSettings(c.String(confFlagName))
		if err != nil {
			return errors.Wrap(err, "loading settings")
		}
		if l := c.String(levelFlagName); l != "" {
			settings.Logging.Level = l
		}

		if c.App.Metadata == nil {
			c.App.Metadata = map[string]interface{}{}
		}
		c.App.Metadata[settingsMetadataKey] = settings

		return errors.Wrap(loggingSetup(loggerName, settings.Logging.Prefix, settings.Logging.Level), "setting up logging")
	}
}

// getSettings returns the settings loaded before the command ran.
func getSettings(c *cli.Context) (*grid.Settings, error) {
	settings, ok := c.App.Metadata[settingsMetadataKey].(*grid.Settings)
	if !ok || settings == nil {
		return nil, errors.New("settings were not loaded")
	}
	return settings, nil
}

// signalContext returns a context that is canceled on SIGTERM or an
// interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go listenForSignals(ctx, cancel)
	return ctx, cancel
}

func listenForSignals(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		grip.Infof("received %s, shutting down", sig)
		cancel()
	case <-ctx.Done():
	}
}
