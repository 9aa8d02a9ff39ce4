package operations

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/client"
	"github.com/evergreen-ci/grid/rpc"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

const (
	addressFlagName  = "address"
	timeoutFlagName  = "timeout"
	intervalFlagName = "interval"

	defaultRunTimeout  = time.Minute
	defaultRunInterval = 250 * time.Millisecond
)

// Control returns the operator commands. Each command issues one supervisor
// or broker call and prints its result.
func Control() []cli.Command {
	return []cli.Command{
		supervisorCommand(cli.Command{
			Name:  "status",
			Usage: "list the servers and workers running on the supervisor host",
		}, 0, 0, supervisorStatus),
		supervisorCommand(cli.Command{
			Name:      "start-server",
			Usage:     "start a broker listening on the given address",
			ArgsUsage: "<address>",
		}, 1, 1, startServer),
		supervisorCommand(cli.Command{
			Name:      "start-worker",
			Usage:     "start a worker for a service; the library path defaults to the uploaded library",
			ArgsUsage: "<broker_address> <service_id> <service_version> [library_path]",
		}, 3, 4, startWorker),
		supervisorCommand(cli.Command{
			Name:      "stop-server",
			Usage:     "stop the broker with the given process ID",
			ArgsUsage: "<pid>",
		}, 1, 1, stopProcess(grid.RoleServer)),
		supervisorCommand(cli.Command{
			Name:      "stop-worker",
			Usage:     "stop the worker with the given process ID",
			ArgsUsage: "<pid>",
		}, 1, 1, stopProcess(grid.RoleWorker)),
		supervisorCommand(cli.Command{
			Name:      "upload",
			Usage:     "upload the library implementing a service",
			ArgsUsage: "<service_id> <service_version> <path>",
		}, 3, 3, uploadLibrary),
		brokerCommand(cli.Command{
			Name:  "broker-status",
			Usage: "print the clients, queues and mailboxes of a broker",
		}, 0, 0, brokerStatus),
		brokerCommand(cli.Command{
			Name:      "run",
			Usage:     "submit the contents of a file as a job and print its result",
			ArgsUsage: "<service_id> <service_version> <input_file>",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  timeoutFlagName,
					Usage: "how long to wait for the result",
					Value: defaultRunTimeout,
				},
				cli.DurationFlag{
					Name:  intervalFlagName,
					Usage: "how often to fetch results while waiting",
					Value: defaultRunInterval,
				},
			},
		}, 3, 3, runJob),
	}
}

type supervisorAction func(ctx context.Context, c *cli.Context, sv rpc.SupervisorClient, out io.Writer) error

type brokerAction func(ctx context.Context, c *cli.Context, comm client.Communicator, out io.Writer) error

func supervisorCommand(cmd cli.Command, minArgs, maxArgs int, action supervisorAction) cli.Command {
	cmd.Flags = append(cmd.Flags, cli.StringFlag{
		Name:  addressFlagName,
		Usage: "address of the supervisor",
		Value: grid.DefaultSupervisorAddress,
	})
	cmd.Before = requireArgs(minArgs, maxArgs)
	cmd.Action = func(c *cli.Context) error {
		conn, err := rpc.Dial(c.String(addressFlagName))
		if err != nil {
			return errors.WithStack(err)
		}
		defer func() {
			grip.Debug(message.WrapError(conn.Close(), message.Fields{
				"message": "closing supervisor connection",
			}))
		}()

		ctx, cancel := signalContext()
		defer cancel()

		return action(ctx, c, rpc.NewSupervisorClient(conn), c.App.Writer)
	}
	return cmd
}

func brokerCommand(cmd cli.Command, minArgs, maxArgs int, action brokerAction) cli.Command {
	cmd.Flags = append(cmd.Flags, cli.StringFlag{
		Name:  addressFlagName,
		Usage: "address of the broker",
		Value: grid.DefaultBrokerAddress,
	})
	cmd.Before = requireArgs(minArgs, maxArgs)
	cmd.Action = func(c *cli.Context) error {
		ctx, cancel := signalContext()
		defer cancel()

		comm, err := client.Connect(ctx, client.Options{
			Address:          c.String(addressFlagName),
			Description:      grid.ControlExecutableName,
			RegisterAttempts: 1,
		})
		if err != nil {
			return errors.Wrap(err, "connecting to broker")
		}
		defer func() {
			grip.Debug(message.WrapError(comm.Close(), message.Fields{
				"message": "closing broker connection",
			}))
		}()

		return action(ctx, c, comm, c.App.Writer)
	}
	return cmd
}

// inBand turns an error message reported in a response into an error.
func inBand(op, msg string) error {
	if msg == "" {
		return nil
	}
	return errors.Errorf("%s: %s", op, msg)
}

func newTable(out io.Writer) *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(out, 0, 0, 2, ' ', 0))
}

func supervisorStatus(ctx context.Context, _ *cli.Context, sv rpc.SupervisorClient, out io.Writer) error {
	resp, err := sv.GetStatus(ctx, &apimodels.SupervisorStatusRequest{})
	if err != nil {
		return errors.WithStack(err)
	}

	fmt.Fprintf(out, "Servers: %d\n", len(resp.Servers))
	if len(resp.Servers) > 0 {
		t := newTable(out)
		t.AddHeader("PID", "Address")
		for _, s := range resp.Servers {
			t.AddLine(s.PID, s.Configuration.Address)
		}
		t.Print()
	}

	fmt.Fprintf(out, "Workers: %d\n", len(resp.Workers))
	if len(resp.Workers) > 0 {
		t := newTable(out)
		t.AddHeader("PID", "Address", "Service", "Library")
		for _, w := range resp.Workers {
			t.AddLine(w.PID, w.Configuration.Address, w.Configuration.Service, w.Configuration.LibraryPath)
		}
		t.Print()
	}

	return nil
}

func startServer(ctx context.Context, c *cli.Context, sv rpc.SupervisorClient, out io.Writer) error {
	resp, err := sv.StartServer(ctx, &apimodels.StartServerRequest{
		Configuration: &apimodels.ServerConfiguration{Address: c.Args().Get(0)},
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if err = inBand("starting server", resp.ErrorMessage); err != nil {
		return err
	}

	fmt.Fprintf(out, "started server with pid %d\n", resp.PID)
	return nil
}

func startWorker(ctx context.Context, c *cli.Context, sv rpc.SupervisorClient, out io.Writer) error {
	service, err := serviceDescriptor(c.Args().Get(1), c.Args().Get(2))
	if err != nil {
		return errors.WithStack(err)
	}

	resp, err := sv.StartWorker(ctx, &apimodels.StartWorkerRequest{
		Configuration: &apimodels.WorkerConfiguration{
			Address:     c.Args().Get(0),
			Service:     service,
			LibraryPath: c.Args().Get(3),
		},
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if err = inBand("starting worker", resp.ErrorMessage); err != nil {
		return err
	}

	fmt.Fprintf(out, "started worker for service %s with pid %d\n", service, resp.PID)
	return nil
}

func stopProcess(role string) supervisorAction {
	return func(ctx context.Context, c *cli.Context, sv rpc.SupervisorClient, out io.Writer) error {
		pid, err := parsePID(c.Args().Get(0))
		if err != nil {
			return errors.WithStack(err)
		}

		req := &apimodels.StopProcessRequest{PID: pid}
		var resp *apimodels.StopProcessResponse
		switch role {
		case grid.RoleServer:
			resp, err = sv.StopServer(ctx, req)
		case grid.RoleWorker:
			resp, err = sv.StopWorker(ctx, req)
		default:
			return errors.Errorf("unknown role '%s'", role)
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if err = inBand("stopping "+role, resp.ErrorMessage); err != nil {
			return err
		}

		fmt.Fprintf(out, "stopped %s with pid %d\n", role, pid)
		return nil
	}
}

func uploadLibrary(ctx context.Context, c *cli.Context, sv rpc.SupervisorClient, out io.Writer) error {
	service, err := serviceDescriptor(c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return errors.WithStack(err)
	}

	fn := c.Args().Get(2)
	data, err := os.ReadFile(fn)
	if err != nil {
		return errors.Wrapf(err, "reading service library '%s'", fn)
	}

	resp, err := sv.AcceptServiceLibrary(ctx, &apimodels.AcceptServiceLibraryRequest{
		Service: &service,
		Data:    data,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if err = inBand("uploading service library", resp.ErrorMessage); err != nil {
		return err
	}

	fmt.Fprintf(out, "uploaded %s for service %s to %s\n", humanize.Bytes(uint64(len(data))), service, resp.Path)
	return nil
}

func brokerStatus(ctx context.Context, _ *cli.Context, comm client.Communicator, out io.Writer) error {
	resp, err := comm.Status(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = io.WriteString(out, resp.Text)
	return errors.WithStack(err)
}

func runJob(ctx context.Context, c *cli.Context, comm client.Communicator, out io.Writer) error {
	service, err := serviceDescriptor(c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return errors.WithStack(err)
	}

	fn := c.Args().Get(2)
	data, err := os.ReadFile(fn)
	if err != nil {
		return errors.Wrapf(err, "reading job input '%s'", fn)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Duration(timeoutFlagName))
	defer cancel()

	result, err := submitAndWait(ctx, comm, service, data, c.Duration(intervalFlagName))
	if err != nil {
		return errors.WithStack(err)
	}
	if result.Failed() {
		return errors.Errorf("job %d failed: %s", result.JobID, result.ErrorMessage)
	}

	_, err = out.Write(result.Data)
	return errors.WithStack(err)
}

// submitAndWait submits a job and fetches results until the one for that job
// arrives. Results of other jobs of this client are logged and discarded.
func submitAndWait(ctx context.Context, comm client.Communicator, service apimodels.ServiceDescriptor, data []byte, interval time.Duration) (*apimodels.Result, error) {
	jobID, err := comm.SubmitJob(ctx, service, data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	grip.Info(message.Fields{
		"message": "submitted job",
		"job_id":  jobID,
		"service": service.String(),
		"bytes":   len(data),
	})

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for the result of job %d", jobID)
		case <-timer.C:
			results, err := comm.FetchResults(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, errors.Wrapf(ctx.Err(), "waiting for the result of job %d", jobID)
				}
				return nil, errors.WithStack(err)
			}
			for i := range results {
				if results[i].JobID == jobID {
					return &results[i], nil
				}
				grip.Warning(message.Fields{
					"message": "discarding result of another job",
					"job_id":  results[i].JobID,
				})
			}
			timer.Reset(interval)
		}
	}
}

func serviceDescriptor(id, version string) (apimodels.ServiceDescriptor, error) {
	serviceID, err := parseUint32("service ID", id)
	if err != nil {
		return apimodels.ServiceDescriptor{}, err
	}
	serviceVersion, err := parseUint32("service version", version)
	if err != nil {
		return apimodels.ServiceDescriptor{}, err
	}
	return apimodels.ServiceDescriptor{ServiceID: serviceID, ServiceVersion: serviceVersion}, nil
}
