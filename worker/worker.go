// Package worker runs the polling loop of a grid worker: it repeatedly asks
// the broker for a job of one service, computes it with an Executor and
// hands the result back.
package worker

import (
	"context"
	"time"

	"github.com/evergreen-ci/grid"
	"github.com/evergreen-ci/grid/apimodels"
	"github.com/evergreen-ci/grid/client"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const flushTimeout = 10 * time.Second

// Options configure a worker.
type Options struct {
	// Service is the descriptor the worker polls for.
	Service apimodels.ServiceDescriptor
	// PollInterval is how long the worker sleeps after an exchange that
	// returned no job.
	PollInterval time.Duration
	// ImmediateResults sends every result as soon as it is computed instead
	// of piggy-backing it on the next exchange.
	ImmediateResults bool
}

// Worker executes jobs for a single service, one at a time.
type Worker struct {
	opts Options
	comm client.Communicator
	exec Executor

	// pending is the result computed in the previous iteration that still
	// has to be delivered.
	pending *apimodels.Result
}

// New returns a worker that talks to the broker through comm.
func New(opts Options, comm client.Communicator, exec Executor) (*Worker, error) {
	if comm == nil {
		return nil, errors.New("worker requires a communicator")
	}
	if exec == nil {
		return nil, errors.New("worker requires an executor")
	}
	if opts.PollInterval < 0 {
		return nil, errors.New("poll interval cannot be negative")
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = grid.DefaultWorkerPollInterval
	}

	return &Worker{opts: opts, comm: comm, exec: exec}, nil
}

// Start runs the loop until the context is canceled or the broker cannot be
// reached. Cancellation is observed between jobs only; a job being executed
// always runs to completion. On a clean stop a result that was not yet
// delivered is flushed to the broker.
func (w *Worker) Start(ctx context.Context) error {
	grip.Info(message.Fields{
		"message":           "starting worker",
		"client_id":         w.comm.ClientID(),
		"service":           w.opts.Service.String(),
		"poll_interval":     w.opts.PollInterval.String(),
		"immediate_results": w.opts.ImmediateResults,
	})

	if err := w.loop(ctx); err != nil {
		return errors.WithStack(err)
	}

	return errors.Wrap(w.flush(ctx), "flushing pending result")
}

func (w *Worker) loop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			grip.Info("worker loop canceled")
			return nil
		case <-timer.C:
			if ctx.Err() != nil {
				grip.Info("worker loop canceled")
				return nil
			}

			job, err := w.comm.WorkerExchange(ctx, w.pending, &w.opts.Service)
			if err != nil {
				if ctx.Err() != nil || utility.IsContextError(errors.Cause(err)) {
					grip.Info("worker loop canceled during exchange")
					return nil
				}
				err = errors.Wrap(err, "exchanging with broker")
				grip.Error(err)
				return err
			}
			w.pending = nil

			if job == nil {
				timer.Reset(w.opts.PollInterval)
				continue
			}

			result := w.execute(ctx, job)
			if w.opts.ImmediateResults {
				if err = w.comm.SubmitResult(ctx, result); err != nil {
					if ctx.Err() != nil {
						w.pending = &result
						return nil
					}
					err = errors.Wrapf(err, "submitting result of job %d", job.ID)
					grip.Error(err)
					return err
				}
			} else {
				w.pending = &result
			}

			timer.Reset(0)
		}
	}
}

func (w *Worker) execute(ctx context.Context, job *apimodels.Job) apimodels.Result {
	start := time.Now()
	out, err := w.exec.Execute(context.WithoutCancel(ctx), job.Data)

	msg := message.Fields{
		"message":  "executed job",
		"job_id":   job.ID,
		"service":  job.Service.String(),
		"in_bytes": len(job.Data),
		"duration": time.Since(start).String(),
	}
	if err != nil {
		grip.Warning(message.WrapError(err, msg))
		return apimodels.Result{JobID: job.ID, ErrorMessage: err.Error()}
	}

	msg["out_bytes"] = len(out)
	grip.Debug(msg)

	return apimodels.Result{JobID: job.ID, Data: out}
}

// flush delivers the pending result with an exchange that carries no job
// query, so it cannot hand out another job.
func (w *Worker) flush(ctx context.Context) error {
	if w.pending == nil {
		return nil
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	job, err := w.comm.WorkerExchange(fctx, w.pending, nil)
	if err != nil {
		return errors.Wrapf(err, "delivering result of job %d", w.pending.JobID)
	}
	if job != nil {
		grip.Warning(message.Fields{
			"message": "broker returned a job to an exchange without a query",
			"job_id":  job.ID,
		})
	}

	grip.Info(message.Fields{
		"message": "flushed pending result",
		"job_id":  w.pending.JobID,
	})
	w.pending = nil

	return nil
}
