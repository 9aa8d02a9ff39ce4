package supervisor

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrNoProcess is returned when no live process has the requested PID.
var ErrNoProcess = errors.New("no such process")

// ProcessInfo describes a live OS process.
type ProcessInfo struct {
	PID int
	// Name is the executable name.
	Name string
	// Args is the argument vector without the executable.
	Args []string
}

// ProcessTable reads and signals the OS process table. Every call reads the
// table afresh.
type ProcessTable interface {
	// Find returns the live processes whose executable name is one of
	// names, ordered by PID.
	Find(ctx context.Context, names ...string) ([]ProcessInfo, error)
	// Get returns the live process with the given PID or ErrNoProcess.
	Get(ctx context.Context, pid int) (*ProcessInfo, error)
	// Kill terminates the process immediately.
	Kill(ctx context.Context, pid int) error
}

type systemProcessTable struct{}

// NewProcessTable returns the process table of the running system.
func NewProcessTable() ProcessTable { return systemProcessTable{} }

func (systemProcessTable) Find(ctx context.Context, names ...string) ([]ProcessInfo, error) {
	wanted := map[string]bool{}
	for _, name := range names {
		wanted[name] = true
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing processes")
	}

	out := []ProcessInfo{}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !wanted[name] {
			// The process may have exited since the listing.
			continue
		}
		info, err := describe(ctx, p, name)
		if err != nil {
			continue
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })

	return out, nil
}

func (systemProcessTable) Get(ctx context.Context, pid int) (*ProcessInfo, error) {
	p, err := lookup(ctx, pid)
	if err != nil {
		return nil, err
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return nil, ErrNoProcess
	}

	return describe(ctx, p, name)
}

func (systemProcessTable) Kill(ctx context.Context, pid int) error {
	p, err := lookup(ctx, pid)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.KillWithContext(ctx), "killing process %d", pid)
}

func lookup(ctx context.Context, pid int) (*process.Process, error) {
	if pid <= 0 {
		return nil, ErrNoProcess
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, ErrNoProcess
	}
	return p, nil
}

// describe reads the argument vector of the process. Zombies are reported as
// missing.
func describe(ctx context.Context, p *process.Process, name string) (*ProcessInfo, error) {
	status, err := p.StatusWithContext(ctx)
	if err == nil {
		for _, s := range status {
			if s == process.Zombie {
				return nil, ErrNoProcess
			}
		}
	}

	cmdline, err := p.CmdlineSliceWithContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "reading arguments of process %d", p.Pid)
	}

	info := &ProcessInfo{PID: int(p.Pid), Name: name}
	if len(cmdline) > 1 {
		info.Args = cmdline[1:]
	}
	return info, nil
}
