package supervisor

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MockProcessTable is an in-memory process table. MockSpawner adds to it.
type MockProcessTable struct {
	Processes map[int]ProcessInfo

	// mock behavior
	FindShouldFail bool
	KillShouldFail bool

	// data collected by mocked methods
	Killed []int

	mu sync.Mutex
}

func NewMockProcessTable() *MockProcessTable {
	return &MockProcessTable{Processes: map[int]ProcessInfo{}}
}

func (t *MockProcessTable) Find(_ context.Context, names ...string) ([]ProcessInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FindShouldFail {
		return nil, errors.New("mock process table failed")
	}

	out := []ProcessInfo{}
	for _, proc := range t.Processes {
		for _, name := range names {
			if proc.Name == name {
				out = append(out, proc)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })

	return out, nil
}

func (t *MockProcessTable) Get(_ context.Context, pid int) (*ProcessInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	proc, ok := t.Processes[pid]
	if !ok {
		return nil, ErrNoProcess
	}
	return &proc, nil
}

func (t *MockProcessTable) Kill(_ context.Context, pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.KillShouldFail {
		return errors.New("mock kill failed")
	}
	if _, ok := t.Processes[pid]; !ok {
		return ErrNoProcess
	}
	delete(t.Processes, pid)
	t.Killed = append(t.Killed, pid)
	return nil
}

// MockSpawner records spawn requests and registers the spawned processes in
// its table.
type MockSpawner struct {
	Table   *MockProcessTable
	NextPID int

	// mock behavior
	SpawnShouldFail bool

	// data collected by mocked methods
	Environments []map[string]string

	mu sync.Mutex
}

func NewMockSpawner(table *MockProcessTable) *MockSpawner {
	return &MockSpawner{Table: table, NextPID: 1000}
}

func (s *MockSpawner) Spawn(_ context.Context, path string, args []string, env map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SpawnShouldFail {
		return 0, errors.Errorf("mock spawn of '%s' failed", path)
	}

	pid := s.NextPID
	s.NextPID++
	s.Environments = append(s.Environments, env)

	s.Table.mu.Lock()
	s.Table.Processes[pid] = ProcessInfo{
		PID:  pid,
		Name: filepath.Base(path),
		Args: append([]string{}, args...),
	}
	s.Table.mu.Unlock()

	return pid, nil
}
