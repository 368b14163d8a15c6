// Package registry is the single source of truth for which services are
// currently running. Entries are owned exclusively by the registry; the
// lifecycle engine and the control daemon only ever see copies and mutate
// through registry operations.
package registry

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning enforces at-most-one live process per service name.
	ErrAlreadyRunning = errors.New("service is already running")
	// ErrNotRunning is returned when a name has no live entry.
	ErrNotRunning = errors.New("service is not running")
)

// Status is the lifecycle state of a tracked service.
type Status int

const (
	Stopped Status = iota
	Running
	Crashed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Crashed:
		return "crashed"
	default:
		return "stopped"
	}
}

// ParseStatus maps a persisted status string back to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "running":
		return Running
	case "crashed":
		return Crashed
	default:
		return Stopped
	}
}

// RunningService is the public copy of a registry entry.
type RunningService struct {
	Name          string
	PID           int
	Status        Status
	StartedAt     time.Time
	StopRequested bool
	Restarts      int
}

// entry is the registry-private record. cmd is non-nil only when this
// process spawned the child and therefore owns the reap.
type entry struct {
	RunningService
	cmd        *exec.Cmd
	restarting bool
}

// Registry is a mutex-protected table of service name to live process
// state. A single table lock is deliberate: service cardinality is low and
// blocking OS waits never happen under it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Registry { return &Registry{entries: make(map[string]*entry)} }

// Register records a newly spawned process. cmd may be nil when the entry
// is hydrated from persisted state rather than a spawn in this process.
func (r *Registry) Register(name string, pid int, cmd *exec.Cmd) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok && e.Status == Running {
		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, name, e.PID)
	}
	r.entries[name] = &entry{
		RunningService: RunningService{
			Name:      name,
			PID:       pid,
			Status:    Running,
			StartedAt: time.Now(),
		},
		cmd: cmd,
	}
	return nil
}

// Hydrate seeds the table from persisted state. Existing live entries are
// never overwritten.
func (r *Registry) Hydrate(name string, pid int, status Status, startedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok && e.Status == Running {
		return
	}
	r.entries[name] = &entry{RunningService: RunningService{
		Name:      name,
		PID:       pid,
		Status:    status,
		StartedAt: startedAt,
	}}
}

// Lookup returns the current entry for name.
func (r *Registry) Lookup(name string) (RunningService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return RunningService{}, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	return e.RunningService, nil
}

// RequestStop marks the operator's intent to stop name and returns the
// entry to signal. Any tracked entry is stoppable: a Crashed entry must
// accept the stop too, or a kill landing between a death and the next
// supervision tick would error while the loop respawns the service. The
// mark happens under the table lock, so the loop can never mistake this
// stop for a crash to restart.
func (r *Registry) RequestStop(name string) (RunningService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return RunningService{}, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	e.StopRequested = true
	return e.RunningService, nil
}

// MarkExited transitions a running entry to Crashed after its process died
// without an operator stop. The pid guard makes the transition idempotent
// when both the reaper and the supervision loop observe the same death.
func (r *Registry) MarkExited(name string, pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok || e.Status != Running || e.PID != pid || e.StopRequested {
		return false
	}
	e.Status = Crashed
	e.cmd = nil
	return true
}

// Remove deletes the entry after a confirmed stop.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// BeginRestart claims a crashed entry for respawning. It returns false when
// the entry is gone, still running, already claimed, or has a stop
// requested — the same lock span an operator kill uses to set its mark.
func (r *Registry) BeginRestart(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok || e.Status != Crashed || e.restarting || e.StopRequested {
		return false
	}
	e.restarting = true
	return true
}

// CompleteRestart installs the respawned process. It reports false when a
// stop arrived during the spawn window, in which case the caller must kill
// the fresh process instead of registering it.
func (r *Registry) CompleteRestart(name string, pid int, cmd *exec.Cmd) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return false
	}
	e.restarting = false
	if e.StopRequested {
		return false
	}
	e.Status = Running
	e.PID = pid
	e.StartedAt = time.Now()
	e.Restarts++
	e.cmd = cmd
	return true
}

// AbortRestart releases a restart claim after a failed spawn.
func (r *Registry) AbortRestart(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.restarting = false
	}
}

// Cmd returns the exec handle for name when this process owns the child.
func (r *Registry) Cmd(name string) *exec.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e.cmd
	}
	return nil
}

// Snapshot returns all entries ordered by name.
func (r *Registry) Snapshot() []RunningService {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunningService, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.RunningService)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunningCount reports how many entries are currently Running.
func (r *Registry) RunningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Status == Running {
			n++
		}
	}
	return n
}
