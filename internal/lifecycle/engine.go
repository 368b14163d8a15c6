// Package lifecycle spawns, supervises and stops the services declared in
// the pinned configuration. All process state flows through the registry;
// the engine adds the OS side: exec, signals, reaping and output capture.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/history"
	"github.com/sprocio/sproc/internal/metrics"
	"github.com/sprocio/sproc/internal/registry"
)

// DefaultTerminateWait is how long a stop waits after SIGTERM before
// escalating to SIGKILL.
const DefaultTerminateWait = 2 * time.Second

// Options tunes engine construction.
type Options struct {
	// Daemon marks a long-lived engine. Daemon engines capture service
	// output to rotating log files and reap children directly; a single-shot
	// CLI engine lets children inherit the terminal and relies on liveness
	// probes instead.
	Daemon bool
	Logger *slog.Logger
	// History receives lifecycle audit events when non-nil.
	History history.Sink
	// TerminateWait overrides DefaultTerminateWait when positive.
	TerminateWait time.Duration
}

// Engine executes lifecycle operations against one configuration.
type Engine struct {
	mu     sync.Mutex
	cfg    *config.Config
	reg    *registry.Registry
	log    *slog.Logger
	sink   history.Sink
	daemon bool
	wait   time.Duration
}

// New builds an engine over cfg and hydrates the registry from the
// persisted service states, so single-shot invocations see processes
// started by earlier ones.
func New(cfg *config.Config, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	wait := opts.TerminateWait
	if wait <= 0 {
		wait = DefaultTerminateWait
	}
	e := &Engine{
		cfg:    cfg,
		reg:    registry.New(),
		log:    log,
		sink:   opts.History,
		daemon: opts.Daemon,
		wait:   wait,
	}
	for name, st := range cfg.ServiceStates {
		e.reg.Hydrate(name, st.PID, registry.ParseStatus(st.Status), st.StartedAt)
	}
	return e
}

// Registry exposes the process table, mainly for the control daemon.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Config returns the engine's current configuration.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig swaps the configuration after an install, uninstall or pull.
// Registry entries are untouched: a removed definition keeps its running
// process until an explicit kill.
func (e *Engine) SetConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *Engine) service(name string) (config.Service, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	svc, ok := e.cfg.Services[name]
	return svc, ok
}

func (e *Engine) logConfig() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.cfg
}

// Run starts each named service, collecting a per-name result.
func (e *Engine) Run(names []string) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, Result{Name: name, Err: e.startOne(name)})
	}
	return results
}

// RunAll starts every configured service in name order.
func (e *Engine) RunAll() []Result {
	return e.Run(e.configuredNames())
}

// Spawn is Run for restart-supervised services and therefore only valid
// inside the daemon.
func (e *Engine) Spawn(names []string) []Result {
	if !e.daemon {
		results := make([]Result, 0, len(names))
		for _, name := range names {
			results = append(results, Result{Name: name, Err: ErrDaemonRequired})
		}
		return results
	}
	return e.Run(names)
}

// Kill stops each named service, collecting a per-name result.
func (e *Engine) Kill(names []string) []Result {
	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, Result{Name: name, Err: e.killOne(name)})
	}
	return results
}

// KillAll stops every service the registry currently tracks as running.
func (e *Engine) KillAll() []Result {
	var names []string
	for _, rs := range e.reg.Snapshot() {
		if rs.Status == registry.Running {
			names = append(names, rs.Name)
		}
	}
	return e.Kill(names)
}

func (e *Engine) configuredNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.cfg.Services))
	for name := range e.cfg.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) startOne(name string) error {
	svc, ok := e.service(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	// A hydrated "running" state may be stale if the process died while no
	// sproc was alive to observe it. Clear it before refusing the start.
	if rs, err := e.reg.Lookup(name); err == nil && rs.Status == registry.Running && !alive(rs.PID) {
		e.reg.MarkExited(name, rs.PID)
	}

	cmd, writers, err := e.spawn(name, svc)
	if err != nil {
		return err
	}
	pid := cmd.Process.Pid
	if err := e.reg.Register(name, pid, cmd); err != nil {
		// Lost a concurrent start race; the fresh process must not leak.
		terminate(pid, e.wait)
		go reapOrphan(cmd, writers)
		return err
	}
	metrics.IncStart(name)
	metrics.SetRunning(e.reg.RunningCount())
	e.record(history.EventStart, name, pid)
	e.log.Info("service started", "name", name, "pid", pid)
	if e.daemon {
		go e.reap(name, cmd, writers)
	}
	e.persistStates()
	return nil
}

// spawn builds and starts the process without touching the registry.
func (e *Engine) spawn(name string, svc config.Service) (*exec.Cmd, []io.WriteCloser, error) {
	cmd := buildCommand(svc)
	cmd.Dir = svc.WorkingDirectory
	cmd.Env = mergeEnv(svc.Environment)
	cmd.SysProcAttr = setProcessGroup(cmd.SysProcAttr)

	var writers []io.WriteCloser
	if e.daemon {
		stdout, stderr, err := e.logConfig().Log.Writers(name)
		if err != nil {
			return nil, nil, &SpawnError{Name: name, Err: err}
		}
		if stdout != nil {
			cmd.Stdout, cmd.Stderr = stdout, stderr
			writers = []io.WriteCloser{stdout, stderr}
		}
	} else {
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	}
	if err := cmd.Start(); err != nil {
		closeAll(writers)
		return nil, nil, &SpawnError{Name: name, Err: err}
	}
	return cmd, writers, nil
}

// reap collects the child's exit and classifies it. An exit with the stop
// mark set is an operator kill in flight; everything else is a crash.
func (e *Engine) reap(name string, cmd *exec.Cmd, writers []io.WriteCloser) {
	err := cmd.Wait()
	closeAll(writers)
	pid := cmd.Process.Pid
	if e.reg.MarkExited(name, pid) {
		metrics.IncCrash(name)
		metrics.SetRunning(e.reg.RunningCount())
		e.record(history.EventCrash, name, pid)
		e.log.Warn("service exited unexpectedly", "name", name, "pid", pid, "err", err)
		e.persistStates()
	}
}

func reapOrphan(cmd *exec.Cmd, writers []io.WriteCloser) {
	_ = cmd.Wait()
	closeAll(writers)
}

func closeAll(writers []io.WriteCloser) {
	for _, w := range writers {
		if w != nil {
			_ = w.Close()
		}
	}
}

func (e *Engine) killOne(name string) error {
	// The stop mark and the supervision loop share the registry lock, so a
	// crashed service can never be restarted after this point.
	rs, err := e.reg.RequestStop(name)
	if err != nil {
		return err
	}
	if rs.PID > 0 && alive(rs.PID) {
		terminate(rs.PID, e.wait)
	}
	e.reg.Remove(name)
	metrics.IncStop(name)
	metrics.SetRunning(e.reg.RunningCount())
	e.record(history.EventStop, name, rs.PID)
	e.log.Info("service stopped", "name", name, "pid", rs.PID)
	e.persistStates()
	return nil
}

// persistStates flushes the registry into the pinned document so the next
// single-shot invocation sees it.
func (e *Engine) persistStates() {
	states := make(map[string]config.State)
	for _, rs := range e.reg.Snapshot() {
		states[rs.Name] = config.State{
			Status:    rs.Status.String(),
			PID:       rs.PID,
			StartedAt: rs.StartedAt,
		}
	}
	if err := config.UpdateStates(states); err != nil {
		e.log.Warn("persist service states", "err", err)
	}
}

func (e *Engine) record(t history.EventType, name string, pid int) {
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := history.Event{Type: t, OccurredAt: time.Now(), Name: name, PID: pid}
	if err := e.sink.Send(ctx, ev); err != nil {
		e.log.Warn("record history event", "event", t, "name", name, "err", err)
	}
}
