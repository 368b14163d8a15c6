package lifecycle

import (
	"context"
	"time"

	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/history"
	"github.com/sprocio/sproc/internal/metrics"
	"github.com/sprocio/sproc/internal/registry"
)

// Supervise runs the fixed-interval supervision loop until ctx is
// cancelled. Each pass detects dead processes and respawns crashed
// restart=true services; the interval bounds the restart rate of a service
// that crashes immediately, so a broken command cannot spin the loop.
func (e *Engine) Supervise(ctx context.Context) {
	interval := e.Config().Server.SuperviseInterval
	if interval <= 0 {
		interval = config.DefaultSuperviseInterval
	}
	e.log.Info("supervision loop started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("supervision loop stopped")
			return
		case <-ticker.C:
			e.superviseOnce()
		}
	}
}

// superviseOnce performs a single pass: crash detection first, then
// restarts, so a death and its respawn can land in the same tick.
func (e *Engine) superviseOnce() {
	changed := false
	for _, rs := range e.reg.Snapshot() {
		if rs.Status != registry.Running || alive(rs.PID) {
			continue
		}
		// Covers hydrated entries and externally killed processes; children
		// reaped by this daemon are usually marked by reap first, and the
		// pid guard makes the double observation harmless.
		if e.reg.MarkExited(rs.Name, rs.PID) {
			metrics.IncCrash(rs.Name)
			e.record(history.EventCrash, rs.Name, rs.PID)
			e.log.Warn("service found dead", "name", rs.Name, "pid", rs.PID)
			changed = true
		}
	}
	// A kill issued by another sproc process surfaces through the pinned
	// document, not through this registry. Read it once per pass so a stop
	// recorded there wins over a respawn.
	var persisted map[string]config.State
	if pinned, err := config.LoadPinned(); err == nil {
		persisted = pinned.ServiceStates
	}
	for _, rs := range e.reg.Snapshot() {
		if rs.Status != registry.Crashed || rs.StopRequested {
			continue
		}
		if stoppedExternally(persisted, rs.Name) {
			if _, err := e.reg.RequestStop(rs.Name); err == nil {
				e.reg.Remove(rs.Name)
				metrics.IncStop(rs.Name)
				e.record(history.EventStop, rs.Name, rs.PID)
				e.log.Info("service stopped externally", "name", rs.Name, "pid", rs.PID)
				changed = true
			}
			continue
		}
		svc, ok := e.service(rs.Name)
		if !ok || !svc.Restart {
			continue
		}
		if e.restartOne(rs.Name, svc) {
			changed = true
		}
	}
	metrics.SetRunning(e.reg.RunningCount())
	if changed {
		e.persistStates()
	}
}

// stoppedExternally reports whether the persisted states no longer track
// name as alive: an operator kill in another process removes the entry (or
// leaves it stopped) after the process is confirmed dead.
func stoppedExternally(persisted map[string]config.State, name string) bool {
	if persisted == nil {
		return false
	}
	st, ok := persisted[name]
	if !ok {
		return true
	}
	return registry.ParseStatus(st.Status) == registry.Stopped
}

// restartOne respawns one crashed service under the registry's restart
// claim. The claim is taken before the spawn and resolved after it, so a
// kill arriving in the window wins: the fresh process is torn down instead
// of being installed.
func (e *Engine) restartOne(name string, svc config.Service) bool {
	if !e.reg.BeginRestart(name) {
		return false
	}
	cmd, writers, err := e.spawn(name, svc)
	if err != nil {
		e.reg.AbortRestart(name)
		e.log.Error("restart failed", "name", name, "err", err)
		return false
	}
	pid := cmd.Process.Pid
	if !e.reg.CompleteRestart(name, pid, cmd) {
		terminate(pid, e.wait)
		go reapOrphan(cmd, writers)
		e.log.Info("restart abandoned, stop requested", "name", name, "pid", pid)
		return false
	}
	metrics.IncRestart(name)
	e.record(history.EventRestart, name, pid)
	e.log.Info("service restarted", "name", name, "pid", pid)
	go e.reap(name, cmd, writers)
	return true
}
