package lifecycle

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/sprocio/sproc/internal/registry"
)

// ServiceInfo is a point-in-time observation of a running service.
type ServiceInfo struct {
	Name              string  `json:"name"`
	PID               int     `json:"pid"`
	Status            string  `json:"status"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryBytes       uint64  `json:"memory_bytes"`
	RunningForSeconds uint64  `json:"running_for_seconds"`
	Restarts          int     `json:"restarts"`
}

// Info inspects the named running service. It never mutates lifecycle
// state; a dead process is reported as not running and left for the
// supervision loop or the next start to reconcile.
func (e *Engine) Info(name string) (ServiceInfo, error) {
	rs, err := e.reg.Lookup(name)
	if err != nil {
		return ServiceInfo{}, err
	}
	if rs.Status != registry.Running || !alive(rs.PID) {
		return ServiceInfo{}, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	info := ServiceInfo{
		Name:     rs.Name,
		PID:      rs.PID,
		Status:   rs.Status.String(),
		Restarts: rs.Restarts,
	}
	if !rs.StartedAt.IsZero() {
		if up := time.Since(rs.StartedAt); up > 0 {
			info.RunningForSeconds = uint64(up.Seconds())
		}
	}
	p, err := process.NewProcess(int32(rs.PID))
	if err != nil {
		return ServiceInfo{}, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if mi, err := p.MemoryInfo(); err == nil && mi != nil {
		info.MemoryBytes = mi.RSS
	}
	return info, nil
}

// InfoAll inspects every tracked service, skipping the ones that are not
// currently running.
func (e *Engine) InfoAll() []ServiceInfo {
	var out []ServiceInfo
	for _, rs := range e.reg.Snapshot() {
		if info, err := e.Info(rs.Name); err == nil {
			out = append(out, info)
		}
	}
	return out
}
