package lifecycle

import (
	"errors"
	"fmt"

	"github.com/sprocio/sproc/internal/registry"
)

var (
	// ErrUnknownService is returned when a name is absent from the
	// resolved configuration.
	ErrUnknownService = errors.New("unknown service")
	// ErrDaemonRequired is returned by Spawn outside the daemon: without
	// the supervision loop a restart=true service would never be monitored.
	ErrDaemonRequired = errors.New("operation requires the control daemon (sproc serve)")

	// Re-exported registry sentinels so callers need one taxonomy.
	ErrAlreadyRunning = registry.ErrAlreadyRunning
	ErrNotRunning     = registry.ErrNotRunning
)

// SpawnError preserves the OS-level cause of a failed spawn for operator
// diagnosis.
type SpawnError struct {
	Name string
	Err  error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn %s: %v", e.Name, e.Err) }
func (e *SpawnError) Unwrap() error { return e.Err }

// Result is the per-name outcome of a batch operation. One failing service
// never prevents the others from being attempted.
type Result struct {
	Name string
	Err  error
}

// AnyFailed reports whether a batch had at least one failure.
func AnyFailed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}
