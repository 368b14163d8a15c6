//go:build unix

package lifecycle

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
	"time"
)

// alive probes liveness of a pid without reaping it. A zombie counts as
// dead: the process has exited even if nobody collected it yet.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// isZombie reports whether /proc/<pid>/status shows state Z. Always false
// on platforms without procfs.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// terminate signals the whole process group and waits for the OS to reap,
// escalating SIGTERM to SIGKILL after wait elapses. It returns once the
// process is observed dead (best effort after the kill escalation).
func terminate(pid int, wait time.Duration) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	if waitDead(pid, wait) {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	waitDead(pid, time.Second)
}

func waitDead(pid int, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !alive(pid)
}

// setProcessGroup makes the spawned child the leader of a fresh process
// group so terminate can signal the whole tree.
func setProcessGroup(attr *syscall.SysProcAttr) *syscall.SysProcAttr {
	if attr == nil {
		attr = &syscall.SysProcAttr{}
	}
	attr.Setpgid = true
	return attr
}
