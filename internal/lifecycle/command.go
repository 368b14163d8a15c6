package lifecycle

import (
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/sprocio/sproc/internal/config"
)

// buildCommand constructs the exec.Cmd for a service definition. It avoids
// invoking a shell when not necessary; when the command string contains
// shell metacharacters it falls back to /bin/sh -c, and an explicit leading
// "sh -c" is honored without double-wrapping.
func buildCommand(svc config.Service) *exec.Cmd {
	cmdStr := strings.TrimSpace(svc.Command)
	if cmdStr == "" {
		// validation rejects this at load time; keep a command that fails
		// cleanly just in case
		return exec.Command("/bin/false")
	}
	if after, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", after)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(parts[0], args...)
}

// parseExplicitShell detects "sh -c <ARG>" prefixes (with or without an
// absolute shell path) and returns the script verbatim, stripping one pair
// of surrounding quotes so redirections inside it still parse.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

// mergeEnv layers the service environment map over the inherited OS
// environment. Service entries come last, in sorted key order for
// deterministic spawns; os/exec resolves duplicates in their favor. A nil
// result means plain inheritance.
func mergeEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := os.Environ()
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
