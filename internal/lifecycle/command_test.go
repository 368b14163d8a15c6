package lifecycle

import (
	"os"
	"strings"
	"testing"

	"github.com/sprocio/sproc/internal/config"
)

func TestBuildCommandPlain(t *testing.T) {
	cmd := buildCommand(config.Service{Command: "sleep 5"})
	if len(cmd.Args) != 2 || cmd.Args[1] != "5" {
		t.Fatalf("unexpected args: %v", cmd.Args)
	}
	if strings.Contains(cmd.Path, "sh") {
		t.Fatalf("plain command should not use a shell: %s", cmd.Path)
	}
}

func TestBuildCommandMetacharactersUseShell(t *testing.T) {
	cmd := buildCommand(config.Service{Command: "echo hi > out.txt"})
	if cmd.Path != "/bin/sh" {
		t.Fatalf("expected shell wrap, got %s", cmd.Path)
	}
	if cmd.Args[2] != "echo hi > out.txt" {
		t.Fatalf("script mangled: %q", cmd.Args[2])
	}
}

func TestBuildCommandExplicitShell(t *testing.T) {
	cmd := buildCommand(config.Service{Command: `sh -c 'echo hi > out.txt'`})
	if cmd.Path != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("unexpected command: %v", cmd.Args)
	}
	if cmd.Args[2] != "echo hi > out.txt" {
		t.Fatalf("expected unquoted script, got %q", cmd.Args[2])
	}
}

func TestMergeEnv(t *testing.T) {
	t.Setenv("SPROC_TEST_BASE", "base")
	env := mergeEnv(map[string]string{"B": "2", "A": "1"})
	if len(env) != len(os.Environ())+2 {
		t.Fatalf("unexpected env length")
	}
	// service entries come after the inherited environment, sorted, so
	// they win over inherited duplicates
	if env[len(env)-2] != "A=1" || env[len(env)-1] != "B=2" {
		t.Fatalf("unexpected tail: %v", env[len(env)-2:])
	}
	if mergeEnv(nil) != nil {
		t.Fatalf("empty map should inherit by default")
	}
}
