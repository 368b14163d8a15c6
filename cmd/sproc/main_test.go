package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/lifecycle"
)

func TestBuildRootRegistersCommands(t *testing.T) {
	root := buildRoot()
	want := []string{
		"pin", "pinned", "merge", "pull",
		"run", "run-all", "spawn", "kill", "kill-all",
		"info", "info-all", "install", "uninstall", "serve",
	}
	have := map[string]bool{}
	for _, c := range root.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := buildRoot()
	root.SetArgs(args)
	return root.Execute()
}

func TestPinAndPinned(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	src := filepath.Join(t.TempDir(), "services.toml")
	doc := "[services.web]\ncommand = \"sleep 5\"\nworking_directory = \"/tmp\"\n"
	if err := os.WriteFile(src, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "pin", src); err != nil {
		t.Fatalf("pin: %v", err)
	}
	pinned, err := config.LoadPinned()
	if err != nil {
		t.Fatalf("load pinned: %v", err)
	}
	if _, ok := pinned.Services["web"]; !ok {
		t.Fatalf("pinned config missing web: %+v", pinned.Services)
	}
	if err := execute(t, "pinned"); err != nil {
		t.Fatalf("pinned: %v", err)
	}
}

func TestPinnedWithoutPin(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	if err := execute(t, "pinned"); !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
}

func TestUninstallMissingFails(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	if err := execute(t, "uninstall", "ghost"); !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
}

func TestRunUnknownServiceExitsNonZero(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	if err := execute(t, "run", "ghost"); !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
}

func TestReportResults(t *testing.T) {
	ok := []lifecycle.Result{{Name: "a"}, {Name: "b"}}
	if err := reportResults("started", ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mixed := append(ok, lifecycle.Result{Name: "c", Err: errors.New("boom")})
	if err := reportResults("started", mixed); !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
}

func TestServeRefusesWithoutKey(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	err := runServe("info")
	if err == nil || !strings.Contains(err.Error(), "server.key") {
		t.Fatalf("expected key refusal, got %v", err)
	}
}
