package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, "warn")
	lg.Info("hidden")
	lg.Warn("visible")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWritersDisabledWithoutDir(t *testing.T) {
	outW, errW, err := Config{}.Writers("web")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers when no dir configured")
	}
}

func TestWritersCreateFiles(t *testing.T) {
	dir := t.TempDir()
	outW, errW, err := Config{Dir: dir}.Writers("web")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	defer func() { _ = outW.Close(); _ = errW.Close() }()
	if _, err := outW.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write stdout: %v", err)
	}
	if _, err := errW.Write([]byte("oops\n")); err != nil {
		t.Fatalf("write stderr: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "web.stdout.log"))
	if err != nil || !strings.Contains(string(b), "hello") {
		t.Fatalf("stdout log not written: %v %q", err, b)
	}
	if _, err := os.Stat(filepath.Join(dir, "web.stderr.log")); err != nil {
		t.Fatalf("stderr log not created: %v", err)
	}
}
