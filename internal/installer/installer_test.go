package installer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sprocio/sproc/internal/config"
)

const goodDefinition = "command = \"sleep 5\"\nworking_directory = \"/tmp\"\nrestart = true\n\n[environment]\nAPP_Env = \"prod\"\n"

func fakeRegistry(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/registry/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/registry/"):]
		w.Header().Set("Content-Type", "application/json")
		switch name {
		case "web":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "data": goodDefinition})
		case "broken":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "data": "command = \"\"\n"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "data": "404"})
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := fakeRegistry(t)
	svc, err := Fetch(context.Background(), srv.Client(), srv.URL, "web")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if svc.Command != "sleep 5" || svc.WorkingDirectory != "/tmp" || !svc.Restart {
		t.Fatalf("unexpected definition: %+v", svc)
	}
	if svc.Environment["APP_Env"] != "prod" {
		t.Fatalf("environment key case not preserved: %+v", svc.Environment)
	}
}

func TestFetchUnknownService(t *testing.T) {
	srv := fakeRegistry(t)
	if _, err := Fetch(context.Background(), srv.Client(), srv.URL, "ghost"); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
}

func TestFetchInvalidDefinition(t *testing.T) {
	srv := fakeRegistry(t)
	if _, err := Fetch(context.Background(), srv.Client(), srv.URL, "broken"); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if _, err := Fetch(context.Background(), nil, srv.URL, "web"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestInstallPersists(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	srv := fakeRegistry(t)
	if _, err := Install(context.Background(), srv.Client(), srv.URL, "web"); err != nil {
		t.Fatalf("install: %v", err)
	}
	pinned, err := config.LoadPinned()
	if err != nil {
		t.Fatalf("load pinned: %v", err)
	}
	if svc, ok := pinned.Services["web"]; !ok || svc.Command != "sleep 5" {
		t.Fatalf("definition not persisted: %+v", pinned.Services)
	}
}

func TestNormalizeBase(t *testing.T) {
	for in, want := range map[string]string{
		"example.com:6374":          "http://example.com:6374",
		"https://example.com/":      "https://example.com",
		" http://example.com/reg/ ": "http://example.com/reg",
	} {
		if got := normalizeBase(in); got != want {
			t.Fatalf("normalizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
