//go:build unix

package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/lifecycle"
)

const testKey = "secret"

func testServer(t *testing.T) (*httptest.Server, *lifecycle.Engine) {
	t.Helper()
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	cfg := config.Default()
	cfg.Services = map[string]config.Service{
		"sleeper": {Command: "sleep 5", WorkingDirectory: t.TempDir()},
	}
	eng := lifecycle.New(cfg, lifecycle.Options{Daemon: true, TerminateWait: time.Second})
	srv := httptest.NewServer(NewRouter(eng, testKey, nil).Handler())
	t.Cleanup(func() {
		eng.KillAll()
		srv.Close()
	})
	return srv, eng
}

func post(t *testing.T, srv *httptest.Server, path string, body map[string]string) (int, bool, json.RawMessage) {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := srv.Client().Post(srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, env.OK, env.Data
}

func TestAuthRejectedBeforeAnyEffect(t *testing.T) {
	srv, eng := testServer(t)
	code, ok, data := post(t, srv, "/api/sproc/start", map[string]string{"key": "wrong", "service": "sleeper"})
	if code != http.StatusUnauthorized || ok {
		t.Fatalf("expected 401 rejection, got %d ok=%v", code, ok)
	}
	if string(data) != `"unauthorized"` {
		t.Fatalf("unexpected data: %s", data)
	}
	if n := len(eng.Registry().Snapshot()); n != 0 {
		t.Fatalf("rejected request mutated state: %d entries", n)
	}
}

func TestStartInfoKillRoundTrip(t *testing.T) {
	srv, _ := testServer(t)

	if _, ok, data := post(t, srv, "/api/sproc/start", map[string]string{"key": testKey, "service": "sleeper"}); !ok {
		t.Fatalf("start failed: %s", data)
	}

	_, ok, data := post(t, srv, "/api/sproc/info", map[string]string{"key": testKey, "service": "sleeper"})
	if !ok {
		t.Fatalf("info failed: %s", data)
	}
	var info lifecycle.ServiceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Name != "sleeper" || info.PID <= 0 || info.Status != "running" {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, ok, data := post(t, srv, "/api/sproc/kill", map[string]string{"key": testKey, "service": "sleeper"}); !ok {
		t.Fatalf("kill failed: %s", data)
	}
	if _, ok, _ := post(t, srv, "/api/sproc/kill", map[string]string{"key": testKey, "service": "sleeper"}); ok {
		t.Fatalf("second kill should report not running")
	}
}

func TestInfoAllWithoutServiceName(t *testing.T) {
	srv, _ := testServer(t)
	_, ok, data := post(t, srv, "/api/sproc/info", map[string]string{"key": testKey})
	if !ok {
		t.Fatalf("info all failed: %s", data)
	}
	var infos []lifecycle.ServiceInfo
	if string(data) != "null" {
		if err := json.Unmarshal(data, &infos); err != nil {
			t.Fatalf("decode info all: %v", err)
		}
	}
	if len(infos) != 0 {
		t.Fatalf("expected no running services, got %+v", infos)
	}
}

func TestStartUnknownService(t *testing.T) {
	srv, _ := testServer(t)
	_, ok, data := post(t, srv, "/api/sproc/start", map[string]string{"key": testKey, "service": "ghost"})
	if ok {
		t.Fatalf("expected failure for unknown service")
	}
	if !strings.Contains(string(data), "unknown service") {
		t.Fatalf("unexpected data: %s", data)
	}
}

func TestNoRouteUsesEnvelope(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := srv.Client().Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var env struct {
		OK   bool `json:"ok"`
		Data int  `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.OK || env.Data != 404 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestInstallAndUninstall(t *testing.T) {
	srv, eng := testServer(t)

	reg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"data": "command = \"sleep 5\"\nworking_directory = \"/tmp\"\n",
		})
	}))
	defer reg.Close()

	if _, ok, data := post(t, srv, "/api/sproc/install", map[string]string{
		"key": testKey, "service": "web", "registry": reg.URL,
	}); !ok {
		t.Fatalf("install failed: %s", data)
	}
	if _, ok := eng.Config().Services["web"]; !ok {
		t.Fatalf("engine config missing installed service")
	}

	if _, ok, data := post(t, srv, "/api/sproc/uninstall", map[string]string{
		"key": testKey, "service": "web",
	}); !ok {
		t.Fatalf("uninstall failed: %s", data)
	}
	if _, ok := eng.Config().Services["web"]; ok {
		t.Fatalf("service still present after uninstall")
	}
	if _, ok, _ := post(t, srv, "/api/sproc/uninstall", map[string]string{
		"key": testKey, "service": "web",
	}); ok {
		t.Fatalf("uninstalling a missing service should fail")
	}
}

func TestNewServerReportsBindFailure(t *testing.T) {
	t.Setenv(config.ConfigDirEnv, t.TempDir())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	eng := lifecycle.New(config.Default(), lifecycle.Options{Daemon: true})
	srv, srvErr := NewServer(ln.Addr().String(), NewRouter(eng, testKey, nil))
	defer func() { _ = srv.Close() }()

	select {
	case err := <-srvErr:
		if err == nil {
			t.Fatalf("expected bind error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bind failure on an occupied port was not reported")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
