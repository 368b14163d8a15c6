// Package client is a small HTTP client for the sproc control daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sprocio/sproc/internal/lifecycle"
)

// ErrUnauthorized is returned when the daemon rejects the shared key.
var ErrUnauthorized = errors.New("unauthorized: key rejected by daemon")

// DefaultTimeout bounds one control round trip. Kill can wait through the
// daemon's terminate escalation, so this is generous.
const DefaultTimeout = 15 * time.Second

// Client talks to one sproc daemon.
type Client struct {
	baseURL string
	key     string
	hc      *http.Client
}

// New builds a client for the daemon at baseURL (e.g. "127.0.0.1:6374").
// A missing scheme defaults to http.
func New(baseURL, key string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		key:     key,
		hc:      &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

type request struct {
	Key      string `json:"key"`
	Service  string `json:"service"`
	Registry string `json:"registry,omitempty"`
}

type envelope struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data"`
}

// do posts one control request and unwraps the {ok, data} envelope. A
// response with ok=false becomes an error carrying the daemon's message.
func (c *Client) do(ctx context.Context, path string, req request) (json.RawMessage, error) {
	req.Key = c.key
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode daemon response: %w", err)
	}
	if !env.OK {
		var msg string
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			msg = string(env.Data)
		}
		return nil, errors.New(msg)
	}
	return env.Data, nil
}

// Start asks the daemon to spawn service under supervision.
func (c *Client) Start(ctx context.Context, service string) error {
	_, err := c.do(ctx, "/api/sproc/start", request{Service: service})
	return err
}

// Kill asks the daemon to stop service.
func (c *Client) Kill(ctx context.Context, service string) error {
	_, err := c.do(ctx, "/api/sproc/kill", request{Service: service})
	return err
}

// Info returns the daemon's view of one running service.
func (c *Client) Info(ctx context.Context, service string) (lifecycle.ServiceInfo, error) {
	data, err := c.do(ctx, "/api/sproc/info", request{Service: service})
	if err != nil {
		return lifecycle.ServiceInfo{}, err
	}
	var info lifecycle.ServiceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return lifecycle.ServiceInfo{}, fmt.Errorf("decode info: %w", err)
	}
	return info, nil
}

// InfoAll returns the daemon's view of every running service.
func (c *Client) InfoAll(ctx context.Context) ([]lifecycle.ServiceInfo, error) {
	data, err := c.do(ctx, "/api/sproc/info", request{})
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	var infos []lifecycle.ServiceInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	return infos, nil
}

// Install asks the daemon to fetch service from registry and add it to its
// pinned configuration.
func (c *Client) Install(ctx context.Context, registry, service string) error {
	_, err := c.do(ctx, "/api/sproc/install", request{Service: service, Registry: registry})
	return err
}

// Uninstall asks the daemon to remove service from its pinned
// configuration, stopping it first if running.
func (c *Client) Uninstall(ctx context.Context, service string) error {
	_, err := c.do(ctx, "/api/sproc/uninstall", request{Service: service})
	return err
}
