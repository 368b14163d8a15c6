// Package sproc exposes the supervisor as a library: pinned configuration
// management, the lifecycle engine and the daemon client, without reaching
// into internal packages.
package sproc

import (
	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/lifecycle"
	"github.com/sprocio/sproc/pkg/client"
)

type (
	Config      = config.Config
	Service     = config.Service
	ServiceInfo = lifecycle.ServiceInfo
	Result      = lifecycle.Result
	Options     = lifecycle.Options
	Engine      = lifecycle.Engine
	Client      = client.Client
)

var (
	ErrUnknownService = lifecycle.ErrUnknownService
	ErrAlreadyRunning = lifecycle.ErrAlreadyRunning
	ErrNotRunning     = lifecycle.ErrNotRunning
	ErrDaemonRequired = lifecycle.ErrDaemonRequired
)

// New builds a lifecycle engine over cfg.
func New(cfg *Config, opts Options) *Engine { return lifecycle.New(cfg, opts) }

// LoadPinned reads the pinned configuration, or an empty default when none
// has been pinned yet.
func LoadPinned() (*Config, error) { return config.LoadPinned() }

// Pin resolves the definition file at path and pins it.
func Pin(path string) (*Config, error) { return config.Pin(path) }

// NewClient builds a client for the control daemon at baseURL.
func NewClient(baseURL, key string) *Client { return client.New(baseURL, key) }
