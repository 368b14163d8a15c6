// Package installer fetches service definitions from a remote sproc
// registry and places them into the pinned configuration.
package installer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/sprocio/sproc/internal/config"
)

var (
	// ErrUnreachable covers network failures and non-OK registry responses.
	ErrUnreachable = errors.New("registry unreachable")
	// ErrInvalidDefinition covers registries that answer but return a
	// definition sproc cannot accept.
	ErrInvalidDefinition = errors.New("invalid service definition")
)

// DefaultTimeout bounds one registry round trip.
const DefaultTimeout = 10 * time.Second

// registryResponse is the envelope every sproc registry endpoint uses.
// Data carries the service definition as a TOML document.
type registryResponse struct {
	OK   bool   `json:"ok"`
	Data string `json:"data"`
}

// Fetch retrieves the definition of name from the registry at base without
// persisting anything. client may be nil.
func Fetch(ctx context.Context, client *http.Client, base, name string) (config.Service, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	endpoint := normalizeBase(base) + "/registry/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return config.Service{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return config.Service{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return config.Service{}, fmt.Errorf("%w: %s returned status %d", ErrUnreachable, endpoint, resp.StatusCode)
	}
	var body registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return config.Service{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if !body.OK {
		return config.Service{}, fmt.Errorf("%w: registry has no service %q", ErrInvalidDefinition, name)
	}
	return parseDefinition(name, body.Data)
}

// Install fetches name from the registry and writes it into the pinned
// configuration, replacing any existing definition of the same name.
func Install(ctx context.Context, client *http.Client, base, name string) (config.Service, error) {
	svc, err := Fetch(ctx, client, base, name)
	if err != nil {
		return config.Service{}, err
	}
	if err := config.Install(name, svc); err != nil {
		return config.Service{}, err
	}
	return svc, nil
}

// parseDefinition decodes one TOML service definition. go-toml rather
// than viper: environment variable names must keep their case.
func parseDefinition(name, doc string) (config.Service, error) {
	var svc config.Service
	if err := toml.Unmarshal([]byte(doc), &svc); err != nil {
		return config.Service{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if err := svc.Validate(name); err != nil {
		return config.Service{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return svc, nil
}

// normalizeBase accepts "host:port", "host/path/" or a full URL and yields
// a scheme-qualified base without a trailing slash.
func normalizeBase(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return base
}
