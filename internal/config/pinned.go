package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const pinnedHeader = "# Managed by sproc. Do not edit: change the source file and run `sproc pin <path>`.\n\n"

// LoadPinned reads the pinned configuration. A missing file yields the
// default empty configuration; a malformed one is an error, never partially
// trusted.
func LoadPinned() (*Config, error) {
	path := PinnedPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return readFile(path, false)
}

// SavePinned writes c to the well-known pinned-config path, replacing any
// prior content.
func SavePinned(c *Config) error {
	c.normalize()
	body, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode pinned config: %w", err)
	}
	if err := os.MkdirAll(Dir(), 0o750); err != nil {
		return err
	}
	return os.WriteFile(PinnedPath(), append([]byte(pinnedHeader), body...), 0o600)
}

// Pin resolves the document at path and persists it as the new pinned
// configuration. It refuses to replace a pinned configuration that still
// records running services.
func Pin(path string) (*Config, error) {
	cur, err := LoadPinned()
	if err != nil {
		return nil, err
	}
	for _, st := range cur.ServiceStates {
		if st.Status == "running" {
			return nil, ErrServicesRunning
		}
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.Source = abs
	cfg.ServiceStates = map[string]State{}
	if err := SavePinned(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// union copies services from other into c. Conflicting names keep the
// existing entry unless overwrite is set.
func (c *Config) union(other map[string]Service, overwrite bool) {
	for name, svc := range other {
		if _, exists := c.Services[name]; exists && !overwrite {
			continue
		}
		c.Services[name] = svc
	}
}

// Merge unions the resolved document at path into the pinned configuration
// and additionally rewrites the source file used by the next Pin.
func Merge(path string) error {
	pinned, err := LoadPinned()
	if err != nil {
		return err
	}
	other, err := Load(path)
	if err != nil {
		return err
	}
	pinned.union(other.Services, false)
	if err := SavePinned(pinned); err != nil {
		return err
	}
	if pinned.Source == "" {
		return nil
	}
	return writeSource(pinned)
}

// Pull unions the resolved document at path into the pinned configuration
// only, so changes take effect without touching the source document.
func Pull(path string) error {
	pinned, err := LoadPinned()
	if err != nil {
		return err
	}
	other, err := Load(path)
	if err != nil {
		return err
	}
	pinned.union(other.Services, false)
	return SavePinned(pinned)
}

// Install places a single validated service definition into the pinned
// configuration, overwriting an existing entry of the same name.
func Install(name string, svc Service) error {
	if err := svc.Validate(name); err != nil {
		return err
	}
	pinned, err := LoadPinned()
	if err != nil {
		return err
	}
	pinned.union(map[string]Service{name: svc}, true)
	return SavePinned(pinned)
}

// Uninstall removes a single service entry from the pinned configuration.
func Uninstall(name string) error {
	pinned, err := LoadPinned()
	if err != nil {
		return err
	}
	if _, ok := pinned.Services[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(pinned.Services, name)
	delete(pinned.ServiceStates, name)
	return SavePinned(pinned)
}

// UpdateStates replaces the persisted service states, leaving definitions
// untouched. The registry flushes through here after lifecycle transitions.
func UpdateStates(states map[string]State) error {
	pinned, err := LoadPinned()
	if err != nil {
		return err
	}
	pinned.ServiceStates = states
	return SavePinned(pinned)
}

// writeSource rewrites the operator-owned source document with the current
// service set. States and the source path are pinned-file concerns and are
// stripped.
func writeSource(c *Config) error {
	doc := *c
	doc.Source = ""
	doc.ServiceStates = nil
	body, err := toml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("encode source config: %w", err)
	}
	return os.WriteFile(c.Source, body, 0o600)
}
