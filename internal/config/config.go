package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/sprocio/sproc/internal/logger"
	"github.com/spf13/viper"
)

// DefaultPort is the control daemon port when the pinned configuration does
// not set one.
const DefaultPort = 6374

// DefaultSuperviseInterval bounds how long a crashed restart=true service
// stays down before the supervision loop notices it.
const DefaultSuperviseInterval = 2 * time.Second

// Metadata carries service information that is not needed to run it.
type Metadata struct {
	Repository  string `mapstructure:"repository" toml:"repository,omitempty"`
	Description string `mapstructure:"description" toml:"description,omitempty"`
	License     string `mapstructure:"license" toml:"license,omitempty"`
}

// Service is a single supervised long-running command.
type Service struct {
	Command          string            `mapstructure:"command" toml:"command"`
	WorkingDirectory string            `mapstructure:"working_directory" toml:"working_directory"`
	// Environment maps variable name to value, layered over the inherited
	// OS environment. Key case is preserved; see restoreEnvironmentKeys.
	Environment map[string]string `mapstructure:"environment" toml:"environment,omitempty"`
	// Restart is only honored when the service is spawned through the
	// daemon; a foreground run never auto-restarts.
	Restart  bool     `mapstructure:"restart" toml:"restart,omitempty"`
	Metadata Metadata `mapstructure:"metadata" toml:"metadata,omitempty"`
}

// Validate rejects definitions missing command or working_directory.
func (s Service) Validate(name string) error {
	if s.Command == "" {
		return &InvalidServiceError{Name: name, Field: "command"}
	}
	if s.WorkingDirectory == "" {
		return &InvalidServiceError{Name: name, Field: "working_directory"}
	}
	return nil
}

// Server holds settings for the control daemon.
type Server struct {
	Port int `mapstructure:"port" toml:"port"`
	// Key is the shared secret every mutating control request must present.
	Key string `mapstructure:"key" toml:"key"`
	// SuperviseInterval is the supervision loop poll interval.
	SuperviseInterval time.Duration `mapstructure:"supervise_interval" toml:"supervise_interval,omitempty"`
	// HistoryDSN enables the lifecycle event history sink when set,
	// e.g. "sqlite:///var/lib/sproc/history.db".
	HistoryDSN string `mapstructure:"history_dsn" toml:"history_dsn,omitempty"`
}

// State is the persisted form of a registry entry, carried in the pinned
// document so single-shot CLI invocations share process state.
type State struct {
	Status    string    `mapstructure:"status" toml:"status"`
	PID       int       `mapstructure:"pid" toml:"pid"`
	StartedAt time.Time `mapstructure:"started_at" toml:"started_at"`
}

// Config is a service definition document. The resolved/pinned form is
// always fully flattened: Inherit is only meaningful in a source document
// passed to Pin and is never persisted.
type Config struct {
	// Source is the absolute path of the document the pinned configuration
	// was resolved from; merge rewrites it.
	Source        string             `mapstructure:"source" toml:"source,omitempty"`
	Inherit       []string           `mapstructure:"inherit" toml:"-"`
	Server        Server             `mapstructure:"server" toml:"server"`
	Log           logger.Config      `mapstructure:"log" toml:"log,omitempty"`
	Services      map[string]Service `mapstructure:"services" toml:"services"`
	ServiceStates map[string]State   `mapstructure:"service_states" toml:"service_states"`
}

// Default returns an empty configuration with daemon defaults applied.
func Default() *Config {
	return &Config{
		Server:        Server{Port: DefaultPort},
		Services:      map[string]Service{},
		ServiceStates: map[string]State{},
	}
}

func (c *Config) normalize() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Services == nil {
		c.Services = map[string]Service{}
	}
	if c.ServiceStates == nil {
		c.ServiceStates = map[string]State{}
	}
}

// readFile parses one TOML document. allowInherit distinguishes the root
// document from inheritance targets; a target declaring inherit is an error,
// not something to silently ignore.
func readFile(path string, allowInherit bool) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if !allowInherit && v.IsSet("inherit") {
		return nil, &ParseError{Path: path, Err: ErrInheritedInherit}
	}
	c.normalize()
	if err := restoreEnvironmentKeys(path, &c); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &c, nil
}

// restoreEnvironmentKeys re-reads the environment tables with the TOML
// decoder and overwrites the viper-decoded maps. Viper case-folds map
// keys, which is tolerable for service names but wrong for environment
// variable names.
func restoreEnvironmentKeys(path string, c *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc struct {
		Services map[string]struct {
			Environment map[string]string `toml:"environment"`
		} `toml:"services"`
	}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for docName, docSvc := range doc.Services {
		if len(docSvc.Environment) == 0 {
			continue
		}
		for name, svc := range c.Services {
			if strings.EqualFold(name, docName) {
				svc.Environment = docSvc.Environment
				c.Services[name] = svc
			}
		}
	}
	return nil
}

// Load reads the document at path and resolves it into a flattened
// configuration. Merge order: entries from later files in the inherit list
// override earlier ones, and the root document overrides them all.
// Resolution is deterministic and idempotent.
func Load(path string) (*Config, error) {
	root, err := readFile(path, true)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]Service)
	base := filepath.Dir(path)
	for _, inc := range root.Inherit {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(base, inc)
		}
		sub, err := readFile(inc, false)
		if err != nil {
			return nil, err
		}
		for name, svc := range sub.Services {
			merged[name] = svc
		}
	}
	for name, svc := range root.Services {
		merged[name] = svc
	}
	for name, svc := range merged {
		if err := svc.Validate(name); err != nil {
			return nil, err
		}
	}
	root.Services = merged
	root.Inherit = nil
	return root, nil
}

// ConfigDirEnv overrides the configuration directory, primarily for tests.
const ConfigDirEnv = "SPROC_CONFIG_DIR"

// Dir returns the sproc configuration directory.
func Dir() string {
	if d := os.Getenv(ConfigDirEnv); d != "" {
		return d
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "sproc")
}

// PinnedPath is the well-known location of the pinned configuration.
func PinnedPath() string { return filepath.Join(Dir(), "services.toml") }
