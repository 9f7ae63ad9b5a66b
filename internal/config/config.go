// internal/config/config.go
//
// This package handles configuration and the .espace directory structure.
// Every project directory the console runs from gets a .espace/ folder.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// EspaceDir is the name of the directory we create in each project
	EspaceDir = ".espace"

	BackendFile   = "file"
	BackendSQLite = "sqlite"

	defaultPortalURL     = "http://127.0.0.1:8100"
	defaultPortalTimeout = 15 * time.Second
	defaultConnectivity  = 30 * time.Second
	defaultAccount       = 60 * time.Second
	defaultMerge         = 60 * time.Second
	defaultLogLevel      = "info"
	defaultSandboxHost   = "127.0.0.1"
	defaultSandboxPort   = 8100
)

const defaultProjectConfigYAML = `# espace-membre console configuration
version: 1

portal:
  base_url: http://127.0.0.1:8100
  timeout: 15s

# How often each waiting step checks the portal.
polling:
  connectivity: 30s
  account: 60s
  merge: 60s

# Where the resumable wizard run is kept: file or sqlite.
state:
  backend: file

logging:
  level: info

# Local fake portal served by "espace-membre sandbox".
sandbox:
  host: 127.0.0.1
  port: 8100
  merge_delay: 2m
  mailbox_delay: 1m
  login_delay: 20s
`

// PortalConfig points the console at the member portal.
type PortalConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollingConfig holds the period of each polling loop.
type PollingConfig struct {
	Connectivity time.Duration `yaml:"connectivity"`
	Account      time.Duration `yaml:"account"`
	Merge        time.Duration `yaml:"merge"`
}

// StateConfig selects the wizard state backend.
type StateConfig struct {
	Backend string `yaml:"backend"`
}

// LoggingConfig controls the file logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SandboxConfig configures the local fake portal.
type SandboxConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	MergeDelay   time.Duration `yaml:"merge_delay"`
	MailboxDelay time.Duration `yaml:"mailbox_delay"`
	LoginDelay   time.Duration `yaml:"login_delay"`
}

// ProjectConfig models .espace/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Portal  PortalConfig  `yaml:"portal"`
	Polling PollingConfig `yaml:"polling"`
	State   StateConfig   `yaml:"state"`
	Logging LoggingConfig `yaml:"logging"`
	Sandbox SandboxConfig `yaml:"sandbox"`
}

// envOverrides are read after the YAML file and win over it.
type envOverrides struct {
	PortalURL    string `env:"ESPACE_PORTAL_URL"`
	StateBackend string `env:"ESPACE_STATE_BACKEND"`
	LogLevel     string `env:"ESPACE_LOG_LEVEL"`
	SandboxAddr  string `env:"ESPACE_SANDBOX_ADDR"`
}

// Config holds the runtime configuration for the console.
type Config struct {
	// ProjectDir is the directory the console was started from
	ProjectDir string

	// EspaceProjectDir is ProjectDir/.espace
	EspaceProjectDir string

	Project ProjectConfig
}

// InitProjectDir creates the .espace directory structure in the given project directory.
//
// Structure created:
// .espace/
// ├── config.yaml
// ├── logs/         <- zap log and the operator logbook
// └── state/        <- the resumable wizard run
func InitProjectDir(projectDir string) error {
	espaceDir := filepath.Join(projectDir, EspaceDir)
	dirs := []string{
		filepath.Join(espaceDir, "logs"),
		filepath.Join(espaceDir, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(espaceDir, "config.yaml"))
}

// NewConfig loads .espace/config.yaml (if any) and the environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		EspaceProjectDir: filepath.Join(projectDir, EspaceDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.EspaceProjectDir, "logs")
}

// LogPath returns the zap log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "espace.log")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.EspaceProjectDir, "state")
}

// StatePath returns the JSON file used by the file backend.
func (c *Config) StatePath() string {
	return filepath.Join(c.StateDir(), "wizard.json")
}

// DatabasePath returns the SQLite database used by the sqlite backend.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StateDir(), "espace.db")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.EspaceProjectDir, "config.yaml")
}

// PortalURL returns the portal base URL.
func (c *Config) PortalURL() string {
	return c.Project.Portal.BaseURL
}

// SetPortalURL overrides the portal for this process only.
func (c *Config) SetPortalURL(raw string) error {
	next := c.Project
	next.Portal.BaseURL = raw
	next.normalize()
	if err := next.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project = next
	return nil
}

// StateBackend returns "file" or "sqlite".
func (c *Config) StateBackend() string {
	return c.Project.State.Backend
}

// Polling returns the loop periods.
func (c *Config) Polling() PollingConfig {
	return c.Project.Polling
}

// SandboxAddress returns the sandbox bind address in host:port form.
func (c *Config) SandboxAddress() string {
	return net.JoinHostPort(c.Project.Sandbox.Host, strconv.Itoa(c.Project.Sandbox.Port))
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	next := c.Project
	if v := strings.TrimSpace(overrides.PortalURL); v != "" {
		next.Portal.BaseURL = v
	}
	if v := strings.TrimSpace(overrides.StateBackend); v != "" {
		next.State.Backend = v
	}
	if v := strings.TrimSpace(overrides.LogLevel); v != "" {
		next.Logging.Level = v
	}
	if v := strings.TrimSpace(overrides.SandboxAddr); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("config: ESPACE_SANDBOX_ADDR: %w", err)
		}
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("config: ESPACE_SANDBOX_ADDR: invalid port %q", port)
		}
		next.Sandbox.Host = host
		next.Sandbox.Port = parsed
	}
	next.normalize()
	if err := next.validate(); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	c.Project = next
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Portal.BaseURL == "" {
		pc.Portal.BaseURL = defaultPortalURL
	}
	if pc.Portal.Timeout <= 0 {
		pc.Portal.Timeout = defaultPortalTimeout
	}
	if pc.Polling.Connectivity <= 0 {
		pc.Polling.Connectivity = defaultConnectivity
	}
	if pc.Polling.Account <= 0 {
		pc.Polling.Account = defaultAccount
	}
	if pc.Polling.Merge <= 0 {
		pc.Polling.Merge = defaultMerge
	}
	if pc.State.Backend == "" {
		pc.State.Backend = BackendFile
	}
	if pc.Logging.Level == "" {
		pc.Logging.Level = defaultLogLevel
	}
	if pc.Sandbox.Host == "" {
		pc.Sandbox.Host = defaultSandboxHost
	}
	if pc.Sandbox.Port == 0 {
		pc.Sandbox.Port = defaultSandboxPort
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Portal.BaseURL = strings.TrimRight(strings.TrimSpace(pc.Portal.BaseURL), "/")
	pc.State.Backend = strings.ToLower(strings.TrimSpace(pc.State.Backend))
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	pc.Sandbox.Host = strings.TrimSpace(pc.Sandbox.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	parsed, err := url.Parse(pc.Portal.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("portal.base_url must be an absolute URL, got %q", pc.Portal.BaseURL)
	}
	for name, d := range map[string]time.Duration{
		"polling.connectivity": pc.Polling.Connectivity,
		"polling.account":      pc.Polling.Account,
		"polling.merge":        pc.Polling.Merge,
	} {
		if d < time.Second {
			return fmt.Errorf("%s must be at least 1s, got %s", name, d)
		}
	}
	switch pc.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("state.backend must be 'file' or 'sqlite'")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	if pc.Sandbox.Port <= 0 || pc.Sandbox.Port > 65535 {
		return fmt.Errorf("sandbox.port must be between 1 and 65535")
	}
	if pc.Sandbox.MergeDelay < 0 || pc.Sandbox.MailboxDelay < 0 || pc.Sandbox.LoginDelay < 0 {
		return fmt.Errorf("sandbox delays must not be negative")
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
