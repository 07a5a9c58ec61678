package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/dns"
	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/health"
	"github.com/cuemby/burrow/pkg/log"
	"gopkg.in/yaml.v3"
)

// ErrInvalid matches every configuration validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the process configuration read at startup. User-editable
// settings such as auto-sync live in the database, not here.
type Config struct {
	DataDir  string       `yaml:"data_dir"`
	Listen   string       `yaml:"listen"`
	APIToken string       `yaml:"api_token"`
	Log      LogConfig    `yaml:"log"`
	Gate     GateConfig   `yaml:"gate"`
	Client   ClientConfig `yaml:"client"`
	Health   HealthConfig `yaml:"health"`
	DNS      DNSConfig    `yaml:"dns"`
}

// LogConfig controls the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// GateConfig shapes outbound appliance calls
type GateConfig struct {
	Burst      int           `yaml:"burst"`
	Window     time.Duration `yaml:"window"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    *int          `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ClientConfig controls TLS towards appliances
type ClientConfig struct {
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// HealthConfig controls the background appliance monitor
type HealthConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// DNSConfig controls lookups against appliance DNS listeners
type DNSConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Network string `yaml:"network"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path, applies defaults and validates the
// result. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes as io.EOF and means all defaults
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	setDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8470"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	gateDefaults := gate.DefaultConfig()
	if cfg.Gate.Burst == 0 {
		cfg.Gate.Burst = gateDefaults.Burst
	}
	if cfg.Gate.Window == 0 {
		cfg.Gate.Window = gateDefaults.Window
	}
	if cfg.Gate.Timeout == 0 {
		cfg.Gate.Timeout = gateDefaults.Timeout
	}
	if cfg.Gate.Retries == nil {
		retries := gateDefaults.Retries
		cfg.Gate.Retries = &retries
	}
	if cfg.Gate.RetryDelay == 0 {
		cfg.Gate.RetryDelay = gateDefaults.RetryDelay
	}

	healthDefaults := health.DefaultConfig()
	if cfg.Health.Enabled == nil {
		enabled := true
		cfg.Health.Enabled = &enabled
	}
	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = healthDefaults.Interval
	}
	if cfg.Health.Timeout == 0 {
		cfg.Health.Timeout = healthDefaults.Timeout
	}
	if cfg.Health.Retries == 0 {
		cfg.Health.Retries = healthDefaults.Retries
	}

	dnsDefaults := dns.DefaultConfig()
	if cfg.DNS.Enabled == nil {
		enabled := true
		cfg.DNS.Enabled = &enabled
	}
	if cfg.DNS.Port == 0 {
		cfg.DNS.Port = dnsDefaults.Port
	}
	if cfg.DNS.Network == "" {
		cfg.DNS.Network = dnsDefaults.Network
	}
}

func validate(cfg *Config) error {
	var problems []string

	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		problems = append(problems, fmt.Sprintf("listen %q is not host:port", cfg.Listen))
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Gate.Burst < 0 {
		problems = append(problems, "gate.burst must not be negative")
	}
	if cfg.Gate.Window < 0 || cfg.Gate.Timeout < 0 || cfg.Gate.RetryDelay < 0 {
		problems = append(problems, "gate durations must not be negative")
	}
	if *cfg.Gate.Retries < 0 {
		problems = append(problems, "gate.retries must not be negative")
	}
	if cfg.Health.Interval < 0 || cfg.Health.Timeout < 0 {
		problems = append(problems, "health durations must not be negative")
	}
	if cfg.DNS.Port < 0 || cfg.DNS.Port > 65535 {
		problems = append(problems, fmt.Sprintf("dns.port %d is out of range", cfg.DNS.Port))
	}
	if cfg.DNS.Network != "udp" && cfg.DNS.Network != "tcp" {
		problems = append(problems, fmt.Sprintf("dns.network %q is not udp or tcp", cfg.DNS.Network))
	}
	if cfg.APIToken != "" && len(cfg.APIToken) < 16 {
		problems = append(problems, "api_token must be at least 16 characters")
	}
	if cfg.Client.CAFile != "" {
		if _, err := os.Stat(cfg.Client.CAFile); err != nil {
			problems = append(problems, fmt.Sprintf("client.ca_file: %v", err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Options converts the section for gate.New
func (g GateConfig) Options() gate.Config {
	retries := gate.DefaultConfig().Retries
	if g.Retries != nil {
		retries = *g.Retries
	}
	return gate.Config{
		Burst:      g.Burst,
		Window:     g.Window,
		Timeout:    g.Timeout,
		Retries:    retries,
		RetryDelay: g.RetryDelay,
	}
}

// Options converts the section for health.NewMonitor
func (h HealthConfig) Options() health.Config {
	return health.Config{
		Interval: h.Interval,
		Timeout:  h.Timeout,
		Retries:  h.Retries,
	}
}

// IsEnabled reports whether the monitor should run
func (h HealthConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Options converts the section for dns.NewResolver
func (d DNSConfig) Options() dns.Config {
	return dns.Config{Port: d.Port, Network: d.Network}
}

// IsEnabled reports whether dnsLookup is served
func (d DNSConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Options converts the section for log.Init
func (l LogConfig) Options() log.Config {
	return log.Config{
		Level:      log.ParseLevel(l.Level),
		JSONOutput: l.JSON,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "burrow")
	}
	return "./burrow-data"
}
