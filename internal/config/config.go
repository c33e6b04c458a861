// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Result formats a query can be shipped in
const (
	FormatBatch  = "batch"  // one log item per diff
	FormatEvents = "events" // one event per changed row
)

const (
	defaultPollInterval    = time.Minute
	defaultCommandTimeout  = 30 * time.Second
	defaultMaxPayloadBytes = 1 << 20
	defaultDedupCacheSize  = 4096
)

// QueryConfig is one scheduled query. Its command prints the current
// result set as a JSON array of string-valued objects.
type QueryConfig struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Columns []string `yaml:"columns"` // fixed column order for encoding, optional
	Format  string   `yaml:"format"`
	Unique  bool     `yaml:"unique"` // drop duplicate rows before diffing
}

// AgentConfig for the host agent
type AgentConfig struct {
	CollectorURL   string        `yaml:"collector_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	StateFile      string        `yaml:"state_file"`
	HostIdentifier string        `yaml:"host_identifier"`
	TLSSkipVerify  bool          `yaml:"tls_skip_verify"`
	LogLevel       string        `yaml:"log_level"`
	Queries        []QueryConfig `yaml:"queries"`
	APIKey         string        `yaml:"-"` // from env only
}

// CollectorConfig for the central collector
type CollectorConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	DBPath          string `yaml:"db_path"`
	MaxPayloadBytes int64  `yaml:"max_payload_bytes"`
	DedupCacheSize  int    `yaml:"dedup_cache_size"`
	TLSCert         string `yaml:"tls_cert"`
	TLSKey          string `yaml:"tls_key"`
	LogLevel        string `yaml:"log_level"`
	APIKey          string `yaml:"-"` // agent auth, from env
}

// LoadAgentConfig loads agent config from YAML file with env overrides
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Env overrides
	if key := os.Getenv("ROWDELTA_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if id := os.Getenv("ROWDELTA_HOST_IDENTIFIER"); id != "" {
		cfg.HostIdentifier = id
	}

	// Default identifier to os.Hostname if not set
	if cfg.HostIdentifier == "" {
		cfg.HostIdentifier, _ = os.Hostname()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	for i := range cfg.Queries {
		if cfg.Queries[i].Format == "" {
			cfg.Queries[i].Format = FormatBatch
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields the agent cannot run without.
func (c *AgentConfig) Validate() error {
	if c.CollectorURL == "" {
		return errors.New("collector_url is required")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	seen := make(map[string]bool, len(c.Queries))
	for i, q := range c.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true
		if len(q.Command) == 0 {
			return fmt.Errorf("query %q: command is required", q.Name)
		}
		if q.Format != FormatBatch && q.Format != FormatEvents {
			return fmt.Errorf("query %q: unknown format %q", q.Name, q.Format)
		}
	}
	return nil
}

// LoadCollectorConfig loads collector config from YAML file with env overrides
func LoadCollectorConfig(path string) (*CollectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg CollectorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Env overrides
	if key := os.Getenv("ROWDELTA_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = defaultMaxPayloadBytes
	}
	if cfg.DedupCacheSize == 0 {
		cfg.DedupCacheSize = defaultDedupCacheSize
	}
	if cfg.DBPath == "" {
		return nil, errors.New("db_path is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("ROWDELTA_API_KEY is required")
	}

	return &cfg, nil
}
