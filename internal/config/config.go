// Package config
package config

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/delimiter"
	"github.com/nmslite/inventory-agent/internal/remote"
	"github.com/nmslite/inventory-agent/internal/replay"
	"github.com/nmslite/inventory-agent/internal/units"
)

type Config struct {
	Server     ServerConfig  `yaml:"server"`
	Replay     ReplayConfig  `yaml:"replay"`
	Delimiters delimiter.Set `yaml:"delimiters"`
	Batch      batch.Config  `yaml:"batch"`
	Remote     RemoteConfig  `yaml:"remote"`
	SNMP       SNMPConfig    `yaml:"snmp"`
	SQL        SQLConfig     `yaml:"sql"`
	Logging    LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	MaxBatchSize   int    `yaml:"max_batch_size"`
}

type ReplayConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	RetryLimit     int    `yaml:"retry_limit"`
	Sentinel       string `yaml:"sentinel"`
	LineTerminator string `yaml:"line_terminator"`
	// IOTimeoutMS of zero leaves socket operations without a deadline.
	IOTimeoutMS int `yaml:"io_timeout_ms"`
}

type RemoteConfig struct {
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
	Insecure         bool   `yaml:"insecure"`
	Shell            string `yaml:"shell"`
}

type SNMPConfig struct {
	Port      int `yaml:"port"`
	TimeoutMS int `yaml:"timeout_ms"`
	Retries   int `yaml:"retries"`
}

type SQLConfig struct {
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
	QueryTimeoutMS   int    `yaml:"query_timeout_ms"`
	Encrypt          string `yaml:"encrypt"`
	SSLMode          string `yaml:"ssl_mode"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from file and applies environment variable
// overrides. An empty path yields the defaults plus overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = 30000
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = 300000
	}
	if c.Server.MaxBatchSize == 0 {
		c.Server.MaxBatchSize = 100
	}

	if c.Replay.RetryLimit == 0 {
		c.Replay.RetryLimit = replay.DefaultRetryLimit
	}
	if c.Replay.Sentinel == "" {
		c.Replay.Sentinel = replay.DefaultSentinel
	}
	if c.Replay.LineTerminator == "" {
		c.Replay.LineTerminator = replay.DefaultLineTerminator
	}

	c.Delimiters.ApplyDefaults()
	c.Batch.ApplyDefaults()

	if c.Remote.ConnectTimeoutMS == 0 {
		c.Remote.ConnectTimeoutMS = 30000
	}
	if c.Remote.Shell == "" {
		c.Remote.Shell = remote.DefaultShell
	}

	if c.SNMP.Port == 0 {
		c.SNMP.Port = 161
	}
	if c.SNMP.TimeoutMS == 0 {
		c.SNMP.TimeoutMS = 5000
	}

	if c.SQL.ConnectTimeoutMS == 0 {
		c.SQL.ConnectTimeoutMS = 10000
	}
	if c.SQL.Encrypt == "" {
		c.SQL.Encrypt = "disable"
	}
	if c.SQL.SSLMode == "" {
		c.SQL.SSLMode = "prefer"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Replay.Port < 0 || c.Replay.Port > 65535 {
		return fmt.Errorf("replay port must be between 0 and 65535, got %d", c.Replay.Port)
	}
	if c.Replay.Host != "" && c.Replay.Port == 0 {
		return fmt.Errorf("replay port is required when replay host is set")
	}
	if c.Replay.RetryLimit < 1 {
		return fmt.Errorf("replay retry_limit must be at least 1")
	}
	if c.Replay.IOTimeoutMS < 0 {
		return fmt.Errorf("replay io_timeout_ms must not be negative")
	}

	if err := c.Delimiters.Validate(); err != nil {
		return fmt.Errorf("delimiters: %w", err)
	}
	if slices.Contains(c.Delimiters.Tokens(), c.Replay.Sentinel) {
		return fmt.Errorf("replay sentinel must differ from the row delimiters")
	}

	if !c.Logging.IsLogLevelValid() {
		return fmt.Errorf("invalid log level %q (debug, info, warn, error)", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "text" {
		return fmt.Errorf("invalid log format %q (json, text)", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging file_path is required when output is file")
		}
	default:
		return fmt.Errorf("invalid log output %q (stdout, stderr, file)", c.Logging.Output)
	}

	return nil
}

// applyEnvOverrides checks for environment variables with AGENT_ prefix
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if v := os.Getenv("AGENT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AGENT_SERVER_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Server.Port)
	}

	// Replay overrides
	if v := os.Getenv("AGENT_REPLAY_HOST"); v != "" {
		cfg.Replay.Host = v
	}
	if v := os.Getenv("AGENT_REPLAY_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Replay.Port)
	}
	if v := os.Getenv("AGENT_REPLAY_RETRY_LIMIT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Replay.RetryLimit)
	}
	if v := os.Getenv("AGENT_REPLAY_IO_TIMEOUT_MS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Replay.IOTimeoutMS)
	}

	// Remote overrides
	if v := os.Getenv("AGENT_REMOTE_CONNECT_TIMEOUT_MS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Remote.ConnectTimeoutMS)
	}

	// Logging overrides
	if v := os.Getenv("AGENT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AGENT_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AGENT_LOGGING_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
	if v := os.Getenv("AGENT_LOGGING_FILE_PATH"); v != "" {
		cfg.Logging.FilePath = v
	}
}

// ReadTimeout returns the read timeout as a duration
func (s *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration
func (s *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// Address returns host:port for the listener
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientConfig converts to the Replay client configuration
func (r *ReplayConfig) ClientConfig() replay.Config {
	return replay.Config{
		Host:           r.Host,
		Port:           r.Port,
		RetryLimit:     r.RetryLimit,
		Sentinel:       r.Sentinel,
		LineTerminator: r.LineTerminator,
		IOTimeout:      time.Duration(r.IOTimeoutMS) * time.Millisecond,
	}
}

// Options converts to the remote connection configuration
func (r *RemoteConfig) Options() remote.Config {
	return remote.Config{
		ConnectTimeout: time.Duration(r.ConnectTimeoutMS) * time.Millisecond,
		Insecure:       r.Insecure,
		Shell:          r.Shell,
	}
}

// UnitConfig converts to the SNMP unit configuration
func (s *SNMPConfig) UnitConfig() units.SNMPConfig {
	return units.SNMPConfig{
		Port:    s.Port,
		Timeout: time.Duration(s.TimeoutMS) * time.Millisecond,
		Retries: s.Retries,
	}
}

// UnitConfig converts to the SQL unit configuration
func (s *SQLConfig) UnitConfig() units.SQLConfig {
	return units.SQLConfig{
		ConnectTimeout: time.Duration(s.ConnectTimeoutMS) * time.Millisecond,
		QueryTimeout:   time.Duration(s.QueryTimeoutMS) * time.Millisecond,
		Encrypt:        s.Encrypt,
		SSLMode:        s.SSLMode,
	}
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}

// DumpExampleConfig writes an example configuration to the provided writer
func DumpExampleConfig(w io.Writer) error {
	example := &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8090,
			ReadTimeoutMS:  30000,
			WriteTimeoutMS: 300000,
			MaxBatchSize:   100,
		},
		Replay: ReplayConfig{
			Host:           "replay.example.local",
			Port:           7100,
			RetryLimit:     replay.DefaultRetryLimit,
			Sentinel:       replay.DefaultSentinel,
			LineTerminator: replay.DefaultLineTerminator,
			IOTimeoutMS:    0,
		},
		Delimiters: delimiter.Default(),
		Batch: batch.Config{
			DefaultDirectory:   batch.DefaultDirectory,
			CompletionSentinel: batch.DefaultCompletionSentinel,
			LineTerminator:     batch.DefaultLineTerminator,
		},
		Remote: RemoteConfig{
			ConnectTimeoutMS: 30000,
			Insecure:         false,
			Shell:            remote.DefaultShell,
		},
		SNMP: SNMPConfig{
			Port:      161,
			TimeoutMS: 5000,
			Retries:   1,
		},
		SQL: SQLConfig{
			ConnectTimeoutMS: 10000,
			QueryTimeoutMS:   60000,
			Encrypt:          "disable",
			SSLMode:          "prefer",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "file",
			FilePath:   "/var/log/inventory-agent/agent.log",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}

	var node yaml.Node
	if err := node.Encode(example); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := `# =============================================================================
# Inventory Agent Example Configuration
# =============================================================================
# Copy this file to agent.yaml and modify it according to your needs.
#
# Environment variable overrides follow the pattern: AGENT_<SECTION>_<KEY>
# Example: AGENT_REPLAY_HOST, AGENT_LOGGING_LEVEL
# =============================================================================

`
	if _, err := fmt.Fprint(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	footer := `
# =============================================================================
# Notes:
# =============================================================================
#
# 1. Delimiters and sentinels are part of the wire format shared with the
#    dispatcher and the Replay server. Change them on all sides or not at all.
#
# 2. replay.io_timeout_ms = 0 means no socket deadline; the dispatcher's
#    request context still applies.
#
# 3. In "agent run" mode stdout carries the JSON results, so logging output
#    must be stderr or file.
# =============================================================================
`
	if _, err := fmt.Fprint(w, footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	return nil
}
