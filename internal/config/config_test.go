package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/delimiter"
	"github.com/nmslite/inventory-agent/internal/replay"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("server port = %d, want 8090", cfg.Server.Port)
	}
	if diff := cmp.Diff(delimiter.Default(), cfg.Delimiters); diff != "" {
		t.Errorf("delimiters mismatch (-want +got):\n%s", diff)
	}
	if cfg.Batch.DefaultDirectory != batch.DefaultDirectory {
		t.Errorf("batch default directory = %q", cfg.Batch.DefaultDirectory)
	}
	if cfg.Replay.RetryLimit != replay.DefaultRetryLimit {
		t.Errorf("retry limit = %d", cfg.Replay.RetryLimit)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("logging output = %q, want stderr", cfg.Logging.Output)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
replay:
  host: replay.local
  port: 7100
  io_timeout_ms: 2500
delimiters:
  row: "<ROW>"
remote:
  connect_timeout_ms: 1500
sql:
  query_timeout_ms: 4000
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := replay.Config{
		Host:           "replay.local",
		Port:           7100,
		RetryLimit:     replay.DefaultRetryLimit,
		Sentinel:       replay.DefaultSentinel,
		LineTerminator: replay.DefaultLineTerminator,
		IOTimeout:      2500 * time.Millisecond,
	}
	if diff := cmp.Diff(want, cfg.Replay.ClientConfig()); diff != "" {
		t.Errorf("replay config mismatch (-want +got):\n%s", diff)
	}
	if cfg.Delimiters.Row != "<ROW>" || cfg.Delimiters.Item != delimiter.DefaultItem {
		t.Errorf("delimiters = %+v", cfg.Delimiters)
	}
	if got := cfg.Remote.Options().ConnectTimeout; got != 1500*time.Millisecond {
		t.Errorf("remote connect timeout = %v", got)
	}
	if got := cfg.SQL.UnitConfig().QueryTimeout; got != 4*time.Second {
		t.Errorf("sql query timeout = %v", got)
	}
	if cfg.Server.Address() != "127.0.0.1:9100" {
		t.Errorf("server address = %q", cfg.Server.Address())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "replay:\n  host: from-file\n  port: 7100\n")
	t.Setenv("AGENT_REPLAY_HOST", "from-env")
	t.Setenv("AGENT_REPLAY_RETRY_LIMIT", "5")
	t.Setenv("AGENT_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Replay.Host != "from-env" {
		t.Errorf("replay host = %q, want from-env", cfg.Replay.Host)
	}
	if cfg.Replay.RetryLimit != 5 {
		t.Errorf("retry limit = %d, want 5", cfg.Replay.RetryLimit)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"replay host without port", func(c *Config) { c.Replay.Host = "r" }, "replay port is required"},
		{"negative io timeout", func(c *Config) { c.Replay.IOTimeoutMS = -1 }, "io_timeout_ms"},
		{"duplicate delimiters", func(c *Config) { c.Delimiters.Item = c.Delimiters.Field }, "delimiters"},
		{"sentinel equals delimiter", func(c *Config) { c.Replay.Sentinel = c.Delimiters.Row }, "sentinel"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"file without path", func(c *Config) { c.Logging.Output = "file" }, "file_path"},
		{"bad output", func(c *Config) { c.Logging.Output = "syslog" }, "log output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDumpExampleConfigLoads(t *testing.T) {
	var buf bytes.Buffer
	if err := DumpExampleConfig(&buf); err != nil {
		t.Fatalf("DumpExampleConfig: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "# ===") {
		t.Error("example config should start with the header comment")
	}
	if !strings.Contains(out, "AGENT_REPLAY_HOST") {
		t.Error("example config should document env overrides")
	}

	dir := t.TempDir()
	body := strings.ReplaceAll(out, "/var/log/inventory-agent", filepath.Join(dir, "logs"))
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load(example): %v", err)
	}
	if cfg.Replay.Port != 7100 || !cfg.Logging.Compress {
		t.Errorf("example config not loaded as written: %+v", cfg)
	}
}

func TestInitLogger(t *testing.T) {
	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "agent.log")
		logger, err := InitLogger(LoggingConfig{Level: "debug", Format: "json", Output: "file", FilePath: path, MaxSizeMB: 1})
		if err != nil {
			t.Fatalf("InitLogger: %v", err)
		}
		logger.Debug("hello", "component", "test")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"hello"`) {
			t.Errorf("log file = %q", data)
		}
	})

	t.Run("file without path", func(t *testing.T) {
		if _, err := InitLogger(LoggingConfig{Output: "file"}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("unknown output", func(t *testing.T) {
		if _, err := InitLogger(LoggingConfig{Output: "syslog"}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("level filtering", func(t *testing.T) {
		logger, err := InitLogger(LoggingConfig{Level: "error", Output: "stderr"})
		if err != nil {
			t.Fatalf("InitLogger: %v", err)
		}
		if logger.Enabled(t.Context(), slog.LevelDebug) {
			t.Error("debug should be disabled at error level")
		}
	})
}
