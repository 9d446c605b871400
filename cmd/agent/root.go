package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/config"
	"github.com/nmslite/inventory-agent/internal/dispatch"
	"github.com/nmslite/inventory-agent/internal/replay"
	"github.com/nmslite/inventory-agent/internal/task"
	"github.com/nmslite/inventory-agent/internal/units"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inventory collection agent",
		Long: `agent runs inventory collection units against managed hosts and reports
delimited result rows to the dispatcher.

Examples:
  agent run < tasks.json
  agent serve --config agent.yaml
  agent config example > agent.yaml
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (defaults plus AGENT_* overrides when empty)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "load AGENT_* variables from a .env file; the process environment wins")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newConfigCmd())
	return cmd
}

// load reads the config and builds the logger. stdoutReserved moves stdout
// logging to stderr.
func (o *rootOptions) load(stdoutReserved bool) (*config.Config, *slog.Logger, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load %s: %w", o.envFile, err)
		}
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
		if !cfg.Logging.IsLogLevelValid() {
			return nil, nil, fmt.Errorf("invalid log level %q", o.logLevel)
		}
	}
	if stdoutReserved && strings.EqualFold(cfg.Logging.Output, "stdout") {
		cfg.Logging.Output = "stderr"
	}

	logger, err := config.InitLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// newDispatcher wires every built-in unit from cfg.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (*dispatch.Dispatcher, error) {
	registry := task.NewRegistry(logger)
	var replayClient *replay.Client
	if cfg.Replay.Host != "" {
		replayClient = replay.NewClient(cfg.Replay.ClientConfig(), replay.WithLogger(logger))
	}
	deps := units.Deps{
		Replay: replayClient,
		Batch:  batch.NewBuilder(cfg.Batch, logger),
		Dial:   units.RemoteDialer(cfg.Remote.Options(), logger),
		SNMP:   cfg.SNMP.UnitConfig(),
		SQL:    cfg.SQL.UnitConfig(),
		Logger: logger,
	}
	if err := units.Register(registry, deps); err != nil {
		return nil, fmt.Errorf("failed to register units: %w", err)
	}
	runner := task.NewRunner(cfg.Delimiters, logger)
	return dispatch.NewDispatcher(registry, runner, logger), nil
}
