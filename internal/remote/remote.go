// Package remote ships batch scripts to managed Windows hosts over WinRM or
// SSH and runs them.
package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

const (
	ProtocolWinRM = "winrm"
	ProtocolSSH   = "ssh"

	DefaultWinRMPort      = 5985
	DefaultWinRMHTTPSPort = 5986
	DefaultSSHPort        = 22

	DefaultShell          = "powershell.exe"
	DefaultConnectTimeout = 30 * time.Second
)

// errLogin marks authentication failures so Dial can tell them apart from
// unreachable hosts.
var errLogin = errors.New("login failed")

// Config controls how connections are opened.
type Config struct {
	ConnectTimeout time.Duration
	// Insecure skips TLS certificate verification for WinRM over HTTPS.
	Insecure bool
	// Shell is the PowerShell executable used to stage scripts.
	Shell string
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Shell == "" {
		c.Shell = DefaultShell
	}
}

// Runner executes one command line on the remote host.
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error)
	Close() error
}

// Launcher stages a script on the target, runs it with cmd.exe and removes
// it again. It satisfies batch.Launcher and task.Connection.
type Launcher struct {
	runner  Runner
	shell   string
	tempDir string
	logger  *slog.Logger
}

// NewLauncher wraps runner. tempDir is where scripts are staged; empty means
// the remote user's %TEMP%.
func NewLauncher(runner Runner, shell, tempDir string, logger *slog.Logger) *Launcher {
	if shell == "" {
		shell = DefaultShell
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		runner:  runner,
		shell:   shell,
		tempDir: tempDir,
		logger:  logger.With("component", "remote_launcher"),
	}
}

// Launch runs script and returns its standard output. The script's own exit
// status is not a launch failure; completion is judged from the output. A
// non-zero exit with nothing captured means the staging step failed and is
// reported as ProcessExecFailed.
func (l *Launcher) Launch(ctx context.Context, script string) (string, resultcode.Code, error) {
	command, err := StageCommand(l.shell, l.tempDir, script)
	if err != nil {
		return "", resultcode.ProcessExecFailed, err
	}

	start := time.Now()
	stdout, stderr, exitCode, err := l.runner.Run(ctx, command)
	l.logger.Debug("Remote command returned",
		"exit_code", exitCode,
		"stdout_bytes", len(stdout),
		"elapsed", time.Since(start),
	)
	if err != nil {
		return "", resultcode.RemoteCommandExecutionError, fmt.Errorf("remote execution failed: %w", err)
	}
	if exitCode != 0 {
		if stdout == "" {
			l.logger.Error("Remote process could not be launched",
				"exit_code", exitCode,
				"stderr", strings.TrimSpace(stderr),
			)
			return "", resultcode.ProcessExecFailed, nil
		}
		l.logger.Debug("Remote command exited non-zero", "exit_code", exitCode)
	}
	return stdout, resultcode.Success, nil
}

// Close releases the underlying connection.
func (l *Launcher) Close() error {
	return l.runner.Close()
}

const stagingTemplate = `$ErrorActionPreference = 'Stop'
$dir = %s
$p = Join-Path $dir '%s'
[IO.File]::WriteAllBytes($p, [Convert]::FromBase64String('%s'))
try {
  & cmd.exe /Q /C $p
} finally {
  Remove-Item -LiteralPath $p -Force -ErrorAction SilentlyContinue
}
exit 0
`

// StageCommand returns a PowerShell command line that writes script to a
// uniquely named .cmd file, runs it and deletes it on every exit path.
func StageCommand(shell, tempDir, script string) (string, error) {
	dir := "$env:TEMP"
	if tempDir != "" {
		dir = "'" + strings.ReplaceAll(tempDir, "'", "''") + "'"
	}
	name := uuid.NewString() + ".cmd"
	body := base64.StdEncoding.EncodeToString([]byte(script))
	ps := fmt.Sprintf(stagingTemplate, dir, name, body)

	// -EncodedCommand takes base64 of UTF-16LE text.
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(ps)
	if err != nil {
		return "", fmt.Errorf("failed to encode staging command: %w", err)
	}
	return fmt.Sprintf("%s -NoProfile -NonInteractive -ExecutionPolicy Bypass -EncodedCommand %s",
		shell, base64.StdEncoding.EncodeToString([]byte(encoded))), nil
}

// Dial connects to target with the protocol it names (WinRM when empty) and
// verifies the session can be used.
func Dial(ctx context.Context, cfg Config, target task.Target, logger *slog.Logger) (*Launcher, resultcode.Code) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "remote", "host", target.Host, "protocol", target.Protocol)

	if target.Host == "" {
		logger.Error("No target host supplied")
		return nil, resultcode.NullConnectionObject
	}

	var (
		runner Runner
		err    error
	)
	switch strings.ToLower(target.Protocol) {
	case "", ProtocolWinRM:
		runner, err = dialWinRM(ctx, cfg, target)
	case ProtocolSSH:
		runner, err = dialSSH(ctx, cfg, target)
	default:
		logger.Error("Unsupported remote protocol")
		return nil, resultcode.InvalidParameterType
	}

	if err != nil {
		if errors.Is(err, errLogin) {
			logger.Error("Remote login failed", "error", err)
			return nil, resultcode.LoginFailed
		}
		logger.Error("Remote host connection failed", "error", err)
		return nil, resultcode.HostConnectFailed
	}

	logger.Debug("Remote connection established")
	return NewLauncher(runner, cfg.Shell, target.TempDirectory, logger), resultcode.Success
}
