package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nmslite/inventory-agent/internal/resultcode"
)

// Launcher ships a script to the target, runs it and returns its captured
// standard output. A non-success code reports a launch failure the launcher
// could classify itself; err reports anything else.
type Launcher interface {
	Launch(ctx context.Context, script string) (stdout string, code resultcode.Code, err error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, script string) (string, resultcode.Code, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, script string) (string, resultcode.Code, error) {
	return f(ctx, script)
}

// Validate checks captured output and strips the trailing completion line.
// Text after the last sentinel is not part of the payload and is logged.
func (b *Builder) Validate(output string) (string, resultcode.Code) {
	if output == "" {
		b.logger.Error("Batch file returned no data")
		return "", resultcode.RemoteCommandExecutionError
	}

	idx := strings.LastIndex(output, b.cfg.CompletionSentinel)
	if idx < 0 {
		b.logger.Error("Batch output is shorter than expected, possibly due to transfer failure",
			"partial_result", output,
		)
		return "", resultcode.RemoteCommandExecutionError
	}

	rest := output[idx+len(b.cfg.CompletionSentinel):]
	if strings.Trim(rest, "\r\n") != "" {
		b.logger.Warn("Output after completion sentinel discarded", "discarded", rest)
	}
	return output[:idx], resultcode.Success
}

// Execute builds the script for commandLine, runs it through launcher and
// validates the output. Launcher errors and panics become
// RemoteCommandExecutionError.
func (b *Builder) Execute(ctx context.Context, launcher Launcher, workingDirectory, commandLine string) (payload string, code resultcode.Code) {
	logger := b.logger.With("working_directory", workingDirectory)
	script := b.BuildScript(workingDirectory, commandLine)

	start := time.Now()
	output, code, err := b.launch(ctx, launcher, script)
	logger.Debug("Remote batch execution finished", "elapsed", time.Since(start), "code", code)

	if err != nil {
		logger.Error("Remote command execution failed", "error", err)
		return "", resultcode.RemoteCommandExecutionError
	}
	if !code.IsSuccess() {
		logger.Error("Remote process launch failed", "code", code)
		return "", code
	}

	return b.Validate(output)
}

func (b *Builder) launch(ctx context.Context, launcher Launcher, script string) (output string, code resultcode.Code, err error) {
	defer func() {
		if r := recover(); r != nil {
			output, code, err = "", resultcode.RemoteCommandExecutionError, fmt.Errorf("launcher panic: %v", r)
		}
	}()
	return launcher.Launch(ctx, script)
}
