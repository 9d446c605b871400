package units

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

const (
	ParamCommandLine      = "commandLine"
	ParamWorkingDirectory = "workingDirectory"

	AttrCommandResult = "commandResult"
)

// RemoteCommand runs an arbitrary command line on the target through a
// generated batch script and reports its output as commandResult.
type RemoteCommand struct {
	dial    DialFunc
	builder *batch.Builder
	logger  *slog.Logger
}

func NewRemoteCommand(dial DialFunc, builder *batch.Builder, logger *slog.Logger) *RemoteCommand {
	return &RemoteCommand{dial: dial, builder: builder, logger: logger.With("unit", "remoteCommand")}
}

func (u *RemoteCommand) Name() string { return "remoteCommand" }

func (u *RemoteCommand) Connect(ctx context.Context, t *task.Task) (task.Connection, resultcode.Code) {
	return dialRemote(ctx, u.dial, t, u.logger)
}

func (u *RemoteCommand) Collect(ctx context.Context, t *task.Task, conn task.Connection, buf *datarow.Buffer) resultcode.Code {
	logger := u.logger.With("task_id", t.TaskID)

	launcher, ok := conn.(batch.Launcher)
	if !ok || launcher == nil {
		logger.Error("Connection object is null or cannot run commands")
		return resultcode.NullConnectionObject
	}
	if code := requireAttributes(t, logger); !code.IsSuccess() {
		return code
	}
	if t.Parameters == nil {
		logger.Error("Script parameters are null")
		return resultcode.NullParameterSet
	}
	commandLine, ok := t.Param(ParamCommandLine)
	if !ok || commandLine == "" {
		logger.Error("Missing script parameter", "parameter", ParamCommandLine)
		return resultcode.ScriptParameterMissing
	}
	if !buf.Mapped(AttrCommandResult) {
		logger.Error("Expected attribute name not found in attribute map", "attribute", AttrCommandResult)
		return resultcode.NullAttributeSet
	}

	payload, code := u.builder.Execute(ctx, launcher, workingDirectory(t, u.builder), commandLine)
	if !code.IsSuccess() {
		return code
	}

	if buf.Delimiters().Contains(payload) {
		logger.Warn("Command output contains a delimiter token; decoding will be ambiguous")
	}
	if err := buf.Append(AttrCommandResult, payload); err != nil && !errors.Is(err, datarow.ErrEmptyValue) {
		logger.Error("Failed to append command result", "error", err)
	}
	return resultcode.Success
}

// workingDirectory picks the parameter, then the target setting, then the
// builder default.
func workingDirectory(t *task.Task, b *batch.Builder) string {
	if dir, ok := t.Param(ParamWorkingDirectory); ok && dir != "" {
		return dir
	}
	if t.Target.WorkingDirectory != "" {
		return t.Target.WorkingDirectory
	}
	return b.Config().DefaultDirectory
}

func dialRemote(ctx context.Context, dial DialFunc, t *task.Task, logger *slog.Logger) (task.Connection, resultcode.Code) {
	if dial == nil {
		logger.Error("No remote dialer configured", "task_id", t.TaskID)
		return nil, resultcode.NullConnectionObject
	}
	conn, code := dial(ctx, t.Target)
	if conn == nil {
		if code.IsSuccess() {
			code = resultcode.NullConnectionObject
		}
		return nil, code
	}
	return conn, code
}
