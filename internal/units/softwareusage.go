package units

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

const (
	ParamUsageDataPath = "usageDataPath"

	AttrServiceSUData = "serviceSUData"

	usageResultFile = "result.cvs"
)

// SoftwareUsage reads the usage statistics file left by the usage agent on
// the target. The statistics are optional enrichment: a failed read still
// reports success, with an empty value.
type SoftwareUsage struct {
	dial    DialFunc
	builder *batch.Builder
	logger  *slog.Logger
}

func NewSoftwareUsage(dial DialFunc, builder *batch.Builder, logger *slog.Logger) *SoftwareUsage {
	return &SoftwareUsage{dial: dial, builder: builder, logger: logger.With("unit", "softwareUsage")}
}

func (u *SoftwareUsage) Name() string { return "softwareUsage" }

func (u *SoftwareUsage) Connect(ctx context.Context, t *task.Task) (task.Connection, resultcode.Code) {
	return dialRemote(ctx, u.dial, t, u.logger)
}

func (u *SoftwareUsage) Collect(ctx context.Context, t *task.Task, conn task.Connection, buf *datarow.Buffer) resultcode.Code {
	logger := u.logger.With("task_id", t.TaskID)

	launcher, ok := conn.(batch.Launcher)
	if !ok || launcher == nil {
		logger.Error("Connection object is null or cannot run commands")
		return resultcode.NullConnectionObject
	}
	if code := requireAttributes(t, logger); !code.IsSuccess() {
		return code
	}

	dataPath, _ := t.Param(ParamUsageDataPath)
	if dataPath == "" {
		// agent not installed; nothing to report
		logger.Debug("No usage data path supplied")
		return resultcode.Success
	}

	var tracker resultcode.Tracker
	payload, code := u.builder.Execute(ctx, launcher, u.builder.Config().DefaultDirectory, usageCommand(dataPath))
	tracker.Set(code)
	if !tracker.Code().IsSuccess() {
		logger.Warn("Usage statistics could not be read; reporting empty result", "code", tracker.Code())
		// Optional enrichment: the failure is downgraded on purpose.
		tracker.DowngradeOptional()
		payload = ""
	}

	value := buf.Delimiters().JoinList(splitLines(payload))
	if value != "" {
		if err := buf.Append(AttrServiceSUData, value); err != nil {
			logger.Error("Failed to append usage statistics", "error", err)
		}
	}
	return tracker.Code()
}

func usageCommand(dataPath string) string {
	return `TYPE "` + strings.TrimRight(dataPath, `\`) + `\` + usageResultFile + `"`
}

// splitLines splits CRLF or LF separated text, dropping blank lines.
func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
