package units

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

const (
	AttrWMIOperatingSystem = "wmiOperatingSystem"
	AttrWMIProcessors      = "wmiProcessors"
	AttrWMILogicalDisks    = "wmiLogicalDisks"
	AttrWMINetworkAdapters = "wmiNetworkAdapters"
)

// wmiQuery is one WMI class read. Records are keyed by the key property, or
// by the class name when key is empty.
type wmiQuery struct {
	attribute string
	class     string
	filter    string
	key       string
	props     []string
}

var wmiQueries = []wmiQuery{
	{
		attribute: AttrWMIOperatingSystem,
		class:     "Win32_OperatingSystem",
		props:     []string{"Caption", "Version", "BuildNumber", "OSArchitecture", "TotalVisibleMemorySize", "FreePhysicalMemory"},
	},
	{
		attribute: AttrWMIProcessors,
		class:     "Win32_Processor",
		key:       "DeviceID",
		props:     []string{"DeviceID", "Name", "NumberOfCores", "NumberOfLogicalProcessors", "MaxClockSpeed"},
	},
	{
		attribute: AttrWMILogicalDisks,
		class:     "Win32_LogicalDisk",
		filter:    "DriveType=3",
		key:       "DeviceID",
		props:     []string{"DeviceID", "FileSystem", "VolumeName", "Size", "FreeSpace"},
	},
	{
		attribute: AttrWMINetworkAdapters,
		class:     "Win32_NetworkAdapterConfiguration",
		filter:    "IPEnabled=True",
		key:       "Index",
		props:     []string{"Index", "Description", "MACAddress", "IPAddress", "DefaultIPGateway", "DHCPEnabled"},
	},
}

// command renders q as a PowerShell one-liner emitting compressed JSON.
func (q wmiQuery) command() string {
	var b strings.Builder
	b.WriteString(`powershell.exe -NoProfile -NonInteractive -Command "Get-WmiObject -Class `)
	b.WriteString(q.class)
	if q.filter != "" {
		b.WriteString(` -Filter '` + q.filter + `'`)
	}
	b.WriteString(` | Select-Object ` + strings.Join(q.props, ","))
	b.WriteString(` | ConvertTo-Json -Compress"`)
	return b.String()
}

// WMIInventory reads operating system, processor, disk and network adapter
// inventory from WMI on a Windows target. Each mapped attribute is one WMI
// query; a failed query does not stop the others.
type WMIInventory struct {
	dial    DialFunc
	builder *batch.Builder
	logger  *slog.Logger
}

func NewWMIInventory(dial DialFunc, builder *batch.Builder, logger *slog.Logger) *WMIInventory {
	return &WMIInventory{dial: dial, builder: builder, logger: logger.With("unit", "wmiInventory")}
}

func (u *WMIInventory) Name() string { return "wmiInventory" }

func (u *WMIInventory) Connect(ctx context.Context, t *task.Task) (task.Connection, resultcode.Code) {
	return dialRemote(ctx, u.dial, t, u.logger)
}

func (u *WMIInventory) Collect(ctx context.Context, t *task.Task, conn task.Connection, buf *datarow.Buffer) resultcode.Code {
	logger := u.logger.With("task_id", t.TaskID)

	launcher, ok := conn.(batch.Launcher)
	if !ok || launcher == nil {
		logger.Error("Connection object is null or cannot run commands")
		return resultcode.NullConnectionObject
	}
	if code := requireAttributes(t, logger); !code.IsSuccess() {
		return code
	}

	var tracker resultcode.Tracker
	for _, q := range wmiQueries {
		if !buf.Mapped(q.attribute) {
			continue
		}
		records, code := u.query(ctx, launcher, q, logger)
		if !code.IsSuccess() {
			tracker.Set(code)
			continue
		}
		if len(records) == 0 {
			logger.Debug("WMI query returned no instances", "class", q.class)
			continue
		}
		if err := buf.AppendRecords(q.attribute, records); err != nil {
			logger.Error("Failed to append WMI result", "class", q.class, "error", err)
		}
	}
	return tracker.Code()
}

func (u *WMIInventory) query(ctx context.Context, launcher batch.Launcher, q wmiQuery, logger *slog.Logger) ([]datarow.Record, resultcode.Code) {
	logger = logger.With("class", q.class)

	payload, code := u.builder.Execute(ctx, launcher, u.builder.Config().DefaultDirectory, q.command())
	if !code.IsSuccess() {
		logger.Error("WMI query could not be run", "code", code)
		return nil, code
	}

	records, err := parseWMI(payload, q)
	if err != nil {
		code := classifyWMIError(payload)
		logger.Error("WMI query failed", "code", code, "error", err)
		return nil, code
	}
	return records, resultcode.Success
}

// parseWMI decodes ConvertTo-Json output, which is an object for a single
// instance and an array otherwise.
func parseWMI(payload string, q wmiQuery) ([]datarow.Record, error) {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()

	var instances []map[string]any
	if strings.HasPrefix(trimmed, "[") {
		if err := dec.Decode(&instances); err != nil {
			return nil, fmt.Errorf("failed to parse %s data: %w", q.class, err)
		}
	} else {
		var single map[string]any
		if err := dec.Decode(&single); err != nil {
			return nil, fmt.Errorf("failed to parse %s data: %w", q.class, err)
		}
		instances = []map[string]any{single}
	}

	records := make([]datarow.Record, 0, len(instances))
	for i, inst := range instances {
		key := q.class
		if q.key != "" {
			key = wmiValue(inst[q.key])
		}
		if key == "" {
			key = fmt.Sprintf("%s.%d", q.class, i)
		}
		rec := datarow.NewRecord(key)
		for _, prop := range q.props {
			if prop == q.key {
				continue
			}
			if v := wmiValue(inst[prop]); v != "" {
				rec.Set(prop, v)
			}
		}
		records = append(records, *rec)
	}
	return records, nil
}

func wmiValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "True"
		}
		return "False"
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			if s := wmiValue(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

// classifyWMIError maps PowerShell error text to a result code.
func classifyWMIError(output string) resultcode.Code {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "access denied"), strings.Contains(lower, "access is denied"):
		return resultcode.InsufficientPrivilegeToRunWMIQuery
	case strings.Contains(lower, "rpc server is unavailable"):
		return resultcode.WMIConnectionFailed
	case strings.Contains(lower, "timed out"), strings.Contains(lower, "timeout"):
		return resultcode.WMIQueryTimeout
	default:
		return resultcode.ProcessingException
	}
}
