package task

import (
	"sort"
	"strings"
	"time"

	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/resultcode"
)

// ParamCollectorID is the script parameter carrying the collector id stamped
// on every row.
const ParamCollectorID = "CollectorId"

// Credentials for the managed host. Units use whichever fields their
// protocol needs.
type Credentials struct {
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Domain     string `json:"domain,omitempty"`
	UseHTTPS   bool   `json:"use_https,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Community  string `json:"community,omitempty"`
}

// Target is the managed host a task runs against.
type Target struct {
	Host             string      `json:"host"`
	Port             int         `json:"port,omitempty" validate:"gte=0,lte=65535"`
	Protocol         string      `json:"protocol,omitempty"`
	Credentials      Credentials `json:"credentials"`
	WorkingDirectory string      `json:"working_directory,omitempty"`
	TempDirectory    string      `json:"temp_directory,omitempty"`
}

// Task is one unit of work handed over by the dispatcher.
type Task struct {
	TaskID            int64
	CleID             int64
	ElementID         int64
	DatabaseTimestamp int64
	LocalTimestamp    int64
	// Attributes maps attribute name to attribute id.
	Attributes map[string]int64
	// Parameters are the script parameters, keys already normalized.
	Parameters map[string]string
	Target     Target
}

// NormalizeParameters strips the "set:" style prefix from parameter keys,
// so "set:commandLine" becomes "commandLine". A plain key wins over a
// prefixed one.
func NormalizeParameters(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if i := strings.IndexByte(k, ':'); i >= 0 {
			name := k[i+1:]
			if _, plain := in[name]; plain {
				continue
			}
			out[name] = v
			continue
		}
		out[k] = v
	}
	return out
}

// Param returns a script parameter.
func (t *Task) Param(name string) (string, bool) {
	v, ok := t.Parameters[name]
	return v, ok
}

// CollectorID returns the CollectorId parameter.
func (t *Task) CollectorID() string {
	return t.Parameters[ParamCollectorID]
}

// AttributeNames returns the requested attribute names, sorted.
func (t *Task) AttributeNames() []string {
	names := make([]string, 0, len(t.Attributes))
	for name := range t.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Header returns the row header fields for this task.
func (t *Task) Header() datarow.Header {
	return datarow.Header{
		ElementID:         t.ElementID,
		CollectorID:       t.CollectorID(),
		TaskID:            t.TaskID,
		DatabaseTimestamp: t.DatabaseTimestamp,
	}
}

// Result is what a finished task reports back.
type Result struct {
	Code resultcode.Code
	// Payload is the serialized row buffer, possibly empty.
	Payload string
	Rows    int
	Elapsed time.Duration
}

