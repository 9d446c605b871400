// Package resultcode is the closed set of task outcomes reported back to the
// dispatcher.
package resultcode

import (
	"fmt"
)

// Code is a task outcome. The zero value is Success.
type Code int

const (
	Success Code = iota

	// missing or invalid input
	NullConnectionObject
	ScriptParameterMissing
	NullAttributeSet
	InvalidParameterType
	NullParameterSet
	BadCollectionScript

	// connectivity
	HostConnectFailed
	WMIConnectionFailed
	WMIQueryTimeout
	LoginFailed

	// authorization
	InsufficientPrivilegeToReadRemoteFile
	InsufficientPrivilegeToRunWMIQuery
	InsufficientPrivilegeToAccessFileProperty
	InsufficientPrivilegeToReadRegistry

	// remote execution
	RemoteCommandExecutionError
	ProcessExecFailed

	// query
	SQLServerDatabaseQueryError

	// ProcessingException is the catch-all, used only when nothing more
	// specific applies.
	ProcessingException
)

// Category groups codes for reporting.
type Category string

const (
	CategorySuccess       Category = "success"
	CategoryInput         Category = "input"
	CategoryConnectivity  Category = "connectivity"
	CategoryAuthorization Category = "authorization"
	CategoryRemoteExec    Category = "remote_execution"
	CategoryQuery         Category = "query"
	CategoryProcessing    Category = "processing"
)

type info struct {
	name     string
	category Category
}

var codes = map[Code]info{
	Success:                                   {"RC_SUCCESS", CategorySuccess},
	NullConnectionObject:                      {"RC_NULL_CONNECTION_OBJECT", CategoryInput},
	ScriptParameterMissing:                    {"RC_SCRIPT_PARAMETER_MISSING", CategoryInput},
	NullAttributeSet:                          {"RC_NULL_ATTRIBUTE_SET", CategoryInput},
	InvalidParameterType:                      {"RC_INVALID_PARAMETER_TYPE", CategoryInput},
	NullParameterSet:                          {"RC_NULL_PARAMETER_SET", CategoryInput},
	BadCollectionScript:                       {"RC_BAD_COLLECTION_SCRIPT", CategoryInput},
	HostConnectFailed:                         {"RC_HOST_CONNECT_FAILED", CategoryConnectivity},
	WMIConnectionFailed:                       {"RC_WMI_CONNECTION_FAILED", CategoryConnectivity},
	WMIQueryTimeout:                           {"RC_WMI_QUERY_TIMEOUT", CategoryConnectivity},
	LoginFailed:                               {"RC_LOGIN_FAILED", CategoryConnectivity},
	InsufficientPrivilegeToReadRemoteFile:     {"RC_INSUFFICIENT_PRIVILEGE_TO_READ_REMOTE_FILE", CategoryAuthorization},
	InsufficientPrivilegeToRunWMIQuery:        {"RC_INSUFFICIENT_PRIVILEGE_TO_RUN_WMI_QUERY", CategoryAuthorization},
	InsufficientPrivilegeToAccessFileProperty: {"RC_INSUFFICIENT_PRIVILEGE_TO_ACCESS_FILE_PROPERTY", CategoryAuthorization},
	InsufficientPrivilegeToReadRegistry:       {"RC_INSUFFICIENT_PRIVILEGE_TO_READ_REGISTRY", CategoryAuthorization},
	RemoteCommandExecutionError:               {"RC_REMOTE_COMMAND_EXECUTION_ERROR", CategoryRemoteExec},
	ProcessExecFailed:                         {"RC_PROCESS_EXEC_FAILED", CategoryRemoteExec},
	SQLServerDatabaseQueryError:               {"RC_SQL_SERVER_DATABASE_QUERY_ERROR", CategoryQuery},
	ProcessingException:                       {"RC_PROCESSING_EXCEPTION", CategoryProcessing},
}

var byName = func() map[string]Code {
	m := make(map[string]Code, len(codes))
	for c, i := range codes {
		m[i.name] = c
	}
	return m
}()

// String returns the wire name, e.g. RC_SUCCESS.
func (c Code) String() string {
	if i, ok := codes[c]; ok {
		return i.name
	}
	return fmt.Sprintf("RC_UNKNOWN(%d)", int(c))
}

// Category returns the group the code belongs to. Unknown codes are treated
// as processing failures.
func (c Code) Category() Category {
	if i, ok := codes[c]; ok {
		return i.category
	}
	return CategoryProcessing
}

// IsSuccess reports whether c is Success.
func (c Code) IsSuccess() bool {
	return c == Success
}

// Valid reports whether c is a member of the closed set.
func (c Code) Valid() bool {
	_, ok := codes[c]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid result code %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	code, ok := byName[string(text)]
	if !ok {
		return fmt.Errorf("unknown result code %q", string(text))
	}
	*c = code
	return nil
}

// Parse looks a code up by its wire name.
func Parse(name string) (Code, error) {
	var c Code
	err := c.UnmarshalText([]byte(name))
	return c, err
}

// All returns every code in declaration order.
func All() []Code {
	out := make([]Code, 0, len(codes))
	for c := Success; c <= ProcessingException; c++ {
		out = append(out, c)
	}
	return out
}

// Tracker holds the outcome of one unit of work and enforces precedence:
// once a failure is recorded it can only be replaced by ProcessingException,
// never reverted to Success. The zero value starts at Success.
type Tracker struct {
	code Code
}

// Code returns the current outcome.
func (t *Tracker) Code() Code {
	return t.code
}

// Set records next. A failure already recorded is kept unless next is
// ProcessingException. It returns the resulting code.
func (t *Tracker) Set(next Code) Code {
	if t.code == Success || next == ProcessingException {
		t.code = next
	}
	return t.code
}

// Escalate records an unanticipated failure.
func (t *Tracker) Escalate() Code {
	t.code = ProcessingException
	return t.code
}

// DowngradeOptional turns the failure of a best-effort enrichment step into
// success with an empty payload. It is the only path from a failure back to
// Success; call it only where the collected data is optional and say so at
// the call site.
func (t *Tracker) DowngradeOptional() Code {
	t.code = Success
	return t.code
}
