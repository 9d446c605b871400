package resultcode

import (
	"encoding/json"
	"testing"
)

func TestStringAndParse(t *testing.T) {
	for _, c := range All() {
		parsed, err := Parse(c.String())
		if err != nil {
			t.Errorf("Parse(%s) error = %v", c, err)
			continue
		}
		if parsed != c {
			t.Errorf("Parse(%s) = %s", c, parsed)
		}
	}

	if _, err := Parse("RC_NOT_A_CODE"); err == nil {
		t.Error("expected error for unknown code")
	}
	if Code(999).Valid() {
		t.Error("Code(999) should not be valid")
	}
}

func TestCategory(t *testing.T) {
	testCases := []struct {
		code Code
		want Category
	}{
		{Success, CategorySuccess},
		{ScriptParameterMissing, CategoryInput},
		{HostConnectFailed, CategoryConnectivity},
		{InsufficientPrivilegeToRunWMIQuery, CategoryAuthorization},
		{RemoteCommandExecutionError, CategoryRemoteExec},
		{SQLServerDatabaseQueryError, CategoryQuery},
		{ProcessingException, CategoryProcessing},
		{Code(-1), CategoryProcessing},
	}

	for _, tc := range testCases {
		t.Run(tc.code.String(), func(t *testing.T) {
			if got := tc.code.Category(); got != tc.want {
				t.Errorf("Category() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestJSON(t *testing.T) {
	type payload struct {
		Code Code `json:"code"`
	}

	data, err := json.Marshal(payload{Code: WMIQueryTimeout})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(data) != `{"code":"RC_WMI_QUERY_TIMEOUT"}` {
		t.Errorf("Marshal = %s", data)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if p.Code != WMIQueryTimeout {
		t.Errorf("Unmarshal code = %s", p.Code)
	}
}

func TestTrackerPrecedence(t *testing.T) {
	var tr Tracker
	if tr.Code() != Success {
		t.Fatalf("zero Tracker = %s, want success", tr.Code())
	}

	tr.Set(HostConnectFailed)
	if got := tr.Set(Success); got != HostConnectFailed {
		t.Errorf("failure reverted to %s", got)
	}
	if got := tr.Set(LoginFailed); got != HostConnectFailed {
		t.Errorf("failure replaced by %s", got)
	}
	if got := tr.Set(ProcessingException); got != ProcessingException {
		t.Errorf("escalation gave %s", got)
	}
}

func TestTrackerDowngradeOptional(t *testing.T) {
	var tr Tracker
	tr.Set(ProcessingException)

	if got := tr.DowngradeOptional(); got != Success {
		t.Errorf("DowngradeOptional() = %s, want success", got)
	}
	if got := tr.Escalate(); got != ProcessingException {
		t.Errorf("Escalate() = %s", got)
	}
}
