package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/delimiter"
	"github.com/nmslite/inventory-agent/internal/dispatch"
	"github.com/nmslite/inventory-agent/internal/middleware"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticUnit struct{ value string }

func (u staticUnit) Name() string { return "static" }

func (u staticUnit) Connect(context.Context, *task.Task) (task.Connection, resultcode.Code) {
	return nil, resultcode.Success
}

func (u staticUnit) Collect(_ context.Context, _ *task.Task, _ task.Connection, buf *datarow.Buffer) resultcode.Code {
	_ = buf.Append("value", u.value)
	return resultcode.Success
}

func newTestRouter(t *testing.T, maxBatch int, units ...task.Unit) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	reg := task.NewRegistry(logger)
	if err := reg.Register(units...); err != nil {
		t.Fatal(err)
	}
	d := dispatch.NewDispatcher(reg, task.NewRunner(delimiter.Default(), logger), logger)
	return NewRouter(d, maxBatch, logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	router := newTestRouter(t, 0, staticUnit{})

	t.Run("Health", func(t *testing.T) {
		w := do(t, router, "GET", "/health", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
		var resp HealthResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status != "ok" {
			t.Errorf("expected status ok, got %s", resp.Status)
		}
		if w.Header().Get(middleware.RequestIDHeader) == "" {
			t.Error("expected a generated request id header")
		}
	})

	t.Run("Ready", func(t *testing.T) {
		w := do(t, router, "GET", "/ready", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
		var resp ReadinessResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Units != 1 {
			t.Errorf("expected 1 unit, got %d", resp.Units)
		}
	})

	t.Run("NotReady", func(t *testing.T) {
		w := do(t, newTestRouter(t, 0), "GET", "/ready", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}

func TestListUnits(t *testing.T) {
	w := do(t, newTestRouter(t, 0, staticUnit{}), "GET", "/api/v1/units", "")
	var resp UnitsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"static"}, resp.Units); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitSingle(t *testing.T) {
	router := newTestRouter(t, 0, staticUnit{value: "v"})
	body := `{"unit":"static","task_id":5,"element_id":6,"attributes":{"value":1}}`

	req := httptest.NewRequest("POST", "/api/v1/tasks", strings.NewReader(body))
	req.Header.Set(middleware.RequestIDHeader, "caller-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["result_code"] != "RC_SUCCESS" {
		t.Errorf("result_code = %v", resp["result_code"])
	}
	if resp["request_id"] != "caller-id" {
		t.Errorf("request_id = %v, want caller-id", resp["request_id"])
	}
	if !strings.Contains(resp["payload"].(string), "v") {
		t.Errorf("payload = %v", resp["payload"])
	}
}

func TestSubmitBatch(t *testing.T) {
	router := newTestRouter(t, 0, staticUnit{value: "v"})
	body := `[
		{"unit":"static","task_id":1,"attributes":{"value":1}},
		{"unit":"unknown","task_id":2},
		{"task_id":3}
	]`

	w := do(t, router, "POST", "/api/v1/tasks", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var resps []dispatch.Response
	if err := json.NewDecoder(w.Body).Decode(&resps); err != nil {
		t.Fatal(err)
	}

	got := make([]resultcode.Code, len(resps))
	for i, r := range resps {
		got[i] = r.ResultCode
		if r.TaskID != int64(i+1) {
			t.Errorf("response %d has task id %d", i, r.TaskID)
		}
		if !strings.HasSuffix(r.RequestID, "-"+string(rune('0'+i))) {
			t.Errorf("response %d request id = %q", i, r.RequestID)
		}
	}
	want := []resultcode.Code{resultcode.Success, resultcode.ProcessingException, resultcode.InvalidParameterType}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"invalid json", `{"unit":`, http.StatusBadRequest, "INVALID_BODY"},
		{"invalid array", `[1,2]`, http.StatusBadRequest, "INVALID_BODY"},
		{"batch too large", `[{"unit":"static"},{"unit":"static"},{"unit":"static"}]`, http.StatusBadRequest, "BATCH_TOO_LARGE"},
	}

	router := newTestRouter(t, 2, staticUnit{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/tasks", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
			var resp middleware.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error.Code != tt.wantErr {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantErr)
			}
			if resp.Error.RequestID == "" {
				t.Error("error response should carry the request id")
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	h := middleware.RequestID(middleware.Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := do(t, h, "GET", "/", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
