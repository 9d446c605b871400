package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRequestID(t *testing.T) {
	testCases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"Missing", "", false},
		{"CallerID", "dispatch-42.batch_7:a", true},
		{"TooLong", strings.Repeat("a", maxRequestIDLen+1), false},
		{"MaxLength", strings.Repeat("a", maxRequestIDLen), true},
		{"Whitespace", "two words", false},
		{"ControlChars", "id\r\nX-Injected: 1", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tc.header != "" {
				req.Header.Set(RequestIDHeader, tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if seen == "" {
				t.Fatal("no request id in context")
			}
			if got := w.Header().Get(RequestIDHeader); got != seen {
				t.Errorf("header = %q, context = %q", got, seen)
			}
			if (seen == tc.header) != tc.keep {
				t.Errorf("request id = %q, keep caller id %v", seen, tc.keep)
			}
		})
	}
}

func logLine(t *testing.T, logs *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(logs.Bytes(), &line); err != nil {
		t.Fatalf("log is not one JSON line: %v\n%s", err, logs.String())
	}
	return line
}

func TestLoggerCarriesAnnotations(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Annotate(r.Context(), "unit", "replay", "task_id", 11)
		Annotate(r.Context(), "result_code", "RC_SUCCESS")
		w.WriteHeader(http.StatusOK)
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := logLine(t, &logs)
	got := map[string]any{}
	for _, k := range []string{"level", "msg", "request_id", "path", "status", "unit", "task_id", "result_code"} {
		got[k] = line[k]
	}
	want := map[string]any{
		"level":       "INFO",
		"msg":         "Request completed",
		"request_id":  "req-1",
		"path":        "/api/v1/tasks",
		"status":      float64(200),
		"unit":        "replay",
		"task_id":     float64(11),
		"result_code": "RC_SUCCESS",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("log line mismatch (-want +got):\n%s", diff)
	}
}

func TestLoggerErrorLevelAndErrorCode(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SendError(w, r, http.StatusServiceUnavailable, "NOT_READY", "no units", nil)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))

	line := logLine(t, &logs)
	if line["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", line["level"])
	}
	if line["error_code"] != "NOT_READY" {
		t.Errorf("error_code = %v, want NOT_READY", line["error_code"])
	}
}

func TestAnnotateOutsideLogger(t *testing.T) {
	// must not panic
	Annotate(context.Background(), "unit", "replay")
}

func TestRecovery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	h := RequestID(Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("unit blew up")
	})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tasks", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if resp.Error.Code != "INTERNAL_ERROR" || resp.Error.RequestID == "" {
		t.Errorf("error body = %+v", resp.Error)
	}
	if !strings.Contains(logs.String(), "unit blew up") {
		t.Errorf("panic not logged:\n%s", logs.String())
	}
}
