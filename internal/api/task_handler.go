package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/nmslite/inventory-agent/internal/dispatch"
	"github.com/nmslite/inventory-agent/internal/middleware"
)

// maxBodyBytes bounds a task submission body.
const maxBodyBytes = 16 << 20

// TaskHandler accepts task submissions and runs them synchronously.
type TaskHandler struct {
	dispatcher *dispatch.Dispatcher
	maxBatch   int
	logger     *slog.Logger
}

func NewTaskHandler(d *dispatch.Dispatcher, maxBatch int, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		dispatcher: d,
		maxBatch:   maxBatch,
		logger:     logger.With("component", "task_handler"),
	}
}

// UnitsResponse lists the registered collection units.
type UnitsResponse struct {
	Units []string `json:"units"`
}

// ListUnits handles GET /api/v1/units
func (h *TaskHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, UnitsResponse{Units: h.dispatcher.Units()})
}

// Submit handles POST /api/v1/tasks. The body is either one request object,
// answered with one response, or an array, answered with an array in the
// same order.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		sendError(w, r, http.StatusBadRequest, "INVALID_BODY", "Failed to read body", err.Error())
		return
	}
	if len(body) > maxBodyBytes {
		sendError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", nil)
		return
	}

	reqs, batch, err := dispatch.DecodeRequests(body)
	if err != nil {
		sendError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body", err.Error())
		return
	}
	if !batch {
		req := reqs[0]
		if req.RequestID == "" {
			req.RequestID = middleware.GetRequestID(r.Context())
		}
		resp := h.dispatcher.Dispatch(r.Context(), req)
		middleware.Annotate(r.Context(),
			"unit", resp.Unit,
			"task_id", resp.TaskID,
			"result_code", resp.ResultCode.String(),
			"rows", resp.Rows,
		)
		sendJSON(w, http.StatusOK, resp)
		return
	}
	if h.maxBatch > 0 && len(reqs) > h.maxBatch {
		sendError(w, r, http.StatusBadRequest, "BATCH_TOO_LARGE",
			fmt.Sprintf("At most %d tasks per request", h.maxBatch), nil)
		return
	}
	h.fillRequestIDs(r, reqs)
	resps := h.dispatcher.DispatchBatch(r.Context(), reqs)
	failed := 0
	for _, resp := range resps {
		if !resp.ResultCode.IsSuccess() {
			failed++
		}
	}
	middleware.Annotate(r.Context(), "tasks", len(resps), "failed_tasks", failed)
	sendJSON(w, http.StatusOK, resps)
}

// fillRequestIDs derives ids for batch entries that carry none, so the log
// lines of one HTTP request can be correlated.
func (h *TaskHandler) fillRequestIDs(r *http.Request, reqs []dispatch.Request) {
	base := middleware.GetRequestID(r.Context())
	if base == "" {
		return
	}
	for i := range reqs {
		if reqs[i].RequestID == "" {
			reqs[i].RequestID = fmt.Sprintf("%s-%d", base, i)
		}
	}
}
