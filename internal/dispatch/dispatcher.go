// Package dispatch turns dispatcher requests into unit runs and reports
// the results.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

// Dispatcher routes requests to registered units.
type Dispatcher struct {
	registry *task.Registry
	runner   *task.Runner
	logger   *slog.Logger
	newID    func() string
}

func NewDispatcher(registry *task.Registry, runner *task.Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		runner:   runner,
		logger:   logger.With("component", "dispatcher"),
		newID:    uuid.NewString,
	}
}

// Units lists the registered unit names.
func (d *Dispatcher) Units() []string {
	return d.registry.List()
}

// Dispatch validates req and runs its unit. It always returns a response;
// rejected requests carry an Error message.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{
		RequestID: req.RequestID,
		TaskID:    req.TaskID,
		Unit:      req.Unit,
	}
	if resp.RequestID == "" {
		resp.RequestID = d.newID()
	}
	logger := d.logger.With("request_id", resp.RequestID, "task_id", req.TaskID, "unit", req.Unit)

	if err := req.Validate(); err != nil {
		logger.Warn("Rejected invalid request", "error", err)
		resp.ResultCode = resultcode.InvalidParameterType
		resp.Error = err.Error()
		return resp
	}

	unit, ok := d.registry.Get(req.Unit)
	if !ok {
		logger.Warn("Unknown collection unit")
		resp.ResultCode = resultcode.ProcessingException
		resp.Error = "unknown unit " + req.Unit
		return resp
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("Request canceled before start", "error", err)
		resp.ResultCode = resultcode.ProcessingException
		resp.Error = err.Error()
		return resp
	}

	res := d.runner.Run(ctx, unit, req.Task())
	resp.ResultCode = res.Code
	resp.Payload = res.Payload
	resp.Rows = res.Rows
	resp.ElapsedMS = res.Elapsed.Milliseconds()

	logger.Info("Task completed",
		"result_code", res.Code,
		"rows", res.Rows,
		"elapsed_ms", resp.ElapsedMS,
	)
	return resp
}

// DispatchBatch runs requests one after another and returns the responses
// in request order.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []Request) []Response {
	out := make([]Response, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, d.Dispatch(ctx, req))
	}
	return out
}
