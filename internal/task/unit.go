// Package task defines the collection unit contract and runs units against
// dispatched tasks.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/delimiter"
	"github.com/nmslite/inventory-agent/internal/resultcode"
)

// Connection is whatever a unit's Connect produced. It is closed once the
// task finishes.
type Connection interface {
	Close() error
}

// Unit collects one kind of inventory data.
type Unit interface {
	// Name is the registry key.
	Name() string

	// Connect prepares access to the target. Units that need no connection
	// return nil and Success.
	Connect(ctx context.Context, t *Task) (Connection, resultcode.Code)

	// Collect appends rows to buf and returns the outcome. Rows already in
	// buf are reported whatever the code.
	Collect(ctx context.Context, t *Task, conn Connection, buf *datarow.Buffer) resultcode.Code
}

// Runner executes units. It is safe for concurrent use.
type Runner struct {
	set    delimiter.Set
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a Runner that encodes rows with set.
func NewRunner(set delimiter.Set, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		set:    set,
		logger: logger.With("component", "task_runner"),
		now:    time.Now,
	}
}

// Run connects, collects and serializes. It always returns a complete
// Result; a panic anywhere in the unit becomes ProcessingException.
func (r *Runner) Run(ctx context.Context, unit Unit, t *Task) (res Result) {
	started := r.now()
	logger := r.logger.With("task_id", t.TaskID, "unit", unit.Name())
	buf := datarow.NewBuffer(r.set, t.Header(), t.Attributes, started)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Unexpected fault in collection unit",
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			res.Code = resultcode.ProcessingException
		}
		res.Payload = buf.String()
		res.Rows = buf.Len()
		res.Elapsed = r.now().Sub(started)
		logger.Debug("Task finished", "code", res.Code, "rows", res.Rows, "elapsed", res.Elapsed)
	}()

	logger.Debug("Connecting")
	conn, code := unit.Connect(ctx, t)
	if !code.IsSuccess() {
		logger.Warn("Connect failed", "code", code)
		res.Code = code
		return res
	}
	if conn != nil {
		defer func() {
			if err := conn.Close(); err != nil {
				logger.Warn("Failed to close connection", "error", err)
			}
		}()
	}

	res.Code = unit.Collect(ctx, t, conn, buf)
	return res
}
