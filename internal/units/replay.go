package units

import (
	"context"
	"log/slog"

	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/replay"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

// Replay serves previously collected values from the Replay server.
type Replay struct {
	client *replay.Client
	logger *slog.Logger
}

func NewReplay(client *replay.Client, logger *slog.Logger) *Replay {
	return &Replay{client: client, logger: logger.With("unit", "replay")}
}

func (u *Replay) Name() string { return "replay" }

// Connect needs no remote host.
func (u *Replay) Connect(context.Context, *task.Task) (task.Connection, resultcode.Code) {
	return nil, resultcode.Success
}

func (u *Replay) Collect(ctx context.Context, t *task.Task, _ task.Connection, buf *datarow.Buffer) resultcode.Code {
	logger := u.logger.With("task_id", t.TaskID)
	if code := requireAttributes(t, logger); !code.IsSuccess() {
		return code
	}
	if u.client == nil {
		logger.Error("Replay server is not configured")
		return resultcode.ProcessingException
	}

	return u.client.Collect(ctx, replay.Request{
		TaskID:         t.TaskID,
		ElementID:      t.ElementID,
		AttributeNames: t.AttributeNames(),
	}, buf)
}
