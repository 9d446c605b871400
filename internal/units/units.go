// Package units holds the collection units the agent can run.
package units

import (
	"context"
	"log/slog"

	"github.com/nmslite/inventory-agent/internal/batch"
	"github.com/nmslite/inventory-agent/internal/remote"
	"github.com/nmslite/inventory-agent/internal/replay"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

// RemoteConn is a connection that can run batch scripts.
type RemoteConn interface {
	batch.Launcher
	task.Connection
}

// DialFunc opens a RemoteConn to target.
type DialFunc func(ctx context.Context, target task.Target) (RemoteConn, resultcode.Code)

// RemoteDialer returns a DialFunc backed by remote.Dial.
func RemoteDialer(cfg remote.Config, logger *slog.Logger) DialFunc {
	return func(ctx context.Context, target task.Target) (RemoteConn, resultcode.Code) {
		l, code := remote.Dial(ctx, cfg, target, logger)
		if l == nil {
			return nil, code
		}
		return l, code
	}
}

// Deps is everything the built-in units need.
type Deps struct {
	Replay *replay.Client
	Batch  *batch.Builder
	Dial   DialFunc
	SNMP   SNMPConfig
	SQL    SQLConfig
	Logger *slog.Logger
}

// All builds every built-in unit.
func All(d Deps) []task.Unit {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return []task.Unit{
		NewReplay(d.Replay, d.Logger),
		NewRemoteCommand(d.Dial, d.Batch, d.Logger),
		NewSoftwareUsage(d.Dial, d.Batch, d.Logger),
		NewSNMPInventory(d.SNMP, d.Logger),
		NewSQLQuery(d.SQL, d.Logger),
		NewWMIInventory(d.Dial, d.Batch, d.Logger),
	}
}

// Register adds every built-in unit to reg.
func Register(reg *task.Registry, d Deps) error {
	return reg.Register(All(d)...)
}

// requireAttributes reports NullAttributeSet when the dispatcher sent no
// attribute map.
func requireAttributes(t *task.Task, logger *slog.Logger) resultcode.Code {
	if t.Attributes == nil {
		logger.Error("Attribute map is null")
		return resultcode.NullAttributeSet
	}
	return resultcode.Success
}
