package browser

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle state of a pooled browser instance.
type Status int32

const (
	StatusIdle Status = iota
	StatusBusy
	StatusRestarting
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusRestarting:
		return "restarting"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Instance is one browser context owned by the pool for its whole
// lifetime; pages are opened and closed per task but the instance
// itself persists until restarted or terminated.
type Instance struct {
	ID              int
	ctx             context.Context
	cancel          context.CancelFunc
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	createdAt       time.Time
	logger          *zap.Logger

	status       int32
	tasksDone    int32
	currentURL   string
}

// Stats describes the pool's current occupancy.
type Stats struct {
	TotalInstances     int
	AvailableInstances int
	ActiveInstances    int
	TotalTasks         int64
	TotalRestarts      int64
	Uptime             time.Duration
}
