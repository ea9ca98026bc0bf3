package agent

import (
	"time"

	"github.com/google/wire"
	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/biz/run"
	"github.com/pulsedev/pulse/internal/hostsched"
)

var Provider = wire.NewSet(
	New,
	NewController,
	NewRegistrar,
	NewEventBus,
)

// Submitter arms one future invocation with the host scheduler.
type Submitter interface {
	Submit(req hostsched.TaskRequest) error
}

// IEmitter publishes agent lifecycle events for external observers.
type IEmitter interface {
	RunStarted(taskID, runID string, scope download.Scope) error
	RunCompleted(taskID string, outcome run.Outcome) error
	ScheduleArmed(taskID string, at time.Time) error
}
