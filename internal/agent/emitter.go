package agent

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/biz/run"
	"go.uber.org/zap"
)

// EventBus publishes events via Redis pub/sub. When Redis is disabled the
// events are dropped after a debug log line; nothing in the run lifecycle
// depends on them being delivered.
var _ IEmitter = (*EventBus)(nil)

type EventBus struct {
	rdb        *redis.Client
	instanceID string
	logger     *zap.Logger
}

// NewEventBus constructs an event bus with an injected Redis client.
// A nil client is valid and turns the bus into a no-op.
func NewEventBus(rdb *redis.Client, instanceID string, logger *zap.Logger) *EventBus {
	return &EventBus{rdb: rdb, instanceID: instanceID, logger: logger}
}

func (e *EventBus) publish(ctx context.Context, ev RunEvent) error {
	ev.Source = e.instanceID
	ev.Timestamp = time.Now().UnixMilli()

	if e.rdb == nil { // fallback when redis disabled
		e.logger.Debug("event bus disabled, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("run_id", ev.RunID))
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return e.rdb.Publish(ctx, redisChannel, payload).Err()
}

func (e *EventBus) RunStarted(taskID, runID string, scope download.Scope) error {
	ev := RunEvent{
		Type:   EventRunStarted,
		TaskID: taskID,
		RunID:  runID,
		Scope:  string(scope),
	}
	return e.publish(context.Background(), ev)
}

func (e *EventBus) RunCompleted(taskID string, outcome run.Outcome) error {
	ev := RunEvent{
		Type:           EventRunCompleted,
		TaskID:         taskID,
		RunID:          outcome.RunID,
		Classification: string(outcome.Class),
		Detail:         outcome.Detail,
	}
	return e.publish(context.Background(), ev)
}

func (e *EventBus) ScheduleArmed(taskID string, at time.Time) error {
	ev := RunEvent{
		Type:     EventScheduleArmed,
		TaskID:   taskID,
		ArmedFor: at.UnixMilli(),
	}
	return e.publish(context.Background(), ev)
}
