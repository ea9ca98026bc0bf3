package agent

// EventType represents the type of events published by the agent.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRunCompleted  EventType = "run_completed"
	EventScheduleArmed EventType = "schedule_armed"
)

// RunEvent is the message payload for pub/sub.
type RunEvent struct {
	Type           EventType `json:"type"`
	TaskID         string    `json:"task_id,omitempty"`
	RunID          string    `json:"run_id,omitempty"`
	Scope          string    `json:"scope,omitempty"`
	Classification string    `json:"classification,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	ArmedFor       int64     `json:"armed_for,omitempty"`
	Source         string    `json:"source,omitempty"`
	Timestamp      int64     `json:"ts,omitempty"`
}

const redisChannel = "pulse:agent-events"
