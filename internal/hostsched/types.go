package hostsched

import (
	"errors"
	"time"
)

// TaskRequest asks the scheduler to invoke a registered task no earlier
// than EarliestBegin. Submitting a request for an identifier that already
// has one pending replaces it; requests never stack.
type TaskRequest struct {
	Identifier      string
	EarliestBegin   time.Time
	RequiresNetwork bool
}

// Handler runs one task invocation. It must watch the task context and call
// ReportCompleted before returning; when the execution budget lapses first
// the context is cancelled and the handler is expected to wind down.
type Handler func(task *Task)

// Connectivity gates invocations whose request requires network access.
type Connectivity interface {
	Online() bool
}

// AlwaysOnline is the Connectivity used when network monitoring is
// disabled.
type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }

var (
	ErrUnknownTask = errors.New("task identifier not registered")
	ErrStopped     = errors.New("scheduler stopped")
)
