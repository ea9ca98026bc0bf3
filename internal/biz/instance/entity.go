package instance

import (
	"time"
)

// AgentInstance is one pulsed process registered in the shared database.
// With leader election enabled several instances may register, but only the
// one holding the lock owns the schedule.
type AgentInstance struct {
	ID         uint64
	InstanceID string
	Host       string
	Port       int
	Leader     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
