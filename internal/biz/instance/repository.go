package instance

import (
	"context"

	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
)

type Repo interface {
	commonrepo.Transaction

	// Register creates the row for this instance or refreshes an existing
	// one. A re-registered instance always starts as a non-leader.
	Register(ctx context.Context, inst *AgentInstance) error

	// UpdateLeader flips the leader flag of one instance.
	UpdateLeader(ctx context.Context, instanceID string, leader bool) error

	List(ctx context.Context) ([]*AgentInstance, error)
}
