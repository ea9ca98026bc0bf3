package run

import (
	"context"
	"time"

	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
	"github.com/samber/mo"
)

// Repo persists the scheduling core's durable state: the last fully
// successful run and the latest outcome line, one row per task identifier.
// Last write wins on both.
type Repo interface {
	commonrepo.Transaction
	LastSuccess(ctx context.Context, taskID string) (mo.Option[time.Time], error)
	SetLastSuccess(ctx context.Context, taskID string, at time.Time) error
	LastOutcome(ctx context.Context, taskID string) (mo.Option[string], error)
	RecordOutcome(ctx context.Context, taskID string, display string) error
}
