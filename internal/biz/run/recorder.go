package run

import (
	"context"
	"time"

	"github.com/samber/mo"
	"go.uber.org/zap"
)

// Recorder is the write-side facade over Repo. It formats outcomes for
// operators and owns the advance of the last-success marker.
type Recorder struct {
	repo   Repo
	logger *zap.Logger
}

func NewRecorder(repo Repo, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Transactional runs fn with every repo write inside joined into a single
// transaction.
func (r *Recorder) Transactional(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.repo.Execute(ctx, fn)
}

// Record persists the outcome display line. Outcome bookkeeping must never
// fail a run, so persistence errors are logged and dropped.
func (r *Recorder) Record(ctx context.Context, taskID string, o Outcome) {
	if err := r.repo.RecordOutcome(ctx, taskID, o.DisplayString()); err != nil {
		r.logger.Error("failed to record run outcome",
			zap.String("task_id", taskID),
			zap.String("run_id", o.RunID),
			zap.String("classification", string(o.Class)),
			zap.Error(err))
	}
}

// MarkSuccess advances the last-success marker. Called only after both the
// download and the analysis stage completed.
func (r *Recorder) MarkSuccess(ctx context.Context, taskID string, at time.Time) error {
	return r.repo.SetLastSuccess(ctx, taskID, at)
}

// LastSuccess reads the marker the guard consults.
func (r *Recorder) LastSuccess(ctx context.Context, taskID string) (mo.Option[time.Time], error) {
	return r.repo.LastSuccess(ctx, taskID)
}

// LastOutcome reads the latest persisted outcome line.
func (r *Recorder) LastOutcome(ctx context.Context, taskID string) (mo.Option[string], error) {
	return r.repo.LastOutcome(ctx, taskID)
}
