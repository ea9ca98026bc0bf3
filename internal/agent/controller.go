package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/biz/health"
	"github.com/pulsedev/pulse/internal/biz/process"
	"github.com/pulsedev/pulse/internal/biz/run"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

// TaskHandle is the slice of a host scheduler task the controller drives.
// *hostsched.Task satisfies it.
type TaskHandle interface {
	Context() context.Context
	SetExpirationHandler(fn func())
	ReportCompleted(success bool)
}

// Controller executes one sync run end to end: redundancy guard, scope
// resolution, download, analysis, bookkeeping and the completion report
// back to the host. Whatever way the run ends, the next one is re-armed
// before the handler returns.
type Controller struct {
	taskID    string
	guard     *run.Guard
	recorder  *run.Recorder
	health    health.Provider
	pipeline  download.Pipeline
	processor process.Pipeline
	cursor    download.Cursor
	registrar *Registrar
	emitter   IEmitter
	clock     clockwork.Clock
	logger    *zap.Logger

	// one run at a time, even if the host misbehaves
	runMu sync.Mutex
}

func NewController(
	taskID string,
	guard *run.Guard,
	recorder *run.Recorder,
	healthProvider health.Provider,
	pipeline download.Pipeline,
	processor process.Pipeline,
	cursor download.Cursor,
	registrar *Registrar,
	emitter IEmitter,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		taskID:    taskID,
		guard:     guard,
		recorder:  recorder,
		health:    healthProvider,
		pipeline:  pipeline,
		processor: processor,
		cursor:    cursor,
		registrar: registrar,
		emitter:   emitter,
		clock:     clock,
		logger:    logger,
	}
}

// HandleTask runs one invocation handed over by the host scheduler.
//
// Expiry is latched through the expired channel: once the execution budget
// lapses the run records a timeout outcome and reports nothing back, the
// host has already concluded the invocation. Every other terminal state
// reports completion. All paths re-arm the next run on the way out.
func (c *Controller) HandleTask(task TaskHandle) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	runID := uuid.NewString()
	logger := c.logger.With(
		zap.String("task_id", c.taskID),
		zap.String("run_id", runID))

	defer c.rearm()

	expired := make(chan struct{})
	task.SetExpirationHandler(func() {
		close(expired)
	})

	ctx := task.Context()
	startedAt := c.clock.Now()

	last, err := c.recorder.LastSuccess(ctx, c.taskID)
	if err != nil {
		logger.Warn("failed to read last success marker, proceeding with run", zap.Error(err))
		last = mo.None[time.Time]()
	}
	if !c.guard.ShouldRun(startedAt, last) {
		since := startedAt.Sub(last.MustGet())
		outcome := run.NewRedundant(runID, startedAt, since)
		c.recorder.Record(ctx, c.taskID, outcome)
		logger.Info("run declined as redundant",
			zap.Duration("since_last_success", since))
		c.publishOutcome(logger, outcome)
		task.ReportCompleted(true)
		return
	}

	status := c.health.CurrentStatus(ctx)
	scope := download.ScopeFor(status)
	logger.Info("starting sync run",
		zap.String("monitor_status", string(status)),
		zap.String("scope", string(scope)))
	if err := c.emitter.RunStarted(c.taskID, runID, scope); err != nil {
		logger.Debug("failed to publish run event", zap.Error(err))
	}

	handle, results := c.pipeline.Start(ctx, scope)

	var res download.Result
	select {
	case <-expired:
		handle.Cancel()
		c.recordTimeout(runID, logger)
		return
	case res = <-results:
	}

	if res.Err != nil {
		// Budget expiry cancels the run context, which surfaces here as a
		// pipeline error. Classify that as a timeout, not a download fault.
		select {
		case <-expired:
			c.recordTimeout(runID, logger)
			return
		default:
		}
		outcome := run.NewDownloadError(runID, c.clock.Now(), res.Err)
		c.recorder.Record(ctx, c.taskID, outcome)
		logger.Warn("download pipeline failed", zap.Error(res.Err))
		c.publishOutcome(logger, outcome)
		task.ReportCompleted(false)
		return
	}

	set := res.Set
	defer func() {
		if err := c.pipeline.Discard(set); err != nil {
			logger.Warn("failed to discard staged packages", zap.Error(err))
		}
	}()
	logger.Info("download complete",
		zap.Int("packages", len(set.Batches)),
		zap.Int64("bytes", set.TotalSize()),
		zap.Strings("days", set.Days()))

	stats, procErr := c.processor.Process(ctx, set)
	finishedAt := c.clock.Now()

	select {
	case <-expired:
		c.recordTimeout(runID, logger)
		return
	default:
	}

	if procErr != nil {
		// The sync itself succeeded; the analysis stage is outside its
		// contract. Keep the success classification but hold the marker
		// back so the next run retries the same data.
		outcome := run.NewSuccess(runID, finishedAt, fmt.Sprintf("analysis failed: %v", procErr))
		c.recorder.Record(ctx, c.taskID, outcome)
		logger.Warn("analysis stage failed, last-success marker not advanced",
			zap.Int("packages_applied", stats.Packages),
			zap.Error(procErr))
		c.publishOutcome(logger, outcome)
		task.ReportCompleted(true)
		return
	}

	err = c.recorder.Transactional(ctx, func(txCtx context.Context) error {
		if err := c.cursor.MarkApplied(txCtx, set.Batches); err != nil {
			return err
		}
		return c.recorder.MarkSuccess(txCtx, c.taskID, finishedAt)
	})
	if err != nil {
		logger.Error("failed to advance sync cursor", zap.Error(err))
	}

	outcome := run.NewSuccess(runID, finishedAt,
		fmt.Sprintf("%d packages, %d records across %d days", stats.Packages, stats.Records, stats.Days))
	c.recorder.Record(ctx, c.taskID, outcome)
	logger.Info("sync run completed",
		zap.Int("packages", stats.Packages),
		zap.Int("records", stats.Records),
		zap.Duration("elapsed", c.clock.Since(startedAt)))
	c.publishOutcome(logger, outcome)
	task.ReportCompleted(true)
}

// recordTimeout writes the expiry outcome. No completion report goes back
// to the host: the budget lapsing already concluded the invocation there.
func (c *Controller) recordTimeout(runID string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome := run.NewTimeout(runID, c.clock.Now())
	c.recorder.Record(ctx, c.taskID, outcome)
	logger.Warn("run expired before completion")
	c.publishOutcome(logger, outcome)
}

// rearm schedules the next run. The task context is usually cancelled by
// the time a run ends, so arming rides a fresh context.
func (c *Controller) rearm() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.registrar.ArmNext(ctx)
}

func (c *Controller) publishOutcome(logger *zap.Logger, o run.Outcome) {
	if err := c.emitter.RunCompleted(c.taskID, o); err != nil {
		logger.Debug("failed to publish run event", zap.Error(err))
	}
}
