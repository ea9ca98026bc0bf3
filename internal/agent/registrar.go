package agent

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/pulsedev/pulse/internal/biz/auth"
	"github.com/pulsedev/pulse/internal/biz/plan"
	"github.com/pulsedev/pulse/internal/hostsched"
	"go.uber.org/zap"
)

// Registrar computes the next run point and arms it with the host
// scheduler. Arming is gated on the authorization signal and never fails
// the caller: an arming problem costs one scheduling opportunity, which
// the next terminal run or the midnight re-plan recovers.
type Registrar struct {
	taskID  string
	planCfg plan.Config
	signal  auth.Signal
	host    Submitter
	emitter IEmitter
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewRegistrar(
	taskID string,
	planCfg plan.Config,
	signal auth.Signal,
	host Submitter,
	emitter IEmitter,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Registrar {
	return &Registrar{
		taskID:  taskID,
		planCfg: planCfg,
		signal:  signal,
		host:    host,
		emitter: emitter,
		clock:   clock,
		logger:  logger,
	}
}

// ArmNext submits the next planned run to the host scheduler. When sync is
// not authorized nothing is submitted and nothing is reported: revoked
// authorization silently parks the schedule. Submission failures are logged
// and swallowed.
func (r *Registrar) ArmNext(ctx context.Context) {
	if r.signal.CurrentStatus(ctx) != auth.StatusAuthorized {
		r.logger.Debug("sync not authorized, leaving schedule unarmed",
			zap.String("task_id", r.taskID))
		return
	}

	now := r.clock.Now()
	next, ok := plan.NextRun(r.planCfg, now).Get()
	if !ok {
		r.logger.Info("daily window exhausted, nothing left to arm today",
			zap.String("task_id", r.taskID),
			zap.Time("now", now))
		return
	}

	req := hostsched.TaskRequest{
		Identifier:      r.taskID,
		EarliestBegin:   next,
		RequiresNetwork: true,
	}
	if err := r.host.Submit(req); err != nil {
		r.logger.Error("failed to submit schedule request",
			zap.String("task_id", r.taskID),
			zap.Time("earliest_begin", next),
			zap.Error(err))
		return
	}

	r.logger.Info("armed next run",
		zap.String("task_id", r.taskID),
		zap.Time("earliest_begin", next))
	if err := r.emitter.ScheduleArmed(r.taskID, next); err != nil {
		r.logger.Debug("failed to publish schedule event", zap.Error(err))
	}
}
