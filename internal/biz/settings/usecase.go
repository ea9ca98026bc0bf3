package settings

import (
	"context"
	"fmt"

	"github.com/pulsedev/pulse/internal/biz/auth"
	"github.com/pulsedev/pulse/internal/biz/health"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Usecase exposes the externally owned agent state as typed reads and
// writes over the generic settings store. Reads degrade to the defaults on
// store failure so a flaky database never blocks a run decision.
type Usecase struct {
	repo   Repo
	logger *zap.Logger
}

func NewUsecase(repo Repo, logger *zap.Logger) *Usecase {
	return &Usecase{repo: repo, logger: logger}
}

// EnsureDefaults seeds the settings rows on first start.
func (u *Usecase) EnsureDefaults(ctx context.Context, monitorStatus health.Status, authorized bool) error {
	if !monitorStatus.Valid() {
		return fmt.Errorf("invalid default monitor status %q", monitorStatus)
	}
	if err := u.repo.EnsureDefault(ctx, KeyMonitorStatus, string(monitorStatus)); err != nil {
		return err
	}
	return u.repo.EnsureDefault(ctx, KeySyncAuthorized, cast.ToString(authorized))
}

// MonitorStatus reads the persisted health status, falling back to healthy
// on a missing row or store failure.
func (u *Usecase) MonitorStatus(ctx context.Context) health.Status {
	opt, err := u.repo.Get(ctx, KeyMonitorStatus)
	if err != nil {
		u.logger.Warn("failed to read monitor status, assuming healthy", zap.Error(err))
		return health.StatusHealthy
	}
	raw, ok := opt.Get()
	if !ok {
		return health.StatusHealthy
	}
	status := health.Status(raw)
	if !status.Valid() {
		u.logger.Warn("ignoring unknown persisted monitor status", zap.String("value", raw))
		return health.StatusHealthy
	}
	return status
}

// SetMonitorStatus persists a new health status.
func (u *Usecase) SetMonitorStatus(ctx context.Context, status health.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown monitor status %q", status)
	}
	return u.repo.Set(ctx, KeyMonitorStatus, string(status))
}

// Authorization reads the persisted authorization signal. Store failures
// degrade to restricted: when in doubt, do not arm.
func (u *Usecase) Authorization(ctx context.Context) auth.Status {
	opt, err := u.repo.Get(ctx, KeySyncAuthorized)
	if err != nil {
		u.logger.Warn("failed to read authorization, assuming restricted", zap.Error(err))
		return auth.StatusRestricted
	}
	raw, ok := opt.Get()
	if !ok {
		return auth.StatusRestricted
	}
	if cast.ToBool(raw) {
		return auth.StatusAuthorized
	}
	return auth.StatusRestricted
}

// SetAuthorization persists the authorization grant.
func (u *Usecase) SetAuthorization(ctx context.Context, granted bool) error {
	return u.repo.Set(ctx, KeySyncAuthorized, cast.ToString(granted))
}

// HealthProvider adapts the settings store to health.Provider.
type HealthProvider struct {
	u *Usecase
}

func NewHealthProvider(u *Usecase) HealthProvider {
	return HealthProvider{u: u}
}

func (p HealthProvider) CurrentStatus(ctx context.Context) health.Status {
	return p.u.MonitorStatus(ctx)
}

// AuthSignal adapts the settings store to auth.Signal.
type AuthSignal struct {
	u *Usecase
}

func NewAuthSignal(u *Usecase) AuthSignal {
	return AuthSignal{u: u}
}

func (s AuthSignal) CurrentStatus(ctx context.Context) auth.Status {
	return s.u.Authorization(ctx)
}
