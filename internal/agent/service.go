package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pulsedev/pulse/internal/biz/auth"
	"github.com/pulsedev/pulse/internal/biz/download"
	"github.com/pulsedev/pulse/internal/biz/health"
	"github.com/pulsedev/pulse/internal/biz/instance"
	"github.com/pulsedev/pulse/internal/biz/plan"
	"github.com/pulsedev/pulse/internal/biz/run"
	"github.com/pulsedev/pulse/internal/biz/settings"
	"github.com/pulsedev/pulse/internal/hostsched"
	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
	"github.com/pulsedev/pulse/pkg/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrNotAuthorized is returned by TriggerNow while sync is restricted.
var ErrNotAuthorized = errors.New("sync not authorized")

// replanSpec fires just after midnight so the new day's window re-arms
// even when yesterday's window ended exhausted.
const replanSpec = "5 0 0 * * *"

// Service 同步代理的生命周期：注册任务、排程、领导者选举
type Service struct {
	cfg        config.Config
	planCfg    plan.Config
	host       *hostsched.Scheduler
	controller *Controller
	registrar  *Registrar
	settings   *settings.Usecase
	recorder   *run.Recorder
	cursor     download.Cursor
	instances  instance.Repo
	locker     *Locker
	cron       *cron.Cron
	clock      clockwork.Clock
	logger     *zap.Logger

	instanceID string
	taskID     string

	mu       sync.Mutex
	isLeader bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New 创建同步代理服务
func New(
	cfg config.Config,
	planCfg plan.Config,
	db commonrepo.DB,
	host *hostsched.Scheduler,
	controller *Controller,
	registrar *Registrar,
	settingsUC *settings.Usecase,
	recorder *run.Recorder,
	cursor download.Cursor,
	instances instance.Repo,
	clock clockwork.Clock,
	logger *zap.Logger,
) (*Service, error) {
	s := &Service{
		cfg:        cfg,
		planCfg:    planCfg,
		host:       host,
		controller: controller,
		registrar:  registrar,
		settings:   settingsUC,
		recorder:   recorder,
		cursor:     cursor,
		instances:  instances,
		cron:       cron.New(cron.WithSeconds()),
		clock:      clock,
		logger:     logger,
		instanceID: cfg.Agent.InstanceID,
		taskID:     cfg.Agent.TaskID,
		stopCh:     make(chan struct{}),
	}

	// 创建分布式锁（仅在开启领导者选举时）
	if cfg.Leader.Enabled {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		s.locker = NewLocker(sqlDB, cfg.Leader.LockKey, cfg.Leader.LockTimeout, logger)
	}

	return s, nil
}

// Start 启动代理：种子默认设置、注册任务处理器、武装首次排程
func (s *Service) Start() error {
	s.logger.Info("starting sync agent",
		zap.String("instance_id", s.instanceID),
		zap.String("task_id", s.taskID))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.settings.EnsureDefaults(ctx,
		health.Status(s.cfg.Monitor.DefaultStatus),
		s.cfg.Authorization.DefaultGranted); err != nil {
		return fmt.Errorf("failed to seed agent settings: %w", err)
	}

	// 注册本实例
	if err := s.registerInstance(ctx); err != nil {
		return fmt.Errorf("failed to register agent instance: %w", err)
	}

	if err := s.host.Register(s.taskID, func(task *hostsched.Task) {
		s.controller.HandleTask(task)
	}); err != nil {
		return fmt.Errorf("failed to register sync task: %w", err)
	}
	s.host.Start()

	// 每天零点重新排程
	if _, err := s.cron.AddFunc(replanSpec, s.replan); err != nil {
		return fmt.Errorf("failed to schedule daily replan: %w", err)
	}

	if s.cfg.Leader.Enabled {
		// 启动领导者选举，成为领导者后才开始排程
		s.wg.Add(1)
		go s.leaderElection()
	} else {
		s.setLeader(true)
		s.updateInstanceStatus(true)
		s.registrar.ArmNext(ctx)
		s.cron.Start()
	}

	return nil
}

// Stop 停止代理
func (s *Service) Stop() error {
	s.logger.Info("stopping sync agent",
		zap.String("instance_id", s.instanceID))

	close(s.stopCh)

	// 停止cron
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		<-cronCtx.Done()
	}

	// 释放锁
	if s.locker != nil && s.locker.IsLocked() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Unlock(ctx); err != nil {
			s.logger.Error("failed to release lock", zap.Error(err))
		}
	}

	// 停止宿主调度器，取消运行中的任务
	s.host.Stop()

	// 等待所有goroutine退出
	s.wg.Wait()

	// 更新实例状态
	s.updateInstanceStatus(false)

	s.logger.Info("sync agent stopped",
		zap.String("instance_id", s.instanceID))

	return nil
}

// Leader reports whether this instance currently owns the schedule.
func (s *Service) Leader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLeader
}

func (s *Service) setLeader(v bool) {
	s.mu.Lock()
	s.isLeader = v
	s.mu.Unlock()
}

// registerInstance 注册代理实例
func (s *Service) registerInstance(ctx context.Context) error {
	if s.instances == nil {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return s.instances.Register(ctx, &instance.AgentInstance{
		InstanceID: s.instanceID,
		Host:       hostname,
		Port:       s.cfg.Server.Port,
	})
}

// updateInstanceStatus 更新实例的领导者标记
func (s *Service) updateInstanceStatus(leader bool) {
	if s.instances == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.instances.UpdateLeader(ctx, s.instanceID, leader); err != nil {
		s.logger.Error("failed to update instance status", zap.Error(err))
	}
}

// leaderElection 领导者选举
func (s *Service) leaderElection() {
	defer s.wg.Done()

	// 启动时立即尝试一次，不等第一个心跳
	s.tryBecomeLeader()

	ticker := time.NewTicker(s.cfg.Leader.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tryBecomeLeader()
		case <-s.stopCh:
			return
		}
	}
}

// tryBecomeLeader 尝试成为领导者
func (s *Service) tryBecomeLeader() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Leader.LockTimeout)
	defer cancel()

	if !s.Leader() {
		// 尝试获取锁
		locked, err := s.locker.TryLock(ctx)
		if err != nil {
			s.logger.Error("failed to acquire leader lock", zap.Error(err))
			return
		}

		if locked {
			s.setLeader(true)
			s.updateInstanceStatus(true)
			s.logger.Info("became leader",
				zap.String("instance_id", s.instanceID))

			// 武装下一次运行并启动每日重排
			s.registrar.ArmNext(ctx)
			s.cron.Start()
		}
	} else {
		// 续约锁
		if err := s.locker.Renew(ctx); err != nil {
			s.logger.Error("failed to renew leader lock", zap.Error(err))
			s.setLeader(false)
			s.updateInstanceStatus(false)

			// 丢掉已武装的排程，停止每日重排
			s.host.Withdraw(s.taskID)
			s.cron.Stop()
		}
	}
}

// replan re-arms the schedule for the new day.
func (s *Service) replan() {
	if !s.Leader() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("daily replan", zap.String("task_id", s.taskID))
	s.registrar.ArmNext(ctx)
}

// TriggerNow submits an immediate run, bypassing the daily plan but not
// the authorization gate or the redundancy guard.
func (s *Service) TriggerNow(ctx context.Context) error {
	if s.settings.Authorization(ctx) != auth.StatusAuthorized {
		return ErrNotAuthorized
	}
	return s.host.Submit(hostsched.TaskRequest{
		Identifier:      s.taskID,
		EarliestBegin:   s.clock.Now(),
		RequiresNetwork: true,
	})
}

// SetMonitorStatus updates the externally owned health status that decides
// the next run's download scope.
func (s *Service) SetMonitorStatus(ctx context.Context, status health.Status) error {
	return s.settings.SetMonitorStatus(ctx, status)
}

// SetAuthorization flips the sync grant. Granting arms the schedule right
// away; revoking withdraws whatever is armed.
func (s *Service) SetAuthorization(ctx context.Context, granted bool) error {
	if err := s.settings.SetAuthorization(ctx, granted); err != nil {
		return err
	}
	if granted {
		s.registrar.ArmNext(ctx)
	} else {
		s.host.Withdraw(s.taskID)
	}
	return nil
}

// StatusView is the operator-facing snapshot of the agent.
type StatusView struct {
	InstanceID    string     `json:"instance_id"`
	TaskID        string     `json:"task_id"`
	Leader        bool       `json:"leader"`
	MonitorStatus string     `json:"monitor_status"`
	Authorized    bool       `json:"authorized"`
	ArmedFor      *time.Time `json:"armed_for,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastOutcome   string     `json:"last_outcome,omitempty"`
}

// Status assembles the agent snapshot for the API.
func (s *Service) Status(ctx context.Context) StatusView {
	view := StatusView{
		InstanceID:    s.instanceID,
		TaskID:        s.taskID,
		Leader:        s.Leader(),
		MonitorStatus: string(s.settings.MonitorStatus(ctx)),
		Authorized:    s.settings.Authorization(ctx) == auth.StatusAuthorized,
	}

	if req, ok := s.host.Pending(s.taskID).Get(); ok {
		t := req.EarliestBegin
		view.ArmedFor = &t
	}
	if last, err := s.recorder.LastSuccess(ctx, s.taskID); err == nil {
		if t, ok := last.Get(); ok {
			view.LastSuccessAt = &t
		}
	}
	if outcome, err := s.recorder.LastOutcome(ctx, s.taskID); err == nil {
		view.LastOutcome = outcome.OrElse("")
	}
	return view
}

// ScheduleView describes today's plan.
type ScheduleView struct {
	DailyStart    string      `json:"daily_start"`
	DailyEnd      string      `json:"daily_end"`
	IntervalHours int         `json:"interval_hours"`
	TodayRuns     []time.Time `json:"today_runs"`
	NextRun       *time.Time  `json:"next_run,omitempty"`
}

// Schedule reports the planned run points of the current day.
func (s *Service) Schedule() ScheduleView {
	now := s.clock.Now()
	view := ScheduleView{
		DailyStart:    s.planCfg.DailyStart.String(),
		DailyEnd:      s.planCfg.DailyEnd.String(),
		IntervalHours: s.planCfg.IntervalHours,
		TodayRuns:     plan.Window(s.planCfg, now),
	}
	if next, ok := plan.NextRun(s.planCfg, now).Get(); ok {
		view.NextRun = &next
	}
	return view
}

// RecentPackages lists the most recently applied export packages.
func (s *Service) RecentPackages(ctx context.Context, limit int) ([]download.AppliedPackage, error) {
	return s.cursor.ListRecent(ctx, limit)
}

// Instances lists every agent registered in the shared database.
func (s *Service) Instances(ctx context.Context) ([]*instance.AgentInstance, error) {
	if s.instances == nil {
		return nil, nil
	}
	return s.instances.List(ctx)
}
