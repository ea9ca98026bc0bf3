package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pulsedev/pulse/internal/agent"
	"github.com/pulsedev/pulse/internal/analyzer"
	"github.com/pulsedev/pulse/internal/api"
	"github.com/pulsedev/pulse/internal/biz/plan"
	"github.com/pulsedev/pulse/internal/biz/run"
	"github.com/pulsedev/pulse/internal/biz/settings"
	"github.com/pulsedev/pulse/internal/downloader"
	"github.com/pulsedev/pulse/internal/hostsched"
	"github.com/pulsedev/pulse/internal/infra/persistence/instancerepo"
	"github.com/pulsedev/pulse/internal/infra/persistence/packagerepo"
	"github.com/pulsedev/pulse/internal/infra/persistence/settingsrepo"
	"github.com/pulsedev/pulse/internal/infra/persistence/syncstaterepo"
	"github.com/pulsedev/pulse/internal/netmon"
	"github.com/pulsedev/pulse/internal/orm"
	"github.com/pulsedev/pulse/pkg/config"
	"github.com/pulsedev/pulse/pkg/logger"
	"github.com/spf13/afero"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

func main() {
	// 解析命令行参数
	var configPath string
	flag.StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// 初始化ID生成器
	var options = idgen.NewIdGeneratorOptions(1)
	options.BaseTime = 1755937966000
	options.WorkerIdBitLength = 6
	idgen.SetIdGenerator(options)

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 创建日志器
	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting pulse sync agent",
		zap.String("instance_id", cfg.Agent.InstanceID),
		zap.String("task_id", cfg.Agent.TaskID))

	planCfg, err := plan.ParseConfig(cfg.Schedule.DailyStart, cfg.Schedule.DailyEnd, cfg.Schedule.IntervalHours)
	if err != nil {
		zapLogger.Fatal("Invalid schedule configuration", zap.Error(err))
	}

	// 创建存储
	storageConfig := orm.Config{
		Host:                  cfg.Database.Host,
		Port:                  cfg.Database.Port,
		Database:              cfg.Database.Database,
		User:                  cfg.Database.User,
		Password:              cfg.Database.Password,
		MaxConnections:        cfg.Database.MaxConnections,
		MaxIdleConnections:    cfg.Database.MaxIdleConnections,
		ConnectionMaxLifetime: cfg.Database.ConnectionMaxLifetime,
	}

	db, err := orm.New(storageConfig)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 创建repositories
	runRepo := syncstaterepo.NewMysqlRepositoryImpl(db.DB())
	settingsRepo := settingsrepo.NewMysqlRepositoryImpl(db.DB())
	cursor := packagerepo.NewMysqlRepositoryImpl(db.DB())
	instanceRepo := instancerepo.NewMysqlRepositoryImpl(db.DB())

	settingsUC := settings.NewUsecase(settingsRepo, zapLogger)
	recorder := run.NewRecorder(runRepo, zapLogger)

	clock := clockwork.NewRealClock()

	// 网络监控
	var conn hostsched.Connectivity = hostsched.AlwaysOnline{}
	var monitor *netmon.Monitor
	if cfg.Netmon.Enabled {
		monitor = netmon.NewMonitor(zapLogger, cfg.Netmon, cfg.Downloader.BaseURL)
		monitor.Start()
		defer monitor.Stop()
		conn = monitor
	}

	// 宿主调度器
	host := hostsched.New(clock, cfg.Budget.Execution, cfg.Budget.NetworkRecheck, conn, zapLogger)

	// 事件总线
	rdb := ProvideRedisClient(*cfg)
	emitter := agent.NewEventBus(rdb, cfg.Agent.InstanceID, zapLogger)

	// 下载与分析管道
	fs := afero.NewOsFs()
	pipeline := downloader.NewService(cfg.Downloader, fs, cursor, clock, zapLogger)
	processor := analyzer.NewService(fs, analyzer.NewSummaryAnalyzer(zapLogger), zapLogger)

	registrar := agent.NewRegistrar(
		cfg.Agent.TaskID,
		planCfg,
		settings.NewAuthSignal(settingsUC),
		host,
		emitter,
		clock,
		zapLogger,
	)

	controller := agent.NewController(
		cfg.Agent.TaskID,
		run.NewGuard(),
		recorder,
		settings.NewHealthProvider(settingsUC),
		pipeline,
		processor,
		cursor,
		registrar,
		emitter,
		clock,
		zapLogger,
	)

	// 创建同步代理
	svc, err := agent.New(*cfg, planCfg, db.DB(), host, controller, registrar, settingsUC, recorder, cursor, instanceRepo, clock, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create sync agent", zap.Error(err))
	}

	// 启动代理
	if err := svc.Start(); err != nil {
		zapLogger.Fatal("Failed to start sync agent", zap.Error(err))
	}

	// 创建API服务器
	apiServer := api.NewServer(svc, db, zapLogger)

	// 启动HTTP服务器
	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        apiServer.Router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		zapLogger.Info("Starting API server",
			zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zapLogger.Info("Shutting down...")

	// 优雅关闭HTTP服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown API server", zap.Error(err))
	}

	// 停止代理
	if err := svc.Stop(); err != nil {
		zapLogger.Error("Failed to stop sync agent", zap.Error(err))
	}

	zapLogger.Info("Shutdown complete")
}
