package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Agent         AgentConfig         `mapstructure:"agent"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
	Budget        BudgetConfig        `mapstructure:"budget"`
	Leader        LeaderConfig        `mapstructure:"leader"`
	Downloader    DownloaderConfig    `mapstructure:"downloader"`
	Netmon        NetmonConfig        `mapstructure:"netmon"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Authorization AuthorizationConfig `mapstructure:"authorization"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type AgentConfig struct {
	InstanceID string `mapstructure:"instance_id"`
	TaskID     string `mapstructure:"task_id"`
}

type ScheduleConfig struct {
	DailyStart    string `mapstructure:"daily_start"`
	DailyEnd      string `mapstructure:"daily_end"`
	IntervalHours int    `mapstructure:"interval_hours"`
}

type BudgetConfig struct {
	Execution      time.Duration `mapstructure:"execution"`
	NetworkRecheck time.Duration `mapstructure:"network_recheck"`
}

type LeaderConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	LockKey           string        `mapstructure:"lock_key"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type DownloaderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StagingDir     string        `mapstructure:"staging_dir"`
	WideDays       int           `mapstructure:"wide_days"`
	RateLimitBytes int           `mapstructure:"rate_limit_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type NetmonConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ProbeURL         string        `mapstructure:"probe_url"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

type MonitorConfig struct {
	DefaultStatus string `mapstructure:"default_status"`
}

type AuthorizationConfig struct {
	DefaultGranted bool `mapstructure:"default_granted"`
}

type DatabaseConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	Database              string        `mapstructure:"database"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

type ServerConfig struct {
	IP             string        `mapstructure:"ip"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 设置默认值
	viper.SetDefault("agent.instance_id", "pulse-001")
	viper.SetDefault("agent.task_id", "pulse.sync")

	viper.SetDefault("schedule.daily_start", "08:00")
	viper.SetDefault("schedule.daily_end", "20:00")
	viper.SetDefault("schedule.interval_hours", 4)

	viper.SetDefault("budget.execution", "10m")
	viper.SetDefault("budget.network_recheck", "30s")

	viper.SetDefault("leader.enabled", false)
	viper.SetDefault("leader.lock_key", "pulse_agent_lock")
	viper.SetDefault("leader.lock_timeout", "30s")
	viper.SetDefault("leader.heartbeat_interval", "10s")

	viper.SetDefault("downloader.base_url", "http://localhost:9000/export")
	viper.SetDefault("downloader.staging_dir", "/var/lib/pulse/staging")
	viper.SetDefault("downloader.wide_days", 14)
	viper.SetDefault("downloader.rate_limit_bytes", 0)
	viper.SetDefault("downloader.request_timeout", "2m")

	viper.SetDefault("netmon.enabled", true)
	viper.SetDefault("netmon.interval", "30s")
	viper.SetDefault("netmon.timeout", "5s")
	viper.SetDefault("netmon.failure_threshold", 3)

	viper.SetDefault("monitor.default_status", "healthy")
	viper.SetDefault("authorization.default_granted", true)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.max_connections", 20)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.connection_max_lifetime", "1h")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.max_header_bytes", 1048576)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
