package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Lock      LockConfig      `mapstructure:"lock"`
	Buffer    BufferConfig    `mapstructure:"buffer"`
	Answer    AnswerConfig    `mapstructure:"answer"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig 用户级别限流配置（令牌桶，按接口类型分规则）
type RateLimitConfig struct {
	Enabled bool                     `mapstructure:"enabled"`
	IPLimit IPLimitConfig            `mapstructure:"ip_limit"`
	Rules   map[string]RateLimitRule `mapstructure:"rules"`
}

// IPLimitConfig 网关级别的粗粒度IP限流
type IPLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// RateLimitRule 单个接口类型的令牌桶规则，进程启动时加载后不变
type RateLimitRule struct {
	Enabled    bool `mapstructure:"enabled"`
	Capacity   int  `mapstructure:"capacity"`
	RefillRate int  `mapstructure:"refill_rate"`
	Interval   int  `mapstructure:"interval"` // 秒
}

// LockConfig 分布式锁租约时长（秒）
type LockConfig struct {
	EnterLeaseSeconds  int `mapstructure:"enter_lease_seconds"`
	SubmitLeaseSeconds int `mapstructure:"submit_lease_seconds"`
}

// BufferConfig 答题缓冲配置
type BufferConfig struct {
	DebounceSeconds int `mapstructure:"debounce_seconds"`
	SettleDelayMs   int `mapstructure:"settle_delay_ms"`
}

// AnswerConfig 答题持久化配置
type AnswerConfig struct {
	Channel         string `mapstructure:"channel"`
	RedisTTLSeconds int    `mapstructure:"redis_ttl_seconds"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("EXAM_ONLINE")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Lock.EnterLeaseSeconds <= 0 {
		cfg.Lock.EnterLeaseSeconds = 30
	}
	if cfg.Lock.SubmitLeaseSeconds <= 0 {
		cfg.Lock.SubmitLeaseSeconds = 10
	}
	if cfg.Buffer.DebounceSeconds <= 0 {
		cfg.Buffer.DebounceSeconds = 3
	}
	if cfg.Buffer.SettleDelayMs <= 0 {
		cfg.Buffer.SettleDelayMs = 500
	}
	if cfg.Answer.Channel == "" {
		cfg.Answer.Channel = "exam-answer-save"
	}
	if cfg.Answer.RedisTTLSeconds <= 0 {
		cfg.Answer.RedisTTLSeconds = 60
	}
}
