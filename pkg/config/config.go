// Package config 提供 TOML 配置加载、环境变量覆盖与配置校验
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wyfcoding/riskassessment/pkg/logger"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`

	HTTP         HTTPConfig         `mapstructure:"http"`
	GRPC         GRPCConfig         `mapstructure:"grpc"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Logger       logger.Config      `mapstructure:"logger"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CreditBureau CreditBureauConfig `mapstructure:"credit_bureau"`
	Resilience   ResilienceConfig   `mapstructure:"resilience"`
	Assessment   AssessmentConfig   `mapstructure:"assessment"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒），需大于评估超时
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Addr 监听地址
func (c HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// GRPCConfig gRPC 健康检查服务配置
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 监听地址
func (c GRPCConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：postgres, mysql
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
	// 启动时执行 AutoMigrate
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// 连接池大小
	PoolSize int `mapstructure:"pool_size"`
	// 连接超时（秒）
	ConnTimeout int `mapstructure:"conn_timeout"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Addr Redis 地址
func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	// 评估请求入站主题
	ScoringTopic string `mapstructure:"scoring_topic"`
	// 决策事件出站主题
	DecisionTopic string `mapstructure:"decision_topic"`
	// 死信主题
	DLQTopic string `mapstructure:"dlq_topic"`
	// 生产者最大重试次数
	MaxAttempts int `mapstructure:"max_attempts"`
	// 消费者会话超时（秒）
	SessionTimeout int `mapstructure:"session_timeout"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig HTTP 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	QPS     int  `mapstructure:"qps"`
	Burst   int  `mapstructure:"burst"`
}

// CreditBureauConfig 央行征信接口配置
type CreditBureauConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// 征信报告缓存有效期
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ResilienceConfig 征信调用的弹性策略
type ResilienceConfig struct {
	MaxConcurrentCalls  int           `mapstructure:"max_concurrent_calls"`
	MaxWait             time.Duration `mapstructure:"max_wait"`
	FailureRatio        float64       `mapstructure:"failure_ratio"`
	MinimumCalls        uint32        `mapstructure:"minimum_calls"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxCalls    uint32        `mapstructure:"half_open_max_calls"`
	CountInterval       time.Duration `mapstructure:"count_interval"`
	MaxAttempts         uint          `mapstructure:"max_attempts"`
	InitialBackoff      time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier   float64       `mapstructure:"backoff_multiplier"`
}

// AssessmentConfig 评估流程配置
type AssessmentConfig struct {
	// 单次评估总超时
	Timeout time.Duration `mapstructure:"timeout"`
	// 评估结果缓存有效期
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// 阻塞型数据库调用的工作池大小
	DBPoolSize int `mapstructure:"db_pool_size"`
	// 后台任务（缓存回写、事件发布、审计）超时
	BackgroundTimeout time.Duration `mapstructure:"background_timeout"`
}

// Load 从 TOML 文件加载配置，缺省项使用默认值，支持 APP_ 前缀的环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

// LoadWithDefaults 与 Load 相同，但配置文件不存在时仅使用默认值与环境变量
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.CreditBureau.BaseURL == "" {
		return errors.New("credit_bureau.base_url is required")
	}
	if c.Assessment.Timeout <= 0 {
		return fmt.Errorf("invalid assessment timeout: %s", c.Assessment.Timeout)
	}
	if c.Resilience.MaxAttempts == 0 {
		return errors.New("resilience.max_attempts must be at least 1")
	}
	if c.Resilience.BackoffMultiplier < 1 {
		return errors.New("resilience.backoff_multiplier must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "risk-assessment")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 60)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 9090)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "risk-assessment-group")
	v.SetDefault("kafka.scoring_topic", "scoring-events")
	v.SetDefault("kafka.decision_topic", "decision-events")
	v.SetDefault("kafka.dlq_topic", "scoring-events.dlq")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.session_timeout", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/risk-assessment.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.qps", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("credit_bureau.base_url", "")
	v.SetDefault("credit_bureau.timeout", "10s")
	v.SetDefault("credit_bureau.cache_ttl", "1h")

	v.SetDefault("resilience.max_concurrent_calls", 10)
	v.SetDefault("resilience.max_wait", "500ms")
	v.SetDefault("resilience.failure_ratio", 0.5)
	v.SetDefault("resilience.minimum_calls", 5)
	v.SetDefault("resilience.consecutive_failures", 5)
	v.SetDefault("resilience.open_timeout", "30s")
	v.SetDefault("resilience.half_open_max_calls", 3)
	v.SetDefault("resilience.count_interval", "60s")
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff", "500ms")
	v.SetDefault("resilience.max_backoff", "5s")
	v.SetDefault("resilience.backoff_multiplier", 2.0)

	v.SetDefault("assessment.timeout", "45s")
	v.SetDefault("assessment.cache_ttl", "24h")
	v.SetDefault("assessment.db_pool_size", 10)
	v.SetDefault("assessment.background_timeout", "10s")
}
