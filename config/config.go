// Package config 提供 rangeserver 的配置加载、校验、热更新与脱敏打印。
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/segtree/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 全局顶级配置结构.
type Config struct {
	Version   string          `mapstructure:"version"   toml:"version"`
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Log       LogConfig       `mapstructure:"log"       toml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   toml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" toml:"ratelimit"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake" toml:"snowflake"`
	Kafka     KafkaConfig     `mapstructure:"kafka"     toml:"kafka"`
	Catalog   CatalogConfig   `mapstructure:"catalog"   toml:"catalog"`
}

// ServerConfig 定义服务器运行时的基础网络与环境参数.
type ServerConfig struct {
	Name        string `mapstructure:"name"        toml:"name"        validate:"required"`
	Environment string `mapstructure:"environment" toml:"environment" validate:"oneof=dev test prod"`
	HTTP        struct {
		Addr              string        `mapstructure:"addr"                toml:"addr"`
		Port              int           `mapstructure:"port"                toml:"port"                validate:"required,min=1,max=65535"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"        toml:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" toml:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"       toml:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"        toml:"idle_timeout"`
		MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    toml:"max_header_bytes"`
		TrustedProxies    []string      `mapstructure:"trusted_proxies"     toml:"trusted_proxies"`
		MaxBodyBytes      int64         `mapstructure:"max_body_bytes"      toml:"max_body_bytes"      validate:"min=0"`
		SlowThreshold     time.Duration `mapstructure:"slow_threshold"      toml:"slow_threshold"`
		ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"    toml:"shutdown_timeout"`
	} `mapstructure:"http" toml:"http"`
}

// LogConfig 定义日志输出、级别与切割策略.
type LogConfig struct {
	Level      string `mapstructure:"level"       toml:"level"       validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"        toml:"file"`
	Console    bool   `mapstructure:"console"     toml:"console"`
	MaxSize    int    `mapstructure:"max_size"    toml:"max_size"`    // 单个文件最大大小 (MB)。
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"` // 最大备份数。
	MaxAge     int    `mapstructure:"max_age"     toml:"max_age"`     // 最大保留天数。
	Compress   bool   `mapstructure:"compress"    toml:"compress"`
}

// MetricsConfig 普罗米修斯监控指标暴露配置.
type MetricsConfig struct {
	Path    string `mapstructure:"path"    toml:"path"`
	Addr    string `mapstructure:"addr"    toml:"addr"` // 非空时在独立端口暴露，否则挂在业务路由上
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// TracingConfig 分布式链路追踪（OpenTelemetry）配置.
type TracingConfig struct {
	ServiceName  string  `mapstructure:"service_name"  toml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" toml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SamplerRatio float64 `mapstructure:"sampler_ratio" toml:"sampler_ratio" validate:"min=0,max=1"`
	Enabled      bool    `mapstructure:"enabled"       toml:"enabled"`
}

// RateLimitConfig 令牌桶限流参数.
type RateLimitConfig struct {
	Rate    int    `mapstructure:"rate"    toml:"rate"    validate:"min=0"`
	Burst   int    `mapstructure:"burst"   toml:"burst"   validate:"min=0"`
	Scope   string `mapstructure:"scope"   toml:"scope"   validate:"omitempty,oneof=client global"` // client 按客户端 IP 分桶，global 全局共享一个桶
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
}

// SnowflakeConfig 请求 ID 生成器参数.
type SnowflakeConfig struct {
	StartTime string `mapstructure:"start_time" toml:"start_time"`
	Type      string `mapstructure:"type"       toml:"type"       validate:"omitempty,oneof=snowflake sonyflake"`
	MachineID int64  `mapstructure:"machine_id" toml:"machine_id" validate:"min=0,max=1023"`
}

// KafkaConfig 定义更新指令消费者参数.
type KafkaConfig struct {
	Enabled         bool          `mapstructure:"enabled"           toml:"enabled"`
	Topic           string        `mapstructure:"topic"             toml:"topic"             validate:"required_if=Enabled true"`
	GroupID         string        `mapstructure:"group_id"          toml:"group_id"          validate:"required_if=Enabled true"`
	Brokers         []string      `mapstructure:"brokers"           toml:"brokers"           validate:"required_if=Enabled true"`
	Workers         int           `mapstructure:"workers"           toml:"workers"           validate:"min=0"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic" toml:"dead_letter_topic"` // 为空时被拒绝的指令只记录日志
	MinBytes        int           `mapstructure:"min_bytes"         toml:"min_bytes"`
	MaxBytes        int           `mapstructure:"max_bytes"         toml:"max_bytes"`
	MaxWait         time.Duration `mapstructure:"max_wait"          toml:"max_wait"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"   toml:"commit_interval"`
}

// CatalogConfig 定义树目录的默认引擎、规模上限和启动时预建的树.
type CatalogConfig struct {
	DefaultEngine string       `mapstructure:"default_engine" toml:"default_engine" validate:"omitempty,oneof=recursive iterative"`
	MaxLeaves     int          `mapstructure:"max_leaves"     toml:"max_leaves"     validate:"min=1"`
	Trees         []TreeConfig `mapstructure:"trees"          toml:"trees"          validate:"dive"`
}

// TreeConfig 描述一棵预建的树.
type TreeConfig struct {
	Name        string  `mapstructure:"name"        toml:"name"        validate:"required"`
	Engine      string  `mapstructure:"engine"      toml:"engine"      validate:"omitempty,oneof=recursive iterative"`
	Aggregation string  `mapstructure:"aggregation" toml:"aggregation" validate:"required,oneof=sum min max"`
	Mode        string  `mapstructure:"mode"        toml:"mode"        validate:"required,oneof=increment assign"`
	Values      []int64 `mapstructure:"values"      toml:"values"      validate:"required,min=1"`
}

var (
	mu        sync.Mutex
	vInstance = viper.New()
	onReload  []func(*Config)
	validate  = validator.New()
)

// RegisterReloadHook 注册配置热更新回调。
func RegisterReloadHook(hook func(*Config)) {
	if hook == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	onReload = append(onReload, hook)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "rangeserver")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", 5*time.Second)
	v.SetDefault("server.http.write_timeout", 10*time.Second)
	v.SetDefault("server.http.max_body_bytes", 4<<20)
	v.SetDefault("server.http.slow_threshold", 500*time.Millisecond)
	v.SetDefault("server.http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("tracing.sampler_ratio", 1.0)
	v.SetDefault("ratelimit.scope", "client")
	v.SetDefault("snowflake.type", "snowflake")
	v.SetDefault("kafka.workers", 1)
	v.SetDefault("catalog.default_engine", "recursive")
	v.SetDefault("catalog.max_leaves", 1<<20)
}

// Load 读取 TOML 配置文件，叠加 APP_ 前缀的环境变量并校验.
func Load(path string, conf *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	if err := v.Unmarshal(conf); err != nil {
		return fmt.Errorf("unmarshal config error: %w", err)
	}

	if err := Validate(conf); err != nil {
		return err
	}

	mu.Lock()
	vInstance = v
	mu.Unlock()
	return nil
}

// Validate 校验配置结构.
func Validate(conf *Config) error {
	if err := validate.Struct(conf); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Watch 监听配置文件变化。新配置校验通过后才会覆盖 conf 并触发回调，
// 日志级别随之自动调整。调用 Watch 之后，其他 goroutine 不应再直接读取 conf。
func Watch(conf *Config) {
	v := active()
	v.OnConfigChange(func(event fsnotify.Event) {
		slog.Info("detecting config change", "file", event.Name)
		const debounceTimeout = 500 * time.Millisecond
		time.Sleep(debounceTimeout)
		reload(v, conf)
	})
	v.WatchConfig()
}

func reload(v *viper.Viper, conf *Config) {
	var next Config
	if err := v.Unmarshal(&next); err != nil {
		slog.Error("reload config unmarshal failed", "error", err)
		return
	}
	if err := Validate(&next); err != nil {
		slog.Error("reload config validation failed", "error", err)
		return
	}

	mu.Lock()
	*conf = next
	hooks := append([]func(*Config){}, onReload...)
	mu.Unlock()

	logging.SetLevel(next.Log.Level)
	slog.Info("config hot-reloaded and validated successfully")
	// 回调拿到的是本次重载的私有副本，不与仍在读取 conf 的代码竞争。
	for _, hook := range hooks {
		hook(&next)
	}
}

// PrintWithMask 脱敏打印当前配置.
func PrintWithMask(conf any) {
	masked, err := Masked(conf)
	if err != nil {
		slog.Error("failed to mask config for printing", "error", err)
		return
	}
	slog.Info("Current effective configuration", "config", masked)
}

// Masked 返回敏感字段被替换后的 JSON 文本.
func Masked(conf any) (string, error) {
	data, err := json.Marshal(conf)
	if err != nil {
		return "", err
	}

	var configMap map[string]any
	if err := json.Unmarshal(data, &configMap); err != nil {
		return "", err
	}

	mask(configMap)

	out, err := json.MarshalIndent(configMap, "  ", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func mask(configMap map[string]any) {
	sensitiveKeys := []string{"password", "secret", "dsn", "key", "token"}

	for key, val := range configMap {
		if subMap, ok := val.(map[string]any); ok {
			mask(subMap)
			continue
		}

		if slice, ok := val.([]any); ok {
			for _, item := range slice {
				if itemMap, ok := item.(map[string]any); ok {
					mask(itemMap)
				}
			}
			continue
		}

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(strings.ToLower(key), sensitiveKey) {
				configMap[key] = "******"
				break
			}
		}
	}
}

// active 返回最近一次 Load 使用的 Viper 实例。
func active() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return vInstance
}
