// =============================================================================
// 📦 localroute 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML / TOML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("localroute.yaml").
//	    WithEnvPrefix("LOCALROUTE").
//	    Load()
//
// 配置优先级: 默认值 → 配置文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/localroute/allowlist"
	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/llm/router"
	"github.com/BaSui01/localroute/llm/tokenizer"
	"github.com/BaSui01/localroute/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 localroute 的完整配置结构
type Config struct {
	// Provider 默认 provider token: claude, anthropic, codex, openai
	Provider string `yaml:"provider" toml:"provider" env:"PROVIDER"`

	Server    ServerConfig    `yaml:"server" toml:"server" env:"SERVER"`
	Local     LocalConfig     `yaml:"local" toml:"local" env:"LOCAL"`
	Upstream  UpstreamConfig  `yaml:"upstream" toml:"upstream" env:"UPSTREAM"`
	Allowlist AllowlistConfig `yaml:"allowlist" toml:"allowlist" env:"ALLOWLIST"`
	Limits    router.Limits   `yaml:"limits" toml:"limits" env:"LIMITS"`
	Log       LogConfig       `yaml:"log" toml:"log" env:"LOG"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics" env:"METRICS"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry" env:"TELEMETRY"`
	Ledger    LedgerConfig    `yaml:"ledger" toml:"ledger" env:"LEDGER"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" env:"RATE_LIMIT"`
}

// ServerConfig 代理服务器配置
type ServerConfig struct {
	Host string `yaml:"host" toml:"host" env:"HOST"`
	Port int    `yaml:"port" toml:"port" env:"PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" toml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需覆盖一次完整的 CLI 调用
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	CORSOrigins     []string      `yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LocalConfig 本地 CLI 路由配置
type LocalConfig struct {
	Anthropic cli.Template  `yaml:"anthropic" toml:"anthropic" env:"ANTHROPIC"`
	OpenAI    cli.Template  `yaml:"openai" toml:"openai" env:"OPENAI"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	// 并发 CLI 调用上限
	MaxConcurrent int `yaml:"max_concurrent" toml:"max_concurrent" env:"MAX_CONCURRENT"`
	QueueSize     int `yaml:"queue_size" toml:"queue_size" env:"QUEUE_SIZE"`
	// usage 估算方式: words, tiktoken
	UsageEstimator string `yaml:"usage_estimator" toml:"usage_estimator" env:"USAGE_ESTIMATOR"`
}

// Template returns the CLI template configured for family.
func (l LocalConfig) Template(f llm.Family) cli.Template {
	if f == llm.FamilyOpenAI {
		return l.OpenAI
	}
	return l.Anthropic
}

// UpstreamConfig 远端 API 配置
type UpstreamConfig struct {
	AnthropicBaseURL string        `yaml:"anthropic_base_url" toml:"anthropic_base_url" env:"ANTHROPIC_BASE_URL"`
	AnthropicVersion string        `yaml:"anthropic_version" toml:"anthropic_version" env:"ANTHROPIC_VERSION"`
	OpenAIBaseURL    string        `yaml:"openai_base_url" toml:"openai_base_url" env:"OPENAI_BASE_URL"`
	Timeout          time.Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
}

// BaseURL returns the upstream base URL for family.
func (u UpstreamConfig) BaseURL(f llm.Family) string {
	if f == llm.FamilyOpenAI {
		return u.OpenAIBaseURL
	}
	return u.AnthropicBaseURL
}

// AllowlistConfig 路径白名单配置。Patterns 非空时替换默认规则，Extra 追加到默认规则之后。
type AllowlistConfig struct {
	Patterns []string `yaml:"patterns" toml:"patterns" env:"PATTERNS"`
	Extra    []string `yaml:"extra" toml:"extra" env:"EXTRA"`
}

// Build compiles the configured allow-list.
func (a AllowlistConfig) Build() (*allowlist.List, error) {
	if len(a.Patterns) > 0 {
		return allowlist.Build(allowlist.ModeOverride, append(append([]string{}, a.Patterns...), a.Extra...))
	}
	return allowlist.Build(allowlist.ModeExtend, a.Extra)
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" toml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" toml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" toml:"enable_caller" env:"ENABLE_CALLER"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port" toml:"port" env:"PORT"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" toml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" toml:"sample_rate" env:"SAMPLE_RATE"`
}

// LedgerConfig 请求统计存储配置
type LedgerConfig struct {
	// 驱动: memory, sqlite, postgres, mysql, redis
	Driver string `yaml:"driver" toml:"driver" env:"DRIVER"`
	// SQL 连接串（sqlite 时为文件路径）
	DSN           string `yaml:"dsn" toml:"dsn" env:"DSN"`
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db" env:"REDIS_DB"`
	KeyPrefix     string `yaml:"key_prefix" toml:"key_prefix" env:"KEY_PREFIX"`
}

// RateLimitConfig 每客户端限流配置，RPS 为 0 表示关闭
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" toml:"burst" env:"BURST"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "LOCALROUTE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → 配置文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 按扩展名选择 YAML 或 TOML 解析
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(l.configPath)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(l.configPath))
	}
	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return err
	}
	// 兼容旧启动脚本的 ALLOWED_PATHS，整体替换白名单
	if v := os.Getenv(l.envPrefix + "_ALLOWED_PATHS"); v != "" {
		cfg.Allowlist.Patterns = allowlist.SplitPatterns(v)
	}
	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置，收集全部错误后一次返回
func (c *Config) Validate() error {
	var errs []error

	if c.Provider != "" {
		if _, err := llm.ParseProvider(c.Provider); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Local.Timeout <= 0 {
		errs = append(errs, errors.New("local.timeout must be positive"))
	}
	if c.Local.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("local.max_concurrent must be positive"))
	}
	if c.Local.Anthropic.Executable == "" || c.Local.OpenAI.Executable == "" {
		errs = append(errs, errors.New("local CLI executables must be set"))
	}
	if _, err := tokenizer.New(c.Local.UsageEstimator); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Allowlist.Build(); err != nil {
		errs = append(errs, err)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid metrics port %d", c.Metrics.Port))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}
	switch c.Ledger.Driver {
	case "memory", "sqlite", "postgres", "mysql", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("rate_limit.rps must not be negative"))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrConfiguration, "invalid configuration").WithCause(errors.Join(errs...))
	}
	return nil
}
