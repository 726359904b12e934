// =============================================================================
// 📦 localroute 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/localroute/llm"
	"github.com/BaSui01/localroute/llm/cli"
	"github.com/BaSui01/localroute/llm/providers"
	"github.com/BaSui01/localroute/llm/router"
	"github.com/BaSui01/localroute/llm/tokenizer"
)

// DefaultMaxBodyBytes 请求体上限 10 MiB
const DefaultMaxBodyBytes = 10 << 20

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Provider:  string(llm.ProviderClaude),
		Server:    DefaultServerConfig(),
		Local:     DefaultLocalConfig(),
		Upstream:  DefaultUpstreamConfig(),
		Limits:    router.DefaultLimits(),
		Log:       DefaultLogConfig(),
		Metrics:   MetricsConfig{Enabled: false, Port: 9091},
		Telemetry: DefaultTelemetryConfig(),
		Ledger:    LedgerConfig{Driver: "memory", KeyPrefix: "localroute:"},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "localhost",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    cli.DefaultTimeout + 30*time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    DefaultMaxBodyBytes,
	}
}

// DefaultLocalConfig 返回默认 CLI 配置
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Anthropic:      cli.DefaultTemplate(llm.FamilyAnthropic),
		OpenAI:         cli.DefaultTemplate(llm.FamilyOpenAI),
		Timeout:        cli.DefaultTimeout,
		MaxConcurrent:  8,
		QueueSize:      64,
		UsageEstimator: tokenizer.NameWords,
	}
}

// DefaultUpstreamConfig 返回默认远端配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		AnthropicBaseURL: providers.DefaultAnthropicBaseURL,
		AnthropicVersion: providers.DefaultAnthropicVersion,
		OpenAIBaseURL:    providers.DefaultOpenAIBaseURL,
		Timeout:          providers.DefaultTimeout,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stderr"},
		EnableCaller: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "localroute",
		SampleRate:   0.1,
	}
}
