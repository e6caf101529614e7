package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Fields are exported so
// viper can unmarshal them; treat the struct as read-only after load.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Batch   BatchConfig   `mapstructure:"batch" yaml:"batch"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
}

// LoggerConfig controls the structured logger and its file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig tunes the Playwright-driven browser.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DownloadsDir      string        `mapstructure:"downloads_dir" yaml:"downloads_dir"`
	SkipInstall       bool          `mapstructure:"skip_install" yaml:"skip_install"`
}

// LLMProvider identifies the upstream model provider.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LLMConfig configures the model routing logic.
type LLMConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	APIKey               string                    `mapstructure:"api_key" yaml:"api_key"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// RetryConfig shapes the exponential backoff applied to flaky operations.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// AgentConfig tunes the task loop.
type AgentConfig struct {
	MaxSteps           int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxHistoryMessages int           `mapstructure:"max_history_messages" yaml:"max_history_messages"`
	KeepRecentMessages int           `mapstructure:"keep_recent_messages" yaml:"keep_recent_messages"`
	SnapshotMaxAge     time.Duration `mapstructure:"snapshot_max_age" yaml:"snapshot_max_age"`
	RecentActionWindow int           `mapstructure:"recent_action_window" yaml:"recent_action_window"`
	MaxElements        int           `mapstructure:"max_elements" yaml:"max_elements"`
	Retry              RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// BatchConfig tunes the multi-tab batch engine.
type BatchConfig struct {
	FailureRateThreshold float64       `mapstructure:"failure_rate_threshold" yaml:"failure_rate_threshold"`
	ItemDelay            time.Duration `mapstructure:"item_delay" yaml:"item_delay"`
	MaxContentLength     int           `mapstructure:"max_content_length" yaml:"max_content_length"`
	MaxPDFLinks          int           `mapstructure:"max_pdf_links" yaml:"max_pdf_links"`
	UseNewTab            bool          `mapstructure:"use_new_tab" yaml:"use_new_tab"`
}

// OutputConfig controls where reports and exports land.
type OutputConfig struct {
	ReportsDir string `mapstructure:"reports_dir" yaml:"reports_dir"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deepsurf")
	v.SetDefault("logger.log_file", "deepsurf.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "UTC")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.downloads_dir", "downloads")
	v.SetDefault("browser.skip_install", false)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")

	// -- Agent --
	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.max_history_messages", 20)
	v.SetDefault("agent.keep_recent_messages", 10)
	v.SetDefault("agent.snapshot_max_age", "300s")
	v.SetDefault("agent.recent_action_window", 5)
	v.SetDefault("agent.max_elements", 100)
	v.SetDefault("agent.retry.max_attempts", 3)
	v.SetDefault("agent.retry.initial_interval", "500ms")
	v.SetDefault("agent.retry.max_interval", "5s")
	v.SetDefault("agent.retry.multiplier", 2.0)

	// -- Batch --
	v.SetDefault("batch.failure_rate_threshold", 0.3)
	v.SetDefault("batch.item_delay", "500ms")
	v.SetDefault("batch.max_content_length", 1000)
	v.SetDefault("batch.max_pdf_links", 5)
	v.SetDefault("batch.use_new_tab", true)

	// -- Output --
	v.SetDefault("output.reports_dir", "reports")
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with the built-in defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("llm.api_key", "DEEPSURF_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal can miss a pure-env key with no file entry.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("DEEPSURF_LLM_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.KeepRecentMessages >= c.Agent.MaxHistoryMessages {
		return fmt.Errorf("agent.keep_recent_messages must be smaller than agent.max_history_messages")
	}
	if c.Agent.SnapshotMaxAge <= 0 {
		return fmt.Errorf("agent.snapshot_max_age must be a positive duration")
	}
	if c.Agent.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("agent.retry.max_attempts must be a positive integer")
	}
	if c.Batch.FailureRateThreshold <= 0 || c.Batch.FailureRateThreshold >= 1 {
		return fmt.Errorf("batch.failure_rate_threshold must be in (0, 1)")
	}
	if c.LLM.DefaultFastModel == "" || c.LLM.DefaultPowerfulModel == "" {
		return fmt.Errorf("llm.default_fast_model and llm.default_powerful_model are required")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	return nil
}

// ModelFor resolves the model configuration for a tier name, falling back to
// a Gemini config synthesized from the top-level API key when the models map
// has no explicit entry.
func (c *LLMConfig) ModelFor(name string) LLMModelConfig {
	if mc, ok := c.Models[name]; ok {
		if mc.APIKey == "" {
			mc.APIKey = c.APIKey
		}
		if mc.Model == "" {
			mc.Model = name
		}
		return mc
	}
	return LLMModelConfig{
		Provider: ProviderGemini,
		Model:    name,
		APIKey:   c.APIKey,
	}
}
