// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Server() ServerConfig
	Scanner() ScannerConfig
	Session() SessionConfig
	GitHub() GitHubConfig
	LLM() LLMConfig

	// Scanner Setters
	SetScannerEngine(engine string)
	SetScannerTimeout(d time.Duration)

	// Session Setters
	SetSessionDispatch(mode string)
}

// Config holds the entire application configuration.
// Fields are exported for viper; consumers should go through Interface.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	ScannerCfg  ScannerConfig  `mapstructure:"scanner" yaml:"scanner"`
	SessionCfg  SessionConfig  `mapstructure:"session" yaml:"session"`
	GitHubCfg   GitHubConfig   `mapstructure:"github" yaml:"github"`
	LLMCfg      LLMConfig      `mapstructure:"llm" yaml:"llm"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Scanner() ScannerConfig   { return c.ScannerCfg }
func (c *Config) Session() SessionConfig   { return c.SessionCfg }
func (c *Config) GitHub() GitHubConfig     { return c.GitHubCfg }
func (c *Config) LLM() LLMConfig           { return c.LLMCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetScannerEngine(engine string)    { c.ScannerCfg.Engine = engine }
func (c *Config) SetScannerTimeout(d time.Duration) { c.ScannerCfg.Timeout = d }
func (c *Config) SetSessionDispatch(mode string)    { c.SessionCfg.Dispatch = mode }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL selects
// the in-memory team store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig configures the HTTP backend.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// AIRateLimit is the sustained number of completion requests per second.
	AIRateLimit float64 `mapstructure:"ai_rate_limit" yaml:"ai_rate_limit"`
	AIBurst     int     `mapstructure:"ai_burst" yaml:"ai_burst"`
}

// Scan engine implementations.
const (
	EngineCLI    = "cli"
	EngineRemote = "remote"
)

// ScannerConfig configures the external scan engine.
type ScannerConfig struct {
	Engine     string        `mapstructure:"engine" yaml:"engine"`
	Binary     string        `mapstructure:"binary" yaml:"binary"`
	Token      string        `mapstructure:"token" yaml:"-"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Workdir    string        `mapstructure:"workdir" yaml:"workdir"`
	CloneDepth int           `mapstructure:"clone_depth" yaml:"clone_depth"`
	RemoteURL  string        `mapstructure:"remote_url" yaml:"remote_url"`
	// Extra CLI arguments appended per scan kind.
	OpenSourceArgs   []string `mapstructure:"open_source_args" yaml:"open_source_args"`
	CodeSecurityArgs []string `mapstructure:"code_security_args" yaml:"code_security_args"`
}

// Dispatch modes for the two scan calls of a session.
const (
	DispatchConcurrent = "concurrent"
	DispatchSequential = "sequential"
)

// SessionConfig tunes the scan orchestrator.
type SessionConfig struct {
	Dispatch string `mapstructure:"dispatch" yaml:"dispatch"`
	// ScanTimeout bounds a whole session attempt, both scans included.
	ScanTimeout time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout"`
	// MaxSessions caps the sessions hosted by the HTTP backend; 0 is unlimited.
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions"`
	// IdleTimeout evicts sessions that are not scanning, have no live feed
	// and were not touched for this long; 0 disables eviction.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// GitHubConfig defines the configuration for GitHub repository lookups.
type GitHubConfig struct {
	Token   string `mapstructure:"token" yaml:"-"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// VerifyRepositories makes team creation confirm the repository exists.
	VerifyRepositories bool `mapstructure:"verify_repositories" yaml:"verify_repositories"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig defines the configuration for the text completion service.
type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	FastModel   string        `mapstructure:"fast_model" yaml:"fast_model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "codeshield")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Server --
	v.SetDefault("server.listen_addr", ":3000")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.ai_rate_limit", 1.0)
	v.SetDefault("server.ai_burst", 5)

	// -- Scanner --
	v.SetDefault("scanner.engine", EngineCLI)
	v.SetDefault("scanner.binary", "snyk")
	v.SetDefault("scanner.timeout", "5m")
	v.SetDefault("scanner.workdir", "")
	v.SetDefault("scanner.clone_depth", 1)

	// -- Session --
	v.SetDefault("session.dispatch", DispatchConcurrent)
	v.SetDefault("session.scan_timeout", "15m")
	v.SetDefault("session.max_sessions", 200)
	v.SetDefault("session.idle_timeout", "30m")

	// -- GitHub --
	v.SetDefault("github.verify_repositories", false)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "90s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.max_retries", 3)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("scanner.token", "CODESHIELD_SNYK_TOKEN", "SNYK_TOKEN")
	_ = v.BindEnv("github.token", "CODESHIELD_GITHUB_TOKEN")
	_ = v.BindEnv("llm.api_key", "CODESHIELD_LLM_API_KEY")
	_ = v.BindEnv("database.url", "CODESHIELD_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in user supplied file system paths.
func (c *Config) expandPaths() error {
	var err error
	if c.ScannerCfg.Workdir, err = homedir.Expand(c.ScannerCfg.Workdir); err != nil {
		return fmt.Errorf("failed to expand scanner.workdir: %w", err)
	}
	if c.LoggerCfg.LogFile, err = homedir.Expand(c.LoggerCfg.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.ScannerCfg.Validate(); err != nil {
		return fmt.Errorf("scanner configuration invalid: %w", err)
	}
	if err := c.SessionCfg.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if c.ServerCfg.AIRateLimit < 0 {
		return fmt.Errorf("server.ai_rate_limit must not be negative")
	}
	return nil
}

// Validate checks the scanner configuration.
func (s *ScannerConfig) Validate() error {
	switch strings.ToLower(s.Engine) {
	case EngineCLI:
		if s.Binary == "" {
			return fmt.Errorf("binary is required for the cli engine")
		}
	case EngineRemote:
		if s.RemoteURL == "" {
			return fmt.Errorf("remote_url is required for the remote engine")
		}
	default:
		return fmt.Errorf("unknown engine %q (supported: %s, %s)", s.Engine, EngineCLI, EngineRemote)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if s.CloneDepth < 0 {
		return fmt.Errorf("clone_depth must not be negative")
	}
	return nil
}

// Validate checks the session configuration.
func (s *SessionConfig) Validate() error {
	switch s.Dispatch {
	case DispatchConcurrent, DispatchSequential:
	default:
		return fmt.Errorf("dispatch must be %q or %q", DispatchConcurrent, DispatchSequential)
	}
	if s.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative")
	}
	if s.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative")
	}
	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must not be negative")
	}
	return nil
}
