// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
// (JSRECON_ENGINE_WORKER_CONCURRENCY, JSRECON_DATABASE_URL, ...).
const EnvPrefix = "JSRECON"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Analyzer() AnalyzerConfig
	Engine() EngineConfig
	Discovery() DiscoveryConfig
	Browser() BrowserConfig
	Fetch() FetchConfig
	Database() DatabaseConfig
	Server() ServerConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	AnalyzerCfg  AnalyzerConfig  `mapstructure:"analyzer" yaml:"analyzer"`
	EngineCfg    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	DiscoveryCfg DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	FetchCfg     FetchConfig     `mapstructure:"fetch" yaml:"fetch"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	ServerCfg    ServerConfig    `mapstructure:"server" yaml:"server"`
}

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Analyzer() AnalyzerConfig   { return c.AnalyzerCfg }
func (c *Config) Engine() EngineConfig       { return c.EngineCfg }
func (c *Config) Discovery() DiscoveryConfig { return c.DiscoveryCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Fetch() FetchConfig         { return c.FetchCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Server() ServerConfig       { return c.ServerCfg }

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

// AnalyzerConfig toggles the per-file analysis stages.
type AnalyzerConfig struct {
	IncludePrettify      bool `mapstructure:"include_prettify" yaml:"include_prettify"`
	DetectNetworkCalls   bool `mapstructure:"detect_network_calls" yaml:"detect_network_calls"`
	ExtractMetadata      bool `mapstructure:"extract_metadata" yaml:"extract_metadata"`
	GenerateRequestSpecs bool `mapstructure:"generate_request_specs" yaml:"generate_request_specs"`
	ContextLines         int  `mapstructure:"context_lines" yaml:"context_lines"`
	ContextLineLimit     int  `mapstructure:"context_line_limit" yaml:"context_line_limit"`
	ValidateEndpoints    bool `mapstructure:"validate_endpoints" yaml:"validate_endpoints"`
	DetectTokens         bool `mapstructure:"detect_tokens" yaml:"detect_tokens"`
	JWTBruteForce        bool `mapstructure:"jwt_brute_force" yaml:"jwt_brute_force"`
}

// EngineConfig configures the file analysis worker pool.
type EngineConfig struct {
	WorkerConcurrency int `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	// FileTimeout bounds the parse of one file; zero disables it.
	FileTimeout time.Duration `mapstructure:"file_timeout" yaml:"file_timeout"`
}

// DiscoveryConfig controls how script files are found on disk.
type DiscoveryConfig struct {
	Extensions  []string `mapstructure:"extensions" yaml:"extensions"`
	Exclude     []string `mapstructure:"exclude" yaml:"exclude"`
	MaxFileSize int64    `mapstructure:"max_file_size" yaml:"max_file_size"`
	FollowHTML  bool     `mapstructure:"follow_html" yaml:"follow_html"`
}

// BrowserConfig holds settings for the headless browser used to harvest scripts.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	SameSiteOnly      bool          `mapstructure:"same_site_only" yaml:"same_site_only"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// FetchConfig configures the plain HTTP client used for remote script URLs
// passed to analyze.
type FetchConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRedirects    int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	// SameSiteOnly skips <script src> outside the page's registrable domain.
	SameSiteOnly bool `mapstructure:"same_site_only" yaml:"same_site_only"`
	Concurrency  int  `mapstructure:"concurrency" yaml:"concurrency"`
	// MaxBodySize caps each decoded response body.
	MaxBodySize int64 `mapstructure:"max_body_size" yaml:"max_body_size"`
}

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig configures the command server.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// RateLimit is the sustained number of commands per second; Burst is
	// the bucket size.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
	// AllowedRoots restricts analyze_directory to these directories. The
	// default is the working directory; an empty list allows any path.
	AllowedRoots []string `mapstructure:"allowed_roots" yaml:"allowed_roots"`
	// AllowedOrigins lists the browser origins that may call the API.
	// Requests carrying any other Origin header are refused.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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
	v.SetDefault("logger.service_name", "jsrecon")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Analyzer --
	v.SetDefault("analyzer.include_prettify", false)
	v.SetDefault("analyzer.detect_network_calls", true)
	v.SetDefault("analyzer.extract_metadata", true)
	v.SetDefault("analyzer.generate_request_specs", true)
	v.SetDefault("analyzer.context_lines", 30)
	v.SetDefault("analyzer.context_line_limit", 1000)
	v.SetDefault("analyzer.validate_endpoints", false)
	v.SetDefault("analyzer.detect_tokens", true)
	v.SetDefault("analyzer.jwt_brute_force", false)

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", runtime.NumCPU())
	v.SetDefault("engine.file_timeout", "0s")

	// -- Discovery --
	v.SetDefault("discovery.extensions", []string{".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx"})
	v.SetDefault("discovery.exclude", []string{"**/node_modules/**"})
	v.SetDefault("discovery.max_file_size", 10<<20)
	v.SetDefault("discovery.follow_html", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.same_site_only", false)

	// -- Fetch --
	v.SetDefault("fetch.request_timeout", "30s")
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.ignore_tls_errors", false)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; jsrecon)")
	v.SetDefault("fetch.same_site_only", false)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.max_body_size", 10<<20)

	// -- Server --
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.allowed_roots", []string{"."})
	v.SetDefault("server.allowed_origins", []string{})
}

// ConfigureViper applies the environment conventions shared by the CLI and
// tests: the JSRECON_ prefix and dotted keys mapped to underscores.
func ConfigureViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Unmarshal does not consult AutomaticEnv for keys without a default, so
	// bind the ones that are typically secret explicitly.
	if err := v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("error binding database.url: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every path-valued setting.
func (c *Config) expandPaths() error {
	if c.LoggerCfg.LogFile != "" {
		p, err := homedir.Expand(c.LoggerCfg.LogFile)
		if err != nil {
			return err
		}
		c.LoggerCfg.LogFile = p
	}
	for i, root := range c.ServerCfg.AllowedRoots {
		p, err := homedir.Expand(root)
		if err != nil {
			return err
		}
		if p, err = filepath.Abs(p); err != nil {
			return err
		}
		c.ServerCfg.AllowedRoots[i] = p
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.LoggerCfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.LoggerCfg.Format)
	}
	if c.EngineCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.EngineCfg.FileTimeout < 0 {
		return fmt.Errorf("engine.file_timeout must not be negative")
	}
	if c.AnalyzerCfg.ContextLines < 0 {
		return fmt.Errorf("analyzer.context_lines must not be negative")
	}
	if c.AnalyzerCfg.ContextLineLimit < 0 {
		return fmt.Errorf("analyzer.context_line_limit must not be negative")
	}
	if c.DiscoveryCfg.MaxFileSize <= 0 {
		return fmt.Errorf("discovery.max_file_size must be a positive integer")
	}
	if len(c.DiscoveryCfg.Extensions) == 0 {
		return fmt.Errorf("discovery.extensions must list at least one extension")
	}
	if c.FetchCfg.Concurrency <= 0 || c.FetchCfg.MaxBodySize <= 0 {
		return fmt.Errorf("fetch.concurrency and fetch.max_body_size must be positive")
	}
	if c.FetchCfg.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must not be negative")
	}
	if c.ServerCfg.Port < 0 || c.ServerCfg.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	if c.ServerCfg.RateLimit <= 0 || c.ServerCfg.Burst <= 0 {
		return fmt.Errorf("server.rate_limit and server.burst must be positive")
	}
	return nil
}
