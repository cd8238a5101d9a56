// Package configtypes holds the plain data structs decoded from a crawler
// YAML configuration file. It carries no behavior beyond yaml tags so that
// internal/common/config and internal/common/logger can both depend on it
// without a cycle.
package configtypes

import "github.com/adtechscan/crawler/pkg/types"

// Log level constants.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// CrawlConfig is the root configuration for the `scan` command.
type CrawlConfig struct {
	Log       LogConfig       `yaml:"log"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Browser   BrowserConfig   `yaml:"browser"`
	Preflight PreflightConfig `yaml:"preflight"`
	Batch     BatchConfig     `yaml:"batch"`
	Sink      SinkConfig      `yaml:"sink"`
	Redis     *RedisConfig    `yaml:"redis,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// TrackerConfig configures the embedded URL tracker store (C3).
type TrackerConfig struct {
	StorePath   string `yaml:"store_path"`   // directory holding tracker.db and dated output
	CacheTTL    types.Duration `yaml:"cache_ttl,omitempty"` // optional Redis front-cache TTL
}

// BrowserConfig configures the browser pool (C6) and page task (C7).
type BrowserConfig struct {
	Concurrency       string         `yaml:"concurrency"` // "auto" or integer string
	Headless          bool           `yaml:"headless"`
	SoftTimeout       types.Duration `yaml:"soft_timeout"`
	HardTimeout       types.Duration `yaml:"hard_timeout"`
	SettleInterval    types.Duration `yaml:"settle_interval"`
	MaxRetries        int            `yaml:"max_retries"`
	BlockedResourceTypes []string    `yaml:"blocked_resource_types,omitempty"`
	UserAgent         string         `yaml:"user_agent"`
	DiscoveryMode     bool           `yaml:"discovery_mode"`
	ExtractMetadata   bool           `yaml:"extract_metadata"`
	AdUnitDetail      string         `yaml:"ad_unit_detail"`      // basic|standard|full
	ModuleDetail      string         `yaml:"module_detail"`       // simple|categorized
	IdentityDetail    bool           `yaml:"identity_detail"`
	PrebidConfigDetail bool          `yaml:"prebid_config_detail"`
	IdentityUsageDetail bool         `yaml:"identity_usage_detail"`
}

// PreflightConfig configures the DNS/TLS preflight filter (C5).
type PreflightConfig struct {
	Enabled        bool           `yaml:"enabled"`
	CheckDNS       bool           `yaml:"check_dns"`
	CheckSSL       bool           `yaml:"check_ssl"`
	DNSConcurrency int            `yaml:"dns_concurrency"`
	SSLConcurrency int            `yaml:"ssl_concurrency"`
	DNSTimeout     types.Duration `yaml:"dns_timeout"`
	SSLTimeout     types.Duration `yaml:"ssl_timeout"`
	SkipDNSFailed  bool           `yaml:"skip_dns_failed"`
	SkipSSLFailed  bool           `yaml:"skip_ssl_failed"`
}

// BatchConfig configures the batch orchestrator (C10) and retry pass (C11).
type BatchConfig struct {
	BatchSize         int            `yaml:"batch_size"`
	InterBatchDelay   types.Duration `yaml:"inter_batch_delay"`
	RecoveryWait      types.Duration `yaml:"recovery_wait"`
	VerifySkips       bool           `yaml:"verify_skips"`
	RetryConcurrency  int            `yaml:"retry_concurrency"`
	RetryTimeoutScale int            `yaml:"retry_timeout_scale"`
}

// SinkConfig configures the results sink (C9).
type SinkConfig struct {
	OutputDir string `yaml:"output_dir"`
	ErrorsDir string `yaml:"errors_dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}
