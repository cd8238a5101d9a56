// Package config loads the crawler's YAML configuration strictly,
// following the same load-then-validate shape as the rest of this
// codebase's config layer. CLI flag overrides are applied by the scan
// command, not by this package.
package config

import (
	"fmt"
	"os"

	"github.com/adtechscan/crawler/internal/common/configtypes"
	"github.com/adtechscan/crawler/internal/common/yamlutil"
)

// Load reads and strictly decodes a CrawlConfig from path. An empty path
// is not an error -- it returns the Default() config so the CLI can run
// with flags alone.
func Load(path string) (*configtypes.CrawlConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns the configuration a `scan` invocation uses when no
// config file is given: conservative concurrency, sane timeouts, DNS
// preflight on, SSL preflight off, matching §4.5's documented defaults.
func Default() *configtypes.CrawlConfig {
	return &configtypes.CrawlConfig{
		Log: configtypes.LogConfig{
			Level: configtypes.LogLevelInfo,
			Console: configtypes.ConsoleLogConfig{
				Enabled: true,
				Format:  configtypes.LogFormatConsole,
			},
		},
		Tracker: configtypes.TrackerConfig{
			StorePath: "store",
		},
		Browser: configtypes.BrowserConfig{
			Concurrency:    "auto",
			Headless:       true,
			SoftTimeout:    25_000_000_000,  // 25s
			HardTimeout:    65_000_000_000,  // 65s
			SettleInterval: 6_000_000_000,   // 6s
			MaxRetries:     2,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			AdUnitDetail:   "standard",
			ModuleDetail:   "simple",
		},
		Preflight: configtypes.PreflightConfig{
			Enabled:        true,
			CheckDNS:       true,
			CheckSSL:       false,
			DNSConcurrency: 20,
			SSLConcurrency: 10,
			DNSTimeout:     3_000_000_000, // 3s
			SSLTimeout:     5_000_000_000, // 5s
			SkipDNSFailed:  true,
			SkipSSLFailed:  false,
		},
		Batch: configtypes.BatchConfig{
			BatchSize:         50,
			InterBatchDelay:   5_000_000_000,  // 5s
			RecoveryWait:      10_000_000_000, // 10s
			VerifySkips:       true,
			RetryConcurrency:  3,
			RetryTimeoutScale: 2,
		},
		Sink: configtypes.SinkConfig{
			OutputDir: "store",
			ErrorsDir: "errors",
		},
		Metrics: configtypes.MetricsConfig{
			Enabled: false,
			Listen:  ":9108",
			Path:    "/metrics",
		},
	}
}

// Validate rejects configurations that would make the pipeline misbehave
// rather than simply fail a component's own constructor.
func Validate(cfg *configtypes.CrawlConfig) error {
	if cfg.Batch.BatchSize <= 0 {
		return fmt.Errorf("batch.batch_size must be positive")
	}
	if cfg.Preflight.DNSConcurrency <= 0 {
		return fmt.Errorf("preflight.dns_concurrency must be positive")
	}
	if cfg.Preflight.SSLConcurrency <= 0 {
		return fmt.Errorf("preflight.ssl_concurrency must be positive")
	}
	if cfg.Tracker.StorePath == "" {
		return fmt.Errorf("tracker.store_path must be set")
	}
	return nil
}
