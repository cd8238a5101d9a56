package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/adtechscan/crawler/internal/common/config"
	"github.com/adtechscan/crawler/internal/common/configtypes"
	logutil "github.com/adtechscan/crawler/internal/common/logger"
	"github.com/adtechscan/crawler/internal/common/metricsserver"
	"github.com/adtechscan/crawler/internal/common/redis"
	"github.com/adtechscan/crawler/internal/crawler/batch"
	"github.com/adtechscan/crawler/internal/crawler/browser"
	"github.com/adtechscan/crawler/internal/crawler/classify"
	"github.com/adtechscan/crawler/internal/crawler/domainvalidate"
	"github.com/adtechscan/crawler/internal/crawler/loader"
	"github.com/adtechscan/crawler/internal/crawler/metrics"
	"github.com/adtechscan/crawler/internal/crawler/preflight"
	"github.com/adtechscan/crawler/internal/crawler/rangeselect"
	"github.com/adtechscan/crawler/internal/crawler/retry"
	"github.com/adtechscan/crawler/internal/crawler/sink"
	"github.com/adtechscan/crawler/internal/crawler/tracker"
	"github.com/adtechscan/crawler/pkg/types"
)

// payloadJS is the opaque in-page extraction expression forwarded to
// every page task. The extraction logic it runs is out of this
// repository's scope -- see the browser package's
// buildExtractionExpression for how it is called.
const payloadJS = `(opts) => ({ libraries: [], prebidInstances: [] })`

func main() {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)

	configPath := fs.String("c", "", "path to crawler configuration file")
	githubRepo := fs.String("githubRepo", "", "remote URL list to load instead of a local input file")
	numUrls := fs.Int("numUrls", 0, "cap on how many candidate urls to load (0 = unbounded)")
	puppeteerType := fs.String("puppeteerType", "vanilla", "vanilla|cluster (accepted for compatibility; this engine always pools)")
	concurrencyFlag := fs.String("concurrency", "", "override browser.concurrency (\"auto\" or an integer)")
	headless := fs.Bool("headless", true, "run the browser pool headless")
	monitor := fs.Bool("monitor", false, "start the Prometheus metrics server")
	outputDir := fs.String("outputDir", "", "override sink.output_dir")
	logDir := fs.String("logDir", "", "write file logs under this directory")
	rangeExpr := fs.String("range", "", "1-based inclusive slice of the loaded url list, e.g. \"101-500\"")
	chunkSize := fs.Int("chunkSize", 0, "override batch.batch_size; single-pass runs are not chunked and use it only to size the suggested next range")
	skipProcessed := fs.Bool("skipProcessed", true, "filter out urls the tracker already marked processed")
	resetTracking := fs.Bool("resetTracking", false, "wipe all tracker state before running")
	prefilterProcessed := fs.Bool("prefilterProcessed", false, "apply the tracker filter once to the whole loaded list instead of inside each pipeline run")
	forceReprocess := fs.Bool("forceReprocess", false, "bypass the tracker filter entirely, including sticky permanent errors")
	preflightCheck := fs.Bool("preflightCheck", true, "override preflight.enabled")
	skipDNSFailed := fs.Bool("skipDNSFailed", true, "override preflight.skip_dns_failed")
	skipSSLFailed := fs.Bool("skipSSLFailed", false, "override preflight.skip_ssl_failed")
	discoveryMode := fs.Bool("discoveryMode", false, "override browser.discovery_mode")
	extractMetadata := fs.Bool("extractMetadata", false, "override browser.extract_metadata")
	adUnitDetail := fs.String("adUnitDetail", "", "override browser.ad_unit_detail")
	moduleDetail := fs.String("moduleDetail", "", "override browser.module_detail")
	batchMode := fs.Bool("batchMode", false, "run under the C10 batch orchestrator instead of a single pass")
	startURL := fs.Int("startUrl", 1, "1-based position to start batch mode at")
	totalUrls := fs.Int("totalUrls", 0, "total urls to cover in batch mode (0 = rest of the loaded list)")
	batchSize := fs.Int("batchSize", 0, "override batch.batch_size for batch mode")
	resumeBatch := fs.Int("resumeBatch", 1, "1-based batch number to resume from")

	fs.Parse(os.Args[1:])
	inputFile := fs.Arg(0)

	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		initialLogger.Fatal("failed to load configuration", zap.Error(err))
	}
	applyFlagOverrides(cfg, flagOverrides{
		concurrency: *concurrencyFlag, outputDir: *outputDir, logDir: *logDir,
		chunkSize: *chunkSize, batchSize: *batchSize, headless: *headless,
		preflightCheck: *preflightCheck, skipDNSFailed: *skipDNSFailed, skipSSLFailed: *skipSSLFailed,
		discoveryMode: *discoveryMode, extractMetadata: *extractMetadata,
		adUnitDetail: *adUnitDetail, moduleDetail: *moduleDetail, monitor: *monitor,
	}, fs)

	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger
	defer logger.Sync()

	if *puppeteerType == "cluster" {
		logger.Warn("puppeteerType=cluster is accepted for compatibility but this engine always uses its own pooled browser.Pool")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := inputFile
	if *githubRepo != "" {
		source = *githubRepo
	}
	if source == "" {
		logger.Fatal("no url source: pass an inputFile or --githubRepo")
	}

	store, err := tracker.Open(cfg.Tracker.StorePath, openCache(cfg, logger), cfg.Tracker.CacheTTL.ToDuration(), logger)
	if err != nil {
		logger.Fatal("failed to open tracker store", zap.Error(err))
	}
	defer store.Close()

	if *resetTracking {
		if err := store.Reset(ctx); err != nil {
			logger.Fatal("failed to reset tracker", zap.Error(err))
		}
		logger.Info("tracker state reset")
	}

	urls, err := loader.New(logger).Load(source, loader.Options{NumUrls: *numUrls})
	if err != nil {
		logger.Fatal("failed to load url source", zap.Error(err), zap.String("source", source))
	}

	rangeResult := rangeselect.Select(urls, *rangeExpr, logger)
	urls = rangeResult.Selected

	validator, err := domainvalidate.New(domainvalidate.Config{})
	if err != nil {
		logger.Fatal("failed to build domain validator", zap.Error(err))
	}
	urls, rejected := validator.Filter(urls)
	if len(rejected) > 0 {
		logger.Info("domain validation rejected candidate urls", zap.Int("rejected", len(rejected)))
	}

	// Check for remaining work before the browser pool is ever constructed,
	// regardless of --prefilterProcessed: launching Chrome when every
	// candidate url is already processed wastes a pool's worth of
	// instances for nothing to do.
	if *skipProcessed && !*forceReprocess {
		remaining, ferr := store.FilterUnprocessed(ctx, urls)
		if ferr != nil {
			logger.Fatal("failed to filter processed urls", zap.Error(ferr))
		}
		if len(remaining) == 0 {
			logger.Info("all candidate urls already processed, nothing to do", zap.Int("candidates", len(urls)))
			os.Exit(0)
		}
		if *prefilterProcessed {
			urls = remaining
		}
	}

	s, err := sink.New(cfg.Sink.OutputDir, cfg.Sink.ErrorsDir, logger)
	if err != nil {
		logger.Fatal("failed to open results sink", zap.Error(err))
	}

	var metricsHandler *metrics.Metrics
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.New(logger)
		if _, err := metricsserver.Start(true, cfg.Metrics.Listen, cfg.Metrics.Path, metricsHandler, logger); err != nil {
			logger.Fatal("failed to start metrics server", zap.Error(err))
		}
	}

	browserCfg := &browser.Config{
		Concurrency:          cfg.Browser.Concurrency,
		Headless:             cfg.Browser.Headless,
		SoftTimeout:          cfg.Browser.SoftTimeout.ToDuration(),
		HardTimeout:          cfg.Browser.HardTimeout.ToDuration(),
		SettleInterval:       cfg.Browser.SettleInterval.ToDuration(),
		MaxRetries:           cfg.Browser.MaxRetries,
		BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
		UserAgent:            cfg.Browser.UserAgent,
	}
	pool, err := browser.New(browserCfg, logger)
	var acquirer browser.Acquirer = pool
	if err != nil {
		logger.Warn("browser pool failed to launch, falling back to a browser-per-task pool", zap.Error(err))
		acquirer = browser.NewSimplePool(browserCfg, logger)
	} else {
		defer pool.Shutdown()
	}

	opts := browser.ExtractOptions{
		DiscoveryMode:   cfg.Browser.DiscoveryMode,
		ExtractMetadata: cfg.Browser.ExtractMetadata,
		AdUnitDetail:    cfg.Browser.AdUnitDetail,
		ModuleDetail:    cfg.Browser.ModuleDetail,
	}

	preflightChecker := preflight.New(preflight.Config{
		CheckDNS:       cfg.Preflight.Enabled && cfg.Preflight.CheckDNS,
		CheckSSL:       cfg.Preflight.Enabled && cfg.Preflight.CheckSSL,
		DNSConcurrency: cfg.Preflight.DNSConcurrency,
		SSLConcurrency: cfg.Preflight.SSLConcurrency,
		SkipDNSFailed:  cfg.Preflight.SkipDNSFailed,
		SkipSSLFailed:  cfg.Preflight.SkipSSLFailed,
	}, logger)

	concurrency := browserCfg.PoolSize()

	skipFilterInPipeline := !*skipProcessed || *forceReprocess || *prefilterProcessed
	pipeline := func(ctx context.Context, batchURLs []string, workers int) ([]types.TaskResult, error) {
		return runPipeline(ctx, batchURLs, workers, store, metricsHandler, preflightChecker, acquirer, browserCfg, opts, skipFilterInPipeline, logger)
	}

	retryRunner := retry.New(acquirer, payloadJS, logger)

	if !*batchMode {
		results, err := pipeline(ctx, urls, concurrency)
		if err != nil {
			logger.Fatal("pipeline run failed", zap.Error(err))
		}
		results = retryRunner.Run(ctx, browserCfg, concurrency, opts, results)

		if err := s.WriteBatch(results); err != nil {
			logger.Error("writing results to sink", zap.Error(err))
		}
		for _, r := range results {
			if err := store.MarkTaskResult(ctx, r); err != nil {
				logger.Error("marking task result in tracker", zap.String("url", r.URL), zap.Error(err))
			}
		}

		summarizeResults(logger, results)
		if suggestion := nextRangeSuggestion(ctx, store, urls, cfg.Batch.BatchSize); suggestion != "" {
			fmt.Println(suggestion)
		}
		os.Exit(0)
	}

	start := *startURL
	if start < 1 {
		start = 1
	}
	if start > len(urls)+1 {
		start = len(urls) + 1
	}
	rest := urls[start-1:]

	total := *totalUrls
	if total <= 0 || total > len(rest) {
		total = len(rest)
	}
	batchURLs := rest[:total]

	effectiveBatchSize := cfg.Batch.BatchSize
	if *batchSize > 0 {
		effectiveBatchSize = *batchSize
	}

	orch, err := batch.New(cfg.Tracker.StorePath, store, s, retryRunner, cfg.Batch.VerifySkips, cfg.Batch.RetryConcurrency, logger)
	if err != nil {
		logger.Fatal("failed to initialize batch orchestrator", zap.Error(err))
	}

	progress, err := orch.Run(ctx, batchURLs, start, effectiveBatchSize, *resumeBatch, concurrency, browserCfg, opts, pipeline)
	if err != nil {
		logger.Fatal("batch run failed", zap.Error(err))
	}

	fmt.Println(batch.Summary(progress, inputFile))
	if suggestion := nextRangeSuggestion(ctx, store, urls, effectiveBatchSize); suggestion != "" {
		fmt.Println(suggestion)
	}
	if len(progress.FailedBatches) > 0 {
		os.Exit(0) // per-batch failures are recorded, not fatal; retry commands were printed above
	}
}

// nextRangeSuggestion reports the windowSize-wide slice of fullList with
// the highest unprocessed fraction, per §7's "suggests the next range"
// final-summary requirement. Returns "" if nothing is left to suggest.
func nextRangeSuggestion(ctx context.Context, store *tracker.Store, fullList []string, windowSize int) string {
	if windowSize <= 0 {
		windowSize = len(fullList)
	}
	suggestions, err := store.SuggestNextRanges(ctx, fullList, windowSize, 1)
	if err != nil || len(suggestions) == 0 {
		return ""
	}
	top := suggestions[0]
	if top.UnprocessedFraction <= 0 {
		return ""
	}
	return fmt.Sprintf("suggested next range: %d-%d (%.0f%% unprocessed)", top.Start, top.End, top.UnprocessedFraction*100)
}

// runPipeline filters, preflights, and fans a batch of urls out across
// the browser pool, classifying each result as it lands. Persisting the
// results (sink + tracker) is the caller's job, once per call site.
func runPipeline(ctx context.Context, urls []string, workers int, store *tracker.Store, m *metrics.Metrics, pc *preflight.Checker, pool browser.Acquirer, cfg *browser.Config, opts browser.ExtractOptions, skipFilter bool, logger *zap.Logger) ([]types.TaskResult, error) {
	candidates := urls
	if !skipFilter {
		filtered, err := store.FilterUnprocessed(ctx, urls)
		if err != nil {
			return nil, fmt.Errorf("filtering unprocessed urls: %w", err)
		}
		candidates = filtered
	}

	outcomes := pc.Run(ctx, candidates)

	task := browser.NewTask(pool, cfg, payloadJS, logger)

	jobs := make(chan string)
	resultsCh := make(chan types.TaskResult, len(candidates))
	done := make(chan struct{})

	for i := 0; i < workers; i++ {
		go func() {
			for url := range jobs {
				if outcome, ok := outcomes[url]; ok && outcome.SkipReason != "" {
					resultsCh <- preflightSkipResult(url, outcome)
					continue
				}
				resultsCh <- task.Run(ctx, url, opts)
			}
			done <- struct{}{}
		}()
	}

	go func() {
		for _, url := range candidates {
			jobs <- url
		}
		close(jobs)
	}()

	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(resultsCh)
	}()

	results := make([]types.TaskResult, 0, len(candidates))
	for r := range resultsCh {
		results = append(results, r)
		if m != nil {
			recordMetric(m, r)
		}
	}

	return results, nil
}

// preflightSkipResult turns a preflight SkipReason into the matching
// C8-classified error, so a DNS-failed skip lands in navigation_errors.txt
// and an SSL-failed skip lands in ssl_errors.txt, per §6's file mapping.
// DNS is checked first: a DNS failure leaves PassedSSL at its zero value
// too (SSL is never reached), so PassedDNS must be the primary signal.
func preflightSkipResult(url string, outcome preflight.Outcome) types.TaskResult {
	if !outcome.PassedDNS {
		return types.NewErrorResult(url, classify.DNSFailedResult(url), outcome.SkipReason)
	}
	return types.NewErrorResult(url, classify.SSLFailedResult(url), outcome.SkipReason)
}

func recordMetric(m *metrics.Metrics, r types.TaskResult) {
	switch r.Kind {
	case types.ResultSuccess:
		m.RecordURLProcessed("success")
	case types.ResultNoData:
		m.RecordURLProcessed("no_data")
	case types.ResultError:
		m.RecordURLProcessed("error")
	}
}

func summarizeResults(logger *zap.Logger, results []types.TaskResult) {
	var success, noData, errs int
	for _, r := range results {
		switch r.Kind {
		case types.ResultSuccess:
			success++
		case types.ResultNoData:
			noData++
		case types.ResultError:
			errs++
		}
	}
	logger.Info("scan complete", zap.Int("total", len(results)), zap.Int("success", success), zap.Int("no_data", noData), zap.Int("errors", errs))
}

func openCache(cfg *configtypes.CrawlConfig, logger *zap.Logger) *redis.Client {
	if cfg.Redis == nil {
		return nil
	}
	client, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis cache unavailable, tracker will run SQLite-only", zap.Error(err))
		return nil
	}
	return client
}

type flagOverrides struct {
	concurrency, outputDir, logDir                       string
	chunkSize, batchSize                                 int
	headless, preflightCheck, skipDNSFailed, skipSSLFailed bool
	discoveryMode, extractMetadata                       bool
	adUnitDetail, moduleDetail                            string
	monitor                                              bool
}

// applyFlagOverrides layers explicitly-passed CLI flags on top of the
// loaded config, so an unset flag never clobbers a config file value.
func applyFlagOverrides(cfg *configtypes.CrawlConfig, o flagOverrides, fs *flag.FlagSet) {
	passed := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { passed[f.Name] = true })

	if passed["concurrency"] {
		cfg.Browser.Concurrency = o.concurrency
	}
	if passed["headless"] {
		cfg.Browser.Headless = o.headless
	}
	if passed["outputDir"] {
		cfg.Sink.OutputDir = o.outputDir
	}
	if passed["logDir"] {
		cfg.Log.File.Enabled = true
		cfg.Log.File.Path = filepath.Join(o.logDir, "crawler.log")
		cfg.Log.File.Format = configtypes.LogFormatText
	}
	if passed["chunkSize"] && o.chunkSize > 0 {
		cfg.Batch.BatchSize = o.chunkSize
	}
	if passed["batchSize"] && o.batchSize > 0 {
		cfg.Batch.BatchSize = o.batchSize
	}
	if passed["preflightCheck"] {
		cfg.Preflight.Enabled = o.preflightCheck
	}
	if passed["skipDNSFailed"] {
		cfg.Preflight.SkipDNSFailed = o.skipDNSFailed
	}
	if passed["skipSSLFailed"] {
		cfg.Preflight.SkipSSLFailed = o.skipSSLFailed
	}
	if passed["discoveryMode"] {
		cfg.Browser.DiscoveryMode = o.discoveryMode
	}
	if passed["extractMetadata"] {
		cfg.Browser.ExtractMetadata = o.extractMetadata
	}
	if passed["adUnitDetail"] && o.adUnitDetail != "" {
		cfg.Browser.AdUnitDetail = o.adUnitDetail
	}
	if passed["moduleDetail"] && o.moduleDetail != "" {
		cfg.Browser.ModuleDetail = o.moduleDetail
	}
	if passed["monitor"] {
		cfg.Metrics.Enabled = o.monitor
	}
}
