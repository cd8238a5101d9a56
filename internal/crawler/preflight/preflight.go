// Package preflight implements C5: rate-limited DNS and TLS checks run
// before a URL is handed to the browser pool. Each phase admits at most
// its configured concurrency of new checks per second; the number of
// checks in flight at once is not capped.
package preflight

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/adtechscan/crawler/internal/common/urlutil"
	"github.com/adtechscan/crawler/pkg/types"
)

const (
	dnsTimeout = 3 * time.Second
	sslTimeout = 5 * time.Second
)

// Config mirrors spec.md §4.5's policy knobs.
type Config struct {
	CheckDNS       bool
	CheckSSL       bool
	DNSConcurrency int
	SSLConcurrency int
	SkipDNSFailed  bool // default true at the config layer
	SkipSSLFailed  bool // default false at the config layer
}

// Outcome is one URL's preflight result.
type Outcome struct {
	PassedDNS  bool
	PassedSSL  bool
	Warnings   []string
	SkipReason string // non-empty means the URL should not reach C6
}

// Checker runs DNS/TLS preflight over a batch of URLs concurrently,
// rate-limited per phase via golang.org/x/time/rate so a pathological
// input list can't open thousands of sockets at once.
type Checker struct {
	cfg        Config
	logger     *zap.Logger
	sslLimiter *rate.Limiter
}

func New(cfg Config, logger *zap.Logger) *Checker {
	return &Checker{cfg: cfg, logger: logger, sslLimiter: newBoundedRate(cfg.SSLConcurrency)}
}

// Run returns a per-URL outcome map. Order is not preserved; callers
// should look results up by URL.
func (c *Checker) Run(ctx context.Context, urls []string) map[string]Outcome {
	results := make(map[string]Outcome, len(urls))
	var mu sync.Mutex

	set := func(u string, o Outcome) {
		mu.Lock()
		results[u] = o
		mu.Unlock()
	}

	if !c.cfg.CheckDNS {
		for _, u := range urls {
			set(u, Outcome{PassedDNS: true, PassedSSL: true})
		}
		return results
	}

	dnsLimiter := newBoundedRate(c.cfg.DNSConcurrency)
	var wg sync.WaitGroup
	for _, u := range urls {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dnsLimiter.Wait(ctx); err != nil {
				set(u, Outcome{Warnings: []string{"preflight cancelled: " + err.Error()}})
				return
			}
			set(u, c.checkOne(ctx, u))
		}()
	}
	wg.Wait()

	return results
}

func (c *Checker) checkOne(ctx context.Context, rawURL string) Outcome {
	hostname := urlutil.ExtractHostname(urlutil.ExtractHost(rawURL))

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(dnsCtx, hostname)
	if err != nil || len(addrs) == 0 {
		outcome := Outcome{PassedDNS: false}
		if c.cfg.SkipDNSFailed {
			outcome.SkipReason = types.CodeDNSResolutionFailed
		} else {
			outcome.Warnings = append(outcome.Warnings, "dns resolution failed for "+hostname)
		}
		return outcome
	}

	outcome := Outcome{PassedDNS: true, PassedSSL: true}
	if !c.cfg.CheckSSL {
		return outcome
	}

	if err := c.sslLimiter.Wait(ctx); err != nil {
		outcome.Warnings = append(outcome.Warnings, "ssl check cancelled: "+err.Error())
		return outcome
	}

	if err := c.checkSSL(ctx, hostname); err != nil {
		outcome.PassedSSL = false
		if c.cfg.SkipSSLFailed {
			outcome.SkipReason = types.CodeSSLValidationFailed
		} else {
			outcome.Warnings = append(outcome.Warnings, "tls validation failed for "+hostname+": "+err.Error())
		}
	}

	return outcome
}

func (c *Checker) checkSSL(ctx context.Context, hostname string) error {
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: sslTimeout}, "tcp", hostname+":443", &tls.Config{ServerName: hostname})
	if err != nil {
		return err
	}
	defer conn.Close()

	handshakeCtx, cancel := context.WithTimeout(ctx, sslTimeout)
	defer cancel()
	return conn.HandshakeContext(handshakeCtx)
}

// newBoundedRate builds a rate.Limiter used as an admission gate: rate
// and burst both equal the configured concurrency, so after an initial
// burst of n, at most n checks start per second and the rest queue on
// Wait.
func newBoundedRate(n int) *rate.Limiter {
	if n <= 0 {
		n = 1
	}
	return rate.NewLimiter(rate.Limit(n), n)
}
