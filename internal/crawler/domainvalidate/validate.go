// Package domainvalidate implements C4: cheap, synchronous, DNS-free
// rejection of candidate URLs before they reach the preflight checker.
package domainvalidate

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/adtechscan/crawler/internal/common/urlutil"
	"github.com/adtechscan/crawler/pkg/pattern"
)

var (
	ErrMalformed    = errors.New("malformed url")
	ErrIPLiteral    = errors.New("ip literal host")
	ErrReservedTLD  = errors.New("reserved or test tld")
	ErrTooFewLabels = errors.New("host has fewer than two labels")
	ErrBlocklisted  = errors.New("host matches blocklist")
)

// reservedTLDs are suffixes carved out by IETF/ICANN for documentation,
// test, and invalid-use purposes -- never real ad-serving domains.
var reservedTLDs = []string{
	"test", "example", "invalid", "localhost", "local",
}

// defaultBlocklist catches obviously non-production hostnames that
// slip past the reserved-TLD check (staging aliases, loopback names).
var defaultBlocklist = []string{
	"*.local", "*.internal", "*.test", "*.localhost",
}

// Config controls the validator's leniency.
type Config struct {
	AllowIPLiterals bool
	Blocklist       []string
}

// Validator is a compiled, reusable C4 checker.
type Validator struct {
	allowIPLiterals bool
	blocklist       []*pattern.Pattern
}

func New(cfg Config) (*Validator, error) {
	entries := cfg.Blocklist
	if len(entries) == 0 {
		entries = defaultBlocklist
	}

	compiled := make([]*pattern.Pattern, 0, len(entries))
	for _, raw := range entries {
		p, err := pattern.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compiling blocklist pattern %q: %w", raw, err)
		}
		compiled = append(compiled, p)
	}

	return &Validator{
		allowIPLiterals: cfg.AllowIPLiterals,
		blocklist:       compiled,
	}, nil
}

// Validate rejects a candidate URL per §4.4's rule set. A nil error means
// the URL is syntactically acceptable for preflight.
func (v *Validator) Validate(rawURL string) error {
	host := urlutil.ExtractHost(rawURL)
	if host == "" {
		return fmt.Errorf("%w: %q", ErrMalformed, rawURL)
	}
	hostname := urlutil.ExtractHostname(host)

	if ip := net.ParseIP(hostname); ip != nil {
		if !v.allowIPLiterals {
			return fmt.Errorf("%w: %q", ErrIPLiteral, rawURL)
		}
	} else {
		labels := strings.Split(hostname, ".")
		if len(labels) < 2 {
			return fmt.Errorf("%w: %q", ErrTooFewLabels, rawURL)
		}

		suffix, _ := publicsuffix.PublicSuffix(strings.ToLower(hostname))
		for _, reserved := range reservedTLDs {
			if suffix == reserved || strings.HasSuffix(hostname, "."+reserved) || hostname == reserved {
				return fmt.Errorf("%w: %q", ErrReservedTLD, rawURL)
			}
		}
	}

	for _, p := range v.blocklist {
		if p.Match(hostname) {
			return fmt.Errorf("%w: %q matched %q", ErrBlocklisted, rawURL, p.Original)
		}
	}

	return nil
}

// Filter partitions urls into those that pass validation and those
// rejected, preserving order within each slice.
func (v *Validator) Filter(urls []string) (valid []string, rejected []string) {
	for _, u := range urls {
		if err := v.Validate(u); err != nil {
			rejected = append(rejected, u)
			continue
		}
		valid = append(valid, u)
	}
	return valid, rejected
}
