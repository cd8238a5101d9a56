package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Canonicalize normalizes a URL per the tracker's key rules: lowercase
// scheme and host, strip the default port for the scheme, drop the
// fragment, and drop a trailing slash when the path is host-only ("/").
// It returns an error for inputs that don't parse as an absolute
// http(s) URL.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("url %q has unsupported scheme %q", raw, u.Scheme)
	}
	u.Scheme = scheme
	u.Host = canonicalHost(u.Host, scheme)
	u.Fragment = ""

	if u.Path == "/" {
		u.Path = ""
	}

	return u.String(), nil
}

func canonicalHost(host, scheme string) string {
	host = strings.ToLower(host)
	hostname := ExtractHostname(host)
	if hostname == host {
		return host
	}
	port := host[len(hostname)+1:]
	if port == defaultPorts[scheme] {
		return hostname
	}
	return hostname + ":" + port
}
