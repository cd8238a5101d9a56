package loader

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// blobRewrites maps a hosted-git provider's human "blob" URL shape to its
// raw-content equivalent, so the same loader path works for pasted
// browser URLs and direct raw links.
var blobRewrites = []struct {
	host    string
	rewrite func(u *url.URL) string
}{
	{
		host: "github.com",
		rewrite: func(u *url.URL) string {
			p := strings.Replace(u.Path, "/blob/", "/", 1)
			return "https://raw.githubusercontent.com" + p
		},
	},
	{
		host: "gitlab.com",
		rewrite: func(u *url.URL) string {
			p := strings.Replace(u.Path, "/-/blob/", "/-/raw/", 1)
			return "https://gitlab.com" + p
		},
	},
}

// rewriteBlobURL rewrites a code-hosting "blob" view URL to its
// raw-content form. Non-matching URLs are returned unchanged.
func rewriteBlobURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	for _, r := range blobRewrites {
		if u.Host == r.host && strings.Contains(u.Path, "/blob/") {
			return r.rewrite(u)
		}
	}
	return raw
}

func newRemoteClient() *http.Client {
	transport := rehttp.NewTransport(
		nil, // wrap http.DefaultTransport
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(3),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatusInterval(500, 600),
			),
		),
		rehttp.ExpJitterDelay(200*time.Millisecond, 3*time.Second),
	)
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

var urlLeafPattern = regexp.MustCompile(`https?://[^\s"]+`)

func fetchRemote(client *http.Client, rawURL string) ([]byte, error) {
	target := rewriteBlobURL(rawURL)

	resp, err := client.Get(target)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %q: %v", ErrSourceUnavailable, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %q returned status %d", ErrSourceUnavailable, target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body of %q: %v", ErrSourceUnavailable, target, err)
	}
	return body, nil
}
