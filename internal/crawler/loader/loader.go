// Package loader implements C1: loading an ordered, deduplicated
// sequence of candidate URLs from a local file or a remote list.
package loader

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Options bounds how much of a source is consumed. Range slicing proper
// is rangeselect's job; EndRange here only caps how many candidate URLs
// are worth reading out of a possibly huge source before that runs.
type Options struct {
	NumUrls  int // 0 means unbounded
	EndRange int // 0 means unset
}

// Loader loads candidate URL lists from local files or remote sources.
type Loader struct {
	client *http.Client
	logger *zap.Logger
}

func New(logger *zap.Logger) *Loader {
	return &Loader{client: newRemoteClient(), logger: logger}
}

// Load reads source (a local path or an http(s) URL), parses it
// according to its extension, deduplicates, and applies opts' caps.
func (l *Loader) Load(source string, opts Options) ([]string, error) {
	data, err := l.read(source)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(stripQuery(source)))
	var urls []string
	switch ext {
	case ".csv":
		urls, err = parseCSV(data)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing csv %q: %v", ErrSourceUnavailable, source, err)
		}
	case ".json":
		urls = parseJSON(data)
	default:
		urls = parseTxt(data)
	}

	urls = dedupe(urls)

	if len(urls) == 0 {
		l.logger.Warn("url source produced no candidate urls", zap.String("source", source))
		return nil, nil
	}

	if opts.EndRange > 0 && opts.EndRange < len(urls) {
		urls = urls[:opts.EndRange]
	}
	if opts.NumUrls > 0 && opts.NumUrls < len(urls) {
		urls = urls[:opts.NumUrls]
	}

	return urls, nil
}

func (l *Loader) read(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetchRemote(l.client, source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrSourceUnavailable, source, err)
	}
	return data, nil
}

func stripQuery(source string) string {
	if idx := strings.Index(source, "?"); idx != -1 {
		return source[:idx]
	}
	return source
}
