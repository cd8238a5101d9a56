package loader

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

var bareHostnamePattern = regexp.MustCompile(`^([a-z0-9-_]+\.)+[a-z]{2,}`)

// parseTxt extracts one URL per line; scheme-less hostnames are promoted
// to https://.
func parseTxt(data []byte) []string {
	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
			continue
		}
		if bareHostnamePattern.MatchString(strings.ToLower(line)) {
			urls = append(urls, "https://"+line)
		}
	}
	return urls
}

// parseCSV takes the first column of each row, keeping only entries that
// already carry an http(s) scheme.
func parseCSV(data []byte) ([]string, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1

	var urls []string
	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		first := strings.TrimSpace(record[0])
		if strings.HasPrefix(first, "http://") || strings.HasPrefix(first, "https://") {
			urls = append(urls, first)
		}
	}
	return urls, nil
}

// parseJSON recursively collects every string leaf matching the URL
// pattern. If the document doesn't parse as JSON, it falls back to a
// regex scan of the raw text.
func parseJSON(data []byte) []string {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return urlLeafPattern.FindAllString(string(data), -1)
	}

	var urls []string
	collectStringLeaves(doc, &urls)
	return urls
}

func collectStringLeaves(v interface{}, out *[]string) {
	switch val := v.(type) {
	case string:
		if urlLeafPattern.MatchString(val) {
			*out = append(*out, urlLeafPattern.FindAllString(val, -1)...)
		}
	case []interface{}:
		for _, item := range val {
			collectStringLeaves(item, out)
		}
	case map[string]interface{}:
		for _, item := range val {
			collectStringLeaves(item, out)
		}
	}
}

// dedupe removes duplicate URLs while preserving first-occurrence order.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
