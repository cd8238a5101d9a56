// Package sink implements C9: writing successful PageData to the dated
// store, routing no-data/error outcomes to categorized error files, and
// rewriting a processed local input file to drop completed lines.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adtechscan/crawler/pkg/types"
)

// categoryFiles maps a DetailedError's category to its error file name,
// per spec.md §4.9/§6. A category with no entry falls back to
// error_processing.txt.
var categoryFiles = map[types.ErrorCategory]string{
	types.CategoryNetwork:    "navigation_errors.txt",
	types.CategorySSL:        "ssl_errors.txt",
	types.CategoryTimeout:    "timeout_errors.txt",
	types.CategoryAccess:     "access_errors.txt",
	types.CategoryContent:    "content_errors.txt",
	types.CategoryBrowser:    "browser_errors.txt",
	types.CategoryExtraction: "extraction_errors.txt",
}

const fallbackErrorFile = "error_processing.txt"
const noDataFile = "no_prebid.txt"
const errorFileHeader = "# [timestamp] | Category: category/subCategory | Phase: phase | Code: code | URL: url | Message: message"

// Sink owns the store root and the errors directory beneath the
// current working directory.
type Sink struct {
	storeRoot  string
	errorsDir  string
	logger     *zap.Logger
	storeMu    sync.Mutex
	errorMu    sync.Mutex
}

func New(storeRoot, errorsDir string, logger *zap.Logger) (*Sink, error) {
	if err := os.MkdirAll(storeRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %q: %w", storeRoot, err)
	}
	if err := os.MkdirAll(errorsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating errors dir %q: %w", errorsDir, err)
	}

	s := &Sink{storeRoot: storeRoot, errorsDir: errorsDir, logger: logger}
	if err := s.writeHeadersOnce(); err != nil {
		return nil, err
	}
	return s, nil
}

// writeHeadersOnce seeds every categorized error file with a header line
// the first time the errors directory is initialized, per §4.9. A file
// that already exists (a prior run) is left untouched.
func (s *Sink) writeHeadersOnce() error {
	fileNames := make([]string, 0, len(categoryFiles)+1)
	for _, name := range categoryFiles {
		fileNames = append(fileNames, name)
	}
	fileNames = append(fileNames, fallbackErrorFile)

	for _, name := range fileNames {
		path := filepath.Join(s.errorsDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking error file %q: %w", path, err)
		}
		if err := os.WriteFile(path, []byte(errorFileHeader+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing error file header %q: %w", path, err)
		}
	}
	return nil
}

// Write routes a single TaskResult to the appropriate destination.
func (s *Sink) Write(result types.TaskResult) error {
	switch result.Kind {
	case types.ResultSuccess:
		return s.appendSuccess(result.Data)
	case types.ResultNoData:
		return s.appendNoData(result.URL)
	case types.ResultError:
		return s.appendError(result)
	default:
		return fmt.Errorf("unknown task result kind %d", result.Kind)
	}
}

// WriteBatch routes every result in a batch; an empty batch is a no-op
// and must not touch the dated file, per §8 invariant 6.
func (s *Sink) WriteBatch(results []types.TaskResult) error {
	if len(results) == 0 {
		return nil
	}

	var successes []types.PageData
	for _, r := range results {
		if r.Kind == types.ResultSuccess {
			successes = append(successes, r.Data)
		}
	}
	if len(successes) > 0 {
		if err := s.appendSuccesses(successes); err != nil {
			return err
		}
	}

	for _, r := range results {
		switch r.Kind {
		case types.ResultSuccess:
			// already appended above
		case types.ResultNoData:
			if err := s.appendNoData(r.URL); err != nil {
				return err
			}
		case types.ResultError:
			if err := s.appendError(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sink) datedStorePath(t time.Time) string {
	monthDir := t.Format("Jan-2006")
	fileName := t.Format("2006-01-02") + ".json"
	return filepath.Join(s.storeRoot, monthDir, fileName)
}

func (s *Sink) appendSuccess(data types.PageData) error {
	return s.appendSuccesses([]types.PageData{data})
}

// appendSuccesses implements §4.9's read-concat-rewrite append protocol.
func (s *Sink) appendSuccesses(batch []types.PageData) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	path := s.datedStorePath(time.Now().UTC())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating store month dir: %w", err)
	}

	var existing []types.PageData
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &existing); err != nil {
			s.logger.Warn("existing store file is not a valid json array; overwriting", zap.String("path", path), zap.Error(err))
			existing = nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading store file %q: %w", path, err)
	}

	merged := append(existing, batch...)
	raw, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling store file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *Sink) appendNoData(url string) error {
	return s.appendLine(noDataFile, url)
}

func (s *Sink) appendError(result types.TaskResult) error {
	d := result.Detailed
	if d == nil {
		return s.appendLine(fallbackErrorFile, fmt.Sprintf("[%s] | URL: %s | Message: %s",
			time.Now().UTC().Format(time.RFC3339), result.URL, result.Message))
	}

	fileName, ok := categoryFiles[d.Category]
	if !ok {
		fileName = fallbackErrorFile
	}

	line := fmt.Sprintf("[%s] | Category: %s/%s | Phase: %s | Code: %s | URL: %s | Message: %s",
		d.Timestamp.UTC().Format(time.RFC3339), d.Category, d.SubCategory, d.Phase, d.Code, d.URL, result.Message)
	return s.appendLine(fileName, line)
}

func (s *Sink) appendLine(fileName, line string) error {
	s.errorMu.Lock()
	defer s.errorMu.Unlock()

	path := filepath.Join(s.errorsDir, fileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening error file %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing error file %q: %w", path, err)
	}
	return nil
}

// RewriteInputFile drops every line in path whose URL is in processed,
// preserving lines outside the current processing scope unchanged.
func (s *Sink) RewriteInputFile(path string, processed map[string]struct{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading input file %q: %w", path, err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	var kept []string
	for scanner.Scan() {
		line := scanner.Text()
		if _, done := processed[line]; done {
			continue
		}
		kept = append(kept, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning input file %q: %w", path, err)
	}

	out := ""
	for _, line := range kept {
		out += line + "\n"
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o644); err != nil {
		return fmt.Errorf("writing rewritten input file: %w", err)
	}
	return os.Rename(tmp, path)
}
