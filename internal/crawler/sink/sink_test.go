package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adtechscan/crawler/pkg/types"
)

func newTestSink(t *testing.T) (*Sink, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "store"), filepath.Join(dir, "errors"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, dir
}

func TestAppendSuccessCreatesDatedFile(t *testing.T) {
	s, _ := newTestSink(t)
	data := types.PageData{URL: "https://example.com", Date: "2026-08-01"}

	require.NoError(t, s.Write(types.NewSuccessResult(data)))

	path := s.datedStorePath(time.Now().UTC())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []types.PageData
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "https://example.com", records[0].URL)
}

func TestAppendSuccessConcatenatesExisting(t *testing.T) {
	s, _ := newTestSink(t)
	require.NoError(t, s.Write(types.NewSuccessResult(types.PageData{URL: "https://a.example.com"})))
	require.NoError(t, s.Write(types.NewSuccessResult(types.PageData{URL: "https://b.example.com"})))

	path := s.datedStorePath(time.Now().UTC())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []types.PageData
	require.NoError(t, json.Unmarshal(raw, &records))
	assert.Len(t, records, 2)
}

func TestAppendSuccessOverwritesUnparseableFile(t *testing.T) {
	s, _ := newTestSink(t)
	path := s.datedStorePath(time.Now().UTC())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	require.NoError(t, s.Write(types.NewSuccessResult(types.PageData{URL: "https://example.com"})))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []types.PageData
	require.NoError(t, json.Unmarshal(raw, &records))
	assert.Len(t, records, 1)
}

func TestWriteBatchEmptyIsNoOp(t *testing.T) {
	s, _ := newTestSink(t)
	require.NoError(t, s.WriteBatch(nil))

	path := s.datedStorePath(time.Now().UTC())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNoDataGoesToNoPrebidFile(t *testing.T) {
	s, dir := newTestSink(t)
	require.NoError(t, s.Write(types.NewNoDataResult("https://no-ads.example.com")))

	raw, err := os.ReadFile(filepath.Join(dir, "errors", "no_prebid.txt"))
	require.NoError(t, err)
	assert.Equal(t, "https://no-ads.example.com\n", string(raw))
}

func TestNewSeedsErrorFilesWithHeaderOnce(t *testing.T) {
	_, dir := newTestSink(t)

	raw, err := os.ReadFile(filepath.Join(dir, "errors", "navigation_errors.txt"))
	require.NoError(t, err)
	assert.Equal(t, errorFileHeader+"\n", string(raw))
}

func TestErrorDispatchesByCategory(t *testing.T) {
	s, dir := newTestSink(t)
	result := types.NewErrorResult("https://dns-fail.example.com", types.DetailedError{
		Category:    types.CategoryNetwork,
		SubCategory: "dns",
		Phase:       types.PhasePreflight,
		Code:        types.CodeDNSResolutionFailed,
		URL:         "https://dns-fail.example.com",
	}, "dns resolution failed")
	require.NoError(t, s.Write(result))

	raw, err := os.ReadFile(filepath.Join(dir, "errors", "navigation_errors.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "DNS_RESOLUTION_FAILED")
	assert.Contains(t, string(raw), "https://dns-fail.example.com")
}

func TestErrorFallsBackToErrorProcessingFile(t *testing.T) {
	s, dir := newTestSink(t)
	result := types.NewErrorResult("https://weird.example.com", types.DetailedError{
		Category: types.CategoryOther,
		Code:     types.CodeUnknownProcessing,
	}, "something odd")
	require.NoError(t, s.Write(result))

	_, err := os.ReadFile(filepath.Join(dir, "errors", "error_processing.txt"))
	require.NoError(t, err)
}

func TestRewriteInputFileDropsProcessedLines(t *testing.T) {
	s, dir := newTestSink(t)
	inputPath := filepath.Join(dir, "input.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte("https://a.example.com\nhttps://b.example.com\nhttps://c.example.com\n"), 0o644))

	processed := map[string]struct{}{"https://b.example.com": {}}
	require.NoError(t, s.RewriteInputFile(inputPath, processed))

	raw, err := os.ReadFile(inputPath)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com\nhttps://c.example.com\n", string(raw))
}
