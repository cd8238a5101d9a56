package tracker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/adtechscan/crawler/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir, nil, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMarkResultAndIsProcessed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	processed, err := store.IsProcessed(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.MarkResult(ctx, "https://example.com", types.StatusSuccess, ""))

	processed, err = store.IsProcessed(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.True(t, processed, "canonicalization should match the trailing-slash and bare-host forms")
}

func TestMarkResultTransientIsNotProcessed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.MarkResult(ctx, "https://flaky.example.com", types.StatusErrorTransient, types.CodeTimeout))

	processed, err := store.IsProcessed(ctx, "https://flaky.example.com")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestMarkResultPermanentIsSticky(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.MarkResult(ctx, "https://dead.example.com", types.StatusErrorPermanent, types.CodeNameNotResolved))
	require.NoError(t, store.MarkResult(ctx, "https://dead.example.com", types.StatusSuccess, ""))

	processed, err := store.IsProcessed(ctx, "https://dead.example.com")
	require.NoError(t, err)
	assert.True(t, processed)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[types.StatusErrorPermanent])
	assert.Equal(t, 0, stats[types.StatusSuccess])
}

func TestFilterUnprocessedPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	require.NoError(t, store.MarkResult(ctx, urls[1], types.StatusSuccess, ""))

	remaining, err := store.FilterUnprocessed(ctx, urls)
	require.NoError(t, err)
	assert.Equal(t, []string{urls[0], urls[2]}, remaining)
}

func TestAnalyzeRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com", "https://d.example.com"}
	require.NoError(t, store.MarkResult(ctx, urls[0], types.StatusSuccess, ""))
	require.NoError(t, store.MarkResult(ctx, urls[1], types.StatusSuccess, ""))

	analysis, err := store.AnalyzeRange(ctx, 1, 4, urls)
	require.NoError(t, err)
	assert.Equal(t, 4, analysis.TotalInRange)
	assert.Equal(t, 2, analysis.ProcessedCount)
	assert.Equal(t, 2, analysis.UnprocessedCount)
	assert.Equal(t, 50.0, analysis.ProcessedPercentage)
	assert.False(t, analysis.IsFullyProcessed)
}

func TestSuggestNextRangesOrdersByUnprocessedFraction(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	urls := []string{
		"https://a1.example.com", "https://a2.example.com",
		"https://b1.example.com", "https://b2.example.com",
	}
	require.NoError(t, store.MarkResult(ctx, urls[0], types.StatusSuccess, ""))
	require.NoError(t, store.MarkResult(ctx, urls[1], types.StatusSuccess, ""))

	suggestions, err := store.SuggestNextRanges(ctx, urls, 2, 2)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	assert.Equal(t, 1.0, suggestions[0].UnprocessedFraction, "the fully unprocessed window should sort first")
	assert.Equal(t, 3, suggestions[0].Start)
	assert.Equal(t, 4, suggestions[0].End)
}

func TestVerifyUrls(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.MarkResult(ctx, "https://known.example.com", types.StatusSuccess, ""))

	found, missing, err := store.VerifyUrls(ctx, []string{"https://known.example.com", "https://unknown.example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://known.example.com"}, found)
	assert.Equal(t, []string{"https://unknown.example.com"}, missing)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.MarkResult(ctx, "https://example.com", types.StatusSuccess, ""))
	require.NoError(t, store.Reset(ctx))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestImportExistingResults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	resultsDir := t.TempDir()
	page := types.PageData{URL: "https://imported.example.com"}
	raw, err := json.Marshal([]types.PageData{page})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(resultsDir, "2026-08-01.json"), raw, 0o644))

	count, err := store.ImportExistingResults(ctx, resultsDir)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	processed, err := store.IsProcessed(ctx, "https://imported.example.com")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestMarkTaskResultDerivesStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	permanent := types.NewErrorResult("https://perm.example.com", types.DetailedError{
		Category: types.CategoryNetwork,
		Code:     types.CodeNameNotResolved,
	}, "boom")
	require.NoError(t, store.MarkTaskResult(ctx, permanent))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[types.StatusErrorPermanent])
}
