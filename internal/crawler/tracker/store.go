// Package tracker implements the C3 URL Tracker: a SQLite-backed
// key-value store of canonical URL to outcome, with an optional Redis
// read-through cache in front of the isProcessed lookup.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/adtechscan/crawler/internal/common/urlutil"
	"github.com/adtechscan/crawler/internal/crawler/tracker/migrations"
	"github.com/adtechscan/crawler/pkg/types"
)

// Cache is satisfied by internal/common/redis.Client; kept as an
// interface here so the tracker has no hard Redis dependency.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Store is the single writer for the tracker database; all mutating
// operations serialize on mu in addition to SQLite's own locking, since
// the store may be driven from multiple goroutines in the worker pool.
type Store struct {
	db       *sql.DB
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
}

// Open opens (creating if necessary) tracker.db under storePath and
// applies pending goose migrations. A nil cache disables the read-through
// cache entirely -- a fully supported, SQLite-only mode.
func Open(storePath string, cache Cache, cacheTTL time.Duration, logger *zap.Logger) (*Store, error) {
	dbPath := filepath.Join(storePath, "tracker.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening tracker database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers; avoid contention errors

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying tracker migrations: %w", err)
	}

	return &Store{db: db, cache: cache, cacheTTL: cacheTTL, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// IsProcessed reports whether url's tracker status counts as processed,
// per §3: success, no_data, or error_permanent.
func (s *Store) IsProcessed(ctx context.Context, url string) (bool, error) {
	canonical, err := urlutil.Canonicalize(url)
	if err != nil {
		return false, fmt.Errorf("canonicalizing %q: %w", url, err)
	}

	if s.cache != nil {
		if cached, found, err := s.cache.Get(ctx, cacheKey(canonical)); err == nil && found {
			return types.URLStatus(cached).IsProcessed(), nil
		}
	}

	record, found, err := s.get(ctx, canonical)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey(canonical), string(record.Status), s.cacheTTL)
	}

	return record.Status.IsProcessed(), nil
}

// FilterUnprocessed returns the subset of urls that are not yet
// processed, preserving input order, using one batched existence query.
func (s *Store) FilterUnprocessed(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	canonicalOf := make(map[string]string, len(urls))
	placeholders := make([]interface{}, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		c, err := urlutil.Canonicalize(u)
		if err != nil {
			continue
		}
		canonicalOf[u] = c
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			placeholders = append(placeholders, c)
		}
	}

	processed := make(map[string]struct{})
	if len(placeholders) > 0 {
		query := "SELECT url FROM url_records WHERE status IN ('success','no_data','error_permanent') AND url IN (" + placeholderList(len(placeholders)) + ")"
		rows, err := s.db.QueryContext(ctx, query, placeholders...)
		if err != nil {
			return nil, fmt.Errorf("querying processed urls: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return nil, fmt.Errorf("scanning processed url: %w", err)
			}
			processed[u] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(urls))
	for _, u := range urls {
		c, ok := canonicalOf[u]
		if !ok {
			out = append(out, u) // unparseable URL, let domain validation reject it downstream
			continue
		}
		if _, done := processed[c]; !done {
			out = append(out, u)
		}
	}
	return out, nil
}

// MarkResult records url's terminal outcome for this attempt.
func (s *Store) MarkResult(ctx context.Context, url string, status types.URLStatus, errorCode string) error {
	canonical, err := urlutil.Canonicalize(url)
	if err != nil {
		return fmt.Errorf("canonicalizing %q: %w", url, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tracker transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var existing types.UrlRecord
	var existingCode sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT status, error_code, attempts, first_seen FROM url_records WHERE url = ?`, canonical).
		Scan(&existing.Status, &existingCode, &existing.Attempts, &existing.FirstSeen)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO url_records (url, status, error_code, attempts, first_seen, last_attempt) VALUES (?, ?, ?, 1, ?, ?)`,
			canonical, status, nullableCode(errorCode), now, now)
		if err != nil {
			return fmt.Errorf("inserting tracker record: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading existing tracker record: %w", err)
	default:
		if existing.Status == types.StatusErrorPermanent && status != types.StatusErrorPermanent {
			// Sticky until explicit reset -- a later non-permanent outcome doesn't overwrite it.
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE url_records SET status = ?, error_code = ?, attempts = attempts + 1, last_attempt = ? WHERE url = ?`,
			status, nullableCode(errorCode), now, canonical)
		if err != nil {
			return fmt.Errorf("updating tracker record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tracker transaction: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey(canonical), string(status), s.cacheTTL)
	}
	return nil
}

// MarkTaskResult derives the tracker status from a completed TaskResult and
// records it; transient errors are distinguished from permanent ones via
// DetailedError.Permanent() so only permanent failures count as processed.
func (s *Store) MarkTaskResult(ctx context.Context, result types.TaskResult) error {
	switch result.Kind {
	case types.ResultSuccess:
		return s.MarkResult(ctx, result.URL, types.StatusSuccess, "")
	case types.ResultNoData:
		return s.MarkResult(ctx, result.URL, types.StatusNoData, "")
	case types.ResultError:
		status := types.StatusErrorTransient
		if result.Detailed != nil && result.Detailed.Permanent() {
			status = types.StatusErrorPermanent
		}
		return s.MarkResult(ctx, result.URL, status, result.Code)
	default:
		return fmt.Errorf("unknown task result kind %d", result.Kind)
	}
}

// GetStats returns a count of records per status.
func (s *Store) GetStats(ctx context.Context) (map[types.URLStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM url_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying tracker stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[types.URLStatus]int)
	for rows.Next() {
		var status types.URLStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning tracker stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// VerifyUrls reports which of urls exist in the tracker, for C10's
// post-batch skip verification.
func (s *Store) VerifyUrls(ctx context.Context, urls []string) (found, missing []string, err error) {
	for _, u := range urls {
		c, cerr := urlutil.Canonicalize(u)
		if cerr != nil {
			missing = append(missing, u)
			continue
		}
		_, ok, gerr := s.get(ctx, c)
		if gerr != nil {
			return nil, nil, gerr
		}
		if ok {
			found = append(found, u)
		} else {
			missing = append(missing, u)
		}
	}
	return found, missing, nil
}

// RangeAnalysis summarizes how much of a URL range has already been processed.
type RangeAnalysis struct {
	TotalInRange        int
	ProcessedCount      int
	UnprocessedCount    int
	ProcessedPercentage float64
	IsFullyProcessed    bool
}

// AnalyzeRange reports processed/unprocessed counts for fullList[start:end]
// (1-based inclusive, matching C2's range convention).
func (s *Store) AnalyzeRange(ctx context.Context, start, end int, fullList []string) (RangeAnalysis, error) {
	if start < 1 {
		start = 1
	}
	if end > len(fullList) {
		end = len(fullList)
	}
	if start > end {
		return RangeAnalysis{}, nil
	}

	window := fullList[start-1 : end]
	unprocessed, err := s.FilterUnprocessed(ctx, window)
	if err != nil {
		return RangeAnalysis{}, err
	}

	total := len(window)
	processed := total - len(unprocessed)
	analysis := RangeAnalysis{
		TotalInRange:     total,
		ProcessedCount:   processed,
		UnprocessedCount: len(unprocessed),
		IsFullyProcessed: len(unprocessed) == 0 && total > 0,
	}
	if total > 0 {
		analysis.ProcessedPercentage = float64(processed) / float64(total) * 100
	}
	return analysis, nil
}

// RangeSuggestion is one candidate window for a follow-up batch run.
type RangeSuggestion struct {
	Start              int
	End                int
	UnprocessedFraction float64
}

// SuggestNextRanges slides a window of windowSize across fullList and
// returns the k windows with the highest fraction of unprocessed URLs,
// highest fraction first.
func (s *Store) SuggestNextRanges(ctx context.Context, fullList []string, windowSize, k int) ([]RangeSuggestion, error) {
	if windowSize <= 0 || len(fullList) == 0 {
		return nil, nil
	}

	unprocessedSet := make(map[string]struct{})
	all, err := s.FilterUnprocessed(ctx, fullList)
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		unprocessedSet[u] = struct{}{}
	}

	var candidates []RangeSuggestion
	for start := 0; start < len(fullList); start += windowSize {
		end := start + windowSize
		if end > len(fullList) {
			end = len(fullList)
		}
		unprocessedInWindow := 0
		for _, u := range fullList[start:end] {
			if _, ok := unprocessedSet[u]; ok {
				unprocessedInWindow++
			}
		}
		candidates = append(candidates, RangeSuggestion{
			Start:               start + 1,
			End:                 end,
			UnprocessedFraction: float64(unprocessedInWindow) / float64(end-start),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UnprocessedFraction > candidates[j].UnprocessedFraction
	})
	if k > 0 && k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// ImportExistingResults seeds the tracker from PageData JSON files already
// present under storeRoot, marking each url's status as success. Malformed
// or unreadable files are skipped rather than aborting the scan.
func (s *Store) ImportExistingResults(ctx context.Context, storeRoot string) (int, error) {
	imported := 0
	err := filepath.WalkDir(storeRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}

		var records []types.PageData
		if err := json.Unmarshal(raw, &records); err != nil {
			var single types.PageData
			if err := json.Unmarshal(raw, &single); err != nil {
				return nil
			}
			records = []types.PageData{single}
		}

		for _, rec := range records {
			if rec.URL == "" {
				continue
			}
			if err := s.MarkResult(ctx, rec.URL, types.StatusSuccess, ""); err != nil {
				continue
			}
			imported++
		}
		return nil
	})
	return imported, err
}

// Reset clears every tracker record.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM url_records`)
	return err
}

func (s *Store) get(ctx context.Context, canonicalURL string) (types.UrlRecord, bool, error) {
	var r types.UrlRecord
	r.URL = canonicalURL
	var errorCode sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT status, error_code, attempts, first_seen, last_attempt FROM url_records WHERE url = ?`, canonicalURL).
		Scan(&r.Status, &errorCode, &r.Attempts, &r.FirstSeen, &r.LastAttempt)
	if err == sql.ErrNoRows {
		return types.UrlRecord{}, false, nil
	}
	if err != nil {
		return types.UrlRecord{}, false, fmt.Errorf("reading tracker record: %w", err)
	}
	r.ErrorCode = errorCode.String
	return r, true, nil
}

func nullableCode(code string) interface{} {
	if code == "" {
		return nil
	}
	return code
}

func cacheKey(canonicalURL string) string {
	return "tracker:url:" + canonicalURL
}

func placeholderList(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
