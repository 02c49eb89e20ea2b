// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scrape

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/urlnorm"
)

// Scope distinguishes domain-level from URL-level failure entries.
type Scope string

const (
	ScopeDomain Scope = "domain"
	ScopeURL    Scope = "url"
)

// FailureStats counts cached failure entries.
type FailureStats struct {
	Domains int `json:"domains"`
	URLs    int `json:"urls"`
}

// FailureStore persists failure entries across runs.
type FailureStore interface {
	LoadFailures(ctx context.Context) (map[Scope]map[string]string, error)
	RecordFailure(ctx context.Context, scope Scope, key, reason string) error
	ResetFailures(ctx context.Context) error
	Close() error
}

// FailureCache remembers hosts and URLs that failed so they are not
// retried. Domain-level entries are written for persistent failure classes;
// a URL-level entry is written for every failure. Only persistent entries
// reach the FailureStore. Safe for concurrent use.
type FailureCache struct {
	mem    *cache.Cache
	store  FailureStore
	logger *zap.Logger
}

// NewFailureCache builds a cache, preloading entries from store when non-nil.
func NewFailureCache(ctx context.Context, store FailureStore, logger *zap.Logger) (*FailureCache, error) {
	fc := &FailureCache{
		mem:    cache.New(cache.NoExpiration, 0),
		store:  store,
		logger: logging.OrNop(logger),
	}
	if store == nil {
		return fc, nil
	}
	entries, err := store.LoadFailures(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading failure cache: %w", err)
	}
	for scope, m := range entries {
		for key, reason := range m {
			fc.mem.Set(cacheKey(scope, key), reason, cache.NoExpiration)
		}
	}
	return fc, nil
}

func cacheKey(scope Scope, key string) string {
	return string(scope) + ":" + key
}

// Check reports whether rawURL or its domain has a cached failure.
func (fc *FailureCache) Check(rawURL string) (reason string, scope Scope, hit bool) {
	if d := urlnorm.Domain(rawURL); d != "" {
		if v, ok := fc.mem.Get(cacheKey(ScopeDomain, d)); ok {
			return v.(string), ScopeDomain, true
		}
	}
	if v, ok := fc.mem.Get(cacheKey(ScopeURL, urlnorm.Normalize(rawURL))); ok {
		return v.(string), ScopeURL, true
	}
	return "", "", false
}

// HasDomain reports whether rawURL's domain has a cached failure.
func (fc *FailureCache) HasDomain(rawURL string) bool {
	_, ok := fc.mem.Get(cacheKey(ScopeDomain, urlnorm.Domain(rawURL)))
	return ok
}

// Record caches a failure for rawURL. persistent also caches the domain
// and writes both entries through to the store.
func (fc *FailureCache) Record(ctx context.Context, rawURL, reason string, persistent bool) {
	urlKey := urlnorm.Normalize(rawURL)
	fc.mem.Set(cacheKey(ScopeURL, urlKey), reason, cache.NoExpiration)
	if !persistent {
		return
	}
	domain := urlnorm.Domain(rawURL)
	if domain != "" {
		fc.mem.Set(cacheKey(ScopeDomain, domain), reason, cache.NoExpiration)
	}
	if fc.store == nil {
		return
	}
	if err := fc.store.RecordFailure(ctx, ScopeURL, urlKey, reason); err != nil {
		fc.logger.Warn("persisting url failure", zap.String("url", urlKey), zap.Error(err))
	}
	if domain != "" {
		if err := fc.store.RecordFailure(ctx, ScopeDomain, domain, reason); err != nil {
			fc.logger.Warn("persisting domain failure", zap.String("domain", domain), zap.Error(err))
		}
	}
}

// Stats counts in-memory entries.
func (fc *FailureCache) Stats() FailureStats {
	var s FailureStats
	for k := range fc.mem.Items() {
		switch {
		case strings.HasPrefix(k, string(ScopeDomain)+":"):
			s.Domains++
		case strings.HasPrefix(k, string(ScopeURL)+":"):
			s.URLs++
		}
	}
	return s
}

// Reset clears the in-memory entries and the store.
func (fc *FailureCache) Reset(ctx context.Context) error {
	fc.mem.Flush()
	if fc.store != nil {
		return fc.store.ResetFailures(ctx)
	}
	return nil
}

// SQLiteStore persists failure entries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS failures (
			scope TEXT NOT NULL,
			key TEXT NOT NULL,
			reason TEXT NOT NULL,
			hits INTEGER NOT NULL DEFAULT 1,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (scope, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_scope ON failures(scope)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadFailures returns every persisted entry grouped by scope.
func (s *SQLiteStore) LoadFailures(ctx context.Context) (map[Scope]map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scope, key, reason FROM failures`)
	if err != nil {
		return nil, fmt.Errorf("querying failures: %w", err)
	}
	defer rows.Close()

	out := map[Scope]map[string]string{ScopeDomain: {}, ScopeURL: {}}
	for rows.Next() {
		var scope, key, reason string
		if err := rows.Scan(&scope, &key, &reason); err != nil {
			return nil, fmt.Errorf("scanning failure row: %w", err)
		}
		if out[Scope(scope)] == nil {
			out[Scope(scope)] = map[string]string{}
		}
		out[Scope(scope)][key] = reason
	}
	return out, rows.Err()
}

// RecordFailure upserts one entry, counting repeat hits.
func (s *SQLiteStore) RecordFailure(ctx context.Context, scope Scope, key, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (scope, key, reason, hits, recorded_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(scope, key) DO UPDATE SET reason = excluded.reason, hits = hits + 1, recorded_at = excluded.recorded_at`,
		string(scope), key, reason, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording failure %s %s: %w", scope, key, err)
	}
	return nil
}

// ResetFailures deletes every entry.
func (s *SQLiteStore) ResetFailures(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM failures`); err != nil {
		return fmt.Errorf("resetting failures: %w", err)
	}
	return nil
}

// Stats counts persisted entries by scope.
func (s *SQLiteStore) Stats(ctx context.Context) (FailureStats, error) {
	var st FailureStats
	rows, err := s.db.QueryContext(ctx, `SELECT scope, count(*) FROM failures GROUP BY scope`)
	if err != nil {
		return st, fmt.Errorf("counting failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var scope string
		var n int
		if err := rows.Scan(&scope, &n); err != nil {
			return st, fmt.Errorf("scanning count: %w", err)
		}
		switch Scope(scope) {
		case ScopeDomain:
			st.Domains = n
		case ScopeURL:
			st.URLs = n
		}
	}
	return st, rows.Err()
}
