// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research runs one research pass end to end: query expansion,
// concurrent search across providers, cross-provider deduplication,
// grading, selective and fallback scraping, garbage filtering, and
// cleaning.
package research

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/research-agents/internal/clean"
	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/grade"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/quality"
	"github.com/pdiddy/research-agents/internal/scrape"
	"github.com/pdiddy/research-agents/internal/search"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Defaults applied by New when options are unset.
const (
	DefaultMaxConcurrency       = 10
	DefaultSerperMaxConcurrency = 5
	DefaultMinScraped           = 20
	DefaultMaxResults           = 10

	// fallbackFactor bounds fallback attempts to this multiple of the shortfall.
	fallbackFactor = 3
)

// Expander produces sub-queries for a query.
type Expander interface {
	Expand(ctx context.Context, query string) ([]string, error)
}

// Scraper fetches one URL.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string, maxChars int) scrape.Result
	ResetSession()
}

// Cleaner cleans scraped items in place.
type Cleaner interface {
	CleanBatch(ctx context.Context, items []types.ResearchItem, topic string) (clean.BatchSummary, error)
}

// Stages holds the components a Coordinator drives. Cleaner may be nil to
// skip cleaning; Filter may be nil to skip garbage filtering.
type Stages struct {
	Expander  Expander
	Providers []search.Provider
	Grader    *grade.Grader
	Scraper   Scraper
	Filter    *quality.Filter
	Cleaner   Cleaner
}

// Options tunes concurrency and scraping targets.
type Options struct {
	// Parallel selects a bounded semaphore (true) or unbounded fan-out.
	Parallel             bool
	MaxConcurrency       int
	SerperMaxConcurrency int

	// MaxResults is requested per provider call, keyed by provider name.
	MaxResults map[string]int

	// MinScraped is the scraped-source target that triggers fallback.
	MinScraped int

	// MaxScrapePerQuery caps scheduled scrapes per sub-query and provider.
	MaxScrapePerQuery int

	// MaxChars truncates scraped text; 0 uses the scraper's default.
	MaxChars int
}

// OptionsFrom maps configuration onto coordinator options.
func OptionsFrom(s types.SearchConfig, r types.ResearchConfig) Options {
	return Options{
		Parallel:             r.ParallelismEnabled,
		MaxConcurrency:       r.MaxConcurrency,
		SerperMaxConcurrency: r.SerperMaxConcurrency,
		MaxResults: map[string]int{
			types.ProviderTavily: s.MaxResults,
			types.ProviderSerper: s.SerperMaxResults,
		},
		MinScraped:        r.MinScrapedSourcesTarget,
		MaxScrapePerQuery: r.MaxScrapingPerQuery,
	}
}

// Coordinator runs research passes. One Coordinator serves one run at a
// time; the scraper's URL set is reset at the start of each Run.
type Coordinator struct {
	stages Stages
	opts   Options
	logger *zap.Logger
}

// New returns a Coordinator. A nil Grader uses grade.New with defaults.
func New(stages Stages, opts Options, logger *zap.Logger) *Coordinator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.SerperMaxConcurrency <= 0 {
		opts.SerperMaxConcurrency = DefaultSerperMaxConcurrency
	}
	if opts.MinScraped <= 0 {
		opts.MinScraped = DefaultMinScraped
	}
	if stages.Grader == nil {
		stages.Grader = grade.New(nil, grade.DefaultTavilyThreshold)
	}
	return &Coordinator{stages: stages, opts: opts, logger: logging.OrNop(logger)}
}

// Run researches query. When subQueries is non-empty they are searched
// verbatim; otherwise the query is expanded exactly once. Individual
// sub-query failures are partial: the pipeline holds whatever succeeded
// and the failures are listed in its summary. An error is returned only
// when expansion fails, every search fails, or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, query string, subQueries []string) (*types.ResearchPipeline, error) {
	start := time.Now()
	if len(c.stages.Providers) == 0 {
		return nil, fault.Errorf(fault.Config, "research", "no search providers enabled")
	}
	if c.stages.Scraper != nil {
		c.stages.Scraper.ResetSession()
	}

	if len(subQueries) == 0 {
		if c.stages.Expander == nil {
			return nil, fault.Errorf(fault.Config, "research", "no expander and no sub-queries")
		}
		subs, err := c.stages.Expander.Expand(ctx, query)
		if err != nil {
			return nil, err
		}
		subQueries = subs
	}

	var names []string
	for _, p := range c.stages.Providers {
		names = append(names, p.Name())
	}
	p := &types.ResearchPipeline{
		OriginalQuery: query,
		SubQueries:    subQueries,
		PipelineType:  types.PipelineTypeFor(names),
	}
	s := &p.Summary
	s.SubQueryCount = len(subQueries)
	log := c.logger.With(zap.String("query", query), zap.String("pipeline_type", string(p.PipelineType)))

	found, err := c.searchAll(ctx, subQueries, s)
	if err != nil {
		return p, err
	}
	s.ItemsFound = len(found)

	items, dups := search.Deduplicate(found)
	s.DuplicatesRemoved = dups
	items = c.gradeAll(items)
	for _, it := range items {
		if it.Metadata.ShouldScrape {
			s.Scheduled++
		}
	}
	log.Info("search complete",
		zap.Int("calls", s.SearchCalls),
		zap.Int("items", len(items)),
		zap.Int("duplicates_removed", dups),
		zap.Int("scheduled", s.Scheduled))

	if c.stages.Scraper != nil {
		var sched []int
		for i := range items {
			if items[i].Metadata.ShouldScrape {
				sched = append(sched, i)
			}
		}
		c.scrapeAll(ctx, items, sched)
		if err := ctx.Err(); err != nil {
			return p, fault.New(fault.Cancelled, "research", err)
		}
		c.fallback(ctx, items, s)
		if err := ctx.Err(); err != nil {
			return p, fault.New(fault.Cancelled, "research", err)
		}
	}

	if c.stages.Filter != nil {
		s.GarbageFiltered = c.stages.Filter.Apply(items)
	}

	if c.stages.Cleaner != nil {
		cs, err := c.stages.Cleaner.CleanBatch(ctx, items, query)
		s.Cleaned, s.CleaningFailures = cs.Cleaned, cs.Failed
		if err != nil {
			return p, err
		}
	}

	// Descending relevance; ties keep arrival order.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
	tally(items, s)
	if c.stages.Scraper != nil && s.Scraped < c.opts.MinScraped {
		s.TargetMissed = true
		s.CandidatePoolEmpty = len(unattempted(items)) == 0
	}

	p.Items = items
	p.TotalResults = len(items)
	p.ProcessingTime = time.Since(start).Seconds()
	log.Info("research complete",
		zap.Int("items", len(items)),
		zap.Int("scraped", s.Scraped),
		zap.Int("blocked", s.Blocked),
		zap.Int("fallback_succeeded", s.FallbackSucceeded),
		zap.Int("garbage_filtered", s.GarbageFiltered),
		zap.Int("cleaned", s.Cleaned),
		zap.Duration("elapsed", time.Since(start)))
	return p, nil
}

type searchTask struct {
	provider search.Provider
	subQuery string
}

// searchAll dispatches every provider × sub-query call and returns the
// items in task order.
func (c *Coordinator) searchAll(ctx context.Context, subQueries []string, s *types.RunSummary) ([]types.ResearchItem, error) {
	var tasks []searchTask
	for _, p := range c.stages.Providers {
		for _, q := range subQueries {
			tasks = append(tasks, searchTask{p, q})
		}
	}
	s.SearchCalls = len(tasks)

	results := make([][]types.ResearchItem, len(tasks))
	errs := make([]error, len(tasks))
	var serperSem *semaphore.Weighted
	g := new(errgroup.Group)
	if c.opts.Parallel {
		g.SetLimit(c.opts.MaxConcurrency)
		serperSem = semaphore.NewWeighted(int64(c.opts.SerperMaxConcurrency))
	}
	for i, t := range tasks {
		g.Go(func() error {
			if serperSem != nil && t.provider.Name() == types.ProviderSerper {
				if err := serperSem.Acquire(ctx, 1); err != nil {
					errs[i] = err
					return nil
				}
				defer serperSem.Release(1)
			}
			results[i], errs[i] = t.provider.Search(ctx, t.subQuery, c.opts.MaxResults[t.provider.Name()])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fault.New(fault.Cancelled, "research", err)
	}

	var items []types.ResearchItem
	var first error
	for i, t := range tasks {
		if errs[i] != nil {
			if first == nil {
				first = errs[i]
			}
			s.SearchFailures = append(s.SearchFailures, fmt.Sprintf("%s %q: %v", t.provider.Name(), t.subQuery, errs[i]))
			c.logger.Warn("search failed",
				zap.String("provider", t.provider.Name()),
				zap.String("sub_query", t.subQuery),
				zap.Error(errs[i]))
			continue
		}
		items = append(items, results[i]...)
	}
	if len(s.SearchFailures) == len(tasks) && first != nil {
		return nil, fmt.Errorf("all %d searches failed: %w", len(tasks), first)
	}
	return items, nil
}

// gradeAll grades each (provider, sub-query) group and returns the groups
// concatenated in first-seen order.
func (c *Coordinator) gradeAll(items []types.ResearchItem) []types.ResearchItem {
	type key struct{ provider, subQuery string }
	var order []key
	groups := map[key][]types.ResearchItem{}
	for _, it := range items {
		k := key{it.Provider, it.SubQuery}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it)
	}
	out := make([]types.ResearchItem, 0, len(items))
	for _, k := range order {
		out = append(out, c.stages.Grader.GradeBatch(groups[k], k.provider, c.opts.MaxScrapePerQuery)...)
	}
	return out
}

// scrapeAll scrapes items[idx] concurrently and returns how many succeeded.
func (c *Coordinator) scrapeAll(ctx context.Context, items []types.ResearchItem, idx []int) int {
	var mu sync.Mutex
	ok := 0
	g := new(errgroup.Group)
	if c.opts.Parallel {
		g.SetLimit(c.opts.MaxConcurrency)
	}
	for _, i := range idx {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r := c.stages.Scraper.Scrape(ctx, items[i].SourceURL, c.opts.MaxChars)
			if apply(&items[i], r) {
				mu.Lock()
				ok++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return ok
}

// apply records a scrape result on it and reports success. A failed fetch
// falls back to text the provider returned with the hit, when present.
func apply(it *types.ResearchItem, r scrape.Result) bool {
	it.Metadata.StatusCode = r.StatusCode
	switch {
	case r.Success:
		it.MarkScraped(r.Content, r.IsPDF)
		return it.ContentScraped
	case r.Duplicate:
		return false
	case r.WasBlocked:
		it.Metadata.BlockReason = r.BlockReason
		it.MarkScrapeFailed("blocked: " + r.BlockReason)
	default:
		it.MarkScrapeFailed(r.ErrorReason)
	}
	if pc := it.Metadata.ProviderContent; pc != "" {
		it.MarkScraped(pc, false)
		it.Metadata.ContentSource = "provider"
		return true
	}
	return false
}

// fallback promotes skipped items by descending score until the scraped
// count reaches the target or 3× the shortfall has been attempted.
func (c *Coordinator) fallback(ctx context.Context, items []types.ResearchItem, s *types.RunSummary) {
	scraped := countScraped(items)
	needed := c.opts.MinScraped - scraped
	if needed <= 0 {
		return
	}

	pool := unattempted(items)
	sort.SliceStable(pool, func(a, b int) bool {
		return items[pool[a]].RelevanceScore > items[pool[b]].RelevanceScore
	})
	budget := min(fallbackFactor*needed, len(pool))
	c.logger.Info("fallback scraping",
		zap.Int("scraped", scraped),
		zap.Int("target", c.opts.MinScraped),
		zap.Int("candidates", len(pool)),
		zap.Int("budget", budget))

	next := 0
	for next < budget && scraped < c.opts.MinScraped && ctx.Err() == nil {
		wave := pool[next:min(next+c.opts.MinScraped-scraped, budget)]
		next += len(wave)
		for _, i := range wave {
			md := &items[i].Metadata
			md.ShouldScrape, md.FallbackScrape, md.SkipReason = true, true, ""
		}
		got := c.scrapeAll(ctx, items, wave)
		s.FallbackAttempted += len(wave)
		s.FallbackSucceeded += got
		scraped += got
	}
}

// unattempted returns the indexes of items never scheduled for scraping.
func unattempted(items []types.ResearchItem) []int {
	var idx []int
	for i := range items {
		if !items[i].Metadata.ShouldScrape && items[i].SourceURL != "" {
			idx = append(idx, i)
		}
	}
	return idx
}

func countScraped(items []types.ResearchItem) int {
	n := 0
	for _, it := range items {
		if it.ContentScraped {
			n++
		}
	}
	return n
}

// tally fills the scrape counters of s from items.
func tally(items []types.ResearchItem, s *types.RunSummary) {
	s.Scraped, s.ScrapeFailures, s.Blocked, s.PDFCount, s.ProviderContent = 0, 0, 0, 0, 0
	for _, it := range items {
		switch {
		case it.ContentScraped:
			s.Scraped++
			if it.IsPDFContent {
				s.PDFCount++
			}
			if it.Metadata.ContentSource == "provider" {
				s.ProviderContent++
			}
		case it.Metadata.BlockReason != "":
			s.Blocked++
			if s.BlockReasons == nil {
				s.BlockReasons = map[string]int{}
			}
			s.BlockReasons[it.Metadata.BlockReason]++
		case it.ScrapingError != "":
			s.ScrapeFailures++
		}
	}
}
