// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package clean removes boilerplate from scraped text with a small LLM.
// Items are cleaned in batches (one call per batch, results split on
// ItemSeparator) or, in maximum-parallelism mode, one call per item.
// Very large items are split at sentence boundaries and their chunks
// cleaned concurrently.
package clean

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/pkg/types"
)

// ItemSeparator separates items in a batch response.
const ItemSeparator = "---ITEM-SEPARATOR---"

// ChunkChars is the size above which an item is split into chunks.
const ChunkChars = 250000

// Defaults.
const (
	DefaultBatchSize   = 5
	DefaultConcurrency = 5
)

const (
	minOutputTokens = 1024
	maxOutputTokens = 32000
	charsPerToken   = 3
)

// Options configures a Cleaner.
type Options struct {
	// MaxParallel cleans every item in its own concurrent call.
	MaxParallel bool
	// BatchSize is the number of items per call in batch mode.
	BatchSize int
	// SkipPDFs leaves PDF text uncleaned.
	SkipPDFs bool
	// Concurrency bounds concurrent LLM calls.
	Concurrency int
	// Tier is the model tier used for cleaning (default nano).
	Tier llm.Tier
}

// OptionsFrom maps the research configuration onto cleaner options.
func OptionsFrom(cfg types.ResearchConfig) Options {
	return Options{
		MaxParallel: cfg.MaxParallelCleaning,
		BatchSize:   cfg.CleaningBatchSize,
		SkipPDFs:    cfg.CleaningSkipPDFs,
		Concurrency: cfg.MaxConcurrency,
	}
}

// BatchSummary holds counts from one CleanBatch call.
type BatchSummary struct {
	Cleaned int
	Skipped int
	Failed  int
}

// Total returns the number of items considered.
func (s BatchSummary) Total() int {
	return s.Cleaned + s.Skipped + s.Failed
}

// HasFailures reports whether any item failed to clean.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Cleaner cleans scraped content.
type Cleaner struct {
	client llm.Client
	opts   Options
	logger *zap.Logger
}

// New returns a Cleaner calling client.
func New(client llm.Client, opts Options, logger *zap.Logger) *Cleaner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Tier == "" {
		opts.Tier = llm.TierNano
	}
	return &Cleaner{client: client, opts: opts, logger: logging.OrNop(logger)}
}

// CleanOne cleans a single text. Texts over ChunkChars are chunked; the
// result succeeds when at least half the chunks clean, with failed chunks
// kept raw.
func (c *Cleaner) CleanOne(ctx context.Context, content, topic, url string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fault.Errorf(fault.Validation, "clean", "empty content")
	}
	if len(content) > ChunkChars {
		return c.cleanChunked(ctx, content, topic, url)
	}
	return c.call(ctx, promptDoc{URL: url, Topic: topic, Content: content, PDF: isPDF(url)})
}

func (c *Cleaner) call(ctx context.Context, d promptDoc) (string, error) {
	prompt, err := renderSingle(d)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	out, err := c.client.Complete(ctx, llm.Request{
		Tier:        c.opts.Tier,
		System:      systemPrompt,
		User:        prompt,
		Temperature: 0.1,
		MaxTokens:   outputBudget(len(d.Content)),
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fault.Errorf(fault.ModelSpecific, "clean", "empty cleaned text")
	}
	return out, nil
}

func (c *Cleaner) cleanChunked(ctx context.Context, content, topic, url string) (string, error) {
	chunks := SplitChunks(content, ChunkChars)
	out := make([]string, len(chunks))
	ok := make([]bool, len(chunks))

	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			cleaned, err := c.call(ctx, promptDoc{URL: url, Topic: topic, Content: ch, PDF: isPDF(url)})
			if err != nil {
				c.logger.Debug("chunk cleaning failed", zap.String("url", url), zap.Int("chunk", i), zap.Error(err))
				out[i] = ch
				return nil
			}
			out[i], ok[i] = cleaned, true
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return "", fault.New(fault.Cancelled, "clean", err)
	}

	succeeded := 0
	for _, b := range ok {
		if b {
			succeeded++
		}
	}
	if succeeded*2 < len(chunks) {
		return "", fault.Errorf(fault.ModelSpecific, "clean", "only %d of %d chunks cleaned", succeeded, len(chunks))
	}
	return strings.Join(out, "\n\n"), nil
}

// CleanBatch cleans every scraped, unfiltered item in place. Items that
// fail keep their raw content uncleaned. The returned error is non-nil only
// on cancellation.
func (c *Cleaner) CleanBatch(ctx context.Context, items []types.ResearchItem, topic string) (BatchSummary, error) {
	start := time.Now()
	defer metrics.Since(metrics.CleaningDuration, start)

	var summary BatchSummary
	var todo, large []int
	for i := range items {
		it := &items[i]
		switch {
		case !it.ContentScraped || it.GarbageFiltered:
			continue
		case it.IsPDFContent && c.opts.SkipPDFs:
			summary.Skipped++
		case c.opts.MaxParallel || len(it.RawContent) > ChunkChars:
			large = append(large, i)
		default:
			todo = append(todo, i)
		}
	}

	results := make([]bool, len(items))
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)

	for _, i := range large {
		g.Go(func() error {
			results[i] = c.cleanItem(ctx, &items[i], topic)
			return nil
		})
	}
	for lo := 0; lo < len(todo); lo += c.opts.BatchSize {
		batch := todo[lo:min(lo+c.opts.BatchSize, len(todo))]
		g.Go(func() error {
			for i, ok := range c.cleanGroup(ctx, items, batch, topic) {
				results[i] = ok
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, i := range append(large, todo...) {
		if results[i] {
			summary.Cleaned++
		} else {
			summary.Failed++
		}
	}
	c.logger.Info("cleaning complete",
		zap.Int("cleaned", summary.Cleaned),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("max_parallel", c.opts.MaxParallel),
		zap.Duration("elapsed", time.Since(start)))
	if err := ctx.Err(); err != nil {
		return summary, fault.New(fault.Cancelled, "clean", err)
	}
	return summary, nil
}

// cleanGroup cleans one batch with a single call, falling back to
// individual cleaning when the call or its parsing fails.
func (c *Cleaner) cleanGroup(ctx context.Context, items []types.ResearchItem, batch []int, topic string) map[int]bool {
	res := make(map[int]bool, len(batch))
	if ctx.Err() != nil {
		return res
	}
	if len(batch) == 1 {
		res[batch[0]] = c.cleanItem(ctx, &items[batch[0]], topic)
		return res
	}

	docs := make([]promptDoc, len(batch))
	total := 0
	for j, i := range batch {
		docs[j] = promptDoc{URL: items[i].SourceURL, Content: items[i].RawContent, PDF: items[i].IsPDFContent || isPDF(items[i].SourceURL)}
		total += len(items[i].RawContent)
	}

	parts, err := c.callBatch(ctx, topic, docs, total)
	if err != nil {
		if fault.IsKind(err, fault.Cancelled) {
			return res
		}
		c.logger.Warn("batch cleaning failed, cleaning individually", zap.Int("items", len(batch)), zap.Error(err))
		for _, i := range batch {
			if ctx.Err() != nil {
				break
			}
			res[i] = c.cleanItem(ctx, &items[i], topic)
		}
		return res
	}
	for j, i := range batch {
		record(&items[i], parts[j])
		res[i] = true
	}
	return res
}

func (c *Cleaner) callBatch(ctx context.Context, topic string, docs []promptDoc, total int) ([]string, error) {
	prompt, err := renderBatch(topic, docs)
	if err != nil {
		return nil, fmt.Errorf("rendering batch prompt: %w", err)
	}
	out, err := c.client.Complete(ctx, llm.Request{
		Tier:        c.opts.Tier,
		System:      systemPrompt,
		User:        prompt,
		Temperature: 0.1,
		MaxTokens:   outputBudget(total),
	})
	if err != nil {
		return nil, err
	}
	return ParseBatch(out, len(docs))
}

func (c *Cleaner) cleanItem(ctx context.Context, it *types.ResearchItem, topic string) bool {
	if ctx.Err() != nil {
		return false
	}
	cleaned, err := c.CleanOne(ctx, it.RawContent, topic, it.SourceURL)
	if err != nil {
		c.logger.Debug("item cleaning failed", zap.String("url", it.SourceURL), zap.Error(err))
		return false
	}
	record(it, cleaned)
	return true
}

func record(it *types.ResearchItem, cleaned string) {
	it.MarkCleaned(cleaned, CountQuotes(it.RawContent), CountQuotes(cleaned))
}

// ParseBatch splits a batch response into n cleaned texts. Without the
// separator, the first n paragraph blocks are used.
func ParseBatch(out string, n int) ([]string, error) {
	var parts []string
	if strings.Contains(out, ItemSeparator) {
		for _, p := range strings.Split(out, ItemSeparator) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
	} else {
		for _, p := range strings.Split(out, "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if n == 1 && len(parts) > 0 {
			parts = []string{strings.TrimSpace(out)}
		}
	}
	if len(parts) < n {
		return nil, fault.Errorf(fault.ModelSpecific, "clean", "batch returned %d items, want %d", len(parts), n)
	}
	return parts[:n], nil
}

// SplitChunks splits s into pieces of at most size bytes, cutting at the
// last sentence end or newline in the second half of each window.
func SplitChunks(s string, size int) []string {
	if size <= 0 || len(s) <= size {
		return []string{s}
	}
	var chunks []string
	for len(s) > size {
		cut := sentenceCut(s[:size])
		if cut <= 0 {
			cut = size
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		chunks = append(chunks, strings.TrimSpace(s[:cut]))
		s = s[cut:]
	}
	if t := strings.TrimSpace(s); t != "" {
		chunks = append(chunks, t)
	}
	return chunks
}

func sentenceCut(window string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "\n"} {
		if i := strings.LastIndex(window, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	if best < len(window)/2 {
		return -1
	}
	return best
}

// CountQuotes counts quotation characters.
func CountQuotes(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case '"', '“', '”', '„', '«', '»':
			n++
		}
	}
	return n
}

func outputBudget(chars int) int {
	return max(minOutputTokens, min(maxOutputTokens, chars/charsPerToken))
}

func isPDF(url string) bool {
	path := strings.ToLower(url)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".pdf")
}
