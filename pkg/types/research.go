// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the research-agents pipeline:
// research items and pipelines, collector captures (YouTube, weather), report
// artifacts, the master state document, and stage configuration.
package types

import (
	"time"
)

// Provider identifiers. Tavily is the scored provider (native relevance
// scores); Serper returns ordered organic hits without scores.
const (
	ProviderTavily = "tavily"
	ProviderSerper = "serper"
)

// PipelineType records which providers contributed to a ResearchPipeline.
type PipelineType string

const (
	PipelineTavily   PipelineType = "tavily"
	PipelineSerper   PipelineType = "serper"
	PipelineCombined PipelineType = "combined"
)

// PipelineTypeFor derives the pipeline type from the set of providers used.
func PipelineTypeFor(providers []string) PipelineType {
	seen := map[string]bool{}
	for _, p := range providers {
		seen[p] = true
	}
	switch {
	case len(seen) > 1:
		return PipelineCombined
	case seen[ProviderSerper]:
		return PipelineSerper
	default:
		return PipelineTavily
	}
}

// QuoteMetrics counts quotation characters before and after cleaning so
// reviewers can spot cleaners that strip quoted material.
type QuoteMetrics struct {
	QuotesBefore int `json:"quotes_before" yaml:"quotes_before"`
	QuotesAfter  int `json:"quotes_after" yaml:"quotes_after"`
}

// ItemMetadata is the metadata bag carried by each ResearchItem.
type ItemMetadata struct {
	// ShouldScrape is set by the grader when the item is scheduled for a full fetch.
	ShouldScrape bool `json:"should_scrape" yaml:"should_scrape"`

	// ScrapePriority is the 1-based scheduling ordinal; 0 when not scheduled.
	ScrapePriority int `json:"scrape_priority,omitempty" yaml:"scrape_priority,omitempty"`

	// ProviderContent is page text returned by the search provider itself.
	ProviderContent string `json:"provider_content,omitempty" yaml:"provider_content,omitempty"`

	// ContentSource is "provider" when raw content came from ProviderContent
	// instead of a fetch.
	ContentSource string `json:"content_source,omitempty" yaml:"content_source,omitempty"`

	// SkipReason explains why the grader did not schedule the item.
	SkipReason string `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`

	// FallbackScrape marks items promoted by the fallback pass.
	FallbackScrape bool `json:"fallback_scrape,omitempty" yaml:"fallback_scrape,omitempty"`

	// BlockReason is the scraper's block classification, when blocked.
	BlockReason string `json:"block_reason,omitempty" yaml:"block_reason,omitempty"`

	// StatusCode is the last HTTP status observed while scraping.
	StatusCode int `json:"status_code,omitempty" yaml:"status_code,omitempty"`

	// QuoteMetrics is recorded by the cleaner.
	QuoteMetrics *QuoteMetrics `json:"quote_metrics,omitempty" yaml:"quote_metrics,omitempty"`

	// Extra holds provider-specific values (e.g. the provider's answer text).
	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// ResearchItem is the atomic research record produced by a search provider
// and refined by the scraping, filtering, and cleaning stages.
type ResearchItem struct {
	SubQuery       string    `json:"sub_query" yaml:"sub_query"`
	SourceURL      string    `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Title          string    `json:"title" yaml:"title"`
	Snippet        string    `json:"snippet" yaml:"snippet"`
	RelevanceScore float64   `json:"relevance_score" yaml:"relevance_score"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`

	// Provider and Position identify where the item came from (1-based position).
	Provider string `json:"provider" yaml:"provider"`
	Position int    `json:"position" yaml:"position"`

	ContentScraped   bool   `json:"content_scraped" yaml:"content_scraped"`
	ScrapingError    string `json:"scraping_error,omitempty" yaml:"scraping_error,omitempty"`
	IsPDFContent     bool   `json:"is_pdf_content" yaml:"is_pdf_content"`
	RawContent       string `json:"raw_content,omitempty" yaml:"raw_content,omitempty"`
	RawContentLength int    `json:"raw_content_length" yaml:"raw_content_length"`

	// ScrapedContent is the post-clean text used downstream.
	ScrapedContent string `json:"scraped_content,omitempty" yaml:"scraped_content,omitempty"`
	ContentCleaned bool   `json:"content_cleaned" yaml:"content_cleaned"`
	CleanedLength  int    `json:"cleaned_length,omitempty" yaml:"cleaned_length,omitempty"`
	OriginalLength int    `json:"original_length,omitempty" yaml:"original_length,omitempty"`

	GarbageFiltered   bool    `json:"garbage_filtered" yaml:"garbage_filtered"`
	FilterReason      string  `json:"filter_reason,omitempty" yaml:"filter_reason,omitempty"`
	PreFilterContent  string  `json:"pre_filter_content,omitempty" yaml:"pre_filter_content,omitempty"`
	PostFilterContent string  `json:"post_filter_content,omitempty" yaml:"post_filter_content,omitempty"`
	QualityScore      float64 `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`

	Metadata ItemMetadata `json:"metadata" yaml:"metadata"`
}

// logPreviewChars bounds the pre/post filter previews kept for logs.
const logPreviewChars = 500

// MarkScraped records a successful fetch. Empty content is recorded as a
// failure so that a scraped item always carries raw content.
func (it *ResearchItem) MarkScraped(content string, isPDF bool) {
	if content == "" {
		it.MarkScrapeFailed("empty content")
		return
	}
	it.ContentScraped = true
	it.ScrapingError = ""
	it.IsPDFContent = isPDF
	it.RawContent = content
	it.RawContentLength = len(content)
}

// MarkScrapeFailed records a failed fetch attempt.
func (it *ResearchItem) MarkScrapeFailed(reason string) {
	it.ContentScraped = false
	it.RawContent = ""
	it.RawContentLength = 0
	it.ScrapingError = reason
}

// MarkGarbage records a garbage-filter rejection. The raw text is kept
// for inspection but the item is excluded from cleaning and reporting.
func (it *ResearchItem) MarkGarbage(reason string, score float64) {
	it.GarbageFiltered = true
	it.FilterReason = reason
	it.QualityScore = score
	it.ContentCleaned = false
	it.PreFilterContent = Preview(it.RawContent, logPreviewChars)
	it.PostFilterContent = ""
}

// MarkCleaned records the cleaner's output.
func (it *ResearchItem) MarkCleaned(cleaned string, quotesBefore, quotesAfter int) {
	it.ScrapedContent = cleaned
	it.ContentCleaned = true
	it.OriginalLength = it.RawContentLength
	it.CleanedLength = len(cleaned)
	it.PostFilterContent = Preview(cleaned, logPreviewChars)
	it.Metadata.QuoteMetrics = &QuoteMetrics{QuotesBefore: quotesBefore, QuotesAfter: quotesAfter}
}

// Usable reports whether the item may feed the report writer.
func (it *ResearchItem) Usable() bool {
	return !it.GarbageFiltered
}

// ReportContent returns the best available text for report assembly:
// cleaned content, then raw scraped content, then the snippet.
func (it *ResearchItem) ReportContent() string {
	switch {
	case it.GarbageFiltered:
		return ""
	case it.ContentCleaned && it.ScrapedContent != "":
		return it.ScrapedContent
	case it.ContentScraped:
		return it.RawContent
	default:
		return it.Snippet
	}
}

// Preview truncates s to at most n bytes for logs and previews.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// RunSummary holds the per-run counters reported by the research coordinator.
type RunSummary struct {
	SubQueryCount      int            `json:"sub_query_count" yaml:"sub_query_count"`
	SearchCalls        int            `json:"search_calls" yaml:"search_calls"`
	SearchFailures     []string       `json:"search_failures,omitempty" yaml:"search_failures,omitempty"`
	ItemsFound         int            `json:"items_found" yaml:"items_found"`
	DuplicatesRemoved  int            `json:"duplicates_removed" yaml:"duplicates_removed"`
	Scheduled          int            `json:"scheduled" yaml:"scheduled"`
	Scraped            int            `json:"scraped" yaml:"scraped"`
	ScrapeFailures     int            `json:"scrape_failures" yaml:"scrape_failures"`
	Blocked            int            `json:"blocked" yaml:"blocked"`
	BlockReasons       map[string]int `json:"block_reasons,omitempty" yaml:"block_reasons,omitempty"`
	FallbackAttempted  int            `json:"fallback_attempted" yaml:"fallback_attempted"`
	FallbackSucceeded  int            `json:"fallback_succeeded" yaml:"fallback_succeeded"`
	PDFCount           int            `json:"pdf_count" yaml:"pdf_count"`
	ProviderContent    int            `json:"provider_content" yaml:"provider_content"`
	GarbageFiltered    int            `json:"garbage_filtered" yaml:"garbage_filtered"`
	Cleaned            int            `json:"cleaned" yaml:"cleaned"`
	CleaningFailures   int            `json:"cleaning_failures" yaml:"cleaning_failures"`
	// TargetMissed is set when fewer than the minimum sources were scraped.
	// CandidatePoolEmpty additionally means no unattempted candidate remained.
	TargetMissed       bool           `json:"target_missed" yaml:"target_missed"`
	CandidatePoolEmpty bool           `json:"candidate_pool_exhausted" yaml:"candidate_pool_exhausted"`
}

// ResearchPipeline is the ordered output of one research run.
type ResearchPipeline struct {
	OriginalQuery  string         `json:"original_query" yaml:"original_query"`
	SubQueries     []string       `json:"sub_queries" yaml:"sub_queries"`
	PipelineType   PipelineType   `json:"pipeline_type" yaml:"pipeline_type"`
	Items          []ResearchItem `json:"items" yaml:"items"`
	TotalResults   int            `json:"total_results" yaml:"total_results"`
	ProcessingTime float64        `json:"processing_time" yaml:"processing_time"`
	Summary        RunSummary     `json:"summary" yaml:"summary"`
}

// UsableItems returns the items that are not garbage-filtered.
func (p *ResearchPipeline) UsableItems() []ResearchItem {
	var out []ResearchItem
	for _, it := range p.Items {
		if it.Usable() {
			out = append(out, it)
		}
	}
	return out
}

// ScrapedCount returns the number of items with scraped content.
func (p *ResearchPipeline) ScrapedCount() int {
	n := 0
	for _, it := range p.Items {
		if it.ContentScraped {
			n++
		}
	}
	return n
}
