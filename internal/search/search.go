// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search queries the web search providers and returns research
// items in one shared schema. Tavily returns scored results; Serper returns
// ordered organic hits that the grader scores later.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/httputil"
	"github.com/pdiddy/research-agents/internal/urlnorm"
	"github.com/pdiddy/research-agents/pkg/types"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 30 * time.Second

// Provider searches one web search API.
type Provider interface {
	Name() string
	Search(ctx context.Context, subQuery string, maxResults int) ([]types.ResearchItem, error)
}

// TruncateQuery cuts q to at most limit bytes, preferring a word boundary.
func TruncateQuery(q string, limit int) string {
	q = strings.TrimSpace(q)
	if limit <= 0 || len(q) <= limit {
		return q
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(q[cut]) {
		cut--
	}
	if i := strings.LastIndexByte(q[:cut], ' '); i > limit/2 {
		cut = i
	}
	return strings.TrimSpace(q[:cut])
}

// Deduplicate keeps the first item for each canonical URL and returns the
// number removed. A later duplicate with a higher score raises the kept
// item's score; items without a URL are kept as they are.
func Deduplicate(items []types.ResearchItem) ([]types.ResearchItem, int) {
	seen := make(map[string]int)
	var out []types.ResearchItem
	removed := 0
	for _, it := range items {
		if it.SourceURL == "" {
			out = append(out, it)
			continue
		}
		key := urlnorm.Normalize(it.SourceURL)
		if idx, ok := seen[key]; ok {
			mergeInto(&out[idx], it)
			removed++
			continue
		}
		seen[key] = len(out)
		out = append(out, it)
	}
	return out, removed
}

// mergeInto fills empty fields of dst from src and keeps the higher score.
func mergeInto(dst *types.ResearchItem, src types.ResearchItem) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if len(src.Snippet) > len(dst.Snippet) {
		dst.Snippet = src.Snippet
	}
	prev := dst.Provider
	if src.Provider == types.ProviderTavily && dst.Provider != types.ProviderTavily {
		// A native score beats a synthesized one.
		dst.Provider, dst.RelevanceScore, dst.Position = src.Provider, src.RelevanceScore, src.Position
	} else if src.RelevanceScore > dst.RelevanceScore && src.Provider == dst.Provider {
		dst.RelevanceScore = src.RelevanceScore
	}
	if dst.Metadata.Extra == nil {
		dst.Metadata.Extra = map[string]any{}
	}
	other := src.Provider
	if prev != dst.Provider {
		other = prev
	}
	also, _ := dst.Metadata.Extra["also_found_by"].([]string)
	if other != "" && other != dst.Provider && !contains(also, other) {
		dst.Metadata.Extra["also_found_by"] = append(also, other)
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// postJSON sends body to url and decodes the JSON response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, out any, maxRetries int, op string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, maxRetries)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fault.FromResponse(op, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing %s response: %w", op, err)
	}
	return nil
}

// classify wraps a transport error. Unclassified network failures that
// survived retries are transient.
func classify(op string, err error) error {
	kind := fault.KindOf(err)
	if kind == fault.Unknown {
		kind = fault.ProviderTransient
	}
	return fault.New(kind, op, err)
}

// FormatTable writes items as a human-readable table to w.
func FormatTable(p *types.ResearchPipeline, w io.Writer) {
	if len(p.Items) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-50s  %-8s  %-5s  %-7s  %s\n", "Rank", "Title", "Provider", "Score", "Status", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for i, it := range p.Items {
		fmt.Fprintf(w, "%-4d  %-50s  %-8s  %-5.2f  %-7s  %s\n",
			i+1, truncate(it.Title, 50), it.Provider, it.RelevanceScore, status(it), it.SourceURL)
	}

	s := p.Summary
	fmt.Fprintf(w, "\n%d results from %d sub-queries", len(p.Items), len(p.SubQueries))
	if s.DuplicatesRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", s.DuplicatesRemoved)
	}
	fmt.Fprintf(w, "; scraped %d, blocked %d, filtered %d, cleaned %d\n", s.Scraped, s.Blocked, s.GarbageFiltered, s.Cleaned)
}

func status(it types.ResearchItem) string {
	switch {
	case it.GarbageFiltered:
		return "garbage"
	case it.ContentCleaned:
		return "cleaned"
	case it.ContentScraped && it.IsPDFContent:
		return "pdf"
	case it.ContentScraped:
		return "scraped"
	case it.Metadata.BlockReason != "":
		return "blocked"
	case it.ScrapingError != "":
		return "failed"
	default:
		return "snippet"
	}
}

// FormatJSON writes the pipeline as indented JSON to w.
func FormatJSON(p *types.ResearchPipeline, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
