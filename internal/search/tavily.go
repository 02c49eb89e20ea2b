// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/pkg/types"
)

// tavilyAPIBase is the Tavily search endpoint. Declared as a var so tests
// can substitute an httptest server.
var tavilyAPIBase = "https://api.tavily.com/search"

// TavilyQueryLimit is Tavily's documented maximum query length.
const TavilyQueryLimit = 400

// TavilyProvider queries the Tavily API. Results carry a native relevance score.
type TavilyProvider struct {
	Client *http.Client
	APIKey string
	Config types.SearchConfig
}

// NewTavily returns a Tavily provider. A nil client uses a fresh http.Client.
func NewTavily(client *http.Client, cfg types.SearchConfig) *TavilyProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &TavilyProvider{Client: client, APIKey: cfg.TavilyAPIKey, Config: cfg}
}

// Name returns the provider identifier.
func (p *TavilyProvider) Name() string { return types.ProviderTavily }

// Search queries Tavily. Hits scoring below the configured minimum are dropped.
func (p *TavilyProvider) Search(ctx context.Context, subQuery string, maxResults int) ([]types.ResearchItem, error) {
	q := TruncateQuery(subQuery, TavilyQueryLimit)
	if q == "" {
		return nil, fault.Errorf(fault.Validation, "tavily search", "empty query")
	}
	if p.APIKey == "" {
		return nil, fault.Errorf(fault.Config, "tavily search", "missing API key")
	}
	if maxResults <= 0 {
		maxResults = p.Config.MaxResults
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	depth := p.Config.SearchDepth
	if depth == "" {
		depth = "advanced"
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOr(p.Config.Timeout))
	defer cancel()

	body := tavilyRequest{
		Query:          q,
		MaxResults:     maxResults,
		SearchDepth:    depth,
		TimeRange:      p.Config.TimeRange,
		IncludeDomains: p.Config.IncludeDomains,
		ExcludeDomains: p.Config.ExcludeDomains,
		IncludeAnswer:  true,
		IncludeRaw:     p.Config.IncludeRawContent,
	}
	var tr tavilyResponse
	headers := map[string]string{"Authorization": "Bearer " + p.APIKey}
	err := postJSON(ctx, p.Client, tavilyAPIBase, headers, body, &tr, p.Config.MaxRetries, "tavily search")
	metrics.SearchRequests.WithLabelValues(types.ProviderTavily, metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var items []types.ResearchItem
	for i, r := range tr.Results {
		if r.URL == "" || r.Score < p.Config.TavilyMinScore {
			continue
		}
		it := types.ResearchItem{
			SubQuery:       subQuery,
			SourceURL:      r.URL,
			Title:          r.Title,
			Snippet:        r.Content,
			RelevanceScore: r.Score,
			Timestamp:      now,
			Provider:       types.ProviderTavily,
			Position:       i + 1,
		}
		if p.Config.IncludeRawContent {
			it.Metadata.ProviderContent = strings.TrimSpace(r.RawContent)
		}
		if i == 0 && tr.Answer != "" {
			it.Metadata.Extra = map[string]any{"answer": tr.Answer}
		}
		items = append(items, it)
	}
	return items, nil
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Tavily API JSON structures.
type tavilyRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	SearchDepth    string   `json:"search_depth"`
	TimeRange      string   `json:"time_range,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	IncludeAnswer  bool     `json:"include_answer"`
	IncludeRaw     bool     `json:"include_raw_content"`
}

type tavilyResponse struct {
	Answer  string         `json:"answer"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	RawContent string  `json:"raw_content"`
}
