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

// serperAPIBase is the Serper Google search endpoint. Declared as a var so
// tests can substitute an httptest server.
var serperAPIBase = "https://google.serper.dev/search"

// SerperQueryLimit bounds the query sent to Serper, site filters included.
const SerperQueryLimit = 2048

// SerperProvider queries the Serper API. Hits are ordered but unscored.
type SerperProvider struct {
	Client *http.Client
	APIKey string
	Config types.SearchConfig
}

// NewSerper returns a Serper provider. A nil client uses a fresh http.Client.
func NewSerper(client *http.Client, cfg types.SearchConfig) *SerperProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &SerperProvider{Client: client, APIKey: cfg.SerperAPIKey, Config: cfg}
}

// Name returns the provider identifier.
func (p *SerperProvider) Name() string { return types.ProviderSerper }

// Search queries Serper. Domain filters become site: operators.
func (p *SerperProvider) Search(ctx context.Context, subQuery string, maxResults int) ([]types.ResearchItem, error) {
	q := strings.TrimSpace(subQuery)
	if q == "" {
		return nil, fault.Errorf(fault.Validation, "serper search", "empty query")
	}
	if p.APIKey == "" {
		return nil, fault.Errorf(fault.Config, "serper search", "missing API key")
	}
	if maxResults <= 0 {
		maxResults = p.Config.SerperMaxResults
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	filters := siteFilters(p.Config.IncludeDomains, p.Config.ExcludeDomains)
	q = TruncateQuery(q, SerperQueryLimit-len(filters)-1)
	if filters != "" {
		q += " " + filters
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOr(p.Config.Timeout))
	defer cancel()

	body := serperRequest{Q: q, Num: maxResults, HL: p.Config.Language, GL: p.Config.Country}
	var sr serperResponse
	headers := map[string]string{"X-API-KEY": p.APIKey}
	err := postJSON(ctx, p.Client, serperAPIBase, headers, body, &sr, p.Config.MaxRetries, "serper search")
	metrics.SearchRequests.WithLabelValues(types.ProviderSerper, metrics.Status(err)).Inc()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var items []types.ResearchItem
	for i, r := range sr.Organic {
		if r.Link == "" {
			continue
		}
		pos := r.Position
		if pos <= 0 {
			pos = i + 1
		}
		items = append(items, types.ResearchItem{
			SubQuery:  subQuery,
			SourceURL: r.Link,
			Title:     r.Title,
			Snippet:   r.Snippet,
			Timestamp: now,
			Provider:  types.ProviderSerper,
			Position:  pos,
		})
		if len(items) == maxResults {
			break
		}
	}
	return items, nil
}

// siteFilters renders include and exclude domain lists as search operators.
func siteFilters(include, exclude []string) string {
	var parts []string
	if len(include) > 0 {
		var sites []string
		for _, d := range include {
			sites = append(sites, "site:"+d)
		}
		parts = append(parts, "("+strings.Join(sites, " OR ")+")")
	}
	for _, d := range exclude {
		parts = append(parts, "-site:"+d)
	}
	return strings.Join(parts, " ")
}

// Serper API JSON structures.
type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	HL  string `json:"hl,omitempty"`
	GL  string `json:"gl,omitempty"`
}

type serperResponse struct {
	Organic []serperOrganic `json:"organic"`
}

type serperOrganic struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}
