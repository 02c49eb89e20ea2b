// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package expand turns a user query into a fixed number of diverse
// sub-queries with an LLM. Errors are returned, never papered over with a
// default set, so callers' retry policies see them.
package expand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/internal/logging"
)

// DefaultCount is the default number of sub-queries.
const DefaultCount = 3

// QueryType selects the angles the sub-queries should cover.
type QueryType string

const (
	TypeProduct    QueryType = "product"
	TypeHistorical QueryType = "historical"
	TypeNews       QueryType = "news"
	TypeGeneral    QueryType = "general"
)

var angles = map[QueryType]string{
	TypeProduct:    "features and specifications; market position and competitors; pricing and value",
	TypeHistorical: "causes and background; key events and figures; consequences and legacy",
	TypeNews:       "the most recent developments; background context; implications and reactions",
	TypeGeneral:    "core concepts and definitions; current state and evidence; open debates and future directions",
}

var typeKeywords = []struct {
	t     QueryType
	words []string
}{
	{TypeNews, []string{"latest", "news", "today", "this week", "breaking", "update", "announced"}},
	{TypeHistorical, []string{"history", "historical", "century", "ancient", " war ", "empire", "revolution", "origins"}},
	{TypeProduct, []string{"price", "pricing", "buy", "review", "features", " vs ", "versus", "best ", "product"}},
}

// DetectType classifies query by keyword.
func DetectType(query string) QueryType {
	q := " " + strings.ToLower(query) + " "
	for _, tk := range typeKeywords {
		for _, w := range tk.words {
			if strings.Contains(q, w) {
				return tk.t
			}
		}
	}
	return TypeGeneral
}

var promptTmpl = template.Must(template.New("expand").Parse(`Rewrite the research query below into exactly {{.N}} search engine queries.

Each query must cover a distinct angle. For this {{.Type}} query, cover: {{.Angles}}.
Keep each query under 20 words, self-contained, and specific. Do not number them.

Respond with a JSON object of the form {"sub_queries": ["...", "..."]} and nothing else.

Query: {{.Query}}
`))

// Expander produces sub-queries. Results are cached per normalized query so
// repeated expansion within a run is stable.
type Expander struct {
	client llm.Client
	n      int
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string][]string
}

// New returns an Expander producing n sub-queries (n <= 0 selects DefaultCount).
func New(client llm.Client, n int, logger *zap.Logger) *Expander {
	if n <= 0 {
		n = DefaultCount
	}
	return &Expander{client: client, n: n, logger: logging.OrNop(logger), cache: map[string][]string{}}
}

// Count returns the expansion arity.
func (e *Expander) Count() int { return e.n }

// Expand returns exactly Count sub-queries for query.
func (e *Expander) Expand(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fault.Errorf(fault.Validation, "expand", "empty query")
	}
	key := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	e.mu.Lock()
	if subs, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return append([]string(nil), subs...), nil
	}
	e.mu.Unlock()

	qt := DetectType(query)
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, struct {
		N      int
		Type   QueryType
		Angles string
		Query  string
	}{e.n, qt, angles[qt], query}); err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	out, err := e.client.Complete(ctx, llm.Request{
		Tier:        llm.TierNano,
		User:        buf.String(),
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, fmt.Errorf("expanding query: %w", err)
	}
	subs, err := Parse(out, e.n)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[key] = subs
	e.mu.Unlock()
	e.logger.Info("query expanded", zap.String("query", query), zap.String("type", string(qt)), zap.Strings("sub_queries", subs))
	return append([]string(nil), subs...), nil
}

// Parse extracts exactly n distinct sub-queries from a model response. The
// JSON object may be wrapped in prose or a code fence.
func Parse(out string, n int) ([]string, error) {
	start, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return nil, fault.Errorf(fault.ModelSpecific, "expand", "no JSON object in response")
	}
	var resp struct {
		SubQueries []string `json:"sub_queries"`
	}
	if err := json.Unmarshal([]byte(out[start:end+1]), &resp); err != nil {
		return nil, fault.New(fault.ModelSpecific, "expand", fmt.Errorf("parsing response: %w", err))
	}

	seen := map[string]bool{}
	var subs []string
	for _, s := range resp.SubQueries {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		subs = append(subs, s)
	}
	if len(subs) < n {
		return nil, fault.Errorf(fault.ModelSpecific, "expand", "got %d distinct sub-queries, want %d", len(subs), n)
	}
	return subs[:n], nil
}
