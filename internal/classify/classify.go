// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns a research query a domain, a complexity, and an
// intent. The LLM is asked first; keyword heuristics answer when the model
// is disabled or fails. Results are kept in a bounded LRU cache.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/pkg/types"
)

// DefaultCacheSize is used when the configured capacity is not positive.
const DefaultCacheSize = 256

type Domain string

const (
	DomainTechnology  Domain = "technology"
	DomainBusiness    Domain = "business"
	DomainScience     Domain = "science"
	DomainNews        Domain = "news"
	DomainHistorical  Domain = "historical"
	DomainEducational Domain = "educational"
	DomainGeneral     Domain = "general"
)

type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityModerate Complexity = "moderate"
	ComplexityHigh     Complexity = "high"
)

type Intent string

const (
	IntentInformational Intent = "informational"
	IntentInstructional Intent = "instructional"
	IntentComparative   Intent = "comparative"
	IntentPredictive    Intent = "predictive"
	IntentEvaluative    Intent = "evaluative"
)

// Source values for Result.Source.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// Result is one classification.
type Result struct {
	Domain           Domain     `json:"domain"`
	DomainConfidence float64    `json:"domain_confidence"`
	Complexity       Complexity `json:"complexity"`
	Intent           Intent     `json:"intent"`
	QueryLength      int        `json:"query_length"`
	TechnicalTerms   []string   `json:"technical_terms"`
	SecondaryDomains []Domain   `json:"secondary_domains,omitempty"`
	Rationale        string     `json:"rationale"`
	Source           string     `json:"source"`
}

func (r Result) clone() Result {
	r.TechnicalTerms = slices.Clone(r.TechnicalTerms)
	r.SecondaryDomains = slices.Clone(r.SecondaryDomains)
	return r
}

// Context renders r as the one-line domain description handed to the
// report writer.
func (r Result) Context() string {
	s := fmt.Sprintf("%s (%s complexity, %s intent)", r.Domain, r.Complexity, r.Intent)
	if len(r.TechnicalTerms) > 0 {
		s += "; key terms: " + strings.Join(r.TechnicalTerms, ", ")
	}
	return s
}

// Classifier is safe for concurrent use.
type Classifier struct {
	client llm.Client
	mode   types.ClassifierMode
	cache  *lru
	logger *zap.Logger
}

// New returns a Classifier. A nil client forces heuristic mode.
func New(client llm.Client, cfg types.ClassifierConfig, logger *zap.Logger) *Classifier {
	mode := cfg.Mode
	if mode == "" {
		mode = types.ClassifierLLM
	}
	if client == nil {
		mode = types.ClassifierHeuristic
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Classifier{client: client, mode: mode, cache: newLRU(size), logger: logging.OrNop(logger)}
}

// Key normalizes a query for caching.
func Key(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Classify returns the classification of query. Model failures fall back
// to the heuristic and are not cached; only cancellation is an error.
func (c *Classifier) Classify(ctx context.Context, query string) (Result, error) {
	key := Key(query)
	if r, ok := c.cache.get(key); ok {
		return r.clone(), nil
	}

	if c.mode == types.ClassifierLLM {
		r, err := c.classifyLLM(ctx, query)
		if err == nil {
			c.cache.add(key, r)
			return r.clone(), nil
		}
		if ctx.Err() != nil {
			return Result{}, fault.New(fault.Cancelled, "classify", ctx.Err())
		}
		c.logger.Warn("llm classification failed, using heuristic", zap.String("query", query), zap.Error(err))
		h := Heuristic(query)
		h.Rationale = "heuristic fallback: " + h.Rationale
		return h, nil
	}

	r := Heuristic(query)
	c.cache.add(key, r)
	return r.clone(), nil
}

// CacheLen returns the number of cached classifications.
func (c *Classifier) CacheLen() int { return c.cache.len() }

// ResetCache drops every cached classification.
func (c *Classifier) ResetCache() { c.cache.reset() }

var promptTmpl = template.Must(template.New("classify").Parse(`Classify the research query below.

domain: one of technology, business, science, news, historical, educational, general
complexity: one of low, moderate, high
intent: one of informational, instructional, comparative, predictive, evaluative

Respond with a JSON object and nothing else:
{"domain": "...", "domain_confidence": 0.0, "complexity": "...", "intent": "...", "technical_terms": ["..."], "secondary_domains": ["..."], "rationale": "one sentence"}

Query: {{.}}
`))

func (c *Classifier) classifyLLM(ctx context.Context, query string) (Result, error) {
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, query); err != nil {
		return Result{}, fmt.Errorf("rendering prompt: %w", err)
	}
	out, err := c.client.Complete(ctx, llm.Request{
		Tier:        llm.TierNano,
		User:        buf.String(),
		Temperature: 0,
		MaxTokens:   300,
	})
	if err != nil {
		return Result{}, err
	}
	r, err := Parse(out)
	if err != nil {
		return Result{}, err
	}
	r.QueryLength = len(strings.Fields(query))
	return r, nil
}

// Parse decodes and validates a model response. Unknown enum values are
// ModelSpecific errors.
func Parse(out string) (Result, error) {
	start, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return Result{}, fault.Errorf(fault.ModelSpecific, "classify", "no JSON object in response")
	}
	var r Result
	if err := json.Unmarshal([]byte(out[start:end+1]), &r); err != nil {
		return Result{}, fault.New(fault.ModelSpecific, "classify", fmt.Errorf("parsing response: %w", err))
	}
	r.Domain = Domain(strings.ToLower(string(r.Domain)))
	r.Complexity = Complexity(strings.ToLower(string(r.Complexity)))
	r.Intent = Intent(strings.ToLower(string(r.Intent)))
	if !slices.Contains(domainOrder, r.Domain) && r.Domain != DomainGeneral {
		return Result{}, fault.Errorf(fault.ModelSpecific, "classify", "unknown domain %q", r.Domain)
	}
	if !slices.Contains([]Complexity{ComplexityLow, ComplexityModerate, ComplexityHigh}, r.Complexity) {
		return Result{}, fault.Errorf(fault.ModelSpecific, "classify", "unknown complexity %q", r.Complexity)
	}
	if !slices.Contains([]Intent{IntentInformational, IntentInstructional, IntentComparative, IntentPredictive, IntentEvaluative}, r.Intent) {
		return Result{}, fault.Errorf(fault.ModelSpecific, "classify", "unknown intent %q", r.Intent)
	}
	r.DomainConfidence = min(1, max(0, r.DomainConfidence))
	secondary := r.SecondaryDomains[:0]
	for _, d := range r.SecondaryDomains {
		d = Domain(strings.ToLower(string(d)))
		if d != r.Domain && slices.Contains(domainOrder, d) {
			secondary = append(secondary, d)
		}
	}
	r.SecondaryDomains = secondary
	if r.TechnicalTerms == nil {
		r.TechnicalTerms = []string{}
	}
	r.Source = SourceLLM
	return r, nil
}

// domainOrder breaks keyword-count ties.
var domainOrder = []Domain{DomainTechnology, DomainScience, DomainBusiness, DomainNews, DomainHistorical, DomainEducational}

var domainKeywords = map[Domain][]string{
	DomainTechnology: {"software", "ai", "artificial intelligence", "machine learning", "computer", "programming", "code", "algorithm",
		"cloud", "data", "chip", "chips", "semiconductor", "app", "internet", "cyber", "cybersecurity", "robot", "robotics",
		"blockchain", "api", "gpu", "llm", "technology", "tech", "database", "network", "kubernetes", "quantum computing"},
	DomainBusiness: {"market", "markets", "company", "companies", "revenue", "startup", "investment", "investing", "stock", "stocks",
		"finance", "financial", "economy", "economic", "sales", "strategy", "profit", "industry", "ceo", "business", "pricing", "merger"},
	DomainScience: {"research", "study", "physics", "chemistry", "biology", "climate", "species", "experiment", "scientific",
		"genome", "gene", "quantum", "space", "nasa", "medical", "medicine", "disease", "vaccine", "astronomy", "ecology"},
	DomainNews: {"latest", "news", "today", "breaking", "this week", "announced", "recent", "update", "updates", "yesterday", "current events"},
	DomainHistorical: {"history", "historical", "century", "ancient", "war", "empire", "revolution", "medieval", "dynasty",
		"origins", "civilization", "historic"},
	DomainEducational: {"how to", "learn", "learning", "tutorial", "guide", "explain", "course", "beginner", "beginners",
		"lesson", "teach", "what is", "introduction"},
}

var (
	comparativeWords   = []string{"vs", "versus", "compare", "comparison", "difference between", "better than"}
	instructionalWords = []string{"how to", "how do", "how can", "steps", "guide", "tutorial", "set up", "install"}
	predictiveWords    = []string{"future", "will", "forecast", "predict", "prediction", "outlook", "next decade", "trends", "trend"}
	evaluativeWords    = []string{"best", "review", "reviews", "pros and cons", "worth", "should i", "evaluate", "top", "rank", "ranking"}
	complexWords       = []string{"analysis", "analyze", "implications", "comprehensive", "in depth", "trade offs", "tradeoffs",
		"architecture", "impact", "mechanism", "methodology"}
)

var (
	nonWordRe  = regexp.MustCompile(`[^a-z0-9]+`)
	techTermRe = regexp.MustCompile(`\b(?:[A-Za-z]+-?[0-9]+[A-Za-z]*|[A-Z]{2,}[0-9]*)\b`)
)

// padded lowercases q, reduces punctuation to spaces, and pads it so
// phrases match on word boundaries with a plain substring test.
func padded(q string) string {
	return " " + strings.TrimSpace(nonWordRe.ReplaceAllString(strings.ToLower(q), " ")) + " "
}

func count(p string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(p, " "+w+" ") {
			n++
		}
	}
	return n
}

func has(p string, words []string) bool {
	return count(p, words) > 0
}

// Heuristic classifies query with keyword counts only.
func Heuristic(query string) Result {
	p := padded(query)
	words := len(strings.Fields(query))

	counts := map[Domain]int{}
	best := DomainGeneral
	for _, d := range domainOrder {
		counts[d] = count(p, domainKeywords[d])
		if counts[d] > counts[best] {
			best = d
		}
	}
	var secondary []Domain
	for _, d := range domainOrder {
		if d != best && counts[d] > 0 {
			secondary = append(secondary, d)
		}
	}
	conf := 0.3
	if best != DomainGeneral {
		conf = min(0.9, 0.4+0.15*float64(counts[best]))
	}

	terms := technicalTerms(query, p)

	complexity := ComplexityModerate
	switch {
	case words > 20 || len(terms) >= 3 || has(p, complexWords):
		complexity = ComplexityHigh
	case words <= 5 && len(terms) == 0:
		complexity = ComplexityLow
	}

	intent := IntentInformational
	switch {
	case has(p, comparativeWords) && !has(p, instructionalWords):
		intent = IntentComparative
	case has(p, instructionalWords):
		intent = IntentInstructional
	case has(p, predictiveWords):
		intent = IntentPredictive
	case has(p, evaluativeWords):
		intent = IntentEvaluative
	}

	return Result{
		Domain:           best,
		DomainConfidence: conf,
		Complexity:       complexity,
		Intent:           intent,
		QueryLength:      words,
		TechnicalTerms:   terms,
		SecondaryDomains: secondary,
		Rationale:        fmt.Sprintf("%d %s keyword(s), %d words", counts[best], best, words),
		Source:           SourceHeuristic,
	}
}

// technicalTerms collects acronyms, versioned names, and technology
// keywords in order of first appearance.
func technicalTerms(query, p string) []string {
	terms := []string{}
	seen := map[string]bool{}
	addTerm := func(t string) {
		k := strings.ToLower(t)
		if !seen[k] {
			seen[k] = true
			terms = append(terms, t)
		}
	}
	for _, m := range techTermRe.FindAllString(query, -1) {
		addTerm(m)
	}
	for _, w := range domainKeywords[DomainTechnology] {
		if w != "tech" && w != "technology" && strings.Contains(p, " "+w+" ") {
			addTerm(w)
		}
	}
	return terms
}
