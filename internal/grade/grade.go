// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package grade scores search results and decides which are worth a full
// scrape. Tavily items keep their native score; Serper items get a
// synthesized score from domain, position, title, snippet, and recency
// signals.
package grade

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/research-agents/internal/policy"
	"github.com/pdiddy/research-agents/internal/urlnorm"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Default thresholds.
const (
	DefaultTavilyThreshold = 0.65
	DefaultThreshold       = 0.5
	AlwaysScrapeScore      = 0.9
)

// Synthesized score components.
const (
	baseScore       = 0.5
	premiumBonus    = 0.25
	lowQualityMalus = 0.25
	titleRange      = 0.15
	snippetRange    = 0.10
	lengthBonus     = 0.05
	recencyBonus    = 0.05
)

var qualityTitleWords = []string{"analysis", "research", "study", "report", "review", "guide", "overview", "explained"}

var clickbaitTitleWords = []string{"you won't believe", "shocking", "click here", "free download", "top secret", "hack"}

var recencyWords = []string{"latest", "recent", "new", "current", "updated"}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true, "how": true,
	"are": true, "was": true, "why": true, "who": true, "from": true, "about": true,
	"into": true, "this": true, "that": true, "does": true, "its": true, "their": true,
}

// Grader scores items. The reference year for the recency bonus is fixed
// at construction so grading is deterministic within a run.
type Grader struct {
	policy          *policy.Policy
	tavilyThreshold float64
	year            int
}

// New returns a Grader. A nil policy uses policy.Default; a threshold <= 0
// uses DefaultTavilyThreshold.
func New(pol *policy.Policy, tavilyThreshold float64) *Grader {
	if pol == nil {
		pol = policy.Default()
	}
	if tavilyThreshold <= 0 {
		tavilyThreshold = DefaultTavilyThreshold
	}
	return &Grader{policy: pol, tavilyThreshold: tavilyThreshold, year: time.Now().Year()}
}

// WithYear pins the recency reference year.
func (g *Grader) WithYear(year int) *Grader {
	g.year = year
	return g
}

// Score returns the item's relevance in [0,1]. Tavily items keep the
// provider score; other items are scored from their features.
func (g *Grader) Score(item types.ResearchItem) float64 {
	if item.Provider == types.ProviderTavily {
		return clamp(item.RelevanceScore, 0, 1)
	}
	return g.synthesize(item)
}

func (g *Grader) synthesize(item types.ResearchItem) float64 {
	score := baseScore

	host := urlnorm.Host(item.SourceURL)
	switch {
	case g.policy.IsPremium(host):
		score += premiumBonus
	case g.policy.IsLowQuality(host):
		score -= lowQualityMalus
	}

	switch p := item.Position; {
	case p >= 1 && p <= 3:
		score += 0.15
	case p >= 1 && p <= 7:
		score += 0.05
	case p > 15:
		score -= 0.10
	}

	terms := queryTerms(item.SubQuery)
	score += titleRelevance(item.Title, terms)
	score += snippetRelevance(item.Snippet, terms)

	switch n := len(item.Snippet); {
	case n > 150:
		score += lengthBonus
	case n < 50:
		score -= lengthBonus
	}

	if g.recent(item.Title + " " + item.Snippet) {
		score += recencyBonus
	}
	return clamp(score, 0, 1)
}

// titleRelevance returns an adjustment in [-0.15, 0.15] from query overlap
// and quality or clickbait keywords.
func titleRelevance(title string, terms []string) float64 {
	lower := strings.ToLower(title)
	adj := 0.0
	if len(terms) > 0 {
		overlap := overlapRatio(lower, terms)
		adj = overlap * titleRange
		if overlap == 0 {
			adj = -0.10
		}
	}
	if containsAny(lower, qualityTitleWords) {
		adj += 0.05
	}
	if containsAny(lower, clickbaitTitleWords) {
		adj -= 0.05
	}
	return clamp(adj, -titleRange, titleRange)
}

// snippetRelevance maps query-term overlap onto [-0.10, 0.10].
func snippetRelevance(snippet string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	overlap := overlapRatio(strings.ToLower(snippet), terms)
	return clamp(overlap*2*snippetRange-snippetRange, -snippetRange, snippetRange)
}

func (g *Grader) recent(text string) bool {
	lower := strings.ToLower(text)
	for _, y := range []int{g.year, g.year - 1} {
		if strings.Contains(lower, strconv.Itoa(y)) {
			return true
		}
	}
	for _, w := range wordsOf(lower) {
		for _, r := range recencyWords {
			if w == r {
				return true
			}
		}
	}
	return false
}

// ShouldScrape reports whether an item with the given score is worth a
// full fetch for provider.
func (g *Grader) ShouldScrape(score float64, provider string) bool {
	if score >= AlwaysScrapeScore {
		return true
	}
	return score >= g.threshold(provider)
}

func (g *Grader) threshold(provider string) float64 {
	if provider == types.ProviderTavily {
		return g.tavilyThreshold
	}
	return DefaultThreshold
}

// GradeBatch scores items from one provider, sorts them by descending score
// (ties keep arrival order), and schedules up to maxScrape of the items that
// pass ShouldScrape. maxScrape <= 0 schedules every passing item. The rest
// get a skip reason.
func (g *Grader) GradeBatch(items []types.ResearchItem, provider string, maxScrape int) []types.ResearchItem {
	out := make([]types.ResearchItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Provider == "" {
			out[i].Provider = provider
		}
		out[i].RelevanceScore = g.Score(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})

	scheduled := 0
	for i := range out {
		md := &out[i].Metadata
		md.ShouldScrape, md.ScrapePriority, md.SkipReason = false, 0, ""
		switch {
		case out[i].SourceURL == "":
			md.SkipReason = "no source url"
		case !g.ShouldScrape(out[i].RelevanceScore, provider):
			md.SkipReason = fmt.Sprintf("score %.2f below %s threshold %.2f", out[i].RelevanceScore, provider, g.threshold(provider))
		case maxScrape > 0 && scheduled >= maxScrape:
			md.SkipReason = fmt.Sprintf("scrape limit %d reached", maxScrape)
		default:
			scheduled++
			md.ShouldScrape = true
			md.ScrapePriority = scheduled
		}
	}
	return out
}

// queryTerms returns the distinct significant lowercase words of q.
func queryTerms(q string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, w := range wordsOf(strings.ToLower(q)) {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

func wordsOf(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func overlapRatio(text string, terms []string) float64 {
	words := map[string]bool{}
	for _, w := range wordsOf(text) {
		words[w] = true
	}
	hits := 0
	for _, t := range terms {
		if words[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
