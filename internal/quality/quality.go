// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package quality rejects low-value scraped text before any LLM call. The
// filter is deterministic: a weighted score over lexical, structural, and
// domain signals plus a set of red flags.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/internal/policy"
	"github.com/pdiddy/research-agents/internal/urlnorm"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Length bounds, in characters.
const (
	MinChars = 200
	MaxChars = 50000
)

// DefaultThreshold is the minimum score that survives filtering.
const DefaultThreshold = 0.5

// redFlagLimit is the number of red flags that marks content as garbage
// regardless of score.
const redFlagLimit = 2

// Score weights.
const (
	baseScore         = 0.5
	wUnique           = 0.2
	wDomain           = 0.15
	wReadability      = 0.15
	wStructure        = 0.2
	wKeywordInversion = 0.1
	wNavigation       = -0.1
	wSpam             = -0.15
	wRepetition       = -0.05
)

// Red flag limits.
const (
	minUniqueRatio   = 0.3
	maxRepetition    = 0.4
	maxNavigation    = 0.3
	maxSpam          = 0.2
	minSentenceWords = 3
	maxSentenceWords = 50
	dumpWords        = 200
	dumpSentences    = 5
)

var navTokens = map[string]bool{
	"home": true, "menu": true, "navigation": true, "login": true, "logout": true,
	"register": true, "contact": true, "privacy": true, "terms": true, "cookie": true,
	"cookies": true, "subscribe": true, "share": true, "tweet": true, "follow": true,
	"skip": true, "breadcrumb": true, "sitemap": true, "copyright": true, "next": true,
	"previous": true, "prev": true, "newsletter": true, "advertisement": true,
}

var stopwords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "have": true, "were": true,
	"been": true, "they": true, "their": true, "which": true, "would": true, "there": true,
	"about": true, "into": true, "than": true, "then": true, "also": true, "more": true,
	"will": true, "when": true, "what": true, "said": true, "some": true, "such": true,
}

var (
	sentenceEnd  = regexp.MustCompile(`[.!?]+(\s|$)`)
	keywordComma = regexp.MustCompile(`(?:\b[\p{L}\d]+\b\s*,\s*){6,}`)
	navPrefix    = regexp.MustCompile(`(?im)^\s*(home\s*[>»/|]|you are here|skip to (main )?content|back to top)`)
	vowelGroups  = regexp.MustCompile(`[aeiouy]+`)
)

// Analysis is the outcome of one quality check.
type Analysis struct {
	Length          int      `json:"length"`
	Words           int      `json:"words"`
	Sentences       int      `json:"sentences"`
	UniqueWordRatio float64  `json:"unique_word_ratio"`
	Repetition      float64  `json:"repetition"`
	Navigation      float64  `json:"navigation"`
	Spam            float64  `json:"spam"`
	DomainPrior     float64  `json:"domain_prior"`
	Readability     float64  `json:"readability"`
	Structure       float64  `json:"structure"`
	KeywordDensity  float64  `json:"keyword_density"`
	Score           float64  `json:"score"`
	RedFlags        []string `json:"red_flags,omitempty"`
	Garbage         bool     `json:"garbage"`
	Reason          string   `json:"reason,omitempty"`
}

// Filter scores scraped content.
type Filter struct {
	policy    *policy.Policy
	threshold float64
	logger    *zap.Logger
}

// New returns a Filter. A nil policy uses policy.Default; a threshold <= 0
// uses DefaultThreshold.
func New(pol *policy.Policy, threshold float64, logger *zap.Logger) *Filter {
	if pol == nil {
		pol = policy.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Filter{policy: pol, threshold: threshold, logger: logging.OrNop(logger)}
}

// IsGarbage reports whether content should be dropped, with the reason and score.
func (f *Filter) IsGarbage(content, sourceURL string) (bool, string, float64) {
	a := f.Analyze(content, sourceURL)
	return a.Garbage, a.Reason, a.Score
}

// Analyze scores content from sourceURL. Content outside [MinChars, MaxChars]
// is rejected before scoring.
func (f *Filter) Analyze(content, sourceURL string) Analysis {
	a := Analysis{Length: len(content)}
	switch {
	case a.Length < MinChars:
		a.Garbage, a.Reason = true, fmt.Sprintf("content too short (%d chars)", a.Length)
		return a
	case a.Length > MaxChars:
		a.Garbage, a.Reason = true, fmt.Sprintf("content too long (%d chars)", a.Length)
		return a
	}

	words := tokenize(content)
	sentences := splitSentences(content)
	a.Words = len(words)
	a.Sentences = len(sentences)
	if a.Words == 0 {
		a.Garbage, a.Reason = true, "no words"
		return a
	}

	freq := map[string]int{}
	for _, w := range words {
		freq[w]++
	}
	host := urlnorm.Host(sourceURL)

	a.UniqueWordRatio = float64(len(freq)) / float64(a.Words)
	a.Repetition = repetition(freq, a.Words)
	a.Navigation = navigation(words)
	a.Spam = spam(content, words)
	a.DomainPrior = f.policy.DomainPrior(host)
	a.Readability = readability(words, a.Sentences)
	avgLen := float64(a.Words) / math.Max(1, float64(a.Sentences))
	a.Structure = structure(content, a.Sentences, avgLen)
	a.KeywordDensity = keywordDensity(freq, a.Words)

	score := baseScore +
		wUnique*a.UniqueWordRatio +
		wDomain*a.DomainPrior +
		wReadability*a.Readability +
		wStructure*a.Structure +
		wKeywordInversion*(1-math.Min(1, a.KeywordDensity*10)) +
		wNavigation*a.Navigation +
		wSpam*a.Spam +
		wRepetition*a.Repetition
	a.Score = math.Max(0, math.Min(1, score))

	flag := func(cond bool, name string) {
		if cond {
			a.RedFlags = append(a.RedFlags, name)
		}
	}
	flag(a.UniqueWordRatio < minUniqueRatio, "low unique-word ratio")
	flag(a.Repetition > maxRepetition, "high repetition")
	flag(a.Navigation > maxNavigation, "navigation-heavy")
	flag(a.Spam > maxSpam, "spam patterns")
	flag(avgLen < minSentenceWords || avgLen > maxSentenceWords, "abnormal sentence length")
	flag(f.policy.IsLowQuality(host), "low-quality domain")
	flag(a.Words > dumpWords && a.Sentences < dumpSentences, "keyword dump")

	switch {
	case len(a.RedFlags) >= redFlagLimit:
		a.Garbage = true
		a.Reason = "red flags: " + strings.Join(a.RedFlags, ", ")
	case a.Score < f.threshold:
		a.Garbage = true
		a.Reason = fmt.Sprintf("quality score %.2f below threshold %.2f", a.Score, f.threshold)
	}
	return a
}

// Apply filters every scraped item in place and returns how many were
// rejected. PDF text and unscraped items are left alone.
func (f *Filter) Apply(items []types.ResearchItem) int {
	filtered := 0
	for i := range items {
		it := &items[i]
		if !it.ContentScraped || it.IsPDFContent || it.GarbageFiltered {
			continue
		}
		a := f.Analyze(it.RawContent, it.SourceURL)
		it.QualityScore = a.Score
		if !a.Garbage {
			continue
		}
		it.MarkGarbage(a.Reason, a.Score)
		filtered++
		metrics.GarbageFiltered.Inc()
		f.logger.Debug("garbage filtered",
			zap.String("url", it.SourceURL),
			zap.String("reason", a.Reason),
			zap.Float64("score", a.Score))
	}
	return filtered
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func splitSentences(s string) []string {
	var out []string
	for _, part := range sentenceEnd.Split(s, -1) {
		if len(strings.Fields(part)) > 0 {
			out = append(out, part)
		}
	}
	return out
}

// repetition is the share of word occurrences taken by content words that
// appear three or more times.
func repetition(freq map[string]int, total int) float64 {
	n := 0
	for w, c := range freq {
		if c >= 3 && len(w) >= 4 && !stopwords[w] {
			n += c
		}
	}
	return float64(n) / float64(total)
}

// navigation is the number of menu-like tokens per ten words, capped at 1.
func navigation(words []string) float64 {
	hits := 0
	for _, w := range words {
		if navTokens[w] {
			hits++
		}
	}
	return math.Min(1, float64(hits)/math.Max(1, float64(len(words))/10))
}

// spam counts keyword-comma runs, words repeated three times in a row, and
// navigation prefixes; each hit adds 0.1, capped at 1.
func spam(content string, words []string) float64 {
	hits := len(keywordComma.FindAllStringIndex(content, -1))
	hits += len(navPrefix.FindAllStringIndex(content, -1))
	for i := 2; i < len(words); i++ {
		if words[i] == words[i-1] && words[i] == words[i-2] {
			hits++
		}
	}
	return math.Min(1, 0.1*float64(hits))
}

// readability maps the Flesch reading ease onto [0,1].
func readability(words []string, sentences int) float64 {
	if sentences == 0 {
		return 0
	}
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}
	ease := 206.835 - 1.015*float64(len(words))/float64(sentences) - 84.6*float64(syllables)/float64(len(words))
	return math.Max(0, math.Min(1, ease/100))
}

func countSyllables(w string) int {
	n := len(vowelGroups.FindAllStringIndex(w, -1))
	if n > 1 && strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") {
		n--
	}
	return max(n, 1)
}

// structure rewards sentence counts, paragraph breaks, and an average
// sentence length of 10 to 25 words.
func structure(content string, sentences int, avgLen float64) float64 {
	s := 0.0
	switch {
	case avgLen >= 10 && avgLen <= 25:
		s += 0.4
	case avgLen >= 5 && avgLen <= 35:
		s += 0.2
	}
	switch {
	case sentences >= 5:
		s += 0.3
	case sentences >= 2:
		s += 0.15
	}
	paragraphs := 0
	for _, p := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	if paragraphs >= 2 {
		s += 0.3
	}
	return s
}

// keywordDensity is the share of words taken by the most frequent content word.
func keywordDensity(freq map[string]int, total int) float64 {
	type kv struct {
		w string
		c int
	}
	var top []kv
	for w, c := range freq {
		if len(w) >= 4 && !stopwords[w] {
			top = append(top, kv{w, c})
		}
	}
	if len(top) == 0 {
		return 0
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].c != top[j].c {
			return top[i].c > top[j].c
		}
		return top[i].w < top[j].w
	})
	return float64(top[0].c) / float64(total)
}
