// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/research-agents/pkg/types"
)

const article = `Researchers at the national laboratory reported on Tuesday that a new class of perovskite tandem cells converted more than thirty percent of incoming sunlight into electricity. The result was measured under standard test conditions and confirmed by an independent group.

The team spent four years refining the interface between the two absorbing layers. Earlier designs lost much of their output within weeks because moisture crept into the crystal structure and broke it apart.

Industry analysts said the figure matters because module efficiency sets the cost of every installed watt. A panel that produces more power from the same area needs less glass, less aluminium, and less labour on the roof.

Several manufacturers have announced pilot lines, although none has committed to mass production yet. Investors remain cautious after a decade in which promising laboratory records rarely survived the move to the factory floor.

The researchers plan to publish long-term stability data next spring. If the cells keep most of their performance after a year outdoors, commercial products could reach the market before the end of the decade.`

func TestAnalyze_GoodArticle(t *testing.T) {
	f := New(nil, 0, zaptest.NewLogger(t))
	a := f.Analyze(article, "https://www.nature.com/articles/solar")

	assert.False(t, a.Garbage, a.Reason)
	assert.Empty(t, a.RedFlags)
	assert.GreaterOrEqual(t, a.Score, DefaultThreshold)
	assert.LessOrEqual(t, a.Score, 1.0)
	assert.Greater(t, a.UniqueWordRatio, 0.5)
	assert.Equal(t, 0.8, a.DomainPrior)
	assert.Greater(t, a.Sentences, 5)
}

func TestAnalyze_LengthBounds(t *testing.T) {
	f := New(nil, 0, nil)

	a := f.Analyze("Too short to matter.", "")
	assert.True(t, a.Garbage)
	assert.Contains(t, a.Reason, "too short")
	assert.Zero(t, a.Score)

	a = f.Analyze(strings.Repeat(article+"\n\n", 60), "")
	require.Greater(t, a.Length, MaxChars)
	assert.True(t, a.Garbage)
	assert.Contains(t, a.Reason, "too long")
}

func TestAnalyze_NavigationChrome(t *testing.T) {
	nav := strings.Repeat("Home | News | Sports | Login | Register | Contact | Privacy | Terms | Cookies | Subscribe | Share | Follow\n", 6)
	a := New(nil, 0, nil).Analyze(nav, "https://example.com/")

	assert.True(t, a.Garbage)
	assert.Contains(t, a.RedFlags, "navigation-heavy")
	assert.Contains(t, a.RedFlags, "low unique-word ratio")
	assert.Contains(t, a.Reason, "red flags")
}

func TestAnalyze_KeywordDump(t *testing.T) {
	dump := strings.Repeat("buy cheap shoes online best price discount ", 40)
	a := New(nil, 0, nil).Analyze(dump, "https://shop.example/")

	assert.True(t, a.Garbage)
	assert.Contains(t, a.RedFlags, "keyword dump")
}

func TestAnalyze_SpamPatterns(t *testing.T) {
	assert.Zero(t, spam(article, tokenize(article)))

	text := "Home > Blog > Shoes\nshoes, boots, sandals, heels, sneakers, loafers, slippers, clogs\nbuy buy buy now"
	assert.InDelta(t, 0.3, spam(text, tokenize(text)), 1e-9)
}

func TestAnalyze_SingleRedFlagIsNotEnough(t *testing.T) {
	a := New(nil, 0, nil).Analyze(article, "https://www.pinterest.com/pin/1")
	assert.Equal(t, []string{"low-quality domain"}, a.RedFlags)
	assert.False(t, a.Garbage)
}

func TestAnalyze_ScoreThreshold(t *testing.T) {
	a := New(nil, 1.5, nil).Analyze(article, "https://example.org/")
	assert.True(t, a.Garbage)
	assert.Contains(t, a.Reason, "below threshold 1.50")
}

func TestIsGarbage(t *testing.T) {
	garbage, reason, _ := New(nil, 0, nil).IsGarbage("tiny", "")
	assert.True(t, garbage)
	assert.Equal(t, "content too short (4 chars)", reason)
}

func TestApply_SkipsPDFAndUnscraped(t *testing.T) {
	items := []types.ResearchItem{
		{SourceURL: "https://example.org/good"},
		{SourceURL: "https://example.org/paper.pdf"},
		{SourceURL: "https://example.org/none", Snippet: "only a snippet"},
		{SourceURL: "https://example.org/tiny"},
	}
	items[0].MarkScraped(article, false)
	items[1].MarkScraped("short pdf text", true)
	items[3].MarkScraped("short page", false)

	n := New(nil, 0, zaptest.NewLogger(t)).Apply(items)
	assert.Equal(t, 1, n)

	assert.False(t, items[0].GarbageFiltered)
	assert.Greater(t, items[0].QualityScore, 0.0)
	assert.False(t, items[1].GarbageFiltered, "pdf text bypasses filtering")
	assert.False(t, items[2].GarbageFiltered)

	assert.True(t, items[3].GarbageFiltered)
	assert.False(t, items[3].ContentCleaned)
	assert.Equal(t, "short page", items[3].PreFilterContent)
	assert.Contains(t, items[3].FilterReason, "too short")
}

func TestCountSyllables(t *testing.T) {
	assert.Equal(t, 1, countSyllables("cat"))
	assert.Equal(t, 1, countSyllables("make"))
	assert.Equal(t, 3, countSyllables("banana"))
	assert.Equal(t, 1, countSyllables("rhythm"))
}
