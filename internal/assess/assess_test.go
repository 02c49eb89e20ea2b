// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/research-agents/pkg/types"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"single char", "a", 1},
		{"prose", strings.Repeat("abcd", 100), 100},
		{"dense", strings.Repeat("a|b|c|d|e|f|g\n", 50), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.in))
		})
	}
}

// itemsOfTokens returns n usable items whose estimate totals roughly tokens.
func itemsOfTokens(n, tokens int) []types.ResearchItem {
	per := tokens / n
	items := make([]types.ResearchItem, n)
	for i := range items {
		items[i] = types.ResearchItem{
			Title:          "T",
			ContentScraped: true,
			RawContent:     strings.Repeat("word ", (per-ItemOverhead-1)*4/5),
		}
	}
	return items
}

func TestAssess_Traditional(t *testing.T) {
	a := New(types.ReportConfig{})
	res := a.Assess(Input{
		Research: &types.ResearchPipeline{Items: []types.ResearchItem{
			{Title: "A", Snippet: strings.Repeat("x", 400)},
			{Title: "B", GarbageFiltered: true, RawContent: strings.Repeat("y", 4000)},
		}},
		Weather: &types.WeatherSnapshot{Location: "Paris"},
	})
	assert.Equal(t, types.StrategyTraditional, res.RecommendedStrategy)
	assert.False(t, res.RequiresChunking)
	assert.Equal(t, 1, res.EstimatedChunks)
	assert.Equal(t, SystemOverhead, res.Breakdown["system"])
	assert.Equal(t, 100+1+ItemOverhead, res.Breakdown["research"], "garbage items excluded")
	assert.Equal(t, WeatherOverhead, res.Breakdown["weather"])
	assert.Equal(t, SystemOverhead+151+WeatherOverhead, res.TotalEstimatedTokens)
	assert.Contains(t, res.Reasoning, "fit within")
}

func TestAssess_Iterative(t *testing.T) {
	a := New(types.ReportConfig{})
	res := a.Assess(Input{Research: &types.ResearchPipeline{Items: itemsOfTokens(40, 400_000)}})
	assert.Equal(t, types.StrategyIterative, res.RecommendedStrategy)
	assert.True(t, res.RequiresChunking)
	assert.Greater(t, res.TotalEstimatedTokens, SmallContextTokens)
	assert.Equal(t, max(2, res.TotalEstimatedTokens/ChunkTokens+1), res.EstimatedChunks)
	assert.GreaterOrEqual(t, res.EstimatedChunks, 2)
}

func TestAssess_ExactThreshold(t *testing.T) {
	a := &Assessor{Small: SystemOverhead + 100, Chunk: ChunkTokens}
	// 400 chars of prose is exactly 100 tokens.
	res := a.Assess(Input{Extra: strings.Repeat("abcd", 100)})
	assert.Equal(t, SystemOverhead+100, res.TotalEstimatedTokens)
	assert.Equal(t, types.StrategyTraditional, res.RecommendedStrategy)

	res = a.Assess(Input{Extra: strings.Repeat("abcd", 100) + "e"})
	assert.Equal(t, types.StrategyIterative, res.RecommendedStrategy)
	assert.Equal(t, 2, res.EstimatedChunks, "minimum of two chunks")
}

func TestYouTubeTokens(t *testing.T) {
	assert.Zero(t, YouTubeTokens(nil))
	c := &types.YouTubeCapture{Transcript: strings.Repeat("abcd", 10), Metadata: types.YouTubeMetadata{Title: "abc"}}
	assert.Equal(t, 10+1+YouTubeOverhead, YouTubeTokens(c))
}
