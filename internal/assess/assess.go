// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assess estimates the token size of fused research data and picks
// the report strategy: one traditional pass for small contexts, iterative
// chunk enhancement for large ones.
package assess

import (
	"fmt"
	"math"
	"strings"

	"github.com/pdiddy/research-agents/pkg/types"
)

// Token budget defaults.
const (
	SmallContextTokens  = 180_000
	ChunkTokens         = 150_000
	SafetyCeilingTokens = 240_000

	ItemOverhead    = 50
	YouTubeOverhead = 100
	WeatherOverhead = 350
	SystemOverhead  = 5_000

	proseCharsPerToken = 4.0
	denseCharsPerToken = 3.5

	// denseNewlineRatio marks text as structured when more than one
	// character in this many is a newline.
	denseNewlineRatio = 40
)

// EstimateTokens approximates the token count of s. Dense text (tables,
// lists, code) is estimated at 3.5 characters per token, prose at 4.
// Any non-empty string is at least one token.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	per := proseCharsPerToken
	if n := strings.Count(s, "\n"); n > 0 && len(s)/n < denseNewlineRatio {
		per = denseCharsPerToken
	}
	return max(1, int(math.Ceil(float64(len(s))/per)))
}

// ItemTokens estimates one research item including its metadata overhead.
func ItemTokens(it types.ResearchItem) int {
	return EstimateTokens(it.ReportContent()) + EstimateTokens(it.Title) + ItemOverhead
}

// YouTubeTokens estimates a capture including its metadata overhead.
func YouTubeTokens(c *types.YouTubeCapture) int {
	if c == nil {
		return 0
	}
	return EstimateTokens(c.Transcript) + EstimateTokens(c.Metadata.Title+" "+c.Metadata.Description) + YouTubeOverhead
}

// WeatherTokens estimates a weather snapshot. The structured reading is
// small and fixed, so only the overhead counts.
func WeatherTokens(w *types.WeatherSnapshot) int {
	if w == nil {
		return 0
	}
	return WeatherOverhead
}

// Input is the fused data to assess.
type Input struct {
	Research *types.ResearchPipeline
	YouTube  *types.YouTubeCapture
	Weather  *types.WeatherSnapshot
	Extra    string
}

// Assessor applies routing thresholds.
type Assessor struct {
	Small int
	Chunk int
}

// New returns an Assessor with the thresholds from cfg; zero values use
// the package defaults.
func New(cfg types.ReportConfig) *Assessor {
	a := &Assessor{Small: cfg.SmallContextTokens, Chunk: cfg.ChunkTokens}
	if a.Small <= 0 {
		a.Small = SmallContextTokens
	}
	if a.Chunk <= 0 {
		a.Chunk = ChunkTokens
	}
	return a
}

// Assess estimates in and recommends a strategy. A total at or below the
// small-context threshold is traditional.
func (a *Assessor) Assess(in Input) types.ContextAssessment {
	bd := map[string]int{"system": SystemOverhead}
	items := 0
	if in.Research != nil {
		for _, it := range in.Research.Items {
			if !it.Usable() {
				continue
			}
			bd["research"] += ItemTokens(it)
			items++
		}
	}
	if t := YouTubeTokens(in.YouTube); t > 0 {
		bd["youtube"] = t
	}
	if t := WeatherTokens(in.Weather); t > 0 {
		bd["weather"] = t
	}
	if t := EstimateTokens(in.Extra); t > 0 {
		bd["extra"] = t
	}
	total := 0
	for _, v := range bd {
		total += v
	}

	out := types.ContextAssessment{TotalEstimatedTokens: total, Breakdown: bd}
	if total <= a.Small {
		out.RecommendedStrategy = types.StrategyTraditional
		out.EstimatedChunks = 1
		out.Reasoning = fmt.Sprintf("%d estimated tokens from %d items fit within the %d-token single-pass limit",
			total, items, a.Small)
		return out
	}
	out.RecommendedStrategy = types.StrategyIterative
	out.RequiresChunking = true
	out.EstimatedChunks = max(2, total/a.Chunk+1)
	out.Reasoning = fmt.Sprintf("%d estimated tokens from %d items exceed the %d-token single-pass limit; processing in %d chunks of up to %d tokens",
		total, items, a.Small, out.EstimatedChunks, a.Chunk)
	return out
}
