// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/research-agents/internal/assess"
	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/pkg/types"
)

func item(n int, score float64) types.ResearchItem {
	return types.ResearchItem{
		SourceURL:      fmt.Sprintf("https://site%d.example/article", n),
		Title:          fmt.Sprintf("Source %02d", n),
		RelevanceScore: score,
		ContentScraped: true,
		RawContent:     strings.Repeat("abcd ", 200),
	}
}

func pipeline(items ...types.ResearchItem) *types.ResearchPipeline {
	return &types.ResearchPipeline{Items: items}
}

func summaryReq() Request {
	return Request{
		Query:    "AI chips",
		Style:    types.StyleSummary,
		Research: pipeline(item(1, 0.9), item(2, 0.8)),
	}
}

// draftFor fills the base template the way a well-behaved model would.
func draftFor(req Request) string {
	return strings.Replace(BaseTemplate(req), "## Key Findings\n\n", "## Key Findings\n\n- Chips got faster [1].\n- Prices fell [2].\n\n", 1)
}

func TestWrite_TraditionalDraft(t *testing.T) {
	req := summaryReq()
	var calls atomic.Int32
	client := llm.ClientFunc(func(_ context.Context, r llm.Request) (string, error) {
		calls.Add(1)
		assert.Equal(t, llm.TierStandard, r.Tier)
		assert.Contains(t, r.User, "## Key Findings")
		assert.Contains(t, r.User, "[1] Source 01 (https://site1.example/article)")
		return draftFor(req), nil
	})
	w := New(client, types.ReportConfig{}, zaptest.NewLogger(t))

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, types.StrategyTraditional, art.ProcessingApproach)
	assert.Equal(t, types.SourceResearch, art.SourceType)
	assert.Equal(t, types.QualityStandard, art.QualityLevel)
	assert.Contains(t, art.Text, "Chips got faster [1]")
	assert.Contains(t, art.Text, "## Sources\n\n1. [Source 01](https://site1.example/article)\n2. [Source 02](https://site2.example/article)")
	assert.Equal(t, false, art.GenerationMetadata["fallback"])
	assert.Equal(t, 1, art.GenerationMetadata["llm_calls"])
	assert.Equal(t, 2, art.SourcesProcessed)
	assert.Greater(t, art.WordCount, 0)
	assert.GreaterOrEqual(t, art.ConfidenceScore, 0.5)
}

func TestWrite_TraditionalRetriesInvalidDraft(t *testing.T) {
	req := summaryReq()
	var calls atomic.Int32
	client := llm.ClientFunc(func(_ context.Context, r llm.Request) (string, error) {
		if calls.Add(1) == 1 {
			return "Just some prose with no headings at all.", nil
		}
		assert.Contains(t, r.User, "Your previous answer was rejected")
		return draftFor(req), nil
	})
	w := New(client, types.ReportConfig{}, nil)

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, false, art.GenerationMetadata["fallback"])
	assert.NotEmpty(t, art.GenerationMetadata["validation_problems"])
	assert.Contains(t, art.Text, "Prices fell [2]")
}

func TestWrite_TraditionalFallsBackOnModelError(t *testing.T) {
	req := summaryReq()
	client := llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		return "", fault.Errorf(fault.ProviderPermanent, "llm", "quota exhausted")
	})
	w := New(client, types.ReportConfig{}, nil)

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, true, art.GenerationMetadata["fallback"])
	assert.Contains(t, art.GenerationMetadata["llm_error"], "quota exhausted")
	assert.Contains(t, art.Text, "# Research Report: AI chips")
	assert.Contains(t, art.Text, "- **Source 01** [1]:")
	assert.Less(t, strings.Index(art.Text, "**Source 01**"), strings.Index(art.Text, "## Conclusion"))
}

func qualityClient(t *testing.T, req Request, enhance, review func(string) string) (llm.Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	reportOf := func(user string) string {
		_, after, _ := strings.Cut(user, "REPORT:\n\n")
		before, _, _ := strings.Cut(after, "\n\nSOURCE MATERIAL:")
		return before
	}
	return llm.ClientFunc(func(_ context.Context, r llm.Request) (string, error) {
		calls.Add(1)
		switch {
		case strings.HasPrefix(r.User, "Write a"):
			return draftFor(req), nil
		case strings.HasPrefix(r.User, "Improve the"):
			return enhance(reportOf(r.User)), nil
		case strings.HasPrefix(r.User, "Review the"):
			return review(reportOf(r.User)), nil
		}
		return "", errors.New("unexpected prompt")
	}), &calls
}

func addToConclusion(s string) func(string) string {
	return func(report string) string {
		return strings.Replace(report, "## Conclusion\n\n", "## Conclusion\n\n"+s+"\n\n", 1)
	}
}

func TestWrite_EnhancedQualityAddsPass(t *testing.T) {
	req := summaryReq()
	req.Quality = types.QualityEnhanced
	client, calls := qualityClient(t, req, addToConclusion("Momentum is strong [2]."), nil)
	w := New(client, types.ReportConfig{}, nil)

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, true, art.GenerationMetadata["enhancement_applied"])
	assert.Contains(t, art.Text, "Momentum is strong [2].")
	assert.Equal(t, types.QualityEnhanced, art.QualityLevel)
}

func TestWrite_PremiumQualityReviews(t *testing.T) {
	req := summaryReq()
	req.Quality = types.QualityPremium
	client, calls := qualityClient(t, req,
		addToConclusion("Momentum is strong [2]."),
		addToConclusion("Reviewed against sources."))
	w := New(client, types.ReportConfig{}, nil)

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, art.GenerationMetadata["llm_calls"])
	assert.Equal(t, true, art.GenerationMetadata["review_applied"])
	assert.Contains(t, art.Text, "Momentum is strong [2].")
	assert.Contains(t, art.Text, "Reviewed against sources.")
}

func TestWrite_RejectsShrinkingEnhancement(t *testing.T) {
	req := summaryReq()
	req.Quality = types.QualityEnhanced
	client, _ := qualityClient(t, req, func(string) string { return "# Short" }, nil)
	w := New(client, types.ReportConfig{}, nil)

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, art.GenerationMetadata["enhancement_rejected"])
	assert.Contains(t, art.Text, "Chips got faster [1].")
}

func TestWrite_EmptyRequest(t *testing.T) {
	w := New(llm.ClientFunc(func(context.Context, llm.Request) (string, error) { return "", nil }), types.ReportConfig{}, nil)
	_, err := w.Write(context.Background(), Request{Query: "q"})
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestWrite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := New(llm.ClientFunc(func(ctx context.Context, _ llm.Request) (string, error) {
		return "", ctx.Err()
	}), types.ReportConfig{}, nil)

	_, err := w.Write(ctx, summaryReq())
	assert.True(t, fault.IsKind(err, fault.Cancelled))
}

func TestWrite_MultiSourceMetadata(t *testing.T) {
	req := summaryReq()
	req.Weather = &types.WeatherSnapshot{Location: "Paris", Units: "metric"}
	req.Failed = []string{"youtube"}
	req.Research.Summary.Blocked = 2
	client, _ := qualityClient(t, req, nil, nil)
	w := New(client, types.ReportConfig{}, nil)

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, types.SourceMultiSource, art.SourceType)
	assert.Equal(t, 3, art.SourcesProcessed)
	assert.Equal(t, []string{"youtube"}, art.GenerationMetadata["failed_capabilities"])
	assert.Equal(t, 2, art.GenerationMetadata["sources_blocked"])
	assert.Contains(t, art.Text, "## Weather Conditions")
}

// chunkClient appends one fact per call to the report it is given.
func chunkClient(t *testing.T, ceiling int) (llm.Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	return llm.ClientFunc(func(_ context.Context, r llm.Request) (string, error) {
		n := calls.Add(1)
		assert.LessOrEqual(t, assess.EstimateTokens(r.User), ceiling+assess.SystemOverhead)
		_, after, ok := strings.Cut(r.User, "CURRENT REPORT:\n\n")
		require.True(t, ok, "chunk prompt expected")
		current, _, _ := strings.Cut(after, "\n\nNEW SOURCE MATERIAL:")
		return strings.Replace(current, "## Sources", fmt.Sprintf("- Added fact %d.\n\n## Sources", n), 1), nil
	}), &calls
}

func TestWrite_IterativeNeverShrinks(t *testing.T) {
	cfg := types.ReportConfig{SmallContextTokens: 6000, ChunkTokens: 1000, SafetyCeilingTokens: 8000}
	var items []types.ResearchItem
	for i := 1; i <= 20; i++ {
		items = append(items, item(i, 1-float64(i)/100))
	}
	req := Request{Query: "AI chips", Style: types.StyleSummary, Research: pipeline(items...)}
	client, calls := chunkClient(t, cfg.SafetyCeilingTokens)
	w := New(client, cfg, zaptest.NewLogger(t))

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)

	md := art.GenerationMetadata
	assert.Equal(t, types.StrategyIterative, art.ProcessingApproach)
	assert.Equal(t, true, md["iterative_notice"])
	assert.Equal(t, 7, md["chunks"])
	assert.Equal(t, int32(7), calls.Load())
	assert.Equal(t, 7, md["enhancement_iterations"])
	assert.Equal(t, 0, md["fallback_enhancements"])
	assert.Equal(t, 20, md["items_processed"])
	assert.GreaterOrEqual(t, len(art.Text), md["base_template_length"].(int))
	assert.Contains(t, art.Text, "iterative processing")
	for n := 1; n <= 7; n++ {
		assert.Contains(t, art.Text, fmt.Sprintf("Added fact %d.", n))
	}
	assert.Contains(t, art.Text, "20. [Source 20](https://site20.example/article)")

	stats := md["chunk_stats"].([]ChunkStat)
	require.Len(t, stats, 7)
	for _, s := range stats {
		assert.LessOrEqual(t, s.Tokens, cfg.SafetyCeilingTokens)
		assert.GreaterOrEqual(t, s.OutputLength, s.InputLength)
	}
	assert.GreaterOrEqual(t, art.ConfidenceScore, 0.8)
	assert.LessOrEqual(t, art.ConfidenceScore, 0.95)
}

func TestWrite_IterativeFallbackKeepsContent(t *testing.T) {
	cfg := types.ReportConfig{SmallContextTokens: 5500, ChunkTokens: 700, SafetyCeilingTokens: 8000}
	req := Request{Query: "AI chips", Style: types.StyleSummary, Research: pipeline(item(1, 0.9), item(2, 0.8), item(3, 0.7))}
	client := llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		return "A summary that throws everything away.", nil
	})
	w := New(client, cfg, nil)

	art, err := w.Write(context.Background(), req)
	require.NoError(t, err)
	md := art.GenerationMetadata
	assert.Equal(t, 2, md["chunks"])
	assert.Equal(t, 2, md["fallback_enhancements"])
	assert.Equal(t, 0, md["enhancement_iterations"])
	for _, h := range []string{"## Overview", "## Key Findings", "## Conclusion", "## Sources"} {
		assert.Contains(t, art.Text, h)
	}
	for _, title := range []string{"**Source 01** [1]", "**Source 02** [2]", "**Source 03** [3]"} {
		assert.Contains(t, art.Text, title)
	}
	for _, s := range md["chunk_stats"].([]ChunkStat) {
		assert.True(t, s.Fallback)
		assert.NotEmpty(t, s.Problems)
	}
}

func TestEnhanceBudget(t *testing.T) {
	w := New(nil, types.ReportConfig{}, nil)
	tests := []struct {
		name   string
		report string
		want   int
		ok     bool
	}{
		{"short report gets the floor", "# Title\n\nShort.", enhanceMaxTokens, true},
		{"long report grows the budget", strings.Repeat("word ", 10000), 12500 + 6250 + enhanceHeadroomTokens, true},
		{"capped at the model limit", strings.Repeat("word ", 20000), defaultMaxOutputTokens, true},
		{"beyond the model limit", strings.Repeat("word ", 40000), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := w.enhanceBudget(tt.report)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.GreaterOrEqual(t, float64(got), MinLengthRatio*float64(assess.EstimateTokens(tt.report)))
			}
		})
	}
}

func TestEnhanceChunk_BudgetFollowsReport(t *testing.T) {
	report := "# AI Chips\n\n## Key Findings\n\n" + strings.Repeat("Chips keep getting faster each year. ", 2500)
	var maxTokens int
	client := llm.ClientFunc(func(_ context.Context, r llm.Request) (string, error) {
		maxTokens = r.MaxTokens
		return report + "\n- One more fact [1].", nil
	})
	w := New(client, types.ReportConfig{}, nil)
	req := Request{Query: "AI chips", Style: types.StyleSummary}
	plan := Plan{Report: report, Items: []numbered{{N: 1, Item: item(1, 0.9)}}}

	var st ChunkStat
	_, err := w.enhanceChunk(context.Background(), plan, req, specFor(req.Style), 1, 1, &st)
	require.NoError(t, err)
	assert.Greater(t, maxTokens, enhanceMaxTokens)
	assert.GreaterOrEqual(t, float64(maxTokens), MinLengthRatio*float64(assess.EstimateTokens(report)))
}

func TestEnhanceChunk_OversizedReportSkipsCall(t *testing.T) {
	var calls atomic.Int32
	client := llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		calls.Add(1)
		return "", nil
	})
	w := New(client, types.ReportConfig{MaxOutputTokens: 1000}, nil)
	report := "# AI Chips\n\n## Key Findings\n\n" + strings.Repeat("word ", 2000)
	req := Request{Query: "AI chips", Style: types.StyleSummary}
	plan := Plan{Report: report, Items: []numbered{{N: 1, Item: item(1, 0.9)}}}

	var st ChunkStat
	out, err := w.enhanceChunk(context.Background(), plan, req, specFor(req.Style), 1, 1, &st)
	require.NoError(t, err)
	assert.Zero(t, calls.Load())
	assert.True(t, st.Fallback)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.Problems)
	assert.GreaterOrEqual(t, len(out), len(report))
	assert.Equal(t, 1, countNoCall([]ChunkStat{st}))
}

func TestWrite_IterativeCancelled(t *testing.T) {
	cfg := types.ReportConfig{SmallContextTokens: 5500, ChunkTokens: 700, SafetyCeilingTokens: 8000}
	ctx, cancel := context.WithCancel(context.Background())
	client := llm.ClientFunc(func(ctx context.Context, _ llm.Request) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	w := New(client, cfg, nil)
	_, err := w.Write(ctx, Request{Query: "q", Research: pipeline(item(1, 0.9), item(2, 0.8), item(3, 0.7))})
	assert.True(t, fault.IsKind(err, fault.Cancelled))
}

func TestValidate(t *testing.T) {
	base := "# Title\n\n## Overview\n\nSome **bold** text here.\n\n## Key Findings\n\nFacts **one** and **two**.\n\n## Conclusion\n\nEnd.\n"
	tests := []struct {
		name   string
		output string
		style  types.ReportStyle
		want   string
	}{
		{"unchanged", base, types.StyleSummary, ""},
		{"extended", base + "\nMore **detail** with **emphasis**.\n", types.StyleSummary, ""},
		{"shortened", base[:len(base)/2], types.StyleSummary, "length"},
		{"headers lost", strings.NewReplacer("## Overview", "Overview", "## Conclusion", "Conclusion").Replace(base), types.StyleSummary, "headers retained"},
		{"bold stripped", strings.ReplaceAll(base, "**", "") + strings.Repeat(" pad", 10), types.StyleSummary, "bold density"},
		{"missing marker", strings.ReplaceAll(base, "Key Findings", "Main Points"), types.StyleSummary, "missing \"Key Findings\""},
		{"top 10 without numbers", base, types.StyleTop10, "numbered entries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := Validate(base, tt.output, tt.style)
			if tt.want == "" {
				assert.Empty(t, problems)
				return
			}
			assert.Contains(t, strings.Join(problems, "\n"), tt.want)
		})
	}
}

func TestBaseTemplate(t *testing.T) {
	req := Request{Query: "best laptops", Style: types.StyleTop10, Research: pipeline(), YouTube: &types.YouTubeCapture{}}
	tmpl := BaseTemplate(req)
	assert.True(t, strings.HasPrefix(tmpl, "# Research Report: best laptops\n\n"))
	assert.Contains(t, tmpl, "## Top 10\n\n1. \n")
	assert.Contains(t, tmpl, "10. \n")
	assert.Contains(t, tmpl, "## Video Insights")
	assert.NotContains(t, tmpl, "## Weather Conditions")
	assert.True(t, strings.HasSuffix(tmpl, "## Sources\n\n"))
	assert.Empty(t, checkStyle(tmpl, types.StyleTop10))
}

func numberedItems(items ...types.ResearchItem) []numbered {
	out := make([]numbered, len(items))
	for i, it := range items {
		out[i] = numbered{N: i + 1, Item: it}
	}
	return out
}

func TestSortForChunking(t *testing.T) {
	short := item(1, 0.5)
	short.RawContent = "short"
	pdf := item(2, 0.5)
	pdf.IsPDFContent = true
	long := item(3, 0.5)
	top := item(4, 0.9)

	got := SortForChunking(numberedItems(long, short, pdf, top))
	var order []int
	for _, n := range got {
		order = append(order, n.N)
	}
	assert.Equal(t, []int{4, 3, 2, 1}, order)
}

func TestPartition(t *testing.T) {
	big := item(9, 0.1)
	big.RawContent = strings.Repeat("abcd ", 2000)
	items := numberedItems(item(1, 0.9), item(2, 0.8), item(3, 0.7), big, item(4, 0.6))

	chunks := Partition(items, 1000)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 1, "an oversized item gets its own chunk")
	assert.Len(t, chunks[2], 1)
	assert.Empty(t, Partition(nil, 1000))
}

func TestOptimize_DropsLowestScored(t *testing.T) {
	report := "# T\n\n## Overview\n\nx\n"
	items := numberedItems(item(1, 0.9), item(2, 0.5), item(3, 0.7))

	p := Optimize(report, items, nil, nil, 5700)
	assert.Equal(t, 1, p.Dropped)
	assert.False(t, p.Condensed)
	require.Len(t, p.Items, 2)
	assert.Equal(t, 0.9, p.Items[0].Item.RelevanceScore)
	assert.Equal(t, 0.7, p.Items[1].Item.RelevanceScore)
	assert.LessOrEqual(t, p.Tokens, 5700)
	assert.Len(t, items, 3, "input untouched")
}

func TestOptimize_DropsContextBeforeLastItem(t *testing.T) {
	yt := &types.YouTubeCapture{Transcript: strings.Repeat("abcd ", 1600)}
	p := Optimize("# T\n", numberedItems(item(1, 0.9)), yt, nil, 6000)
	assert.True(t, p.ContextDropped)
	assert.Nil(t, p.YouTube)
	assert.Len(t, p.Items, 1)
	assert.LessOrEqual(t, p.Tokens, 6000)
}

func bigReport() string {
	var b strings.Builder
	b.WriteString("# Big\n\n## Executive Summary\n\nThe short answer.\n\n")
	for _, s := range []string{"Background", "Detailed Analysis", "Conclusion"} {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s, strings.Repeat("A long paragraph of findings. ", 500))
	}
	return b.String()
}

func TestOptimize_EnforcesCeiling(t *testing.T) {
	report := bigReport()
	p := Optimize(report, numberedItems(item(1, 0.9), item(2, 0.8), item(3, 0.7)), nil, nil, 6000)
	assert.True(t, p.Condensed)
	assert.LessOrEqual(t, p.Tokens, 6000)
	assert.Less(t, len(p.Items), 3)
	for _, h := range []string{"# Big", "## Executive Summary", "## Background", "## Detailed Analysis", "## Conclusion"} {
		assert.Contains(t, p.Report, h)
	}
}

func TestCondense(t *testing.T) {
	md := bigReport()
	out := Condense(md, 300, true)
	assert.LessOrEqual(t, assess.EstimateTokens(out), 300)
	assert.Contains(t, out, "## Executive Summary\n\nThe short answer.")
	assert.Contains(t, out, "characters condensed")
	assert.Contains(t, out, condenseNotice)
	assert.Equal(t, headers(md), headers(out))
	assert.True(t, strings.HasPrefix(out, "# Big\n\n"))
}

func TestFallbackEnhance(t *testing.T) {
	req := summaryReq()
	base := BaseTemplate(req)
	items := usable(req.Research)
	out := FallbackEnhance(base, items, nil, &types.WeatherSnapshot{Location: "Paris", Current: types.WeatherReading{Temperature: 18.5, Description: "light rain"}}, specFor(types.StyleSummary))

	for _, line := range strings.Split(strings.TrimSpace(base), "\n") {
		assert.Contains(t, out, line)
	}
	findings := strings.Index(out, "## Key Findings")
	conclusion := strings.Index(out, "## Conclusion")
	for _, s := range []string{"**Weather in Paris**: 18.5, light rain", "**Source 01** [1]", "**Source 02** [2]"} {
		i := strings.Index(out, s)
		assert.Greater(t, i, findings, s)
		assert.Less(t, i, conclusion, s)
	}
	assert.Equal(t, base, FallbackEnhance(base, nil, nil, nil, specFor(types.StyleSummary)))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b", excerpt("  a \n b ", 10))
	s := strings.Repeat("word ", 20) + "end. " + strings.Repeat("tail ", 40)
	got := excerpt(s, 150)
	assert.True(t, strings.HasSuffix(got, "end."), got)
	assert.True(t, strings.HasSuffix(excerpt(strings.Repeat("x", 400), 100), "..."))
}

func TestWithSources(t *testing.T) {
	items := numberedItems(item(1, 0.9))
	list := "1. [Source 01](https://site1.example/article)\n"

	assert.Equal(t, "# T\n\n## Sources\n\n"+list, withSources("# T\n\n## Sources", items))
	assert.Equal(t, "# T\n\n## Sources\n\n"+list+"\n## Appendix\n", withSources("# T\n\n## Sources\n\n## Appendix\n", items))
	assert.Equal(t, "# T\n\n## Sources\n\n"+list, withSources("# T", items))
	filled := "# T\n\n## Sources\n\n1. [Other](https://x.example)\n"
	assert.Equal(t, filled, withSources(filled, items))
	assert.Equal(t, "# T", withSources("# T", nil))
}

func TestTraditionalConfidence(t *testing.T) {
	items := numberedItems(item(1, 0.9), item(2, 0.8), item(3, 0.7))
	long := strings.Repeat("w ", 2000)
	assert.InDelta(t, 0.9, traditionalConfidence(Request{Research: pipeline()}, items, long), 1e-9)

	assert.InDelta(t, 0.55, traditionalConfidence(Request{Research: pipeline()}, nil, strings.Repeat("w ", 500)), 1e-9)

	snippetOnly := numberedItems(types.ResearchItem{SourceURL: "https://a.example", Snippet: "s"})
	assert.InDelta(t, 0.6, traditionalConfidence(Request{Research: pipeline(), Weather: &types.WeatherSnapshot{}}, snippetOnly, ""), 1e-9)
}

func TestIterativeConfidence(t *testing.T) {
	assert.InDelta(t, 0.8, iterativeConfidence(0, nil, 0), 1e-9)
	steady := []time.Duration{time.Second, 2 * time.Second}
	assert.InDelta(t, 0.95, iterativeConfidence(20, steady, 7), 1e-9)
	uneven := []time.Duration{time.Second, time.Minute}
	assert.InDelta(t, 0.86, iterativeConfidence(2, uneven, 2), 1e-9)
}

func TestSourceType(t *testing.T) {
	assert.Equal(t, types.SourceResearch, sourceType(Request{Research: pipeline()}))
	assert.Equal(t, types.SourceYouTube, sourceType(Request{YouTube: &types.YouTubeCapture{}}))
	assert.Equal(t, types.SourceWeather, sourceType(Request{Weather: &types.WeatherSnapshot{}}))
	assert.Equal(t, types.SourceMultiSource, sourceType(Request{Research: pipeline(), Weather: &types.WeatherSnapshot{}}))
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	path, err := Save(dir, &types.ReportArtifact{Text: "# Hello"}, "What's new in AI chips?", now)
	require.NoError(t, err)
	assert.Equal(t, "report_what-s-new-in-ai-chips_20260304_050607.md", path[len(dir)+1:])
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Hello", string(data))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "report", slug("???"))
	assert.Equal(t, "ai-trends", slug("  AI trends "))
	assert.LessOrEqual(t, len(slug(strings.Repeat("long query ", 10))), 40)
}
