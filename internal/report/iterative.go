// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/assess"
	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/pkg/types"
)

const (
	// minReportShare is the smallest share of the ceiling a condensed
	// report may be cut to.
	minReportShare = 5

	// steadySpread is the largest per-chunk time spread that earns the
	// consistency bonus.
	steadySpread = 30 * time.Second

	factChars = 300
)

// ChunkStat records one iterative pass.
type ChunkStat struct {
	Index          int      `json:"index"`
	Items          int      `json:"items"`
	Dropped        int      `json:"dropped,omitempty"`
	Condensed      bool     `json:"condensed,omitempty"`
	ContextDropped bool     `json:"context_dropped,omitempty"`
	Tokens         int      `json:"estimated_tokens"`
	Enhanced       bool     `json:"enhanced"`
	Fallback       bool     `json:"fallback,omitempty"`
	Problems       []string `json:"problems,omitempty"`
	Error          string   `json:"error,omitempty"`
	InputLength    int      `json:"input_length"`
	OutputLength   int      `json:"output_length"`
	Seconds        float64  `json:"seconds"`
}

func (w *Writer) iterative(ctx context.Context, req Request, a types.ContextAssessment, log *zap.Logger) (*types.ReportArtifact, error) {
	items := usable(req.Research)
	ss := specFor(req.Style)
	chunks := Partition(SortForChunking(items), w.cfg.ChunkTokens)
	if len(chunks) == 0 {
		// Only YouTube or weather data: one pass carries it.
		chunks = [][]numbered{nil}
	}

	base := BaseTemplate(req)
	current := withNotice(base, len(chunks), a.TotalEstimatedTokens)
	baseLen := len(current)
	log.Info("iterative report", zap.Int("chunks", len(chunks)), zap.Int("items", len(items)))

	var stats []ChunkStat
	var durations []time.Duration
	enhanced, fallbacks, processed, dropped, maxTokens := 0, 0, 0, 0, 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.Cancelled, "report", err)
		}
		t0 := time.Now()
		var yt *types.YouTubeCapture
		var wx *types.WeatherSnapshot
		if i == 0 {
			yt, wx = req.YouTube, req.Weather
		}
		plan := Optimize(current, chunk, yt, wx, w.cfg.SafetyCeilingTokens)
		st := ChunkStat{
			Index:          i + 1,
			Items:          len(plan.Items),
			Dropped:        plan.Dropped,
			Condensed:      plan.Condensed,
			ContextDropped: plan.ContextDropped,
			Tokens:         plan.Tokens,
			InputLength:    len(plan.Report),
		}
		dropped += plan.Dropped
		maxTokens = max(maxTokens, plan.Tokens)
		if len(plan.Items) == 0 && plan.YouTube == nil && plan.Weather == nil {
			st.OutputLength = len(current)
			stats = append(stats, st)
			continue
		}

		next, err := w.enhanceChunk(ctx, plan, req, ss, i+1, len(chunks), &st)
		if err != nil {
			return nil, err
		}
		if st.Enhanced {
			enhanced++
		} else {
			fallbacks++
		}
		processed += len(plan.Items)
		current = next
		st.OutputLength = len(current)
		d := time.Since(t0)
		st.Seconds = d.Seconds()
		durations = append(durations, d)
		stats = append(stats, st)
		log.Debug("chunk processed",
			zap.Int("chunk", i+1),
			zap.Int("items", len(plan.Items)),
			zap.Int("tokens", plan.Tokens),
			zap.Bool("enhanced", st.Enhanced),
			zap.Duration("elapsed", d))
	}
	current = withSources(current, items)

	md := map[string]any{
		"iterative_notice":       true,
		"chunks":                 len(chunks),
		"chunk_stats":            stats,
		"enhancement_iterations": enhanced,
		"fallback_enhancements":  fallbacks,
		"items_processed":        processed,
		"items_dropped":          dropped,
		"max_call_tokens":        maxTokens,
		"base_template_length":   baseLen,
		"llm_calls":              enhanced + fallbacks - countNoCall(stats),
	}
	sources := len(items) + boolInt(req.YouTube != nil) + boolInt(req.Weather != nil)
	return &types.ReportArtifact{
		Text:               current,
		ConfidenceScore:    iterativeConfidence(processed, durations, enhanced),
		SourcesProcessed:   sources,
		GenerationMetadata: md,
	}, nil
}

// countNoCall counts passes that fell back without reaching the model.
func countNoCall(stats []ChunkStat) int {
	n := 0
	for _, s := range stats {
		if s.Fallback && s.Error == "" && len(s.Problems) == 0 {
			n++
		}
	}
	return n
}

// enhanceChunk runs one enhancement call and validates it, falling back
// to a deterministic splice of the chunk's facts.
func (w *Writer) enhanceChunk(ctx context.Context, plan Plan, req Request, ss styleSpec, part, parts int, st *ChunkStat) (string, error) {
	prompt, err := render(chunkTmpl, promptData{
		Style:    req.Style,
		Guidance: ss.Guidance,
		Report:   plan.Report,
		Content:  content(plan.Items, plan.YouTube, plan.Weather),
		Part:     part,
		Parts:    parts,
	})
	if err != nil {
		return "", err
	}
	budget, ok := w.enhanceBudget(plan.Report)
	if !ok {
		// No reply within the model limit could keep the report intact.
		st.Fallback = true
		return FallbackEnhance(plan.Report, plan.Items, plan.YouTube, plan.Weather, ss), nil
	}
	out, err := w.client.Complete(ctx, llm.Request{
		Tier:        llm.TierStandard,
		System:      systemPrompt,
		User:        prompt,
		Temperature: 0.3,
		MaxTokens:   budget,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fault.New(fault.Cancelled, "report", ctx.Err())
		}
		st.Error = err.Error()
	} else {
		out = strings.TrimSpace(out)
		problems := Validate(plan.Report, out, req.Style)
		if len(problems) == 0 {
			st.Enhanced = true
			return out, nil
		}
		st.Problems = problems
	}
	st.Fallback = true
	return FallbackEnhance(plan.Report, plan.Items, plan.YouTube, plan.Weather, ss), nil
}

// enhanceBudget sizes an enhancement reply from the report it must return.
// ok is false when even the model limit is below the shortest reply that
// passes the length check.
func (w *Writer) enhanceBudget(report string) (tokens int, ok bool) {
	n := assess.EstimateTokens(report)
	if float64(n)*MinLengthRatio > float64(w.cfg.MaxOutputTokens) {
		return 0, false
	}
	return min(w.cfg.MaxOutputTokens, max(enhanceMaxTokens, n+n/2+enhanceHeadroomTokens)), true
}

// withNotice inserts the iterative-processing notice after the title.
func withNotice(report string, chunks, tokens int) string {
	notice := fmt.Sprintf("> **Note:** This report was built with iterative processing. About %d tokens of source material were read in %d parts; each part extended the report without replacing earlier content.\n\n", tokens, chunks)
	return insertAfterTitle(report, notice)
}

func insertAfterTitle(report, text string) string {
	if strings.HasPrefix(report, "# ") {
		if i := strings.Index(report, "\n\n"); i >= 0 {
			return report[:i+2] + text + report[i+2:]
		}
	}
	return text + report
}

// SortForChunking orders items by relevance (descending), PDFs first on
// ties, then shorter content first.
func SortForChunking(items []numbered) []numbered {
	out := append([]numbered(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Item, out[j].Item
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.IsPDFContent != b.IsPDFContent {
			return a.IsPDFContent
		}
		return len(a.ReportContent()) < len(b.ReportContent())
	})
	return out
}

// Partition packs items into chunks of at most limit estimated tokens. An
// item is never split; one larger than limit gets a chunk of its own.
func Partition(items []numbered, limit int) [][]numbered {
	var chunks [][]numbered
	var cur []numbered
	tokens := 0
	for _, n := range items {
		t := assess.ItemTokens(n.Item)
		if len(cur) > 0 && tokens+t > limit {
			chunks = append(chunks, cur)
			cur, tokens = nil, 0
		}
		cur = append(cur, n)
		tokens += t
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// Plan is the optimized input for one chunk call.
type Plan struct {
	Report         string
	Items          []numbered
	YouTube        *types.YouTubeCapture
	Weather        *types.WeatherSnapshot
	Tokens         int
	Dropped        int
	Condensed      bool
	ContextDropped bool
}

func (p *Plan) others() int {
	t := assess.SystemOverhead + assess.YouTubeTokens(p.YouTube) + assess.WeatherTokens(p.Weather)
	for _, n := range p.Items {
		t += assess.ItemTokens(n.Item)
	}
	return t
}

func (p *Plan) total() int {
	return assess.EstimateTokens(p.Report) + p.others()
}

// Optimize fits one chunk call under ceiling estimated tokens. In order it
// condenses the middle of the current report, drops the lowest-scored
// items, and finally drops YouTube and weather context.
func Optimize(report string, items []numbered, yt *types.YouTubeCapture, wx *types.WeatherSnapshot, ceiling int) Plan {
	p := Plan{Report: report, Items: append([]numbered(nil), items...), YouTube: yt, Weather: wx}

	if p.total() > ceiling {
		allowed := max(ceiling-p.others(), ceiling/minReportShare)
		if assess.EstimateTokens(p.Report) > allowed {
			p.Report = Condense(p.Report, allowed, true)
			p.Condensed = true
		}
	}
	for p.total() > ceiling && len(p.Items) > 1 {
		p.dropLowest()
	}
	if p.total() > ceiling && (p.YouTube != nil || p.Weather != nil) {
		p.YouTube, p.Weather = nil, nil
		p.ContextDropped = true
	}
	for p.total() > ceiling && len(p.Items) > 0 {
		p.dropLowest()
	}
	if p.total() > ceiling {
		p.Report = Condense(p.Report, ceiling-p.others(), false)
		p.Condensed = true
	}
	p.Tokens = p.total()
	return p
}

func (p *Plan) dropLowest() {
	lo := len(p.Items) - 1
	for i := len(p.Items) - 1; i >= 0; i-- {
		if p.Items[i].Item.RelevanceScore < p.Items[lo].Item.RelevanceScore {
			lo = i
		}
	}
	p.Items = append(p.Items[:lo], p.Items[lo+1:]...)
	p.Dropped++
}

type section struct {
	header string // full header line, "" for the preamble
	body   string
}

func splitSections(md string) []section {
	var out []section
	cur := section{}
	var body strings.Builder
	for _, line := range strings.SplitAfter(md, "\n") {
		if strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ") {
			cur.body = body.String()
			out = append(out, cur)
			cur = section{header: line}
			body.Reset()
			continue
		}
		body.WriteString(line)
	}
	cur.body = body.String()
	return append(out, cur)
}

const condenseNotice = "> **Note:** Parts of the existing report were condensed to fit the model context for this pass.\n\n"

// Condense shortens md to about maxTokens by cutting the middle of section
// bodies. Every header and the title are kept; with keepSummary the
// Executive Summary section is kept whole.
func Condense(md string, maxTokens int, keepSummary bool) string {
	budget := int(float64(max(maxTokens, 1)) * 3.5)
	secs := splitSections(md)

	fixed := len(condenseNotice)
	var cut []int
	for i, s := range secs {
		fixed += len(s.header)
		switch {
		case i == 0 && keepSummary:
			fixed += len(s.body)
		case keepSummary && strings.Contains(strings.ToLower(s.header), "executive summary"):
			fixed += len(s.body)
		default:
			cut = append(cut, i)
		}
	}
	per := 0
	if len(cut) > 0 {
		per = max(0, (budget-fixed)/len(cut))
	}
	for _, i := range cut {
		secs[i].body = cutMiddle(secs[i].body, per)
	}

	var b strings.Builder
	for _, s := range secs {
		b.WriteString(s.header)
		b.WriteString(s.body)
	}
	return insertAfterTitle(b.String(), condenseNotice)
}

// cutMiddle keeps the head and tail of s within limit bytes.
func cutMiddle(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	marker := fmt.Sprintf("\n[... %d characters condensed ...]\n\n", len(s)-limit)
	keep := limit - len(marker)
	if keep <= 0 {
		return "\n"
	}
	head := keep / 2
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	tail := len(s) - (keep - head)
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	return s[:head] + marker + s[tail:]
}

// FallbackEnhance splices bullet facts from items and context into the
// findings section of report, keeping all existing text.
func FallbackEnhance(report string, items []numbered, yt *types.YouTubeCapture, wx *types.WeatherSnapshot, ss styleSpec) string {
	var b strings.Builder
	if yt != nil {
		fmt.Fprintf(&b, "- **Video: %s** (%s): %s\n", yt.Metadata.Title, yt.Metadata.Channel, excerpt(yt.Transcript, factChars))
	}
	if wx != nil {
		fmt.Fprintf(&b, "- **Weather in %s**: %.1f, %s\n", wx.Location, wx.Current.Temperature, wx.Current.Description)
	}
	for _, n := range items {
		fmt.Fprintf(&b, "- **%s** [%d]: %s\n", strings.TrimSpace(n.Item.Title), n.N, excerpt(n.Item.ReportContent(), factChars))
	}
	facts := b.String()
	if facts == "" {
		return report
	}
	return insertIntoSection(report, ss.Findings, facts)
}

// fallbackReport builds a complete report from the template without a model.
func fallbackReport(tmpl string, items []numbered, req Request, ss styleSpec) string {
	return FallbackEnhance(tmpl, items, req.YouTube, req.Weather, ss)
}

// insertIntoSection appends text at the end of the named section, before
// Sources, or at the end of the report.
func insertIntoSection(report, name, text string) string {
	lower := strings.ToLower(report)
	at := -1
	if i := strings.Index(lower, "## "+strings.ToLower(name)); i >= 0 {
		if j := strings.Index(lower[i+3:], "\n## "); j >= 0 {
			at = i + 3 + j + 1
		} else {
			at = len(report)
		}
	} else if i := sourcesHeaderRe.FindStringIndex(report); i != nil {
		at = i[0]
	}
	if at < 0 || at == len(report) {
		return strings.TrimRight(report, "\n") + "\n\n" + text
	}
	head := strings.TrimRight(report[:at], "\n")
	return head + "\n\n" + text + "\n" + report[at:]
}

// excerpt returns up to n bytes of s, cut at a sentence end when possible.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if i := strings.LastIndex(s[:cut], ". "); i > n/2 {
		return s[:i+1]
	}
	return s[:cut] + "..."
}

// iterativeConfidence: base 0.8, up to +0.15 for items processed, +0.05
// for steady chunk times, up to +0.10 for enhancement iterations, capped
// at 0.95.
func iterativeConfidence(items int, durations []time.Duration, iterations int) float64 {
	c := 0.8 + math.Min(0.15, float64(items)*0.01)
	if len(durations) > 0 {
		lo, hi := durations[0], durations[0]
		for _, d := range durations {
			lo, hi = min(lo, d), max(hi, d)
		}
		if hi-lo < steadySpread {
			c += 0.05
		}
	}
	c += math.Min(0.10, float64(iterations)*0.02)
	return math.Min(0.95, round2(c))
}
