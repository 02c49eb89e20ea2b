// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes the final research report. Small contexts are
// written in one LLM pass; large contexts start from a base template that
// is enhanced chunk by chunk and never summarized.
package report

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/assess"
	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/internal/urlnorm"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Output token budgets per call.
const (
	draftMaxTokens   = 8000
	enhanceMaxTokens = 16000

	// defaultMaxOutputTokens is the gpt-4.1 reply limit.
	defaultMaxOutputTokens = 32_768

	// enhanceHeadroomTokens is room for what one chunk adds.
	enhanceHeadroomTokens = 4000
)

// Request is everything the writer needs for one report.
type Request struct {
	Query string
	Style types.ReportStyle
	// Quality selects optional enhancement (enhanced) and review (premium) passes.
	Quality types.QualityLevel
	// DomainContext is a short description from the domain classifier.
	DomainContext string

	Research *types.ResearchPipeline
	YouTube  *types.YouTubeCapture
	Weather  *types.WeatherSnapshot

	// Failed lists capabilities that were requested but produced nothing.
	Failed []string
}

// Writer produces reports. Safe for concurrent use.
type Writer struct {
	client   llm.Client
	assessor *assess.Assessor
	cfg      types.ReportConfig
	logger   *zap.Logger
}

// New returns a Writer. Zero token limits in cfg use the assess defaults.
func New(client llm.Client, cfg types.ReportConfig, logger *zap.Logger) *Writer {
	if cfg.SmallContextTokens <= 0 {
		cfg.SmallContextTokens = assess.SmallContextTokens
	}
	if cfg.ChunkTokens <= 0 {
		cfg.ChunkTokens = assess.ChunkTokens
	}
	if cfg.SafetyCeilingTokens <= 0 {
		cfg.SafetyCeilingTokens = assess.SafetyCeilingTokens
	}
	if cfg.QualityLevel == "" {
		cfg.QualityLevel = types.QualityStandard
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaultMaxOutputTokens
	}
	return &Writer{client: client, assessor: assess.New(cfg), cfg: cfg, logger: logging.OrNop(logger)}
}

// Assess exposes the routing decision for req.
func (w *Writer) Assess(req Request) types.ContextAssessment {
	return w.assessor.Assess(assess.Input{Research: req.Research, YouTube: req.YouTube, Weather: req.Weather})
}

// Write assesses the fused data and writes the report with the chosen
// strategy. Only cancellation and an empty request are returned as errors;
// LLM failures degrade to a deterministic report and are recorded in the
// artifact's generation metadata.
func (w *Writer) Write(ctx context.Context, req Request) (*types.ReportArtifact, error) {
	start := time.Now()
	if req.Research == nil && req.YouTube == nil && req.Weather == nil {
		return nil, fault.Errorf(fault.Validation, "report", "no data to report on")
	}
	if !types.ValidStyle(req.Style) {
		req.Style = types.StyleSummary
	}
	if req.Quality == "" {
		req.Quality = w.cfg.QualityLevel
	}

	a := w.Assess(req)
	log := w.logger.With(
		zap.String("style", string(req.Style)),
		zap.String("strategy", string(a.RecommendedStrategy)),
		zap.Int("tokens", a.TotalEstimatedTokens))
	log.Info("writing report", zap.String("reasoning", a.Reasoning))

	var art *types.ReportArtifact
	var err error
	if a.RecommendedStrategy == types.StrategyIterative {
		art, err = w.iterative(ctx, req, a, log)
	} else {
		art, err = w.traditional(ctx, req, log)
	}
	if err != nil {
		return nil, err
	}

	art.Style = req.Style
	art.SourceType = sourceType(req)
	art.QualityLevel = req.Quality
	art.ProcessingApproach = a.RecommendedStrategy
	art.ContextSizeTokens = a.TotalEstimatedTokens
	art.WordCount = len(strings.Fields(art.Text))
	md := art.GenerationMetadata
	md["assessment"] = a
	md["elapsed_seconds"] = time.Since(start).Seconds()
	if len(req.Failed) > 0 {
		md["failed_capabilities"] = req.Failed
	}
	if req.Research != nil {
		s := req.Research.Summary
		md["sources_blocked"] = s.Blocked
		if len(s.BlockReasons) > 0 {
			md["block_reasons"] = s.BlockReasons
		}
		md["sources_garbage_filtered"] = s.GarbageFiltered
	}
	metrics.ReportStrategy.WithLabelValues(string(a.RecommendedStrategy)).Inc()
	log.Info("report written",
		zap.Int("words", art.WordCount),
		zap.Float64("confidence", art.ConfidenceScore),
		zap.Duration("elapsed", time.Since(start)))
	return art, nil
}

// usable returns the report-eligible items in pipeline order, numbered for citation.
func usable(p *types.ResearchPipeline) []numbered {
	if p == nil {
		return nil
	}
	var out []numbered
	for _, it := range p.Items {
		if it.Usable() && strings.TrimSpace(it.ReportContent()) != "" {
			out = append(out, numbered{N: len(out) + 1, Item: it})
		}
	}
	return out
}

func sourceType(req Request) types.SourceType {
	switch dt := dataTypes(req); {
	case len(dt) > 1:
		return types.SourceMultiSource
	case req.YouTube != nil:
		return types.SourceYouTube
	case req.Weather != nil:
		return types.SourceWeather
	default:
		return types.SourceResearch
	}
}

// content renders every input as prompt source material.
func content(items []numbered, yt *types.YouTubeCapture, wx *types.WeatherSnapshot) string {
	return formatYouTube(yt) + formatWeather(wx) + formatSources(items)
}

func (w *Writer) traditional(ctx context.Context, req Request, log *zap.Logger) (*types.ReportArtifact, error) {
	items := usable(req.Research)
	tmpl := BaseTemplate(req)
	ss := specFor(req.Style)
	src := content(items, req.YouTube, req.Weather)
	md := map[string]any{}
	calls := 0

	prompt, err := render(draftTmpl, promptData{
		Style:     req.Style,
		Query:     req.Query,
		Domain:    req.DomainContext,
		DataTypes: strings.Join(dataTypes(req), ", "),
		Guidance:  ss.Guidance,
		Template:  tmpl,
		Content:   src,
	})
	if err != nil {
		return nil, err
	}

	var text string
	for attempt := 0; attempt < 2; attempt++ {
		calls++
		out, err := w.client.Complete(ctx, llm.Request{
			Tier:        llm.TierStandard,
			System:      systemPrompt,
			User:        prompt,
			Temperature: 0.4,
			MaxTokens:   draftMaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fault.New(fault.Cancelled, "report", ctx.Err())
			}
			md["llm_error"] = err.Error()
			log.Warn("draft failed", zap.Error(err))
			break
		}
		out = strings.TrimSpace(out)
		problems := draftProblems(tmpl, out, req.Style)
		if len(problems) == 0 {
			text = out
			break
		}
		md["validation_problems"] = problems
		log.Warn("draft failed validation", zap.Strings("problems", problems), zap.Int("attempt", attempt+1))
		prompt += "\n\nYour previous answer was rejected: " + strings.Join(problems, "; ") + ". Keep every template heading."
	}

	fallback := text == ""
	if fallback {
		text = fallbackReport(tmpl, items, req, ss)
	}
	md["fallback"] = fallback

	if !fallback && req.Quality != types.QualityStandard {
		text, calls = w.polish(ctx, enhanceTmpl, text, src, req, calls, md, "enhancement")
		if req.Quality == types.QualityPremium {
			text, calls = w.polish(ctx, reviewTmpl, text, src, req, calls, md, "review")
		}
		if ctx.Err() != nil {
			return nil, fault.New(fault.Cancelled, "report", ctx.Err())
		}
	}
	text = withSources(text, items)
	md["llm_calls"] = calls

	sources := len(items) + boolInt(req.YouTube != nil) + boolInt(req.Weather != nil)
	return &types.ReportArtifact{
		Text:               text,
		ConfidenceScore:    traditionalConfidence(req, items, text),
		SourcesProcessed:   sources,
		GenerationMetadata: md,
	}, nil
}

// draftProblems validates a first draft against its template: headers
// retained and style markers present. Length and bold rules apply only to
// enhancement of an existing report.
func draftProblems(tmpl, out string, style types.ReportStyle) []string {
	if out == "" {
		return []string{"empty response"}
	}
	var problems []string
	for _, p := range Validate(tmpl, out, style) {
		if strings.HasPrefix(p, "length") || strings.HasPrefix(p, "bold") {
			continue
		}
		problems = append(problems, p)
	}
	return problems
}

// polish runs one optional enhancement or review pass. A failed or invalid
// pass keeps the previous text.
func (w *Writer) polish(ctx context.Context, t *template.Template, text, src string, req Request, calls int, md map[string]any, name string) (string, int) {
	if ctx.Err() != nil {
		return text, calls
	}
	prompt, err := render(t, promptData{Style: req.Style, Report: text, Content: src})
	if err != nil {
		md[name+"_error"] = err.Error()
		return text, calls
	}
	calls++
	out, err := w.client.Complete(ctx, llm.Request{
		Tier:        llm.TierStandard,
		System:      systemPrompt,
		User:        prompt,
		Temperature: 0.3,
		MaxTokens:   enhanceMaxTokens,
	})
	if err != nil {
		md[name+"_error"] = err.Error()
		return text, calls
	}
	out = strings.TrimSpace(out)
	if problems := Validate(text, out, req.Style); len(problems) > 0 {
		md[name+"_rejected"] = problems
		return text, calls
	}
	md[name+"_applied"] = true
	return out, calls
}

var sourcesHeaderRe = regexp.MustCompile(`(?mi)^##\s+(sources|references)\s*$`)

// withSources fills an empty Sources section, or appends one, with the
// numbered source list.
func withSources(text string, items []numbered) string {
	list := sourceList(items)
	if list == "" {
		return text
	}
	loc := sourcesHeaderRe.FindStringIndex(text)
	if loc == nil {
		return strings.TrimRight(text, "\n") + "\n\n## Sources\n\n" + list
	}
	rest := text[loc[1]:]
	if next := strings.Index(rest, "\n## "); next >= 0 {
		if strings.TrimSpace(rest[:next]) != "" {
			return text
		}
		return strings.TrimRight(text[:loc[1]], "\n") + "\n\n" + list + rest[next:]
	}
	if strings.TrimSpace(rest) != "" {
		return text
	}
	return strings.TrimRight(text[:loc[1]], "\n") + "\n\n" + list
}

// traditionalConfidence: base 0.5, up to +0.2 for the scraped share of
// sources, up to +0.1 for length, +0.1 for multiple sources.
func traditionalConfidence(req Request, items []numbered, text string) float64 {
	c := 0.5
	if len(items) > 0 {
		scraped := 0
		for _, n := range items {
			if n.Item.ContentScraped {
				scraped++
			}
		}
		c += 0.2 * float64(scraped) / float64(len(items))
	}
	c += math.Min(0.1, float64(len(strings.Fields(text)))/10000)
	if multiSource(req, items) {
		c += 0.1
	}
	return math.Min(0.95, round2(c))
}

// multiSource reports whether the report draws on more than one
// capability or on at least three distinct domains.
func multiSource(req Request, items []numbered) bool {
	if len(dataTypes(req)) > 1 {
		return true
	}
	domains := map[string]bool{}
	for _, n := range items {
		if d := urlnorm.Domain(n.Item.SourceURL); d != "" {
			domains[d] = true
		}
	}
	return len(domains) >= 3
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Save writes the report text to dir and returns the file path.
func Save(dir string, art *types.ReportArtifact, query string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}
	name := fmt.Sprintf("report_%s_%s.md", slug(query), now.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(art.Text), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	if s == "" {
		return "report"
	}
	return s
}
