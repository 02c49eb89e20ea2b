// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/research-agents/pkg/types"
)

// styleSpec describes the layout each report style must keep.
type styleSpec struct {
	Sections []string
	// Marker must appear in a valid report of this style.
	Marker string
	// Numbered requires at least minNumbered numbered list entries.
	Numbered bool
	Guidance string
	// Findings is the section that receives fallback facts.
	Findings string
}

const minNumbered = 3

var styles = map[types.ReportStyle]styleSpec{
	types.StyleSummary: {
		Sections: []string{"Overview", "Key Findings", "Conclusion"},
		Marker:   "Key Findings",
		Guidance: "A concise summary of roughly 500 to 900 words. Lead with the answer, then the evidence.",
		Findings: "Key Findings",
	},
	types.StyleTop10: {
		Sections: []string{"Overview", "Top 10", "Honorable Mentions", "Conclusion"},
		Numbered: true,
		Guidance: "A ranked list of exactly ten entries under Top 10, numbered 1 to 10, each with a bold name and two to four sentences of justification.",
		Findings: "Top 10",
	},
	types.StyleComprehensive: {
		Sections: []string{"Executive Summary", "Background", "Detailed Analysis", "Key Findings", "Implications", "Conclusion"},
		Marker:   "Executive Summary",
		Guidance: "An in-depth report. Every section should be substantive; use sub-headings, tables, and bullet lists where they help.",
		Findings: "Detailed Analysis",
	},
	types.StyleExecutive: {
		Sections: []string{"Executive Summary", "Key Takeaways", "Recommendations", "Risks"},
		Marker:   "Executive Summary",
		Guidance: "A brief for decision makers. Short paragraphs, bold key figures, and actionable recommendations.",
		Findings: "Key Takeaways",
	},
	types.StyleTechnical: {
		Sections: []string{"Overview", "Technical Details", "Analysis", "Limitations", "References"},
		Marker:   "Technical Details",
		Guidance: "A technical report for practitioners. Precise terminology, specifications, and methodology.",
		Findings: "Technical Details",
	},
}

func specFor(style types.ReportStyle) styleSpec {
	if s, ok := styles[style]; ok {
		return s
	}
	return styles[types.StyleSummary]
}

// dataTypes lists the capabilities present in the request.
func dataTypes(req Request) []string {
	var out []string
	if req.Research != nil {
		out = append(out, "research")
	}
	if req.YouTube != nil {
		out = append(out, "youtube")
	}
	if req.Weather != nil {
		out = append(out, "weather")
	}
	return out
}

// BaseTemplate renders the markdown skeleton for style. Capability
// sections are added for YouTube and weather data.
func BaseTemplate(req Request) string {
	ss := specFor(req.Style)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(req.Query))
	if req.DomainContext != "" {
		fmt.Fprintf(&b, "*Domain: %s*\n\n", req.DomainContext)
	}
	for _, s := range ss.Sections {
		fmt.Fprintf(&b, "## %s\n\n", s)
		if s == "Top 10" {
			for i := 1; i <= 10; i++ {
				fmt.Fprintf(&b, "%d. \n", i)
			}
			b.WriteString("\n")
		}
	}
	if req.YouTube != nil {
		b.WriteString("## Video Insights\n\n")
	}
	if req.Weather != nil {
		b.WriteString("## Weather Conditions\n\n")
	}
	if req.Research != nil {
		b.WriteString("## Sources\n\n")
	}
	return b.String()
}

func title(query string) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return "Research Report"
	}
	return "Research Report: " + q
}

const systemPrompt = `You are a meticulous research writer. You write well-structured markdown reports grounded only in the source material you are given. You never invent facts, figures, quotations, or sources. Cite sources inline as [n] using the numbers given in the source list.`

var draftTmpl = template.Must(template.New("draft").Parse(`Write a {{.Style}} report answering the query below.

Query: {{.Query}}
{{- if .Domain}}
Domain context: {{.Domain}}
{{- end}}
Data available: {{.DataTypes}}

Style requirements: {{.Guidance}}

Use this template. Keep every heading exactly as written and fill each section:

{{.Template}}
SOURCE MATERIAL:

{{.Content}}`))

var enhanceTmpl = template.Must(template.New("enhance").Parse(`Improve the {{.Style}} report below using only the source material that follows it.

Rules:
- Do not shorten, summarize, or remove existing content.
- Keep every heading.
- You may add short verbatim quotations from the sources, attributed with [n].
- Return the complete improved report in markdown and nothing else.

REPORT:

{{.Report}}

SOURCE MATERIAL:

{{.Content}}`))

var reviewTmpl = template.Must(template.New("review").Parse(`Review the report below against the source material. Correct any claim the sources do not support and add missing citations. Keep the structure, headings, and length. Return the complete corrected report in markdown and nothing else.

REPORT:

{{.Report}}

SOURCE MATERIAL:

{{.Content}}`))

var chunkTmpl = template.Must(template.New("chunk").Parse(`You are extending an existing {{.Style}} report with new source material (part {{.Part}} of {{.Parts}}).

Rules:
- Do NOT summarize, condense, rewrite, or replace existing content. Every existing sentence and heading must remain.
- Enhance section by section: add new facts, figures, and quotations from the new sources to the sections they belong in.
- You may add sub-headings or list entries inside existing sections.
- Cite new sources inline as [n].
- Return the complete report in markdown and nothing else.

Style requirements: {{.Guidance}}

CURRENT REPORT:

{{.Report}}

NEW SOURCE MATERIAL:

{{.Content}}`))

type promptData struct {
	Style     types.ReportStyle
	Query     string
	Domain    string
	DataTypes string
	Guidance  string
	Template  string
	Report    string
	Content   string
	Part      int
	Parts     int
}

func render(t *template.Template, d promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// numbered is an item with its stable citation number.
type numbered struct {
	N    int
	Item types.ResearchItem
}

// formatSources renders items as a numbered source list.
func formatSources(items []numbered) string {
	var b strings.Builder
	for _, n := range items {
		it := n.Item
		fmt.Fprintf(&b, "[%d] %s", n.N, it.Title)
		if it.SourceURL != "" {
			fmt.Fprintf(&b, " (%s)", it.SourceURL)
		}
		if it.IsPDFContent {
			b.WriteString(" [PDF]")
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(it.ReportContent()))
		b.WriteString("\n\n")
	}
	return b.String()
}

func formatYouTube(c *types.YouTubeCapture) string {
	if c == nil {
		return ""
	}
	m := c.Metadata
	return fmt.Sprintf("VIDEO: %s by %s (%s, %d seconds, %d views)\n%s\n\nTRANSCRIPT:\n%s\n\n",
		m.Title, m.Channel, c.URL, m.DurationSeconds, m.ViewCount, m.Description, c.Transcript)
}

func formatWeather(w *types.WeatherSnapshot) string {
	if w == nil {
		return ""
	}
	unit := "°C"
	if w.Units == "imperial" {
		unit = "°F"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "WEATHER for %s: %.1f%s (feels like %.1f%s), %s, humidity %d%%, wind %.1f\n",
		w.Location, w.Current.Temperature, unit, w.Current.FeelsLike, unit, w.Current.Description, w.Current.Humidity, w.Current.WindSpeed)
	for _, f := range w.Forecast {
		fmt.Fprintf(&b, "- %s: %.1f%s to %.1f%s, %s\n", f.Time.Format("Mon Jan 2"), f.TempMin, unit, f.TempMax, unit, f.Description)
	}
	b.WriteString("\n")
	return b.String()
}

// sourceList renders the trailing Sources section body.
func sourceList(items []numbered) string {
	var b strings.Builder
	for _, n := range items {
		if n.Item.SourceURL == "" {
			continue
		}
		fmt.Fprintf(&b, "%d. [%s](%s)\n", n.N, n.Item.Title, n.Item.SourceURL)
	}
	return b.String()
}
