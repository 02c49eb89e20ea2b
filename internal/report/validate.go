// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/research-agents/pkg/types"
)

// Validation thresholds for an enhanced report relative to its input.
const (
	MinLengthRatio    = 0.9
	MinHeaderRetained = 0.8
	MaxBoldLoss       = 0.3
)

var (
	headerRe   = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*\s*$`)
	numberedRe = regexp.MustCompile(`(?m)^\s*(?:#{1,6}\s*)?\d{1,2}[.)]\s+\S`)
	boldRe     = regexp.MustCompile(`\*\*[^*\n]+\*\*`)
)

// headers returns the normalized header texts of md.
func headers(md string) []string {
	var out []string
	for _, m := range headerRe.FindAllStringSubmatch(md, -1) {
		out = append(out, normalizeHeader(m[1]))
	}
	return out
}

func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.Trim(h, "*_ "))), " ")
}

// boldDensity is bold spans per thousand characters.
func boldDensity(md string) float64 {
	if len(md) == 0 {
		return 0
	}
	return float64(len(boldRe.FindAllString(md, -1))) * 1000 / float64(len(md))
}

// Validate checks an enhanced report against the report it was built from.
// It returns the list of failed rules; an empty list means valid.
func Validate(input, output string, style types.ReportStyle) []string {
	var problems []string
	if float64(len(output)) < MinLengthRatio*float64(len(input)) {
		problems = append(problems, fmt.Sprintf("length %d below %.0f%% of input %d", len(output), MinLengthRatio*100, len(input)))
	}

	in := headers(input)
	if len(in) > 0 {
		have := map[string]bool{}
		for _, h := range headers(output) {
			have[h] = true
		}
		kept := 0
		for _, h := range in {
			if have[h] {
				kept++
			}
		}
		if r := float64(kept) / float64(len(in)); r < MinHeaderRetained {
			problems = append(problems, fmt.Sprintf("only %d of %d headers retained", kept, len(in)))
		}
	}

	problems = append(problems, checkStyle(output, style)...)

	if bi := boldDensity(input); bi > 0 {
		if bo := boldDensity(output); bo < (1-MaxBoldLoss)*bi {
			problems = append(problems, fmt.Sprintf("bold density fell from %.2f to %.2f per 1000 chars", bi, bo))
		}
	}
	return problems
}

// checkStyle verifies the style-specific markers.
func checkStyle(md string, style types.ReportStyle) []string {
	ss := specFor(style)
	var problems []string
	if ss.Marker != "" && !strings.Contains(strings.ToLower(md), strings.ToLower(ss.Marker)) {
		problems = append(problems, fmt.Sprintf("missing %q", ss.Marker))
	}
	if ss.Numbered && len(numberedRe.FindAllString(md, -1)) < minNumbered {
		problems = append(problems, "missing numbered entries")
	}
	return problems
}
