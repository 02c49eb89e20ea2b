// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"strings"

	"github.com/pdiddy/research-agents/internal/weather"
	"github.com/pdiddy/research-agents/internal/youtube"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Capability names.
const (
	CapResearch = "research"
	CapYouTube  = "youtube"
	CapWeather  = "weather"
)

var (
	weatherWords  = []string{"weather", "forecast", "temperature", "rain", "raining", "snow", "humidity", "sunny", "wind"}
	researchWords = []string{"research", "report on", "find out", "investigate", "compare", "and also", "news about", "analysis of"}
)

func containsWord(q string, words []string) bool {
	p := " " + q + " "
	for _, w := range words {
		if strings.Contains(p, " "+w+" ") || strings.Contains(p, " "+w+",") || strings.Contains(p, " "+w+"?") {
			return true
		}
	}
	return false
}

// ParseRequest turns free text into a JobRequest with keyword rules. A
// YouTube URL selects the YouTube collector; weather words select the
// weather collector; research is added when neither applies or when the
// text also asks for research.
func ParseRequest(text string) types.JobRequest {
	text = strings.TrimSpace(text)
	job := types.JobRequest{Query: text, ReportStyle: ParseStyle(text)}

	rest := text
	if u := youtube.FindURL(text); u != "" {
		job.YouTubeURL = u
		job.Capabilities = append(job.Capabilities, CapYouTube)
		rest = strings.TrimSpace(strings.Replace(text, u, "", 1))
	}
	lower := strings.ToLower(rest)
	if containsWord(lower, weatherWords) {
		job.Location = weather.ExtractLocation(rest)
		job.Capabilities = append(job.Capabilities, CapWeather)
	}
	if len(job.Capabilities) == 0 || containsWord(lower, researchWords) {
		job.Capabilities = append(job.Capabilities, CapResearch)
	}
	job.JobType = jobType(job.Capabilities)
	return job
}

func jobType(caps []string) types.JobType {
	if len(caps) != 1 {
		return types.JobMulti
	}
	switch caps[0] {
	case CapYouTube:
		return types.JobYouTube
	case CapWeather:
		return types.JobWeather
	default:
		return types.JobResearch
	}
}

// ParseStyle picks the report style named in text, defaulting to summary.
func ParseStyle(text string) types.ReportStyle {
	q := " " + strings.ToLower(strings.NewReplacer("-", " ", "_", " ").Replace(text)) + " "
	switch {
	case strings.Contains(q, " top 10 ") || strings.Contains(q, " top ten "):
		return types.StyleTop10
	case strings.Contains(q, " executive "):
		return types.StyleExecutive
	case strings.Contains(q, " technical "):
		return types.StyleTechnical
	case strings.Contains(q, " comprehensive ") || strings.Contains(q, " detailed ") ||
		strings.Contains(q, " in depth ") || strings.Contains(q, " thorough "):
		return types.StyleComprehensive
	default:
		return types.StyleSummary
	}
}

// researchQuery is the text handed to the research coordinator: the
// request without any YouTube URL.
func researchQuery(job types.JobRequest) string {
	q := job.Query
	if job.YouTubeURL != "" {
		q = strings.TrimSpace(strings.Replace(q, job.YouTubeURL, "", 1))
	}
	return q
}
