// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"text/template"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/pkg/types"
)

var intentTmpl = template.Must(template.New("intent").Parse(`Decide which collectors should handle the request below.

Collectors:
{{.Capabilities}}
Rules proposed: {{.Proposed}}

Reply with JSON only:
{"capabilities": ["..."], "report_style": "summary|top_10|comprehensive|executive|technical", "location": ""}

Request: {{.Query}}
`))

type intentReply struct {
	Capabilities []string `json:"capabilities"`
	ReportStyle  string   `json:"report_style"`
	Location     string   `json:"location"`
}

// confirmIntent asks the model to confirm or adjust the rule-based job.
// Capabilities the model names must be registered and have their inputs:
// YouTube needs a URL already found in the text, weather needs a location.
func confirmIntent(ctx context.Context, client llm.Client, reg *Registry, job types.JobRequest) (types.JobRequest, error) {
	var buf bytes.Buffer
	if err := intentTmpl.Execute(&buf, map[string]any{
		"Capabilities": reg.Describe(),
		"Proposed":     strings.Join(job.Capabilities, ", "),
		"Query":        job.Query,
	}); err != nil {
		return job, err
	}
	out, err := client.Complete(ctx, llm.Request{Tier: llm.TierNano, User: buf.String(), Temperature: 0, MaxTokens: 200})
	if err != nil {
		return job, err
	}
	var r intentReply
	body := strings.TrimSpace(out)
	if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
		body = body[i : j+1]
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return job, fault.New(fault.ModelSpecific, "intent", err)
	}

	if job.Location == "" && r.Location != "" {
		job.Location = strings.TrimSpace(r.Location)
	}
	var caps []string
	for _, c := range r.Capabilities {
		c = strings.ToLower(strings.TrimSpace(c))
		if _, ok := reg.Get(c); !ok || slices.Contains(caps, c) {
			continue
		}
		if (c == CapYouTube && job.YouTubeURL == "") || (c == CapWeather && job.Location == "") {
			continue
		}
		caps = append(caps, c)
	}
	if len(caps) == 0 {
		return job, fault.Errorf(fault.ModelSpecific, "intent", "no usable capability in %v", r.Capabilities)
	}
	job.Capabilities = caps
	job.JobType = jobType(caps)
	if s := types.ReportStyle(r.ReportStyle); types.ValidStyle(s) && job.ReportStyle == types.StyleSummary {
		job.ReportStyle = s
	}
	return job, nil
}
