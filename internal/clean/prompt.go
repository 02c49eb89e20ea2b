// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package clean

import (
	"bytes"
	"text/template"
)

const systemPrompt = `You clean scraped web text for a research pipeline. You remove boilerplate and never summarize, paraphrase, or shorten the main content.`

// singlePromptTmpl cleans one document.
var singlePromptTmpl = template.Must(template.New("single").Parse(`Clean the following text scraped from {{.URL}}{{if .Topic}} for research on "{{.Topic}}"{{end}}.

Remove:
- navigation menus, breadcrumbs, and link lists
- social sharing prompts and follow buttons
- cookie notices, legal footers, and copyright lines
- advertisements, newsletter prompts, and promotional text
- "related articles" and "recommended" blocks
{{- if .PDF}}

This text was extracted from a PDF document. Keep the full body, including headings, tables, and references. Remove only obvious site chrome such as repeated page headers or download banners.
{{- end}}

Preserve exactly:
- headlines and section headings
- every body paragraph
- quotations, with their attribution
- numbers, dates, names, and statistics

Return the cleaned text only, with no commentary.

TEXT:
{{.Content}}
`))

// batchPromptTmpl cleans several documents in one call.
var batchPromptTmpl = template.Must(template.New("batch").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`Clean each of the {{len .Items}} texts below. They were scraped from web pages{{if .Topic}} for research on "{{.Topic}}"{{end}}.

For every text remove navigation menus, social prompts, cookie and legal notices, advertisements, and related-article blocks. Preserve headlines, body paragraphs, quotations, and numeric facts exactly. For texts marked PDF, keep the full body and remove only obvious site chrome. Do not summarize.

Return the {{len .Items}} cleaned texts in the same order, separated by a line containing only {{.Separator}}. Return nothing else.
{{range $i, $it := .Items}}
=== TEXT {{inc $i}}{{if $it.PDF}} (PDF){{end}} from {{$it.URL}} ===
{{$it.Content}}
{{end}}`))

type promptDoc struct {
	URL     string
	Topic   string
	Content string
	PDF     bool
}

func renderSingle(d promptDoc) (string, error) {
	var buf bytes.Buffer
	if err := singlePromptTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderBatch(topic string, docs []promptDoc) (string, error) {
	var buf bytes.Buffer
	err := batchPromptTmpl.Execute(&buf, struct {
		Topic     string
		Separator string
		Items     []promptDoc
	}{topic, ItemSeparator, docs})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
