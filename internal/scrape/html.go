// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minReadableChars is the shortest readability output preferred over the
// full-page text.
const minReadableChars = 200

// boilerplate lists elements removed before text extraction.
const boilerplate = "script, style, noscript, nav, header, footer, aside, iframe, svg, form"

// blockElements end with a paragraph break in extracted text.
const blockElements = "p, div, section, article, li, h1, h2, h3, h4, h5, h6, tr, blockquote, pre, dd, dt, figcaption"

var (
	spaces    = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// ExtractText returns the readable text of an HTML page. The main article
// found by readability is preferred; otherwise the whole body minus
// boilerplate elements is used.
func ExtractText(body []byte, pageURL *url.URL) string {
	if pageURL != nil {
		if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil && article.Content != "" {
			if text := htmlText([]byte(article.Content)); len(text) >= minReadableChars {
				return text
			}
		}
	}
	return htmlText(body)
}

// htmlText strips boilerplate and returns block-separated text.
func htmlText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return collapse(string(body))
	}
	doc.Find(boilerplate).Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return collapse(root.Text())
}

// collapse normalizes whitespace: runs of spaces become one space, lines are
// trimmed, and blank-line runs shrink to a single paragraph break.
func collapse(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
