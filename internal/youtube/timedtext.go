// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package youtube

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/httputil"
)

// timedTextBase is the caption endpoint. Declared as a var so tests can
// substitute an httptest server.
var timedTextBase = "https://www.youtube.com/api/timedtext"

// TimedText fetches json3 caption tracks. Manual tracks are tried in
// preference order before auto-generated ones.
type TimedText struct {
	Client     *http.Client
	MaxRetries int
}

type json3 struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

var errNoTrack = errors.New("no caption track")

// Transcript implements TranscriptFetcher.
func (t *TimedText) Transcript(ctx context.Context, videoID string, langs []string) (Transcript, error) {
	if len(langs) == 0 {
		langs = DefaultLangs
	}
	var lastErr error = errNoTrack
	for _, generated := range []bool{false, true} {
		for _, lang := range langs {
			segs, err := t.fetch(ctx, videoID, lang, generated)
			if err != nil {
				if ctx.Err() != nil {
					return Transcript{}, err
				}
				if !errors.Is(err, errNoTrack) {
					lastErr = err
				}
				continue
			}
			return Transcript{
				Segments:     segs,
				Language:     languageName(lang),
				LanguageCode: lang,
				IsGenerated:  generated,
			}, nil
		}
	}
	return Transcript{}, fmt.Errorf("no transcript in %s: %w", strings.Join(langs, ", "), lastErr)
}

func (t *TimedText) fetch(ctx context.Context, videoID, lang string, generated bool) ([]string, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", lang)
	q.Set("fmt", "json3")
	if generated {
		q.Set("kind", "asr")
	}
	var doc json3
	err := httputil.GetJSON(ctx, t.Client, timedTextBase+"?"+q.Encode(), nil, &doc, t.MaxRetries, "youtube transcript")
	if err != nil {
		// A 404 or an empty 200 body is how the endpoint reports a
		// missing track.
		if fault.IsKind(err, fault.ProviderPermanent) {
			return nil, errNoTrack
		}
		return nil, err
	}
	var segs []string
	for _, ev := range doc.Events {
		var b strings.Builder
		for _, s := range ev.Segs {
			b.WriteString(s.UTF8)
		}
		if line := strings.TrimSpace(html.UnescapeString(b.String())); line != "" {
			segs = append(segs, line)
		}
	}
	if len(segs) == 0 {
		return nil, errNoTrack
	}
	return segs, nil
}

// languageName returns the English name of a BCP 47 tag, or the tag.
func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
