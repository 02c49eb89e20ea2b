// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package youtube captures a video's metadata and transcript. Metadata
// comes from the YouTube Data API; the transcript from the timed-text
// endpoint. Both are fetched in parallel, and a missing transcript is
// replaced by a placeholder instead of failing the capture.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/httputil"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/pkg/types"
)

// youtubeAPIBase is the Data API root. Declared as a var so tests can
// substitute an httptest server.
var youtubeAPIBase = "https://www.googleapis.com/youtube/v3"

// DefaultLangs is the transcript language preference when none is configured.
var DefaultLangs = []string{"en", "en-US", "en-GB"}

var (
	videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	urlRe     = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.|music\.)?(?:youtube\.com|youtu\.be)/[^\s<>"')]*`)
	isoDurRe  = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
)

// FindURL returns the first YouTube URL in text, or "".
func FindURL(text string) string {
	return urlRe.FindString(text)
}

// ExtractVideoID returns the 11-character id of a YouTube video URL.
// Supported forms: youtu.be/<id>, /watch?v=<id>, /shorts/<id>, /embed/<id>,
// /live/<id>, and /v/<id>.
func ExtractVideoID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s != "" && !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", invalidURL(raw)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(strings.TrimPrefix(host, "m."), "music.")
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = parts[0]
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case parts[0] == "watch":
			id = u.Query().Get("v")
		case len(parts) >= 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live" || parts[0] == "v"):
			id = parts[1]
		}
	}
	if !videoIDRe.MatchString(id) {
		return "", invalidURL(raw)
	}
	return id, nil
}

func invalidURL(raw string) error {
	return fault.Errorf(fault.Validation, "youtube", "Invalid YouTube URL: %q", raw)
}

// ParseISODuration converts an ISO-8601 duration such as PT1H2M3S to seconds.
func ParseISODuration(s string) (int, error) {
	m := isoDurRe.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		total += n * mult
	}
	return total, nil
}

// Transcript is a fetched caption track.
type Transcript struct {
	Segments     []string
	Language     string
	LanguageCode string
	IsGenerated  bool
}

// Text joins the segments into one string.
func (t Transcript) Text() string {
	return strings.Join(strings.Fields(strings.Join(t.Segments, " ")), " ")
}

// TranscriptFetcher returns a video's transcript in the first available
// preferred language.
type TranscriptFetcher interface {
	Transcript(ctx context.Context, videoID string, langs []string) (Transcript, error)
}

// Collector captures videos. Safe for concurrent use.
type Collector struct {
	Client      *http.Client
	APIKey      string
	Langs       []string
	Transcripts TranscriptFetcher
	MaxRetries  int
	logger      *zap.Logger
}

// New returns a Collector using the timed-text transcript fetcher.
func New(client *http.Client, cfg types.CollectorConfig, maxRetries int, logger *zap.Logger) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	langs := cfg.TranscriptLangs
	if len(langs) == 0 {
		langs = DefaultLangs
	}
	return &Collector{
		Client:      client,
		APIKey:      cfg.YouTubeAPIKey,
		Langs:       langs,
		Transcripts: &TimedText{Client: client, MaxRetries: maxRetries},
		MaxRetries:  maxRetries,
		logger:      logging.OrNop(logger),
	}
}

// Capture fetches metadata and transcript for the video at rawURL.
// Metadata failures fail the capture; transcript failures are replaced by
// a placeholder.
func (c *Collector) Capture(ctx context.Context, rawURL string) (*types.YouTubeCapture, error) {
	start := time.Now()
	id, err := ExtractVideoID(rawURL)
	if err != nil {
		return nil, err
	}
	if c.APIKey == "" {
		return nil, fault.Errorf(fault.Config, "youtube", "YouTube API key not configured")
	}

	var meta types.YouTubeMetadata
	var tr Transcript
	var trErr error
	var metaSecs, trSecs float64

	var g errgroup.Group
	g.Go(func() error {
		t0 := time.Now()
		defer func() { metaSecs = time.Since(t0).Seconds() }()
		var err error
		meta, err = c.videoInfo(ctx, id)
		return err
	})
	g.Go(func() error {
		t0 := time.Now()
		defer func() { trSecs = time.Since(t0).Seconds() }()
		tr, trErr = c.Transcripts.Transcript(ctx, id, c.Langs)
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fault.New(fault.Cancelled, "youtube", ctx.Err())
		}
		return nil, err
	}

	text := tr.Text()
	if trErr != nil || text == "" {
		reason := "no captions available"
		if trErr != nil {
			reason = trErr.Error()
		}
		c.logger.Warn("transcript unavailable", zap.String("video_id", id), zap.String("reason", reason))
		text = fmt.Sprintf("[Transcript unavailable: %s]", reason)
	} else {
		meta.Language = tr.Language
		meta.LanguageCode = tr.LanguageCode
		meta.IsGenerated = tr.IsGenerated
	}
	meta.Timing = map[string]float64{
		"metadata_seconds":   metaSecs,
		"transcript_seconds": trSecs,
		"total_seconds":      time.Since(start).Seconds(),
	}

	c.logger.Info("video captured",
		zap.String("video_id", id),
		zap.String("title", meta.Title),
		zap.Int("transcript_chars", len(text)))
	return &types.YouTubeCapture{
		URL:        rawURL,
		VideoID:    id,
		Transcript: text,
		Metadata:   meta,
	}, nil
}

type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title                string   `json:"title"`
			ChannelTitle         string   `json:"channelTitle"`
			ChannelID            string   `json:"channelId"`
			PublishedAt          string   `json:"publishedAt"`
			Description          string   `json:"description"`
			Tags                 []string `json:"tags"`
			DefaultLanguage      string   `json:"defaultLanguage"`
			DefaultAudioLanguage string   `json:"defaultAudioLanguage"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount    int64 `json:"viewCount,string"`
			LikeCount    int64 `json:"likeCount,string"`
			CommentCount int64 `json:"commentCount,string"`
		} `json:"statistics"`
	} `json:"items"`
}

func (c *Collector) videoInfo(ctx context.Context, id string) (types.YouTubeMetadata, error) {
	q := url.Values{}
	q.Set("part", "snippet,contentDetails,statistics")
	q.Set("id", id)
	q.Set("key", c.APIKey)

	var resp videosResponse
	if err := httputil.GetJSON(ctx, c.Client, youtubeAPIBase+"/videos?"+q.Encode(), nil, &resp, c.MaxRetries, "youtube video_info"); err != nil {
		return types.YouTubeMetadata{}, err
	}
	if len(resp.Items) == 0 {
		return types.YouTubeMetadata{}, fault.Errorf(fault.ProviderPermanent, "youtube video_info", "video %s not found", id)
	}
	v := resp.Items[0]
	secs, err := ParseISODuration(v.ContentDetails.Duration)
	if err != nil {
		c.logger.Debug("unparsed duration", zap.String("duration", v.ContentDetails.Duration))
	}
	lang := v.Snippet.DefaultAudioLanguage
	if lang == "" {
		lang = v.Snippet.DefaultLanguage
	}
	return types.YouTubeMetadata{
		Title:           v.Snippet.Title,
		Channel:         v.Snippet.ChannelTitle,
		ChannelID:       v.Snippet.ChannelID,
		DurationSeconds: secs,
		LanguageCode:    lang,
		ViewCount:       v.Statistics.ViewCount,
		LikeCount:       v.Statistics.LikeCount,
		CommentCount:    v.Statistics.CommentCount,
		PublishedAt:     v.Snippet.PublishedAt,
		Description:     v.Snippet.Description,
		Tags:            v.Snippet.Tags,
	}, nil
}
