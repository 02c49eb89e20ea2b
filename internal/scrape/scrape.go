// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scrape fetches web pages for research items. It gates every fetch
// through the per-run duplicate set, the static blacklist, the failure
// cache, and per-host rate limits, then pre-flights with HEAD, fetches with
// browser-like headers, strips boilerplate, and detects paywalls. PDF URLs
// are routed to the PDF extractor.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/internal/pdf"
	"github.com/pdiddy/research-agents/internal/policy"
	"github.com/pdiddy/research-agents/internal/urlnorm"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Defaults applied by New when the config leaves a field zero.
const (
	DefaultHeadTimeout = 8 * time.Second
	DefaultGetTimeout  = 15 * time.Second
	DefaultPDFTimeout  = 30 * time.Second
	DefaultMaxChars    = 50000
	DefaultMinInterval = 1 * time.Second
	DefaultMaxPerMin   = 20

	// minBodyBytes is the shortest response accepted as real content.
	minBodyBytes = 100

	// shortPageChars bounds the access-keyword paywall heuristic.
	shortPageChars = 1000

	// maxBodyBytes caps how much HTML is read.
	maxBodyBytes = 10 << 20

	highSecurityAttempts = 3
)

// Block reasons recorded on results and in the failure cache.
const (
	ReasonBlacklisted   = "blacklisted domain"
	ReasonCovertBlock   = "covert block: response too short"
	ReasonPaywall       = "paywall detected"
	ReasonBlockRedirect = "redirect to block page"
)

// highSecurityBackoff bounds the randomized wait between GET attempts to
// high-security hosts. Tests shrink it.
var highSecurityBackoff = [2]time.Duration{3 * time.Second, 6 * time.Second}

// userAgents are rotated across requests.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.4; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.67",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9,en-US;q=0.8",
	"en-US,en;q=0.8,de;q=0.5",
}

// blockedTypePrefixes are content types that are never scraped as HTML.
var blockedTypePrefixes = []string{
	"image/", "video/", "audio/",
	"application/octet-stream",
	"application/msword",
	"application/vnd.ms-",
	"application/vnd.openxmlformats-officedocument",
	"application/zip",
}

const academicReferer = "https://scholar.google.com/"

// Result is the outcome of one scrape.
type Result struct {
	Success        bool          `json:"success"`
	Content        string        `json:"content,omitempty"`
	StatusCode     int           `json:"status_code,omitempty"`
	ContentLength  int           `json:"content_length"`
	ProcessingTime time.Duration `json:"processing_time"`
	WasBlocked     bool          `json:"was_blocked"`
	BlockReason    string        `json:"block_reason,omitempty"`
	ErrorReason    string        `json:"error_reason,omitempty"`
	IsPDF          bool          `json:"is_pdf"`
	Duplicate      bool          `json:"duplicate,omitempty"`

	// Err carries the classified failure.
	Err error `json:"-"`

	// record and persistent tell Scrape how to cache a failure.
	record     bool
	persistent bool
}

// Scraper fetches pages. Safe for concurrent use.
type Scraper struct {
	cfg      types.ScrapeConfig
	getter   *http.Client
	header   *http.Client
	pdf      *pdf.Extractor
	policy   *policy.Policy
	failures *FailureCache
	limiter  *HostLimiter
	seen     *urlnorm.RunSet
	logger   *zap.Logger
}

// New builds a Scraper. A nil client uses a fresh http.Client; a nil
// policy uses policy.Default; a nil failure cache keeps an in-memory one;
// a nil extractor builds one on the same client.
func New(cfg types.ScrapeConfig, client *http.Client, pol *policy.Policy, failures *FailureCache, pdfx *pdf.Extractor, logger *zap.Logger) *Scraper {
	logger = logging.OrNop(logger)
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = DefaultHeadTimeout
	}
	if cfg.GetTimeout <= 0 {
		cfg.GetTimeout = DefaultGetTimeout
	}
	if cfg.PDFTimeout <= 0 {
		cfg.PDFTimeout = DefaultPDFTimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MaxPDFSizeMB <= 0 {
		cfg.MaxPDFSizeMB = pdf.DefaultMaxSizeMB
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxRequestsPerMinute == 0 {
		cfg.MaxRequestsPerMinute = DefaultMaxPerMin
	}
	if client == nil {
		client = &http.Client{}
	}
	if pol == nil {
		pol = policy.Default()
	}
	if failures == nil {
		failures, _ = NewFailureCache(context.Background(), nil, logger)
	}
	if pdfx == nil {
		pdfx = pdf.NewExtractor(client, logger, pdf.WithTimeout(cfg.PDFTimeout), pdf.WithUserAgent(userAgents[0]))
	}

	// HEAD must observe redirects instead of following them.
	header := *client
	header.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	return &Scraper{
		cfg:      cfg,
		getter:   client,
		header:   &header,
		pdf:      pdfx,
		policy:   pol,
		failures: failures,
		limiter:  NewHostLimiter(cfg.MinInterval, cfg.MaxRequestsPerMinute),
		seen:     urlnorm.NewRunSet(),
		logger:   logger,
	}
}

// Failures exposes the failure cache.
func (s *Scraper) Failures() *FailureCache { return s.failures }

// Seen exposes the per-run URL set.
func (s *Scraper) Seen() *urlnorm.RunSet { return s.seen }

// ResetSession forgets the per-run URL set. Failure caches are kept.
func (s *Scraper) ResetSession() { s.seen.Reset() }

// IsPDFURL reports whether raw points at a PDF by its path.
func IsPDFURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.Contains(strings.ToLower(raw), ".pdf")
	}
	return strings.Contains(strings.ToLower(u.Path), ".pdf")
}

// Scrape fetches rawURL and returns at most maxChars of text. maxChars <= 0
// uses the configured limit. Failures are reported in the Result.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, maxChars int) Result {
	start := time.Now()
	if maxChars <= 0 {
		maxChars = s.cfg.MaxChars
	}
	log := s.logger.With(zap.String("url", rawURL))

	r := s.scrape(ctx, rawURL, maxChars, log)
	if r.record {
		s.failures.Record(ctx, rawURL, r.ErrorReason, r.persistent)
	}
	r.ProcessingTime = time.Since(start)
	r.ContentLength = len(r.Content)

	switch {
	case r.Duplicate:
		metrics.Scrapes.WithLabelValues("duplicate").Inc()
	case r.WasBlocked:
		metrics.Scrapes.WithLabelValues("blocked").Inc()
		log.Debug("scrape blocked", zap.String("reason", r.BlockReason))
	case !r.Success:
		metrics.Scrapes.WithLabelValues("failed").Inc()
		log.Debug("scrape failed", zap.String("reason", r.ErrorReason))
	case r.IsPDF:
		metrics.Scrapes.WithLabelValues("pdf").Inc()
	default:
		metrics.Scrapes.WithLabelValues("success").Inc()
	}
	return r
}

func (s *Scraper) scrape(ctx context.Context, rawURL string, maxChars int, log *zap.Logger) Result {
	if _, err := s.seen.Claim(rawURL); err != nil {
		return Result{Duplicate: true, ErrorReason: "duplicate in run", Err: err}
	}

	if IsPDFURL(rawURL) {
		return s.scrapePDF(ctx, rawURL, maxChars)
	}

	host := urlnorm.Host(rawURL)
	if host == "" {
		return fail("invalid url", 0)
	}
	if s.policy.IsBlacklisted(host) {
		r := blocked(ReasonBlacklisted, 0)
		r.record, r.persistent = !s.failures.HasDomain(rawURL), true
		return r
	}
	if reason, scope, hit := s.failures.Check(rawURL); hit {
		return blocked(fmt.Sprintf("cached %s failure: %s", scope, reason), 0)
	}

	if err := s.limiter.Wait(ctx, host); err != nil {
		return cancelled(err)
	}

	highSecurity := s.policy.IsHighSecurity(host)
	if !highSecurity {
		if r, done := s.preflight(ctx, rawURL); done {
			return r
		}
	}

	attempts := 1
	if highSecurity {
		attempts = highSecurityAttempts
	}
	var last Result
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := highSecurityBackoff[0] + time.Duration(rand.Int64N(int64(highSecurityBackoff[1]-highSecurityBackoff[0])+1))
			log.Debug("retrying high-security host", zap.Int("attempt", attempt+1), zap.Duration("wait", wait))
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return cancelled(ctx.Err())
			case <-t.C:
			}
		}
		var retry bool
		last, retry = s.get(ctx, rawURL, host, maxChars, attempt)
		if !retry {
			return last
		}
	}
	return last
}

func blocked(reason string, status int) Result {
	return Result{
		WasBlocked:  true,
		BlockReason: reason,
		StatusCode:  status,
		ErrorReason: reason,
		Err:         fault.Errorf(fault.Blocked, "scrape", "%s", reason),
	}
}

// block returns a blocking failure to be cached.
func block(reason string, persistent bool, status int) Result {
	r := blocked(reason, status)
	r.record, r.persistent = true, persistent
	return r
}

// fail returns a URL-level failure to be cached.
func fail(reason string, status int) Result {
	kind := fault.FromStatus(status)
	if kind == fault.Unknown {
		kind = fault.ProviderTransient
	}
	return Result{ErrorReason: reason, StatusCode: status, Err: fault.Errorf(kind, "scrape", "%s", reason), record: true}
}

func cancelled(err error) Result {
	return Result{ErrorReason: err.Error(), Err: fault.New(fault.Cancelled, "scrape", err)}
}

func (s *Scraper) scrapePDF(ctx context.Context, rawURL string, maxChars int) Result {
	pr := s.pdf.Extract(ctx, rawURL, s.cfg.MaxPDFSizeMB)
	if !pr.Success {
		r := fail("pdf: "+pr.ErrorReason, 0)
		r.IsPDF = true
		return r
	}
	return Result{Success: true, IsPDF: true, Content: truncate(pr.Text, maxChars), StatusCode: http.StatusOK}
}

// preflight issues HEAD. done is true when the result is final.
func (s *Scraper) preflight(ctx context.Context, rawURL string) (Result, bool) {
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HeadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fail("invalid url: "+err.Error(), 0), true
	}
	s.setHeaders(req, urlnorm.Host(rawURL), 0)

	resp, err := s.header.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err()), true
		}
		return fail("head failed: "+err.Error(), 0), true
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	code := resp.StatusCode
	switch {
	case fault.Persistent(code):
		return block(fmt.Sprintf("HEAD %d", code), true, code), true
	case code == http.StatusTooManyRequests:
		return block("HEAD 429", false, code), true
	case code >= 300 && code < 400:
		if loc := resp.Header.Get("Location"); loc != "" {
			if pat, ok := s.policy.MatchBlockRedirect(rawURL, loc); ok {
				return block(fmt.Sprintf("%s (%s)", ReasonBlockRedirect, pat), true, code), true
			}
		}
	}

	ct := mediaType(resp.Header.Get("Content-Type"))
	if ct == "application/pdf" {
		return s.scrapePDF(ctx, rawURL, s.cfg.MaxChars), true
	}
	if blockedType(ct) {
		return fail("unsupported content type: "+ct, code), true
	}
	// Other statuses (405, 5xx) fall through to GET.
	return Result{}, false
}

// get issues GET. retry is true when a high-security host may be retried.
func (s *Scraper) get(ctx context.Context, rawURL, host string, maxChars, attempt int) (Result, bool) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GetTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(gctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail("invalid url: "+err.Error(), 0), false
	}
	s.setHeaders(req, host, attempt)

	resp, err := s.getter.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err()), false
		}
		return fail("get failed: "+err.Error(), 0), true
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	if final := resp.Request.URL; final.String() != req.URL.String() {
		if pat, ok := s.policy.MatchBlockRedirect(rawURL, final.String()); ok {
			return block(fmt.Sprintf("%s (%s)", ReasonBlockRedirect, pat), true, code), false
		}
	}
	switch {
	case fault.Persistent(code):
		return block(fmt.Sprintf("HTTP %d", code), true, code), true
	case code == http.StatusTooManyRequests:
		return block("HTTP 429", false, code), true
	case code >= 400:
		return fail(fmt.Sprintf("HTTP %d", code), code), code >= 500
	}

	ct := mediaType(resp.Header.Get("Content-Type"))
	if ct == "application/pdf" {
		return s.scrapePDF(ctx, rawURL, maxChars), false
	}
	if blockedType(ct) {
		return fail("unsupported content type: "+ct, code), false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return cancelled(ctx.Err()), false
		}
		return fail("reading body: "+err.Error(), code), true
	}
	if len(strings.TrimSpace(string(body))) < minBodyBytes {
		return block(ReasonCovertBlock, false, code), true
	}

	text := ExtractText(body, resp.Request.URL)
	if phrase, ok := s.policy.MatchPaywall(text); ok {
		return block(fmt.Sprintf("%s: %q", ReasonPaywall, phrase), true, code), false
	}
	if len(text) < shortPageChars && s.policy.CountAccessKeywords(text) >= 2 {
		return block(ReasonPaywall+": access wall", true, code), false
	}
	if text == "" {
		return block(ReasonCovertBlock, false, code), true
	}

	return Result{Success: true, Content: truncate(text, maxChars), StatusCode: code}, false
}

func (s *Scraper) setHeaders(req *http.Request, host string, attempt int) {
	ua := userAgents[rand.IntN(len(userAgents))]
	lang := acceptLanguages[attempt%len(acceptLanguages)]
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", lang)
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	if attempt > 0 {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	if s.policy.IsAcademic(host) {
		req.Header.Set("Referer", academicReferer)
		req.Header.Set("Sec-Fetch-Site", "cross-site")
	}
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mt
}

func blockedType(ct string) bool {
	for _, p := range blockedTypePrefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}
