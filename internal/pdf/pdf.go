// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdf downloads PDF documents under a size cap and extracts their
// text page by page. Results are cached by the MD5 of the URL.
package pdf

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/logging"
)

// DefaultMaxSizeMB is the download cap when the caller passes 0.
const DefaultMaxSizeMB = 50

// ReasonNoText is reported when a PDF parses but yields no text.
const ReasonNoText = "no extractable text (likely scanned)"

// TextExtractor turns PDF bytes into per-page text. The default
// implementation uses ledongthuc/pdf; tests supply a stub.
type TextExtractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// Result is the outcome of one extraction.
type Result struct {
	Success        bool          `json:"success"`
	Text           string        `json:"text,omitempty"`
	PageCount      int           `json:"page_count"`
	TextLength     int           `json:"text_length"`
	PDFSizeBytes   int64         `json:"pdf_size_bytes"`
	ProcessingTime time.Duration `json:"processing_time"`
	ErrorReason    string        `json:"error_reason,omitempty"`
	Cached         bool          `json:"cached,omitempty"`
}

// Extractor downloads and extracts PDFs. Safe for concurrent use.
type Extractor struct {
	client    *http.Client
	text      TextExtractor
	cache     *cache.Cache
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTextExtractor replaces the PDF parser.
func WithTextExtractor(t TextExtractor) Option { return func(e *Extractor) { e.text = t } }

// WithTimeout sets the download timeout (default 30s).
func WithTimeout(d time.Duration) Option { return func(e *Extractor) { e.timeout = d } }

// WithUserAgent sets the User-Agent header on downloads.
func WithUserAgent(ua string) Option { return func(e *Extractor) { e.userAgent = ua } }

// NewExtractor returns an Extractor. A nil client uses http.DefaultClient.
func NewExtractor(client *http.Client, logger *zap.Logger, opts ...Option) *Extractor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Extractor{
		client:    client,
		text:      PlainText{},
		cache:     cache.New(time.Hour, 10*time.Minute),
		timeout:   30 * time.Second,
		userAgent: "Mozilla/5.0 (compatible; research-agents/1.0)",
		logger:    logging.OrNop(logger),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CacheKey returns the cache key for url.
func CacheKey(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Extract downloads url (aborting once more than maxSizeMB has been read)
// and returns its text. maxSizeMB <= 0 selects DefaultMaxSizeMB. Failures
// are reported in the Result, never as a panic or error.
func (e *Extractor) Extract(ctx context.Context, url string, maxSizeMB int) Result {
	start := time.Now()
	key := CacheKey(url)
	if v, ok := e.cache.Get(key); ok {
		r := v.(Result)
		r.Cached = true
		r.ProcessingTime = time.Since(start)
		return r
	}

	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	limit := int64(maxSizeMB) * 1024 * 1024

	fail := func(size int64, format string, args ...any) Result {
		reason := fmt.Sprintf(format, args...)
		e.logger.Debug("pdf extraction failed", zap.String("url", url), zap.String("reason", reason))
		return Result{PDFSizeBytes: size, ProcessingTime: time.Since(start), ErrorReason: reason}
	}

	data, err := e.download(ctx, url, limit)
	if err != nil {
		return fail(int64(len(data)), "%v", err)
	}

	pages, err := e.text.ExtractPages(data)
	if err != nil {
		return fail(int64(len(data)), "parsing pdf: %v", err)
	}

	var parts []string
	for _, p := range pages {
		if t := normalizeWhitespace(p); t != "" {
			parts = append(parts, t)
		}
	}
	text := strings.Join(parts, "\n\n")
	if text == "" {
		r := fail(int64(len(data)), ReasonNoText)
		r.PageCount = len(pages)
		return r
	}

	r := Result{
		Success:        true,
		Text:           text,
		PageCount:      len(pages),
		TextLength:     len(text),
		PDFSizeBytes:   int64(len(data)),
		ProcessingTime: time.Since(start),
	}
	e.cache.Set(key, r, cache.DefaultExpiration)
	e.logger.Debug("pdf extracted", zap.String("url", url), zap.Int("pages", r.PageCount), zap.Int("chars", r.TextLength))
	return r
}

// ClearCache drops every cached result.
func (e *Extractor) ClearCache() { e.cache.Flush() }

// CacheSize returns the number of cached results.
func (e *Extractor) CacheSize() int { return e.cache.ItemCount() }

// download streams url into memory, stopping as soon as more than limit
// bytes have arrived.
func (e *Extractor) download(ctx context.Context, url string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("pdf too large: %d bytes exceeds %d", resp.ContentLength, limit)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return buf.Bytes(), fmt.Errorf("reading body: %w", err)
	}
	if n > limit {
		return buf.Bytes(), fmt.Errorf("pdf too large: exceeded %d bytes mid-stream", limit)
	}
	return buf.Bytes(), nil
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\v]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// PlainText extracts page text with ledongthuc/pdf.
type PlainText struct{}

// ExtractPages implements TextExtractor. Parser panics on malformed input
// are converted to errors.
func (PlainText) ExtractPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
