// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdf

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubText struct {
	pages []string
	err   error
}

func (s stubText) ExtractPages([]byte) ([]string, error) { return s.pages, s.err }

func pdfServer(t *testing.T, body []byte, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(body)
	}))
}

func TestExtract_Success(t *testing.T) {
	ts := pdfServer(t, []byte("%PDF-fake"), nil)
	defer ts.Close()

	e := NewExtractor(ts.Client(), zaptest.NewLogger(t), WithTextExtractor(stubText{pages: []string{"  Page   one\ttext ", "", "Page two\n\n\n\ntext"}}))
	r := e.Extract(context.Background(), ts.URL+"/paper.pdf", 0)

	require.True(t, r.Success, r.ErrorReason)
	assert.Equal(t, "Page one text\n\nPage two\n\ntext", r.Text)
	assert.Equal(t, 3, r.PageCount)
	assert.Equal(t, len(r.Text), r.TextLength)
	assert.Equal(t, int64(9), r.PDFSizeBytes)
}

func TestExtract_CachesByURL(t *testing.T) {
	var calls int32
	ts := pdfServer(t, []byte("%PDF"), &calls)
	defer ts.Close()

	e := NewExtractor(ts.Client(), nil, WithTextExtractor(stubText{pages: []string{"text"}}))
	first := e.Extract(context.Background(), ts.URL+"/a.pdf", 0)
	second := e.Extract(context.Background(), ts.URL+"/a.pdf", 0)

	assert.True(t, first.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestExtract_SizeCapMidStream(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 2*1024*1024)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Chunked encoding hides the length so the cap applies while streaming.
		w.(http.Flusher).Flush()
		_, _ = w.Write(big)
	}))
	defer ts.Close()

	e := NewExtractor(ts.Client(), nil, WithTextExtractor(stubText{pages: []string{"never"}}))
	r := e.Extract(context.Background(), ts.URL+"/big.pdf", 1)
	assert.False(t, r.Success)
	assert.Contains(t, r.ErrorReason, "too large")
}

func TestExtract_ContentLengthOverCap(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 2*1024*1024)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(big)))
		_, _ = w.Write(big)
	}))
	defer ts.Close()

	e := NewExtractor(ts.Client(), nil, WithTextExtractor(stubText{pages: []string{"never"}}))
	r := e.Extract(context.Background(), ts.URL+"/big.pdf", 1)
	assert.False(t, r.Success)
	assert.Contains(t, r.ErrorReason, "too large")
}

func TestExtract_NoText(t *testing.T) {
	ts := pdfServer(t, []byte("%PDF"), nil)
	defer ts.Close()

	e := NewExtractor(ts.Client(), nil, WithTextExtractor(stubText{pages: []string{"   ", ""}}))
	r := e.Extract(context.Background(), ts.URL+"/scan.pdf", 0)
	assert.False(t, r.Success)
	assert.Equal(t, ReasonNoText, r.ErrorReason)
	assert.Equal(t, 2, r.PageCount)
	assert.Equal(t, 0, e.CacheSize(), "failures are not cached")
}

func TestExtract_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	r := NewExtractor(ts.Client(), nil).Extract(context.Background(), ts.URL+"/x.pdf", 0)
	assert.False(t, r.Success)
	assert.Contains(t, r.ErrorReason, "HTTP 403")
}

func TestExtract_ParserError(t *testing.T) {
	ts := pdfServer(t, []byte("%PDF"), nil)
	defer ts.Close()

	e := NewExtractor(ts.Client(), nil, WithTextExtractor(stubText{err: errors.New("bad xref")}))
	r := e.Extract(context.Background(), ts.URL+"/x.pdf", 0)
	assert.False(t, r.Success)
	assert.Contains(t, r.ErrorReason, "bad xref")
}

func TestPlainText_RejectsGarbage(t *testing.T) {
	_, err := PlainText{}.ExtractPages([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("https://a/x.pdf"), CacheKey("https://a/x.pdf"))
	assert.NotEqual(t, CacheKey("https://a/x.pdf"), CacheKey("https://a/y.pdf"))
	assert.Len(t, CacheKey("u"), 32)
}
