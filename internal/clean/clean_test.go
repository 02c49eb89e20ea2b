// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package clean

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/llm"
	"github.com/pdiddy/research-agents/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// dropChrome removes lines mentioning cookies, standing in for the model.
func dropChrome(s string) string {
	var kept []string
	for _, l := range strings.Split(strings.TrimSpace(s), "\n") {
		if !strings.Contains(strings.ToLower(l), "cookie") {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// fakeModel cleans single and batch prompts and records every prompt.
type fakeModel struct {
	mu        sync.Mutex
	prompts   []string
	failBatch bool
}

func (f *fakeModel) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.User)
	f.mu.Unlock()

	if req.Tier != llm.TierNano {
		return "", fmt.Errorf("unexpected tier %s", req.Tier)
	}
	if strings.Contains(req.User, "=== TEXT 1") {
		if f.failBatch {
			return "", fault.Errorf(fault.ModelSpecific, "llm", "malformed")
		}
		var out []string
		for _, block := range strings.Split(req.User, "=== TEXT ")[1:] {
			body := block[strings.Index(block, "===\n")+4:]
			out = append(out, dropChrome(body))
		}
		return strings.Join(out, "\n"+ItemSeparator+"\n"), nil
	}
	_, body, _ := strings.Cut(req.User, "\nTEXT:\n")
	return dropChrome(body), nil
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func scraped(url, content string, pdf bool) types.ResearchItem {
	it := types.ResearchItem{SourceURL: url}
	it.MarkScraped(content, pdf)
	return it
}

func TestCleanOne(t *testing.T) {
	m := &fakeModel{}
	c := New(m, Options{}, zaptest.NewLogger(t))

	out, err := c.CleanOne(context.Background(), "Headline\nWe use cookies.\nBody \"quoted\" text.", "energy", "https://a.example/story")
	require.NoError(t, err)
	assert.Equal(t, "Headline\nBody \"quoted\" text.", out)
	assert.Contains(t, m.prompts[0], `for research on "energy"`)
	assert.NotContains(t, m.prompts[0], "extracted from a PDF")

	_, err = c.CleanOne(context.Background(), "Page one text.", "", "https://a.example/paper.PDF?dl=1")
	require.NoError(t, err)
	assert.Contains(t, m.prompts[1], "extracted from a PDF")

	_, err = c.CleanOne(context.Background(), "   ", "", "")
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestCleanOne_EmptyOutputFails(t *testing.T) {
	c := New(llm.ClientFunc(func(context.Context, llm.Request) (string, error) { return "  ", nil }), Options{}, nil)
	_, err := c.CleanOne(context.Background(), "text", "", "")
	assert.True(t, fault.IsKind(err, fault.ModelSpecific))
}

func longText(chars int) string {
	var b strings.Builder
	for i := 0; b.Len() < chars; i++ {
		fmt.Fprintf(&b, "Sentence number %d carries a fact. ", i)
	}
	return b.String()
}

func TestCleanOne_ChunkedPartialFailure(t *testing.T) {
	text := longText(600000)
	require.Len(t, SplitChunks(text, ChunkChars), 3)

	var n int32
	c := New(llm.ClientFunc(func(_ context.Context, req llm.Request) (string, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return "", errors.New("boom")
		}
		return "cleaned chunk", nil
	}), Options{}, nil)

	out, err := c.CleanOne(context.Background(), text, "", "https://a.example/long")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "cleaned chunk"))
	assert.Contains(t, out, "Sentence number", "failed chunk keeps raw text")
}

func TestCleanOne_ChunkedMostlyFailing(t *testing.T) {
	var n int32
	c := New(llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		if atomic.AddInt32(&n, 1) <= 2 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}), Options{}, nil)

	_, err := c.CleanOne(context.Background(), longText(600000), "", "")
	assert.True(t, fault.IsKind(err, fault.ModelSpecific))
}

func TestCleanBatch_BatchMode(t *testing.T) {
	m := &fakeModel{}
	c := New(m, Options{BatchSize: 5, SkipPDFs: true}, zaptest.NewLogger(t))

	items := []types.ResearchItem{
		scraped("https://a.example/1", "First \"story\".\nAccept cookies here.", false),
		scraped("https://a.example/2", "Second story.", false),
		scraped("https://a.example/3.pdf", "PDF body.", true),
		{SourceURL: "https://a.example/4", Snippet: "not scraped"},
		scraped("https://a.example/5", "Third story.", false),
	}
	items[4].MarkGarbage("spam", 0.1)
	items = append(items, scraped("https://a.example/6", "Fourth story.\ncookie banner", false))

	summary, err := c.CleanBatch(context.Background(), items, "news")
	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Cleaned: 3, Skipped: 1}, summary)
	assert.Equal(t, 1, m.calls(), "one call for the whole batch")

	assert.True(t, items[0].ContentCleaned)
	assert.Equal(t, "First \"story\".", items[0].ScrapedContent)
	assert.Equal(t, &types.QuoteMetrics{QuotesBefore: 2, QuotesAfter: 2}, items[0].Metadata.QuoteMetrics)
	assert.Equal(t, len(items[0].RawContent), items[0].OriginalLength)
	assert.Equal(t, len("First \"story\"."), items[0].CleanedLength)

	assert.Equal(t, "Fourth story.", items[5].ScrapedContent)
	assert.False(t, items[2].ContentCleaned, "pdf skipped")
	assert.False(t, items[3].ContentCleaned)
	assert.False(t, items[4].ContentCleaned, "garbage is never cleaned")
}

func TestCleanBatch_FallsBackToIndividual(t *testing.T) {
	m := &fakeModel{failBatch: true}
	c := New(m, Options{BatchSize: 3}, nil)

	items := []types.ResearchItem{
		scraped("https://a.example/1", "One.", false),
		scraped("https://a.example/2", "Two.", false),
		scraped("https://a.example/3", "Three.", false),
	}
	summary, err := c.CleanBatch(context.Background(), items, "")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Cleaned)
	assert.Equal(t, 4, m.calls(), "one failed batch call plus three single calls")
	for _, it := range items {
		assert.True(t, it.ContentCleaned)
	}
}

func TestCleanBatch_MaxParallel(t *testing.T) {
	m := &fakeModel{}
	c := New(m, Options{MaxParallel: true, Concurrency: 2}, nil)

	items := []types.ResearchItem{
		scraped("https://a.example/1", "One.", false),
		scraped("https://a.example/2", "Two.", false),
		scraped("https://a.example/3", "Three.", true),
	}
	summary, err := c.CleanBatch(context.Background(), items, "")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Cleaned)
	assert.Equal(t, 3, m.calls())
	for _, p := range m.prompts {
		assert.NotContains(t, p, ItemSeparator)
	}
}

func TestCleanBatch_FailuresKeepRaw(t *testing.T) {
	c := New(llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
		return "", fault.Errorf(fault.ProviderPermanent, "llm", "unauthorized")
	}), Options{}, nil)

	items := []types.ResearchItem{scraped("https://a.example/1", "One.", false), scraped("https://a.example/2", "Two.", false)}
	summary, err := c.CleanBatch(context.Background(), items, "")
	require.NoError(t, err)
	assert.True(t, summary.HasFailures())
	assert.Equal(t, 2, summary.Total())
	assert.Equal(t, "One.", items[0].ReportContent())
}

func TestCleanBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &fakeModel{}
	items := []types.ResearchItem{scraped("https://a.example/1", "One.", false)}

	_, err := New(m, Options{}, nil).CleanBatch(ctx, items, "")
	assert.True(t, fault.IsKind(err, fault.Cancelled))
	assert.Zero(t, m.calls())
}

func TestParseBatch(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		n       int
		want    []string
		wantErr bool
	}{
		{"separator", "a\n" + ItemSeparator + "\nb", 2, []string{"a", "b"}, false},
		{"trailing separator", "a\n" + ItemSeparator + "\nb\n" + ItemSeparator + "\n", 2, []string{"a", "b"}, false},
		{"paragraph fallback", "a\n\nb\n\nc", 2, []string{"a", "b"}, false},
		{"single keeps paragraphs", "a\n\nb", 1, []string{"a\n\nb"}, false},
		{"too few", "a\n" + ItemSeparator + "\n", 2, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBatch(tt.out, tt.n)
			if tt.wantErr {
				assert.True(t, fault.IsKind(err, fault.ModelSpecific))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitChunks(t *testing.T) {
	text := longText(1000)
	chunks := SplitChunks(text, 300)
	require.Greater(t, len(chunks), 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch), 300)
		assert.True(t, strings.HasSuffix(ch, "."), "cut at a sentence end: %q", ch)
	}
	assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(strings.Fields(strings.Join(chunks, " ")), " "))

	assert.Equal(t, []string{"short"}, SplitChunks("short", 300))
}

func TestCountQuotes(t *testing.T) {
	assert.Equal(t, 4, CountQuotes(`"a" “b”`))
	assert.Equal(t, 0, CountQuotes("it's"))
}
