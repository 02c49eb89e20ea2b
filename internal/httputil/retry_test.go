// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	RetryBaseDelay = time.Millisecond
}

// searchAPI replies with the given statuses in order, repeating the last
// one, and records each request body it sees.
type searchAPI struct {
	mu       sync.Mutex
	statuses []int
	bodies   []string
}

func (a *searchAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	a.mu.Lock()
	a.bodies = append(a.bodies, string(b))
	i := min(len(a.bodies), len(a.statuses)) - 1
	code := a.statuses[i]
	a.mu.Unlock()
	w.WriteHeader(code)
	if code == http.StatusOK {
		io.WriteString(w, `{"results":[]}`)
	}
}

func (a *searchAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bodies)
}

func TestDoWithRetry(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []int
		maxRetries int
		wantStatus int
		wantCalls  int
	}{
		{"first answer used", []int{200}, 3, 200, 1},
		{"rate limited then ok", []int{429, 200}, 3, 200, 2},
		{"gateway errors then ok", []int{502, 503, 200}, 3, 200, 3},
		{"rate limit outlasts retries", []int{429}, 2, 429, 3},
		{"zero retries means default", []int{500}, 0, 500, defaultMaxRetries + 1},
		{"bad api key not retried", []int{401}, 3, 401, 1},
		{"bad query not retried", []int{400}, 3, 400, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &searchAPI{statuses: tt.statuses}
			ts := httptest.NewServer(api)
			defer ts.Close()

			req, err := http.NewRequest(http.MethodPost, ts.URL+"/search", strings.NewReader(`{"query":"llm agents"}`))
			require.NoError(t, err)

			resp, err := DoWithRetry(context.Background(), ts.Client(), req, tt.maxRetries)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, api.calls())
			api.mu.Lock()
			defer api.mu.Unlock()
			for _, b := range api.bodies {
				assert.Equal(t, `{"query":"llm agents"}`, b, "body replayed on every attempt")
			}
		})
	}
}

func TestDoWithRetry_SuccessBodyReadable(t *testing.T) {
	api := &searchAPI{statuses: []int{503, 200}}
	ts := httptest.NewServer(api)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err := DoWithRetry(context.Background(), ts.Client(), req, 3)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(b))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestDoWithRetry_NetworkErrors(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	t.Run("retried until exhausted", func(t *testing.T) {
		var calls int
		client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, refused
		})}
		req, err := http.NewRequest(http.MethodGet, "http://serper.invalid/search", nil)
		require.NoError(t, err)

		_, err = DoWithRetry(context.Background(), client, req, 2)
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("recovers after a reset", func(t *testing.T) {
		var calls int
		client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return nil, refused
			}
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}")), Request: r}, nil
		})}
		req, err := http.NewRequest(http.MethodGet, "http://tavily.invalid/search", nil)
		require.NoError(t, err)

		resp, err := DoWithRetry(context.Background(), client, req, 2)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 2, calls)
	})
}

func TestDoWithRetry_CancelledDuringBackoff(t *testing.T) {
	ts := httptest.NewServer(&searchAPI{statuses: []int{429}})
	defer ts.Close()

	old := RetryBaseDelay
	RetryBaseDelay = 500 * time.Millisecond
	defer func() { RetryBaseDelay = old }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = DoWithRetry(ctx, ts.Client(), req, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "returns without finishing the wait")
}

func TestBackoff(t *testing.T) {
	oldBase, oldMax := RetryBaseDelay, MaxBackoff
	RetryBaseDelay, MaxBackoff = 200*time.Millisecond, 2*time.Second
	defer func() { RetryBaseDelay, MaxBackoff = oldBase, oldMax }()

	tests := []struct {
		attempt int
		lo, hi  time.Duration
	}{
		{0, 200 * time.Millisecond, 300 * time.Millisecond},
		{1, 400 * time.Millisecond, 600 * time.Millisecond},
		{3, 1600 * time.Millisecond, 2400 * time.Millisecond},
		{4, 2 * time.Second, 3 * time.Second},
		{10, 2 * time.Second, 3 * time.Second},
	}
	for _, tt := range tests {
		for range 20 {
			d := Backoff(tt.attempt)
			assert.GreaterOrEqual(t, d, tt.lo, "attempt %d", tt.attempt)
			assert.Less(t, d, tt.hi, "attempt %d", tt.attempt)
		}
	}
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
