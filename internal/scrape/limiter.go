// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scrape

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateWindow is the sliding window for the per-host request ceiling.
// Tests shrink it.
var rateWindow = time.Minute

// HostLimiter spaces requests to each host by a minimum interval and caps
// requests per host over a sliding window. Safe for concurrent use.
type HostLimiter struct {
	minInterval time.Duration
	maxPerMin   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	stamps   map[string][]time.Time
}

// NewHostLimiter returns a limiter. minInterval <= 0 disables spacing;
// maxPerMinute <= 0 disables the ceiling.
func NewHostLimiter(minInterval time.Duration, maxPerMinute int) *HostLimiter {
	return &HostLimiter{
		minInterval: minInterval,
		maxPerMin:   maxPerMinute,
		limiters:    make(map[string]*rate.Limiter),
		stamps:      make(map[string][]time.Time),
	}
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		if h.minInterval > 0 {
			l = rate.NewLimiter(rate.Every(h.minInterval), 1)
		} else {
			l = rate.NewLimiter(rate.Inf, 1)
		}
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until a request to host is allowed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if err := h.limiter(host).Wait(ctx); err != nil {
		return err
	}
	if h.maxPerMin <= 0 {
		return nil
	}
	for {
		h.mu.Lock()
		now := time.Now()
		kept := h.stamps[host][:0]
		for _, ts := range h.stamps[host] {
			if now.Sub(ts) < rateWindow {
				kept = append(kept, ts)
			}
		}
		h.stamps[host] = kept
		if len(kept) < h.maxPerMin {
			h.stamps[host] = append(kept, now)
			h.mu.Unlock()
			return nil
		}
		wait := rateWindow - now.Sub(kept[0])
		h.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Recent returns the number of requests to host inside the current window.
func (h *HostLimiter) Recent(host string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	now := time.Now()
	for _, ts := range h.stamps[host] {
		if now.Sub(ts) < rateWindow {
			n++
		}
	}
	return n
}
