// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package urlnorm canonicalizes URLs and tracks which canonical URLs have
// already been claimed within a run.
package urlnorm

import (
	"net/url"
	"strings"
	"sync"

	"github.com/pdiddy/research-agents/internal/fault"
)

// trackingParams are dropped from the query string. Keys are compared lowercased.
var trackingParams = map[string]bool{
	"gclid":         true,
	"fbclid":        true,
	"ref":           true,
	"source":        true,
	"campaign":      true,
	"medium":        true,
	"mcid":          true,
	"cid":           true,
	"_hsenc":        true,
	"_hsmi":         true,
	"__hstc":        true,
	"__hssc":        true,
	"__hsfp":        true,
	"hsctatracking": true,
}

func isTracking(key string) bool {
	k := strings.ToLower(key)
	return trackingParams[k] || strings.HasPrefix(k, "utm_")
}

// Normalize returns the canonical form of raw: lowercased scheme, host, and
// path, tracking parameters removed, remaining parameters sorted, fragment
// discarded. Trailing slashes are preserved. Input that does not parse as an
// absolute URL is returned lowercased.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(trimmed)
	}

	out := url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Host),
		Path:   strings.ToLower(u.Path),
	}

	q := u.Query()
	for k := range q {
		if isTracking(k) {
			delete(q, k)
		}
	}
	if len(q) > 0 {
		// Encode sorts by key.
		out.RawQuery = q.Encode()
	}
	return out.String()
}

// Host returns the lowercased hostname of raw without port, or "" when raw
// does not parse.
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Domain returns Host with a leading "www." removed.
func Domain(raw string) string {
	return strings.TrimPrefix(Host(raw), "www.")
}

// HostMatches reports whether host equals domain or is a subdomain of it.
func HostMatches(host, domain string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// RunSet is the per-run set of claimed canonical URLs. Safe for concurrent use.
type RunSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewRunSet returns an empty RunSet.
func NewRunSet() *RunSet {
	return &RunSet{seen: make(map[string]struct{})}
}

// Claim records raw's canonical form. It returns the canonical URL, or a
// DuplicateInRun error without side effects when it was already claimed.
func (s *RunSet) Claim(raw string) (string, error) {
	canon := Normalize(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[canon]; ok {
		return canon, fault.Errorf(fault.DuplicateInRun, "claim", "already seen in run: %s", canon)
	}
	s.seen[canon] = struct{}{}
	return canon, nil
}

// Contains reports whether raw's canonical form was claimed.
func (s *RunSet) Contains(raw string) bool {
	canon := Normalize(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[canon]
	return ok
}

// Len returns the number of claimed URLs.
func (s *RunSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Reset forgets every claimed URL.
func (s *RunSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
}
