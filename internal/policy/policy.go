// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package policy holds the domain lists and phrase sets that steer grading,
// scraping, and filtering. Defaults are built in; a YAML file may override
// any list.
package policy

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-agents/internal/urlnorm"
)

// Policy is the domain policy. Domain entries match the host and its subdomains.
type Policy struct {
	// Premium hosts earn a grading bonus.
	Premium []string `yaml:"premium"`
	// LowQuality hosts earn a grading penalty and a filter red flag.
	LowQuality []string `yaml:"low_quality"`
	// Blacklist hosts are never scraped (paywalled, institutional, social noise).
	Blacklist []string `yaml:"blacklist"`
	// HighSecurity hosts skip the HEAD pre-flight and get GET retries.
	HighSecurity []string `yaml:"high_security"`
	// Academic hosts receive a scholarly Referer header.
	Academic []string `yaml:"academic"`
	// News hosts score above default in the filter's domain prior.
	News []string `yaml:"news"`
	// Aggregators score below default in the filter's domain prior.
	Aggregators []string `yaml:"aggregators"`
	// PaywallPhrases mark a page as paywalled when found in its text.
	PaywallPhrases []string `yaml:"paywall_phrases"`
	// AccessKeywords flag short pages as likely access walls.
	AccessKeywords []string `yaml:"access_keywords"`
	// BlockRedirectPatterns mark redirect targets as blocks.
	BlockRedirectPatterns []string `yaml:"block_redirect_patterns"`
}

// Default returns the built-in policy.
func Default() *Policy {
	return &Policy{
		Premium: []string{
			"reuters.com", "apnews.com", "bbc.com", "bbc.co.uk", "nature.com",
			"science.org", "arxiv.org", "nih.gov", "who.int", "github.com",
			"techcrunch.com", "arstechnica.com", "theverge.com", "wired.com",
			"mit.edu", "stanford.edu", "harvard.edu", "ieee.org", "acm.org",
			"economist.com", "nasa.gov", "wikipedia.org", "mozilla.org",
		},
		LowQuality: []string{
			"pinterest.com", "quora.com", "answers.com", "ehow.com",
			"buzzfeed.com", "wikihow.com", "reddit.com", "medium.com",
			"scribd.com", "slideshare.net", "coursehero.com", "chegg.com",
		},
		Blacklist: []string{
			"wsj.com", "ft.com", "bloomberg.com", "nytimes.com", "washingtonpost.com",
			"economist.com", "barrons.com", "hbr.org", "jstor.org",
			"sciencedirect.com", "springer.com", "wiley.com", "tandfonline.com",
			"researchgate.net", "academia.edu", "facebook.com", "instagram.com",
			"twitter.com", "x.com", "tiktok.com", "linkedin.com", "pinterest.com",
		},
		HighSecurity: []string{
			"cloudflare.com", "amazon.com", "microsoft.com", "google.com",
			"apple.com", "cnn.com", "forbes.com", "businessinsider.com",
		},
		Academic: []string{
			"arxiv.org", "nature.com", "science.org", "nih.gov", "ncbi.nlm.nih.gov",
			"pubmed.ncbi.nlm.nih.gov", "ieee.org", "acm.org", "semanticscholar.org",
			"biorxiv.org", "plos.org",
		},
		News: []string{
			"reuters.com", "apnews.com", "bbc.com", "bbc.co.uk", "npr.org",
			"theguardian.com", "cnn.com", "aljazeera.com", "techcrunch.com",
		},
		Aggregators: []string{
			"news.google.com", "flipboard.com", "feedly.com", "reddit.com",
			"facebook.com", "twitter.com", "x.com", "pinterest.com", "quora.com",
		},
		PaywallPhrases: []string{
			"subscription required", "subscribe to continue", "subscribe to read",
			"sign in to continue", "sign in to read", "log in to continue",
			"create a free account to continue", "this content is for subscribers",
			"already a subscriber", "you have reached your free article limit",
			"to continue reading", "premium content", "members only",
			"unlock this article",
		},
		AccessKeywords: []string{
			"subscribe", "subscription", "sign in", "log in", "login",
			"register", "paywall", "premium", "members", "access denied",
		},
		BlockRedirectPatterns: []string{
			"login", "signin", "sign-in", "auth", "paywall", "subscribe",
			"premium", "blocked", "access-denied",
		},
	}
}

// Load reads a YAML policy from path. Lists present in the file replace the
// defaults; omitted lists keep the defaults. An empty path returns Default.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file %s: %w", path, err)
	}
	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	merge(&p.Premium, override.Premium)
	merge(&p.LowQuality, override.LowQuality)
	merge(&p.Blacklist, override.Blacklist)
	merge(&p.HighSecurity, override.HighSecurity)
	merge(&p.Academic, override.Academic)
	merge(&p.News, override.News)
	merge(&p.Aggregators, override.Aggregators)
	merge(&p.PaywallPhrases, override.PaywallPhrases)
	merge(&p.AccessKeywords, override.AccessKeywords)
	merge(&p.BlockRedirectPatterns, override.BlockRedirectPatterns)
	return p, nil
}

func merge(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

func matchAny(host string, domains []string) bool {
	for _, d := range domains {
		if urlnorm.HostMatches(host, d) {
			return true
		}
	}
	return false
}

// IsPremium reports whether host is a premium source.
func (p *Policy) IsPremium(host string) bool { return matchAny(host, p.Premium) }

// IsLowQuality reports whether host is a low-quality source.
func (p *Policy) IsLowQuality(host string) bool { return matchAny(host, p.LowQuality) }

// IsBlacklisted reports whether host must never be scraped.
func (p *Policy) IsBlacklisted(host string) bool { return matchAny(host, p.Blacklist) }

// IsHighSecurity reports whether host skips the HEAD pre-flight.
func (p *Policy) IsHighSecurity(host string) bool { return matchAny(host, p.HighSecurity) }

// IsAcademic reports whether host is a scholarly source.
func (p *Policy) IsAcademic(host string) bool { return matchAny(host, p.Academic) }

// DomainPrior returns the filter's domain-quality prior for host in [0,1]:
// educational and government 0.9, news and academic 0.8, aggregators and
// social 0.3, low-quality 0.2, everything else 0.5.
func (p *Policy) DomainPrior(host string) float64 {
	h := strings.ToLower(host)
	switch {
	case strings.HasSuffix(h, ".edu") || strings.HasSuffix(h, ".gov") ||
		strings.Contains(h, ".ac.") || strings.Contains(h, ".gov."):
		return 0.9
	case matchAny(h, p.News) || matchAny(h, p.Academic):
		return 0.8
	case matchAny(h, p.Aggregators):
		return 0.3
	case matchAny(h, p.LowQuality):
		return 0.2
	default:
		return 0.5
	}
}

// MatchPaywall returns the first paywall phrase found in text (case-insensitive).
func (p *Policy) MatchPaywall(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range p.PaywallPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return phrase, true
		}
	}
	return "", false
}

// CountAccessKeywords counts distinct access keywords present in text.
func (p *Policy) CountAccessKeywords(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range p.AccessKeywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

// MatchBlockRedirect reports whether a redirect from one URL to another
// lands on a block page. Patterns match whole words in the target's path
// segments or host labels. A pattern already present in the requested URL
// is ignored, so trailing-slash and scheme redirects never match.
func (p *Policy) MatchBlockRedirect(from, to string) (string, bool) {
	src, err := url.Parse(from)
	if err != nil {
		src = &url.URL{}
	}
	dst, err := src.Parse(to)
	if err != nil {
		return "", false
	}
	have := redirectParts(src)
	for _, pat := range p.BlockRedirectPatterns {
		pat = strings.ToLower(pat)
		if pat == "" || anyWord(have, pat) {
			continue
		}
		if anyWord(redirectParts(dst), pat) {
			return pat, true
		}
	}
	return "", false
}

func redirectParts(u *url.URL) []string {
	parts := strings.Split(strings.ToLower(u.Hostname()), ".")
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

func anyWord(parts []string, word string) bool {
	for _, p := range parts {
		if hasWord(p, word) {
			return true
		}
	}
	return false
}

// hasWord reports whether word occurs in s bounded by non-alphanumerics.
func hasWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || !isAlnum(s[start-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
