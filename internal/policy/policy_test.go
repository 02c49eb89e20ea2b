// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Lookups(t *testing.T) {
	p := Default()
	assert.True(t, p.IsBlacklisted("www.wsj.com"))
	assert.True(t, p.IsPremium("www.reuters.com"))
	assert.True(t, p.IsLowQuality("quora.com"))
	assert.True(t, p.IsHighSecurity("www.forbes.com"))
	assert.True(t, p.IsAcademic("export.arxiv.org"))
	assert.False(t, p.IsBlacklisted("example.com"))
}

func TestDomainPrior(t *testing.T) {
	p := Default()
	assert.Equal(t, 0.9, p.DomainPrior("cs.stanford.edu"))
	assert.Equal(t, 0.9, p.DomainPrior("data.gov"))
	assert.Equal(t, 0.8, p.DomainPrior("www.reuters.com"))
	assert.Equal(t, 0.3, p.DomainPrior("news.google.com"))
	assert.Equal(t, 0.2, p.DomainPrior("ehow.com"))
	assert.Equal(t, 0.5, p.DomainPrior("example.com"))
}

func TestMatchPaywall(t *testing.T) {
	p := Default()
	phrase, ok := p.MatchPaywall("Please SIGN IN TO CONTINUE reading")
	assert.True(t, ok)
	assert.Equal(t, "sign in to continue", phrase)

	_, ok = p.MatchPaywall("An ordinary article about gardening.")
	assert.False(t, ok)
}

func TestMatchBlockRedirect(t *testing.T) {
	p := Default()
	tests := []struct {
		name, from, to string
		want           string
	}{
		{"login page", "https://example.com/a", "https://example.com/account/login?next=/a", "login"},
		{"relative location", "https://example.com/a", "/signin", "signin"},
		{"auth host", "https://example.com/a", "https://auth.example.com/start", "auth"},
		{"hyphenated pattern", "https://example.com/a", "https://example.com/access-denied.html", "access-denied"},
		{"ordinary article", "https://example.com/a", "https://example.com/articles/2", ""},
		{"word inside a word", "https://example.com/a", "https://example.com/authors/jane", ""},
		{"trailing slash", "https://example.com/premium-coffee-guide", "https://example.com/premium-coffee-guide/", ""},
		{"scheme upgrade", "http://example.com/subscribe-to-updates", "https://example.com/subscribe-to-updates", ""},
		{"pattern in query only", "https://example.com/a", "https://example.com/b?ref=login", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pat, ok := p.MatchBlockRedirect(tt.from, tt.to)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, pat)
		})
	}
}

func TestLoad_OverridesListsPresentInFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blacklist:\n  - example.org\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.True(t, p.IsBlacklisted("sub.example.org"))
	assert.False(t, p.IsBlacklisted("wsj.com"))
	assert.True(t, p.IsPremium("reuters.com"), "unlisted sections keep defaults")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blacklist: [unterminated"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Blacklist)
}
