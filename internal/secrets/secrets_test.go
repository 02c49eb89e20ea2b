// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func writeKey(t *testing.T, dir, name, value string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(value), mode))
	require.NoError(t, os.Chmod(path, mode))
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		want     map[string]string
		warnings []string
	}{
		{
			name: "provider keys trimmed",
			files: map[string]string{
				TavilyAPIKey:      "  tvly-abc123  \n",
				SerperAPIKey:      "f00dfeed",
				OpenWeatherAPIKey: "ow_456\n",
			},
			want: map[string]string{
				TavilyAPIKey:      "tvly-abc123",
				SerperAPIKey:      "f00dfeed",
				OpenWeatherAPIKey: "ow_456",
			},
		},
		{
			name:     "empty openai key skipped",
			files:    map[string]string{OpenAIAPIKey: " \n", YouTubeAPIKey: "AIzaKey"},
			want:     map[string]string{YouTubeAPIKey: "AIzaKey"},
			warnings: []string{"secret file is empty"},
		},
		{
			name:     "misnamed file ignored",
			files:    map[string]string{"openai-key": "sk-typo", TavilyAPIKey: "tvly-ok"},
			want:     map[string]string{TavilyAPIKey: "tvly-ok"},
			warnings: []string{"ignoring unrecognised secret file"},
		},
		{
			name:     "pasted header rejected",
			files:    map[string]string{OpenAIAPIKey: "Authorization: Bearer sk-abc"},
			want:     map[string]string{},
			warnings: []string{"secret value contains whitespace; expected a bare key"},
		},
		{
			name:     "two keys in one file rejected",
			files:    map[string]string{SerperAPIKey: "old-key\nnew-key\n"},
			want:     map[string]string{},
			warnings: []string{"secret value contains whitespace; expected a bare key"},
		},
		{
			name:  "dotfiles skipped silently",
			files: map[string]string{".gitkeep": "", TavilyAPIKey: "tvly-real"},
			want:  map[string]string{TavilyAPIKey: "tvly-real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, value := range tt.files {
				writeKey(t, dir, name, value, 0o600)
			}
			core, logs := observer.New(zapcore.WarnLevel)

			got, err := Load(dir, zap.New(core))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			var msgs []string
			for _, e := range logs.All() {
				msgs = append(msgs, e.Message)
			}
			assert.ElementsMatch(t, tt.warnings, msgs)
		})
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), ".secrets"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, OpenAIAPIKey), 0o755))
	writeKey(t, dir, YouTubeAPIKey, "AIzaKey", 0o600)

	got, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{YouTubeAPIKey: "AIzaKey"}, got)
}

func TestLoadWarnsOnSharedFile(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, OpenAIAPIKey, "sk-shared", 0o644)
	core, logs := observer.New(zapcore.WarnLevel)

	got, err := Load(dir, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, "sk-shared", got[OpenAIAPIKey], "still loaded")
	require.Equal(t, 1, logs.FilterMessage("secret file is readable by other users").Len())
}

func TestLoadUnreadableKey(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root reads files regardless of mode")
	}
	dir := t.TempDir()
	writeKey(t, dir, TavilyAPIKey, "tvly-ok", 0o600)
	writeKey(t, dir, SerperAPIKey, "locked", 0o000)
	t.Cleanup(func() { os.Chmod(filepath.Join(dir, SerperAPIKey), 0o600) })
	core, logs := observer.New(zapcore.WarnLevel)

	got, err := Load(dir, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{TavilyAPIKey: "tvly-ok"}, got)
	assert.Equal(t, 1, logs.FilterMessage("could not read secret").Len())
}

func TestNamesCoverEveryProvider(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"tavily-api-key", "serper-api-key", "openai-api-key", "youtube-api-key", "openweather-api-key",
	}, Names)
}
