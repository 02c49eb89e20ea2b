// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets reads provider credentials from a directory holding one
// file per key, named after the key (tavily-api-key, openai-api-key, ...).
// The trimmed file contents are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/logging"
)

// Credential file names.
const (
	TavilyAPIKey      = "tavily-api-key"
	SerperAPIKey      = "serper-api-key"
	OpenAIAPIKey      = "openai-api-key"
	YouTubeAPIKey     = "youtube-api-key"
	OpenWeatherAPIKey = "openweather-api-key"
)

// Names lists every recognised credential file.
var Names = []string{TavilyAPIKey, SerperAPIKey, OpenAIAPIKey, YouTubeAPIKey, OpenWeatherAPIKey}

// Load returns the recognised credentials found in dir. A missing
// directory yields an empty map. Files that are unrecognised, unreadable,
// empty, or whose value contains whitespace are skipped with a warning;
// files readable by other users are loaded but reported.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	logger = logging.OrNop(logger)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	creds := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		log := logger.With(zap.String("file", filepath.Join(dir, name)))
		if !slices.Contains(Names, name) {
			log.Warn("ignoring unrecognised secret file", zap.Strings("expected", Names))
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("could not read secret", zap.Error(err))
			continue
		}
		value := strings.TrimSpace(string(data))
		switch {
		case value == "":
			log.Warn("secret file is empty")
			continue
		case strings.ContainsAny(value, " \t\r\n"):
			log.Warn("secret value contains whitespace; expected a bare key")
			continue
		}
		if info, err := entry.Info(); err == nil && info.Mode().Perm()&0o077 != 0 {
			log.Warn("secret file is readable by other users", zap.Stringer("mode", info.Mode().Perm()))
		}
		creds[name] = value
	}
	return creds, nil
}
