// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-agents CLI.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/config"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/internal/secrets"
	"github.com/pdiddy/research-agents/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	v      = viper.New()
	cfg    types.Config
	logger = zap.NewNop()
)

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// rootCmd is the base command for the research-agents CLI.
var rootCmd = &cobra.Command{
	Use:   "research-agents",
	Short: "Multi-agent research: web search, YouTube, weather, and hybrid reports",
	Long: `research-agents turns a free-text request into a report. The orchestrator
picks collectors from the request (web research, YouTube capture, weather),
runs them in parallel, and writes a report sized to the collected context.

Credentials are read from .secrets/ (one file per key: tavily-api-key,
serper-api-key, openai-api-key, youtube-api-key, openweather-api-key) and
from the environment, which takes precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		l, err := logging.New(level, jsonLogs)
		if err != nil {
			return err
		}
		logger = l

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, logger)
		if err != nil {
			return err
		}
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Info("loaded secrets", zap.Strings("keys", keys))
		}
		config.ApplySecrets(v, s)

		c, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = c

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			serveMetrics(addr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./research-agents.yaml or ~/.config/research-agents/config.yaml)")
	pf.String("secrets-dir", ".secrets/", "directory of credential files")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("log-json", false, "emit JSON logs")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("research-agents")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "research-agents"))
		}
	}

	config.SetDefaults(v)
	if err := config.Bind(v); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}
