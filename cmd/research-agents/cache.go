// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-agents/internal/scrape"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the persistent scrape failure cache",
	Long: `The failure cache remembers hosts and URLs that failed persistently
(401/403/404, paywalls, blacklisted domains) so later runs skip them.
It stores only host and URL failure classes.`,
}

var cacheResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every persisted failure entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openFailureStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.ResetFailures(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Cleared failure cache %s\n", cfg.Scrape.FailureCachePath)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print persisted failure counts by scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openFailureStore()
		if err != nil {
			return err
		}
		defer store.Close()
		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Failure cache: %s\n", cfg.Scrape.FailureCachePath)
		fmt.Printf("  Domains: %d\n", st.Domains)
		fmt.Printf("  URLs:    %d\n", st.URLs)
		return nil
	},
}

func openFailureStore() (*scrape.SQLiteStore, error) {
	if cfg.Scrape.FailureCachePath == "" {
		return nil, fmt.Errorf("no failure cache configured (scrape.failure_cache_path)")
	}
	return scrape.NewSQLiteStore(cfg.Scrape.FailureCachePath)
}

func init() {
	cacheCmd.AddCommand(cacheResetCmd, cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
