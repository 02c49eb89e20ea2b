//go:build mage

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Research runs one request through the built CLI. The request comes from
// the QUERY environment variable; the report lands in reports/.
func Research() error {
	mg.Deps(Build)
	query := os.Getenv("QUERY")
	if query == "" {
		return fmt.Errorf("set QUERY, e.g. QUERY=\"top 10 AI chips\" mage research")
	}
	return sh.RunV("bin/"+binName, "research", "--query", query, "--out", "reports", "--state-dir", "state")
}

// CacheStats prints the persistent failure cache counts.
func CacheStats() error {
	mg.Deps(Build)
	return sh.RunV("bin/"+binName, "cache", "stats")
}

// CacheReset clears the persistent failure cache.
func CacheReset() error {
	mg.Deps(Build)
	return sh.RunV("bin/"+binName, "cache", "reset")
}
