// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the research-agents version and build details",
	// Config and secrets are not needed here.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		writeVersion(cmd.OutOrStdout(), version, info)
	},
}

// writeVersion prints the stamped version, the toolchain and, when the
// binary was built from a checkout, the commit it was built from.
func writeVersion(w io.Writer, v string, info *debug.BuildInfo) {
	fmt.Fprintf(w, "research-agents %s\n", v)
	if info == nil {
		return
	}
	fmt.Fprintf(w, "  go:     %s\n", info.GoVersion)
	var rev, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if rev == "" {
		return
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if modified == "true" {
		rev += " (dirty)"
	}
	fmt.Fprintf(w, "  commit: %s\n", rev)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
