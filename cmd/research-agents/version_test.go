// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteVersion(t *testing.T) {
	tests := []struct {
		name string
		info *debug.BuildInfo
		want string
	}{
		{
			name: "no build info",
			want: "research-agents v1.2.0\n",
		},
		{
			name: "outside a checkout",
			info: &debug.BuildInfo{GoVersion: "go1.24.1"},
			want: "research-agents v1.2.0\n  go:     go1.24.1\n",
		},
		{
			name: "clean checkout",
			info: &debug.BuildInfo{GoVersion: "go1.24.1", Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "3f9a2c71e0b4d8a6f5e1c2b3a4d5e6f708192a3b"},
				{Key: "vcs.modified", Value: "false"},
			}},
			want: "research-agents v1.2.0\n  go:     go1.24.1\n  commit: 3f9a2c71e0b4\n",
		},
		{
			name: "uncommitted changes",
			info: &debug.BuildInfo{GoVersion: "go1.24.1", Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "3f9a2c7"},
				{Key: "vcs.modified", Value: "true"},
			}},
			want: "research-agents v1.2.0\n  go:     go1.24.1\n  commit: 3f9a2c7 (dirty)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeVersion(&buf, "v1.2.0", tt.info)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
