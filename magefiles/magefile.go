//go:build mage

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main holds the Mage targets for building and checking research-agents.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "research-agents"
	cmdPkg  = "./cmd/research-agents"
)

// Run output lands in these directories; see storage.* in the config.
var workDirs = []string{"state", "cache", "reports"}

// Init creates the state, cache and report directories.
func Init() error {
	for _, dir := range workDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	fmt.Println("Created", strings.Join(workDirs, ", "))
	return nil
}

// Build compiles bin/research-agents, stamping the version from git.
func Build() error {
	mg.Deps(Init)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	ldflags := "-X main.version=" + gitVersion()
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Check runs go vet then the tests.
func Check() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	mg.Deps(Test)
	return nil
}

// Clean removes the binary and the scrape cache. Saved state and reports stay.
func Clean() error {
	for _, dir := range []string{binDir, "cache"} {
		if err := sh.Rm(dir); err != nil {
			return err
		}
	}
	return nil
}

// gitVersion returns `git describe` output, or "dev" outside a checkout.
func gitVersion() string {
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || out == "" {
		return "dev"
	}
	return out
}

// pkgStats counts non-blank Go lines for one package directory.
type pkgStats struct {
	prod, test int
}

// Stats prints non-blank Go lines per package, split into production and
// test code, followed by the word count of the Markdown docs.
func Stats() error {
	pkgs := map[string]*pkgStats{}
	var words int
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// The go tool ignores these as well.
			if name := d.Name(); path != "." && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".go":
			n, err := nonBlankLines(path)
			if err != nil {
				return err
			}
			dir := filepath.Dir(path)
			if pkgs[dir] == nil {
				pkgs[dir] = &pkgStats{}
			}
			if strings.HasSuffix(path, "_test.go") {
				pkgs[dir].test += n
			} else {
				pkgs[dir].prod += n
			}
		case ".md":
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			words += len(bytes.Fields(data))
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(pkgs))
	for dir := range pkgs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	var total pkgStats
	fmt.Printf("%-32s %8s %8s\n", "package", "prod", "test")
	for _, dir := range dirs {
		p := pkgs[dir]
		total.prod += p.prod
		total.test += p.test
		fmt.Printf("%-32s %8d %8d\n", dir, p.prod, p.test)
	}
	fmt.Printf("%-32s %8d %8d\n", "total", total.prod, total.test)
	fmt.Printf("Markdown words: %d\n", words)
	return nil
}

func nonBlankLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
