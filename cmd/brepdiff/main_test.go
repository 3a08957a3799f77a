package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"brepdiff/internal/config"
)

// writeSampleConfig drops the embedded sample document into a temp dir and
// returns its path.
func writeSampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brepdiff.yaml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, out, "brepdiff")
}

func TestRootHelpWithoutConfig(t *testing.T) {
	// The bare root command prints help and must not demand a config file.
	out, _, err := runCLI(t, nil, "")
	if err != nil {
		t.Fatalf("root help: %v", err)
	}
	requireContains(t, out, "Usage:")
}
