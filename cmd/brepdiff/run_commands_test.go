package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestRunRecordListShowPrune(t *testing.T) {
	configPath := writeSampleConfig(t)
	runsDir := filepath.Join(t.TempDir(), "runs")

	out, _, err := runCLI(t, []string{"run", "record", "--runs-dir", runsDir, "--name", "baseline"}, configPath)
	if err != nil {
		t.Fatalf("run record: %v", err)
	}
	requireContains(t, out, "Recorded run")
	requireContains(t, out, "baseline")

	if _, _, err := runCLI(t, []string{"run", "record", "--runs-dir", runsDir, "--name", "bigger-batch", "--set", "training.batch_size=1024"}, configPath); err != nil {
		t.Fatalf("run record with override: %v", err)
	}

	out, _, err = runCLI(t, []string{"run", "list", "--runs-dir", runsDir}, "")
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	requireContains(t, out, "baseline")
	requireContains(t, out, "bigger-batch")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 runs, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "bigger-batch") {
		t.Fatalf("newest run not listed first:\n%s", out)
	}

	runID := strings.Fields(lines[0])[0]
	out, _, err = runCLI(t, []string{"run", "show", "--runs-dir", runsDir, runID}, "")
	if err != nil {
		t.Fatalf("run show: %v", err)
	}
	requireContains(t, out, "\"batch_size\": 1024")
	requireContains(t, out, "bigger-batch")

	if _, _, err := runCLI(t, []string{"run", "show", "--runs-dir", runsDir, "not-a-run"}, ""); err == nil {
		t.Fatal("expected error for unknown run id")
	}

	out, _, err = runCLI(t, []string{"run", "prune", "--runs-dir", runsDir, "--keep", "1"}, "")
	if err != nil {
		t.Fatalf("run prune: %v", err)
	}
	requireContains(t, out, "Pruned 1 runs")

	out, _, err = runCLI(t, []string{"run", "stats", "--runs-dir", runsDir}, "")
	if err != nil {
		t.Fatalf("run stats: %v", err)
	}
	requireContains(t, out, "deepcad: 1")
}

func TestRunListEmpty(t *testing.T) {
	runsDir := filepath.Join(t.TempDir(), "runs")
	out, _, err := runCLI(t, []string{"run", "list", "--runs-dir", runsDir}, "")
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	requireContains(t, out, "No runs recorded")
}
