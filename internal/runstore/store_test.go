package runstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"brepdiff/internal/config"
	"brepdiff/internal/runstore"
)

func testConfig(t *testing.T, overrides ...config.Override) *config.Config {
	t.Helper()
	doc := map[string]any{
		"data": map[string]any{
			"dataset":    "abc",
			"train_path": "data/abc/train",
			"val_path":   "data/abc/val",
			"test_path":  "data/abc/test",
		},
		"model":    map[string]any{"z_dim": 256},
		"training": map[string]any{"batch_size": 64},
	}
	cfg, err := config.LoadDocument(doc, overrides...)
	if err != nil {
		t.Fatalf("LoadDocument returned error: %v", err)
	}
	return cfg
}

func openStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	cfg := testConfig(t)

	run, err := store.Record(ctx, "baseline", cfg)
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if run.ID == "" {
		t.Fatal("run ID is empty")
	}
	if run.Name != "baseline" {
		t.Fatalf("unexpected name: %q", run.Name)
	}
	if run.Dataset != "abc" {
		t.Fatalf("unexpected dataset: %q", run.Dataset)
	}
	if run.BatchSize != 64 {
		t.Fatalf("unexpected batch size: %d", run.BatchSize)
	}
	if run.TrainingTimesteps != cfg.Diffusion.TrainingTimesteps {
		t.Fatalf("unexpected timesteps: %d", run.TrainingTimesteps)
	}
	if run.CreatedAt.IsZero() {
		t.Fatal("created timestamp is zero")
	}

	var snapshot map[string]any
	if err := json.Unmarshal([]byte(run.ConfigJSON), &snapshot); err != nil {
		t.Fatalf("stored config is not JSON: %v", err)
	}
	modelGroup, ok := snapshot["model"].(map[string]any)
	if !ok {
		t.Fatalf("snapshot missing model group: %v", snapshot)
	}
	if modelGroup["z_dim"] != float64(256) {
		t.Fatalf("unexpected z_dim in snapshot: %v", modelGroup["z_dim"])
	}

	fetched, err := store.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if fetched == nil {
		t.Fatal("GetByID returned nil for existing run")
	}
	if fetched.ConfigJSON != run.ConfigJSON {
		t.Fatal("fetched snapshot differs from recorded snapshot")
	}
}

func TestGetMissingRun(t *testing.T) {
	store := openStore(t)

	run, err := store.GetByID(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil for missing run, got %+v", run)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	cfg := testConfig(t)

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		run, err := store.Record(ctx, name, cfg)
		if err != nil {
			t.Fatalf("Record %q returned error: %v", name, err)
		}
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Fatalf("runs not newest first: %v", []string{runs[0].Name, runs[1].Name, runs[2].Name})
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	cfg := testConfig(t)

	var newest string
	for _, name := range []string{"a", "b", "c", "d"} {
		run, err := store.Record(ctx, name, cfg)
		if err != nil {
			t.Fatalf("Record %q returned error: %v", name, err)
		}
		newest = run.ID
		time.Sleep(2 * time.Millisecond)
	}

	removed, err := store.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 pruned runs, got %d", removed)
	}

	runs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != newest {
		t.Fatalf("prune kept wrong run: %+v", runs)
	}

	if _, err := store.Prune(ctx, -1); err == nil {
		t.Fatal("expected error for negative keep")
	}
}

func TestStatsGroupsByDataset(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	abc := testConfig(t)
	deepcad := testConfig(t,
		config.Override{Path: "data.dataset", Value: "deepcad"},
		config.Override{Path: "data.train_path", Value: "data/deepcad/train"},
		config.Override{Path: "data.val_path", Value: "data/deepcad/val"},
		config.Override{Path: "data.test_path", Value: "data/deepcad/test"},
	)

	for _, cfg := range []*config.Config{abc, abc, deepcad} {
		if _, err := store.Record(ctx, "run", cfg); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats["abc"] != 2 || stats["deepcad"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}
