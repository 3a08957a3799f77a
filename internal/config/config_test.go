package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"brepdiff/internal/config"
)

func validDoc() map[string]any {
	return map[string]any{
		"data": map[string]any{
			"dataset":    "abc",
			"train_path": "data/abc/train.h5",
			"val_path":   "data/abc/val.h5",
			"test_path":  "data/abc/test.h5",
		},
		"model": map[string]any{
			"z_dim": 256,
		},
		"training": map[string]any{
			"batch_size": 512,
		},
	}
}

func mustLoad(t *testing.T, doc map[string]any, overrides ...config.Override) *config.Config {
	t.Helper()
	cfg, err := config.LoadDocument(doc, overrides...)
	if err != nil {
		t.Fatalf("LoadDocument returned error: %v", err)
	}
	return cfg
}

func TestLoadMinimalDocumentFillsDefaults(t *testing.T) {
	cfg := mustLoad(t, validDoc())

	if cfg.Data.NGrid != 8 {
		t.Fatalf("expected default n_grid 8, got %d", cfg.Data.NGrid)
	}
	if cfg.Data.Augmentation.Mode != "none" {
		t.Fatalf("expected default augmentation mode none, got %q", cfg.Data.Augmentation.Mode)
	}
	if cfg.Diffusion.Objective != "pred_noise" {
		t.Fatalf("expected default objective pred_noise, got %q", cfg.Diffusion.Objective)
	}
	if cfg.Diffusion.TrainingTimesteps != 1000 {
		t.Fatalf("expected default training_timesteps 1000, got %d", cfg.Diffusion.TrainingTimesteps)
	}
	if cfg.Test.Chunk != "" {
		t.Fatalf("expected default test chunk to be empty, got %q", cfg.Test.Chunk)
	}
	if cfg.Checkpoint.SaveTopK != 5 {
		t.Fatalf("expected default save_top_k 5, got %d", cfg.Checkpoint.SaveTopK)
	}
	if cfg.Utils.Accelerator != "gpu" {
		t.Fatalf("expected default accelerator gpu, got %q", cfg.Utils.Accelerator)
	}

	if cfg.Training.Optimizer.Name != "adamw" {
		t.Fatalf("expected default optimizer adamw, got %q", cfg.Training.Optimizer.Name)
	}
	if lr := cfg.Training.Optimizer.Float("lr"); lr != 1e-4 {
		t.Fatalf("expected default lr 1e-4, got %g", lr)
	}
	if cfg.Training.Optimizer.Float("beta2") != 0.999 {
		t.Fatalf("expected variant default beta2 0.999, got %g", cfg.Training.Optimizer.Float("beta2"))
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	first := mustLoad(t, validDoc())
	second := mustLoad(t, validDoc())
	if !first.Equal(second) {
		t.Fatal("expected two loads of the same document to be equal")
	}
}

func TestLoadSampleConfigEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brepdiff.yaml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Training.BatchSize != 512 {
		t.Fatalf("expected batch_size 512, got %d", cfg.Training.BatchSize)
	}
	if cfg.Diffusion.TrainingTimesteps != 1000 {
		t.Fatalf("expected training_timesteps 1000, got %d", cfg.Diffusion.TrainingTimesteps)
	}
	if cfg.Model.ZDim != 256 {
		t.Fatalf("expected z_dim 256, got %d", cfg.Model.ZDim)
	}
	if cfg.Checkpoint.SaveTopK != 5 {
		t.Fatalf("expected save_top_k 5, got %d", cfg.Checkpoint.SaveTopK)
	}
	if cfg.Training.LRScheduler.Name != "cosine" {
		t.Fatalf("expected cosine scheduler, got %q", cfg.Training.LRScheduler.Name)
	}
	if got := cfg.Diffusion.CFGScales; len(got) != 2 || got[1] != 3.0 {
		t.Fatalf("unexpected cfg_scales: %v", got)
	}
}

func TestLoadTOMLDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brepdiff.toml")
	doc := `
[data]
dataset = "deepcad"
train_path = "data/train.h5"
val_path = "data/val.h5"
test_path = "data/test.h5"

[model]
z_dim = 128

[training]
batch_size = 64
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write toml config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Model.ZDim != 128 {
		t.Fatalf("expected z_dim 128, got %d", cfg.Model.ZDim)
	}
	if cfg.Data.Dataset != "deepcad" {
		t.Fatalf("expected dataset deepcad, got %q", cfg.Data.Dataset)
	}
}

func TestLoadUnparsableDocumentIsStructural(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("data: [unclosed"), 0o644); err != nil {
		t.Fatalf("write broken config: %v", err)
	}

	_, err := config.Load(path)
	if !errors.Is(err, config.ErrStructural) {
		t.Fatalf("expected structural error, got %v", err)
	}
}

func TestGetAndPaths(t *testing.T) {
	cfg := mustLoad(t, validDoc())

	value, err := cfg.Get("training.batch_size")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if value != 512 {
		t.Fatalf("expected 512, got %v", value)
	}

	value, err = cfg.Get("training.optimizer.type")
	if err != nil {
		t.Fatalf("Get optimizer type: %v", err)
	}
	if value != "adamw" {
		t.Fatalf("expected adamw, got %v", value)
	}

	if _, err := cfg.Get("training.nonsense"); !errors.Is(err, config.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	paths := cfg.Paths()
	if len(paths) == 0 || paths[0] != "data.dataset" {
		t.Fatalf("expected paths to start with data.dataset, got %v", paths[:1])
	}
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("duplicate path %q", p)
		}
		seen[p] = true
		if _, err := cfg.Get(p); err != nil {
			t.Fatalf("Get(%q) failed after validation: %v", p, err)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := mustLoad(t, validDoc())

	again, err := config.LoadDocument(cfg.Snapshot())
	if err != nil {
		t.Fatalf("reloading snapshot failed: %v", err)
	}
	if !cfg.Equal(again) {
		t.Fatal("expected snapshot round-trip to preserve the configuration")
	}
}

func TestWithDerivesNewConfig(t *testing.T) {
	base := mustLoad(t, validDoc())

	derived, err := base.With(config.Override{Path: "training.batch_size", Value: 256})
	if err != nil {
		t.Fatalf("With returned error: %v", err)
	}
	if derived.Training.BatchSize != 256 {
		t.Fatalf("expected derived batch_size 256, got %d", derived.Training.BatchSize)
	}
	if base.Training.BatchSize != 512 {
		t.Fatalf("base mutated: batch_size %d", base.Training.BatchSize)
	}

	// Every other path must be unchanged.
	for _, path := range base.Paths() {
		if path == "training.batch_size" {
			continue
		}
		want, _ := base.Get(path)
		got, _ := derived.Get(path)
		if !equalValues(want, got) {
			t.Fatalf("path %q changed: %v -> %v", path, want, got)
		}
	}
}

func TestParseChunk(t *testing.T) {
	index, total, err := config.ParseChunk("2/4")
	if err != nil {
		t.Fatalf("ParseChunk returned error: %v", err)
	}
	if index != 2 || total != 4 {
		t.Fatalf("unexpected selector: %d/%d", index, total)
	}

	for _, bad := range []string{"4/4", "-1/4", "x/4", "1", "1/0"} {
		if _, _, err := config.ParseChunk(bad); err == nil {
			t.Fatalf("expected error for selector %q", bad)
		}
	}
}

func equalValues(a, b any) bool {
	switch av := a.(type) {
	case []int:
		bv, ok := b.([]int)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []float64:
		bv, ok := b.([]float64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case [][2]float64:
		bv, ok := b.([][2]float64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
