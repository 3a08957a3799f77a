package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.yaml
var sampleConfig string

// Data describes the dataset, its on-disk location, and augmentation.
// Paths are validated for well-formedness only; opening them is the
// trainer's job.
type Data struct {
	Dataset      string
	TrainPath    string
	ValPath      string
	TestPath     string
	NGrid        int
	MaxNPrims    int
	Augmentation Augmentation
	AxisRanges   [][2]float64
}

// Augmentation controls train-time jitter of primitive grids.
type Augmentation struct {
	Mode         string
	ScaleMin     float64
	ScaleMax     float64
	TranslateMin float64
	TranslateMax float64
}

// Tagged is a resolved discriminator+options block. Options hold the
// coerced values for the chosen variant, defaults included.
type Tagged struct {
	Name    string
	Options map[string]any
}

// Int returns an integer option, or zero when absent.
func (t Tagged) Int(key string) int {
	n, _ := t.Options[key].(int)
	return n
}

// Float returns a numeric option, widening integers, or zero when absent.
func (t Tagged) Float(key string) float64 {
	switch v := t.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean option, or false when absent.
func (t Tagged) Bool(key string) bool {
	b, _ := t.Options[key].(bool)
	return b
}

// Model holds latent/token dimensions and the tokenizer pair.
type Model struct {
	ZDim           int
	TokenDim       int
	DedupThreshold float64
	Tokenizer      Tagged
	Detokenizer    Tagged
}

// Diffusion holds the noise schedule, objective, and denoiser spec.
type Diffusion struct {
	Objective          string
	Schedule           Tagged
	TrainingTimesteps  int
	InferenceTimesteps int
	ChannelTimesteps   []int
	SNRMin             float64
	SNRMax             float64
	ClassCondition     bool
	CFGDropout         float64
	CFGScales          []float64
	Model              Tagged
}

// Training holds batch sizing and the optimizer/clip/scheduler specs.
type Training struct {
	BatchSize   int
	NEpochs     int
	Optimizer   Tagged
	ClipGrad    Tagged
	LRScheduler Tagged
}

// Postprocess configures surface extraction after sampling.
type Postprocess struct {
	ExtractionGrid int
}

// Eval configures the validation cadence and sample counts.
type Eval struct {
	EveryNEpochs int
	BatchSize    int
	NSamples     int
	NPointsFID   int
}

// Test configures held-out evaluation. Chunk is an optional "i/n"
// fractional selector; empty means the whole split.
type Test struct {
	BatchSize int
	NSamples  int
	Chunk     string
}

// ChunkSelector parses the fractional selector. ok is false when the whole
// split is selected.
func (t Test) ChunkSelector() (index, total int, ok bool) {
	if t.Chunk == "" {
		return 0, 0, false
	}
	index, total, err := ParseChunk(t.Chunk)
	if err != nil {
		return 0, 0, false
	}
	return index, total, true
}

// Vis selects which samples get rendered and how.
type Vis struct {
	SampleMode string
	Indices    []int
	Image      Image
	TrajEvery  int
}

// Image is the render geometry for visualization outputs.
type Image struct {
	Width  int
	Height int
}

// Checkpoint controls top-k retention and the monitored metric.
type Checkpoint struct {
	SaveTopK int
	Filename string
	Monitor  string
	Mode     string
}

// Utils gathers process-level knobs: workers, seed, device, debug sizing,
// and log output.
type Utils struct {
	NumWorkers      int
	Seed            int
	Accelerator     string
	Devices         int
	Debug           bool
	Overfit         bool
	OverfitDataSize int
	LogLevel        string
	LogFormat       string
}

// Config is the frozen, validated configuration. It is built once by Load
// and never mutated afterwards; share it freely across goroutines. Slices
// returned through Get and Snapshot are copies.
type Config struct {
	Data        Data
	Model       Model
	Diffusion   Diffusion
	Training    Training
	Postprocess Postprocess
	Eval        Eval
	Test        Test
	Vis         Vis
	Checkpoint  Checkpoint
	Utils       Utils

	resolved map[string]any
}

// DefaultConfigPath returns where the CLI looks for a document when no
// --config flag is given.
func DefaultConfigPath() string {
	return "brepdiff.yaml"
}

// Load parses the document at path, applies defaults and overrides, and
// batch-validates. On schema failure the returned error is an Issues
// aggregate covering every violation found.
func Load(path string, overrides ...Override) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	tree, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return LoadDocument(tree, overrides...)
}

// Parse decodes raw document bytes into the generic mapping tree. The
// extension selects the encoding; YAML is the default.
func Parse(data []byte, ext string) (map[string]any, error) {
	tree := map[string]any{}
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStructural, err)
		}
	default:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStructural, err)
		}
	}
	return tree, nil
}

// LoadDocument validates an already-parsed tree. A nil tree is treated as
// an empty document, which fails on the required keys.
func LoadDocument(tree map[string]any, overrides ...Override) (*Config, error) {
	working, _ := deepCopy(orEmpty(tree)).(map[string]any)

	fields := schema()
	applyDefaults(working, fields)
	issues := applyOverrides(working, overrides, fields)

	r := newResolver()
	r.resolve(working)
	issues = append(issues, r.issues...)
	if len(issues) > 0 {
		return nil, issues
	}

	cfg := buildConfig(r.resolved)
	return cfg, nil
}

// With derives a new frozen Config by re-validating this one's resolved
// document with additional overrides applied.
func (c *Config) With(overrides ...Override) (*Config, error) {
	return LoadDocument(c.Snapshot(), overrides...)
}

// CreateSample writes the embedded sample document to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ParseChunk validates an "i/n" fractional selector with 0 <= i < n.
func ParseChunk(s string) (index, total int, err error) {
	left, right, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, 0, fmt.Errorf("chunk selector %q must look like \"i/n\"", s)
	}
	index, err = strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, 0, fmt.Errorf("chunk selector %q: index is not an integer", s)
	}
	total, err = strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return 0, 0, fmt.Errorf("chunk selector %q: total is not an integer", s)
	}
	if total < 1 || index < 0 || index >= total {
		return 0, 0, fmt.Errorf("chunk selector %q: need 0 <= i < n", s)
	}
	return index, total, nil
}

func orEmpty(tree map[string]any) map[string]any {
	if tree == nil {
		return map[string]any{}
	}
	return tree
}

// buildConfig maps the flat resolved values onto the typed groups. It only
// runs on a clean validation pass, so every schema path is present.
func buildConfig(resolved map[string]any) *Config {
	g := getter{resolved: resolved}
	cfg := &Config{
		Data: Data{
			Dataset:   g.str("data.dataset"),
			TrainPath: g.str("data.train_path"),
			ValPath:   g.str("data.val_path"),
			TestPath:  g.str("data.test_path"),
			NGrid:     g.num("data.n_grid"),
			MaxNPrims: g.num("data.max_n_prims"),
			Augmentation: Augmentation{
				Mode:         g.str("data.augmentation.mode"),
				ScaleMin:     g.flt("data.augmentation.scale_min"),
				ScaleMax:     g.flt("data.augmentation.scale_max"),
				TranslateMin: g.flt("data.augmentation.translate_min"),
				TranslateMax: g.flt("data.augmentation.translate_max"),
			},
			AxisRanges: g.pairs("data.axis_ranges"),
		},
		Model: Model{
			ZDim:           g.num("model.z_dim"),
			TokenDim:       g.num("model.token_dim"),
			DedupThreshold: g.flt("model.dedup_threshold"),
			Tokenizer:      g.tagged("model.tokenizer", "name"),
			Detokenizer:    g.tagged("model.detokenizer", "name"),
		},
		Diffusion: Diffusion{
			Objective:          g.str("diffusion.objective"),
			Schedule:           g.tagged("diffusion.schedule", "type"),
			TrainingTimesteps:  g.num("diffusion.training_timesteps"),
			InferenceTimesteps: g.num("diffusion.inference_timesteps"),
			ChannelTimesteps:   g.ints("diffusion.channel_timesteps"),
			SNRMin:             g.flt("diffusion.snr_min"),
			SNRMax:             g.flt("diffusion.snr_max"),
			ClassCondition:     g.boolean("diffusion.class_condition"),
			CFGDropout:         g.flt("diffusion.cfg_dropout"),
			CFGScales:          g.floats("diffusion.cfg_scales"),
			Model:              g.tagged("diffusion.model", "name"),
		},
		Training: Training{
			BatchSize:   g.num("training.batch_size"),
			NEpochs:     g.num("training.n_epochs"),
			Optimizer:   g.tagged("training.optimizer", "type"),
			ClipGrad:    g.tagged("training.clip_grad", "type"),
			LRScheduler: g.tagged("training.lr_scheduler", "type"),
		},
		Postprocess: Postprocess{
			ExtractionGrid: g.num("postprocess.extraction_grid"),
		},
		Eval: Eval{
			EveryNEpochs: g.num("eval.every_n_epochs"),
			BatchSize:    g.num("eval.batch_size"),
			NSamples:     g.num("eval.n_samples"),
			NPointsFID:   g.num("eval.n_points_fid"),
		},
		Test: Test{
			BatchSize: g.num("test.batch_size"),
			NSamples:  g.num("test.n_samples"),
			Chunk:     g.str("test.chunk"),
		},
		Vis: Vis{
			SampleMode: g.str("vis.sample_mode"),
			Indices:    g.ints("vis.indices"),
			Image: Image{
				Width:  g.num("vis.image.width"),
				Height: g.num("vis.image.height"),
			},
			TrajEvery: g.num("vis.traj_every"),
		},
		Checkpoint: Checkpoint{
			SaveTopK: g.num("checkpoint.save_top_k"),
			Filename: g.str("checkpoint.filename"),
			Monitor:  g.str("checkpoint.monitor"),
			Mode:     g.str("checkpoint.mode"),
		},
		Utils: Utils{
			NumWorkers:      g.num("utils.num_workers"),
			Seed:            g.num("utils.seed"),
			Accelerator:     g.str("utils.accelerator"),
			Devices:         g.num("utils.devices"),
			Debug:           g.boolean("utils.debug"),
			Overfit:         g.boolean("utils.overfit"),
			OverfitDataSize: g.num("utils.overfit_data_size"),
			LogLevel:        g.str("utils.log_level"),
			LogFormat:       g.str("utils.log_format"),
		},
		resolved: resolved,
	}
	return cfg
}

type getter struct {
	resolved map[string]any
}

func (g getter) str(path string) string {
	s, _ := g.resolved[path].(string)
	return s
}

func (g getter) num(path string) int {
	n, _ := g.resolved[path].(int)
	return n
}

func (g getter) flt(path string) float64 {
	switch v := g.resolved[path].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (g getter) boolean(path string) bool {
	b, _ := g.resolved[path].(bool)
	return b
}

func (g getter) ints(path string) []int {
	v, _ := g.resolved[path].([]int)
	return append([]int(nil), v...)
}

func (g getter) floats(path string) []float64 {
	v, _ := g.resolved[path].([]float64)
	return append([]float64(nil), v...)
}

func (g getter) pairs(path string) [][2]float64 {
	v, _ := g.resolved[path].([][2]float64)
	return append([][2]float64(nil), v...)
}

func (g getter) tagged(path, disc string) Tagged {
	t := Tagged{
		Name:    g.str(path + "." + disc),
		Options: map[string]any{},
	}
	prefix := path + ".options."
	for key, value := range g.resolved {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			t.Options[rest] = deepCopy(value)
		}
	}
	return t
}
