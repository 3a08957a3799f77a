package config

// fieldKind enumerates the value shapes the schema can declare for a leaf.
type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
	kindIntList
	kindFloatList
	kindPairList
	kindTagged
)

// fieldDef declares one schema entry: its dotted path, value kind,
// defaulting and the constraints validated against it. Tagged fields carry
// a discriminator key and a per-variant option table instead of scalar
// constraints.
type fieldDef struct {
	path     string
	kind     fieldKind
	required bool
	def      any
	enum     []string
	min      *float64
	max      *float64
	minOpen  bool
	maxOpen  bool
	elemMin  *float64
	pathLike bool

	disc     string
	variants map[string][]fieldDef
}

func bound(v float64) *float64 { return &v }

// schema returns the full ordered field registry. Order determines both
// validation order and the order of Config.Paths.
func schema() []fieldDef {
	var fields []fieldDef
	fields = append(fields, dataFields()...)
	fields = append(fields, modelFields()...)
	fields = append(fields, diffusionFields()...)
	fields = append(fields, trainingFields()...)
	fields = append(fields, postprocessFields()...)
	fields = append(fields, evalFields()...)
	fields = append(fields, testFields()...)
	fields = append(fields, visFields()...)
	fields = append(fields, checkpointFields()...)
	fields = append(fields, utilsFields()...)
	return fields
}

func dataFields() []fieldDef {
	return []fieldDef{
		{path: "data.dataset", kind: kindString, required: true, enum: []string{"abc", "deepcad"}},
		{path: "data.train_path", kind: kindString, required: true, pathLike: true},
		{path: "data.val_path", kind: kindString, required: true, pathLike: true},
		{path: "data.test_path", kind: kindString, required: true, pathLike: true},
		{path: "data.n_grid", kind: kindInt, def: 8, min: bound(1)},
		{path: "data.max_n_prims", kind: kindInt, def: 30, min: bound(1)},
		{path: "data.augmentation.mode", kind: kindString, def: "none",
			enum: []string{"none", "scale", "translate", "scale_translate"}},
		{path: "data.augmentation.scale_min", kind: kindFloat, def: 0.9},
		{path: "data.augmentation.scale_max", kind: kindFloat, def: 1.1},
		{path: "data.augmentation.translate_min", kind: kindFloat, def: -0.1},
		{path: "data.augmentation.translate_max", kind: kindFloat, def: 0.1},
		{path: "data.axis_ranges", kind: kindPairList,
			def: [][2]float64{{-1, 1}, {-1, 1}, {-1, 1}}},
	}
}

func modelFields() []fieldDef {
	return []fieldDef{
		{path: "model.z_dim", kind: kindInt, required: true, min: bound(1)},
		{path: "model.token_dim", kind: kindInt, def: 768, min: bound(1)},
		{path: "model.dedup_threshold", kind: kindFloat, def: 0.4, min: bound(0), max: bound(1)},
		{path: "model.tokenizer", kind: kindTagged, disc: "name",
			def:      taggedDefault("uvgrid", map[string]any{}),
			variants: tokenizerVariants()},
		{path: "model.detokenizer", kind: kindTagged, disc: "name",
			def:      taggedDefault("uvgrid", map[string]any{}),
			variants: detokenizerVariants()},
	}
}

func diffusionFields() []fieldDef {
	return []fieldDef{
		{path: "diffusion.objective", kind: kindString, def: "pred_noise",
			enum: []string{"pred_noise", "pred_x0", "pred_v"}},
		{path: "diffusion.schedule", kind: kindTagged, disc: "type",
			def:      taggedDefault("linear", map[string]any{}),
			variants: scheduleVariants()},
		{path: "diffusion.training_timesteps", kind: kindInt, def: 1000, min: bound(1)},
		{path: "diffusion.inference_timesteps", kind: kindInt, def: 50, min: bound(1)},
		{path: "diffusion.channel_timesteps", kind: kindIntList, def: []int{}, elemMin: bound(1)},
		{path: "diffusion.snr_min", kind: kindFloat, def: -10.0},
		{path: "diffusion.snr_max", kind: kindFloat, def: 10.0},
		{path: "diffusion.class_condition", kind: kindBool, def: false},
		{path: "diffusion.cfg_dropout", kind: kindFloat, def: 0.1, min: bound(0), max: bound(1)},
		{path: "diffusion.cfg_scales", kind: kindFloatList, def: []float64{1.0}, elemMin: bound(0)},
		{path: "diffusion.model", kind: kindTagged, disc: "name",
			def:      taggedDefault("dit", map[string]any{}),
			variants: diffusionModelVariants()},
	}
}

func trainingFields() []fieldDef {
	return []fieldDef{
		{path: "training.batch_size", kind: kindInt, required: true, min: bound(1)},
		{path: "training.n_epochs", kind: kindInt, def: 1000, min: bound(1)},
		{path: "training.optimizer", kind: kindTagged, disc: "type",
			def:      taggedDefault("adamw", map[string]any{"lr": 1e-4}),
			variants: optimizerVariants()},
		{path: "training.clip_grad", kind: kindTagged, disc: "type",
			def:      taggedDefault("norm", map[string]any{}),
			variants: clipGradVariants()},
		{path: "training.lr_scheduler", kind: kindTagged, disc: "type",
			def:      taggedDefault("constant", map[string]any{}),
			variants: lrSchedulerVariants()},
	}
}

func postprocessFields() []fieldDef {
	return []fieldDef{
		{path: "postprocess.extraction_grid", kind: kindInt, def: 64, min: bound(1)},
	}
}

func evalFields() []fieldDef {
	return []fieldDef{
		{path: "eval.every_n_epochs", kind: kindInt, def: 20, min: bound(1)},
		{path: "eval.batch_size", kind: kindInt, def: 64, min: bound(1)},
		{path: "eval.n_samples", kind: kindInt, def: 1024, min: bound(1)},
		{path: "eval.n_points_fid", kind: kindInt, def: 2048, min: bound(1)},
	}
}

func testFields() []fieldDef {
	return []fieldDef{
		{path: "test.batch_size", kind: kindInt, def: 64, min: bound(1)},
		{path: "test.n_samples", kind: kindInt, def: 4096, min: bound(1)},
		{path: "test.chunk", kind: kindString, def: ""},
	}
}

func visFields() []fieldDef {
	return []fieldDef{
		{path: "vis.sample_mode", kind: kindString, def: "first",
			enum: []string{"first", "random", "indices"}},
		{path: "vis.indices", kind: kindIntList, def: []int{}, elemMin: bound(0)},
		{path: "vis.image.width", kind: kindInt, def: 512, min: bound(1)},
		{path: "vis.image.height", kind: kindInt, def: 512, min: bound(1)},
		{path: "vis.traj_every", kind: kindInt, def: 100, min: bound(1)},
	}
}

func checkpointFields() []fieldDef {
	return []fieldDef{
		{path: "checkpoint.save_top_k", kind: kindInt, def: 5, min: bound(1)},
		{path: "checkpoint.filename", kind: kindString, def: "epoch={epoch}-step={step}"},
		{path: "checkpoint.monitor", kind: kindString, def: "val_loss",
			enum: []string{"val_loss", "train_loss", "fid"}},
		{path: "checkpoint.mode", kind: kindString, def: "min", enum: []string{"min", "max"}},
	}
}

func utilsFields() []fieldDef {
	return []fieldDef{
		{path: "utils.num_workers", kind: kindInt, def: 4, min: bound(0)},
		{path: "utils.seed", kind: kindInt, def: 42},
		{path: "utils.accelerator", kind: kindString, def: "gpu",
			enum: []string{"cpu", "gpu", "mps"}},
		{path: "utils.devices", kind: kindInt, def: 1, min: bound(1)},
		{path: "utils.debug", kind: kindBool, def: false},
		{path: "utils.overfit", kind: kindBool, def: false},
		{path: "utils.overfit_data_size", kind: kindInt, def: 64, min: bound(1)},
		{path: "utils.log_level", kind: kindString, def: "info",
			enum: []string{"debug", "info", "warn", "error"}},
		{path: "utils.log_format", kind: kindString, def: "console",
			enum: []string{"console", "json"}},
	}
}

// taggedDefault builds the document fragment used when a tagged block is
// absent. Options listed here must still satisfy the variant's own schema.
func taggedDefault(name string, options map[string]any) map[string]any {
	return map[string]any{"__name": name, "options": options}
}

func tokenizerVariants() map[string][]fieldDef {
	return map[string][]fieldDef{
		"uvgrid": {
			{path: "n_grid", kind: kindInt, def: 8, min: bound(1)},
			{path: "normalize", kind: kindBool, def: true},
		},
		"uvgrid_mask": {
			{path: "n_grid", kind: kindInt, def: 8, min: bound(1)},
			{path: "normalize", kind: kindBool, def: true},
			{path: "mask_empty", kind: kindBool, def: true},
		},
	}
}

func detokenizerVariants() map[string][]fieldDef {
	return map[string][]fieldDef{
		"uvgrid": {
			{path: "n_grid", kind: kindInt, def: 8, min: bound(1)},
		},
		"nurbs": {
			{path: "degree", kind: kindInt, def: 3, min: bound(1)},
			{path: "tolerance", kind: kindFloat, def: 1e-4, min: bound(0), minOpen: true},
		},
	}
}

func scheduleVariants() map[string][]fieldDef {
	return map[string][]fieldDef{
		"linear": {
			{path: "beta_start", kind: kindFloat, def: 1e-4, min: bound(0), minOpen: true, max: bound(1), maxOpen: true},
			{path: "beta_end", kind: kindFloat, def: 0.02, min: bound(0), minOpen: true, max: bound(1), maxOpen: true},
		},
		"cosine": {
			{path: "s", kind: kindFloat, def: 0.008, min: bound(0), minOpen: true},
		},
		"sigmoid": {
			{path: "start", kind: kindFloat, def: -3.0},
			{path: "end", kind: kindFloat, def: 3.0},
			{path: "tau", kind: kindFloat, def: 1.0, min: bound(0), minOpen: true},
		},
	}
}

func diffusionModelVariants() map[string][]fieldDef {
	return map[string][]fieldDef{
		"dit": {
			{path: "n_layers", kind: kindInt, def: 12, min: bound(1)},
			{path: "n_heads", kind: kindInt, def: 8, min: bound(1)},
			{path: "dim", kind: kindInt, def: 768, min: bound(1)},
			{path: "dropout", kind: kindFloat, def: 0.1, min: bound(0), max: bound(1), maxOpen: true},
		},
		"unet1d": {
			{path: "channels", kind: kindInt, def: 256, min: bound(1)},
			{path: "depth", kind: kindInt, def: 4, min: bound(1)},
		},
	}
}

func optimizerVariants() map[string][]fieldDef {
	adamLike := []fieldDef{
		{path: "lr", kind: kindFloat, required: true, min: bound(0), minOpen: true},
		{path: "weight_decay", kind: kindFloat, def: 0.0, min: bound(0)},
		{path: "beta1", kind: kindFloat, def: 0.9, min: bound(0), max: bound(1), maxOpen: true},
		{path: "beta2", kind: kindFloat, def: 0.999, min: bound(0), max: bound(1), maxOpen: true},
	}
	return map[string][]fieldDef{
		"adam":  adamLike,
		"adamw": adamLike,
		"sgd": {
			{path: "lr", kind: kindFloat, required: true, min: bound(0), minOpen: true},
			{path: "momentum", kind: kindFloat, def: 0.0, min: bound(0), max: bound(1), maxOpen: true},
		},
	}
}

func clipGradVariants() map[string][]fieldDef {
	return map[string][]fieldDef{
		"norm": {
			{path: "max_norm", kind: kindFloat, def: 1.0, min: bound(0), minOpen: true},
		},
		"value": {
			{path: "clip_value", kind: kindFloat, def: 1.0, min: bound(0), minOpen: true},
		},
	}
}

func lrSchedulerVariants() map[string][]fieldDef {
	return map[string][]fieldDef{
		"constant": {},
		"step": {
			{path: "step_size", kind: kindInt, def: 100, min: bound(1)},
			{path: "gamma", kind: kindFloat, def: 0.1, min: bound(0), minOpen: true, max: bound(1)},
		},
		"cosine": {
			{path: "min_lr", kind: kindFloat, def: 0.0, min: bound(0)},
		},
		"linear_warmup": {
			{path: "warmup_steps", kind: kindInt, def: 1000, min: bound(1)},
		},
	}
}
