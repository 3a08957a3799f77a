// Package config loads, defaults, and validates brepdiff training
// configuration documents.
//
// A document (YAML, or TOML as an alternate encoding) is parsed into a
// generic tree, merged with schema defaults, patched with dotted-path
// overrides, and then batch-validated in one pass: every missing key,
// type mismatch, range violation, unknown enum value, unknown tagged
// variant, and malformed sequence is collected and returned together as
// one Issues error. Validation is all-or-nothing; a Config is only ever
// produced from a clean pass and is immutable afterwards.
//
// Tagged blocks (optimizer, lr_scheduler, clip_grad, noise schedule,
// tokenizer, detokenizer, diffusion model) are closed variant sets: the
// discriminator is checked against a registry and the options mapping is
// validated against that variant's own option schema, so typos fail at
// load time instead of deep inside a training run.
package config
