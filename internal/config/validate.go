package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// resolver performs the single batch-validation pass: defaulted document in,
// flat resolved map plus every violation out.
type resolver struct {
	fields      []fieldDef
	leaf        map[string]fieldDef
	groupPrefix map[string]bool
	resolved    map[string]any
	badPrefixes map[string]bool
	issues      Issues
}

func newResolver() *resolver {
	fields := schema()
	r := &resolver{
		fields:      fields,
		leaf:        make(map[string]fieldDef, len(fields)),
		groupPrefix: make(map[string]bool),
		resolved:    make(map[string]any, len(fields)*2),
		badPrefixes: make(map[string]bool),
	}
	for _, f := range fields {
		r.leaf[f.path] = f
		segments := strings.Split(f.path, ".")
		for i := 1; i < len(segments); i++ {
			r.groupPrefix[strings.Join(segments[:i], ".")] = true
		}
	}
	return r
}

// resolve validates the defaulted tree and produces the flat path->value map.
func (r *resolver) resolve(tree map[string]any) {
	for _, f := range r.fields {
		r.resolveField(tree, f)
	}
	r.walkUnknown(tree, "")
	r.crossRules()
}

func (r *resolver) resolveField(tree map[string]any, f fieldDef) {
	raw, ok := r.lookup(tree, f.path)
	if !ok {
		// Defaulting already ran, so anything still absent is required.
		if _, bad := r.underBadPrefix(f.path); !bad {
			r.issues = r.issues.add(f.path, IssueMissingRequiredKey, "required key is missing")
		}
		return
	}
	if f.kind == kindTagged {
		r.resolveTagged(f, raw)
		return
	}
	if value, ok := r.coerceField(f.path, f, raw); ok {
		r.resolved[f.path] = value
	}
}

// coerceField validates one scalar or sequence value against a definition,
// reporting issues at the given path. The returned value uses the canonical
// Go type for the field's kind.
func (r *resolver) coerceField(path string, f fieldDef, raw any) (any, bool) {
	switch f.kind {
	case kindString:
		s, ok := raw.(string)
		if !ok {
			r.issues = r.issues.add(path, IssueTypeMismatch, "expected string, got %s", typeName(raw))
			return nil, false
		}
		s = strings.TrimSpace(s)
		if len(f.enum) > 0 {
			normalized := strings.ToLower(s)
			if !containsString(f.enum, normalized) {
				r.issues = r.issues.add(path, IssueUnknownEnumValue,
					"value %q is not one of [%s]", s, strings.Join(f.enum, ", "))
				return nil, false
			}
			return normalized, true
		}
		if f.pathLike && !wellFormedPath(s) {
			r.issues = r.issues.add(path, IssueTypeMismatch, "expected a non-empty path string")
			return nil, false
		}
		return s, true
	case kindInt:
		n, ok := asInt(raw)
		if !ok {
			r.issues = r.issues.add(path, IssueTypeMismatch, "expected integer, got %s", typeName(raw))
			return nil, false
		}
		if !r.checkBounds(path, f, float64(n), fmt.Sprintf("%d", n)) {
			return nil, false
		}
		return n, true
	case kindFloat:
		x, ok := asFloat(raw)
		if !ok {
			r.issues = r.issues.add(path, IssueTypeMismatch, "expected number, got %s", typeName(raw))
			return nil, false
		}
		if !r.checkBounds(path, f, x, formatFloat(x)) {
			return nil, false
		}
		return x, true
	case kindBool:
		b, ok := raw.(bool)
		if !ok {
			r.issues = r.issues.add(path, IssueTypeMismatch, "expected boolean, got %s", typeName(raw))
			return nil, false
		}
		return b, true
	case kindIntList:
		return r.coerceIntList(path, f, raw)
	case kindFloatList:
		return r.coerceFloatList(path, f, raw)
	case kindPairList:
		return r.coercePairList(path, raw)
	}
	return nil, false
}

func (r *resolver) coerceIntList(path string, f fieldDef, raw any) (any, bool) {
	items, ok := asSlice(raw)
	if !ok {
		r.issues = r.issues.add(path, IssueTypeMismatch, "expected sequence of integers, got %s", typeName(raw))
		return nil, false
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		n, ok := asInt(item)
		if !ok {
			r.issues = r.issues.add(path, IssueMalformedSequence,
				"element %d: expected integer, got %s", i, typeName(item))
			return nil, false
		}
		if f.elemMin != nil && float64(n) < *f.elemMin {
			r.issues = r.issues.add(fmt.Sprintf("%s[%d]", path, i), IssueRangeViolation,
				"%d is below the allowed minimum %d", n, int(*f.elemMin))
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}

func (r *resolver) coerceFloatList(path string, f fieldDef, raw any) (any, bool) {
	items, ok := asSlice(raw)
	if !ok {
		r.issues = r.issues.add(path, IssueTypeMismatch, "expected sequence of numbers, got %s", typeName(raw))
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for i, item := range items {
		x, ok := asFloat(item)
		if !ok {
			r.issues = r.issues.add(path, IssueMalformedSequence,
				"element %d: expected number, got %s", i, typeName(item))
			return nil, false
		}
		if f.elemMin != nil && x < *f.elemMin {
			r.issues = r.issues.add(fmt.Sprintf("%s[%d]", path, i), IssueRangeViolation,
				"%s is below the allowed minimum %s", formatFloat(x), formatFloat(*f.elemMin))
			return nil, false
		}
		out = append(out, x)
	}
	return out, true
}

func (r *resolver) coercePairList(path string, raw any) (any, bool) {
	if pairs, ok := raw.([][2]float64); ok {
		// Already canonical (schema default).
		return append([][2]float64(nil), pairs...), true
	}
	items, ok := asSlice(raw)
	if !ok {
		r.issues = r.issues.add(path, IssueTypeMismatch, "expected sequence of [min, max] pairs, got %s", typeName(raw))
		return nil, false
	}
	out := make([][2]float64, 0, len(items))
	for i, item := range items {
		pair, ok := asSlice(item)
		if !ok || len(pair) != 2 {
			r.issues = r.issues.add(path, IssueMalformedSequence,
				"element %d: expected a pair of two numbers", i)
			return nil, false
		}
		lo, okLo := asFloat(pair[0])
		hi, okHi := asFloat(pair[1])
		if !okLo || !okHi {
			r.issues = r.issues.add(path, IssueMalformedSequence,
				"element %d: expected numeric bounds", i)
			return nil, false
		}
		if lo >= hi {
			r.issues = r.issues.add(fmt.Sprintf("%s[%d]", path, i), IssueRangeViolation,
				"min %s must be below max %s", formatFloat(lo), formatFloat(hi))
			return nil, false
		}
		out = append(out, [2]float64{lo, hi})
	}
	return out, true
}

func (r *resolver) resolveTagged(f fieldDef, raw any) {
	block, ok := raw.(map[string]any)
	if !ok {
		r.issues = r.issues.add(f.path, IssueTypeMismatch,
			"expected a %s/options block, got %s", f.disc, typeName(raw))
		return
	}

	discPath := f.path + "." + f.disc
	discRaw, ok := block[f.disc]
	if !ok {
		r.issues = r.issues.add(discPath, IssueMissingRequiredKey, "required key is missing")
		return
	}
	name, ok := discRaw.(string)
	if !ok {
		r.issues = r.issues.add(discPath, IssueTypeMismatch, "expected string, got %s", typeName(discRaw))
		return
	}
	name = strings.ToLower(strings.TrimSpace(name))

	for key := range block {
		if key != f.disc && key != "options" {
			r.issues = r.issues.add(f.path+"."+key, IssueUnknownKey, "key is not part of the schema")
		}
	}

	variant, ok := f.variants[name]
	if !ok {
		r.issues = r.issues.add(discPath, IssueUnknownTaggedVariant,
			"variant %q is not one of [%s]", name, strings.Join(variantNames(f.variants), ", "))
		return
	}
	r.resolved[discPath] = name

	options := map[string]any{}
	if optsRaw, ok := block["options"]; ok {
		if options, ok = optsRaw.(map[string]any); !ok {
			r.issues = r.issues.add(f.path+".options", IssueTypeMismatch,
				"expected mapping, got %s", typeName(optsRaw))
			return
		}
	}

	known := make(map[string]bool, len(variant))
	for _, opt := range variant {
		known[opt.path] = true
		optPath := f.path + ".options." + opt.path
		value, ok := options[opt.path]
		if !ok {
			if opt.required {
				r.issues = r.issues.add(optPath, IssueMissingRequiredKey,
					"required key is missing for variant %q", name)
				continue
			}
			r.resolved[optPath] = opt.def
			continue
		}
		if coerced, ok := r.coerceField(optPath, opt, value); ok {
			r.resolved[optPath] = coerced
		}
	}
	for _, key := range sortedKeys(options) {
		if !known[key] {
			r.issues = r.issues.add(f.path+".options."+key, IssueUnknownKey,
				"option is not recognized for variant %q", name)
		}
	}
}

func (r *resolver) checkBounds(path string, f fieldDef, value float64, display string) bool {
	if f.min != nil {
		if value < *f.min || (f.minOpen && value == *f.min) {
			r.issues = r.issues.add(path, IssueRangeViolation,
				"%s is below the allowed minimum %s", display, formatFloat(*f.min))
			return false
		}
	}
	if f.max != nil {
		if value > *f.max || (f.maxOpen && value == *f.max) {
			r.issues = r.issues.add(path, IssueRangeViolation,
				"%s is above the allowed maximum %s", display, formatFloat(*f.max))
			return false
		}
	}
	return true
}

// lookup walks the tree to a dotted path. A non-mapping intermediate node is
// reported once as a TypeMismatch on the offending prefix.
func (r *resolver) lookup(tree map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	node := any(tree)
	for i, segment := range segments {
		m, ok := node.(map[string]any)
		if !ok {
			prefix := strings.Join(segments[:i], ".")
			if !r.badPrefixes[prefix] {
				r.badPrefixes[prefix] = true
				r.issues = r.issues.add(prefix, IssueTypeMismatch,
					"expected mapping, got %s", typeName(node))
			}
			return nil, false
		}
		node, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func (r *resolver) underBadPrefix(path string) (string, bool) {
	for prefix := range r.badPrefixes {
		if strings.HasPrefix(path, prefix+".") {
			return prefix, true
		}
	}
	return "", false
}

// walkUnknown flags every document key the schema does not know about.
// Tagged blocks police their own subtree in resolveTagged.
func (r *resolver) walkUnknown(node any, prefix string) {
	if prefix != "" {
		if _, ok := r.leaf[prefix]; ok {
			return
		}
		if !r.groupPrefix[prefix] {
			r.issues = r.issues.add(prefix, IssueUnknownKey, "key is not part of the schema")
			return
		}
	}
	m, ok := node.(map[string]any)
	if !ok {
		return
	}
	for _, key := range sortedKeys(m) {
		child := key
		if prefix != "" {
			child = prefix + "." + key
		}
		r.walkUnknown(m[key], child)
	}
}

// crossRules checks the constraints that span more than one key. Each rule
// only fires when every key it reads validated cleanly.
func (r *resolver) crossRules() {
	r.orderedPair("data.augmentation.scale_min", "data.augmentation.scale_max", false)
	r.orderedPair("data.augmentation.translate_min", "data.augmentation.translate_max", false)
	r.orderedPair("diffusion.snr_min", "diffusion.snr_max", false)
	r.orderedPair("diffusion.schedule.options.beta_start", "diffusion.schedule.options.beta_end", false)
	// The sigmoid schedule degenerates when start == end, so that pair is
	// strictly ordered.
	r.orderedPair("diffusion.schedule.options.start", "diffusion.schedule.options.end", true)

	if infer, ok := r.resolvedInt("diffusion.inference_timesteps"); ok {
		if train, ok := r.resolvedInt("diffusion.training_timesteps"); ok && infer > train {
			r.issues = r.issues.add("diffusion.inference_timesteps", IssueRangeViolation,
				"%d exceeds diffusion.training_timesteps (%d)", infer, train)
		}
	}

	if mode, ok := r.resolved["vis.sample_mode"].(string); ok && mode == "indices" {
		if indices, ok := r.resolved["vis.indices"].([]int); ok && len(indices) == 0 {
			r.issues = r.issues.add("vis.indices", IssueMalformedSequence,
				"must not be empty when vis.sample_mode is \"indices\"")
		}
	}

	if chunk, ok := r.resolved["test.chunk"].(string); ok && chunk != "" {
		if _, _, err := ParseChunk(chunk); err != nil {
			r.issues = r.issues.add("test.chunk", IssueTypeMismatch, "%v", err)
		}
	}

	if filename, ok := r.resolved["checkpoint.filename"].(string); ok && strings.TrimSpace(filename) == "" {
		r.issues = r.issues.add("checkpoint.filename", IssueTypeMismatch,
			"expected a non-empty filename template")
	}
}

func (r *resolver) orderedPair(minPath, maxPath string, strict bool) {
	lo, okLo := r.resolvedFloat(minPath)
	hi, okHi := r.resolvedFloat(maxPath)
	if !okLo || !okHi {
		return
	}
	if lo > hi {
		r.issues = r.issues.add(minPath, IssueRangeViolation,
			"%s must not exceed %s (%s > %s)", minPath, maxPath, formatFloat(lo), formatFloat(hi))
		return
	}
	if strict && lo == hi {
		r.issues = r.issues.add(minPath, IssueRangeViolation,
			"%s must be strictly below %s (both are %s)", minPath, maxPath, formatFloat(lo))
	}
}

func (r *resolver) resolvedFloat(path string) (float64, bool) {
	switch v := r.resolved[path].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func (r *resolver) resolvedInt(path string) (int, bool) {
	v, ok := r.resolved[path].(int)
	return v, ok
}

// applyDefaults fills every absent schema key with its declared default.
// Runs before overrides so callers can override defaulted paths.
func applyDefaults(tree map[string]any, fields []fieldDef) {
	for _, f := range fields {
		if f.def == nil {
			continue
		}
		if _, ok := lookupPlain(tree, f.path); ok {
			continue
		}
		if f.kind == kindTagged {
			fragment, _ := deepCopy(f.def).(map[string]any)
			block := map[string]any{}
			if name, ok := fragment["__name"]; ok {
				block[f.disc] = name
			}
			if options, ok := fragment["options"]; ok {
				block["options"] = options
			}
			setPath(tree, f.path, block)
			continue
		}
		setPath(tree, f.path, deepCopy(f.def))
	}
}

// lookupPlain walks without issue reporting; a non-mapping intermediate is
// treated as absent and left for the resolver to flag.
func lookupPlain(tree map[string]any, path string) (any, bool) {
	node := any(tree)
	for _, segment := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func setPath(tree map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	node := tree
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			if existing, present := node[segment]; present {
				if _, isMap := existing.(map[string]any); !isMap {
					// Leave scalar intermediates alone; validation reports them.
					return
				}
			}
			next = map[string]any{}
			node[segment] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	case []int:
		return append([]int(nil), v...)
	case []float64:
		return append([]float64(nil), v...)
	case [][2]float64:
		return append([][2]float64(nil), v...)
	default:
		return v
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := asInt(value); ok {
		return float64(n), true
	}
	return 0, false
}

func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []int:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64, uint, uint64:
		return "integer"
	case float32, float64:
		return "number"
	case map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

func wellFormedPath(s string) bool {
	return s != "" && !strings.ContainsRune(s, '\x00')
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func variantNames(variants map[string][]fieldDef) []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
