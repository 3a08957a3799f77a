package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Override replaces the value at one dotted schema path. String values are
// parsed against the declared kind of the path; typed values are placed
// as-is and checked by the normal validation pass.
type Override struct {
	Path  string
	Value any
}

// ParseOverride splits a "path=value" argument as supplied on the command
// line or by a sweep driver.
func ParseOverride(arg string) (Override, error) {
	path, value, ok := strings.Cut(arg, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return Override{}, fmt.Errorf("override %q: expected path=value", arg)
	}
	return Override{Path: path, Value: strings.TrimSpace(value)}, nil
}

// applyOverrides mutates the defaulted tree in place. Unknown paths and
// unparsable values are collected as issues; valid overrides still apply so
// the final report covers everything at once.
func applyOverrides(tree map[string]any, overrides []Override, fields []fieldDef) Issues {
	var issues Issues
	leaf := make(map[string]fieldDef, len(fields))
	for _, f := range fields {
		leaf[f.path] = f
	}

	for _, ov := range overrides {
		path := strings.TrimSpace(ov.Path)
		if path == "" {
			issues = issues.add(ov.Path, IssueOverridePathNotFound, "override path is empty")
			continue
		}

		if f, ok := leaf[path]; ok && f.kind != kindTagged {
			value, err := overrideValue(f, ov.Value)
			if err != nil {
				issues = issues.add(path, IssueOverrideTypeMismatch, "%v", err)
				continue
			}
			setPath(tree, path, value)
			continue
		}

		if f, optKey, isDisc, ok := taggedTarget(leaf, path); ok {
			if isDisc {
				issues = append(issues, overrideDiscriminator(tree, f, ov.Value)...)
				continue
			}
			issues = append(issues, overrideOption(tree, f, optKey, ov.Value)...)
			continue
		}

		issues = issues.add(path, IssueOverridePathNotFound, "path is not part of the schema")
	}
	return issues
}

// taggedTarget matches a path against the tagged blocks: either the
// discriminator itself ("training.optimizer.type") or an option underneath
// it ("training.optimizer.options.lr").
func taggedTarget(leaf map[string]fieldDef, path string) (fieldDef, string, bool, bool) {
	for prefix, f := range leaf {
		if f.kind != kindTagged {
			continue
		}
		if path == prefix+"."+f.disc {
			return f, "", true, true
		}
		if rest, ok := strings.CutPrefix(path, prefix+".options."); ok && rest != "" && !strings.Contains(rest, ".") {
			return f, rest, false, true
		}
	}
	return fieldDef{}, "", false, false
}

// overrideDiscriminator swaps a tagged block's variant. Options from the
// previous variant are discarded so later option overrides land on a clean
// slate; required options of the new variant must be overridden too.
func overrideDiscriminator(tree map[string]any, f fieldDef, value any) Issues {
	name, ok := value.(string)
	if !ok {
		return Issues{}.add(f.path+"."+f.disc, IssueOverrideTypeMismatch,
			"expected a variant name string, got %s", typeName(value))
	}
	name = strings.ToLower(strings.TrimSpace(name))

	block := taggedBlock(tree, f)
	current, _ := block[f.disc].(string)
	if strings.ToLower(strings.TrimSpace(current)) != name {
		block["options"] = map[string]any{}
	}
	block[f.disc] = name
	return nil
}

func overrideOption(tree map[string]any, f fieldDef, optKey string, value any) Issues {
	optPath := f.path + ".options." + optKey
	block := taggedBlock(tree, f)
	name, _ := block[f.disc].(string)
	name = strings.ToLower(strings.TrimSpace(name))

	variant, known := f.variants[name]
	if known {
		found := false
		for _, opt := range variant {
			if opt.path != optKey {
				continue
			}
			found = true
			coerced, err := overrideValue(opt, value)
			if err != nil {
				return Issues{}.add(optPath, IssueOverrideTypeMismatch, "%v", err)
			}
			value = coerced
		}
		if !found {
			return Issues{}.add(optPath, IssueOverridePathNotFound,
				"option is not recognized for variant %q", name)
		}
	}
	// Unknown variant: place the raw value and let validation report the
	// variant itself.

	options, ok := block["options"].(map[string]any)
	if !ok {
		options = map[string]any{}
		block["options"] = options
	}
	options[optKey] = value
	return nil
}

func taggedBlock(tree map[string]any, f fieldDef) map[string]any {
	if existing, ok := lookupPlain(tree, f.path); ok {
		if block, ok := existing.(map[string]any); ok {
			return block
		}
	}
	block := map[string]any{}
	setPath(tree, f.path, block)
	return block
}

// overrideValue turns an override payload into the canonical value for a
// field. Strings are parsed per kind; other types pass through for the
// validator to check.
func overrideValue(f fieldDef, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch f.kind {
	case kindString:
		return s, nil
	case kindInt:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as integer", s)
		}
		return n, nil
	case kindFloat:
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as number", s)
		}
		return x, nil
	case kindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as boolean", s)
		}
		return b, nil
	case kindIntList:
		return parseList(s, func(item string) (any, error) {
			n, err := strconv.Atoi(item)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as integer", item)
			}
			return n, nil
		})
	case kindFloatList:
		return parseList(s, func(item string) (any, error) {
			x, err := strconv.ParseFloat(item, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot parse %q as number", item)
			}
			return x, nil
		})
	}
	return nil, fmt.Errorf("path does not accept string overrides")
}

func parseList(s string, parse func(string) (any, error)) (any, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return []any{}, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]any, 0, len(parts))
	for _, part := range parts {
		value, err := parse(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}
