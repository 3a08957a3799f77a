package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Get returns the resolved value at a dotted path. Every schema path is
// populated after a successful Load, so a miss means the path is outside
// the schema (or belongs to a variant that was not selected).
func (c *Config) Get(path string) (any, error) {
	value, ok := c.resolved[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
	}
	return deepCopy(value), nil
}

// Paths lists every resolved leaf path in schema order, with tagged option
// paths sorted under their block.
func (c *Config) Paths() []string {
	out := make([]string, 0, len(c.resolved))
	for _, f := range schema() {
		if f.kind != kindTagged {
			out = append(out, f.path)
			continue
		}
		out = append(out, f.path+"."+f.disc)
		prefix := f.path + ".options."
		var opts []string
		for key := range c.resolved {
			if strings.HasPrefix(key, prefix) {
				opts = append(opts, key)
			}
		}
		sort.Strings(opts)
		out = append(out, opts...)
	}
	return out
}

// Snapshot rebuilds the resolved document as a nested tree, suitable for
// re-encoding or for deriving a new Config via LoadDocument.
func (c *Config) Snapshot() map[string]any {
	tree := map[string]any{}
	for path, value := range c.resolved {
		setPath(tree, path, snapshotValue(value))
	}
	return tree
}

// Equal reports whether two configurations resolve to identical documents.
func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	return reflect.DeepEqual(c.resolved, other.resolved)
}

// snapshotValue converts canonical values into plain sequences so the
// snapshot round-trips through YAML, TOML, and JSON encoders.
func snapshotValue(value any) any {
	switch v := value.(type) {
	case []int:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case []float64:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case [][2]float64:
		out := make([]any, len(v))
		for i, pair := range v {
			out[i] = []any{pair[0], pair[1]}
		}
		return out
	default:
		return deepCopy(value)
	}
}
