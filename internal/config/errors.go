package config

import (
	"errors"
	"fmt"
	"strings"
)

// IssueKind classifies a single schema violation.
type IssueKind string

const (
	IssueMissingRequiredKey   IssueKind = "missing_required_key"
	IssueUnknownKey           IssueKind = "unknown_key"
	IssueTypeMismatch         IssueKind = "type_mismatch"
	IssueRangeViolation       IssueKind = "range_violation"
	IssueUnknownEnumValue     IssueKind = "unknown_enum_value"
	IssueUnknownTaggedVariant IssueKind = "unknown_tagged_variant"
	IssueMalformedSequence    IssueKind = "malformed_sequence"
	IssueOverridePathNotFound IssueKind = "override_path_not_found"
	IssueOverrideTypeMismatch IssueKind = "override_type_mismatch"
)

// Issue is one violation found during validation, tied to the offending
// dotted key path.
type Issue struct {
	Path   string
	Kind   IssueKind
	Reason string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Reason)
}

// Issues aggregates every violation found in a single validation pass.
// Load never partially succeeds: either the document is clean or the full
// list is returned as one error.
type Issues []Issue

func (e Issues) Error() string {
	if len(e) == 0 {
		return "configuration invalid"
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("configuration invalid (%d problems)", len(e)))
	for _, issue := range e {
		lines = append(lines, "  "+issue.Error())
	}
	return strings.Join(lines, "\n")
}

// Has reports whether the aggregate contains a violation of the given kind
// at the given path.
func (e Issues) Has(kind IssueKind, path string) bool {
	for _, issue := range e {
		if issue.Kind == kind && issue.Path == path {
			return true
		}
	}
	return false
}

func (e Issues) add(path string, kind IssueKind, format string, args ...any) Issues {
	return append(e, Issue{Path: path, Kind: kind, Reason: fmt.Sprintf(format, args...)})
}

// ErrStructural wraps parse failures of the source document itself. A
// document that cannot be parsed aborts immediately; there is nothing
// meaningful to batch-validate.
var ErrStructural = errors.New("malformed configuration document")

// ErrKeyNotFound is returned by Config.Get for paths outside the schema.
var ErrKeyNotFound = errors.New("configuration key not found")
