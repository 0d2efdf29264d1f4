package orchestrator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnresolvedDependency indicates a subtask input references a sibling
// result that does not exist, either because the sibling failed or
// because the referenced field is missing. Unresolvable subtasks fail
// without dispatch and are never retried.
var ErrUnresolvedDependency = errors.New("unresolved dependency reference")

// refPattern matches {{subtaskId.result.fieldPath}} references inside
// string input values. The field path is optional and may be nested.
var refPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_\-]+)\.result((?:\.[a-zA-Z0-9_\-]+)*)\}\}`)

// resultLookup returns the completed output of a sibling subtask.
type resultLookup func(subtaskID string) (map[string]any, bool)

// resolveReferences walks a subtask input and substitutes every
// {{subtaskId.result.fieldPath}} reference with the referenced sibling
// output. A string that is exactly one reference is replaced by the raw
// value, preserving its type; references embedded in longer strings are
// stringified in place. The input map is never mutated.
func resolveReferences(input map[string]any, lookup resultLookup) (map[string]any, error) {
	if input == nil {
		return nil, nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		resolved, err := resolveValue(v, lookup)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// resolveValue resolves references in one input value, recursing into
// nested maps and slices.
func resolveValue(v any, lookup resultLookup) (any, error) {
	switch val := v.(type) {
	case string:
		return resolveString(val, lookup)
	case map[string]any:
		return resolveReferences(val, lookup)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveValue(item, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveString substitutes references in one string value.
func resolveString(s string, lookup resultLookup) (any, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// A value that is exactly one reference keeps the referenced type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return lookupRef(s, refPattern.FindStringSubmatch(s), lookup)
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		ref := s[m[0]:m[1]]
		raw, err := lookupRef(ref, refPattern.FindStringSubmatch(ref), lookup)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, "%v", raw)
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

// lookupRef resolves one reference against the sibling results.
func lookupRef(ref string, groups []string, lookup resultLookup) (any, error) {
	subtaskID := groups[1]
	output, ok := lookup(subtaskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no completed result", ErrUnresolvedDependency, subtaskID)
	}

	fieldPath := strings.TrimPrefix(groups[2], ".")
	if fieldPath == "" {
		return output, nil
	}

	var current any = output
	for _, field := range strings.Split(fieldPath, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an object in %s", ErrUnresolvedDependency, field, ref)
		}
		current, ok = m[field]
		if !ok {
			return nil, fmt.Errorf("%w: field %s missing in %s", ErrUnresolvedDependency, field, ref)
		}
	}
	return current, nil
}
