package executor

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// ResolveParams substitutes every Reference in the task's params with the
// referenced result or sub-field. A missing task result or path segment is
// an UnresolvedReferenceError.
func ResolveParams(task *models.Task, results map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(task.Params))
	for name, pv := range task.Params {
		switch v := pv.(type) {
		case models.Literal:
			out[name] = v.Value
		case models.Reference:
			val, err := resolveReference(v, results)
			if err != nil {
				return nil, &models.UnresolvedReferenceError{
					TaskID:    task.ID,
					Param:     name,
					Reference: v.String(),
					Reason:    err.Error(),
				}
			}
			out[name] = val
		default:
			return nil, &models.UnresolvedReferenceError{
				TaskID: task.ID,
				Param:  name,
				Reason: fmt.Sprintf("unsupported parameter value %T", pv),
			}
		}
	}
	return out, nil
}

func resolveReference(ref models.Reference, results map[string]any) (any, error) {
	cur, ok := results[ref.TaskID]
	if !ok {
		return nil, fmt.Errorf("no result for task %s", ref.TaskID)
	}
	for i, seg := range ref.Path {
		next, err := step(cur, seg)
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", models.Reference{TaskID: ref.TaskID, Path: ref.Path[:i+1]}, err)
		}
		cur = next
	}
	return cur, nil
}

// step descends one path segment into a map or list.
func step(cur any, seg string) (any, error) {
	switch c := cur.(type) {
	case map[string]any:
		v, ok := c[seg]
		if !ok {
			return nil, fmt.Errorf("field %q not found", seg)
		}
		return v, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("segment %q is not a list index", seg)
		}
		if idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(c))
		}
		return c[idx], nil
	case nil:
		return nil, fmt.Errorf("field %q of null value", seg)
	}

	// Structs, typed maps and typed slices are normalized through JSON so
	// services may return their own result types.
	normalized, err := normalize(cur)
	if err != nil {
		return nil, fmt.Errorf("cannot descend into %T: %w", cur, err)
	}
	switch normalized.(type) {
	case map[string]any, []any:
		return step(normalized, seg)
	default:
		return nil, fmt.Errorf("cannot descend into %T", cur)
	}
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
