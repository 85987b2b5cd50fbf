package engine

import (
	"fmt"

	"github.com/roach88/ignis/internal/ir"
)

// Resolve returns a copy of inputs with every reference replaced by the
// selected part of the referenced action's result.
//
// results holds the recorded result of every dependency that succeeded,
// in this run or a previous one. A reference to an action missing from
// results is an *InvariantError: the scheduler only dispatches an action
// once all of its dependencies succeeded. A path that does not exist in
// the result is a *ResolveError.
func Resolve(actionID string, inputs ir.Object, results map[string]ir.Value) (ir.Object, error) {
	out, err := resolveValue(actionID, inputs, results)
	if err != nil {
		return nil, err
	}
	return out.(ir.Object), nil
}

func resolveValue(actionID string, v ir.Value, results map[string]ir.Value) (ir.Value, error) {
	switch val := v.(type) {
	case ir.Ref:
		result, ok := results[val.Action]
		if !ok {
			return nil, &InvariantError{
				ActionID: actionID,
				Message:  fmt.Sprintf("dependency %s has no recorded success", val.Action),
			}
		}
		selected, ok := ir.Lookup(result, val.Path)
		if !ok {
			return nil, &ResolveError{Ref: val}
		}
		return selected, nil

	case ir.Array:
		arr := make(ir.Array, len(val))
		for i, elem := range val {
			r, err := resolveValue(actionID, elem, results)
			if err != nil {
				return nil, err
			}
			arr[i] = r
		}
		return arr, nil

	case ir.Object:
		obj := make(ir.Object, len(val))
		for k, elem := range val {
			r, err := resolveValue(actionID, elem, results)
			if err != nil {
				return nil, err
			}
			obj[k] = r
		}
		return obj, nil

	default:
		return v, nil
	}
}
