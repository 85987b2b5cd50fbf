package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/ignis/internal/ir"
)

var (
	// ErrInvalidEntry is returned by Put when an entry breaks the
	// status/result/error invariants.
	ErrInvalidEntry = errors.New("invalid journal entry")

	// ErrStaleAttempt is returned by Put when the entry's attempt is lower
	// than the stored one.
	ErrStaleAttempt = errors.New("journal attempt would decrease")
)

// CheckEntry validates an entry before it is written.
func CheckEntry(e ir.JournalEntry) error {
	if err := e.Deployment.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if e.Attempt < 0 {
		return fmt.Errorf("%w: negative attempt %d", ErrInvalidEntry, e.Attempt)
	}
	return nil
}

// MarshalResult converts a result to canonical JSON TEXT, or nil when the
// entry has no result.
func MarshalResult(v ir.Value) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	s := string(data)
	return &s, nil
}

// UnmarshalResult parses a stored result. Large integers survive via
// json.Number inside ir.UnmarshalValue.
func UnmarshalResult(data *string) (ir.Value, error) {
	if data == nil {
		return nil, nil
	}
	v, err := ir.UnmarshalValue([]byte(*data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return v, nil
}

// MarshalDependencies stores a dependency list as a canonical JSON array.
func MarshalDependencies(deps []string) (string, error) {
	arr := make(ir.Array, len(deps))
	for i, d := range deps {
		arr[i] = ir.String(d)
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal dependencies: %w", err)
	}
	return string(data), nil
}

// UnmarshalDependencies parses a stored dependency list.
func UnmarshalDependencies(data string) ([]string, error) {
	deps := []string{}
	if data == "" {
		return deps, nil
	}
	if err := json.Unmarshal([]byte(data), &deps); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	return deps, nil
}

// MarshalError splits an action error into its stored columns.
func MarshalError(e *ir.ActionError) (kind, message *string) {
	if e == nil {
		return nil, nil
	}
	k := string(e.Kind)
	m := e.Message
	return &k, &m
}

// UnmarshalError rebuilds an action error from its stored columns.
func UnmarshalError(kind, message *string) *ir.ActionError {
	if kind == nil {
		return nil
	}
	e := &ir.ActionError{Kind: ir.ErrorKind(*kind)}
	if message != nil {
		e.Message = *message
	}
	return e
}
