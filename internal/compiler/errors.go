package compiler

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// UnresolvedReferenceError is returned when a reference, target, after
// edge or export names nothing the module can see.
type UnresolvedReferenceError struct {
	Module    string
	Action    string // logical name of the referring action, empty for exports
	Reference string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("module %s: export refers to unknown action %q", e.Module, e.Reference)
	}
	return fmt.Sprintf("module %s: action %s: unresolved reference %q", e.Module, e.Action, e.Reference)
}

// CyclicDependencyError names one dependency cycle as a closed path of
// action ids, e.g. [M#a M#b M#a].
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}

// DuplicateActionError is returned when two actions in a module share a
// logical name.
type DuplicateActionError struct {
	Module string
	Name   string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("module %s: duplicate action %q", e.Module, e.Name)
}

// DuplicateModuleError is returned when two different declarations use
// the same module name.
type DuplicateModuleError struct {
	Module string
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %q is declared twice with different contents", e.Module)
}

// InvalidActionError reports a malformed action declaration.
type InvalidActionError struct {
	Module  string
	Action  string
	Field   string
	Message string
}

func (e *InvalidActionError) Error() string {
	name := e.Action
	if name == "" {
		name = "<unnamed>"
	}
	return fmt.Sprintf("module %s: action %s: %s: %s", e.Module, name, e.Field, e.Message)
}

// CompileError is a declaration decoding error, positioned when the source
// format provides positions.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}

// IsUnresolvedReference reports whether err contains an UnresolvedReferenceError.
func IsUnresolvedReference(err error) bool {
	var target *UnresolvedReferenceError
	return errors.As(err, &target)
}

// IsCyclicDependency reports whether err contains a CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	var target *CyclicDependencyError
	return errors.As(err, &target)
}
