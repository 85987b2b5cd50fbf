package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/ignis/internal/compiler"
	"github.com/roach88/ignis/internal/ir"
)

// LoadError is a module file that could not be loaded or built.
type LoadError struct {
	Code     string
	Message  string
	Problems []Problem // one per build error; empty for load failures
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Problem is one build error of a module declaration.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// LoadGraph decodes a module file and builds its action graph.
// Every build error is reported, not only the first.
func LoadGraph(path string) (*ir.Graph, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("module file not found: %s", path), Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing module file: %v", err), Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a module file: %s is a directory", path)}
	}

	decl, err := compiler.LoadFile(path)
	if err != nil {
		p := problemOf(err)
		p.Code = ErrCodeDecode
		return nil, &LoadError{Code: ErrCodeDecode, Message: err.Error(), Problems: []Problem{p}, Err: err}
	}

	g, err := compiler.Build(decl)
	if err != nil {
		problems := problemsOf(err)
		return nil, &LoadError{
			Code:     ErrCodeBuild,
			Message:  fmt.Sprintf("module %s has %d error(s)", decl.Module, len(problems)),
			Problems: problems,
			Err:      err,
		}
	}
	return g, nil
}

// problemsOf splits a joined build error into one problem per cause.
func problemsOf(err error) []Problem {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []Problem{problemOf(err)}
	}
	var out []Problem
	for _, e := range joined.Unwrap() {
		out = append(out, problemsOf(e)...)
	}
	return out
}

func problemOf(err error) Problem {
	p := Problem{Code: ErrCodeGeneric, Message: err.Error()}

	var (
		unresolved *compiler.UnresolvedReferenceError
		cycle      *compiler.CyclicDependencyError
		dupAction  *compiler.DuplicateActionError
		dupModule  *compiler.DuplicateModuleError
		invalid    *compiler.InvalidActionError
		decode     *compiler.CompileError
	)
	switch {
	case errors.As(err, &unresolved):
		p.Code = ErrCodeUnresolvedRef
	case errors.As(err, &cycle):
		p.Code = ErrCodeCycle
	case errors.As(err, &dupAction):
		p.Code = ErrCodeDuplicateAction
	case errors.As(err, &dupModule):
		p.Code = ErrCodeDuplicateModule
	case errors.As(err, &invalid):
		p.Code = ErrCodeInvalidAction
	case errors.As(err, &decode):
		p.Code = ErrCodeDecode
		if decode.Pos.IsValid() {
			p.Line = decode.Pos.Line()
		}
	}
	return p
}

// outputLoadError reports a LoadError and returns the command's exit error.
// Build problems are listed one per line in text mode.
func outputLoadError(f *OutputFormatter, err error) error {
	var le *LoadError
	if !errors.As(err, &le) {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load module", err)
	}

	if f.Format == "json" {
		_ = f.Error(le.Code, le.Message, le.Problems)
		return NewExitError(ExitCommandError, le.Error())
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", le.Code, le.Message)
	if le.Code == ErrCodeBuild {
		for _, p := range le.Problems {
			fmt.Fprintf(f.Writer, "  %s: %s\n", p.Code, p.Message)
		}
	}
	return NewExitError(ExitCommandError, le.Error())
}
