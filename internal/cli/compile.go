package cli

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ignis/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledAction is one action of a compiled graph, in topological order.
type CompiledAction struct {
	ID           string    `json:"id"`
	Kind         ir.Kind   `json:"kind"`
	Dependencies []string  `json:"dependencies"`
	Inputs       ir.Object `json:"inputs"`
}

// CompilationResult is a built action graph ready for inspection.
type CompilationResult struct {
	Module  string            `json:"module"`
	Actions []CompiledAction  `json:"actions"`
	Exports map[string]string `json:"exports"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <module-file>",
		Short: "Build a module to its canonical action graph",
		Long: `Build a module file and print its action graph: every action id in
execution order with its kind, dependencies and inputs. With --output the
graph is written as canonical JSON, byte-identical for identical modules.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, modulePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	g, err := LoadGraph(modulePath)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	result := compiledGraph(g)

	if opts.Output != "" {
		data, err := canonicalGraph(result)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("encode graph: %v", err), nil)
			return WrapExitError(ExitCommandError, "encode graph", err)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
		formatter.VerboseLog("wrote %d bytes to %s", len(data), opts.Output)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %s: %d action(s)\n\n", result.Module, len(result.Actions))
	for _, a := range result.Actions {
		fmt.Fprintf(formatter.Writer, "  %-17s  %s", a.Kind, a.ID)
		if len(a.Dependencies) > 0 {
			fmt.Fprintf(formatter.Writer, "  after %s", strings.Join(a.Dependencies, ", "))
		}
		fmt.Fprintln(formatter.Writer)
	}
	if len(result.Exports) > 0 {
		fmt.Fprintln(formatter.Writer, "\nExports:")
		for _, name := range slices.Sorted(maps.Keys(result.Exports)) {
			fmt.Fprintf(formatter.Writer, "  %s = %s\n", name, result.Exports[name])
		}
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote canonical graph to %s\n", opts.Output)
	}
	return nil
}

func compiledGraph(g *ir.Graph) CompilationResult {
	out := CompilationResult{
		Module:  g.Module,
		Actions: make([]CompiledAction, 0, len(g.Order)),
		Exports: g.Exports,
	}
	if out.Exports == nil {
		out.Exports = map[string]string{}
	}
	for _, id := range g.Order {
		a := g.Actions[id]
		deps := a.Dependencies
		if deps == nil {
			deps = []string{}
		}
		out.Actions = append(out.Actions, CompiledAction{
			ID:           a.ID,
			Kind:         a.Kind,
			Dependencies: deps,
			Inputs:       a.Inputs,
		})
	}
	return out
}

// canonicalGraph encodes the graph as RFC 8785 canonical JSON.
func canonicalGraph(r CompilationResult) ([]byte, error) {
	actions := make(ir.Array, len(r.Actions))
	for i, a := range r.Actions {
		deps := make(ir.Array, len(a.Dependencies))
		for j, d := range a.Dependencies {
			deps[j] = ir.String(d)
		}
		inputs := a.Inputs
		if inputs == nil {
			inputs = ir.Object{}
		}
		actions[i] = ir.Object{
			"id":           ir.String(a.ID),
			"kind":         ir.String(a.Kind),
			"dependencies": deps,
			"inputs":       inputs,
		}
	}
	exports := make(ir.Object, len(r.Exports))
	for name, id := range r.Exports {
		exports[name] = ir.String(id)
	}
	return ir.MarshalCanonical(ir.Object{
		"module":  ir.String(r.Module),
		"actions": actions,
		"exports": exports,
	})
}
