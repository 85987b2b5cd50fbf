package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Kind tags the category of an action. Each kind has a fixed execution
// contract with the external executor.
type Kind string

const (
	KindDeployInstance  Kind = "deploy-instance"
	KindInvokeMethod    Kind = "invoke-method"
	KindReadValue       Kind = "read-value"
	KindSendValue       Kind = "send-value"
	KindStaticReference Kind = "static-reference"
)

// ValidKinds defines the allowed action kinds.
var ValidKinds = map[Kind]bool{
	KindDeployInstance:  true,
	KindInvokeMethod:    true,
	KindReadValue:       true,
	KindSendValue:       true,
	KindStaticReference: true,
}

// DeploymentID scopes a journal: the same module deployed to two
// environments has two independent journals.
type DeploymentID struct {
	Module      string `json:"module"`
	Environment string `json:"environment"`
}

// String renders the identity as "Module@environment".
func (d DeploymentID) String() string {
	return d.Module + "@" + d.Environment
}

// Validate checks that both halves of the identity are present.
func (d DeploymentID) Validate() error {
	if strings.TrimSpace(d.Module) == "" {
		return fmt.Errorf("deployment identity: module name is required")
	}
	if strings.TrimSpace(d.Environment) == "" {
		return fmt.Errorf("deployment identity: environment is required")
	}
	return nil
}

// Action is one opaque, idempotency-keyed unit of deployment work.
//
// Inputs may contain Ref values; Dependencies is the set of action ids
// those refs (and explicit "after" edges) point at, sorted.
type Action struct {
	ID           string   `json:"id"`
	Module       string   `json:"module"`
	Name         string   `json:"name"`
	Kind         Kind     `json:"kind"`
	Inputs       Object   `json:"inputs"`
	Dependencies []string `json:"dependencies"`
}

// DependsOn reports whether id is a direct dependency of the action.
func (a *Action) DependsOn(id string) bool {
	_, found := slices.BinarySearch(a.Dependencies, id)
	return found
}

// Graph is a validated DAG of actions for one root module.
//
// Actions is an arena indexed by action id. Order lists ids in a
// deterministic topological order (dependencies first, ties broken by id).
// Exports maps the root module's exported names to action ids.
type Graph struct {
	Module     string              `json:"module"`
	Actions    map[string]*Action  `json:"actions"`
	Order      []string            `json:"order"`
	Exports    map[string]string   `json:"exports"`
	Dependents map[string][]string `json:"-"`
}

// Action returns the action with the given id, or nil.
func (g *Graph) Action(id string) *Action {
	return g.Actions[id]
}

// Len returns the number of actions in the graph.
func (g *Graph) Len() int {
	return len(g.Actions)
}

// ExportedAs returns the sorted export names that point at an action id.
func (g *Graph) ExportedAs(id string) []string {
	var names []string
	for name, target := range g.Exports {
		if target == id {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Transitive returns every action reachable from id by following
// dependents edges, in sorted order, excluding id itself.
func (g *Graph) Transitive(id string) []string {
	seen := map[string]bool{id: true}
	stack := []string{id}
	var out []string
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.Dependents[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			stack = append(stack, next)
		}
	}
	slices.Sort(out)
	return out
}
